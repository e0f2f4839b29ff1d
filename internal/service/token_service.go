package service

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionTTL is the fixed lifetime of a session token.
const SessionTTL = time.Hour

// Claims is the session token payload. The user id is carried both as the
// registered subject and as a numeric userId claim.
type Claims struct {
	UserID int64 `json:"userId"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies signed session tokens.
type TokenService interface {
	Ready() error
	Issue(userID int64) (string, error)
	Verify(token string) (int64, error)
}

// TokenOption customizes a TokenService.
type TokenOption func(*tokenService)

// WithClock overrides the time source used for issuing and verifying tokens.
func WithClock(now func() time.Time) TokenOption {
	return func(s *tokenService) {
		if now != nil {
			s.now = now
		}
	}
}

type tokenService struct {
	secret []byte
	now    func() time.Time
}

func NewTokenService(secret string, opts ...TokenOption) TokenService {
	s := &tokenService{
		secret: []byte(secret),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ready reports ErrConfiguration when no signing secret is available.
func (s *tokenService) Ready() error {
	if len(s.secret) == 0 {
		return ErrConfiguration
	}
	return nil
}

func (s *tokenService) Issue(userID int64) (string, error) {
	if err := s.Ready(); err != nil {
		return "", err
	}

	now := s.now()
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(SessionTTL)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

func (s *tokenService) Verify(raw string) (int64, error) {
	if len(s.secret) == 0 || raw == "" {
		return 0, ErrUnauthorized
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if !token.Valid {
		return 0, ErrUnauthorized
	}
	if claims.UserID <= 0 || claims.Subject != strconv.FormatInt(claims.UserID, 10) {
		return 0, fmt.Errorf("%w: subject mismatch", ErrUnauthorized)
	}
	return claims.UserID, nil
}

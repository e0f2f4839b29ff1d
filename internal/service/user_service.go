package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"local-market/internal/domain"
	"local-market/internal/repository"
)

// UserService describes the credential lifecycle: account creation and login.
type UserService interface {
	Signup(ctx context.Context, email, password, name string) (*domain.User, error)
	Login(ctx context.Context, email, password string) (string, error)
}

type userService struct {
	users  repository.UserRepository
	tokens TokenService
	cost   int
	// compared against when the email is unknown so both failure paths pay for a bcrypt run
	dummyHash string
}

func NewUserService(users repository.UserRepository, tokens TokenService, bcryptCost int) UserService {
	cost := normalizeCost(bcryptCost)
	dummy, err := bcrypt.GenerateFromPassword([]byte("local-market/no-such-user"), cost)
	if err != nil {
		panic(fmt.Sprintf("service: build dummy password hash: %v", err))
	}
	return &userService{
		users:     users,
		tokens:    tokens,
		cost:      cost,
		dummyHash: string(dummy),
	}
}

func (s *userService) Signup(ctx context.Context, email, password, name string) (*domain.User, error) {
	email = strings.TrimSpace(email)
	name = strings.TrimSpace(name)
	if email == "" || password == "" {
		return nil, ErrValidation
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, ErrDuplicateUser
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, internalError("lookup user", err)
	}

	hash, err := hashPassword(password, s.cost)
	if err != nil {
		if errors.Is(err, ErrValidation) {
			return nil, err
		}
		return nil, internalError("hash password", err)
	}

	user := &domain.User{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
	}
	if _, err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrDuplicateUser
		}
		return nil, internalError("create user", err)
	}

	return sanitizeUser(user), nil
}

func (s *userService) Login(ctx context.Context, email, password string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return "", ErrValidation
	}
	if err := s.tokens.Ready(); err != nil {
		return "", err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			checkPassword(s.dummyHash, password)
			return "", ErrInvalidCredentials
		}
		return "", internalError("lookup user", err)
	}

	if !checkPassword(user.PasswordHash, password) {
		return "", ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		if errors.Is(err, ErrConfiguration) {
			return "", err
		}
		return "", internalError("issue token", err)
	}
	return token, nil
}

func sanitizeUser(user *domain.User) *domain.User {
	if user == nil {
		return nil
	}
	return &domain.User{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}

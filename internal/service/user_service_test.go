package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"local-market/internal/domain"
	"local-market/internal/repository"
)

// --- fakes ---

type fakeUserRepo struct {
	mu     sync.Mutex
	nextID int64
	byMail map[string]*domain.User

	getErr    error
	createErr error
	// when set, Create reports a uniqueness violation even though GetByEmail missed
	raceOnCreate bool
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byMail: make(map[string]*domain.User)}
}

func (f *fakeUserRepo) Init(context.Context) error { return nil }

func (f *fakeUserRepo) Create(_ context.Context, user *domain.User) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return 0, f.createErr
	}
	if f.raceOnCreate {
		return 0, fmt.Errorf("insert user: %w", repository.ErrDuplicate)
	}
	if _, ok := f.byMail[user.Email]; ok {
		return 0, fmt.Errorf("insert user: %w", repository.ErrDuplicate)
	}
	f.nextID++
	user.ID = f.nextID
	stored := *user
	f.byMail[user.Email] = &stored
	return user.ID, nil
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byMail[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func newTestUserService(repo repository.UserRepository, secret string) (UserService, TokenService) {
	tokens := NewTokenService(secret)
	return NewUserService(repo, tokens, bcrypt.MinCost), tokens
}

// --- signup ---

func TestSignup_Success(t *testing.T) {
	repo := newFakeUserRepo()
	svc, _ := newTestUserService(repo, "secret")

	user, err := svc.Signup(context.Background(), "  a@b.com ", "pw123456", " Ann ")
	require.NoError(t, err)
	assert.Equal(t, int64(1), user.ID)
	assert.Equal(t, "a@b.com", user.Email)
	assert.Equal(t, "Ann", user.Name)
	assert.Empty(t, user.PasswordHash, "hash must not leave the service")

	stored := repo.byMail["a@b.com"]
	require.NotNil(t, stored)
	assert.NotEqual(t, "pw123456", stored.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("pw123456")))
}

func TestSignup_MissingFields(t *testing.T) {
	svc, _ := newTestUserService(newFakeUserRepo(), "secret")

	cases := []struct{ email, password string }{
		{"", "pw"},
		{"a@b.com", ""},
		{"   ", "pw"},
		{"", ""},
	}
	for _, tc := range cases {
		_, err := svc.Signup(context.Background(), tc.email, tc.password, "")
		assert.ErrorIs(t, err, ErrValidation, "%q/%q", tc.email, tc.password)
	}
}

func TestSignup_PasswordTooLong(t *testing.T) {
	svc, _ := newTestUserService(newFakeUserRepo(), "secret")

	_, err := svc.Signup(context.Background(), "a@b.com", strings.Repeat("x", 73), "")
	assert.ErrorIs(t, err, ErrPasswordTooLong)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSignup_Duplicate(t *testing.T) {
	svc, _ := newTestUserService(newFakeUserRepo(), "secret")
	ctx := context.Background()

	_, err := svc.Signup(ctx, "a@b.com", "pw123456", "")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = svc.Signup(ctx, "a@b.com", "another-password", "")
		assert.ErrorIs(t, err, ErrDuplicateUser)
	}
}

func TestSignup_DuplicateDetectedByStore(t *testing.T) {
	repo := newFakeUserRepo()
	repo.raceOnCreate = true
	svc, _ := newTestUserService(repo, "secret")

	_, err := svc.Signup(context.Background(), "a@b.com", "pw123456", "")
	assert.ErrorIs(t, err, ErrDuplicateUser)
}

func TestSignup_ConcurrentSameEmail(t *testing.T) {
	svc, _ := newTestUserService(newFakeUserRepo(), "secret")

	const n = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		dup       int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Signup(context.Background(), "race@b.com", "pw123456", "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrDuplicateUser):
				dup++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, n-1, dup)
}

func TestSignup_StoreFailures(t *testing.T) {
	boom := errors.New("disk on fire")

	repo := newFakeUserRepo()
	repo.getErr = boom
	svc, _ := newTestUserService(repo, "secret")
	_, err := svc.Signup(context.Background(), "a@b.com", "pw123456", "")
	assert.ErrorIs(t, err, ErrInternal)
	assert.ErrorIs(t, err, boom)

	repo = newFakeUserRepo()
	repo.createErr = boom
	svc, _ = newTestUserService(repo, "secret")
	_, err = svc.Signup(context.Background(), "a@b.com", "pw123456", "")
	assert.ErrorIs(t, err, ErrInternal)
	assert.ErrorIs(t, err, boom)
}

// --- login ---

func TestLogin_Success(t *testing.T) {
	svc, tokens := newTestUserService(newFakeUserRepo(), "secret")
	ctx := context.Background()

	created, err := svc.Signup(ctx, "a@b.com", "pw123456", "")
	require.NoError(t, err)

	tok, err := svc.Login(ctx, "a@b.com", "pw123456")
	require.NoError(t, err)

	userID, err := tokens.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, created.ID, userID)
}

func TestLogin_UnknownEmailAndWrongPasswordAreIndistinguishable(t *testing.T) {
	svc, _ := newTestUserService(newFakeUserRepo(), "secret")
	ctx := context.Background()

	_, err := svc.Signup(ctx, "a@b.com", "pw123456", "")
	require.NoError(t, err)

	_, wrongPw := svc.Login(ctx, "a@b.com", "wrong-password")
	_, unknown := svc.Login(ctx, "nobody@b.com", "pw123456")

	require.Error(t, wrongPw)
	require.Error(t, unknown)
	assert.ErrorIs(t, wrongPw, ErrInvalidCredentials)
	assert.ErrorIs(t, unknown, ErrInvalidCredentials)
	assert.Equal(t, wrongPw.Error(), unknown.Error())
}

func TestLogin_MissingFields(t *testing.T) {
	svc, _ := newTestUserService(newFakeUserRepo(), "secret")

	_, err := svc.Login(context.Background(), "", "pw")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = svc.Login(context.Background(), "a@b.com", "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestLogin_MissingSecret(t *testing.T) {
	repo := newFakeUserRepo()
	svc, _ := newTestUserService(repo, "")
	ctx := context.Background()

	_, err := svc.Signup(ctx, "a@b.com", "pw123456", "")
	require.NoError(t, err)

	_, err = svc.Login(ctx, "a@b.com", "pw123456")
	assert.ErrorIs(t, err, ErrConfiguration)

	// credential validity is not revealed while misconfigured
	_, err = svc.Login(ctx, "a@b.com", "wrong")
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestLogin_StoreFailure(t *testing.T) {
	boom := errors.New("connection reset")
	repo := newFakeUserRepo()
	repo.getErr = boom
	svc, _ := newTestUserService(repo, "secret")

	_, err := svc.Login(context.Background(), "a@b.com", "pw123456")
	assert.ErrorIs(t, err, ErrInternal)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
}

// --- password helpers ---

func TestHashPassword_RoundTrip(t *testing.T) {
	passwords := []string{"pw123456", "p", "ünïcødé-пароль", strings.Repeat("z", 72)}
	for _, p := range passwords {
		hash, err := hashPassword(p, bcrypt.MinCost)
		require.NoError(t, err)
		assert.True(t, checkPassword(hash, p))
		assert.False(t, checkPassword(hash, p+"x"))
		assert.False(t, checkPassword(hash, ""))
	}
}

func TestHashPassword_FreshSalt(t *testing.T) {
	h1, err := hashPassword("same", bcrypt.MinCost)
	require.NoError(t, err)
	h2, err := hashPassword("same", bcrypt.MinCost)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestCheckPassword_BadHash(t *testing.T) {
	assert.False(t, checkPassword("", "pw"))
	assert.False(t, checkPassword("invalid-format", "pw"))
}

func TestNewUserService_DummyHashIsUsable(t *testing.T) {
	svc := NewUserService(newFakeUserRepo(), NewTokenService("secret"), 0).(*userService)

	cost, err := bcrypt.Cost([]byte(svc.dummyHash))
	require.NoError(t, err)
	assert.Equal(t, DefaultBcryptCost, cost)
	assert.False(t, checkPassword(svc.dummyHash, "pw123456"))
}

func TestNormalizeCost(t *testing.T) {
	assert.Equal(t, DefaultBcryptCost, normalizeCost(0))
	assert.Equal(t, DefaultBcryptCost, normalizeCost(99))
	assert.Equal(t, 12, normalizeCost(12))

	hash, err := hashPassword("pw", normalizeCost(0))
	require.NoError(t, err)
	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, 10, cost)
}

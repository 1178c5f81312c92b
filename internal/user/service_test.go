package user

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/nekogravitycat/bookshare-backend/internal/auth"
)

func newTestService() (Service, *MemoryRepository) {
	repo := NewMemoryRepository()
	return NewService(repo, auth.NewBcryptPasswordHasher(bcrypt.MinCost), nil), repo
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	u, err := svc.Register(ctx, "  Alice@Example.com ", "password123", " Alice ")
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.Equal(t, "Alice", u.Name())
	assert.NotEqual(t, "password123", u.PasswordHash)

	t.Run("Duplicate Email", func(t *testing.T) {
		_, err := svc.Register(ctx, "alice@example.com", "password123", "Other")
		assert.ErrorIs(t, err, ErrEmailAlreadyUsed)
	})

	t.Run("Short Password", func(t *testing.T) {
		_, err := svc.Register(ctx, "bob@example.com", "short", "Bob")
		assert.ErrorIs(t, err, ErrPasswordTooShort)
	})

	t.Run("Blank Email", func(t *testing.T) {
		_, err := svc.Register(ctx, "   ", "password123", "Bob")
		assert.ErrorIs(t, err, ErrEmailRequired)
	})

	t.Run("Name Falls Back To Email", func(t *testing.T) {
		u, err := svc.Register(ctx, "carol@example.com", "password123", "")
		require.NoError(t, err)
		assert.Equal(t, "carol@example.com", u.Name())
	})
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService()

	registered, err := svc.Register(ctx, "alice@example.com", "password123", "Alice")
	require.NoError(t, err)

	u, err := svc.Login(ctx, "ALICE@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, u.ID)
	require.NotNil(t, u.LastLoginAt)

	stored, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.LastLoginAt)

	_, err = svc.Login(ctx, "alice@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, "nobody@example.com", "password123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

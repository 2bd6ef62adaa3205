package services

import (
	"context"
	"errors"
	"testing"

	"marketchat/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryUsers struct {
	users   map[string]models.User
	failErr error
}

func (m *memoryUsers) Upsert(ctx context.Context, user *models.User) error {
	if m.failErr != nil {
		return m.failErr
	}
	m.users[user.ID] = *user
	return nil
}

func (m *memoryUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	if m.failErr != nil {
		return nil, m.failErr
	}
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func TestUserServiceSaveAndGet(t *testing.T) {
	svc := NewUserService(&memoryUsers{users: map[string]models.User{}})
	ctx := context.Background()

	require.NoError(t, svc.SaveUser(ctx, &models.User{ID: "u1", Name: "Sam", Email: "sam@example.com"}))

	user, err := svc.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Sam", user.Name)

	_, err = svc.GetUser(ctx, "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserServiceValidation(t *testing.T) {
	svc := NewUserService(&memoryUsers{users: map[string]models.User{}})
	ctx := context.Background()

	_, err := svc.GetUser(ctx, "a-b")
	assert.ErrorIs(t, err, ErrInvalidUserID)

	assert.ErrorIs(t, svc.SaveUser(ctx, &models.User{ID: "", Name: "x", Email: "x@example.com"}), ErrInvalidUserID)
	assert.Error(t, svc.SaveUser(ctx, &models.User{ID: "u2", Name: " ", Email: "x@example.com"}))
}

func TestUserServiceWrapsStoreErrors(t *testing.T) {
	boom := errors.New("connection refused")
	svc := NewUserService(&memoryUsers{failErr: boom})

	_, err := svc.GetUser(context.Background(), "u1")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrUserNotFound)

	err = svc.SaveUser(context.Background(), &models.User{ID: "u1", Name: "Sam", Email: "sam@example.com"})
	assert.ErrorIs(t, err, boom)
}

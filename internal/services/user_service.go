package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"marketchat/internal/conversation"
	"marketchat/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// UserStore keeps participant profiles. FindByID returns ErrUserNotFound for
// unknown ids.
type UserStore interface {
	Upsert(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type UserService struct {
	store UserStore
}

func NewUserService(store UserStore) *UserService {
	return &UserService{store: store}
}

func (s *UserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	if !conversation.ValidUserID(id) {
		return nil, ErrInvalidUserID
	}
	user, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}

// SaveUser creates or replaces a profile.
func (s *UserService) SaveUser(ctx context.Context, user *models.User) error {
	if !conversation.ValidUserID(user.ID) {
		return ErrInvalidUserID
	}
	if strings.TrimSpace(user.Name) == "" || strings.TrimSpace(user.Email) == "" {
		return errors.New("name and email are required")
	}
	if err := s.store.Upsert(ctx, user); err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

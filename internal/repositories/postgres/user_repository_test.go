package postgres

import (
	"context"
	"testing"

	"marketchat/internal/database"
	"marketchat/internal/models"
	"marketchat/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRepositoryUpsert(t *testing.T) {
	db, err := database.NewSQLiteConnection(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	repo := NewUserRepository(db)
	ctx := context.Background()

	_, err = repo.FindByID(ctx, "seller")
	assert.ErrorIs(t, err, services.ErrUserNotFound)

	require.NoError(t, repo.Upsert(ctx, &models.User{ID: "seller", Name: "Sam", Email: "sam@cars.test"}))
	require.NoError(t, repo.Upsert(ctx, &models.User{ID: "seller", Name: "Samuel", Email: "sam@cars.test", Phone: "555"}))

	user, err := repo.FindByID(ctx, "seller")
	require.NoError(t, err)
	assert.Equal(t, "Samuel", user.Name)
	assert.Equal(t, "555", user.Phone)
}

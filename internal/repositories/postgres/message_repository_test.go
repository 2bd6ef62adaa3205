package postgres

import (
	"context"
	"testing"

	"marketchat/internal/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestRepository(t *testing.T) *MessageRepository {
	t.Helper()

	db, err := database.NewSQLiteConnection(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return NewMessageRepository(db)
}

func TestMessageRepositoryCreate(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	msg, err := repo.Create(ctx, "u1", "u2", "hi")
	require.NoError(t, err)

	assert.Len(t, msg.ID, 26)
	assert.False(t, msg.CreatedAt.IsZero())
	assert.False(t, msg.IsRead)

	stored, err := repo.FindByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "u1", stored.SenderID)
	assert.Equal(t, "u2", stored.ReceiverID)
	assert.Equal(t, "hi", stored.Content)
	assert.False(t, stored.IsRead)
}

func TestMessageRepositoryFindByIDMissing(t *testing.T) {
	repo := newTestRepository(t)

	msg, err := repo.FindByID(context.Background(), "01HZZZZZZZZZZZZZZZZZZZZZZZ")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.Nil(t, msg)
}

func TestMessageRepositoryListBetweenIsOrderedAndSymmetric(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.Create(ctx, "u1", "u2", "first")
	require.NoError(t, err)
	_, err = repo.Create(ctx, "u2", "u1", "second")
	require.NoError(t, err)
	_, err = repo.Create(ctx, "u1", "u3", "elsewhere")
	require.NoError(t, err)
	_, err = repo.Create(ctx, "u1", "u2", "third")
	require.NoError(t, err)

	fromU1, err := repo.ListBetween(ctx, "u1", "u2")
	require.NoError(t, err)
	fromU2, err := repo.ListBetween(ctx, "u2", "u1")
	require.NoError(t, err)

	require.Len(t, fromU1, 3)
	var contents []string
	for _, m := range fromU1 {
		contents = append(contents, m.Content)
	}
	assert.Equal(t, []string{"first", "second", "third"}, contents)

	require.Len(t, fromU2, 3)
	for i := range fromU1 {
		assert.Equal(t, fromU1[i].ID, fromU2[i].ID)
	}
}

func TestMessageRepositoryListBetweenEmpty(t *testing.T) {
	repo := newTestRepository(t)

	msgs, err := repo.ListBetween(context.Background(), "nobody", "else")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestMessageRepositoryMarkRead(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.Create(ctx, "u1", "u2", "a")
	require.NoError(t, err)
	_, err = repo.Create(ctx, "u1", "u2", "b")
	require.NoError(t, err)
	_, err = repo.Create(ctx, "u2", "u1", "reply")
	require.NoError(t, err)

	unread, err := repo.CountUnread(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), unread)

	n, err := repo.MarkRead(ctx, "u1", "u2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// Already read messages are not touched again.
	n, err = repo.MarkRead(ctx, "u1", "u2")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	msgs, err := repo.ListBetween(ctx, "u1", "u2")
	require.NoError(t, err)
	for _, m := range msgs {
		if m.SenderID == "u1" {
			assert.True(t, m.IsRead, m.Content)
		} else {
			assert.False(t, m.IsRead, m.Content)
		}
	}

	unread, err = repo.CountUnread(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)
}

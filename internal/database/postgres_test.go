package database

import (
	"bytes"
	"fmt"
	"testing"

	"marketchat/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type captureWriter struct {
	buf bytes.Buffer
}

func (w *captureWriter) Printf(format string, args ...interface{}) {
	fmt.Fprintf(&w.buf, format, args...)
}

func TestGormLoggerIgnoresRecordNotFound(t *testing.T) {
	out := &captureWriter{}
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: newGormLogger(out)})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	var user models.User
	err = db.First(&user, "id = ?", "ghost").Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.Empty(t, out.buf.String())

	err = db.Table("no_such_table").First(&user).Error
	assert.Error(t, err)
	assert.Contains(t, out.buf.String(), "no_such_table")
}

func TestNewSQLiteConnection(t *testing.T) {
	db, err := NewSQLiteConnection(":memory:")
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	assert.True(t, db.Migrator().HasTable(&models.Message{}))
	assert.True(t, db.Migrator().HasTable(&models.User{}))
}

package database

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"marketchat/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newGormLogger reports slow queries and failures. Unknown ids are an
// expected outcome of user lookups, so record-not-found stays quiet.
func newGormLogger(w logger.Writer) logger.Interface {
	return logger.New(w, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		SkipDefaultTransaction:                   true, // Single statement writes only
		AllowGlobalUpdate:                        false,
		Logger:                                   newGormLogger(log.New(os.Stdout, "\r\n", log.LstdFlags)),
	}
}

func NewPostgresConnection(dburi string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dburi), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)

	return db, nil
}

// NewSQLiteConnection opens a sqlite database. Use ":memory:" for an
// ephemeral store.
func NewSQLiteConnection(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// sqlite allows a single writer; an in-memory database also only lives
	// as long as its one connection.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	return db, nil
}

// Migrate creates or updates the message and user schema.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(&models.Message{}, &models.User{})
	if err != nil {
		if strings.Contains(err.Error(), "already exists") {
			slog.Warn("Tables already exist, continuing with existing schema")
			return nil
		}
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

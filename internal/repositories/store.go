// Package repositories selects the message store backend.
package repositories

import (
	"context"
	"fmt"
	"log/slog"

	"marketchat/internal/config"
	"marketchat/internal/database"
	"marketchat/internal/repositories/mongodb"
	"marketchat/internal/repositories/postgres"
	"marketchat/internal/services"
)

// Store is an opened message store, the user directory on the same
// backend, and their release function.
type Store struct {
	services.MessageStore
	Users services.UserStore
	Close func(ctx context.Context) error
}

// Open connects to the backend named by cfg.Driver. When migrate is true the
// schema or indexes are created first.
func Open(ctx context.Context, cfg config.StoreConfig, migrate bool) (*Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres, config.DriverSQLite:
		open := database.NewPostgresConnection
		dsn := cfg.DatabaseURL
		if cfg.Driver == config.DriverSQLite {
			open = database.NewSQLiteConnection
			dsn = cfg.SQLitePath
		}

		db, err := open(dsn)
		if err != nil {
			return nil, err
		}
		if migrate {
			if err := database.Migrate(db); err != nil {
				return nil, err
			}
		}
		slog.Info("Message store ready", "driver", cfg.Driver)

		return &Store{
			MessageStore: postgres.NewMessageRepository(db),
			Users:        postgres.NewUserRepository(db),
			Close: func(context.Context) error {
				sqlDB, err := db.DB()
				if err != nil {
					return err
				}
				return sqlDB.Close()
			},
		}, nil

	case config.DriverMongo:
		db, err := database.NewMongoConnection(cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, err
		}
		repo := mongodb.NewMessageRepository(db)
		if migrate {
			if err := repo.EnsureIndexes(ctx); err != nil {
				_ = db.Close(ctx)
				return nil, fmt.Errorf("failed to create indexes: %w", err)
			}
		}
		slog.Info("Message store ready", "driver", cfg.Driver, "database", cfg.MongoDB)

		return &Store{MessageStore: repo, Users: mongodb.NewUserRepository(db), Close: db.Close}, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

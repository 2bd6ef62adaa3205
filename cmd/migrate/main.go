package main

import (
	"context"
	"log"
	"log/slog"
	"time"

	"marketchat/internal/config"
	"marketchat/internal/repositories"
	"marketchat/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.New(cfg.Log.Level, cfg.Log.Format)

	slog.Info("Starting database migration...", "driver", cfg.Store.Driver)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	store, err := repositories.Open(ctx, cfg.Store, true)
	if err != nil {
		log.Fatal("Failed to migrate message store:", err)
	}
	if err := store.Close(ctx); err != nil {
		slog.Warn("Failed to close message store", "error", err)
	}

	slog.Info("Database migration completed successfully!")
}

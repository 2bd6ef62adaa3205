package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"time"

	"marketchat/internal/auth"
	"marketchat/internal/config"
	"marketchat/internal/models"
	"marketchat/internal/repositories"
	"marketchat/internal/services"
	"marketchat/pkg/logger"
)

var demoUsers = []models.User{
	{ID: "65a1f0c2e4b0a1b2c3d4e501", Name: "Alice Buyer", Email: "alice@cars.test", Phone: "+1 555 0101"},
	{ID: "65a1f0c2e4b0a1b2c3d4e502", Name: "Bob Seller", Email: "bob@cars.test", Phone: "+1 555 0102"},
	{ID: "65a1f0c2e4b0a1b2c3d4e503", Name: "Charlie Dealer", Email: "charlie@cars.test"},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.New(cfg.Log.Level, cfg.Log.Format)

	slog.Info("Starting database seeding...", "driver", cfg.Store.Driver)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	store, err := repositories.Open(ctx, cfg.Store, true)
	if err != nil {
		log.Fatal("Failed to open message store:", err)
	}
	defer store.Close(ctx)

	users := services.NewUserService(store.Users)
	for i := range demoUsers {
		if err := users.SaveUser(ctx, &demoUsers[i]); err != nil {
			slog.Warn("Failed to save user", "email", demoUsers[i].Email, "error", err)
			continue
		}
		slog.Info("Saved user", "id", demoUsers[i].ID, "name", demoUsers[i].Name)
	}

	// Realtime delivery is not running while seeding.
	chat := services.NewChatService(store, nil, nil)
	alice, bob := demoUsers[0], demoUsers[1]
	conversation := []services.SendInput{
		{SenderID: alice.ID, ReceiverID: bob.ID, Content: "Hi! Is the 2018 Civic still available?"},
		{SenderID: bob.ID, ReceiverID: alice.ID, Content: "It is. Would you like to see it this weekend?"},
		{SenderID: alice.ID, ReceiverID: bob.ID, Content: "Saturday morning works for me."},
	}
	for _, in := range conversation {
		if _, err := chat.SendMessage(ctx, in); err != nil {
			slog.Warn("Failed to create message", "error", err)
		}
	}

	tokens := auth.NewAuthService(cfg.JWT.Secret, cfg.JWT.ExpirationTime)
	for _, u := range demoUsers {
		token, err := tokens.IssueToken(u.ID)
		if err != nil {
			slog.Warn("Failed to issue token", "userID", u.ID, "error", err)
			continue
		}
		fmt.Printf("%s\t%s\t%s\n", u.Name, u.ID, token)
	}

	slog.Info("Database seeding completed successfully!")
}

package main

// @title           Marketplace Chat API
// @version         1.0
// @description     Direct messaging between marketplace buyers and sellers
// @host            localhost:8080
// @BasePath        /api/v1
// @schemes         http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketchat/internal/adapters/kafka"
	"marketchat/internal/api/routes"
	"marketchat/internal/auth"
	"marketchat/internal/config"
	"marketchat/internal/database"
	"marketchat/internal/repositories"
	"marketchat/internal/services"
	"marketchat/internal/websocket"
	"marketchat/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.New(cfg.Log.Level, cfg.Log.Format)
	slog.Info("Starting chat server", "store", cfg.Store.Driver)

	ctx := context.Background()

	store, err := repositories.Open(ctx, cfg.Store, true)
	if err != nil {
		slog.Error("Failed to open message store", "error", err)
		os.Exit(1)
	}

	// Redis is optional: presence and rate limiting are skipped without it.
	var (
		redisService *services.RedisService
		presence     websocket.PresenceTracker
	)
	if cfg.Redis.URL != "" {
		redisClient, err := database.NewRedisConnection(cfg.Redis.URL)
		if err != nil {
			slog.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()

		redisService = services.NewRedisService(redisClient)
		if err := redisService.ClearPresence(ctx); err != nil {
			slog.Warn("Failed to reset presence", "error", err)
		}
		presence = redisService
	}

	var events services.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.InitKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			slog.Error("Failed to create Kafka producer", "error", err)
			os.Exit(1)
		}
		publisher := kafka.NewPublisher(producer, cfg.Kafka.Topic)
		defer publisher.Close()
		events = publisher
		slog.Info("Publishing message events", "topic", cfg.Kafka.Topic)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	hub := websocket.NewHub(websocket.HubOptions{
		Logger:     slog.Default(),
		Presence:   presence,
		Metrics:    websocket.NewMetrics(reg),
		SendBuffer: cfg.WebSocket.SendBuffer,
	})
	go hub.Run()

	chatService := services.NewChatService(store, hub, events)

	router := routes.NewRouter(routes.Deps{
		Hub:            hub,
		ChatService:    chatService,
		UserService:    services.NewUserService(store.Users),
		Auth:           auth.NewAuthService(cfg.JWT.Secret, cfg.JWT.ExpirationTime),
		Redis:          redisService,
		Gatherer:       reg,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequireWSAuth:  cfg.WebSocket.RequireAuth,
		AccessLog:      true,
	})
	router.SetupRoutes()

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router.GetEngine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("Server starting", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Server shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop the hub first so open websockets get a close frame.
	hub.Stop()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	if err := store.Close(shutdownCtx); err != nil {
		slog.Error("Failed to close message store", "error", err)
	}

	slog.Info("Server stopped")
}

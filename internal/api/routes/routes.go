package routes

import (
	"net/http"
	"time"

	"marketchat/internal/api/handlers"
	"marketchat/internal/api/middleware"
	"marketchat/internal/auth"
	"marketchat/internal/services"
	"marketchat/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Deps carries what the router needs. UserService, Redis and Gatherer are
// optional.
type Deps struct {
	Hub            *websocket.Hub
	ChatService    *services.ChatService
	UserService    *services.UserService
	Auth           *auth.AuthService
	Redis          *services.RedisService
	Gatherer       prometheus.Gatherer
	AllowedOrigins []string
	RequireWSAuth  bool
	AccessLog      bool
}

type Router struct {
	engine          *gin.Engine
	wsHandler       *handlers.WSHandler
	chatHandler     *handlers.ChatHandler
	presenceHandler *handlers.PresenceHandler
	userHandler     *handlers.UserHandler
	rateLimitMW     *middleware.RateLimitMiddleware
	authMW          *middleware.AuthMiddleware
	hub             *websocket.Hub
	gatherer        prometheus.Gatherer
}

func NewRouter(deps Deps) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(deps.AllowedOrigins))
	if deps.AccessLog {
		engine.Use(middleware.LogApi())
	}

	// Interfaces only get the Redis service when it exists.
	var (
		limiter  middleware.RateLimiter
		lastSeen handlers.LastSeenStore
	)
	if deps.Redis != nil {
		limiter = deps.Redis
		lastSeen = deps.Redis
	}

	upgrader := websocket.NewUpgrader(deps.AllowedOrigins)

	return &Router{
		engine:          engine,
		wsHandler:       handlers.NewWSHandler(deps.Hub, upgrader, deps.ChatService, deps.Auth, deps.RequireWSAuth),
		chatHandler:     handlers.NewChatHandler(deps.ChatService),
		presenceHandler: handlers.NewPresenceHandler(deps.Hub, lastSeen),
		userHandler:     handlers.NewUserHandler(deps.UserService),
		rateLimitMW:     middleware.NewRateLimitMiddleware(limiter),
		authMW:          middleware.NewAuthMiddleware(deps.Auth),
		hub:             deps.Hub,
		gatherer:        deps.Gatherer,
	}
}

func (r *Router) SetupRoutes() {
	r.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "hub": r.hub.Stats()})
	})
	if r.gatherer != nil {
		r.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})))
	}
	r.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := r.engine.Group("/api/v1")

	api.GET("/ws",
		r.rateLimitMW.RateLimitIP(30, time.Minute), // 30 connections per minute per IP
		r.wsHandler.HandleWebSocket,
	)

	// Authenticated routes
	authed := api.Group("/")
	authed.Use(r.authMW.RequireAuth())
	{
		messages := authed.Group("/messages")
		messages.Use(r.rateLimitMW.RateLimit(200, time.Minute)) // 200 requests per minute
		{
			messages.POST("", r.chatHandler.SendMessage)
			messages.GET("/:otherUserId", r.chatHandler.GetConversation)
			messages.PUT("/:otherUserId/read", r.chatHandler.MarkAsRead)
		}

		authed.GET("/unread", r.chatHandler.GetUnreadCount)
		authed.GET("/presence/:userId", r.presenceHandler.GetPresence)
		authed.GET("/auth/user/:id", r.userHandler.GetUser)
	}
}

func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}

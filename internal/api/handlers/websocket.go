package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"marketchat/internal/auth"
	"marketchat/internal/websocket"
	"marketchat/pkg/response"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
)

type WSHandler struct {
	hub         *websocket.Hub
	upgrader    *gorillaws.Upgrader
	sender      websocket.MessageSender
	auth        *auth.AuthService
	requireAuth bool
}

func NewWSHandler(hub *websocket.Hub, upgrader *gorillaws.Upgrader, sender websocket.MessageSender, authService *auth.AuthService, requireAuth bool) *WSHandler {
	return &WSHandler{
		hub:         hub,
		upgrader:    upgrader,
		sender:      sender,
		auth:        authService,
		requireAuth: requireAuth,
	}
}

// HandleWebSocket godoc
// @Summary WebSocket connection
// @Description Establish a WebSocket connection for realtime messaging. A token binds the connection to its user; without one the connection identifies itself with register-user.
// @Tags websocket
// @Param token query string false "JWT access token"
// @Success 101 "Switching Protocols - WebSocket connection established"
// @Failure 401 {object} models.ErrorResponse "Unauthorized - invalid or missing token"
// @Router /ws [get]
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	}

	var userID string
	switch {
	case token != "":
		id, err := h.auth.ParseToken(token)
		if err != nil {
			slog.Debug("WebSocket connection rejected", "error", err)
			response.Error(c, http.StatusUnauthorized, "invalid token")
			return
		}
		userID = id
	case h.requireAuth:
		response.Error(c, http.StatusUnauthorized, "token is required")
		return
	}

	websocket.ServeWS(h.hub, h.upgrader, h.sender, c.Writer, c.Request, userID)
}

package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"marketchat/internal/conversation"
	"marketchat/internal/models"
	"marketchat/pkg/response"

	"github.com/gin-gonic/gin"
)

// OnlineChecker answers from the live connection registry.
type OnlineChecker interface {
	IsOnline(userID string) bool
}

// LastSeenStore is optional and backed by Redis.
type LastSeenStore interface {
	LastSeen(ctx context.Context, userID string) (time.Time, bool, error)
}

type PresenceHandler struct {
	online   OnlineChecker
	lastSeen LastSeenStore
}

func NewPresenceHandler(online OnlineChecker, lastSeen LastSeenStore) *PresenceHandler {
	return &PresenceHandler{online: online, lastSeen: lastSeen}
}

// GetPresence godoc
// @Summary Get user presence
// @Description Report whether a user has at least one live connection
// @Tags presence
// @Produce json
// @Security BearerAuth
// @Param userId path string true "User ID"
// @Success 200 {object} models.APIResponse{data=models.PresenceResponse} "Presence"
// @Failure 400 {object} models.ErrorResponse "Invalid user id"
// @Failure 401 {object} models.ErrorResponse "Unauthorized - invalid or missing token"
// @Router /presence/{userId} [get]
func (h *PresenceHandler) GetPresence(c *gin.Context) {
	userID := c.Param("userId")
	if !conversation.ValidUserID(userID) {
		response.Error(c, http.StatusBadRequest, "invalid user id")
		return
	}

	resp := models.PresenceResponse{
		UserID: userID,
		Online: h.online.IsOnline(userID),
	}

	if h.lastSeen != nil {
		seen, ok, err := h.lastSeen.LastSeen(c.Request.Context(), userID)
		if err != nil {
			slog.Warn("Failed to read last seen", "userID", userID, "error", err)
		} else if ok {
			resp.LastSeen = &seen
		}
	}

	response.Success(c, http.StatusOK, "Presence retrieved", resp)
}

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"marketchat/internal/api/middleware"
	"marketchat/internal/models"
	"marketchat/internal/services"
	"marketchat/pkg/response"

	"github.com/gin-gonic/gin"
)

type ChatHandler struct {
	chatService *services.ChatService
}

func NewChatHandler(chatService *services.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// GetConversation godoc
// @Summary Get a conversation
// @Description Get every message exchanged between the current user and another user, oldest first
// @Tags messages
// @Produce json
// @Security BearerAuth
// @Param otherUserId path string true "Other user ID"
// @Success 200 {object} models.APIResponse{data=models.MessagesResponse} "Conversation messages"
// @Failure 400 {object} models.ErrorResponse "Invalid user id"
// @Failure 401 {object} models.ErrorResponse "Unauthorized - invalid or missing token"
// @Failure 500 {object} models.ErrorResponse "Internal server error"
// @Router /messages/{otherUserId} [get]
func (h *ChatHandler) GetConversation(c *gin.Context) {
	userID := middleware.UserID(c)

	msgs, err := h.chatService.History(c.Request.Context(), userID, c.Param("otherUserId"))
	if err != nil {
		h.writeError(c, err, "Failed to load messages")
		return
	}

	response.Success(c, http.StatusOK, "Messages retrieved", models.MessagesResponse{Messages: msgs})
}

// SendMessage godoc
// @Summary Send a message
// @Description Store a message and deliver it to connected clients
// @Tags messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.SendMessageRequest true "Message"
// @Success 201 {object} models.APIResponse{data=models.MessageResponse} "Stored message"
// @Failure 400 {object} models.ErrorResponse "Bad request - invalid input data"
// @Failure 401 {object} models.ErrorResponse "Unauthorized - invalid or missing token"
// @Failure 500 {object} models.ErrorResponse "Internal server error"
// @Router /messages [post]
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req models.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "Invalid input data")
		return
	}

	msg, err := h.chatService.SendMessage(c.Request.Context(), services.SendInput{
		SenderID:   middleware.UserID(c),
		ReceiverID: req.ReceiverID,
		SenderName: req.SenderName,
		Content:    req.Content,
	})
	if err != nil {
		h.writeError(c, err, "Failed to send message")
		return
	}

	response.Success(c, http.StatusCreated, "Message sent", models.MessageResponse{Message: msg})
}

// MarkAsRead godoc
// @Summary Mark a conversation as read
// @Description Mark every message the other user sent to the current user as read
// @Tags messages
// @Produce json
// @Security BearerAuth
// @Param otherUserId path string true "Other user ID"
// @Success 200 {object} models.APIResponse{data=models.MarkReadResponse} "Number of messages updated"
// @Failure 400 {object} models.ErrorResponse "Invalid user id"
// @Failure 401 {object} models.ErrorResponse "Unauthorized - invalid or missing token"
// @Failure 500 {object} models.ErrorResponse "Internal server error"
// @Router /messages/{otherUserId}/read [put]
func (h *ChatHandler) MarkAsRead(c *gin.Context) {
	n, err := h.chatService.MarkConversationRead(c.Request.Context(), middleware.UserID(c), c.Param("otherUserId"))
	if err != nil {
		h.writeError(c, err, "Failed to mark messages as read")
		return
	}

	response.Success(c, http.StatusOK, "Messages marked as read", models.MarkReadResponse{Updated: n})
}

// GetUnreadCount godoc
// @Summary Count unread messages
// @Description Count messages addressed to the current user that are not read yet
// @Tags messages
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.APIResponse{data=models.UnreadCountResponse} "Unread count"
// @Failure 401 {object} models.ErrorResponse "Unauthorized - invalid or missing token"
// @Failure 500 {object} models.ErrorResponse "Internal server error"
// @Router /unread [get]
func (h *ChatHandler) GetUnreadCount(c *gin.Context) {
	n, err := h.chatService.UnreadCount(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		h.writeError(c, err, "Failed to count unread messages")
		return
	}

	response.Success(c, http.StatusOK, "Unread count retrieved", models.UnreadCountResponse{Count: n})
}

func (h *ChatHandler) writeError(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, services.ErrInvalidUserID), errors.Is(err, services.ErrEmptyContent):
		response.Error(c, http.StatusBadRequest, err.Error())
	default:
		slog.Error(message, "path", c.FullPath(), "userID", middleware.UserID(c), "error", err)
		response.Error(c, http.StatusInternalServerError, message)
	}
}

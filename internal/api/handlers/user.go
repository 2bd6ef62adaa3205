package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"marketchat/internal/models"
	"marketchat/internal/services"
	"marketchat/pkg/response"

	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	userService *services.UserService
}

func NewUserHandler(userService *services.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// GetUser godoc
// @Summary Get a user profile
// @Description Public profile shown next to a conversation
// @Tags users
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Success 200 {object} models.APIResponse{data=models.UserResponse} "User profile"
// @Failure 400 {object} models.ErrorResponse "Invalid user id"
// @Failure 404 {object} models.ErrorResponse "User not found"
// @Router /auth/user/{id} [get]
func (h *UserHandler) GetUser(c *gin.Context) {
	if h.userService == nil {
		response.Error(c, http.StatusNotFound, services.ErrUserNotFound.Error())
		return
	}

	user, err := h.userService.GetUser(c.Request.Context(), c.Param("id"))
	switch {
	case err == nil:
		response.Success(c, http.StatusOK, "User retrieved", models.UserResponse{User: user})
	case errors.Is(err, services.ErrInvalidUserID):
		response.Error(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrUserNotFound):
		response.Error(c, http.StatusNotFound, err.Error())
	default:
		slog.Error("Failed to load user", "userID", c.Param("id"), "error", err)
		response.Error(c, http.StatusInternalServerError, "Failed to load user")
	}
}

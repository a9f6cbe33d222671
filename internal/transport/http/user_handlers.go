package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/lojistavip/vipchat-server/internal/store"
)

// UserHandlers provides HTTP handlers for the user directory, which
// clients use to pick a peer for a direct channel.
type UserHandlers struct {
	store store.UserStore
	log   *zerolog.Logger
}

// NewUserHandlers creates a new user handlers instance.
func NewUserHandlers(st store.UserStore, logger *zerolog.Logger) *UserHandlers {
	return &UserHandlers{
		store: st,
		log:   logger,
	}
}

// UserResponse represents a user in API responses. The ID is the
// participant id to address direct messages to.
type UserResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Search handles searching for users.
// GET /api/users?q=query
func (h *UserHandlers) Search(c *gin.Context) {
	trimmed := strings.TrimSpace(c.Query("q"))
	if len(trimmed) < 2 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "search query must be at least 2 characters"})
		return
	}

	// Current user is excluded from results: you cannot open a direct
	// channel with yourself.
	uid, ok := currentUserID(c)
	if !ok {
		h.log.Error().Msg("user_id not found in context")
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	users, err := h.store.SearchUsers(c.Request.Context(), trimmed)
	if err != nil {
		h.log.Error().Err(err).Str("query", trimmed).Msg("failed to search users")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]UserResponse, 0)
	for _, u := range users {
		if u.ID == uid {
			continue
		}
		response = append(response, UserResponse{
			ID:       u.ID,
			Username: u.Username,
		})
	}

	c.JSON(http.StatusOK, response)
}

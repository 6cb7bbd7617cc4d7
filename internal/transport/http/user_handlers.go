package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/awayrelay/internal/store"
)

const maxConversationLimit = 200

// UserHandlers provides HTTP handlers for the user directory and message history.
type UserHandlers struct {
	store    store.Store
	presence store.PresenceStore
	log      *zerolog.Logger
}

// NewUserHandlers creates a new user handlers instance.
func NewUserHandlers(st store.Store, presence store.PresenceStore, logger *zerolog.Logger) *UserHandlers {
	if presence == nil {
		presence = st
	}
	return &UserHandlers{
		store:    st,
		presence: presence,
		log:      logger,
	}
}

// UserResponse represents a user in API responses.
type UserResponse struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Status   string `json:"status"`
}

// UserListResponse wraps the user directory.
type UserListResponse struct {
	Users []UserResponse `json:"users"`
}

// MessageResponse is one persisted message.
type MessageResponse struct {
	ID        int64  `json:"id"`
	Sender    string `json:"sender"`
	Receiver  string `json:"receiver"`
	Message   string `json:"message"`
	CreatedAt int64  `json:"created_at"`
}

// ConversationResponse wraps a conversation page, oldest first.
type ConversationResponse struct {
	Messages []MessageResponse `json:"messages"`
}

// ListUsers returns every registered user with their current status.
// GET /api/users
func (h *UserHandlers) ListUsers(c *gin.Context) {
	ctx := c.Request.Context()

	users, err := h.store.ListUsers(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list users")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	names := make([]string, 0, len(users))
	for _, u := range users {
		names = append(names, u.Username)
	}
	statuses, err := h.presence.Statuses(ctx, names)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to read presence")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := UserListResponse{Users: make([]UserResponse, 0, len(users))}
	for _, u := range users {
		status, ok := statuses[u.Username]
		if !ok {
			status = store.StatusBusy
		}
		response.Users = append(response.Users, UserResponse{
			Username: u.Username,
			Email:    u.Email,
			Status:   string(status),
		})
	}

	c.JSON(http.StatusOK, response)
}

// ListConversation returns persisted messages between the caller and peer.
// GET /api/messages/:peer?limit=50
func (h *UserHandlers) ListConversation(c *gin.Context) {
	username, ok := usernameFrom(c)
	if !ok {
		h.log.Error().Msg("username not found in context")
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "authentication failed"})
		return
	}

	peer := strings.TrimSpace(c.Param("peer"))
	if peer == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "peer is required"})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxConversationLimit {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be between 1 and 200"})
			return
		}
		limit = n
	}

	messages, err := h.store.ListConversation(c.Request.Context(), username, peer, limit)
	if err != nil {
		h.log.Error().Err(err).Str("username", username).Str("peer", peer).Msg("failed to list conversation")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := ConversationResponse{Messages: make([]MessageResponse, 0, len(messages))}
	for _, m := range messages {
		response.Messages = append(response.Messages, MessageResponse{
			ID:        m.ID,
			Sender:    m.Sender,
			Receiver:  m.Receiver,
			Message:   m.Body,
			CreatedAt: m.CreatedAt.Unix(),
		})
	}

	c.JSON(http.StatusOK, response)
}

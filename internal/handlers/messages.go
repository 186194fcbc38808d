package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"chat-sync/internal/hub"
	"chat-sync/internal/models"
	"chat-sync/internal/repositories"
	"chat-sync/internal/telemetry"
)

// MessageHandler manages message history and creation endpoints.
type MessageHandler struct {
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	hub           *hub.Hub
	audit         *telemetry.AuditEmitter
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(conversations repositories.ConversationRepository, messages repositories.MessageRepository, h *hub.Hub, audit *telemetry.AuditEmitter) *MessageHandler {
	return &MessageHandler{conversations: conversations, messages: messages, hub: h, audit: audit}
}

// GetMessages returns one history page for a conversation: up to limit
// messages strictly older than the before cursor, oldest first.
func (h *MessageHandler) GetMessages(c *gin.Context) {
	conversationID := c.Param("conversation_id")
	userID := userIDFromContext(c)

	member, err := h.conversations.IsParticipant(c.Request.Context(), conversationID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a conversation member"})
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 200 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	var before time.Time
	if raw := c.Query("before"); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid before cursor"})
			return
		}
		before = parsed
	}

	msgs, err := h.messages.Page(c.Request.Context(), conversationID, before, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostMessage stores a message and fans it out to the conversation room. The
// response carries the stored message with its server-assigned id so the
// sender can reconcile its optimistic entry.
func (h *MessageHandler) PostMessage(c *gin.Context) {
	conversationID := c.Param("conversation_id")
	userID := userIDFromContext(c)

	var req struct {
		Content    string             `json:"content" binding:"required"`
		Type       models.MessageType `json:"type"`
		SenderName string             `json:"sender_name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Type == "" {
		req.Type = models.MessageText
	}
	switch req.Type {
	case models.MessageText, models.MessageImage, models.MessageFile:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message type"})
		return
	}

	member, err := h.conversations.IsParticipant(c.Request.Context(), conversationID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a conversation member"})
		return
	}

	msg, err := h.messages.Create(c.Request.Context(), models.Message{
		ConversationID: conversationID,
		SenderID:       userID,
		SenderName:     req.SenderName,
		Content:        req.Content,
		Type:           req.Type,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store message"})
		return
	}

	h.hub.BroadcastNewMessage(conversationID, msg)

	h.audit.Emit(c.Request.Context(), "info",
		fmt.Sprintf("message %s posted to conversation %s", msg.ID, conversationID),
		requestIDFromContext(c), userID)

	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

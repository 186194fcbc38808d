package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-sync/internal/models"
	"chat-sync/internal/repositories"
	"chat-sync/internal/telemetry"
)

// ConversationHandler manages conversation endpoints.
type ConversationHandler struct {
	conversations repositories.ConversationRepository
	audit         *telemetry.AuditEmitter
}

// NewConversationHandler builds a ConversationHandler.
func NewConversationHandler(conversations repositories.ConversationRepository, audit *telemetry.AuditEmitter) *ConversationHandler {
	return &ConversationHandler{conversations: conversations, audit: audit}
}

// ListConversations returns the caller's conversations as list summaries,
// newest activity first.
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	userID := userIDFromContext(c)

	summaries, err := h.conversations.ListForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversations"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversations": summaries})
}

// StartConversation creates a direct or group conversation including the
// caller.
func (h *ConversationHandler) StartConversation(c *gin.Context) {
	var req struct {
		Kind         models.ConversationKind `json:"kind"`
		Name         string                  `json:"name"`
		Participants []models.Participant    `json:"participants" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := userIDFromContext(c)
	if req.Kind == "" {
		req.Kind = models.ConversationDirect
	}
	if req.Kind != models.ConversationDirect && req.Kind != models.ConversationGroup {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation kind"})
		return
	}

	participants := req.Participants
	callerIncluded := false
	for _, p := range participants {
		if p.UserID == userID {
			callerIncluded = true
			break
		}
	}
	if !callerIncluded {
		participants = append(participants, models.Participant{UserID: userID})
	}
	if req.Kind == models.ConversationDirect && len(participants) != 2 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "direct conversations need exactly two participants"})
		return
	}

	conv, err := h.conversations.Create(c.Request.Context(), req.Kind, req.Name, participants)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create conversation"})
		return
	}

	h.audit.Emit(c.Request.Context(), "info",
		fmt.Sprintf("conversation %s created kind=%s participants=%d", conv.ID, conv.Kind, len(participants)),
		requestIDFromContext(c), userID)

	c.JSON(http.StatusCreated, gin.H{"conversation": conv})
}

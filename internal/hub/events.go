package hub

import (
	"context"

	"github.com/goccy/go-json"

	"chat-sync/internal/events"
	"chat-sync/internal/observability"
	"chat-sync/internal/repositories"
)

// HandleEvent dispatches one inbound client frame. Events arriving before
// identity registration (other than user-online itself) are dropped.
func (h *Hub) HandleEvent(ctx context.Context, c *Client, raw []byte) {
	var env events.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		h.log.Warn().Err(err).Str("conn_id", c.info.ConnID).Msg("undecodable frame dropped")
		return
	}
	observability.IncWSEvent(env.Kind)

	if env.Kind == events.UserOnline {
		h.handleUserOnline(c, env.Payload)
		return
	}
	if c.UserID() == "" {
		h.log.Warn().Str("kind", env.Kind).Str("conn_id", c.info.ConnID).Msg("event before identity registration dropped")
		return
	}

	switch env.Kind {
	case events.JoinConversation:
		var payload events.JoinConversationPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil || payload.ConversationID == "" {
			h.dropPayload(env.Kind, c, err)
			return
		}
		h.JoinRoom(payload.ConversationID, c)

	case events.TypingStart, events.TypingStop:
		var payload events.UserTypingPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil || payload.ConversationID == "" {
			h.dropPayload(env.Kind, c, err)
			return
		}
		payload.UserID = c.UserID()
		if payload.UserName == "" {
			payload.UserName = c.displayName()
		}
		payload.IsTyping = env.Kind == events.TypingStart
		h.BroadcastRoom(payload.ConversationID, events.UserTyping, payload, c)

	case events.MessageDelivered, events.MessageSeen:
		h.handleReceipt(ctx, c, env)

	case events.MessageEdited:
		var payload events.MessageEditedPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil || payload.MessageID == "" {
			h.dropPayload(env.Kind, c, err)
			return
		}
		if err := h.messages.Edit(ctx, payload.MessageID, c.UserID(), payload.Content); err != nil {
			h.log.Warn().Err(err).Str("message_id", payload.MessageID).Msg("edit rejected")
			return
		}
		h.BroadcastRoom(payload.ConversationID, events.MessageEdited, payload, nil)

	case events.MessageDeleted:
		var payload events.MessageDeletedPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil || payload.MessageID == "" {
			h.dropPayload(env.Kind, c, err)
			return
		}
		if err := h.messages.MarkDeleted(ctx, payload.MessageID, c.UserID()); err != nil {
			h.log.Warn().Err(err).Str("message_id", payload.MessageID).Msg("delete rejected")
			return
		}
		h.BroadcastRoom(payload.ConversationID, events.MessageDeleted, payload, nil)

	case events.MessageReaction:
		var payload events.MessageReactionPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil || payload.MessageID == "" {
			h.dropPayload(env.Kind, c, err)
			return
		}
		payload.UserID = c.UserID()
		if _, err := h.messages.ToggleReaction(ctx, payload.MessageID, payload.UserID, payload.EmojiID); err != nil {
			h.log.Warn().Err(err).Str("message_id", payload.MessageID).Msg("reaction rejected")
			return
		}
		h.BroadcastRoom(payload.ConversationID, events.MessageReaction, payload, nil)

	default:
		h.log.Warn().Str("kind", env.Kind).Msg("unknown event kind dropped")
	}
}

// handleUserOnline binds the connection to a user, replies with the presence
// snapshot, and announces the user online if this is their first connection.
// Identities arrive in several historical shapes, hence the coercion.
func (h *Hub) handleUserOnline(c *Client, raw json.RawMessage) {
	var payload events.UserOnlinePayload
	_ = json.Unmarshal(raw, &payload)
	userID := payload.UserID
	if userID == "" {
		var loose any
		if err := json.Unmarshal(raw, &loose); err == nil {
			userID = events.CoerceUserID(loose)
		}
	}
	if userID == "" {
		h.log.Warn().Str("conn_id", c.info.ConnID).Msg("user-online without a usable user id")
		return
	}

	c.setIdentity(userID, payload.UserName)
	first := h.Register(c)

	h.SendTo(c, events.OnlineUsersList, events.OnlineUsersListPayload{OnlineUsers: h.OnlineUsers()})
	if first {
		h.BroadcastAll(events.UserStatusChanged, events.UserStatusChangedPayload{
			UserID: userID,
			Status: events.StatusOnline,
		}, c)
	}
}

// handleReceipt persists a delivered/seen receipt and relays it to the room
// so the sender's devices can update delivery status.
func (h *Hub) handleReceipt(ctx context.Context, c *Client, env events.Envelope) {
	var payload events.MessageReceiptPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil || payload.MessageID == "" {
		h.dropPayload(env.Kind, c, err)
		return
	}
	payload.UserID = c.UserID()

	kind := repositories.ReceiptDelivered
	if env.Kind == events.MessageSeen {
		kind = repositories.ReceiptSeen
	}
	if err := h.messages.AddReceipt(ctx, payload.MessageID, payload.UserID, kind); err != nil {
		h.log.Warn().Err(err).Str("message_id", payload.MessageID).Str("kind", kind).Msg("receipt not persisted")
	}
	h.BroadcastRoom(payload.ConversationID, env.Kind, payload, c)
}

func (h *Hub) dropPayload(kind string, c *Client, err error) {
	h.log.Warn().Err(err).Str("kind", kind).Str("conn_id", c.info.ConnID).Msg("malformed payload dropped")
}

package events

import (
	"fmt"

	"github.com/goccy/go-json"

	"chat-sync/internal/models"
)

// Inbound event kinds emitted by the message server.
const (
	OnlineUsersList   = "online-users-list"
	UserStatusChanged = "user-status-changed"
	UserTyping        = "user-typing"
	NewMessage        = "new-message"
	MessageEdited     = "message-edited"
	MessageDeleted    = "message-deleted"
	MessageReaction   = "message-reaction"
	MessageDelivered  = "message-delivered"
	MessageSeen       = "message-seen"
)

// Outbound event kinds emitted by the client.
const (
	UserOnline       = "user-online"
	TypingStart      = "typing-start"
	TypingStop       = "typing-stop"
	JoinConversation = "join-conversation"
)

// Presence status values carried by user-status-changed.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Envelope is the wire frame shared by all socket events.
type Envelope struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope marshals payload into an Envelope ready to send.
func NewEnvelope(kind string, payload any) (Envelope, error) {
	if payload == nil {
		return Envelope{Kind: kind}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	return Envelope{Kind: kind, Payload: raw}, nil
}

// OnlineUsersListPayload is the full presence snapshot, sent once per
// connection right after identity registration.
type OnlineUsersListPayload struct {
	OnlineUsers []string `json:"online_users"`
}

// UserStatusChangedPayload is a single presence delta.
type UserStatusChangedPayload struct {
	UserID string `json:"user_id"`
	Status string `json:"status"`
}

// UserTypingPayload signals a typing start or stop in a conversation.
type UserTypingPayload struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	UserName       string `json:"user_name,omitempty"`
	IsTyping       bool   `json:"is_typing"`
}

// NewMessagePayload carries a freshly created message.
type NewMessagePayload struct {
	ConversationID string         `json:"conversation_id"`
	Message        models.Message `json:"message"`
}

// MessageEditedPayload carries a content edit for an existing message.
type MessageEditedPayload struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	Content        string `json:"content"`
}

// MessageDeletedPayload tombstones an existing message.
type MessageDeletedPayload struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
}

// MessageReactionPayload toggles a user's emoji reaction on a message.
type MessageReactionPayload struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	UserID         string `json:"user_id"`
	EmojiID        string `json:"emoji_id"`
}

// MessageReceiptPayload acknowledges delivery or reading of a message. Used
// by both message-delivered and message-seen.
type MessageReceiptPayload struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	UserID         string `json:"user_id"`
}

// UserOnlinePayload registers the client identity on (re)connect.
type UserOnlinePayload struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name,omitempty"`
}

// JoinConversationPayload subscribes the connection to a conversation room.
type JoinConversationPayload struct {
	ConversationID string `json:"conversation_id"`
}

package models

import "time"

// MessageType classifies message content.
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageFile  MessageType = "file"
)

// MessageState tracks the optimistic-send lifecycle of a locally created
// message. Inbound messages are always confirmed.
type MessageState string

const (
	StatePending   MessageState = "pending"
	StateConfirmed MessageState = "confirmed"
	StateFailed    MessageState = "failed"
)

// Reaction is a single user's emoji reaction to a message. A user holds at
// most one reaction per message; a later reaction replaces the earlier one.
type Reaction struct {
	UserID  string `db:"user_id" json:"user_id"`
	EmojiID string `db:"emoji_id" json:"emoji_id"`
}

// Message is a chat message. ID is server-assigned; messages created
// optimistically carry a client-generated temporary ID until confirmation.
type Message struct {
	ID             string       `db:"id" json:"id"`
	ConversationID string       `db:"conversation_id" json:"conversation_id"`
	SenderID       string       `db:"sender_id" json:"sender_id"`
	SenderName     string       `db:"sender_name" json:"sender_name,omitempty"`
	Content        string       `db:"content" json:"content"`
	Type           MessageType  `db:"type" json:"type"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
	Edited         bool         `db:"edited" json:"edited,omitempty"`
	Deleted        bool         `db:"deleted" json:"deleted,omitempty"`
	Reactions      []Reaction   `json:"reactions,omitempty"`
	DeliveredTo    []string     `json:"delivered_to,omitempty"`
	ReadBy         []string     `json:"read_by,omitempty"`
	State          MessageState `json:"state,omitempty"`
}

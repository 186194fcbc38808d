package models

import "time"

// ConversationKind distinguishes direct chats from groups.
type ConversationKind string

const (
	ConversationDirect ConversationKind = "direct"
	ConversationGroup  ConversationKind = "group"
)

// Conversation is the server-side conversation record.
type Conversation struct {
	ID        string           `db:"id" json:"id"`
	Kind      ConversationKind `db:"kind" json:"kind"`
	Name      string           `db:"name" json:"name,omitempty"`
	IconURL   string           `db:"icon_url" json:"icon_url,omitempty"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}

// Participant identifies a conversation member.
type Participant struct {
	UserID string `db:"user_id" json:"user_id"`
	Name   string `db:"name" json:"name,omitempty"`
}

// LastMessage is the preview fragment carried by a conversation list entry.
type LastMessage struct {
	Content  string    `json:"content"`
	SenderID string    `json:"sender_id"`
	At       time.Time `json:"at"`
}

// ConversationSummary is the per-user view of a conversation as rendered in
// the conversation list: preview, unread counter, participants. Summaries are
// created when first fetched or when a message for an unknown conversation
// arrives, and are never deleted locally.
type ConversationSummary struct {
	ID           string           `json:"id"`
	Kind         ConversationKind `json:"kind"`
	Name         string           `json:"name,omitempty"`
	IconURL      string           `json:"icon_url,omitempty"`
	Participants []Participant    `json:"participants,omitempty"`
	LastMessage  *LastMessage     `json:"last_message,omitempty"`
	Unread       int              `json:"unread"`
}

// DisplayName resolves the name shown for the conversation from the
// perspective of currentUserID: the group name when set, otherwise the other
// participant's name.
func (s *ConversationSummary) DisplayName(currentUserID string) string {
	if s.Name != "" {
		return s.Name
	}
	for _, p := range s.Participants {
		if p.UserID != currentUserID && p.Name != "" {
			return p.Name
		}
	}
	return ""
}

// OtherParticipant returns the first participant that is not currentUserID.
// Only meaningful for direct conversations.
func (s *ConversationSummary) OtherParticipant(currentUserID string) (Participant, bool) {
	for _, p := range s.Participants {
		if p.UserID != currentUserID {
			return p, true
		}
	}
	return Participant{}, false
}

package notify

import (
	"unicode/utf8"

	"github.com/rs/zerolog"

	"chat-sync/internal/events"
	"chat-sync/internal/models"
)

// DefaultPreviewLimit caps the content preview carried by an intent.
const DefaultPreviewLimit = 50

// Intent is a user-visible alert the UI (or a push gateway) may surface.
type Intent struct {
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	Title          string `json:"title"`
	Preview        string `json:"preview"`
}

// Dispatcher decides, per inbound message event, whether a notification
// should surface.
type Dispatcher struct {
	previewLimit int
	log          zerolog.Logger
}

// NewDispatcher creates a dispatcher with the default preview cap.
func NewDispatcher(log zerolog.Logger) *Dispatcher {
	return &Dispatcher{previewLimit: DefaultPreviewLimit, log: log}
}

// OnEvent returns the intent for a new-message event, or nil when the event
// must be suppressed: self-authored echoes never notify, the actively open
// conversation never notifies, and the preference toggle wins over both.
// summary may be nil when the conversation is not yet known locally.
func (d *Dispatcher) OnEvent(ev events.NewMessagePayload, summary *models.ConversationSummary, currentUserID, activeConversationID string, prefs models.Preferences) *Intent {
	if ev.Message.SenderID == currentUserID {
		return nil
	}
	if ev.ConversationID != "" && ev.ConversationID == activeConversationID {
		return nil
	}
	if !prefs.Notifications {
		return nil
	}

	title := d.resolveTitle(ev, summary, currentUserID)
	return &Intent{
		ConversationID: ev.ConversationID,
		SenderID:       ev.Message.SenderID,
		Title:          title,
		Preview:        truncate(ev.Message.Content, d.previewLimit),
	}
}

// resolveTitle picks the best available display name: conversation name,
// then the other participant, then the sender's name, then a fallback.
func (d *Dispatcher) resolveTitle(ev events.NewMessagePayload, summary *models.ConversationSummary, currentUserID string) string {
	if summary != nil {
		if name := summary.DisplayName(currentUserID); name != "" {
			return name
		}
	}
	if ev.Message.SenderName != "" {
		return ev.Message.SenderName
	}
	return "New message"
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + "…"
}

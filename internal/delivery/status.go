package delivery

import "chat-sync/internal/models"

// Status is the derived delivery classification of an outbound message. It
// is a pure projection of the message's acknowledgement sets and current
// presence, recomputed on every read and never persisted.
type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusSeen      Status = "seen"
)

// OnlineChecker answers presence queries. Satisfied by presence.Registry.
type OnlineChecker interface {
	IsOnline(userID string) bool
}

// StatusOf resolves the delivery status of msg from the perspective of
// currentUserID. Priority is strict: Seen dominates Delivered dominates Sent.
// Seen requires a non-self reader; Delivered requires a non-self recipient
// that is currently online. A presence change alone can therefore flip a
// message between Sent and Delivered.
func StatusOf(msg models.Message, currentUserID string, online OnlineChecker) Status {
	for _, id := range msg.ReadBy {
		if id != "" && id != currentUserID {
			return StatusSeen
		}
	}
	for _, id := range msg.DeliveredTo {
		if id != "" && id != currentUserID && online != nil && online.IsOnline(id) {
			return StatusDelivered
		}
	}
	return StatusSent
}

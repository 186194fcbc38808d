package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"chat-sync/internal/models"
)

var ErrConversationNotFound = errors.New("conversation not found")

// ConversationRepository abstracts conversation persistence.
type ConversationRepository interface {
	Create(ctx context.Context, kind models.ConversationKind, name string, participants []models.Participant) (models.Conversation, error)
	Get(ctx context.Context, conversationID string) (models.Conversation, error)
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
	Participants(ctx context.Context, conversationID string) ([]models.Participant, error)
	ListForUser(ctx context.Context, userID string) ([]models.ConversationSummary, error)
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// Create inserts a conversation and its participant rows in one transaction.
func (r *ConversationRepo) Create(ctx context.Context, kind models.ConversationKind, name string, participants []models.Participant) (models.Conversation, error) {
	conv := models.Conversation{
		ID:        uuid.NewString(),
		Kind:      kind,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Conversation{}, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO conversations (id, kind, name, created_at) VALUES ($1, $2, $3, $4)`,
		conv.ID, conv.Kind, conv.Name, conv.CreatedAt); err != nil {
		return models.Conversation{}, err
	}
	for _, p := range participants {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO conversation_participants (conversation_id, user_id, name) VALUES ($1, $2, $3)
             ON CONFLICT (conversation_id, user_id) DO UPDATE SET name = EXCLUDED.name`,
			conv.ID, p.UserID, p.Name); err != nil {
			return models.Conversation{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return models.Conversation{}, err
	}
	return conv, nil
}

// Get fetches a conversation by id.
func (r *ConversationRepo) Get(ctx context.Context, conversationID string) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv,
		`SELECT id, kind, name, icon_url, created_at FROM conversations WHERE id=$1`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, err
}

// IsParticipant checks whether a user belongs to the conversation.
func (r *ConversationRepo) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM conversation_participants WHERE conversation_id=$1 AND user_id=$2)`,
		conversationID, userID)
	return exists, err
}

// Participants lists the members of a conversation.
func (r *ConversationRepo) Participants(ctx context.Context, conversationID string) ([]models.Participant, error) {
	participants := []models.Participant{}
	err := r.db.SelectContext(ctx, &participants,
		`SELECT user_id, name FROM conversation_participants WHERE conversation_id=$1 ORDER BY user_id`,
		conversationID)
	return participants, err
}

// ListForUser returns the user's conversations as list summaries: metadata,
// participants, last message preview, and the count of messages from others
// the user has not yet marked seen. Ordered by last activity, newest first.
func (r *ConversationRepo) ListForUser(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	type row struct {
		ID          string                  `db:"id"`
		Kind        models.ConversationKind `db:"kind"`
		Name        string                  `db:"name"`
		IconURL     string                  `db:"icon_url"`
		LastContent *string                 `db:"last_content"`
		LastSender  *string                 `db:"last_sender"`
		LastAt      *time.Time              `db:"last_at"`
		Unread      int                     `db:"unread"`
	}

	rows := []row{}
	query := `
        SELECT c.id, c.kind, c.name, c.icon_url,
               lm.content AS last_content, lm.sender_id AS last_sender, lm.created_at AS last_at,
               (SELECT COUNT(*) FROM messages m
                 WHERE m.conversation_id = c.id
                   AND m.sender_id <> $1
                   AND m.deleted = FALSE
                   AND NOT EXISTS (SELECT 1 FROM message_receipts mr
                                    WHERE mr.message_id = m.id AND mr.user_id = $1 AND mr.kind = 'seen')
               ) AS unread
          FROM conversations c
          JOIN conversation_participants cp ON cp.conversation_id = c.id AND cp.user_id = $1
          LEFT JOIN LATERAL (
                SELECT content, sender_id, created_at FROM messages
                 WHERE conversation_id = c.id
                 ORDER BY created_at DESC LIMIT 1
          ) lm ON TRUE
         ORDER BY COALESCE(lm.created_at, c.created_at) DESC`
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, err
	}

	summaries := make([]models.ConversationSummary, 0, len(rows))
	for _, rw := range rows {
		summary := models.ConversationSummary{
			ID:      rw.ID,
			Kind:    rw.Kind,
			Name:    rw.Name,
			IconURL: rw.IconURL,
			Unread:  rw.Unread,
		}
		participants, err := r.Participants(ctx, rw.ID)
		if err != nil {
			return nil, err
		}
		summary.Participants = participants
		if rw.LastContent != nil && rw.LastAt != nil {
			summary.LastMessage = &models.LastMessage{
				Content:  *rw.LastContent,
				SenderID: derefString(rw.LastSender),
				At:       *rw.LastAt,
			}
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

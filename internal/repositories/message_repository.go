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

var (
	ErrMessageNotFound = errors.New("message not found")
	ErrNotSender       = errors.New("user is not the message sender")
)

// Receipt kinds persisted in message_receipts.
const (
	ReceiptDelivered = "delivered"
	ReceiptSeen      = "seen"
)

// MessageRepository abstracts message persistence.
type MessageRepository interface {
	Create(ctx context.Context, msg models.Message) (models.Message, error)
	Page(ctx context.Context, conversationID string, before time.Time, limit int) ([]models.Message, error)
	Edit(ctx context.Context, messageID, senderID, content string) error
	MarkDeleted(ctx context.Context, messageID, senderID string) error
	ToggleReaction(ctx context.Context, messageID, userID, emojiID string) (removed bool, err error)
	AddReceipt(ctx context.Context, messageID, userID, kind string) error
}

// MessageRepo is a sqlx implementation of MessageRepository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Create inserts a message with a server-assigned id and timestamp.
func (r *MessageRepo) Create(ctx context.Context, msg models.Message) (models.Message, error) {
	msg.ID = uuid.NewString()
	msg.CreatedAt = time.Now().UTC()
	if msg.Type == "" {
		msg.Type = models.MessageText
	}
	msg.State = models.StateConfirmed

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, sender_id, sender_name, content, type, created_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		msg.ID, msg.ConversationID, msg.SenderID, msg.SenderName, msg.Content, msg.Type, msg.CreatedAt)
	if err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// Page returns up to limit messages created strictly before the cursor,
// oldest first, with reactions and receipts attached. A zero cursor means
// "latest".
func (r *MessageRepo) Page(ctx context.Context, conversationID string, before time.Time, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if before.IsZero() {
		before = time.Now().UTC().Add(time.Second)
	}

	messages := []models.Message{}
	err := r.db.SelectContext(ctx, &messages,
		`SELECT id, conversation_id, sender_id, sender_name, content, type, edited, deleted, created_at
           FROM messages
          WHERE conversation_id=$1 AND created_at < $2
          ORDER BY created_at DESC
          LIMIT $3`,
		conversationID, before, limit)
	if err != nil {
		return nil, err
	}

	// The query walks backwards from the cursor; callers want ascending order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	for i := range messages {
		messages[i].State = models.StateConfirmed
		if messages[i].Deleted {
			messages[i].Content = ""
		}
	}

	if err := r.attachReactions(ctx, messages); err != nil {
		return nil, err
	}
	if err := r.attachReceipts(ctx, messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// Edit rewrites the content of the sender's own message.
func (r *MessageRepo) Edit(ctx context.Context, messageID, senderID, content string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET content=$1, edited=TRUE WHERE id=$2 AND sender_id=$3 AND deleted=FALSE`,
		content, messageID, senderID)
	if err != nil {
		return err
	}
	return requireRow(ctx, r.db, res, messageID)
}

// MarkDeleted tombstones the sender's own message. Content is cleared so
// deleted text never reaches another client.
func (r *MessageRepo) MarkDeleted(ctx context.Context, messageID, senderID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET deleted=TRUE, content='' WHERE id=$1 AND sender_id=$2`,
		messageID, senderID)
	if err != nil {
		return err
	}
	return requireRow(ctx, r.db, res, messageID)
}

// ToggleReaction applies one user's reaction: reacting with the emoji they
// already placed removes it, any other emoji replaces it.
func (r *MessageRepo) ToggleReaction(ctx context.Context, messageID, userID, emojiID string) (bool, error) {
	var current string
	err := r.db.GetContext(ctx, &current,
		`SELECT emoji_id FROM message_reactions WHERE message_id=$1 AND user_id=$2`, messageID, userID)
	switch {
	case err == nil && current == emojiID:
		_, err = r.db.ExecContext(ctx,
			`DELETE FROM message_reactions WHERE message_id=$1 AND user_id=$2`, messageID, userID)
		return true, err
	case err == nil || errors.Is(err, sql.ErrNoRows):
		_, err = r.db.ExecContext(ctx,
			`INSERT INTO message_reactions (message_id, user_id, emoji_id) VALUES ($1, $2, $3)
             ON CONFLICT (message_id, user_id) DO UPDATE SET emoji_id = EXCLUDED.emoji_id`,
			messageID, userID, emojiID)
		return false, err
	default:
		return false, err
	}
}

// AddReceipt records a delivered/seen receipt. Duplicate receipts are
// ignored so clients can acknowledge freely.
func (r *MessageRepo) AddReceipt(ctx context.Context, messageID, userID, kind string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO message_receipts (message_id, user_id, kind) VALUES ($1, $2, $3)
         ON CONFLICT (message_id, user_id, kind) DO NOTHING`,
		messageID, userID, kind)
	return err
}

func (r *MessageRepo) attachReactions(ctx context.Context, messages []models.Message) error {
	ids := messageIDs(messages)
	if len(ids) == 0 {
		return nil
	}
	type row struct {
		MessageID string `db:"message_id"`
		UserID    string `db:"user_id"`
		EmojiID   string `db:"emoji_id"`
	}
	query, args, err := sqlx.In(
		`SELECT message_id, user_id, emoji_id FROM message_reactions WHERE message_id IN (?)`, ids)
	if err != nil {
		return err
	}
	rows := []row{}
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return err
	}
	byMessage := make(map[string][]models.Reaction)
	for _, rw := range rows {
		byMessage[rw.MessageID] = append(byMessage[rw.MessageID], models.Reaction{UserID: rw.UserID, EmojiID: rw.EmojiID})
	}
	for i := range messages {
		messages[i].Reactions = byMessage[messages[i].ID]
	}
	return nil
}

func (r *MessageRepo) attachReceipts(ctx context.Context, messages []models.Message) error {
	ids := messageIDs(messages)
	if len(ids) == 0 {
		return nil
	}
	type row struct {
		MessageID string `db:"message_id"`
		UserID    string `db:"user_id"`
		Kind      string `db:"kind"`
	}
	query, args, err := sqlx.In(
		`SELECT message_id, user_id, kind FROM message_receipts WHERE message_id IN (?)`, ids)
	if err != nil {
		return err
	}
	rows := []row{}
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return err
	}
	index := make(map[string]int, len(messages))
	for i := range messages {
		index[messages[i].ID] = i
	}
	for _, rw := range rows {
		i, ok := index[rw.MessageID]
		if !ok {
			continue
		}
		switch rw.Kind {
		case ReceiptDelivered:
			messages[i].DeliveredTo = append(messages[i].DeliveredTo, rw.UserID)
		case ReceiptSeen:
			messages[i].ReadBy = append(messages[i].ReadBy, rw.UserID)
		}
	}
	return nil
}

func messageIDs(messages []models.Message) []string {
	ids := make([]string, 0, len(messages))
	for _, m := range messages {
		ids = append(ids, m.ID)
	}
	return ids
}

// requireRow distinguishes "no such message" from "not the sender" for update
// statements guarded by sender_id.
func requireRow(ctx context.Context, db *sqlx.DB, res sql.Result, messageID string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}
	var exists bool
	if err := db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM messages WHERE id=$1)`, messageID); err != nil {
		return err
	}
	if !exists {
		return ErrMessageNotFound
	}
	return ErrNotSender
}

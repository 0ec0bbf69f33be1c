package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/docstack/internal/core/domain"
	"github.com/kirillkom/docstack/internal/core/ports"
)

var _ ports.ConversationStore = (*ConversationRepository)(nil)

type ConversationRepository struct {
	db *sql.DB
}

func NewConversationRepository(db *sql.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// EnsureConversation creates the conversation on first use. The title is
// only written by the insert; an existing conversation keeps its own.
// A conversation id owned by another user reads back as not found.
func (r *ConversationRepository) EnsureConversation(ctx context.Context, userID, conversationID, title string) (*domain.Conversation, error) {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
INSERT INTO conversations (id, user_id, title, created_at, updated_at)
VALUES ($1, $2, $3, $4, $4)
ON CONFLICT (id) DO NOTHING
`, conversationID, userID, nullableString(title), now)
	if err != nil {
		return nil, fmt.Errorf("ensure conversation insert: %w", err)
	}

	return r.GetConversation(ctx, userID, conversationID)
}

func (r *ConversationRepository) GetConversation(ctx context.Context, userID, conversationID string) (*domain.Conversation, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, user_id, COALESCE(title, ''), created_at, updated_at
FROM conversations
WHERE user_id = $1 AND id = $2
`, userID, conversationID)

	var conv domain.Conversation
	err := row.Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrConversationNotFound, "get conversation", nil)
		}
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	return &conv, nil
}

func (r *ConversationRepository) AppendMessage(ctx context.Context, msg domain.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	var sources interface{}
	if len(msg.Sources) > 0 {
		raw, err := json.Marshal(msg.Sources)
		if err != nil {
			return fmt.Errorf("marshal message sources: %w", err)
		}
		sources = raw
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO messages (id, conversation_id, user_id, role, content, sources, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`, msg.ID, msg.ConversationID, msg.UserID, string(msg.Role), msg.Content, sources, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
UPDATE conversations
SET updated_at = $3
WHERE user_id = $1 AND id = $2
`, msg.UserID, msg.ConversationID, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return nil
}

// ListMessages returns the transcript in insertion order. The BIGSERIAL
// seq column orders messages written within the same clock tick.
func (r *ConversationRepository) ListMessages(ctx context.Context, userID, conversationID string) ([]domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, conversation_id, user_id, role, content, sources, created_at
FROM messages
WHERE user_id = $1 AND conversation_id = $2
ORDER BY seq ASC
`, userID, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Message, 0)
	for rows.Next() {
		var msg domain.Message
		var role string
		var sourcesRaw []byte
		if err := rows.Scan(
			&msg.ID, &msg.ConversationID, &msg.UserID, &role, &msg.Content, &sourcesRaw, &msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Role = domain.MessageRole(role)
		if len(sourcesRaw) > 0 {
			if err := json.Unmarshal(sourcesRaw, &msg.Sources); err != nil {
				return nil, fmt.Errorf("unmarshal message sources: %w", err)
			}
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}

// Package conversation persists chat threads and their transcripts in
// PostgreSQL.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lylin/knowbase/internal/log"
)

// ErrNotFound indicates the requested conversation does not exist.
var ErrNotFound = errors.New("conversation not found")

// TitleMaxLength is the maximum auto-generated title length in runes.
const TitleMaxLength = 30

// Store provides conversation and message persistence.
type Store struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// NewStore creates a conversation store backed by the given pool.
func NewStore(pool *pgxpool.Pool, logger log.Logger) *Store {
	return &Store{pool: pool, logger: logger}
}

const createConversationSQL = `
INSERT INTO conversations (title)
VALUES ($1)
RETURNING id, title, created_at, updated_at`

// Create inserts a new conversation with the given title.
func (s *Store) Create(ctx context.Context, title string) (*Conversation, error) {
	var c Conversation
	err := s.pool.QueryRow(ctx, createConversationSQL, title).
		Scan(&c.ID, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}
	s.logger.Debug("conversation created", "conversation_id", c.ID)
	return &c, nil
}

const getConversationSQL = `
SELECT id, title, created_at, updated_at
FROM conversations
WHERE id = $1`

// Get returns a conversation by ID, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	var c Conversation
	err := s.pool.QueryRow(ctx, getConversationSQL, id).
		Scan(&c.ID, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting conversation: %w", err)
	}
	return &c, nil
}

const listConversationsSQL = `
SELECT id, title, created_at, updated_at
FROM conversations
ORDER BY updated_at DESC
LIMIT $1 OFFSET $2`

// List returns conversations ordered by most recent activity.
func (s *Store) List(ctx context.Context, limit, offset int) ([]Conversation, error) {
	rows, err := s.pool.Query(ctx, listConversationsSQL, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversations: %w", err)
	}
	return out, nil
}

const updateTitleSQL = `
UPDATE conversations
SET title = $2, updated_at = now()
WHERE id = $1`

// UpdateTitle sets a conversation's title.
func (s *Store) UpdateTitle(ctx context.Context, id uuid.UUID, title string) error {
	tag, err := s.pool.Exec(ctx, updateTitleSQL, id, title)
	if err != nil {
		return fmt.Errorf("updating title: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a conversation; messages cascade.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const addMessageSQL = `
INSERT INTO messages (conversation_id, role, content)
VALUES ($1, $2, $3)
RETURNING id, conversation_id, role, content, created_at`

// AddMessage appends a message to the transcript and bumps the
// conversation's updated_at in the same transaction.
func (s *Store) AddMessage(ctx context.Context, conversationID uuid.UUID, role, content string) (*Message, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var m Message
	err = tx.QueryRow(ctx, addMessageSQL, conversationID, role, content).
		Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting message: %w", err)
	}

	tag, err := tx.Exec(ctx, `UPDATE conversations SET updated_at = now() WHERE id = $1`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("touching conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing message: %w", err)
	}
	return &m, nil
}

const messagesSQL = `
SELECT id, conversation_id, role, content, created_at
FROM messages
WHERE conversation_id = $1
ORDER BY created_at ASC, id ASC`

// Messages returns the full transcript in chronological order.
func (s *Store) Messages(ctx context.Context, conversationID uuid.UUID) ([]Message, error) {
	rows, err := s.pool.Query(ctx, messagesSQL, conversationID)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

const recentMessagesSQL = `
SELECT id, conversation_id, role, content, created_at
FROM messages
WHERE conversation_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2`

// Recent returns the last limit messages in chronological order.
func (s *Store) Recent(ctx context.Context, conversationID uuid.UUID, limit int) ([]Message, error) {
	rows, err := s.pool.Query(ctx, recentMessagesSQL, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing recent messages: %w", err)
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	slices.Reverse(msgs)
	return msgs, nil
}

func scanMessages(rows pgx.Rows) ([]Message, error) {
	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}
	return out, nil
}

// AutoTitle derives a conversation title from the first user message:
// the first TitleMaxLength runes, with an ellipsis when truncated.
func AutoTitle(message string) string {
	runes := []rune(message)
	if len(runes) <= TitleMaxLength {
		return message
	}
	return string(runes[:TitleMaxLength]) + "..."
}

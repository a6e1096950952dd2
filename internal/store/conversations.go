package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/wolfman30/support-integrations/internal/conversations"
)

// ConversationStore implements conversations.Store.
type ConversationStore struct {
	db rowQuerier
}

var _ conversations.Store = (*ConversationStore)(nil)

func (s *ConversationStore) Get(ctx context.Context, id int64) (*conversations.Conversation, error) {
	query := `
		SELECT id, account_id, inbox_id, status
		FROM conversations
		WHERE id = $1
	`
	var (
		c      conversations.Conversation
		status string
	)
	if err := s.db.QueryRow(ctx, query, id).Scan(&c.ID, &c.AccountID, &c.InboxID, &status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, conversations.ErrNotFound
		}
		return nil, fmt.Errorf("store: select conversation %d: %w", id, err)
	}
	parsed, err := conversations.ParseStatus(status)
	if err != nil {
		return nil, fmt.Errorf("store: conversation %d: %w", id, err)
	}
	c.Status = parsed
	return &c, nil
}

// Save persists the status. Concurrent writers are last-write-wins.
func (s *ConversationStore) Save(ctx context.Context, c *conversations.Conversation) error {
	query := `UPDATE conversations SET status = $2, updated_at = now() WHERE id = $1`
	tag, err := s.db.Exec(ctx, query, c.ID, string(c.Status))
	if err != nil {
		return fmt.Errorf("store: update conversation %d: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return conversations.ErrNotFound
	}
	return nil
}

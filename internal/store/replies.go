package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/wolfman30/support-integrations/internal/conversations"
	"github.com/wolfman30/support-integrations/internal/messages"
)

// ReplyWriter runs the bot reply insert and the conversation status update on
// one transaction.
type ReplyWriter struct {
	db txBeginner
}

// WithinReply begins a transaction, hands fn a builder and conversation store
// bound to it, and commits only when fn succeeds.
func (w *ReplyWriter) WithinReply(ctx context.Context, fn func(ctx context.Context, builder messages.Builder, convs conversations.Store) error) error {
	tx, err := w.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("store: begin reply tx: %w", err)
	}
	if err := fn(ctx, &MessageBuilder{db: tx}, &ConversationStore{db: tx}); err != nil {
		_ = tx.Rollback(context.WithoutCancel(ctx))
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: commit reply tx: %w", err)
	}
	return nil
}

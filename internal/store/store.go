// Package store implements the contact, conversation, message and agent bot
// collaborators on Postgres.
package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txBeginner interface {
	rowQuerier
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// Postgres groups the stores that share one pool.
type Postgres struct {
	Contacts      *ContactStore
	Conversations *ConversationStore
	Messages      *MessageStore
	AgentBots     *AgentBotStore
	Builder       *MessageBuilder
	Replies       *ReplyWriter
}

// NewPostgres wires every store to pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	if pool == nil {
		panic("store: pgx pool required")
	}
	return newPostgresWithExec(pool)
}

func newPostgresWithExec(db txBeginner) *Postgres {
	return &Postgres{
		Contacts:      &ContactStore{db: db},
		Conversations: &ConversationStore{db: db},
		Messages:      &MessageStore{db: db},
		AgentBots:     &AgentBotStore{db: db},
		Builder:       &MessageBuilder{db: db},
		Replies:       &ReplyWriter{db: db},
	}
}

func textOrEmpty(t pgtype.Text) string {
	if !t.Valid {
		return ""
	}
	return t.String
}

func nullText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

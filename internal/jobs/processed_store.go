package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ProcessedStore records jobs whose side effects already happened, so a
// redelivered message does not post a second bot reply.
type ProcessedStore struct {
	pool rowQuerier
}

func NewProcessedStore(pool *pgxpool.Pool) *ProcessedStore {
	if pool == nil {
		panic("jobs: pgx pool required")
	}
	return &ProcessedStore{pool: pool}
}

func newProcessedStoreWithExec(exec rowQuerier) *ProcessedStore {
	if exec == nil {
		panic("jobs: exec required")
	}
	return &ProcessedStore{pool: exec}
}

// AlreadyProcessed checks if this kind/key pair was handled.
func (s *ProcessedStore) AlreadyProcessed(ctx context.Context, kind Kind, key string) (bool, error) {
	query := `SELECT 1 FROM processed_events WHERE provider = $1 AND event_id = $2`
	var exists int
	if err := s.pool.QueryRow(ctx, query, string(kind), key).Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("jobs: check processed: %w", err)
	}
	return true, nil
}

// MarkProcessed inserts the pair, returning false if it already existed.
func (s *ProcessedStore) MarkProcessed(ctx context.Context, kind Kind, key string) (bool, error) {
	query := `
		INSERT INTO processed_events (provider, event_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`
	ct, err := s.pool.Exec(ctx, query, string(kind), key)
	if err != nil {
		return false, fmt.Errorf("jobs: mark processed: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

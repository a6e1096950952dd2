package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/wolfman30/support-integrations/internal/agentbots"
)

// AgentBotStore implements agentbots.Store.
type AgentBotStore struct {
	db rowQuerier
}

var _ agentbots.Store = (*AgentBotStore)(nil)

func (s *AgentBotStore) Get(ctx context.Context, id int64) (*agentbots.AgentBot, error) {
	query := `SELECT id, name, description FROM agent_bots WHERE id = $1`
	var (
		bot         agentbots.AgentBot
		name        pgtype.Text
		description pgtype.Text
	)
	if err := s.db.QueryRow(ctx, query, id).Scan(&bot.ID, &name, &description); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, agentbots.ErrNotFound
		}
		return nil, fmt.Errorf("store: select agent bot %d: %w", id, err)
	}
	bot.Name = textOrEmpty(name)
	bot.Description = textOrEmpty(description)
	return &bot, nil
}

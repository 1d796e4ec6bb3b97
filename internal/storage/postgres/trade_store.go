package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"agent-roster-lab/internal/domain"
	"agent-roster-lab/internal/storage"
)

// TradeStore implements storage.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *Pool
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(pool *Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

// InsertBulk adds multiple fills. Fills are append-only rows with no
// upstream unique key.
func (s *TradeStore) InsertBulk(ctx context.Context, fills []*domain.TradeFill) error {
	if len(fills) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO trade_fills (agent_id, date, symbol, pnl)
		VALUES ($1, $2, $3, $4)
	`
	for _, f := range fills {
		if _, err := tx.Exec(ctx, query, f.AgentID, dayArg(f.Date), f.Symbol, f.PnL); err != nil {
			return fmt.Errorf("insert trade fill in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByAgentDate retrieves all fills for one agent and day.
func (s *TradeStore) GetByAgentDate(ctx context.Context, agentID string, date domain.Day) ([]*domain.TradeFill, error) {
	query := `
		SELECT agent_id, date, symbol, pnl
		FROM trade_fills
		WHERE agent_id = $1 AND date = $2
		ORDER BY id ASC
	`

	rows, err := s.pool.Query(ctx, query, agentID, dayArg(date))
	if err != nil {
		return nil, fmt.Errorf("get trade fills by agent and date: %w", err)
	}
	defer rows.Close()

	return scanTradeFills(rows)
}

// GetByAgentsRange retrieves fills for a set of agents within [from, to].
func (s *TradeStore) GetByAgentsRange(ctx context.Context, agentIDs []string, from, to domain.Day) ([]*domain.TradeFill, error) {
	if len(agentIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT agent_id, date, symbol, pnl
		FROM trade_fills
		WHERE agent_id = ANY($1) AND date >= $2 AND date <= $3
		ORDER BY agent_id ASC, date ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, agentIDs, dayArg(from), dayArg(to))
	if err != nil {
		return nil, fmt.Errorf("get trade fills by range: %w", err)
	}
	defer rows.Close()

	return scanTradeFills(rows)
}

func scanTradeFills(rows pgx.Rows) ([]*domain.TradeFill, error) {
	var fills []*domain.TradeFill
	for rows.Next() {
		var f domain.TradeFill
		var d time.Time
		if err := rows.Scan(&f.AgentID, &d, &f.Symbol, &f.PnL); err != nil {
			return nil, fmt.Errorf("scan trade fill row: %w", err)
		}
		f.Date = scanDay(d)
		fills = append(fills, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade fill rows: %w", err)
	}
	return fills, nil
}

package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"agent-roster-lab/internal/domain"
	"agent-roster-lab/internal/storage"
)

// DailyReturnStore implements storage.DailyReturnStore using ClickHouse.
// MergeTree does not enforce uniqueness, so key checks run before inserts.
type DailyReturnStore struct {
	conn *Conn
}

// NewDailyReturnStore creates a new DailyReturnStore.
func NewDailyReturnStore(conn *Conn) *DailyReturnStore {
	return &DailyReturnStore{conn: conn}
}

// Compile-time interface check.
var _ storage.DailyReturnStore = (*DailyReturnStore)(nil)

// Insert adds a return. Returns ErrDuplicateKey if (agent_id, date) exists.
func (s *DailyReturnStore) Insert(ctx context.Context, r *domain.DailyReturn) error {
	exists, err := s.exists(ctx, r.AgentID, r.Date)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}
	return s.insert(ctx, []*domain.DailyReturn{r})
}

// InsertBulk adds multiple returns, skipping records whose key already
// exists so bulk recomputation stays idempotent.
func (s *DailyReturnStore) InsertBulk(ctx context.Context, returns []*domain.DailyReturn) error {
	if len(returns) == 0 {
		return nil
	}

	type key struct {
		agentID string
		date    domain.Day
	}
	seen := make(map[key]struct{}, len(returns))

	var fresh []*domain.DailyReturn
	for _, r := range returns {
		k := key{r.AgentID, r.Date}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}

		exists, err := s.exists(ctx, r.AgentID, r.Date)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if !exists {
			fresh = append(fresh, r)
		}
	}
	if len(fresh) == 0 {
		return nil
	}
	return s.insert(ctx, fresh)
}

func (s *DailyReturnStore) insert(ctx context.Context, returns []*domain.DailyReturn) error {
	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO daily_returns (
			agent_id, date, balance, pnl, return, trade_symbols, trade_pnls, n_trades
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range returns {
		symbols := make([]string, 0, len(r.Trades))
		pnls := make([]float64, 0, len(r.Trades))
		for _, t := range r.Trades {
			symbols = append(symbols, t.Symbol)
			pnls = append(pnls, t.PnL)
		}
		err = batch.Append(
			r.AgentID, r.Date.Time(), r.Balance, r.PnL, r.Return,
			symbols, pnls, uint32(r.NTrades),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByAgentDate retrieves one record. Returns ErrNotFound if not exists.
func (s *DailyReturnStore) GetByAgentDate(ctx context.Context, agentID string, date domain.Day) (*domain.DailyReturn, error) {
	query := `
		SELECT agent_id, date, balance, pnl, return, trade_symbols, trade_pnls, n_trades
		FROM daily_returns
		WHERE agent_id = ? AND date = ?
		LIMIT 1
	`

	rows, err := s.conn.Query(ctx, query, agentID, date.Time())
	if err != nil {
		return nil, fmt.Errorf("query daily return: %w", err)
	}
	defer rows.Close()

	returns, err := scanDailyReturns(rows)
	if err != nil {
		return nil, err
	}
	if len(returns) == 0 {
		return nil, storage.ErrNotFound
	}
	return returns[0], nil
}

// GetByAgentsRange retrieves records for a set of agents within [from, to].
func (s *DailyReturnStore) GetByAgentsRange(ctx context.Context, agentIDs []string, from, to domain.Day) ([]*domain.DailyReturn, error) {
	if len(agentIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT agent_id, date, balance, pnl, return, trade_symbols, trade_pnls, n_trades
		FROM daily_returns
		WHERE agent_id IN (?) AND date >= ? AND date <= ?
		ORDER BY agent_id ASC, date ASC
	`

	rows, err := s.conn.Query(ctx, query, agentIDs, from.Time(), to.Time())
	if err != nil {
		return nil, fmt.Errorf("query daily returns by range: %w", err)
	}
	defer rows.Close()

	return scanDailyReturns(rows)
}

func (s *DailyReturnStore) exists(ctx context.Context, agentID string, date domain.Day) (bool, error) {
	query := `SELECT count(*) FROM daily_returns WHERE agent_id = ? AND date = ?`

	var count uint64
	if err := s.conn.QueryRow(ctx, query, agentID, date.Time()).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func scanDailyReturns(rows driver.Rows) ([]*domain.DailyReturn, error) {
	var returns []*domain.DailyReturn
	for rows.Next() {
		var r domain.DailyReturn
		var date time.Time
		var symbols []string
		var pnls []float64
		var nTrades uint32
		err := rows.Scan(&r.AgentID, &date, &r.Balance, &r.PnL, &r.Return, &symbols, &pnls, &nTrades)
		if err != nil {
			return nil, fmt.Errorf("scan daily return row: %w", err)
		}
		r.Date = domain.DayOf(date)
		r.NTrades = int(nTrades)
		for i := range symbols {
			detail := domain.TradeDetail{Symbol: symbols[i]}
			if i < len(pnls) {
				detail.PnL = pnls[i]
			}
			r.Trades = append(r.Trades, detail)
		}
		returns = append(returns, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily return rows: %w", err)
	}
	return returns, nil
}

package clickhouse

import (
	"context"
	"fmt"
	"time"

	"agent-roster-lab/internal/domain"
	"agent-roster-lab/internal/storage"
)

// WindowReturnStore implements storage.WindowReturnStore using ClickHouse.
type WindowReturnStore struct {
	conn *Conn
}

// NewWindowReturnStore creates a new WindowReturnStore.
func NewWindowReturnStore(conn *Conn) *WindowReturnStore {
	return &WindowReturnStore{conn: conn}
}

// Compile-time interface check.
var _ storage.WindowReturnStore = (*WindowReturnStore)(nil)

// Insert adds a window return. Returns ErrDuplicateKey if the key exists.
func (s *WindowReturnStore) Insert(ctx context.Context, w *domain.WindowReturn) error {
	exists, err := s.exists(ctx, w.AgentID, w.TargetDate, w.WindowDays)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}
	return s.insert(ctx, []*domain.WindowReturn{w})
}

// InsertBulk adds multiple window returns, skipping existing keys.
func (s *WindowReturnStore) InsertBulk(ctx context.Context, returns []*domain.WindowReturn) error {
	if len(returns) == 0 {
		return nil
	}

	type key struct {
		agentID    string
		date       domain.Day
		windowDays int
	}
	seen := make(map[key]struct{}, len(returns))

	var fresh []*domain.WindowReturn
	for _, w := range returns {
		k := key{w.AgentID, w.TargetDate, w.WindowDays}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}

		exists, err := s.exists(ctx, w.AgentID, w.TargetDate, w.WindowDays)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if !exists {
			fresh = append(fresh, w)
		}
	}
	if len(fresh) == 0 {
		return nil
	}
	return s.insert(ctx, fresh)
}

func (s *WindowReturnStore) insert(ctx context.Context, returns []*domain.WindowReturn) error {
	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO window_returns (
			agent_id, target_date, window_days, return, total_pnl,
			n_trades, positive_days, negative_days, days_present, complete
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, w := range returns {
		err = batch.Append(
			w.AgentID, w.TargetDate.Time(), uint16(w.WindowDays), w.Return, w.TotalPnL,
			uint32(w.NTrades), uint16(w.PositiveDays), uint16(w.NegativeDays),
			uint16(w.DaysPresent), w.Complete,
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

// GetByKey retrieves one record. Returns ErrNotFound if not exists.
func (s *WindowReturnStore) GetByKey(ctx context.Context, agentID string, date domain.Day, windowDays int) (*domain.WindowReturn, error) {
	query := `
		SELECT agent_id, target_date, window_days, return, total_pnl,
		       n_trades, positive_days, negative_days, days_present, complete
		FROM window_returns
		WHERE agent_id = ? AND target_date = ? AND window_days = ?
		LIMIT 1
	`

	rows, err := s.conn.Query(ctx, query, agentID, date.Time(), uint16(windowDays))
	if err != nil {
		return nil, fmt.Errorf("query window return: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate window return rows: %w", err)
		}
		return nil, storage.ErrNotFound
	}

	var w domain.WindowReturn
	var target time.Time
	var windowDaysCol, positive, negative, present uint16
	var nTrades uint32
	err = rows.Scan(
		&w.AgentID, &target, &windowDaysCol, &w.Return, &w.TotalPnL,
		&nTrades, &positive, &negative, &present, &w.Complete,
	)
	if err != nil {
		return nil, fmt.Errorf("scan window return row: %w", err)
	}
	w.TargetDate = domain.DayOf(target)
	w.WindowDays = int(windowDaysCol)
	w.NTrades = int(nTrades)
	w.PositiveDays = int(positive)
	w.NegativeDays = int(negative)
	w.DaysPresent = int(present)
	return &w, nil
}

func (s *WindowReturnStore) exists(ctx context.Context, agentID string, date domain.Day, windowDays int) (bool, error) {
	query := `SELECT count(*) FROM window_returns WHERE agent_id = ? AND target_date = ? AND window_days = ?`

	var count uint64
	if err := s.conn.QueryRow(ctx, query, agentID, date.Time(), uint16(windowDays)).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

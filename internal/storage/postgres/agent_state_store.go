package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"agent-roster-lab/internal/domain"
	"agent-roster-lab/internal/storage"
)

// AgentStateStore implements storage.AgentStateStore using PostgreSQL.
type AgentStateStore struct {
	pool *Pool
}

// NewAgentStateStore creates a new AgentStateStore.
func NewAgentStateStore(pool *Pool) *AgentStateStore {
	return &AgentStateStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AgentStateStore = (*AgentStateStore)(nil)

const selectAgentStateColumns = `
	SELECT agent_id, date, state, daily_return, daily_pnl, balance_base,
	       decline_streak, in_roster, return_since_entry, entry_date,
	       window_return, exit_reason
	FROM agent_states
`

// InsertBulk adds a batch of states. Returns ErrDuplicateKey if any
// (agent_id, date) row exists.
func (s *AgentStateStore) InsertBulk(ctx context.Context, states []*domain.AgentState) error {
	if len(states) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO agent_states (
			agent_id, date, state, daily_return, daily_pnl, balance_base,
			decline_streak, in_roster, return_since_entry, entry_date,
			window_return, exit_reason
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	for _, st := range states {
		_, err := tx.Exec(ctx, query,
			st.AgentID, dayArg(st.Date), string(st.State), st.DailyReturn, st.DailyPnL, st.BalanceBase,
			st.DeclineStreak, st.InRoster, st.ReturnSinceEntry, dayArg(st.EntryDate),
			st.WindowReturn, st.ExitReason,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert agent state: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByAgentDate retrieves one state. Returns ErrNotFound if not exists.
func (s *AgentStateStore) GetByAgentDate(ctx context.Context, agentID string, date domain.Day) (*domain.AgentState, error) {
	query := selectAgentStateColumns + ` WHERE agent_id = $1 AND date = $2`

	row := s.pool.QueryRow(ctx, query, agentID, dayArg(date))
	st, err := scanAgentState(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get agent state: %w", err)
	}
	return st, nil
}

// GetByDate retrieves all states for a day.
func (s *AgentStateStore) GetByDate(ctx context.Context, date domain.Day) ([]*domain.AgentState, error) {
	query := selectAgentStateColumns + ` WHERE date = $1 ORDER BY agent_id ASC`

	rows, err := s.pool.Query(ctx, query, dayArg(date))
	if err != nil {
		return nil, fmt.Errorf("get agent states by date: %w", err)
	}
	defer rows.Close()

	var states []*domain.AgentState
	for rows.Next() {
		st, err := scanAgentState(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent state row: %w", err)
		}
		states = append(states, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agent state rows: %w", err)
	}
	return states, nil
}

// MarkExited clears the roster flag and records the exit reason.
func (s *AgentStateStore) MarkExited(ctx context.Context, agentID string, date domain.Day, reason string) error {
	query := `
		UPDATE agent_states
		SET in_roster = FALSE, exit_reason = $3
		WHERE agent_id = $1 AND date = $2
	`

	tag, err := s.pool.Exec(ctx, query, agentID, dayArg(date), reason)
	if err != nil {
		return fmt.Errorf("mark agent exited: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanAgentState(row pgx.Row) (*domain.AgentState, error) {
	var st domain.AgentState
	var state string
	var d, entry time.Time
	err := row.Scan(
		&st.AgentID, &d, &state, &st.DailyReturn, &st.DailyPnL, &st.BalanceBase,
		&st.DeclineStreak, &st.InRoster, &st.ReturnSinceEntry, &entry,
		&st.WindowReturn, &st.ExitReason,
	)
	if err != nil {
		return nil, err
	}
	st.Date = scanDay(d)
	st.EntryDate = scanDay(entry)
	st.State = domain.StateType(state)
	return &st, nil
}

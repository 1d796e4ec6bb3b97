package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"agent-roster-lab/internal/domain"
	"agent-roster-lab/internal/storage"
)

// RosterStore implements storage.RosterStore using PostgreSQL.
type RosterStore struct {
	pool *Pool
}

// NewRosterStore creates a new RosterStore.
func NewRosterStore(pool *Pool) *RosterStore {
	return &RosterStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RosterStore = (*RosterStore)(nil)

// InsertRanking adds a day's full ranked list atomically.
// Returns ErrDuplicateKey if any (date, window, agent) row exists.
func (s *RosterStore) InsertRanking(ctx context.Context, entries []*domain.RosterEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO roster_entries (
			date, window_days, rank, agent_id, window_return,
			complete, n_accounts, total_aum, in_roster
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	for _, e := range entries {
		_, err := tx.Exec(ctx, query,
			dayArg(e.Date), e.WindowDays, e.Rank, e.AgentID, e.WindowReturn,
			e.Complete, e.NAccounts, e.TotalAUM, e.InRoster,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert roster entry: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByDate retrieves a day's full ranked list ordered by rank ASC.
func (s *RosterStore) GetByDate(ctx context.Context, date domain.Day, windowDays int) ([]*domain.RosterEntry, error) {
	return s.query(ctx, `
		SELECT date, window_days, rank, agent_id, window_return,
		       complete, n_accounts, total_aum, in_roster
		FROM roster_entries
		WHERE date = $1 AND window_days = $2
		ORDER BY rank ASC
	`, dayArg(date), windowDays)
}

// GetRostered retrieves only in-roster entries ordered by rank ASC.
func (s *RosterStore) GetRostered(ctx context.Context, date domain.Day, windowDays int) ([]*domain.RosterEntry, error) {
	return s.query(ctx, `
		SELECT date, window_days, rank, agent_id, window_return,
		       complete, n_accounts, total_aum, in_roster
		FROM roster_entries
		WHERE date = $1 AND window_days = $2 AND in_roster
		ORDER BY rank ASC
	`, dayArg(date), windowDays)
}

func (s *RosterStore) query(ctx context.Context, query string, args ...any) ([]*domain.RosterEntry, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query roster entries: %w", err)
	}
	defer rows.Close()

	return scanRosterEntries(rows)
}

func scanRosterEntries(rows pgx.Rows) ([]*domain.RosterEntry, error) {
	var entries []*domain.RosterEntry
	for rows.Next() {
		var e domain.RosterEntry
		var d time.Time
		err := rows.Scan(
			&d, &e.WindowDays, &e.Rank, &e.AgentID, &e.WindowReturn,
			&e.Complete, &e.NAccounts, &e.TotalAUM, &e.InRoster,
		)
		if err != nil {
			return nil, fmt.Errorf("scan roster entry row: %w", err)
		}
		e.Date = scanDay(d)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roster entry rows: %w", err)
	}
	return entries, nil
}

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"agent-roster-lab/internal/domain"
	"agent-roster-lab/internal/storage"
)

// RotationEventStore implements storage.RotationEventStore using PostgreSQL.
type RotationEventStore struct {
	pool *Pool
}

// NewRotationEventStore creates a new RotationEventStore.
func NewRotationEventStore(pool *Pool) *RotationEventStore {
	return &RotationEventStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RotationEventStore = (*RotationEventStore)(nil)

const selectRotationEventColumns = `
	SELECT event_id, date, window_days, agent_out, agent_in, reason,
	       n_accounts, total_assets, window_return_out,
	       return_since_entry_out, window_return_in
	FROM rotation_events
`

// Insert adds an event. Returns ErrDuplicateKey if event_id exists.
func (s *RotationEventStore) Insert(ctx context.Context, e *domain.RotationEvent) error {
	query := `
		INSERT INTO rotation_events (
			event_id, date, window_days, agent_out, agent_in, reason,
			n_accounts, total_assets, window_return_out,
			return_since_entry_out, window_return_in
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := s.pool.Exec(ctx, query,
		e.EventID, dayArg(e.Date), e.WindowDays, e.AgentOut, e.AgentIn, e.Reason,
		e.NAccounts, e.TotalAssets, e.WindowReturnOut,
		e.ReturnSinceEntryOut, e.WindowReturnIn,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert rotation event: %w", err)
	}
	return nil
}

// GetByDateRange retrieves events within [from, to], ordered by date ASC.
func (s *RotationEventStore) GetByDateRange(ctx context.Context, from, to domain.Day) ([]*domain.RotationEvent, error) {
	query := selectRotationEventColumns + `
		WHERE date >= $1 AND date <= $2
		ORDER BY date ASC, event_id ASC
	`

	rows, err := s.pool.Query(ctx, query, dayArg(from), dayArg(to))
	if err != nil {
		return nil, fmt.Errorf("get rotation events by range: %w", err)
	}
	defer rows.Close()

	return scanRotationEvents(rows)
}

// GetByAgent retrieves events where the agent was on either side.
func (s *RotationEventStore) GetByAgent(ctx context.Context, agentID string) ([]*domain.RotationEvent, error) {
	query := selectRotationEventColumns + `
		WHERE agent_out = $1 OR agent_in = $1
		ORDER BY date ASC, event_id ASC
	`

	rows, err := s.pool.Query(ctx, query, agentID)
	if err != nil {
		return nil, fmt.Errorf("get rotation events by agent: %w", err)
	}
	defer rows.Close()

	return scanRotationEvents(rows)
}

func scanRotationEvents(rows pgx.Rows) ([]*domain.RotationEvent, error) {
	var events []*domain.RotationEvent
	for rows.Next() {
		var e domain.RotationEvent
		var d time.Time
		err := rows.Scan(
			&e.EventID, &d, &e.WindowDays, &e.AgentOut, &e.AgentIn, &e.Reason,
			&e.NAccounts, &e.TotalAssets, &e.WindowReturnOut,
			&e.ReturnSinceEntryOut, &e.WindowReturnIn,
		)
		if err != nil {
			return nil, fmt.Errorf("scan rotation event row: %w", err)
		}
		e.Date = scanDay(d)
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rotation event rows: %w", err)
	}
	return events, nil
}

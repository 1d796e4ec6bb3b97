package postgres

import (
	"context"
	"fmt"
	"time"

	"agent-roster-lab/internal/domain"
	"agent-roster-lab/internal/storage"
)

// BalanceStore implements storage.BalanceStore using PostgreSQL.
type BalanceStore struct {
	pool *Pool
}

// NewBalanceStore creates a new BalanceStore.
func NewBalanceStore(pool *Pool) *BalanceStore {
	return &BalanceStore{pool: pool}
}

// Compile-time interface check.
var _ storage.BalanceStore = (*BalanceStore)(nil)

const insertBalanceQuery = `
	INSERT INTO balance_snapshots (agent_id, date, balance)
	VALUES ($1, $2, $3)
`

// Insert adds a snapshot. Returns ErrDuplicateKey if (agent_id, date) exists.
func (s *BalanceStore) Insert(ctx context.Context, b *domain.BalanceSnapshot) error {
	_, err := s.pool.Exec(ctx, insertBalanceQuery, b.AgentID, dayArg(b.Date), b.Balance)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert balance snapshot: %w", err)
	}
	return nil
}

// InsertBulk adds multiple snapshots atomically. Fails the entire batch on
// any duplicate.
func (s *BalanceStore) InsertBulk(ctx context.Context, snapshots []*domain.BalanceSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, b := range snapshots {
		if _, err := tx.Exec(ctx, insertBalanceQuery, b.AgentID, dayArg(b.Date), b.Balance); err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert balance snapshot in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByAgentDate retrieves the snapshot for one agent and day.
func (s *BalanceStore) GetByAgentDate(ctx context.Context, agentID string, date domain.Day) (*domain.BalanceSnapshot, error) {
	query := `
		SELECT agent_id, date, balance
		FROM balance_snapshots
		WHERE agent_id = $1 AND date = $2
	`

	var b domain.BalanceSnapshot
	var d time.Time
	err := s.pool.QueryRow(ctx, query, agentID, dayArg(date)).Scan(&b.AgentID, &d, &b.Balance)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get balance snapshot: %w", err)
	}
	b.Date = scanDay(d)
	return &b, nil
}

// GetByAgentsRange retrieves snapshots for a set of agents within [from, to].
func (s *BalanceStore) GetByAgentsRange(ctx context.Context, agentIDs []string, from, to domain.Day) ([]*domain.BalanceSnapshot, error) {
	if len(agentIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT agent_id, date, balance
		FROM balance_snapshots
		WHERE agent_id = ANY($1) AND date >= $2 AND date <= $3
		ORDER BY agent_id ASC, date ASC
	`

	rows, err := s.pool.Query(ctx, query, agentIDs, dayArg(from), dayArg(to))
	if err != nil {
		return nil, fmt.Errorf("get balance snapshots by range: %w", err)
	}
	defer rows.Close()

	var snapshots []*domain.BalanceSnapshot
	for rows.Next() {
		var b domain.BalanceSnapshot
		var d time.Time
		if err := rows.Scan(&b.AgentID, &d, &b.Balance); err != nil {
			return nil, fmt.Errorf("scan balance snapshot row: %w", err)
		}
		b.Date = scanDay(d)
		snapshots = append(snapshots, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate balance snapshot rows: %w", err)
	}
	return snapshots, nil
}

// AgentIDsByDate returns the distinct agents with a snapshot on a day.
func (s *BalanceStore) AgentIDsByDate(ctx context.Context, date domain.Day) ([]string, error) {
	query := `
		SELECT DISTINCT agent_id
		FROM balance_snapshots
		WHERE date = $1
		ORDER BY agent_id ASC
	`

	rows, err := s.pool.Query(ctx, query, dayArg(date))
	if err != nil {
		return nil, fmt.Errorf("get agent ids by date: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan agent id row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agent id rows: %w", err)
	}
	return ids, nil
}

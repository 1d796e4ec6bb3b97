package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"agent-roster-lab/internal/domain"
	"agent-roster-lab/internal/storage"
)

// CapitalStore implements storage.CapitalStore using PostgreSQL.
// ApplyBatch runs in a single transaction so a rotation, rebalance or
// stop-loss event commits atomically.
type CapitalStore struct {
	pool *Pool
}

// NewCapitalStore creates a new CapitalStore.
func NewCapitalStore(pool *Pool) *CapitalStore {
	return &CapitalStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CapitalStore = (*CapitalStore)(nil)

const selectAccountColumns = `
	SELECT account_id, holder_name, initial_capital, current_capital,
	       agent_id, assigned_on, agent_return_at_assignment, capital_at_assignment,
	       return_total, return_with_agent, win_rate, reassignments, status
	FROM capital_accounts
`

const selectAssignmentColumns = `
	SELECT record_id, account_id, agent_id, reason,
	       start_date, agent_return_start, capital_start,
	       end_date, agent_return_end, account_return, capital_end, days_held
	FROM assignment_records
`

const insertAccountQuery = `
	INSERT INTO capital_accounts (
		account_id, holder_name, initial_capital, current_capital,
		agent_id, assigned_on, agent_return_at_assignment, capital_at_assignment,
		return_total, return_with_agent, win_rate, reassignments, status
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
`

const insertAssignmentQuery = `
	INSERT INTO assignment_records (
		record_id, account_id, agent_id, reason,
		start_date, agent_return_start, capital_start
	) VALUES ($1, $2, $3, $4, $5, $6, $7)
`

// InsertAccounts creates accounts with their opening assignment records.
func (s *CapitalStore) InsertAccounts(ctx context.Context, accounts []*domain.CapitalAccount, opens []*domain.AssignmentRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, a := range accounts {
		_, err := tx.Exec(ctx, insertAccountQuery,
			a.AccountID, a.HolderName, a.InitialCapital, a.CurrentCapital,
			a.AgentID, dayArg(a.AssignedOn), a.AgentReturnAtAssignment, a.CapitalAtAssignment,
			a.ReturnTotal, a.ReturnWithAgent, a.WinRate, a.Reassignments, string(a.Status),
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert capital account: %w", err)
		}
	}
	for _, r := range opens {
		_, err := tx.Exec(ctx, insertAssignmentQuery,
			r.RecordID, r.AccountID, r.AgentID, r.Reason,
			dayArg(r.StartDate), r.AgentReturnStart, r.CapitalStart,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert assignment record: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Accounts retrieves accounts matching the filter, ordered by account_id ASC.
func (s *CapitalStore) Accounts(ctx context.Context, f storage.AccountFilter) ([]*domain.CapitalAccount, error) {
	query := selectAccountColumns + ` WHERE ($1 = '' OR agent_id = $1) AND ($2 = '' OR status = $2) ORDER BY account_id ASC`

	rows, err := s.pool.Query(ctx, query, f.AgentID, string(f.Status))
	if err != nil {
		return nil, fmt.Errorf("get capital accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*domain.CapitalAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan capital account row: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate capital account rows: %w", err)
	}
	return accounts, nil
}

// AccountByID retrieves one account. Returns ErrNotFound if not exists.
func (s *CapitalStore) AccountByID(ctx context.Context, accountID string) (*domain.CapitalAccount, error) {
	query := selectAccountColumns + ` WHERE account_id = $1`

	a, err := scanAccount(s.pool.QueryRow(ctx, query, accountID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get capital account by id: %w", err)
	}
	return a, nil
}

// ApplyBatch applies a capital mutation atomically. Any row that cannot be
// applied (missing account, already closed record, duplicate open) rolls the
// whole batch back and reports ErrTransactional.
func (s *CapitalStore) ApplyBatch(ctx context.Context, batch *storage.CapitalBatch) error {
	if batch == nil {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	updateQuery := `
		UPDATE capital_accounts
		SET current_capital = $2, agent_id = $3, assigned_on = $4,
		    agent_return_at_assignment = $5, capital_at_assignment = $6,
		    return_total = $7, return_with_agent = $8, win_rate = $9,
		    reassignments = $10, status = $11
		WHERE account_id = $1
	`
	for _, a := range batch.UpdateAccounts {
		tag, err := tx.Exec(ctx, updateQuery,
			a.AccountID, a.CurrentCapital, a.AgentID, dayArg(a.AssignedOn),
			a.AgentReturnAtAssignment, a.CapitalAtAssignment,
			a.ReturnTotal, a.ReturnWithAgent, a.WinRate,
			a.Reassignments, string(a.Status),
		)
		if err != nil {
			return fmt.Errorf("update capital account: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: account %s does not exist", storage.ErrTransactional, a.AccountID)
		}
	}

	closeQuery := `
		UPDATE assignment_records
		SET end_date = $2, agent_return_end = $3, account_return = $4,
		    capital_end = $5, days_held = $6
		WHERE record_id = $1 AND end_date IS NULL
	`
	for _, r := range batch.CloseAssignments {
		if r.EndDate == nil {
			return fmt.Errorf("%w: record %s has no closing fields", storage.ErrTransactional, r.RecordID)
		}
		tag, err := tx.Exec(ctx, closeQuery,
			r.RecordID, dayArg(*r.EndDate), r.AgentReturnEnd, r.AccountReturn,
			r.CapitalEnd, r.DaysHeld,
		)
		if err != nil {
			return fmt.Errorf("close assignment record: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: record %s missing or already closed", storage.ErrTransactional, r.RecordID)
		}
	}

	for _, r := range batch.OpenAssignments {
		_, err := tx.Exec(ctx, insertAssignmentQuery,
			r.RecordID, r.AccountID, r.AgentID, r.Reason,
			dayArg(r.StartDate), r.AgentReturnStart, r.CapitalStart,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return fmt.Errorf("%w: record %s already exists", storage.ErrTransactional, r.RecordID)
			}
			return fmt.Errorf("open assignment record: %w", err)
		}
	}

	// Audit events ride the same transaction; re-applied events are skipped.
	eventQuery := `
		INSERT INTO rotation_events (
			event_id, date, window_days, agent_out, agent_in, reason,
			n_accounts, total_assets, window_return_out,
			return_since_entry_out, window_return_in
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (event_id) DO NOTHING
	`
	for _, e := range batch.RotationEvents {
		_, err := tx.Exec(ctx, eventQuery,
			e.EventID, dayArg(e.Date), e.WindowDays, e.AgentOut, e.AgentIn, e.Reason,
			e.NAccounts, e.TotalAssets, e.WindowReturnOut,
			e.ReturnSinceEntryOut, e.WindowReturnIn,
		)
		if err != nil {
			return fmt.Errorf("insert rotation event: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Assignments retrieves an account's assignment history, start date ASC.
func (s *CapitalStore) Assignments(ctx context.Context, accountID string) ([]*domain.AssignmentRecord, error) {
	query := selectAssignmentColumns + ` WHERE account_id = $1 ORDER BY start_date ASC, record_id ASC`

	rows, err := s.pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("get assignment records: %w", err)
	}
	defer rows.Close()

	return scanAssignments(rows)
}

// OpenAssignmentsByAgent retrieves the open records of an agent's accounts.
func (s *CapitalStore) OpenAssignmentsByAgent(ctx context.Context, agentID string) ([]*domain.AssignmentRecord, error) {
	query := selectAssignmentColumns + ` WHERE agent_id = $1 AND end_date IS NULL ORDER BY account_id ASC`

	rows, err := s.pool.Query(ctx, query, agentID)
	if err != nil {
		return nil, fmt.Errorf("get open assignment records: %w", err)
	}
	defer rows.Close()

	return scanAssignments(rows)
}

func scanAccount(row pgx.Row) (*domain.CapitalAccount, error) {
	var a domain.CapitalAccount
	var assigned time.Time
	var status string
	err := row.Scan(
		&a.AccountID, &a.HolderName, &a.InitialCapital, &a.CurrentCapital,
		&a.AgentID, &assigned, &a.AgentReturnAtAssignment, &a.CapitalAtAssignment,
		&a.ReturnTotal, &a.ReturnWithAgent, &a.WinRate, &a.Reassignments, &status,
	)
	if err != nil {
		return nil, err
	}
	a.AssignedOn = scanDay(assigned)
	a.Status = domain.AccountStatus(status)
	return &a, nil
}

func scanAssignments(rows pgx.Rows) ([]*domain.AssignmentRecord, error) {
	var records []*domain.AssignmentRecord
	for rows.Next() {
		var r domain.AssignmentRecord
		var start time.Time
		var end *time.Time
		err := rows.Scan(
			&r.RecordID, &r.AccountID, &r.AgentID, &r.Reason,
			&start, &r.AgentReturnStart, &r.CapitalStart,
			&end, &r.AgentReturnEnd, &r.AccountReturn, &r.CapitalEnd, &r.DaysHeld,
		)
		if err != nil {
			return nil, fmt.Errorf("scan assignment record row: %w", err)
		}
		r.StartDate = scanDay(start)
		if end != nil {
			d := scanDay(*end)
			r.EndDate = &d
		}
		records = append(records, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assignment record rows: %w", err)
	}
	return records, nil
}

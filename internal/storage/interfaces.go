package storage

import (
	"context"

	"agent-roster-lab/internal/domain"
)

// BalanceStore provides access to the daily balance-snapshot time series.
type BalanceStore interface {
	// Insert adds a snapshot. Returns ErrDuplicateKey if (agent_id, date) exists.
	Insert(ctx context.Context, b *domain.BalanceSnapshot) error

	// InsertBulk adds multiple snapshots atomically. Fails the entire batch
	// on any duplicate.
	InsertBulk(ctx context.Context, snapshots []*domain.BalanceSnapshot) error

	// GetByAgentDate retrieves the snapshot for one agent and day.
	// Returns ErrNotFound if not exists.
	GetByAgentDate(ctx context.Context, agentID string, date domain.Day) (*domain.BalanceSnapshot, error)

	// GetByAgentsRange retrieves snapshots for a set of agents within
	// [from, to] inclusive, in one bulk read.
	GetByAgentsRange(ctx context.Context, agentIDs []string, from, to domain.Day) ([]*domain.BalanceSnapshot, error)

	// AgentIDsByDate returns the distinct agents with a snapshot on a day.
	AgentIDsByDate(ctx context.Context, date domain.Day) ([]string, error)
}

// TradeStore provides access to the trade-fill time series.
type TradeStore interface {
	// InsertBulk adds multiple fills. Trades have no natural unique key
	// upstream, so inserts are append-only without duplicate detection.
	InsertBulk(ctx context.Context, fills []*domain.TradeFill) error

	// GetByAgentDate retrieves all fills for one agent and day.
	GetByAgentDate(ctx context.Context, agentID string, date domain.Day) ([]*domain.TradeFill, error)

	// GetByAgentsRange retrieves fills for a set of agents within
	// [from, to] inclusive, in one bulk read.
	GetByAgentsRange(ctx context.Context, agentIDs []string, from, to domain.Day) ([]*domain.TradeFill, error)
}

// DailyReturnStore caches computed daily returns, keyed by (agent_id, date).
type DailyReturnStore interface {
	// Insert adds a return. Returns ErrDuplicateKey if (agent_id, date) exists.
	Insert(ctx context.Context, r *domain.DailyReturn) error

	// InsertBulk adds multiple returns, skipping records whose key already
	// exists. Skipping (rather than failing) keeps bulk recomputation
	// idempotent.
	InsertBulk(ctx context.Context, returns []*domain.DailyReturn) error

	// GetByAgentDate retrieves one record. Returns ErrNotFound if not exists.
	GetByAgentDate(ctx context.Context, agentID string, date domain.Day) (*domain.DailyReturn, error)

	// GetByAgentsRange retrieves records for a set of agents within
	// [from, to] inclusive.
	GetByAgentsRange(ctx context.Context, agentIDs []string, from, to domain.Day) ([]*domain.DailyReturn, error)
}

// WindowReturnStore persists compounded window returns, keyed by
// (agent_id, target_date, window_days).
type WindowReturnStore interface {
	// Insert adds a window return. Returns ErrDuplicateKey if the key exists.
	Insert(ctx context.Context, w *domain.WindowReturn) error

	// InsertBulk adds multiple window returns, skipping existing keys.
	InsertBulk(ctx context.Context, returns []*domain.WindowReturn) error

	// GetByKey retrieves one record. Returns ErrNotFound if not exists.
	GetByKey(ctx context.Context, agentID string, date domain.Day, windowDays int) (*domain.WindowReturn, error)
}

// RosterStore persists the daily ranked lists. The collection is an
// append-only log: one full list per (date, window_days), never updated.
type RosterStore interface {
	// InsertRanking adds a day's full ranked list atomically.
	// Returns ErrDuplicateKey if any (date, window, agent) row exists.
	InsertRanking(ctx context.Context, entries []*domain.RosterEntry) error

	// GetByDate retrieves a day's full ranked list ordered by rank ASC.
	// Returns an empty slice when the day has no ranking.
	GetByDate(ctx context.Context, date domain.Day, windowDays int) ([]*domain.RosterEntry, error)

	// GetRostered retrieves only entries with the in-roster flag set,
	// ordered by rank ASC.
	GetRostered(ctx context.Context, date domain.Day, windowDays int) ([]*domain.RosterEntry, error)
}

// AgentStateStore persists per-day agent states.
type AgentStateStore interface {
	// InsertBulk adds a batch of states. Returns ErrDuplicateKey if any
	// (agent_id, date) row exists.
	InsertBulk(ctx context.Context, states []*domain.AgentState) error

	// GetByAgentDate retrieves one state. Returns ErrNotFound if not exists.
	GetByAgentDate(ctx context.Context, agentID string, date domain.Day) (*domain.AgentState, error)

	// GetByDate retrieves all states for a day.
	GetByDate(ctx context.Context, date domain.Day) ([]*domain.AgentState, error)

	// MarkExited clears the roster flag on an agent's state for a day and
	// records the exit reason. This is the only mutation a state row admits.
	MarkExited(ctx context.Context, agentID string, date domain.Day, reason string) error
}

// RotationEventStore persists immutable rotation audit records.
type RotationEventStore interface {
	// Insert adds an event. Returns ErrDuplicateKey if event_id exists.
	Insert(ctx context.Context, e *domain.RotationEvent) error

	// GetByDateRange retrieves events within [from, to] inclusive,
	// ordered by date ASC.
	GetByDateRange(ctx context.Context, from, to domain.Day) ([]*domain.RotationEvent, error)

	// GetByAgent retrieves events where the agent was on either side.
	GetByAgent(ctx context.Context, agentID string) ([]*domain.RotationEvent, error)
}

// AccountFilter narrows capital-account queries. Zero values match all.
type AccountFilter struct {
	AgentID string
	Status  domain.AccountStatus
}

// CapitalBatch is one atomic capital mutation: account updates plus the
// assignment-record closes and opens that belong to the same logical event.
// Implementations apply the whole batch or none of it.
//
// RotationEvents carries the audit events of the mutation so a rotation
// commits together with the capital it moved. An event whose event_id
// already exists is skipped, not an error; re-running a day stays idempotent.
type CapitalBatch struct {
	UpdateAccounts   []*domain.CapitalAccount
	CloseAssignments []*domain.AssignmentRecord
	OpenAssignments  []*domain.AssignmentRecord
	RotationEvents   []*domain.RotationEvent
}

// CapitalStore owns capital accounts and their assignment history.
// All mutation beyond initial creation goes through ApplyBatch so that a
// rotation, rebalance or stop-loss event commits atomically.
type CapitalStore interface {
	// InsertAccounts creates accounts with their opening assignment records.
	// Returns ErrDuplicateKey if any account_id exists.
	InsertAccounts(ctx context.Context, accounts []*domain.CapitalAccount, opens []*domain.AssignmentRecord) error

	// Accounts retrieves accounts matching the filter, ordered by account_id ASC.
	Accounts(ctx context.Context, f AccountFilter) ([]*domain.CapitalAccount, error)

	// AccountByID retrieves one account. Returns ErrNotFound if not exists.
	AccountByID(ctx context.Context, accountID string) (*domain.CapitalAccount, error)

	// ApplyBatch applies a capital mutation atomically.
	// Returns ErrTransactional if the batch could not be fully applied.
	ApplyBatch(ctx context.Context, batch *CapitalBatch) error

	// Assignments retrieves an account's full assignment history,
	// ordered by start date ASC.
	Assignments(ctx context.Context, accountID string) ([]*domain.AssignmentRecord, error)

	// OpenAssignmentsByAgent retrieves the open assignment records of all
	// accounts currently assigned to an agent.
	OpenAssignmentsByAgent(ctx context.Context, agentID string) ([]*domain.AssignmentRecord, error)
}

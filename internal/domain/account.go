package domain

// AccountStatus is the lifecycle state of a capital account.
type AccountStatus string

const (
	AccountActive AccountStatus = "active"
	AccountClosed AccountStatus = "closed"
)

// Assignment-change reasons recorded on AssignmentRecord rows.
const (
	AssignmentInitial   = "initial_distribution"
	AssignmentRotation  = "rotation"
	AssignmentRebalance = "rebalance"
	AssignmentStopLoss  = "stop_loss"
)

// CapitalAccount is one client capital account. Accounts are owned
// exclusively by the capital distribution engine; every other component
// requests changes through it.
//
// CapitalAtAssignment freezes the account's capital at the moment of the
// current assignment; the daily return update always recomputes
// CurrentCapital from it, which is what makes re-running a day's update
// idempotent instead of compounding the same factor twice.
type CapitalAccount struct {
	AccountID      string
	HolderName     string
	InitialCapital float64 // fixed at creation, never changed
	CurrentCapital float64

	AgentID                 string
	AssignedOn              Day
	AgentReturnAtAssignment float64 // agent's window return when assigned
	CapitalAtAssignment     float64

	ReturnTotal     float64 // CurrentCapital / InitialCapital − 1
	ReturnWithAgent float64 // since current assignment
	WinRate         float64 // current agent's positive-day fraction
	Reassignments   int
	Status          AccountStatus
}

// AssignmentRecord is one entry of an account's assignment history.
// A record opens when an account is assigned to an agent and closes when
// the account is reassigned; closed records are immutable.
type AssignmentRecord struct {
	RecordID  string
	AccountID string
	AgentID   string
	Reason    string

	StartDate        Day
	AgentReturnStart float64
	CapitalStart     float64

	// Closing fields; nil while the assignment is open.
	EndDate        *Day
	AgentReturnEnd *float64
	AccountReturn  *float64 // return earned with the agent over the assignment
	CapitalEnd     *float64
	DaysHeld       *int
}

// Open reports whether the assignment is still active.
func (r *AssignmentRecord) Open() bool { return r.EndDate == nil }

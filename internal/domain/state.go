package domain

// StateType classifies an agent's day as growth or decline.
type StateType string

const (
	StateGrowth  StateType = "GROWTH"
	StateDecline StateType = "DECLINE"
)

// AgentState is the per-(agent, day) state machine output.
//
// DeclineStreak counts consecutive days with a negative daily return; a day
// with a non-negative return resets it to zero. ReturnSinceEntry accumulates
// additively (sum of daily returns) from the admission day, unlike window
// returns which compound.
type AgentState struct {
	AgentID          string
	Date             Day
	State            StateType
	DailyReturn      float64
	DailyPnL         float64
	BalanceBase      float64
	DeclineStreak    int
	InRoster         bool
	ReturnSinceEntry float64
	EntryDate        Day
	WindowReturn     float64
	ExitReason       string // set when the agent is marked out on this day
}

// ExitEvaluation is the ephemeral verdict produced by the exit-rule engine
// for one agent within one orchestration cycle. Not persisted.
type ExitEvaluation struct {
	AgentID          string
	ShouldExit       bool
	Reasons          []string // reasons of the sub-rules that actually fired
	DeclineStreak    int
	ReturnSinceEntry float64
	DailyReturn      float64
}

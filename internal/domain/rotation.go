package domain

// RotationEvent is the immutable audit record of one agent swap.
type RotationEvent struct {
	EventID             string
	Date                Day
	WindowDays          int
	AgentOut            string
	AgentIn             string
	Reason              string
	NAccounts           int     // accounts migrated
	TotalAssets         float64 // capital migrated
	WindowReturnOut     float64
	ReturnSinceEntryOut float64
	WindowReturnIn      float64
}

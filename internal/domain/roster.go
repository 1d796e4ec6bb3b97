package domain

// RosterEntry is one row of a day's ranked list for a window length.
// The full ranked list is persisted each day; InRoster marks the top K.
// Entries are append-only: the next day's list supersedes, never updates.
type RosterEntry struct {
	Date         Day
	WindowDays   int
	Rank         int // 1..N, unique and contiguous within (date, window)
	AgentID      string
	WindowReturn float64
	Complete     bool // window had full data
	NAccounts    int
	TotalAUM     float64
	InRoster     bool
}

package domain

// BalanceSnapshot is one day's reference balance for an agent, as ingested
// from the upstream feed. Keyed by (agent_id, date).
type BalanceSnapshot struct {
	AgentID string
	Date    Day
	Balance float64
}

// TradeFill is a single realized trade for an agent on a calendar day.
type TradeFill struct {
	AgentID string
	Date    Day
	Symbol  string
	PnL     float64
}

// TradeDetail is the per-trade contribution carried on a DailyReturn.
type TradeDetail struct {
	Symbol string
	PnL    float64
}

// DailyReturn is the immutable per-(agent, day) return record.
// Return is PnL / Balance; records are only created for days with a
// positive reference balance, so Return is always finite.
type DailyReturn struct {
	AgentID string
	Date    Day
	Balance float64 // reference balance, > 0
	PnL     float64 // total realized profit/loss for the day
	Return  float64 // PnL / Balance
	Trades  []TradeDetail
	NTrades int
}

// WindowReturn is the compounded return over a trailing window ending at
// TargetDate. The window spans WindowDays+1 calendar days; Complete is true
// only when every day in the window produced a valid DailyReturn.
type WindowReturn struct {
	AgentID      string
	TargetDate   Day
	WindowDays   int
	Return       float64 // Π(1+daily_i) − 1 over present days
	TotalPnL     float64
	NTrades      int
	PositiveDays int
	NegativeDays int
	DaysPresent  int
	Complete     bool
}

// WinRate is the fraction of present days with a positive return.
func (w *WindowReturn) WinRate() float64 {
	if w.DaysPresent == 0 {
		return 0
	}
	return float64(w.PositiveDays) / float64(w.DaysPresent)
}

package exitrule

import "agent-roster-lab/internal/domain"

// Mode selects how a composite combines its rules.
type Mode int

const (
	// Any exits when at least one rule trips.
	Any Mode = iota
	// All exits only when every rule trips.
	All
)

// Engine evaluates a set of rules against agent states. Rules are checked
// independently so an evaluation can carry multiple triggered reasons.
type Engine struct {
	rules []Rule
	mode  Mode
}

// NewEngine creates an engine over the given rules.
func NewEngine(mode Mode, rules ...Rule) *Engine {
	return &Engine{rules: rules, mode: mode}
}

// NewDefaultEngine wires the standard pair: three straight losing days or a
// cumulative return at the floor, either one sufficient.
func NewDefaultEngine() *Engine {
	return NewEngine(Any,
		NewConsecutiveDeclineRule(domain.DefaultDeclineExitDays),
		NewReturnFloorRule(domain.DefaultReturnFloor),
	)
}

// Evaluate checks one state against every rule.
func (e *Engine) Evaluate(st *domain.AgentState) *domain.ExitEvaluation {
	ev := &domain.ExitEvaluation{
		AgentID:          st.AgentID,
		DeclineStreak:    st.DeclineStreak,
		ReturnSinceEntry: st.ReturnSinceEntry,
		DailyReturn:      st.DailyReturn,
	}
	tripped := 0
	for _, r := range e.rules {
		if r.ShouldExit(st) {
			tripped++
			ev.Reasons = append(ev.Reasons, r.Reason())
		}
	}
	switch e.mode {
	case All:
		ev.ShouldExit = len(e.rules) > 0 && tripped == len(e.rules)
	default:
		ev.ShouldExit = tripped > 0
	}
	return ev
}

// EvaluateBatch checks every rostered state and returns the evaluations of
// those that must exit, preserving input order.
func (e *Engine) EvaluateBatch(states []*domain.AgentState) []*domain.ExitEvaluation {
	var out []*domain.ExitEvaluation
	for _, st := range states {
		if !st.InRoster {
			continue
		}
		if ev := e.Evaluate(st); ev.ShouldExit {
			out = append(out, ev)
		}
	}
	return out
}

// Package state evolves each rostered agent's daily GROWTH/DECLINE state.
package state

import (
	"context"
	"errors"
	"fmt"

	"agent-roster-lab/internal/domain"
	"agent-roster-lab/internal/returns"
	"agent-roster-lab/internal/storage"
)

// ErrNoReturnData is returned when an agent cannot be classified because it
// has no daily return for the date. Classification without data is a hard
// error; callers exclude such agents from the batch instead of expecting a
// default state.
var ErrNoReturnData = errors.New("no daily return for classification date")

// Classifier runs the per-agent daily state machine.
type Classifier struct {
	aggregator *returns.Aggregator
	states     storage.AgentStateStore
}

// NewClassifier creates a new state classifier.
func NewClassifier(aggregator *returns.Aggregator, states storage.AgentStateStore) *Classifier {
	return &Classifier{aggregator: aggregator, states: states}
}

// Transition computes the next state from the previous state and the day's
// return. Pure function; the state machine in one place.
//
//   - return > 0 → GROWTH, streak reset to 0
//   - return < 0 → DECLINE, streak grows by 1 (from 0 unless already declining)
//   - return = 0 → previous state carries over, streak reset to 0
//
// A flat day is not a loss: it never extends a decline run, and per the
// streak invariant any non-negative day resets the counter.
func Transition(prev *domain.AgentState, dailyReturn float64) (domain.StateType, int) {
	switch {
	case dailyReturn > 0:
		return domain.StateGrowth, 0
	case dailyReturn < 0:
		streak := 1
		if prev != nil && prev.State == domain.StateDecline {
			streak = prev.DeclineStreak + 1
		}
		return domain.StateDecline, streak
	default:
		if prev != nil {
			return prev.State, 0
		}
		return domain.StateGrowth, 0
	}
}

// BatchResult summarizes one day's classification.
type BatchResult struct {
	States   []*domain.AgentState
	Growth   int
	Decline  int
	Failures map[string]error // agent id → why it could not be classified
}

// ClassifyBatch classifies every agent in agentIDs for date. Previous-day
// states seed streaks and cumulative returns; agents in newEntries have
// their admission date and cumulative return restarted at this day.
// windowReturns, when present, are recorded on the state rows for audit.
// Per-agent failures are collected, not fatal.
func (c *Classifier) ClassifyBatch(ctx context.Context, agentIDs []string, date domain.Day, newEntries map[string]bool, windowReturns map[string]float64) (*BatchResult, error) {
	result := &BatchResult{Failures: make(map[string]error)}

	prevStates, err := c.states.GetByDate(ctx, date.AddDays(-1))
	if err != nil {
		return nil, err
	}
	prevByAgent := make(map[string]*domain.AgentState, len(prevStates))
	for _, st := range prevStates {
		prevByAgent[st.AgentID] = st
	}

	// Two bulk reads inside: the aggregator joins balances and trades.
	daily, err := c.aggregator.ComputeDailyBulk(ctx, agentIDs, date, date)
	if err != nil {
		return nil, err
	}

	for _, agentID := range agentIDs {
		days := daily[agentID]
		if len(days) == 0 {
			result.Failures[agentID] = fmt.Errorf("agent %s on %s: %w", agentID, date, ErrNoReturnData)
			continue
		}
		dr := days[0]

		prev := prevByAgent[agentID]
		st := c.classify(prev, dr, date, newEntries[agentID])
		st.WindowReturn = windowReturns[agentID]
		result.States = append(result.States, st)
		if st.State == domain.StateGrowth {
			result.Growth++
		} else {
			result.Decline++
		}
	}

	if len(result.States) > 0 {
		if err := c.states.InsertBulk(ctx, result.States); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
			return nil, err
		}
	}
	return result, nil
}

func (c *Classifier) classify(prev *domain.AgentState, dr *domain.DailyReturn, date domain.Day, isNewEntry bool) *domain.AgentState {
	stateType, streak := Transition(prev, dr.Return)

	// Cumulative return since admission accumulates additively, unlike the
	// compounded window return: it tracks drift, not ranking.
	entryDate := date
	cumulative := dr.Return
	if !isNewEntry && prev != nil {
		entryDate = prev.EntryDate
		cumulative = prev.ReturnSinceEntry + dr.Return
	}

	return &domain.AgentState{
		AgentID:          dr.AgentID,
		Date:             date,
		State:            stateType,
		DailyReturn:      dr.Return,
		DailyPnL:         dr.PnL,
		BalanceBase:      dr.Balance,
		DeclineStreak:    streak,
		InRoster:         true,
		ReturnSinceEntry: cumulative,
		EntryDate:        entryDate,
	}
}

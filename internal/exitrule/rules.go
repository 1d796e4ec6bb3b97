// Package exitrule decides which rostered agents must leave the roster.
package exitrule

import (
	"fmt"

	"agent-roster-lab/internal/domain"
)

// Rule evaluates one exit condition against an agent's current state.
type Rule interface {
	// ShouldExit reports whether the state trips this rule.
	ShouldExit(st *domain.AgentState) bool

	// Reason returns a stable machine-readable label for audit records.
	Reason() string
}

// ConsecutiveDeclineRule exits an agent after maxDays straight losing days.
type ConsecutiveDeclineRule struct {
	MaxDays int
}

// NewConsecutiveDeclineRule creates the rule; maxDays at or below zero
// falls back to the default.
func NewConsecutiveDeclineRule(maxDays int) *ConsecutiveDeclineRule {
	if maxDays <= 0 {
		maxDays = domain.DefaultDeclineExitDays
	}
	return &ConsecutiveDeclineRule{MaxDays: maxDays}
}

func (r *ConsecutiveDeclineRule) ShouldExit(st *domain.AgentState) bool {
	return st.DeclineStreak >= r.MaxDays
}

func (r *ConsecutiveDeclineRule) Reason() string {
	return fmt.Sprintf("consecutive_decline_%dd", r.MaxDays)
}

// ReturnFloorRule exits an agent whose cumulative return since admission
// dropped below the floor. Sitting exactly at the floor is not an exit.
type ReturnFloorRule struct {
	Floor float64
}

// NewReturnFloorRule creates the rule; a zero floor falls back to the default.
func NewReturnFloorRule(floor float64) *ReturnFloorRule {
	if floor == 0 {
		floor = domain.DefaultReturnFloor
	}
	return &ReturnFloorRule{Floor: floor}
}

func (r *ReturnFloorRule) ShouldExit(st *domain.AgentState) bool {
	return st.ReturnSinceEntry < r.Floor
}

func (r *ReturnFloorRule) Reason() string {
	return fmt.Sprintf("return_floor_%.2f", r.Floor)
}

package exitrule

import (
	"testing"

	"agent-roster-lab/internal/domain"
)

func TestConsecutiveDeclineRule(t *testing.T) {
	rule := NewConsecutiveDeclineRule(3)

	if rule.ShouldExit(&domain.AgentState{DeclineStreak: 2}) {
		t.Errorf("Streak 2 must not exit")
	}
	if !rule.ShouldExit(&domain.AgentState{DeclineStreak: 3}) {
		t.Errorf("Streak 3 must exit")
	}
	if !rule.ShouldExit(&domain.AgentState{DeclineStreak: 5}) {
		t.Errorf("Streak beyond the threshold must still exit")
	}
	if got := rule.Reason(); got != "consecutive_decline_3d" {
		t.Errorf("Unexpected reason label: %s", got)
	}
}

func TestReturnFloorRule(t *testing.T) {
	rule := NewReturnFloorRule(-0.10)

	if rule.ShouldExit(&domain.AgentState{ReturnSinceEntry: -0.09}) {
		t.Errorf("Above the floor must not exit")
	}
	if rule.ShouldExit(&domain.AgentState{ReturnSinceEntry: -0.10}) {
		t.Errorf("Exactly at the floor must not exit")
	}
	if !rule.ShouldExit(&domain.AgentState{ReturnSinceEntry: -0.101}) {
		t.Errorf("Just below the floor must exit")
	}
	if !rule.ShouldExit(&domain.AgentState{ReturnSinceEntry: -0.25}) {
		t.Errorf("Below the floor must exit")
	}
	if got := rule.Reason(); got != "return_floor_-0.10" {
		t.Errorf("Unexpected reason label: %s", got)
	}
}

func TestRuleDefaults(t *testing.T) {
	if r := NewConsecutiveDeclineRule(0); r.MaxDays != domain.DefaultDeclineExitDays {
		t.Errorf("Zero maxDays did not fall back to default: %d", r.MaxDays)
	}
	if r := NewReturnFloorRule(0); r.Floor != domain.DefaultReturnFloor {
		t.Errorf("Zero floor did not fall back to default: %f", r.Floor)
	}
}

// A three-day losing run with only a mild cumulative loss exits through the
// streak rule alone; the floor rule stays quiet.
func TestEvaluate_StreakTripsWithoutFloor(t *testing.T) {
	engine := NewDefaultEngine()

	ev := engine.Evaluate(&domain.AgentState{
		AgentID:          "a1",
		DeclineStreak:    3,
		ReturnSinceEntry: -0.05,
	})
	if !ev.ShouldExit {
		t.Fatalf("Expected exit")
	}
	if len(ev.Reasons) != 1 || ev.Reasons[0] != "consecutive_decline_3d" {
		t.Errorf("Unexpected reasons: %v", ev.Reasons)
	}
}

func TestEvaluate_BothRulesRecorded(t *testing.T) {
	engine := NewDefaultEngine()

	ev := engine.Evaluate(&domain.AgentState{
		AgentID:          "a1",
		DeclineStreak:    4,
		ReturnSinceEntry: -0.15,
	})
	if !ev.ShouldExit {
		t.Fatalf("Expected exit")
	}
	if len(ev.Reasons) != 2 {
		t.Errorf("Expected both reasons recorded, got %v", ev.Reasons)
	}
}

func TestEvaluate_AllMode(t *testing.T) {
	engine := NewEngine(All,
		NewConsecutiveDeclineRule(3),
		NewReturnFloorRule(-0.10),
	)

	ev := engine.Evaluate(&domain.AgentState{DeclineStreak: 3, ReturnSinceEntry: -0.05})
	if ev.ShouldExit {
		t.Errorf("All mode must not exit on a single tripped rule")
	}
	ev = engine.Evaluate(&domain.AgentState{DeclineStreak: 3, ReturnSinceEntry: -0.12})
	if !ev.ShouldExit {
		t.Errorf("All mode must exit when every rule trips")
	}
}

func TestEvaluateBatch_SkipsUnrostered(t *testing.T) {
	engine := NewDefaultEngine()

	states := []*domain.AgentState{
		{AgentID: "in", InRoster: true, DeclineStreak: 3},
		{AgentID: "out", InRoster: false, DeclineStreak: 5},
		{AgentID: "safe", InRoster: true, DeclineStreak: 1},
	}
	evs := engine.EvaluateBatch(states)
	if len(evs) != 1 {
		t.Fatalf("Expected 1 exiting evaluation, got %d", len(evs))
	}
	if evs[0].AgentID != "in" {
		t.Errorf("Wrong agent flagged: %s", evs[0].AgentID)
	}
}

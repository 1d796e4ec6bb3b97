package state

import (
	"context"
	"testing"

	"agent-roster-lab/internal/domain"
	"agent-roster-lab/internal/returns"
	"agent-roster-lab/internal/storage/memory"
)

func TestTransition(t *testing.T) {
	declining := &domain.AgentState{State: domain.StateDecline, DeclineStreak: 2}
	growing := &domain.AgentState{State: domain.StateGrowth, DeclineStreak: 0}

	tests := []struct {
		name       string
		prev       *domain.AgentState
		ret        float64
		wantState  domain.StateType
		wantStreak int
	}{
		{"positive resets streak", declining, 0.01, domain.StateGrowth, 0},
		{"negative extends decline run", declining, -0.01, domain.StateDecline, 3},
		{"negative starts new run from growth", growing, -0.01, domain.StateDecline, 1},
		{"zero keeps state, resets streak", declining, 0, domain.StateDecline, 0},
		{"zero keeps growth state", growing, 0, domain.StateGrowth, 0},
		{"no previous state, negative", nil, -0.02, domain.StateDecline, 1},
		{"no previous state, zero", nil, 0, domain.StateGrowth, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, streak := Transition(tt.prev, tt.ret)
			if state != tt.wantState {
				t.Errorf("State mismatch: got %s, want %s", state, tt.wantState)
			}
			if streak != tt.wantStreak {
				t.Errorf("Streak mismatch: got %d, want %d", streak, tt.wantStreak)
			}
		})
	}
}

type classifierFixture struct {
	classifier *Classifier
	balances   *memory.BalanceStore
	trades     *memory.TradeStore
	states     *memory.AgentStateStore
}

func newClassifierFixture(t *testing.T) *classifierFixture {
	t.Helper()
	balances := memory.NewBalanceStore()
	trades := memory.NewTradeStore()
	states := memory.NewAgentStateStore()
	agg := returns.NewAggregator(balances, trades, memory.NewDailyReturnStore())
	return &classifierFixture{
		classifier: NewClassifier(agg, states),
		balances:   balances,
		trades:     trades,
		states:     states,
	}
}

func (f *classifierFixture) seed(t *testing.T, agentID string, date domain.Day, balance, pnl float64) {
	t.Helper()
	ctx := context.Background()
	if err := f.balances.Insert(ctx, &domain.BalanceSnapshot{AgentID: agentID, Date: date, Balance: balance}); err != nil {
		t.Fatalf("seed balance failed: %v", err)
	}
	if pnl != 0 {
		err := f.trades.InsertBulk(ctx, []*domain.TradeFill{{AgentID: agentID, Date: date, Symbol: "SYM", PnL: pnl}})
		if err != nil {
			t.Fatalf("seed trade failed: %v", err)
		}
	}
}

func TestClassifyBatch_StreakAcrossDays(t *testing.T) {
	f := newClassifierFixture(t)
	ctx := context.Background()

	start := domain.Day("2025-06-02")
	pnls := []float64{100, -50, -50, -50}
	for i, pnl := range pnls {
		f.seed(t, "a1", start.AddDays(i), 10000, pnl)
	}

	newEntries := map[string]bool{"a1": true}
	for i := range pnls {
		date := start.AddDays(i)
		result, err := f.classifier.ClassifyBatch(ctx, []string{"a1"}, date, newEntries, nil)
		if err != nil {
			t.Fatalf("ClassifyBatch(%s) failed: %v", date, err)
		}
		if len(result.States) != 1 {
			t.Fatalf("Expected 1 state on %s, got %d", date, len(result.States))
		}
		newEntries = nil
	}

	final, err := f.states.GetByAgentDate(ctx, "a1", start.AddDays(3))
	if err != nil {
		t.Fatalf("GetByAgentDate failed: %v", err)
	}
	if final.State != domain.StateDecline {
		t.Errorf("Expected DECLINE, got %s", final.State)
	}
	if final.DeclineStreak != 3 {
		t.Errorf("Expected streak 3, got %d", final.DeclineStreak)
	}
	if final.EntryDate != start {
		t.Errorf("Entry date drifted: got %s, want %s", final.EntryDate, start)
	}
	wantCum := 0.01 - 0.005 - 0.005 - 0.005
	if diff := final.ReturnSinceEntry - wantCum; diff > 1e-12 || diff < -1e-12 {
		t.Errorf("Cumulative return mismatch: got %.6f, want %.6f", final.ReturnSinceEntry, wantCum)
	}
}

func TestClassifyBatch_NewEntryResetsCumulative(t *testing.T) {
	f := newClassifierFixture(t)
	ctx := context.Background()

	d1 := domain.Day("2025-06-02")
	d2 := d1.AddDays(1)
	f.seed(t, "a1", d1, 10000, -300)
	f.seed(t, "a1", d2, 10000, 200)

	if _, err := f.classifier.ClassifyBatch(ctx, []string{"a1"}, d1, map[string]bool{"a1": true}, nil); err != nil {
		t.Fatalf("day 1 failed: %v", err)
	}
	// Re-admission on day 2 restarts the cumulative tracking.
	result, err := f.classifier.ClassifyBatch(ctx, []string{"a1"}, d2, map[string]bool{"a1": true}, nil)
	if err != nil {
		t.Fatalf("day 2 failed: %v", err)
	}

	st := result.States[0]
	if st.EntryDate != d2 {
		t.Errorf("Entry date not reset: got %s, want %s", st.EntryDate, d2)
	}
	if st.ReturnSinceEntry != 0.02 {
		t.Errorf("Cumulative return not reset: got %f, want 0.02", st.ReturnSinceEntry)
	}
	if st.DeclineStreak != 0 {
		t.Errorf("Streak should reset on a positive day, got %d", st.DeclineStreak)
	}
}

func TestClassifyBatch_MissingDataCollectedPerAgent(t *testing.T) {
	f := newClassifierFixture(t)
	ctx := context.Background()

	date := domain.Day("2025-06-02")
	f.seed(t, "a1", date, 10000, 100)

	result, err := f.classifier.ClassifyBatch(ctx, []string{"a1", "ghost"}, date, nil, nil)
	if err != nil {
		t.Fatalf("ClassifyBatch failed: %v", err)
	}
	if len(result.States) != 1 {
		t.Errorf("Expected 1 classified state, got %d", len(result.States))
	}
	if _, ok := result.Failures["ghost"]; !ok {
		t.Errorf("Expected a recorded failure for the agent without data")
	}
}

func TestClassifyBatch_GrowthDeclineCounts(t *testing.T) {
	f := newClassifierFixture(t)
	ctx := context.Background()

	date := domain.Day("2025-06-02")
	f.seed(t, "up", date, 10000, 500)
	f.seed(t, "down", date, 10000, -500)
	f.seed(t, "flat", date, 10000, 0)

	result, err := f.classifier.ClassifyBatch(ctx, []string{"up", "down", "flat"}, date, nil, nil)
	if err != nil {
		t.Fatalf("ClassifyBatch failed: %v", err)
	}
	if result.Growth != 2 || result.Decline != 1 {
		t.Errorf("Counts mismatch: growth %d decline %d, want 2/1", result.Growth, result.Decline)
	}
}

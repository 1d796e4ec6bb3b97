package roster

import (
	"context"
	"errors"
	"testing"

	"agent-roster-lab/internal/domain"
	"agent-roster-lab/internal/returns"
	"agent-roster-lab/internal/storage/memory"
)

type selectorFixture struct {
	selector *Selector
	balances *memory.BalanceStore
	trades   *memory.TradeStore
	roster   *memory.RosterStore
}

func newSelectorFixture(t *testing.T) *selectorFixture {
	t.Helper()
	balances := memory.NewBalanceStore()
	trades := memory.NewTradeStore()
	roster := memory.NewRosterStore()
	agg := returns.NewAggregator(balances, trades, memory.NewDailyReturnStore())
	windows := returns.NewWindowCalculator(agg, memory.NewWindowReturnStore())
	return &selectorFixture{
		selector: NewSelector(windows, balances, roster, nil),
		balances: balances,
		trades:   trades,
		roster:   roster,
	}
}

// seedAgent writes balance snapshots and one fill per day so the agent has a
// complete window ending on end.
func (f *selectorFixture) seedAgent(t *testing.T, agentID string, end domain.Day, windowDays int, balance, dailyPnL float64) {
	t.Helper()
	ctx := context.Background()
	for i := windowDays; i >= 0; i-- {
		date := end.AddDays(-i)
		if err := f.balances.Insert(ctx, &domain.BalanceSnapshot{AgentID: agentID, Date: date, Balance: balance}); err != nil {
			t.Fatalf("seed balance failed: %v", err)
		}
		if dailyPnL != 0 {
			err := f.trades.InsertBulk(ctx, []*domain.TradeFill{{AgentID: agentID, Date: date, Symbol: "SYM", PnL: dailyPnL}})
			if err != nil {
				t.Fatalf("seed trade failed: %v", err)
			}
		}
	}
}

func TestSelect_RanksByWindowReturn(t *testing.T) {
	f := newSelectorFixture(t)
	ctx := context.Background()
	date := domain.Day("2025-06-10")

	f.seedAgent(t, "mid", date, 3, 10000, 50)
	f.seedAgent(t, "best", date, 3, 10000, 200)
	f.seedAgent(t, "worst", date, 3, 10000, -100)

	sel, err := f.selector.Select(ctx, Input{
		Date:       date,
		WindowDays: 3,
		Candidates: []string{"mid", "best", "worst"},
		RosterSize: 2,
		Initial:    true,
	})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	wantOrder := []string{"best", "mid", "worst"}
	if len(sel.Ranked) != len(wantOrder) {
		t.Fatalf("Expected %d ranked entries, got %d", len(wantOrder), len(sel.Ranked))
	}
	for i, want := range wantOrder {
		if sel.Ranked[i].AgentID != want {
			t.Errorf("Rank %d: got %s, want %s", i+1, sel.Ranked[i].AgentID, want)
		}
		if sel.Ranked[i].Rank != i+1 {
			t.Errorf("Rank field mismatch at %d: %d", i, sel.Ranked[i].Rank)
		}
	}
	if len(sel.Roster) != 2 {
		t.Fatalf("Expected roster of 2, got %d", len(sel.Roster))
	}
	if sel.Roster[0].AgentID != "best" || sel.Roster[1].AgentID != "mid" {
		t.Errorf("Wrong roster: %s, %s", sel.Roster[0].AgentID, sel.Roster[1].AgentID)
	}
	if sel.Ranked[2].InRoster {
		t.Errorf("Rank 3 must not be rostered with size 2")
	}
}

func TestSelect_TiesBreakByAgentID(t *testing.T) {
	f := newSelectorFixture(t)
	ctx := context.Background()
	date := domain.Day("2025-06-10")

	// Identical feeds, so identical window returns.
	f.seedAgent(t, "bbb", date, 3, 10000, 100)
	f.seedAgent(t, "aaa", date, 3, 10000, 100)

	sel, err := f.selector.Select(ctx, Input{
		Date:       date,
		WindowDays: 3,
		Candidates: []string{"bbb", "aaa"},
		RosterSize: 1,
	})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if sel.Ranked[0].AgentID != "aaa" || sel.Ranked[1].AgentID != "bbb" {
		t.Errorf("Tie not broken by id: %s, %s", sel.Ranked[0].AgentID, sel.Ranked[1].AgentID)
	}
}

func TestSelect_InitialRequiresFullRoster(t *testing.T) {
	f := newSelectorFixture(t)
	ctx := context.Background()
	date := domain.Day("2025-06-10")

	f.seedAgent(t, "only", date, 3, 10000, 100)

	_, err := f.selector.Select(ctx, Input{
		Date:       date,
		WindowDays: 3,
		Candidates: []string{"only"},
		RosterSize: 2,
		Initial:    true,
	})
	if !errors.Is(err, ErrInsufficientCandidates) {
		t.Fatalf("Expected ErrInsufficientCandidates, got %v", err)
	}

	// A later day tolerates a short roster.
	sel, err := f.selector.Select(ctx, Input{
		Date:       date,
		WindowDays: 3,
		Candidates: []string{"only"},
		RosterSize: 2,
	})
	if err != nil {
		t.Fatalf("Non-initial short selection failed: %v", err)
	}
	if len(sel.Roster) != 1 {
		t.Errorf("Expected short roster of 1, got %d", len(sel.Roster))
	}
}

func TestSelect_AUMFilterExcludes(t *testing.T) {
	f := newSelectorFixture(t)
	ctx := context.Background()
	date := domain.Day("2025-06-10")

	f.seedAgent(t, "big", date, 3, 10000, 100)
	f.seedAgent(t, "dust", date, 3, 0.5, 0.1)
	f.selector.MinAUM = 1.0

	sel, err := f.selector.Select(ctx, Input{
		Date:       date,
		WindowDays: 3,
		Candidates: []string{"big", "dust"},
		RosterSize: 2,
	})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if len(sel.Ranked) != 1 || sel.Ranked[0].AgentID != "big" {
		t.Fatalf("Dust agent not excluded: %+v", sel.Ranked)
	}
	if sel.Excluded != 1 {
		t.Errorf("Excluded count: got %d, want 1", sel.Excluded)
	}
}

func TestSelect_RerunServesStoredRanking(t *testing.T) {
	f := newSelectorFixture(t)
	ctx := context.Background()
	date := domain.Day("2025-06-10")

	f.seedAgent(t, "a1", date, 3, 10000, 100)
	f.seedAgent(t, "a2", date, 3, 10000, 50)

	in := Input{Date: date, WindowDays: 3, Candidates: []string{"a1", "a2"}, RosterSize: 1}
	first, err := f.selector.Select(ctx, in)
	if err != nil {
		t.Fatalf("First select failed: %v", err)
	}
	second, err := f.selector.Select(ctx, in)
	if err != nil {
		t.Fatalf("Re-select failed: %v", err)
	}

	if len(second.Ranked) != len(first.Ranked) {
		t.Fatalf("Re-run changed ranking length: %d vs %d", len(second.Ranked), len(first.Ranked))
	}
	for i := range first.Ranked {
		if second.Ranked[i].AgentID != first.Ranked[i].AgentID || second.Ranked[i].Rank != first.Ranked[i].Rank {
			t.Errorf("Re-run changed rank %d: %s vs %s", i+1, second.Ranked[i].AgentID, first.Ranked[i].AgentID)
		}
	}
}

func TestCandidatePool_UnionOfRosterAndTopRanked(t *testing.T) {
	f := newSelectorFixture(t)
	ctx := context.Background()
	date := domain.Day("2025-06-11")
	prev := date.AddDays(-1)

	entries := []*domain.RosterEntry{
		{Date: prev, WindowDays: 3, Rank: 1, AgentID: "r1", InRoster: true},
		{Date: prev, WindowDays: 3, Rank: 2, AgentID: "r2", InRoster: true},
		{Date: prev, WindowDays: 3, Rank: 3, AgentID: "near", InRoster: false},
		{Date: prev, WindowDays: 3, Rank: domain.CandidateTopN + 1, AgentID: "far", InRoster: false},
	}
	if err := f.roster.InsertRanking(ctx, entries); err != nil {
		t.Fatalf("seed ranking failed: %v", err)
	}

	pool, err := f.selector.CandidatePool(ctx, date, 3)
	if err != nil {
		t.Fatalf("CandidatePool failed: %v", err)
	}
	want := map[string]bool{"r1": true, "r2": true, "near": true}
	if len(pool) != len(want) {
		t.Fatalf("Pool size: got %d (%v), want %d", len(pool), pool, len(want))
	}
	for _, id := range pool {
		if !want[id] {
			t.Errorf("Unexpected pool member %s", id)
		}
	}
}

package scheduler

import (
	"context"
	"testing"

	"agent-roster-lab/internal/domain"
	"agent-roster-lab/internal/orchestrator"
	"agent-roster-lab/internal/storage"
	"agent-roster-lab/internal/storage/memory"
)

func newTestPipeline(t *testing.T, firstDay domain.Day, windowDays int) (*Scheduler, orchestrator.Stores) {
	t.Helper()
	ctx := context.Background()

	events := memory.NewRotationEventStore()
	stores := orchestrator.Stores{
		Balances:      memory.NewBalanceStore(),
		Trades:        memory.NewTradeStore(),
		DailyReturns:  memory.NewDailyReturnStore(),
		WindowReturns: memory.NewWindowReturnStore(),
		Roster:        memory.NewRosterStore(),
		States:        memory.NewAgentStateStore(),
		Events:        events,
		Capital:       memory.NewCapitalStore(events),
	}

	// Balances cover the lookback window plus the day after the bootstrap.
	agents := []string{"agent-a", "agent-b", "agent-c"}
	for i, agentID := range agents {
		for d := -windowDays; d <= 1; d++ {
			date := firstDay.AddDays(d)
			err := stores.Balances.Insert(ctx, &domain.BalanceSnapshot{AgentID: agentID, Date: date, Balance: 10000})
			if err != nil {
				t.Fatalf("seed balance failed: %v", err)
			}
			pnl := float64(i+1) * 10
			err = stores.Trades.InsertBulk(ctx, []*domain.TradeFill{{AgentID: agentID, Date: date, Symbol: "SYM", PnL: pnl}})
			if err != nil {
				t.Fatalf("seed trade failed: %v", err)
			}
		}
	}

	orch := orchestrator.New(stores, orchestrator.Options{WindowDays: windowDays, RosterSize: 2, AccountPool: 6})
	return NewScheduler(ctx, orch), stores
}

func TestScheduler_RegisterRejectsBadCron(t *testing.T) {
	sched, _ := newTestPipeline(t, "2025-06-10", 3)
	if err := sched.Register("not a cron expression"); err == nil {
		t.Fatalf("Expected error for invalid cron expression")
	}
	if err := sched.Register("0 5 0 * * *"); err != nil {
		t.Fatalf("Valid cron expression rejected: %v", err)
	}
}

// The first-day trigger bootstraps the roster and distributes capital so a
// fresh deployment can start without an out-of-band setup step.
func TestScheduler_RunFirstDayNowBootstraps(t *testing.T) {
	firstDay := domain.Day("2025-06-10")
	sched, stores := newTestPipeline(t, firstDay, 3)
	ctx := context.Background()

	sched.RunFirstDayNow(firstDay)

	rostered, err := stores.Roster.GetRostered(ctx, firstDay, 3)
	if err != nil {
		t.Fatalf("GetRostered failed: %v", err)
	}
	if len(rostered) != 2 {
		t.Fatalf("Expected roster of 2, got %d", len(rostered))
	}

	accounts, err := stores.Capital.Accounts(ctx, storage.AccountFilter{Status: domain.AccountActive})
	if err != nil {
		t.Fatalf("Accounts failed: %v", err)
	}
	if len(accounts) != 6 {
		t.Fatalf("Expected 6 distributed accounts, got %d", len(accounts))
	}

	// The next day runs through the ordinary path on the bootstrapped state.
	sched.RunDayNow(firstDay.AddDays(1))
	rostered, err = stores.Roster.GetRostered(ctx, firstDay.AddDays(1), 3)
	if err != nil {
		t.Fatalf("GetRostered failed: %v", err)
	}
	if len(rostered) != 2 {
		t.Errorf("Expected roster of 2 on day two, got %d", len(rostered))
	}
}

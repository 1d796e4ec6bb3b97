// Package main runs the full daily pipeline against synthetic feed data in
// memory. Useful for exercising rotation and rebalance behavior end to end
// without any infrastructure.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"

	"agent-roster-lab/internal/domain"
	"agent-roster-lab/internal/orchestrator"
	"agent-roster-lab/internal/storage/memory"
)

func main() {
	days := flag.Int("days", 30, "Number of trading days to simulate")
	agents := flag.Int("agents", 50, "Number of agents in the synthetic universe")
	seed := flag.Int64("seed", 42, "Seed for the synthetic feed generator")
	start := flag.String("start", "2025-06-02", "First trading day (YYYY-MM-DD)")
	verbose := flag.Bool("verbose", false, "Verbose output")
	flag.Parse()

	firstDay, err := domain.ParseDay(*start)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad start day: %v\n", err)
		os.Exit(1)
	}

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

	// Feed history covers the lookback window before the first processed day.
	warmup := domain.DefaultWindowDays + 1
	feedStart := firstDay.AddDays(-warmup)
	feedEnd := firstDay.AddDays(*days - 1)
	if err := generateFeed(ctx, stores, *agents, *seed, feedStart, feedEnd); err != nil {
		fmt.Fprintf(os.Stderr, "generate feed: %v\n", err)
		os.Exit(1)
	}

	orch := orchestrator.New(stores, orchestrator.Options{Verbose: *verbose})

	fmt.Println("=== Roster simulation ===")
	result, err := orch.RunFirstDay(ctx, firstDay)
	if err != nil {
		fmt.Fprintf(os.Stderr, "first day %s: %v\n", firstDay, err)
		os.Exit(1)
	}
	printDay(result)

	totalRotations := 0
	for d := 1; d < *days; d++ {
		date := firstDay.AddDays(d)
		result, err := orch.RunDay(ctx, date)
		if err != nil {
			fmt.Fprintf(os.Stderr, "day %s: %v\n", date, err)
			os.Exit(1)
		}
		totalRotations += result.Rotations
		printDay(result)
	}

	fmt.Printf("\nSimulated %d days, %d rotations total.\n", *days, totalRotations)
	printAccountSummary(ctx, orch)
}

// generateFeed writes synthetic balance snapshots and trade fills. Each agent
// gets a drift so the universe has persistent winners and losers.
func generateFeed(ctx context.Context, stores orchestrator.Stores, agents int, seed int64, from, to domain.Day) error {
	rng := rand.New(rand.NewSource(seed))

	balances := make(map[string]float64, agents)
	drifts := make(map[string]float64, agents)
	ids := make([]string, 0, agents)
	for i := 0; i < agents; i++ {
		id := fmt.Sprintf("agent-%03d", i+1)
		ids = append(ids, id)
		balances[id] = 10_000 + rng.Float64()*90_000
		drifts[id] = (rng.Float64() - 0.45) * 0.01
	}

	for _, date := range domain.DayRange(from, to) {
		var snaps []*domain.BalanceSnapshot
		var fills []*domain.TradeFill
		for _, id := range ids {
			balance := balances[id]
			dayReturn := drifts[id] + rng.NormFloat64()*0.02
			pnl := balance * dayReturn

			snaps = append(snaps, &domain.BalanceSnapshot{AgentID: id, Date: date, Balance: balance})
			nFills := 1 + rng.Intn(4)
			remaining := pnl
			for f := 0; f < nFills; f++ {
				part := remaining
				if f < nFills-1 {
					part = remaining * rng.Float64()
					remaining -= part
				}
				fills = append(fills, &domain.TradeFill{
					AgentID: id,
					Date:    date,
					Symbol:  fmt.Sprintf("SYM%d", rng.Intn(20)),
					PnL:     part,
				})
			}
			balances[id] = balance + pnl
		}
		if err := stores.Balances.InsertBulk(ctx, snaps); err != nil {
			return err
		}
		if err := stores.Trades.InsertBulk(ctx, fills); err != nil {
			return err
		}
	}
	return nil
}

func printDay(r *orchestrator.DayResult) {
	fmt.Printf("%s  roster=%-3d growth=%-3d decline=%-3d exits=%-2d rotations=%-2d stoploss=%-3d rebalanced=%-3d\n",
		r.Date, r.RosterSize, r.Growth, r.Decline, len(r.Exits), r.Rotations, r.StopLossMoves, r.Rebalanced)
	for agent, reason := range r.Failures {
		fmt.Printf("    failure %s: %s\n", agent, reason)
	}
}

func printAccountSummary(ctx context.Context, orch *orchestrator.Orchestrator) {
	snap, err := orch.Distribution(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "distribution: %v\n", err)
		return
	}
	if snap.Accounts == 0 {
		return
	}

	agents := make([]string, 0, len(snap.PerAgent))
	for id := range snap.PerAgent {
		agents = append(agents, id)
	}
	sort.Strings(agents)

	fmt.Printf("\n%d active accounts, total capital %.2f\n", snap.Accounts, snap.TotalCapital)
	for _, id := range agents {
		fmt.Printf("  %s: %d accounts\n", id, snap.PerAgent[id])
	}
}

// Package orchestrator ties the daily pipeline together: returns, ranking,
// state classification, exits, rotations and capital updates, one calendar
// day at a time in strict date order.
package orchestrator

import (
	"context"
	"fmt"
	"log"

	"agent-roster-lab/internal/capital"
	"agent-roster-lab/internal/domain"
	"agent-roster-lab/internal/exitrule"
	"agent-roster-lab/internal/returns"
	"agent-roster-lab/internal/roster"
	"agent-roster-lab/internal/rotation"
	"agent-roster-lab/internal/state"
	"agent-roster-lab/internal/storage"
)

// Stores bundles the persistence interfaces the pipeline needs.
type Stores struct {
	Balances      storage.BalanceStore
	Trades        storage.TradeStore
	DailyReturns  storage.DailyReturnStore
	WindowReturns storage.WindowReturnStore
	Roster        storage.RosterStore
	States        storage.AgentStateStore
	Events        storage.RotationEventStore
	Capital       storage.CapitalStore
}

// Options configures a pipeline run. Zero values fall back to defaults.
type Options struct {
	WindowDays     int
	RosterSize     int
	MinAUM         float64
	AccountPool    int
	RebalanceEvery int
	CapitalParams  capital.Params

	// ExitEngine overrides the default OR pair of exit rules.
	ExitEngine *exitrule.Engine

	Verbose bool
}

func (o Options) withDefaults() Options {
	if o.WindowDays == 0 {
		o.WindowDays = domain.DefaultWindowDays
	}
	if o.RosterSize == 0 {
		o.RosterSize = domain.DefaultRosterSize
	}
	if o.MinAUM == 0 {
		o.MinAUM = domain.DefaultMinAUM
	}
	if o.AccountPool == 0 {
		o.AccountPool = domain.DefaultAccountPool
	}
	if o.RebalanceEvery == 0 {
		o.RebalanceEvery = domain.DefaultRebalanceEvery
	}
	if o.CapitalParams == (capital.Params{}) {
		o.CapitalParams = capital.DefaultParams()
	}
	if o.ExitEngine == nil {
		o.ExitEngine = exitrule.NewDefaultEngine()
	}
	return o
}

// Orchestrator drives the daily cycle.
type Orchestrator struct {
	stores     Stores
	opts       Options
	windows    *returns.WindowCalculator
	selector   *roster.Selector
	classifier *state.Classifier
	exits      *exitrule.Engine
	engine     *capital.Engine
	rotations  *rotation.Coordinator
}

// New wires the full pipeline over the given stores.
func New(stores Stores, opts Options) *Orchestrator {
	opts = opts.withDefaults()

	aggregator := returns.NewAggregator(stores.Balances, stores.Trades, stores.DailyReturns)
	windows := returns.NewWindowCalculator(aggregator, stores.WindowReturns)
	selector := roster.NewSelector(windows, stores.Balances, stores.Roster, stores.Capital)
	selector.MinAUM = opts.MinAUM
	engine := capital.NewEngine(stores.Capital, opts.CapitalParams)

	return &Orchestrator{
		stores:     stores,
		opts:       opts,
		windows:    windows,
		selector:   selector,
		classifier: state.NewClassifier(aggregator, stores.States),
		exits:      opts.ExitEngine,
		engine:     engine,
		rotations:  rotation.NewCoordinator(stores.States, engine),
	}
}

// DayResult summarizes one processed day. Per-agent problems are reported
// here instead of aborting the day.
type DayResult struct {
	Date       domain.Day
	WindowDays int

	Candidates int
	Excluded   int
	RosterSize int
	NewEntries []string

	Growth  int
	Decline int

	Exits            []string
	Rotations        int
	RotationsSkipped []string

	AccountsUpdated int
	StopLossMoves   int
	Rebalanced      int

	Failures map[string]string
}

func (r *DayResult) fail(agentID string, err error) {
	if r.Failures == nil {
		r.Failures = make(map[string]string)
	}
	r.Failures[agentID] = err.Error()
}

// RunFirstDay bootstraps the system on its first trading day: it ranks every
// agent with a balance snapshot on the date, admits the top performers and
// distributes the account pool across them.
func (o *Orchestrator) RunFirstDay(ctx context.Context, date domain.Day) (*DayResult, error) {
	candidates, err := o.stores.Balances.AgentIDsByDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("first day %s: list agents: %w", date, err)
	}
	return o.run(ctx, date, candidates, true)
}

// RunDay processes one regular day. The candidate pool is derived from the
// previous day's ranking, so days must be processed strictly in order.
func (o *Orchestrator) RunDay(ctx context.Context, date domain.Day) (*DayResult, error) {
	candidates, err := o.selector.CandidatePool(ctx, date, o.opts.WindowDays)
	if err != nil {
		return nil, fmt.Errorf("day %s: candidate pool: %w", date, err)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("day %s: no ranking for previous day, run days in order", date)
	}
	return o.run(ctx, date, candidates, false)
}

func (o *Orchestrator) run(ctx context.Context, date domain.Day, candidates []string, initial bool) (*DayResult, error) {
	result := &DayResult{Date: date, WindowDays: o.opts.WindowDays, Candidates: len(candidates)}

	sel, err := o.selector.Select(ctx, roster.Input{
		Date:       date,
		WindowDays: o.opts.WindowDays,
		Candidates: candidates,
		RosterSize: o.opts.RosterSize,
		Initial:    initial,
	})
	if err != nil {
		return nil, fmt.Errorf("day %s: selection: %w", date, err)
	}
	result.Excluded = sel.Excluded
	result.RosterSize = len(sel.Roster)
	o.logf("day %s: ranked %d candidates, roster %d, excluded %d", date, len(sel.Ranked), len(sel.Roster), sel.Excluded)

	rostered := make([]string, 0, len(sel.Roster))
	windowByAgent := make(map[string]float64, len(sel.Ranked))
	for _, entry := range sel.Ranked {
		windowByAgent[entry.AgentID] = entry.WindowReturn
	}
	for _, entry := range sel.Roster {
		rostered = append(rostered, entry.AgentID)
	}

	newEntries, err := o.detectNewEntries(ctx, date, rostered, initial)
	if err != nil {
		return nil, err
	}
	for id := range newEntries {
		result.NewEntries = append(result.NewEntries, id)
	}

	classified, err := o.classifier.ClassifyBatch(ctx, rostered, date, newEntries, windowByAgent)
	if err != nil {
		return nil, fmt.Errorf("day %s: classification: %w", date, err)
	}
	result.Growth = classified.Growth
	result.Decline = classified.Decline
	for id, ferr := range classified.Failures {
		result.fail(id, ferr)
	}

	snapshots, err := o.agentSnapshots(ctx, date, sel.Ranked)
	if err != nil {
		return nil, fmt.Errorf("day %s: window snapshots: %w", date, err)
	}

	if initial {
		return result, o.bootstrapCapital(ctx, date, sel, snapshots, result)
	}

	flagged := o.exits.EvaluateBatch(classified.States)
	for _, ev := range flagged {
		result.Exits = append(result.Exits, ev.AgentID)
	}
	o.logf("day %s: growth %d, decline %d, exits %d", date, result.Growth, result.Decline, len(flagged))

	rot, err := o.rotations.Rotate(ctx, date, o.opts.WindowDays, flagged, sel.Ranked, snapshots)
	if err != nil {
		return nil, fmt.Errorf("day %s: rotation: %w", date, err)
	}
	result.Rotations = len(rot.Events)
	result.RotationsSkipped = rot.Skipped
	for id, ferr := range rot.Failures {
		result.fail(id, ferr)
	}

	// The effective roster after rotations: exits out, promotions in.
	effective := effectiveRoster(rostered, flagged, rot.Events)
	active := make(map[string]*capital.AgentSnapshot, len(effective))
	var activeList []*capital.AgentSnapshot
	for _, id := range effective {
		if snap, ok := snapshots[id]; ok {
			active[id] = snap
			activeList = append(activeList, snap)
		}
	}

	updated, err := o.engine.UpdateReturns(ctx, date, active)
	if err != nil {
		return nil, fmt.Errorf("day %s: capital update: %w", date, err)
	}
	result.AccountsUpdated = updated

	moves, err := o.engine.EnforceStopLoss(ctx, date, activeList)
	if err != nil {
		return nil, fmt.Errorf("day %s: stop loss: %w", date, err)
	}
	result.StopLossMoves = moves

	if o.rebalanceDue(date) {
		moved, err := o.engine.Rebalance(ctx, date, activeList)
		if err != nil {
			return nil, fmt.Errorf("day %s: rebalance: %w", date, err)
		}
		result.Rebalanced = moved
		o.logf("day %s: rebalanced %d accounts", date, moved)
	}
	return result, nil
}

// bootstrapCapital performs the one-time initial account distribution.
func (o *Orchestrator) bootstrapCapital(ctx context.Context, date domain.Day, sel *roster.Selection, snapshots map[string]*capital.AgentSnapshot, result *DayResult) error {
	agents := make([]*capital.AgentSnapshot, 0, len(sel.Roster))
	for _, entry := range sel.Roster {
		if snap, ok := snapshots[entry.AgentID]; ok {
			agents = append(agents, snap)
		}
	}
	accounts, err := o.engine.DistributeInitial(ctx, date, o.opts.AccountPool, agents)
	if err != nil {
		return fmt.Errorf("first day %s: distribution: %w", date, err)
	}
	result.AccountsUpdated = len(accounts)
	return nil
}

// detectNewEntries diffs today's roster against yesterday's. On the first
// day every rostered agent is a new entry.
func (o *Orchestrator) detectNewEntries(ctx context.Context, date domain.Day, rostered []string, initial bool) (map[string]bool, error) {
	entries := make(map[string]bool, len(rostered))
	if initial {
		for _, id := range rostered {
			entries[id] = true
		}
		return entries, nil
	}
	previous, err := o.stores.Roster.GetRostered(ctx, date.AddDays(-1), o.opts.WindowDays)
	if err != nil {
		return nil, fmt.Errorf("day %s: previous roster: %w", date, err)
	}
	wasRostered := make(map[string]bool, len(previous))
	for _, e := range previous {
		wasRostered[e.AgentID] = true
	}
	for _, id := range rostered {
		if !wasRostered[id] {
			entries[id] = true
		}
	}
	return entries, nil
}

// agentSnapshots builds capital-facing snapshots for every ranked agent.
// Window records are cache hits here since selection already computed them.
func (o *Orchestrator) agentSnapshots(ctx context.Context, date domain.Day, ranked []*domain.RosterEntry) (map[string]*capital.AgentSnapshot, error) {
	ids := make([]string, 0, len(ranked))
	for _, e := range ranked {
		ids = append(ids, e.AgentID)
	}
	windows, err := o.windows.ComputeWindowBulk(ctx, ids, date, o.opts.WindowDays)
	if err != nil {
		return nil, err
	}
	snapshots := make(map[string]*capital.AgentSnapshot, len(ranked))
	for _, e := range ranked {
		snap := &capital.AgentSnapshot{AgentID: e.AgentID, WindowReturn: e.WindowReturn}
		if w, ok := windows[e.AgentID]; ok {
			snap.WinRate = w.WinRate()
		}
		snapshots[e.AgentID] = snap
	}
	return snapshots, nil
}

// rebalanceDue spreads periodic rebalances on a fixed calendar grid so the
// decision depends only on the date, not on process uptime.
func (o *Orchestrator) rebalanceDue(date domain.Day) bool {
	days := int(date.Time().Unix() / 86400)
	return days%o.opts.RebalanceEvery == 0
}

func effectiveRoster(rostered []string, flagged []*domain.ExitEvaluation, events []*domain.RotationEvent) []string {
	out := make(map[string]bool, len(flagged))
	for _, ev := range flagged {
		out[ev.AgentID] = true
	}
	var effective []string
	for _, id := range rostered {
		if !out[id] {
			effective = append(effective, id)
		}
	}
	for _, e := range events {
		effective = append(effective, e.AgentIn)
	}
	return effective
}

// Roster returns a day's rostered entries ordered by rank.
func (o *Orchestrator) Roster(ctx context.Context, date domain.Day, windowDays int) ([]*domain.RosterEntry, error) {
	if windowDays == 0 {
		windowDays = o.opts.WindowDays
	}
	return o.stores.Roster.GetRostered(ctx, date, windowDays)
}

// Accounts returns capital accounts matching the filter.
func (o *Orchestrator) Accounts(ctx context.Context, f storage.AccountFilter) ([]*domain.CapitalAccount, error) {
	return o.stores.Capital.Accounts(ctx, f)
}

// DistributionSnapshot summarizes how the active account pool is spread
// across agents.
type DistributionSnapshot struct {
	Accounts     int
	TotalCapital float64
	PerAgent     map[string]int
}

// Distribution returns the current active-account distribution.
func (o *Orchestrator) Distribution(ctx context.Context) (*DistributionSnapshot, error) {
	accounts, err := o.stores.Capital.Accounts(ctx, storage.AccountFilter{Status: domain.AccountActive})
	if err != nil {
		return nil, err
	}
	snap := &DistributionSnapshot{PerAgent: make(map[string]int)}
	for _, a := range accounts {
		snap.Accounts++
		snap.TotalCapital += a.CurrentCapital
		snap.PerAgent[a.AgentID]++
	}
	return snap, nil
}

// RotationHistory returns rotation audit events within [from, to].
func (o *Orchestrator) RotationHistory(ctx context.Context, from, to domain.Day) ([]*domain.RotationEvent, error) {
	return o.stores.Events.GetByDateRange(ctx, from, to)
}

func (o *Orchestrator) logf(format string, args ...any) {
	if o.opts.Verbose {
		log.Printf("[orchestrator] "+format, args...)
	}
}

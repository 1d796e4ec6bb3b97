// Package capital owns the client capital accounts: initial distribution,
// daily return updates, rotation-driven transfers, periodic rebalancing and
// stop-loss enforcement. Every other component requests account changes
// through this engine.
package capital

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"

	"agent-roster-lab/internal/domain"
	"agent-roster-lab/internal/idhash"
	"agent-roster-lab/internal/storage"
)

// ErrNoAgents is returned when an operation needs at least one agent to
// assign capital to and the roster is empty.
var ErrNoAgents = errors.New("no agents available for capital assignment")

// AgentSnapshot is the slice of an agent's day that the engine needs:
// its identity, current window return and positive-day win rate.
type AgentSnapshot struct {
	AgentID      string
	WindowReturn float64
	WinRate      float64
}

// Params tunes the engine. Bands are the two-stage clamp applied on every
// daily return update; both stages are a capital protection mechanism and
// neither may be skipped.
type Params struct {
	InitialCapital  float64
	AgentReturnBand domain.ClampBand
	FactorBand      domain.ClampBand
	StopLoss        float64
	MaxMoveFraction float64
}

// DefaultParams returns the shipped configuration.
func DefaultParams() Params {
	return Params{
		InitialCapital:  domain.DefaultInitialCapital,
		AgentReturnBand: domain.DefaultAgentReturnBand,
		FactorBand:      domain.DefaultFactorBand,
		StopLoss:        domain.DefaultStopLoss,
		MaxMoveFraction: domain.DefaultMaxMoveFraction,
	}
}

// Engine performs all capital-account mutations as atomic batches.
type Engine struct {
	store  storage.CapitalStore
	params Params
}

// NewEngine creates a capital engine over the given store.
func NewEngine(store storage.CapitalStore, params Params) *Engine {
	return &Engine{store: store, params: params}
}

// DistributeInitial creates numAccounts accounts and assigns them to the
// agents round-robin, so per-agent counts differ by at most one. Every
// account starts at the configured initial capital.
func (e *Engine) DistributeInitial(ctx context.Context, date domain.Day, numAccounts int, agents []*AgentSnapshot) ([]*domain.CapitalAccount, error) {
	if len(agents) == 0 {
		return nil, ErrNoAgents
	}
	if numAccounts <= 0 {
		return nil, fmt.Errorf("%w: account pool size %d", storage.ErrInvalidInput, numAccounts)
	}

	accounts := make([]*domain.CapitalAccount, 0, numAccounts)
	opens := make([]*domain.AssignmentRecord, 0, numAccounts)
	for i := 0; i < numAccounts; i++ {
		agent := agents[i%len(agents)]
		accountID := fmt.Sprintf("acct-%04d", i+1)
		acct := &domain.CapitalAccount{
			AccountID:               accountID,
			HolderName:              fmt.Sprintf("holder-%04d", i+1),
			InitialCapital:          e.params.InitialCapital,
			CurrentCapital:          e.params.InitialCapital,
			AgentID:                 agent.AgentID,
			AssignedOn:              date,
			AgentReturnAtAssignment: agent.WindowReturn,
			CapitalAtAssignment:     e.params.InitialCapital,
			WinRate:                 agent.WinRate,
			Status:                  domain.AccountActive,
		}
		accounts = append(accounts, acct)
		opens = append(opens, openRecord(acct, date, domain.AssignmentInitial, 0))
	}
	if err := e.store.InsertAccounts(ctx, accounts, opens); err != nil {
		return nil, err
	}
	log.Printf("[capital] distributed %d accounts across %d agents on %s", numAccounts, len(agents), date)
	return accounts, nil
}

// TransferAgent moves every active account of fromAgent to the incoming
// agent in one atomic batch, closing and opening assignment records.
// Returns the number of accounts moved and their combined capital.
// fromReturnNow is the outgoing agent's window return on the transfer day,
// recorded on closing records.
//
// A non-nil event receives the account and asset totals and commits in the
// same batch, so the capital never moves without its audit record.
func (e *Engine) TransferAgent(ctx context.Context, date domain.Day, fromAgent string, fromReturnNow float64, to *AgentSnapshot, event *domain.RotationEvent) (int, float64, error) {
	if to == nil || to.AgentID == fromAgent {
		return 0, 0, fmt.Errorf("%w: transfer target must differ from %s", storage.ErrInvalidInput, fromAgent)
	}
	accounts, err := e.store.Accounts(ctx, storage.AccountFilter{AgentID: fromAgent, Status: domain.AccountActive})
	if err != nil {
		return 0, 0, err
	}
	if len(accounts) == 0 && event == nil {
		return 0, 0, nil
	}
	openByAccount, err := e.openRecords(ctx, fromAgent)
	if err != nil {
		return 0, 0, err
	}

	batch := &storage.CapitalBatch{}
	var assets float64
	for _, acct := range accounts {
		assets += acct.CurrentCapital
		e.moveAccount(batch, acct, openByAccount[acct.AccountID], date, fromReturnNow, to, domain.AssignmentRotation)
	}
	if event != nil {
		event.NAccounts = len(accounts)
		event.TotalAssets = assets
		batch.RotationEvents = append(batch.RotationEvents, event)
	}
	if err := e.store.ApplyBatch(ctx, batch); err != nil {
		return 0, 0, err
	}
	return len(accounts), assets, nil
}

// UpdateReturns recomputes every active account's capital from the agent
// window returns of the day. The computation always starts from the capital
// frozen at assignment time, so re-running the same day is a no-op rather
// than a double application.
//
// Two-stage clamp: each agent return is bounded before conversion to a
// multiplier, and the resulting factor is bounded again before it touches
// the account.
func (e *Engine) UpdateReturns(ctx context.Context, date domain.Day, agents map[string]*AgentSnapshot) (int, error) {
	accounts, err := e.store.Accounts(ctx, storage.AccountFilter{Status: domain.AccountActive})
	if err != nil {
		return 0, err
	}

	batch := &storage.CapitalBatch{}
	for _, acct := range accounts {
		snap, ok := agents[acct.AgentID]
		if !ok {
			log.Printf("[capital] account %s: agent %s has no return snapshot on %s, skipped", acct.AccountID, acct.AgentID, date)
			continue
		}
		factor := e.changeFactor(acct.AgentReturnAtAssignment, snap.WindowReturn)
		acct.CurrentCapital = acct.CapitalAtAssignment * factor
		acct.ReturnWithAgent = factor - 1.0
		acct.ReturnTotal = acct.CurrentCapital/acct.InitialCapital - 1.0
		acct.WinRate = snap.WinRate
		batch.UpdateAccounts = append(batch.UpdateAccounts, acct)
	}
	if len(batch.UpdateAccounts) == 0 {
		return 0, nil
	}
	if err := e.store.ApplyBatch(ctx, batch); err != nil {
		return 0, err
	}
	return len(batch.UpdateAccounts), nil
}

// Rebalance moves below-mean accounts to strictly better performing agents.
// The number of moves per event is capped at floor(total × MaxMoveFraction);
// the worst performing accounts move first. An account never moves to the
// agent it is already assigned to.
func (e *Engine) Rebalance(ctx context.Context, date domain.Day, agents []*AgentSnapshot) (int, error) {
	accounts, err := e.store.Accounts(ctx, storage.AccountFilter{Status: domain.AccountActive})
	if err != nil {
		return 0, err
	}
	if len(accounts) == 0 || len(agents) == 0 {
		return 0, nil
	}

	var mean float64
	for _, acct := range accounts {
		mean += acct.ReturnTotal
	}
	mean /= float64(len(accounts))

	var candidates []*domain.CapitalAccount
	for _, acct := range accounts {
		if acct.ReturnTotal < mean {
			candidates = append(candidates, acct)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].ReturnTotal != candidates[j].ReturnTotal {
			return candidates[i].ReturnTotal < candidates[j].ReturnTotal
		}
		return candidates[i].AccountID < candidates[j].AccountID
	})

	// Float truncation would undershoot the cap (10 × 0.30 is 2.999...);
	// the epsilon keeps exact products on the floor they name.
	maxMoves := int(math.Floor(float64(len(accounts))*e.params.MaxMoveFraction + 1e-9))
	if len(candidates) > maxMoves {
		candidates = candidates[:maxMoves]
	}
	return e.moveCandidates(ctx, date, candidates, agents, domain.AssignmentRebalance, true)
}

// EnforceStopLoss force-reassigns every active account whose return with its
// current agent is at or below the stop-loss threshold. Unlike Rebalance it
// has no move cap and no better-agent requirement beyond a different agent.
func (e *Engine) EnforceStopLoss(ctx context.Context, date domain.Day, agents []*AgentSnapshot) (int, error) {
	accounts, err := e.store.Accounts(ctx, storage.AccountFilter{Status: domain.AccountActive})
	if err != nil {
		return 0, err
	}

	var tripped []*domain.CapitalAccount
	for _, acct := range accounts {
		if acct.ReturnWithAgent <= e.params.StopLoss {
			tripped = append(tripped, acct)
		}
	}
	if len(tripped) == 0 {
		return 0, nil
	}
	log.Printf("[capital] stop-loss tripped on %d accounts on %s", len(tripped), date)
	return e.moveCandidates(ctx, date, tripped, agents, domain.AssignmentStopLoss, false)
}

// moveCandidates reassigns each candidate to the best available agent and
// commits all moves as one batch. With requireBetter set, the target agent's
// window return must strictly exceed the current agent's; otherwise any
// different rostered agent qualifies.
func (e *Engine) moveCandidates(ctx context.Context, date domain.Day, candidates []*domain.CapitalAccount, agents []*AgentSnapshot, reason string, requireBetter bool) (int, error) {
	if len(candidates) == 0 {
		return 0, nil
	}
	byAgent := make(map[string]*AgentSnapshot, len(agents))
	ranked := make([]*AgentSnapshot, len(agents))
	copy(ranked, agents)
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].WindowReturn != ranked[j].WindowReturn {
			return ranked[i].WindowReturn > ranked[j].WindowReturn
		}
		return ranked[i].AgentID < ranked[j].AgentID
	})
	for _, a := range agents {
		byAgent[a.AgentID] = a
	}

	batch := &storage.CapitalBatch{}
	moved := 0
	for _, acct := range candidates {
		to := pickTarget(ranked, acct.AgentID, currentReturn(byAgent, acct), requireBetter)
		if to == nil {
			log.Printf("[capital] account %s: no eligible target agent for %s on %s, skipped", acct.AccountID, reason, date)
			continue
		}
		record, err := e.openRecordOf(ctx, acct)
		if err != nil {
			return 0, err
		}
		e.moveAccount(batch, acct, record, date, currentReturn(byAgent, acct), to, reason)
		moved++
	}
	if moved == 0 {
		return 0, nil
	}
	if err := e.store.ApplyBatch(ctx, batch); err != nil {
		return 0, err
	}
	return moved, nil
}

// moveAccount stages one account transfer: close the open assignment record,
// open the next one and update the account in place.
func (e *Engine) moveAccount(batch *storage.CapitalBatch, acct *domain.CapitalAccount, record *domain.AssignmentRecord, date domain.Day, fromReturnNow float64, to *AgentSnapshot, reason string) {
	if record != nil {
		closeRecord(record, date, fromReturnNow, acct)
		batch.CloseAssignments = append(batch.CloseAssignments, record)
	}

	acct.AgentID = to.AgentID
	acct.AssignedOn = date
	acct.AgentReturnAtAssignment = to.WindowReturn
	acct.CapitalAtAssignment = acct.CurrentCapital
	acct.ReturnWithAgent = 0
	acct.WinRate = to.WinRate
	acct.Reassignments++

	batch.UpdateAccounts = append(batch.UpdateAccounts, acct)
	batch.OpenAssignments = append(batch.OpenAssignments, openRecord(acct, date, reason, acct.Reassignments))
}

// changeFactor converts an at-assignment and a current agent return into the
// clamped balance-change multiplier.
func (e *Engine) changeFactor(atAssign, now float64) float64 {
	atAssign = e.params.AgentReturnBand.Clamp(atAssign)
	now = e.params.AgentReturnBand.Clamp(now)
	factor := (1.0 + now) / (1.0 + atAssign)
	return e.params.FactorBand.Clamp(factor)
}

func (e *Engine) openRecords(ctx context.Context, agentID string) (map[string]*domain.AssignmentRecord, error) {
	records, err := e.store.OpenAssignmentsByAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	byAccount := make(map[string]*domain.AssignmentRecord, len(records))
	for _, r := range records {
		byAccount[r.AccountID] = r
	}
	return byAccount, nil
}

func (e *Engine) openRecordOf(ctx context.Context, acct *domain.CapitalAccount) (*domain.AssignmentRecord, error) {
	records, err := e.store.Assignments(ctx, acct.AccountID)
	if err != nil {
		return nil, err
	}
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].Open() {
			return records[i], nil
		}
	}
	return nil, nil
}

func currentReturn(byAgent map[string]*AgentSnapshot, acct *domain.CapitalAccount) float64 {
	if snap, ok := byAgent[acct.AgentID]; ok {
		return snap.WindowReturn
	}
	return acct.AgentReturnAtAssignment
}

// pickTarget returns the best ranked agent an account may move to, or nil.
func pickTarget(ranked []*AgentSnapshot, currentAgent string, currentWR float64, requireBetter bool) *AgentSnapshot {
	for _, a := range ranked {
		if a.AgentID == currentAgent {
			continue
		}
		if requireBetter && a.WindowReturn <= currentWR {
			// Ranked descending, nothing further down qualifies either.
			return nil
		}
		return a
	}
	return nil
}

func openRecord(acct *domain.CapitalAccount, date domain.Day, reason string, sequence int) *domain.AssignmentRecord {
	return &domain.AssignmentRecord{
		RecordID:         idhash.AssignmentRecordID(acct.AccountID, acct.AgentID, string(date), reason, sequence),
		AccountID:        acct.AccountID,
		AgentID:          acct.AgentID,
		Reason:           reason,
		StartDate:        date,
		AgentReturnStart: acct.AgentReturnAtAssignment,
		CapitalStart:     acct.CurrentCapital,
	}
}

func closeRecord(r *domain.AssignmentRecord, date domain.Day, agentReturnNow float64, acct *domain.CapitalAccount) {
	end := date
	wr := agentReturnNow
	ret := acct.ReturnWithAgent
	capEnd := acct.CurrentCapital
	held := domain.DaysBetween(r.StartDate, date)
	r.EndDate = &end
	r.AgentReturnEnd = &wr
	r.AccountReturn = &ret
	r.CapitalEnd = &capEnd
	r.DaysHeld = &held
}

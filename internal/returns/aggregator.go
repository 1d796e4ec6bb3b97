// Package returns computes per-day and windowed agent returns.
package returns

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"

	"agent-roster-lab/internal/domain"
	"agent-roster-lab/internal/storage"
)

// Aggregation errors.
var (
	// ErrNoData is returned when an agent has no balance snapshot for the
	// requested day. Missing data propagates as incompleteness, never as a
	// zero-return day.
	ErrNoData = errors.New("no balance data for day")

	// ErrInvalidBalance is returned when the day's reference balance is not
	// positive. The day carries no valid return and is excluded from window
	// compounding.
	ErrInvalidBalance = errors.New("non-positive reference balance")
)

// Aggregator computes one day's return for an agent by joining the day's
// balance snapshot with the day's trade fills. Results are cached in the
// daily-return store so repeated requests for the same (agent, date) are
// pure lookups.
type Aggregator struct {
	balances     storage.BalanceStore
	trades       storage.TradeStore
	dailyReturns storage.DailyReturnStore
}

// NewAggregator creates a new daily return aggregator.
func NewAggregator(balances storage.BalanceStore, trades storage.TradeStore, dailyReturns storage.DailyReturnStore) *Aggregator {
	return &Aggregator{
		balances:     balances,
		trades:       trades,
		dailyReturns: dailyReturns,
	}
}

// ComputeDaily returns the DailyReturn for (agentID, date), cache-first.
// Returns ErrNoData when no balance snapshot exists and ErrInvalidBalance
// when the balance is not positive.
func (a *Aggregator) ComputeDaily(ctx context.Context, agentID string, date domain.Day) (*domain.DailyReturn, error) {
	if agentID == "" {
		return nil, storage.ErrInvalidInput
	}

	cached, err := a.dailyReturns.GetByAgentDate(ctx, agentID, date)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	balance, err := a.balances.GetByAgentDate(ctx, agentID, date)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("agent %s on %s: %w", agentID, date, ErrNoData)
		}
		return nil, err
	}

	fills, err := a.trades.GetByAgentDate(ctx, agentID, date)
	if err != nil {
		return nil, err
	}

	dr, err := buildDailyReturn(balance, fills)
	if err != nil {
		return nil, err
	}

	if err := a.dailyReturns.Insert(ctx, dr); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		return nil, err
	}
	return dr, nil
}

// ComputeDailyBulk computes daily returns for a set of agents over
// [from, to] using exactly two bulk reads (balances, trades) and an
// in-memory join. Days already cached are reused; newly computed records
// are written back in one bulk insert.
//
// The result maps agent id to its present days in ascending date order.
// Days without a positive balance are absent from the result.
func (a *Aggregator) ComputeDailyBulk(ctx context.Context, agentIDs []string, from, to domain.Day) (map[string][]*domain.DailyReturn, error) {
	if len(agentIDs) == 0 {
		return map[string][]*domain.DailyReturn{}, nil
	}

	cached, err := a.dailyReturns.GetByAgentsRange(ctx, agentIDs, from, to)
	if err != nil {
		return nil, err
	}

	type dayKey struct {
		agent string
		date  domain.Day
	}
	have := make(map[dayKey]*domain.DailyReturn, len(cached))
	for _, dr := range cached {
		have[dayKey{dr.AgentID, dr.Date}] = dr
	}

	// Bulk read 1: balances. Bulk read 2: trades.
	balances, err := a.balances.GetByAgentsRange(ctx, agentIDs, from, to)
	if err != nil {
		return nil, err
	}
	fills, err := a.trades.GetByAgentsRange(ctx, agentIDs, from, to)
	if err != nil {
		return nil, err
	}

	fillsByDay := make(map[dayKey][]*domain.TradeFill)
	for _, f := range fills {
		key := dayKey{f.AgentID, f.Date}
		fillsByDay[key] = append(fillsByDay[key], f)
	}

	var computed []*domain.DailyReturn
	for _, b := range balances {
		key := dayKey{b.AgentID, b.Date}
		if _, exists := have[key]; exists {
			continue
		}
		dr, err := buildDailyReturn(b, fillsByDay[key])
		if err != nil {
			if errors.Is(err, ErrInvalidBalance) {
				log.Printf("[returns] agent %s has invalid balance %.4f on %s, day excluded", b.AgentID, b.Balance, b.Date)
				continue
			}
			return nil, err
		}
		have[key] = dr
		computed = append(computed, dr)
	}

	if len(computed) > 0 {
		if err := a.dailyReturns.InsertBulk(ctx, computed); err != nil {
			return nil, err
		}
	}

	result := make(map[string][]*domain.DailyReturn, len(agentIDs))
	for key, dr := range have {
		result[key.agent] = append(result[key.agent], dr)
	}
	for _, days := range result {
		sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	}
	return result, nil
}

// buildDailyReturn joins one balance snapshot with the day's fills.
// The return is pnl / balance and the balance must be positive: dividing by
// a non-positive balance would produce Inf/NaN, so the day fails closed.
func buildDailyReturn(balance *domain.BalanceSnapshot, fills []*domain.TradeFill) (*domain.DailyReturn, error) {
	if balance.Balance <= 0 {
		return nil, fmt.Errorf("agent %s on %s (balance %.4f): %w",
			balance.AgentID, balance.Date, balance.Balance, ErrInvalidBalance)
	}

	var pnl float64
	trades := make([]domain.TradeDetail, 0, len(fills))
	for _, f := range fills {
		pnl += f.PnL
		trades = append(trades, domain.TradeDetail{Symbol: f.Symbol, PnL: f.PnL})
	}

	return &domain.DailyReturn{
		AgentID: balance.AgentID,
		Date:    balance.Date,
		Balance: balance.Balance,
		PnL:     pnl,
		Return:  pnl / balance.Balance,
		Trades:  trades,
		NTrades: len(trades),
	}, nil
}

package returns

import (
	"context"
	"errors"
	"fmt"

	"agent-roster-lab/internal/domain"
	"agent-roster-lab/internal/storage"
)

// ErrUnsupportedWindow is returned for window lengths outside
// domain.AvailableWindows.
var ErrUnsupportedWindow = errors.New("unsupported window length")

// WindowCalculator compounds cached daily returns into trailing-window
// returns. A window of W days spans the W+1 calendar days ending at the
// target date.
type WindowCalculator struct {
	aggregator    *Aggregator
	windowReturns storage.WindowReturnStore
}

// NewWindowCalculator creates a new window calculator.
func NewWindowCalculator(aggregator *Aggregator, windowReturns storage.WindowReturnStore) *WindowCalculator {
	return &WindowCalculator{
		aggregator:    aggregator,
		windowReturns: windowReturns,
	}
}

// ComputeWindow returns the compounded window return for one agent,
// cache-first. Windows with fewer than W+1 valid days are returned with
// Complete=false rather than hidden; the caller decides whether incomplete
// agents participate in ranking.
func (c *WindowCalculator) ComputeWindow(ctx context.Context, agentID string, date domain.Day, windowDays int) (*domain.WindowReturn, error) {
	if !domain.ValidWindow(windowDays) {
		return nil, fmt.Errorf("window %dd: %w", windowDays, ErrUnsupportedWindow)
	}

	cached, err := c.windowReturns.GetByKey(ctx, agentID, date, windowDays)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	from := date.AddDays(-windowDays)
	var days []*domain.DailyReturn
	for _, d := range domain.DayRange(from, date) {
		dr, err := c.aggregator.ComputeDaily(ctx, agentID, d)
		if err != nil {
			if errors.Is(err, ErrNoData) || errors.Is(err, ErrInvalidBalance) {
				continue // incomplete, not fatal
			}
			return nil, err
		}
		days = append(days, dr)
	}

	w := compound(agentID, date, windowDays, days)
	if err := c.windowReturns.Insert(ctx, w); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		return nil, err
	}
	return w, nil
}

// ComputeWindowBulk computes window returns for many agents at once on top
// of the aggregator's two-bulk-read path. Agents with no valid days at all
// are absent from the result.
func (c *WindowCalculator) ComputeWindowBulk(ctx context.Context, agentIDs []string, date domain.Day, windowDays int) (map[string]*domain.WindowReturn, error) {
	if !domain.ValidWindow(windowDays) {
		return nil, fmt.Errorf("window %dd: %w", windowDays, ErrUnsupportedWindow)
	}

	from := date.AddDays(-windowDays)
	daily, err := c.aggregator.ComputeDailyBulk(ctx, agentIDs, from, date)
	if err != nil {
		return nil, err
	}

	result := make(map[string]*domain.WindowReturn, len(daily))
	var persist []*domain.WindowReturn
	for agentID, days := range daily {
		w := compound(agentID, date, windowDays, days)
		result[agentID] = w
		persist = append(persist, w)
	}

	if len(persist) > 0 {
		if err := c.windowReturns.InsertBulk(ctx, persist); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// compound folds daily returns multiplicatively:
// window_return = Π(1 + daily_i) − 1, never the additive sum.
func compound(agentID string, date domain.Day, windowDays int, days []*domain.DailyReturn) *domain.WindowReturn {
	w := &domain.WindowReturn{
		AgentID:    agentID,
		TargetDate: date,
		WindowDays: windowDays,
	}

	growth := 1.0
	for _, dr := range days {
		growth *= 1.0 + dr.Return
		w.TotalPnL += dr.PnL
		w.NTrades += dr.NTrades
		if dr.Return > 0 {
			w.PositiveDays++
		} else if dr.Return < 0 {
			w.NegativeDays++
		}
	}

	w.Return = growth - 1.0
	w.DaysPresent = len(days)
	w.Complete = len(days) == windowDays+1
	return w
}

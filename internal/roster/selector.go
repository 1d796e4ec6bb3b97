// Package roster ranks candidate agents by window return and selects the
// top K that receive client capital.
package roster

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"agent-roster-lab/internal/domain"
	"agent-roster-lab/internal/returns"
	"agent-roster-lab/internal/storage"
)

// ErrInsufficientCandidates is returned when an initial selection has fewer
// qualifying candidates than the roster size. Fatal for the day's run.
var ErrInsufficientCandidates = errors.New("fewer qualifying candidates than roster size")

// Selector computes the daily ranked list and persists it.
type Selector struct {
	windows  *returns.WindowCalculator
	balances storage.BalanceStore
	roster   storage.RosterStore
	capital  storage.CapitalStore // optional; enriches entries with account counts

	// MinAUM filters out agents whose reference balance is below the
	// threshold; near-zero agents are noise, not candidates.
	MinAUM float64
}

// NewSelector creates a selector. capital may be nil.
func NewSelector(windows *returns.WindowCalculator, balances storage.BalanceStore, roster storage.RosterStore, capital storage.CapitalStore) *Selector {
	return &Selector{
		windows:  windows,
		balances: balances,
		roster:   roster,
		capital:  capital,
		MinAUM:   domain.DefaultMinAUM,
	}
}

// Input describes one selection request.
type Input struct {
	Date       domain.Day
	WindowDays int
	Candidates []string
	RosterSize int

	// Initial marks a bootstrap selection: a candidate pool smaller than
	// the roster size is then an error rather than a short roster.
	Initial bool
}

// Selection is the outcome of one day's ranking.
type Selection struct {
	Date       domain.Day
	WindowDays int
	Ranked     []*domain.RosterEntry // full list, rank 1..N
	Roster     []*domain.RosterEntry // top K slice of Ranked
	Excluded   int                   // candidates dropped (no data or below MinAUM)
}

// CandidatePool returns the exact candidate set for a date: the union of the
// previous day's rostered agents and the previous day's top-N ranked agents.
// The pool never scans the full historical agent universe.
func (s *Selector) CandidatePool(ctx context.Context, date domain.Day, windowDays int) ([]string, error) {
	previous, err := s.roster.GetByDate(ctx, date.AddDays(-1), windowDays)
	if err != nil {
		return nil, err
	}

	pool := make(map[string]struct{})
	for _, e := range previous {
		if e.InRoster || e.Rank <= domain.CandidateTopN {
			pool[e.AgentID] = struct{}{}
		}
	}

	ids := make([]string, 0, len(pool))
	for id := range pool {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Select ranks the candidates for in.Date and persists the full ranked list
// (not just the roster) for audit. Re-selection of an already ranked day is
// a no-op, which keeps day re-runs idempotent.
func (s *Selector) Select(ctx context.Context, in Input) (*Selection, error) {
	if in.RosterSize <= 0 {
		in.RosterSize = domain.DefaultRosterSize
	}

	windows, err := s.windows.ComputeWindowBulk(ctx, in.Candidates, in.Date, in.WindowDays)
	if err != nil {
		return nil, err
	}

	accountCounts, accountAssets, err := s.capitalByAgent(ctx)
	if err != nil {
		return nil, err
	}

	// One bulk read for the day's reference balances (the AUM filter).
	snapshots, err := s.balances.GetByAgentsRange(ctx, in.Candidates, in.Date, in.Date)
	if err != nil {
		return nil, err
	}
	aum := make(map[string]float64, len(snapshots))
	for _, b := range snapshots {
		aum[b.AgentID] = b.Balance
	}

	var qualified []*domain.WindowReturn
	excluded := 0
	for _, id := range in.Candidates {
		w, ok := windows[id]
		if !ok {
			excluded++ // no valid daily data in the window
			continue
		}
		if aum[id] < s.MinAUM {
			excluded++ // near-zero or missing balance on the target date
			continue
		}
		qualified = append(qualified, w)
	}

	// Descending window return; ties broken by agent id ascending so
	// selection is deterministic.
	sort.Slice(qualified, func(i, j int) bool {
		if qualified[i].Return != qualified[j].Return {
			return qualified[i].Return > qualified[j].Return
		}
		return qualified[i].AgentID < qualified[j].AgentID
	})

	if in.Initial && len(qualified) < in.RosterSize {
		return nil, fmt.Errorf("initial selection on %s: %d candidates for roster of %d: %w",
			in.Date, len(qualified), in.RosterSize, ErrInsufficientCandidates)
	}

	entries := make([]*domain.RosterEntry, 0, len(qualified))
	for i, w := range qualified {
		assets := accountAssets[w.AgentID]
		if s.capital == nil {
			assets = aum[w.AgentID] // no managed accounts yet: report feed AUM
		}
		entries = append(entries, &domain.RosterEntry{
			Date:         in.Date,
			WindowDays:   in.WindowDays,
			Rank:         i + 1,
			AgentID:      w.AgentID,
			WindowReturn: w.Return,
			Complete:     w.Complete,
			NAccounts:    accountCounts[w.AgentID],
			TotalAUM:     assets,
			InRoster:     i < in.RosterSize,
		})
	}

	if err := s.roster.InsertRanking(ctx, entries); err != nil {
		if !errors.Is(err, storage.ErrDuplicateKey) {
			return nil, err
		}
		// Day already ranked: serve the stored list.
		entries, err = s.roster.GetByDate(ctx, in.Date, in.WindowDays)
		if err != nil {
			return nil, err
		}
	}

	sel := &Selection{
		Date:       in.Date,
		WindowDays: in.WindowDays,
		Ranked:     entries,
		Excluded:   excluded,
	}
	for _, e := range entries {
		if e.InRoster {
			sel.Roster = append(sel.Roster, e)
		}
	}
	return sel, nil
}

func (s *Selector) capitalByAgent(ctx context.Context) (map[string]int, map[string]float64, error) {
	counts := make(map[string]int)
	assets := make(map[string]float64)
	if s.capital == nil {
		return counts, assets, nil
	}

	accounts, err := s.capital.Accounts(ctx, storage.AccountFilter{Status: domain.AccountActive})
	if err != nil {
		return nil, nil, err
	}
	for _, a := range accounts {
		counts[a.AgentID]++
		assets[a.AgentID] += a.CurrentCapital
	}
	return counts, assets, nil
}

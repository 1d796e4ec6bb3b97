package memory

import (
	"context"
	"sort"
	"sync"

	"agent-roster-lab/internal/domain"
	"agent-roster-lab/internal/storage"
)

// TradeStore is an in-memory implementation of storage.TradeStore.
type TradeStore struct {
	mu   sync.RWMutex
	data []*domain.TradeFill
}

// NewTradeStore creates a new in-memory trade store.
func NewTradeStore() *TradeStore {
	return &TradeStore{}
}

var _ storage.TradeStore = (*TradeStore)(nil)

// InsertBulk appends fills. Trades carry no upstream unique key.
func (s *TradeStore) InsertBulk(_ context.Context, fills []*domain.TradeFill) error {
	if len(fills) == 0 {
		return nil
	}

	for _, f := range fills {
		if f == nil || f.AgentID == "" || f.Date.IsZero() {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range fills {
		cp := *f
		s.data = append(s.data, &cp)
	}
	return nil
}

// GetByAgentDate retrieves all fills for one agent and day.
func (s *TradeStore) GetByAgentDate(_ context.Context, agentID string, date domain.Day) ([]*domain.TradeFill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TradeFill
	for _, f := range s.data {
		if f.AgentID == agentID && f.Date == date {
			cp := *f
			result = append(result, &cp)
		}
	}
	return result, nil
}

// GetByAgentsRange retrieves fills for a set of agents within [from, to].
func (s *TradeStore) GetByAgentsRange(_ context.Context, agentIDs []string, from, to domain.Day) ([]*domain.TradeFill, error) {
	wanted := make(map[string]struct{}, len(agentIDs))
	for _, id := range agentIDs {
		wanted[id] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TradeFill
	for _, f := range s.data {
		if _, ok := wanted[f.AgentID]; !ok {
			continue
		}
		if f.Date.Before(from) || to.Before(f.Date) {
			continue
		}
		cp := *f
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Date != result[j].Date {
			return result[i].Date < result[j].Date
		}
		return result[i].AgentID < result[j].AgentID
	})
	return result, nil
}

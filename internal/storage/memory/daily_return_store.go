package memory

import (
	"context"
	"sort"
	"sync"

	"agent-roster-lab/internal/domain"
	"agent-roster-lab/internal/storage"
)

type dailyReturnKey struct {
	agentID string
	date    domain.Day
}

// DailyReturnStore is an in-memory implementation of storage.DailyReturnStore.
type DailyReturnStore struct {
	mu   sync.RWMutex
	data map[dailyReturnKey]*domain.DailyReturn
}

// NewDailyReturnStore creates a new in-memory daily return store.
func NewDailyReturnStore() *DailyReturnStore {
	return &DailyReturnStore{data: make(map[dailyReturnKey]*domain.DailyReturn)}
}

var _ storage.DailyReturnStore = (*DailyReturnStore)(nil)

// Insert adds a return. Returns ErrDuplicateKey if (agent_id, date) exists.
func (s *DailyReturnStore) Insert(_ context.Context, r *domain.DailyReturn) error {
	if r == nil || r.AgentID == "" || r.Date.IsZero() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := dailyReturnKey{r.AgentID, r.Date}
	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[key] = copyDailyReturn(r)
	return nil
}

// InsertBulk adds multiple returns, silently skipping existing keys.
func (s *DailyReturnStore) InsertBulk(_ context.Context, returns []*domain.DailyReturn) error {
	if len(returns) == 0 {
		return nil
	}

	for _, r := range returns {
		if r == nil || r.AgentID == "" || r.Date.IsZero() {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range returns {
		key := dailyReturnKey{r.AgentID, r.Date}
		if _, exists := s.data[key]; exists {
			continue
		}
		s.data[key] = copyDailyReturn(r)
	}
	return nil
}

// GetByAgentDate retrieves one record. Returns ErrNotFound if not exists.
func (s *DailyReturnStore) GetByAgentDate(_ context.Context, agentID string, date domain.Day) (*domain.DailyReturn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[dailyReturnKey{agentID, date}]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyDailyReturn(r), nil
}

// GetByAgentsRange retrieves records for a set of agents within [from, to].
func (s *DailyReturnStore) GetByAgentsRange(_ context.Context, agentIDs []string, from, to domain.Day) ([]*domain.DailyReturn, error) {
	wanted := make(map[string]struct{}, len(agentIDs))
	for _, id := range agentIDs {
		wanted[id] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.DailyReturn
	for key, r := range s.data {
		if _, ok := wanted[key.agentID]; !ok {
			continue
		}
		if key.date.Before(from) || to.Before(key.date) {
			continue
		}
		result = append(result, copyDailyReturn(r))
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Date != result[j].Date {
			return result[i].Date < result[j].Date
		}
		return result[i].AgentID < result[j].AgentID
	})
	return result, nil
}

func copyDailyReturn(r *domain.DailyReturn) *domain.DailyReturn {
	cp := *r
	cp.Trades = make([]domain.TradeDetail, len(r.Trades))
	copy(cp.Trades, r.Trades)
	return &cp
}

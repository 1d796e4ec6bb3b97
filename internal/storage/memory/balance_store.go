package memory

import (
	"context"
	"sort"
	"sync"

	"agent-roster-lab/internal/domain"
	"agent-roster-lab/internal/storage"
)

type balanceKey struct {
	agentID string
	date    domain.Day
}

// BalanceStore is an in-memory implementation of storage.BalanceStore.
type BalanceStore struct {
	mu   sync.RWMutex
	data map[balanceKey]*domain.BalanceSnapshot
}

// NewBalanceStore creates a new in-memory balance store.
func NewBalanceStore() *BalanceStore {
	return &BalanceStore{data: make(map[balanceKey]*domain.BalanceSnapshot)}
}

var _ storage.BalanceStore = (*BalanceStore)(nil)

// Insert adds a snapshot. Returns ErrDuplicateKey if (agent_id, date) exists.
func (s *BalanceStore) Insert(_ context.Context, b *domain.BalanceSnapshot) error {
	if b == nil || b.AgentID == "" || b.Date.IsZero() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := balanceKey{b.AgentID, b.Date}
	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	cp := *b
	s.data[key] = &cp
	return nil
}

// InsertBulk adds multiple snapshots atomically. Fails entire batch on any duplicate.
func (s *BalanceStore) InsertBulk(_ context.Context, snapshots []*domain.BalanceSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[balanceKey]struct{}, len(snapshots))
	for _, b := range snapshots {
		if b == nil || b.AgentID == "" || b.Date.IsZero() {
			return storage.ErrInvalidInput
		}
		key := balanceKey{b.AgentID, b.Date}
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, b := range snapshots {
		cp := *b
		s.data[balanceKey{b.AgentID, b.Date}] = &cp
	}
	return nil
}

// GetByAgentDate retrieves the snapshot for one agent and day.
func (s *BalanceStore) GetByAgentDate(_ context.Context, agentID string, date domain.Day) (*domain.BalanceSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, exists := s.data[balanceKey{agentID, date}]
	if !exists {
		return nil, storage.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

// GetByAgentsRange retrieves snapshots for a set of agents within [from, to].
func (s *BalanceStore) GetByAgentsRange(_ context.Context, agentIDs []string, from, to domain.Day) ([]*domain.BalanceSnapshot, error) {
	wanted := make(map[string]struct{}, len(agentIDs))
	for _, id := range agentIDs {
		wanted[id] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.BalanceSnapshot
	for key, b := range s.data {
		if _, ok := wanted[key.agentID]; !ok {
			continue
		}
		if key.date.Before(from) || to.Before(key.date) {
			continue
		}
		cp := *b
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

// AgentIDsByDate returns the distinct agents with a snapshot on a day.
func (s *BalanceStore) AgentIDsByDate(_ context.Context, date domain.Day) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for key := range s.data {
		if key.date == date {
			ids = append(ids, key.agentID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

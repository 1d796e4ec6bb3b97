package memory

import (
	"context"
	"sort"
	"sync"

	"agent-roster-lab/internal/domain"
	"agent-roster-lab/internal/storage"
)

type stateKey struct {
	agentID string
	date    domain.Day
}

// AgentStateStore is an in-memory implementation of storage.AgentStateStore.
type AgentStateStore struct {
	mu   sync.RWMutex
	data map[stateKey]*domain.AgentState
}

// NewAgentStateStore creates a new in-memory agent state store.
func NewAgentStateStore() *AgentStateStore {
	return &AgentStateStore{data: make(map[stateKey]*domain.AgentState)}
}

var _ storage.AgentStateStore = (*AgentStateStore)(nil)

// InsertBulk adds a batch of states. Fails entire batch on any duplicate.
func (s *AgentStateStore) InsertBulk(_ context.Context, states []*domain.AgentState) error {
	if len(states) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[stateKey]struct{}, len(states))
	for _, st := range states {
		if st == nil || st.AgentID == "" || st.Date.IsZero() {
			return storage.ErrInvalidInput
		}
		key := stateKey{st.AgentID, st.Date}
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, st := range states {
		cp := *st
		s.data[stateKey{st.AgentID, st.Date}] = &cp
	}
	return nil
}

// GetByAgentDate retrieves one state. Returns ErrNotFound if not exists.
func (s *AgentStateStore) GetByAgentDate(_ context.Context, agentID string, date domain.Day) (*domain.AgentState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, exists := s.data[stateKey{agentID, date}]
	if !exists {
		return nil, storage.ErrNotFound
	}
	cp := *st
	return &cp, nil
}

// GetByDate retrieves all states for a day, ordered by agent_id ASC.
func (s *AgentStateStore) GetByDate(_ context.Context, date domain.Day) ([]*domain.AgentState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.AgentState
	for key, st := range s.data {
		if key.date == date {
			cp := *st
			result = append(result, &cp)
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].AgentID < result[j].AgentID })
	return result, nil
}

// MarkExited clears the roster flag and records the exit reason.
func (s *AgentStateStore) MarkExited(_ context.Context, agentID string, date domain.Day, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, exists := s.data[stateKey{agentID, date}]
	if !exists {
		return storage.ErrNotFound
	}
	st.InRoster = false
	st.ExitReason = reason
	return nil
}

package memory

import (
	"context"
	"sort"
	"sync"

	"agent-roster-lab/internal/domain"
	"agent-roster-lab/internal/storage"
)

// RotationEventStore is an in-memory implementation of storage.RotationEventStore.
type RotationEventStore struct {
	mu   sync.RWMutex
	data map[string]*domain.RotationEvent // keyed by event_id
}

// NewRotationEventStore creates a new in-memory rotation event store.
func NewRotationEventStore() *RotationEventStore {
	return &RotationEventStore{data: make(map[string]*domain.RotationEvent)}
}

var _ storage.RotationEventStore = (*RotationEventStore)(nil)

// Insert adds an event. Returns ErrDuplicateKey if event_id exists.
func (s *RotationEventStore) Insert(_ context.Context, e *domain.RotationEvent) error {
	if e == nil || e.EventID == "" || e.AgentOut == "" || e.AgentIn == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[e.EventID]; exists {
		return storage.ErrDuplicateKey
	}

	cp := *e
	s.data[e.EventID] = &cp
	return nil
}

// GetByDateRange retrieves events within [from, to] inclusive, date ASC.
func (s *RotationEventStore) GetByDateRange(_ context.Context, from, to domain.Day) ([]*domain.RotationEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.RotationEvent
	for _, e := range s.data {
		if e.Date.Before(from) || to.Before(e.Date) {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}

	sortRotationEvents(result)
	return result, nil
}

// GetByAgent retrieves events where the agent was on either side.
func (s *RotationEventStore) GetByAgent(_ context.Context, agentID string) ([]*domain.RotationEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.RotationEvent
	for _, e := range s.data {
		if e.AgentOut == agentID || e.AgentIn == agentID {
			cp := *e
			result = append(result, &cp)
		}
	}

	sortRotationEvents(result)
	return result, nil
}

func sortRotationEvents(events []*domain.RotationEvent) {
	sort.Slice(events, func(i, j int) bool {
		if events[i].Date != events[j].Date {
			return events[i].Date < events[j].Date
		}
		return events[i].EventID < events[j].EventID
	})
}

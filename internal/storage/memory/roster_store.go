package memory

import (
	"context"
	"sort"
	"sync"

	"agent-roster-lab/internal/domain"
	"agent-roster-lab/internal/storage"
)

type rosterKey struct {
	date       domain.Day
	windowDays int
	agentID    string
}

// RosterStore is an in-memory implementation of storage.RosterStore.
type RosterStore struct {
	mu   sync.RWMutex
	data map[rosterKey]*domain.RosterEntry
}

// NewRosterStore creates a new in-memory roster store.
func NewRosterStore() *RosterStore {
	return &RosterStore{data: make(map[rosterKey]*domain.RosterEntry)}
}

var _ storage.RosterStore = (*RosterStore)(nil)

// InsertRanking adds a day's full ranked list atomically.
func (s *RosterStore) InsertRanking(_ context.Context, entries []*domain.RosterEntry) error {
	if len(entries) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[rosterKey]struct{}, len(entries))
	for _, e := range entries {
		if e == nil || e.AgentID == "" || e.Date.IsZero() || e.WindowDays <= 0 || e.Rank < 1 {
			return storage.ErrInvalidInput
		}
		key := rosterKey{e.Date, e.WindowDays, e.AgentID}
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, e := range entries {
		cp := *e
		s.data[rosterKey{e.Date, e.WindowDays, e.AgentID}] = &cp
	}
	return nil
}

// GetByDate retrieves a day's full ranked list ordered by rank ASC.
func (s *RosterStore) GetByDate(_ context.Context, date domain.Day, windowDays int) ([]*domain.RosterEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.RosterEntry
	for key, e := range s.data {
		if key.date == date && key.windowDays == windowDays {
			cp := *e
			result = append(result, &cp)
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Rank < result[j].Rank })
	return result, nil
}

// GetRostered retrieves only in-roster entries ordered by rank ASC.
func (s *RosterStore) GetRostered(ctx context.Context, date domain.Day, windowDays int) ([]*domain.RosterEntry, error) {
	all, err := s.GetByDate(ctx, date, windowDays)
	if err != nil {
		return nil, err
	}

	result := all[:0]
	for _, e := range all {
		if e.InRoster {
			result = append(result, e)
		}
	}
	return result, nil
}

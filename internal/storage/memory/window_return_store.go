package memory

import (
	"context"
	"sync"

	"agent-roster-lab/internal/domain"
	"agent-roster-lab/internal/storage"
)

type windowReturnKey struct {
	agentID    string
	date       domain.Day
	windowDays int
}

// WindowReturnStore is an in-memory implementation of storage.WindowReturnStore.
type WindowReturnStore struct {
	mu   sync.RWMutex
	data map[windowReturnKey]*domain.WindowReturn
}

// NewWindowReturnStore creates a new in-memory window return store.
func NewWindowReturnStore() *WindowReturnStore {
	return &WindowReturnStore{data: make(map[windowReturnKey]*domain.WindowReturn)}
}

var _ storage.WindowReturnStore = (*WindowReturnStore)(nil)

// Insert adds a window return. Returns ErrDuplicateKey if the key exists.
func (s *WindowReturnStore) Insert(_ context.Context, w *domain.WindowReturn) error {
	if w == nil || w.AgentID == "" || w.TargetDate.IsZero() || w.WindowDays <= 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := windowReturnKey{w.AgentID, w.TargetDate, w.WindowDays}
	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	cp := *w
	s.data[key] = &cp
	return nil
}

// InsertBulk adds multiple window returns, silently skipping existing keys.
func (s *WindowReturnStore) InsertBulk(_ context.Context, returns []*domain.WindowReturn) error {
	if len(returns) == 0 {
		return nil
	}

	for _, w := range returns {
		if w == nil || w.AgentID == "" || w.TargetDate.IsZero() || w.WindowDays <= 0 {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, w := range returns {
		key := windowReturnKey{w.AgentID, w.TargetDate, w.WindowDays}
		if _, exists := s.data[key]; exists {
			continue
		}
		cp := *w
		s.data[key] = &cp
	}
	return nil
}

// GetByKey retrieves one record. Returns ErrNotFound if not exists.
func (s *WindowReturnStore) GetByKey(_ context.Context, agentID string, date domain.Day, windowDays int) (*domain.WindowReturn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, exists := s.data[windowReturnKey{agentID, date, windowDays}]
	if !exists {
		return nil, storage.ErrNotFound
	}
	cp := *w
	return &cp, nil
}

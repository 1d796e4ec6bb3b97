package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"agent-roster-lab/internal/domain"
	"agent-roster-lab/internal/storage"
)

// CapitalStore is an in-memory implementation of storage.CapitalStore.
// A single lock covers accounts and assignment history so ApplyBatch is
// atomic by construction. Batch rotation events land in the bound event
// store; every row is validated before anything mutates, so a batch that
// passes validation cannot half-apply.
type CapitalStore struct {
	mu          sync.RWMutex
	accounts    map[string]*domain.CapitalAccount   // keyed by account_id
	assignments map[string]*domain.AssignmentRecord // keyed by record_id
	events      *RotationEventStore
}

// NewCapitalStore creates a new in-memory capital store. events receives the
// audit events of applied batches and may be nil for stores that never see
// rotations.
func NewCapitalStore(events *RotationEventStore) *CapitalStore {
	return &CapitalStore{
		accounts:    make(map[string]*domain.CapitalAccount),
		assignments: make(map[string]*domain.AssignmentRecord),
		events:      events,
	}
}

var _ storage.CapitalStore = (*CapitalStore)(nil)

// InsertAccounts creates accounts with their opening assignment records.
func (s *CapitalStore) InsertAccounts(_ context.Context, accounts []*domain.CapitalAccount, opens []*domain.AssignmentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(accounts))
	for _, a := range accounts {
		if a == nil || a.AccountID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.accounts[a.AccountID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[a.AccountID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[a.AccountID] = struct{}{}
	}
	for _, r := range opens {
		if r == nil || r.RecordID == "" || r.AccountID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.assignments[r.RecordID]; exists {
			return storage.ErrDuplicateKey
		}
	}

	for _, a := range accounts {
		cp := *a
		s.accounts[a.AccountID] = &cp
	}
	for _, r := range opens {
		s.assignments[r.RecordID] = copyAssignment(r)
	}
	return nil
}

// Accounts retrieves accounts matching the filter, ordered by account_id ASC.
func (s *CapitalStore) Accounts(_ context.Context, f storage.AccountFilter) ([]*domain.CapitalAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.CapitalAccount
	for _, a := range s.accounts {
		if f.AgentID != "" && a.AgentID != f.AgentID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		cp := *a
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].AccountID < result[j].AccountID })
	return result, nil
}

// AccountByID retrieves one account. Returns ErrNotFound if not exists.
func (s *CapitalStore) AccountByID(_ context.Context, accountID string) (*domain.CapitalAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, exists := s.accounts[accountID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// ApplyBatch applies a capital mutation atomically: every referenced row is
// validated before anything is written. Rotation events with an existing
// event_id are skipped.
func (s *CapitalStore) ApplyBatch(ctx context.Context, batch *storage.CapitalBatch) error {
	if batch == nil {
		return storage.ErrInvalidInput
	}
	for _, e := range batch.RotationEvents {
		if e == nil || e.EventID == "" || e.AgentOut == "" || e.AgentIn == "" {
			return storage.ErrInvalidInput
		}
		if s.events == nil {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range batch.UpdateAccounts {
		if a == nil || a.AccountID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.accounts[a.AccountID]; !exists {
			return storage.ErrTransactional
		}
	}
	for _, r := range batch.CloseAssignments {
		if r == nil || r.RecordID == "" {
			return storage.ErrInvalidInput
		}
		existing, exists := s.assignments[r.RecordID]
		if !exists || !existing.Open() {
			return storage.ErrTransactional
		}
	}
	for _, r := range batch.OpenAssignments {
		if r == nil || r.RecordID == "" || r.AccountID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.assignments[r.RecordID]; exists {
			return storage.ErrTransactional
		}
	}

	for _, a := range batch.UpdateAccounts {
		cp := *a
		s.accounts[a.AccountID] = &cp
	}
	for _, r := range batch.CloseAssignments {
		s.assignments[r.RecordID] = copyAssignment(r)
	}
	for _, r := range batch.OpenAssignments {
		s.assignments[r.RecordID] = copyAssignment(r)
	}
	for _, e := range batch.RotationEvents {
		if err := s.events.Insert(ctx, e); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
			return storage.ErrTransactional
		}
	}
	return nil
}

// Assignments retrieves an account's history, ordered by start date ASC.
func (s *CapitalStore) Assignments(_ context.Context, accountID string) ([]*domain.AssignmentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.AssignmentRecord
	for _, r := range s.assignments {
		if r.AccountID == accountID {
			result = append(result, copyAssignment(r))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].StartDate != result[j].StartDate {
			return result[i].StartDate < result[j].StartDate
		}
		return result[i].RecordID < result[j].RecordID
	})
	return result, nil
}

// OpenAssignmentsByAgent retrieves open records for an agent's accounts.
func (s *CapitalStore) OpenAssignmentsByAgent(_ context.Context, agentID string) ([]*domain.AssignmentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.AssignmentRecord
	for _, r := range s.assignments {
		if r.AgentID == agentID && r.Open() {
			result = append(result, copyAssignment(r))
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].AccountID < result[j].AccountID })
	return result, nil
}

func copyAssignment(r *domain.AssignmentRecord) *domain.AssignmentRecord {
	cp := *r
	if r.EndDate != nil {
		d := *r.EndDate
		cp.EndDate = &d
	}
	if r.AgentReturnEnd != nil {
		v := *r.AgentReturnEnd
		cp.AgentReturnEnd = &v
	}
	if r.AccountReturn != nil {
		v := *r.AccountReturn
		cp.AccountReturn = &v
	}
	if r.CapitalEnd != nil {
		v := *r.CapitalEnd
		cp.CapitalEnd = &v
	}
	if r.DaysHeld != nil {
		v := *r.DaysHeld
		cp.DaysHeld = &v
	}
	return &cp
}

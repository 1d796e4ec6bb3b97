package memory

import (
	"context"
	"errors"
	"testing"

	"agent-roster-lab/internal/domain"
	"agent-roster-lab/internal/storage"
)

func seedAccount(t *testing.T, s *CapitalStore, accountID, agentID string) {
	t.Helper()
	err := s.InsertAccounts(context.Background(),
		[]*domain.CapitalAccount{{
			AccountID:      accountID,
			AgentID:        agentID,
			InitialCapital: 1000,
			CurrentCapital: 1000,
			Status:         domain.AccountActive,
		}},
		[]*domain.AssignmentRecord{{
			RecordID:  accountID + "-rec-0",
			AccountID: accountID,
			AgentID:   agentID,
			StartDate: "2025-06-01",
		}},
	)
	if err != nil {
		t.Fatalf("seedAccount(%s) failed: %v", accountID, err)
	}
}

func TestCapitalStore_InsertAccountsRejectsDuplicates(t *testing.T) {
	s := NewCapitalStore(NewRotationEventStore())
	seedAccount(t, s, "acct-1", "a1")

	err := s.InsertAccounts(context.Background(),
		[]*domain.CapitalAccount{{AccountID: "acct-1", AgentID: "a2"}}, nil)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("Expected ErrDuplicateKey, got %v", err)
	}

	// The original row is untouched.
	acct, err := s.AccountByID(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("AccountByID failed: %v", err)
	}
	if acct.AgentID != "a1" {
		t.Errorf("Duplicate insert overwrote the account: agent %s", acct.AgentID)
	}
}

func TestCapitalStore_ApplyBatchAllOrNothing(t *testing.T) {
	s := NewCapitalStore(NewRotationEventStore())
	ctx := context.Background()
	seedAccount(t, s, "acct-1", "a1")
	seedAccount(t, s, "acct-2", "a1")

	// The second update references an account that does not exist, so the
	// first update must not land either.
	err := s.ApplyBatch(ctx, &storage.CapitalBatch{
		UpdateAccounts: []*domain.CapitalAccount{
			{AccountID: "acct-1", AgentID: "a2", CurrentCapital: 500, Status: domain.AccountActive},
			{AccountID: "ghost", AgentID: "a2", CurrentCapital: 500, Status: domain.AccountActive},
		},
	})
	if !errors.Is(err, storage.ErrTransactional) {
		t.Fatalf("Expected ErrTransactional, got %v", err)
	}

	acct, err := s.AccountByID(ctx, "acct-1")
	if err != nil {
		t.Fatalf("AccountByID failed: %v", err)
	}
	if acct.AgentID != "a1" || acct.CurrentCapital != 1000 {
		t.Errorf("Partial batch landed: agent %s, capital %f", acct.AgentID, acct.CurrentCapital)
	}
}

func TestCapitalStore_ApplyBatchCommitsEventWithAccounts(t *testing.T) {
	events := NewRotationEventStore()
	s := NewCapitalStore(events)
	ctx := context.Background()
	seedAccount(t, s, "acct-1", "a1")

	err := s.ApplyBatch(ctx, &storage.CapitalBatch{
		UpdateAccounts: []*domain.CapitalAccount{
			{AccountID: "acct-1", AgentID: "a2", CurrentCapital: 1000, Status: domain.AccountActive},
		},
		RotationEvents: []*domain.RotationEvent{{
			EventID:  "ev-1",
			Date:     "2025-06-05",
			AgentOut: "a1",
			AgentIn:  "a2",
		}},
	})
	if err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}

	stored, err := events.GetByDateRange(ctx, "2025-06-05", "2025-06-05")
	if err != nil {
		t.Fatalf("GetByDateRange failed: %v", err)
	}
	if len(stored) != 1 || stored[0].EventID != "ev-1" {
		t.Fatalf("Expected the batch event stored, got %v", stored)
	}
}

func TestCapitalStore_ApplyBatchFailureKeepsEventOut(t *testing.T) {
	events := NewRotationEventStore()
	s := NewCapitalStore(events)
	ctx := context.Background()
	seedAccount(t, s, "acct-1", "a1")

	// The update references a missing account, so neither the account
	// mutation nor the audit event may land.
	err := s.ApplyBatch(ctx, &storage.CapitalBatch{
		UpdateAccounts: []*domain.CapitalAccount{
			{AccountID: "ghost", AgentID: "a2", CurrentCapital: 500, Status: domain.AccountActive},
		},
		RotationEvents: []*domain.RotationEvent{{
			EventID:  "ev-1",
			Date:     "2025-06-05",
			AgentOut: "a1",
			AgentIn:  "a2",
		}},
	})
	if !errors.Is(err, storage.ErrTransactional) {
		t.Fatalf("Expected ErrTransactional, got %v", err)
	}

	stored, err := events.GetByDateRange(ctx, "2025-06-05", "2025-06-05")
	if err != nil {
		t.Fatalf("GetByDateRange failed: %v", err)
	}
	if len(stored) != 0 {
		t.Errorf("Event landed despite the failed batch: %v", stored)
	}
}

func TestCapitalStore_ApplyBatchSkipsExistingEvent(t *testing.T) {
	events := NewRotationEventStore()
	s := NewCapitalStore(events)
	ctx := context.Background()
	seedAccount(t, s, "acct-1", "a1")

	event := &domain.RotationEvent{EventID: "ev-1", Date: "2025-06-05", AgentOut: "a1", AgentIn: "a2", NAccounts: 1}
	if err := s.ApplyBatch(ctx, &storage.CapitalBatch{RotationEvents: []*domain.RotationEvent{event}}); err != nil {
		t.Fatalf("First apply failed: %v", err)
	}

	replay := &domain.RotationEvent{EventID: "ev-1", Date: "2025-06-05", AgentOut: "a1", AgentIn: "a2", NAccounts: 0}
	if err := s.ApplyBatch(ctx, &storage.CapitalBatch{RotationEvents: []*domain.RotationEvent{replay}}); err != nil {
		t.Fatalf("Replay apply failed: %v", err)
	}

	stored, err := events.GetByDateRange(ctx, "2025-06-05", "2025-06-05")
	if err != nil {
		t.Fatalf("GetByDateRange failed: %v", err)
	}
	if len(stored) != 1 || stored[0].NAccounts != 1 {
		t.Fatalf("Replay overwrote the original event: %v", stored)
	}
}

func TestCapitalStore_ApplyBatchRejectsClosingClosedRecord(t *testing.T) {
	s := NewCapitalStore(NewRotationEventStore())
	ctx := context.Background()
	seedAccount(t, s, "acct-1", "a1")

	end := domain.Day("2025-06-05")
	closed := &domain.AssignmentRecord{
		RecordID:  "acct-1-rec-0",
		AccountID: "acct-1",
		AgentID:   "a1",
		StartDate: "2025-06-01",
		EndDate:   &end,
	}
	if err := s.ApplyBatch(ctx, &storage.CapitalBatch{CloseAssignments: []*domain.AssignmentRecord{closed}}); err != nil {
		t.Fatalf("First close failed: %v", err)
	}

	// Closing an already closed record breaks the batch.
	err := s.ApplyBatch(ctx, &storage.CapitalBatch{CloseAssignments: []*domain.AssignmentRecord{closed}})
	if !errors.Is(err, storage.ErrTransactional) {
		t.Fatalf("Expected ErrTransactional, got %v", err)
	}
}

func TestCapitalStore_ApplyBatchRejectsDuplicateOpen(t *testing.T) {
	s := NewCapitalStore(NewRotationEventStore())
	ctx := context.Background()
	seedAccount(t, s, "acct-1", "a1")

	err := s.ApplyBatch(ctx, &storage.CapitalBatch{
		OpenAssignments: []*domain.AssignmentRecord{{
			RecordID:  "acct-1-rec-0", // already present from the seed
			AccountID: "acct-1",
			AgentID:   "a2",
			StartDate: "2025-06-05",
		}},
	})
	if !errors.Is(err, storage.ErrTransactional) {
		t.Fatalf("Expected ErrTransactional, got %v", err)
	}
}

func TestCapitalStore_ReturnedRowsAreCopies(t *testing.T) {
	s := NewCapitalStore(NewRotationEventStore())
	ctx := context.Background()
	seedAccount(t, s, "acct-1", "a1")

	accounts, err := s.Accounts(ctx, storage.AccountFilter{})
	if err != nil {
		t.Fatalf("Accounts failed: %v", err)
	}
	accounts[0].CurrentCapital = -1

	reread, err := s.AccountByID(ctx, "acct-1")
	if err != nil {
		t.Fatalf("AccountByID failed: %v", err)
	}
	if reread.CurrentCapital != 1000 {
		t.Errorf("Caller mutation leaked into the store: %f", reread.CurrentCapital)
	}
}

func TestCapitalStore_OpenAssignmentsByAgent(t *testing.T) {
	s := NewCapitalStore(NewRotationEventStore())
	ctx := context.Background()
	seedAccount(t, s, "acct-1", "a1")
	seedAccount(t, s, "acct-2", "a1")
	seedAccount(t, s, "acct-3", "other")

	records, err := s.OpenAssignmentsByAgent(ctx, "a1")
	if err != nil {
		t.Fatalf("OpenAssignmentsByAgent failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 open records, got %d", len(records))
	}
	if records[0].AccountID != "acct-1" || records[1].AccountID != "acct-2" {
		t.Errorf("Wrong order: %s, %s", records[0].AccountID, records[1].AccountID)
	}
}

package idhash

import "testing"

func TestRotationEventID_Deterministic(t *testing.T) {
	a := RotationEventID("2025-06-10", 7, "out", "in")
	b := RotationEventID("2025-06-10", 7, "out", "in")
	if a != b {
		t.Fatalf("Same inputs produced different ids: %s vs %s", a, b)
	}
	if a == "" {
		t.Fatalf("Empty id")
	}
}

func TestRotationEventID_InputSensitivity(t *testing.T) {
	base := RotationEventID("2025-06-10", 7, "out", "in")
	variants := []string{
		RotationEventID("2025-06-11", 7, "out", "in"),
		RotationEventID("2025-06-10", 3, "out", "in"),
		RotationEventID("2025-06-10", 7, "in", "out"),
	}
	for i, v := range variants {
		if v == base {
			t.Errorf("Variant %d collided with the base id", i)
		}
	}
}

func TestAssignmentRecordID_SequenceDisambiguates(t *testing.T) {
	// The same account can return to the same agent on the same day through
	// different paths; the sequence keeps the record ids apart.
	a := AssignmentRecordID("acct-1", "agent", "2025-06-10", "rebalance", 1)
	b := AssignmentRecordID("acct-1", "agent", "2025-06-10", "rebalance", 2)
	if a == b {
		t.Fatalf("Different sequences produced the same id")
	}
	if a != AssignmentRecordID("acct-1", "agent", "2025-06-10", "rebalance", 1) {
		t.Fatalf("Id not deterministic")
	}
}

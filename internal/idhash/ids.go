// Package idhash derives deterministic record identifiers so re-running a
// day's processing produces the same rows instead of duplicates.
package idhash

import (
	"crypto/sha256"
	"fmt"

	"github.com/mr-tron/base58"
)

// RotationEventID computes a deterministic rotation event id.
// Formula: SHA256(date|window_days|agent_out|agent_in), base58-encoded.
func RotationEventID(date string, windowDays int, agentOut, agentIn string) string {
	return digest(fmt.Sprintf("%s|%d|%s|%s", date, windowDays, agentOut, agentIn))
}

// AssignmentRecordID computes a deterministic assignment record id.
// Formula: SHA256(account_id|agent_id|start_date|reason|sequence), base58-encoded.
// The sequence is the account's reassignment counter at open time, which keeps
// repeated account/agent pairings distinct.
func AssignmentRecordID(accountID, agentID, startDate, reason string, sequence int) string {
	return digest(fmt.Sprintf("%s|%s|%s|%s|%d", accountID, agentID, startDate, reason, sequence))
}

func digest(data string) string {
	hash := sha256.Sum256([]byte(data))
	return base58.Encode(hash[:])
}

// Package rotation swaps exiting agents for qualified replacements and
// migrates their capital.
package rotation

import (
	"context"
	"log"
	"strings"

	"agent-roster-lab/internal/capital"
	"agent-roster-lab/internal/domain"
	"agent-roster-lab/internal/idhash"
	"agent-roster-lab/internal/storage"
)

// Coordinator executes one day's rotations. Each outgoing/incoming pair is
// all-or-nothing: the capital transfer and its audit event commit in one
// capital batch or the pair is reported as failed.
type Coordinator struct {
	states storage.AgentStateStore
	engine *capital.Engine
}

// NewCoordinator creates a rotation coordinator.
func NewCoordinator(states storage.AgentStateStore, engine *capital.Engine) *Coordinator {
	return &Coordinator{states: states, engine: engine}
}

// Result summarizes one day's rotation pass.
type Result struct {
	Events []*domain.RotationEvent

	// Skipped lists exiting agents for which no replacement candidate
	// existed. A skip is not an error; the agent still leaves the roster.
	Skipped []string

	Failures map[string]error
}

// Rotate processes every exit verdict for the day. ranking is the day's full
// ranked list ordered by rank; snapshots carries the window return and win
// rate of every ranked agent.
func (c *Coordinator) Rotate(ctx context.Context, date domain.Day, windowDays int, flagged []*domain.ExitEvaluation, ranking []*domain.RosterEntry, snapshots map[string]*capital.AgentSnapshot) (*Result, error) {
	result := &Result{Failures: make(map[string]error)}

	exiting := make(map[string]bool, len(flagged))
	for _, ev := range flagged {
		exiting[ev.AgentID] = true
	}
	promoted := make(map[string]bool)

	for _, ev := range flagged {
		reason := strings.Join(ev.Reasons, ",")
		if err := c.states.MarkExited(ctx, ev.AgentID, date, reason); err != nil {
			result.Failures[ev.AgentID] = err
			continue
		}

		replacement := pickReplacement(ranking, ev.AgentID, exiting, promoted)
		if replacement == nil {
			log.Printf("[rotation] agent %s: no replacement candidate on %s, rotation skipped", ev.AgentID, date)
			result.Skipped = append(result.Skipped, ev.AgentID)
			continue
		}
		in, ok := snapshots[replacement.AgentID]
		if !ok {
			in = &capital.AgentSnapshot{AgentID: replacement.AgentID, WindowReturn: replacement.WindowReturn}
		}

		outReturn := replacement.WindowReturn
		if snap, ok := snapshots[ev.AgentID]; ok {
			outReturn = snap.WindowReturn
		}
		event := &domain.RotationEvent{
			EventID:             idhash.RotationEventID(string(date), windowDays, ev.AgentID, in.AgentID),
			Date:                date,
			WindowDays:          windowDays,
			AgentOut:            ev.AgentID,
			AgentIn:             in.AgentID,
			Reason:              reason,
			WindowReturnOut:     outReturn,
			ReturnSinceEntryOut: ev.ReturnSinceEntry,
			WindowReturnIn:      in.WindowReturn,
		}
		moved, assets, err := c.engine.TransferAgent(ctx, date, ev.AgentID, outReturn, in, event)
		if err != nil {
			result.Failures[ev.AgentID] = err
			continue
		}
		promoted[in.AgentID] = true
		result.Events = append(result.Events, event)
		log.Printf("[rotation] %s out, %s in: %d accounts, %.2f assets (%s)", ev.AgentID, in.AgentID, moved, assets, reason)
	}
	return result, nil
}

// pickReplacement returns the highest ranked agent that is not rostered, not
// exiting, not already promoted today and not the outgoing agent itself.
func pickReplacement(ranking []*domain.RosterEntry, outgoing string, exiting, promoted map[string]bool) *domain.RosterEntry {
	for _, entry := range ranking {
		if entry.InRoster || entry.AgentID == outgoing {
			continue
		}
		if exiting[entry.AgentID] || promoted[entry.AgentID] {
			continue
		}
		return entry
	}
	return nil
}

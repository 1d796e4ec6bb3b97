// Package scheduler drives the daily orchestration on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"agent-roster-lab/internal/domain"
	"agent-roster-lab/internal/orchestrator"
)

// Scheduler runs the pipeline once per day for the day that just closed.
type Scheduler struct {
	Cron         *cron.Cron
	Orchestrator *orchestrator.Orchestrator
	Ctx          context.Context
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, orch *orchestrator.Orchestrator) *Scheduler {
	return &Scheduler{
		Cron:         cron.New(cron.WithSeconds()),
		Orchestrator: orch,
		Ctx:          ctx,
	}
}

// Register registers the daily task.
func (s *Scheduler) Register(dailyCron string) error {
	if _, err := s.Cron.AddFunc(dailyCron, s.dailyTask); err != nil {
		return fmt.Errorf("register daily task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Println("[scheduler] started")
}

// Stop stops the cron scheduler gracefully.
func (s *Scheduler) Stop() {
	s.Cron.Stop()
	log.Println("[scheduler] stopped")
}

// RunDayNow processes one specific day immediately (manual trigger).
func (s *Scheduler) RunDayNow(date domain.Day) {
	s.runDay(date)
}

// RunFirstDayNow bootstraps the roster and the initial capital distribution
// for one day (manual trigger on a fresh deployment).
func (s *Scheduler) RunFirstDayNow(date domain.Day) {
	result, err := s.Orchestrator.RunFirstDay(s.Ctx, date)
	if err != nil {
		log.Printf("[scheduler] first day %s failed: %v", date, err)
		return
	}
	s.report(result)
}

// dailyTask processes the calendar day that just ended.
func (s *Scheduler) dailyTask() {
	s.runDay(domain.DayOf(time.Now().AddDate(0, 0, -1)))
}

func (s *Scheduler) runDay(date domain.Day) {
	result, err := s.Orchestrator.RunDay(s.Ctx, date)
	if err != nil {
		log.Printf("[scheduler] day %s failed: %v", date, err)
		return
	}
	s.report(result)
}

func (s *Scheduler) report(result *orchestrator.DayResult) {
	log.Printf("[scheduler] day %s: roster %d, exits %d, rotations %d (skipped %d), accounts updated %d, stop-loss %d, rebalanced %d, failures %d",
		result.Date, result.RosterSize, len(result.Exits), result.Rotations, len(result.RotationsSkipped),
		result.AccountsUpdated, result.StopLossMoves, result.Rebalanced, len(result.Failures))
}

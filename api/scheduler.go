/*
scheduler.go - Automated accrual scheduler

PURPOSE:
  Periodically runs the accrual batch so credits, carry-forwards, and
  forfeitures land without an operator calling the endpoint. Safe to run
  while live submissions and approvals are in flight: every entry the
  batch writes carries a deterministic idempotency key.

CONFIGURATION:
  - CheckInterval: How often to run (default: 24 hours)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewAccrualScheduler(handler)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: RunAccrual endpoint (manual trigger, same engine)
  - leave/accrual.go: AccrualEngine
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"
)

// AccrualScheduler runs the accrual batch on a fixed interval.
type AccrualScheduler struct {
	Handler       *Handler
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewAccrualScheduler creates a new scheduler over the handler's engine.
func NewAccrualScheduler(handler *Handler) *AccrualScheduler {
	return &AccrualScheduler{
		Handler:       handler,
		CheckInterval: 24 * time.Hour,
		Enabled:       true,
		stop:          make(chan struct{}),
	}
}

// Start begins the scheduler.
func (s *AccrualScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.wg.Add(1)
	go s.run()

	log.Printf("[Scheduler] Started with interval: %v", s.CheckInterval)
}

// Stop stops the scheduler and waits for an in-flight run to finish.
func (s *AccrualScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

func (s *AccrualScheduler) run() {
	defer s.wg.Done()

	// Run immediately on start
	s.runOnce()

	for {
		select {
		case <-s.ticker.C:
			s.runOnce()
		case <-s.stop:
			return
		}
	}
}

func (s *AccrualScheduler) runOnce() {
	ctx := context.Background()
	now := time.Now()

	report, err := s.Handler.Accrual.RunAccrual(ctx, now)
	if err != nil {
		log.Printf("[Scheduler] Accrual run failed: %v", err)
		return
	}

	log.Printf("[Scheduler] Accrual run at %s: %d employees, %d entries appended, %d periods skipped, %d failures",
		now.Format("2006-01-02"), report.EmployeesProcessed, report.EntriesAppended,
		report.PeriodsSkipped, len(report.Failures))
	for _, f := range report.Failures {
		log.Printf("[Scheduler] Accrual failure for %s/%s: %v", f.EmployeeID, f.LeaveTypeID, f.Err)
	}
}

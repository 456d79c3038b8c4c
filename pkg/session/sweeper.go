package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper runs Store.Sweep on a cron schedule such as "@every 1h" or
// "0 */6 * * *".
type Sweeper struct {
	store    *Store
	schedule string
	cron     *cron.Cron
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	entry   cron.EntryID
	runs    uint64 // bumped per Start so an old context cannot stop a later run
}

// NewSweeper creates a sweeper for store. Nothing runs until Start.
func NewSweeper(store *Store, schedule string, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		store:    store,
		schedule: schedule,
		cron:     cron.New(),
		logger:   logger.With("component", "session.sweeper"),
	}
}

// Start schedules the sweep. An empty schedule disables sweeping; expiry
// still happens lazily on access. The sweeper stops when ctx is done.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	if s.schedule == "" {
		s.logger.Info("sweep schedule not configured, skipping sweeper")
		return nil
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}
	entry, err := s.cron.AddFunc(s.schedule, s.run)
	if err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	s.entry = entry
	s.cron.Start()
	s.running = true
	s.runs++
	run := s.runs
	s.logger.Info("session sweeper started", "schedule", s.schedule, "ttl", s.store.TTL())

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		current := s.runs == run
		s.mu.Unlock()
		if current {
			s.Stop()
		}
	}()
	return nil
}

func (s *Sweeper) run() {
	removed := s.store.Sweep()
	if removed > 0 {
		s.logger.Info("expired sessions swept", "removed", removed, "remaining", s.store.Len())
	} else {
		s.logger.Debug("session sweep completed, nothing expired")
	}
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.cron.Remove(s.entry)
	s.running = false
	s.logger.Info("session sweeper stopped")
}

// IsRunning reports whether the schedule is active.
func (s *Sweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled sweep, or nil when not scheduled.
func (s *Sweeper) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}

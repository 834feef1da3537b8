package backup

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"backup-orchestrator/internal/logging"
)

// Scheduler wraps a cron runner keyed by schedule name. Expressions use the
// standard 5-field format (minute hour day-of-month month day-of-week) and
// fire in the configured timezone.
type Scheduler struct {
	logger   *logging.Logger
	location *time.Location

	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]cron.EntryID
	running bool
}

// ValidateCronExpression checks a 5-field cron expression without
// scheduling anything
func ValidateCronExpression(expr string) error {
	if expr == "" {
		return NewValidationError("cron expression cannot be empty", nil)
	}
	if _, err := cron.ParseStandard(expr); err != nil {
		return NewValidationError(fmt.Sprintf("invalid cron expression %q", expr), err)
	}
	return nil
}

// NewScheduler creates a stopped scheduler. An empty timezone selects the
// host's local zone.
func NewScheduler(timezone string, logger *logging.Logger) (*Scheduler, error) {
	location := time.Local
	if timezone != "" {
		loc, err := time.LoadLocation(timezone)
		if err != nil {
			return nil, NewValidationError(fmt.Sprintf("invalid timezone %q", timezone), err)
		}
		location = loc
	}

	return &Scheduler{
		logger:   logger,
		location: location,
		cron:     cron.New(cron.WithLocation(location)),
		entries:  make(map[string]cron.EntryID),
	}, nil
}

// Add registers (or replaces) one named schedule
func (s *Scheduler) Add(name, expr string, fn func()) error {
	if name == "" {
		return NewValidationError("schedule name cannot be empty", nil)
	}
	if err := ValidateCronExpression(expr); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[name]; ok {
		s.cron.Remove(existing)
	}

	id, err := s.cron.AddFunc(expr, fn)
	if err != nil {
		return NewValidationError(fmt.Sprintf("invalid cron expression %q", expr), err)
	}
	s.entries[name] = id

	if s.logger != nil {
		s.logger.WithFields(map[string]interface{}{
			"schedule": name,
			"cron":     expr,
			"timezone": s.location.String(),
		}).Debug("Registered backup schedule")
	}

	return nil
}

// Remove drops one named schedule; unknown names are ignored
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.entries[name]; ok {
		s.cron.Remove(id)
		delete(s.entries, name)
	}
}

// Start begins firing schedules. Idempotent.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
}

// Stop halts scheduling and waits for any in-flight callback to return
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	ctx := s.cron.Stop()
	s.mu.Unlock()

	<-ctx.Done()
}

// Running reports whether the scheduler is firing
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next fire time for one named schedule. The zero time
// with ok=false means the name is unknown; an entry on a stopped scheduler
// also reports a zero time.
func (s *Scheduler) NextRun(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.entries[name]
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Next, true
}

// NextRuns returns the next fire time for every registered schedule
func (s *Scheduler) NextRuns() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]time.Time, len(s.entries))
	for name, id := range s.entries {
		next[name] = s.cron.Entry(id).Next
	}
	return next
}

// Clear removes every schedule without stopping the runner
func (s *Scheduler) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, id := range s.entries {
		s.cron.Remove(id)
		delete(s.entries, name)
	}
}

package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/Matanbitton/cheap-crawler/internal/interfaces"
)

// jobEntry tracks a registered job and its last outcome
type jobEntry struct {
	name      string
	schedule  string
	handler   func() error
	cronID    cron.EntryID
	lastRun   *time.Time
	isRunning bool
	lastError string
}

// Service runs registered maintenance jobs on cron schedules. Jobs are
// serialized: at most one handler runs at a time.
type Service struct {
	cron    *cron.Cron
	logger  arbor.ILogger
	mu      sync.Mutex // Protects jobs map and running flag
	execMu  sync.Mutex // Serializes job execution
	jobs    map[string]*jobEntry
	running bool
}

var _ interfaces.SchedulerService = (*Service)(nil)

// NewService creates a new scheduler service
func NewService(logger arbor.ILogger) *Service {
	return &Service{
		cron:   cron.New(),
		logger: logger,
		jobs:   make(map[string]*jobEntry),
	}
}

// RegisterJob registers a named job. Standard 5-field cron expressions
// are accepted. Register before calling Start.
func (s *Service) RegisterJob(name string, schedule string, handler func() error) error {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}

	entry := &jobEntry{
		name:     name,
		schedule: schedule,
		handler:  handler,
	}

	cronID, err := s.cron.AddFunc(schedule, func() {
		s.executeJob(name)
	})
	if err != nil {
		return fmt.Errorf("failed to add job to cron: %w", err)
	}

	entry.cronID = cronID
	s.jobs[name] = entry

	s.logger.Info().
		Str("job_name", name).
		Str("schedule", schedule).
		Msg("Scheduled job registered")

	return nil
}

// Start begins executing registered jobs on their schedules
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().
		Int("jobs", len(s.jobs)).
		Msg("Scheduler started")

	return nil
}

// Stop halts the scheduler and waits for any in-flight job to finish
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	ctx := s.cron.Stop()
	<-ctx.Done()

	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

// IsRunning returns true if the scheduler is active
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// GetJobStatus returns the status of a specific job
func (s *Service) GetJobStatus(name string) (*interfaces.ScheduledJobStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.jobs[name]
	if !exists {
		return nil, fmt.Errorf("job %s not found", name)
	}

	var nextRun *time.Time
	for _, cronEntry := range s.cron.Entries() {
		if cronEntry.ID == entry.cronID {
			next := cronEntry.Next
			if !next.IsZero() {
				nextRun = &next
			}
			break
		}
	}

	return &interfaces.ScheduledJobStatus{
		Name:      entry.name,
		Schedule:  entry.schedule,
		LastRun:   entry.lastRun,
		NextRun:   nextRun,
		IsRunning: entry.isRunning,
		LastError: entry.lastError,
	}, nil
}

// executeJob wraps handler execution with panic recovery and status
// tracking. The execution mutex keeps overlapping schedules from
// running handlers concurrently.
func (s *Service) executeJob(name string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("job_name", name).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Recovered from panic in scheduled job")

			s.mu.Lock()
			if entry, exists := s.jobs[name]; exists {
				entry.isRunning = false
				entry.lastError = fmt.Sprintf("panic: %v", r)
			}
			s.mu.Unlock()
		}
	}()

	s.execMu.Lock()
	defer s.execMu.Unlock()

	s.mu.Lock()
	entry, exists := s.jobs[name]
	if !exists {
		s.mu.Unlock()
		s.logger.Warn().Str("job_name", name).Msg("Scheduled job not found")
		return
	}
	entry.isRunning = true
	handler := entry.handler
	s.mu.Unlock()

	start := time.Now()
	s.logger.Debug().Str("job_name", name).Msg("Scheduled job started")

	err := handler()

	completed := time.Now()
	s.mu.Lock()
	entry.isRunning = false
	entry.lastRun = &completed
	if err != nil {
		entry.lastError = err.Error()
	} else {
		entry.lastError = ""
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error().
			Str("job_name", name).
			Err(err).
			Dur("duration", time.Since(start)).
			Msg("Scheduled job failed")
		return
	}

	s.logger.Info().
		Str("job_name", name).
		Dur("duration", time.Since(start)).
		Msg("Scheduled job completed")
}

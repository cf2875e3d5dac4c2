package interfaces

import "time"

// ScheduledJobStatus represents the current status of a scheduled job
type ScheduledJobStatus struct {
	Name      string
	Schedule  string
	LastRun   *time.Time
	NextRun   *time.Time
	IsRunning bool
	LastError string
}

// SchedulerService manages cron-based background maintenance jobs
type SchedulerService interface {
	// RegisterJob registers a named job with a cron schedule
	RegisterJob(name string, schedule string, handler func() error) error

	// Start begins executing registered jobs on their schedules
	Start() error

	// Stop halts the scheduler
	Stop() error

	// IsRunning returns true if the scheduler is active
	IsRunning() bool

	// GetJobStatus returns the status of a specific job
	GetJobStatus(name string) (*ScheduledJobStatus, error)
}

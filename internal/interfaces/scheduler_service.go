package interfaces

import "time"

// JobStatus represents the current status of a scheduled job
type JobStatus struct {
	Name      string
	Schedule  string
	LastRun   *time.Time
	NextRun   *time.Time
	IsRunning bool
	LastError string
}

// SchedulerService manages cron-based newsletter runs
type SchedulerService interface {
	// RegisterJob registers a named handler on a standard 5-field cron schedule
	RegisterJob(name string, schedule string, handler func() error) error

	// Start starts the cron loop
	Start() error

	// Stop stops the cron loop and waits for running jobs
	Stop() error

	// TriggerNow runs a registered job immediately, outside the schedule
	TriggerNow(name string) error

	// IsRunning returns true if the cron loop is active
	IsRunning() bool

	// GetJobStatus returns the status of a registered job
	GetJobStatus(name string) (*JobStatus, error)
}

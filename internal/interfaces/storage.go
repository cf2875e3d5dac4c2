package interfaces

import (
	"context"
	"time"

	"github.com/Matanbitton/cheap-crawler/internal/models"
)

// JobListOptions for listing scrape jobs
type JobListOptions struct {
	Status string // Filter by job status, empty means all
	Limit  int
	Offset int
}

// JobStorage - interface for scrape job persistence
type JobStorage interface {
	// Job CRUD operations
	SaveJob(ctx context.Context, job *models.ScrapeJob) error
	GetJob(ctx context.Context, id string) (*models.ScrapeJob, error)
	ListJobs(ctx context.Context, opts *JobListOptions) ([]*models.ScrapeJob, error)
	CountJobs(ctx context.Context, opts *JobListOptions) (int, error)
	DeleteJob(ctx context.Context, id string) error

	// PurgeTerminalJobs removes completed jobs finished before completedBefore
	// and failed jobs finished before failedBefore. Returns the number removed.
	PurgeTerminalJobs(ctx context.Context, completedBefore, failedBefore time.Time) (int, error)
}

// StorageManager - composite interface for storage lifecycle
type StorageManager interface {
	JobStorage() JobStorage
	DB() interface{}
	Close() error
}

package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/Matanbitton/cheap-crawler/internal/interfaces"
	"github.com/Matanbitton/cheap-crawler/internal/models"
)

// JobStorage persists scrape jobs in Badger
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

var _ interfaces.JobStorage = (*JobStorage)(nil)

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) *JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

func (s *JobStorage) SaveJob(ctx context.Context, job *models.ScrapeJob) error {
	if job == nil || job.ID == "" {
		return fmt.Errorf("job ID is required")
	}

	if err := s.db.Store().Upsert(job.ID, job); err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.ID, err)
	}
	return nil
}

func (s *JobStorage) GetJob(ctx context.Context, id string) (*models.ScrapeJob, error) {
	var job models.ScrapeJob
	if err := s.db.Store().Get(id, &job); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrJobNotFound, id)
		}
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}
	return &job, nil
}

func (s *JobStorage) ListJobs(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.ScrapeJob, error) {
	query := buildJobQuery(opts).SortBy("CreatedAt").Reverse()
	if opts != nil {
		if opts.Limit > 0 {
			query = query.Limit(opts.Limit)
		}
		if opts.Offset > 0 {
			query = query.Skip(opts.Offset)
		}
	}

	var jobs []models.ScrapeJob
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	result := make([]*models.ScrapeJob, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

func (s *JobStorage) CountJobs(ctx context.Context, opts *interfaces.JobListOptions) (int, error) {
	count, err := s.db.Store().Count(&models.ScrapeJob{}, buildJobQuery(opts))
	if err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return int(count), nil
}

func (s *JobStorage) DeleteJob(ctx context.Context, id string) error {
	if err := s.db.Store().Delete(id, &models.ScrapeJob{}); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return fmt.Errorf("%w: %s", models.ErrJobNotFound, id)
		}
		return fmt.Errorf("failed to delete job %s: %w", id, err)
	}
	return nil
}

// PurgeTerminalJobs removes completed jobs finished before
// completedBefore and failed jobs finished before failedBefore.
// BadgerHold cannot compare pointer timestamp fields in a query, so
// candidates are selected by status and filtered here.
func (s *JobStorage) PurgeTerminalJobs(ctx context.Context, completedBefore, failedBefore time.Time) (int, error) {
	purged := 0

	cutoffs := []struct {
		status models.JobStatus
		before time.Time
	}{
		{models.JobStatusCompleted, completedBefore},
		{models.JobStatusFailed, failedBefore},
	}

	for _, c := range cutoffs {
		var jobs []models.ScrapeJob
		if err := s.db.Store().Find(&jobs, badgerhold.Where("Status").Eq(c.status)); err != nil {
			return purged, fmt.Errorf("failed to find %s jobs: %w", c.status, err)
		}

		for i := range jobs {
			job := &jobs[i]
			if job.FinishedAt == nil || !job.FinishedAt.Before(c.before) {
				continue
			}
			if err := s.db.Store().Delete(job.ID, &models.ScrapeJob{}); err != nil {
				s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to purge job")
				continue
			}
			purged++
		}
	}

	if purged > 0 {
		s.logger.Info().Int("purged", purged).Msg("Purged terminal jobs")
	}
	return purged, nil
}

func buildJobQuery(opts *interfaces.JobListOptions) *badgerhold.Query {
	query := badgerhold.Where("ID").Ne("")
	if opts != nil && opts.Status != "" {
		query = query.And("Status").Eq(models.JobStatus(opts.Status))
	}
	return query
}

package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/Matanbitton/cheap-crawler/internal/interfaces"
	"github.com/Matanbitton/cheap-crawler/internal/models"
	"github.com/Matanbitton/cheap-crawler/internal/queue"
)

// ScrapeWorker executes scrape jobs against the crawl engine and keeps
// the persistent job record in sync. Queue mechanics (delete, retry,
// backoff) belong to the processor; this worker only reports success or
// failure through its return value.
type ScrapeWorker struct {
	engine     interfaces.CrawlerService
	jobStorage interfaces.JobStorage
	events     interfaces.EventService
	logger     arbor.ILogger
}

var _ interfaces.JobWorker = (*ScrapeWorker)(nil)

// NewScrapeWorker creates a worker bound to the crawl engine.
// Events are optional.
func NewScrapeWorker(engine interfaces.CrawlerService, jobStorage interfaces.JobStorage, events interfaces.EventService, logger arbor.ILogger) *ScrapeWorker {
	return &ScrapeWorker{
		engine:     engine,
		jobStorage: jobStorage,
		events:     events,
		logger:     logger,
	}
}

// GetWorkerType returns the message type this worker handles.
func (w *ScrapeWorker) GetWorkerType() string {
	return models.JobTypeScrape
}

// Validate rejects messages that can never execute. Validation failures
// are not retried.
func (w *ScrapeWorker) Validate(env *queue.QueueMessage) error {
	if env.Body.JobID == "" {
		return fmt.Errorf("message has no job ID")
	}
	var payload models.ScrapePayload
	if err := json.Unmarshal(env.Body.Payload, &payload); err != nil {
		return fmt.Errorf("invalid scrape payload: %w", err)
	}
	if payload.URL == "" {
		return fmt.Errorf("scrape payload has no URL")
	}
	if payload.MaxPages < 1 {
		return fmt.Errorf("scrape payload max pages must be at least 1, got %d", payload.MaxPages)
	}
	return nil
}

// Execute runs the crawl and records the outcome on the job. The
// configuration snapshot on the stored job is authoritative; the
// payload only exists so Validate can reject broken messages early.
func (w *ScrapeWorker) Execute(ctx context.Context, env *queue.QueueMessage) error {
	job, err := w.jobStorage.GetJob(ctx, env.Body.JobID)
	if err != nil {
		if errors.Is(err, models.ErrJobNotFound) {
			// Record was purged or never saved. Nothing to do, settle
			// the message instead of retrying forever.
			w.logger.Warn().
				Str("job_id", env.Body.JobID).
				Msg("Queued message references unknown job, dropping")
			return nil
		}
		return fmt.Errorf("loading job %s: %w", env.Body.JobID, err)
	}

	if job.IsTerminal() {
		w.logger.Debug().
			Str("job_id", job.ID).
			Str("status", string(job.Status)).
			Msg("Job already settled, skipping duplicate delivery")
		return nil
	}

	job.MarkStarted()
	if err := w.jobStorage.SaveJob(ctx, job); err != nil {
		w.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to save running job")
	}
	w.publishStatus(ctx, job)

	start := time.Now()
	result, err := w.engine.Crawl(ctx, job.URL, models.CrawlOptions{
		MaxPages:  job.MaxPages,
		MaxLength: job.MaxLength,
	})
	if err != nil {
		return fmt.Errorf("crawling %s: %w", job.URL, err)
	}

	job.MarkCompleted(result)
	if err := w.jobStorage.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("saving completed job %s: %w", job.ID, err)
	}

	w.logger.Info().
		Str("job_id", job.ID).
		Str("url", job.URL).
		Int("pages", result.PagesScraped).
		Int("characters", result.CharacterCount).
		Dur("duration", time.Since(start)).
		Msg("Scrape job finished")

	w.publishStatus(ctx, job)
	return nil
}

func (w *ScrapeWorker) publishStatus(ctx context.Context, job *models.ScrapeJob) {
	if w.events == nil {
		return
	}
	event := interfaces.Event{
		Type: interfaces.EventJobStatusChanged,
		Payload: map[string]interface{}{
			"job_id":      job.ID,
			"status":      string(job.Status),
			"url":         job.URL,
			"retry_count": job.RetryCount,
			"error":       job.Error,
		},
	}
	if err := w.events.Publish(ctx, event); err != nil {
		w.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to publish job status event")
	}
}

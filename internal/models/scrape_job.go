package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrJobNotFound is returned by job storage lookups for unknown IDs
var ErrJobNotFound = errors.New("job not found")

// JobStatus represents the state of a scrape job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// JobTypeScrape routes queue messages to the scrape worker
const JobTypeScrape = "scrape"

// ScrapePayload is the job-specific data carried in the queue message
type ScrapePayload struct {
	URL       string `json:"url"`
	MaxPages  int    `json:"max_pages"`
	MaxLength int    `json:"max_length"`
}

// ScrapeJob is the persistent record of an asynchronous scrape invocation.
// Configuration is snapshot at creation time so a job is self-contained
// and survives restarts; the queue message only carries the job ID and
// a copy of the payload.
type ScrapeJob struct {
	ID        string `json:"id" badgerhold:"key"`
	URL       string `json:"url"`
	MaxPages  int    `json:"max_pages"`
	MaxLength int    `json:"max_length"`

	Status     JobStatus    `json:"status" badgerhold:"index"`
	RetryCount int          `json:"retry_count"`
	Error      string       `json:"error,omitempty"`
	Result     *CrawlResult `json:"result,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// NewScrapeJob creates a pending job with its configuration snapshot
func NewScrapeJob(id, url string, maxPages, maxLength int) *ScrapeJob {
	return &ScrapeJob{
		ID:        id,
		URL:       url,
		MaxPages:  maxPages,
		MaxLength: maxLength,
		Status:    JobStatusPending,
		CreatedAt: time.Now(),
	}
}

// Payload returns the queue message payload for this job
func (j *ScrapeJob) Payload() ([]byte, error) {
	data, err := json.Marshal(ScrapePayload{
		URL:       j.URL,
		MaxPages:  j.MaxPages,
		MaxLength: j.MaxLength,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal scrape payload: %w", err)
	}
	return data, nil
}

// Validate validates the job record
func (j *ScrapeJob) Validate() error {
	if j.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	if j.URL == "" {
		return fmt.Errorf("job URL is required")
	}
	if j.MaxPages < 1 {
		return fmt.Errorf("job max pages must be at least 1")
	}
	return nil
}

// MarkStarted marks the job as running
func (j *ScrapeJob) MarkStarted() {
	j.Status = JobStatusRunning
	now := time.Now()
	j.StartedAt = &now
}

// MarkCompleted marks the job as completed with its result
func (j *ScrapeJob) MarkCompleted(result *CrawlResult) {
	j.Status = JobStatusCompleted
	j.Result = result
	j.Error = ""
	now := time.Now()
	j.FinishedAt = &now
}

// MarkFailed marks the job as failed with an error message
func (j *ScrapeJob) MarkFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.Error = errorMsg
	now := time.Now()
	j.FinishedAt = &now
}

// MarkRetrying resets a failed attempt back to pending and counts the retry
func (j *ScrapeJob) MarkRetrying(errorMsg string) {
	j.Status = JobStatusPending
	j.Error = errorMsg
	j.RetryCount++
}

// IsTerminal returns true if the job is in a terminal state
func (j *ScrapeJob) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

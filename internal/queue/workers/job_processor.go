// -----------------------------------------------------------------------
// Job Processor - Routes queued jobs to registered workers
// -----------------------------------------------------------------------

package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/Matanbitton/cheap-crawler/internal/common"
	"github.com/Matanbitton/cheap-crawler/internal/interfaces"
	"github.com/Matanbitton/cheap-crawler/internal/models"
	"github.com/Matanbitton/cheap-crawler/internal/queue"
)

// Backoff bounds for idle polling
const (
	minIdleBackoff = 100 * time.Millisecond
	maxIdleBackoff = 5 * time.Second
)

// JobProcessor pulls messages off the queue and routes them to workers
// by message type. Worker failures are retried with exponential backoff
// up to the configured retry budget; exhausted or unprocessable
// messages mark the job failed and leave the queue.
type JobProcessor struct {
	queueMgr   interfaces.QueueManager
	jobStorage interfaces.JobStorage
	events     interfaces.EventService
	executors  map[string]interfaces.JobWorker
	logger     arbor.ILogger

	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	running      bool
	mu           sync.Mutex
	concurrency  int
	maxRetries   int
	retryBackoff time.Duration
}

// NewJobProcessor creates a processor with cfg.Concurrency worker
// goroutines. Events are optional.
func NewJobProcessor(queueMgr interfaces.QueueManager, jobStorage interfaces.JobStorage, events interfaces.EventService, logger arbor.ILogger, cfg common.QueueConfig) *JobProcessor {
	ctx, cancel := context.WithCancel(context.Background())

	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	return &JobProcessor{
		queueMgr:     queueMgr,
		jobStorage:   jobStorage,
		events:       events,
		executors:    make(map[string]interfaces.JobWorker),
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
		concurrency:  concurrency,
		maxRetries:   maxRetries,
		retryBackoff: cfg.RetryBackoffDuration(),
	}
}

// RegisterExecutor registers a worker for its message type.
func (jp *JobProcessor) RegisterExecutor(worker interfaces.JobWorker) {
	jobType := worker.GetWorkerType()
	jp.executors[jobType] = worker
	jp.logger.Debug().
		Str("job_type", jobType).
		Msg("Job worker registered")
}

// Start launches the worker goroutines. Call after all services are
// wired so workers never see a half-initialized application.
func (jp *JobProcessor) Start() {
	jp.mu.Lock()
	defer jp.mu.Unlock()

	if jp.running {
		jp.logger.Warn().Msg("Job processor already running")
		return
	}

	jp.running = true
	jp.logger.Info().
		Int("concurrency", jp.concurrency).
		Int("max_retries", jp.maxRetries).
		Msg("Starting job processor")

	for i := 0; i < jp.concurrency; i++ {
		jp.wg.Add(1)
		go jp.processJobs(i)
	}
}

// Stop cancels the workers and waits for in-flight jobs to finish.
func (jp *JobProcessor) Stop() {
	jp.mu.Lock()
	if !jp.running {
		jp.mu.Unlock()
		return
	}
	jp.running = false
	jp.mu.Unlock()

	jp.logger.Info().Msg("Stopping job processor...")
	jp.cancel()
	jp.wg.Wait()
	jp.logger.Info().Msg("Job processor stopped")
}

// processJobs is one worker goroutine's poll loop. Idle polls back off
// exponentially so an empty queue costs little CPU.
func (jp *JobProcessor) processJobs(workerID int) {
	defer jp.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			stackTrace := common.GetStackTrace()
			jp.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", stackTrace).
				Int("worker_id", workerID).
				Msg("Job processor goroutine panicked")
			common.WriteCrashFile(r, stackTrace)
		}
	}()

	jp.logger.Debug().
		Int("worker_id", workerID).
		Msg("Job processor worker started")

	currentBackoff := minIdleBackoff

	for {
		select {
		case <-jp.ctx.Done():
			jp.logger.Debug().
				Int("worker_id", workerID).
				Msg("Job processor worker stopping")
			return
		default:
			if jp.processNextJob(workerID) {
				currentBackoff = minIdleBackoff
				continue
			}

			select {
			case <-jp.ctx.Done():
				return
			case <-time.After(currentBackoff):
			}

			currentBackoff *= 2
			if currentBackoff > maxIdleBackoff {
				currentBackoff = maxIdleBackoff
			}
		}
	}
}

// processNextJob claims and settles one message. Returns true when a
// message was claimed, false when the queue was empty.
func (jp *JobProcessor) processNextJob(workerID int) bool {
	receiveCtx, cancel := context.WithTimeout(jp.ctx, time.Second)
	defer cancel()

	env, deleteFn, err := jp.queueMgr.Receive(receiveCtx)
	if err != nil {
		return false
	}

	// A panicking worker must not poison the loop: mark the job failed
	// and settle the message.
	defer func() {
		if r := recover(); r != nil {
			jp.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", common.GetStackTrace()).
				Str("job_id", env.Body.JobID).
				Int("worker_id", workerID).
				Msg("Recovered from panic in job execution")

			jp.markJobFailed(env.Body.JobID, fmt.Sprintf("job panicked: %v", r))
			jp.settle(deleteFn)
		}
	}()

	start := time.Now()
	jp.logger.Info().
		Str("job_id", env.Body.JobID).
		Str("job_type", env.Body.Type).
		Int("attempt", env.ReceiveCount).
		Int("worker_id", workerID).
		Msg("Job started")

	worker, ok := jp.executors[env.Body.Type]
	if !ok {
		jp.logger.Error().
			Str("job_type", env.Body.Type).
			Str("job_id", env.Body.JobID).
			Msg("No worker registered for job type")
		jp.markJobFailed(env.Body.JobID, fmt.Sprintf("no worker registered for job type %q", env.Body.Type))
		jp.settle(deleteFn)
		return true
	}

	if err := worker.Validate(env); err != nil {
		jp.logger.Error().
			Err(err).
			Str("job_id", env.Body.JobID).
			Str("job_type", env.Body.Type).
			Msg("Queued message failed validation")
		jp.markJobFailed(env.Body.JobID, err.Error())
		jp.settle(deleteFn)
		return true
	}

	if err := worker.Execute(jp.ctx, env); err != nil {
		jp.handleFailure(env, deleteFn, err, workerID, time.Since(start))
		return true
	}

	jp.logger.Info().
		Str("job_id", env.Body.JobID).
		Str("job_type", env.Body.Type).
		Int("worker_id", workerID).
		Dur("duration", time.Since(start)).
		Msg("Job completed")
	jp.settle(deleteFn)
	return true
}

// handleFailure applies the retry policy: attempts up to maxRetries
// redeliveries with exponential backoff, then marks the job failed.
func (jp *JobProcessor) handleFailure(env *queue.QueueMessage, deleteFn func() error, execErr error, workerID int, elapsed time.Duration) {
	attempt := env.ReceiveCount

	if attempt <= jp.maxRetries {
		delay := jp.retryBackoff << (attempt - 1)
		jp.logger.Warn().
			Err(execErr).
			Str("job_id", env.Body.JobID).
			Int("attempt", attempt).
			Dur("retry_in", delay).
			Dur("duration", elapsed).
			Int("worker_id", workerID).
			Msg("Job failed, scheduling retry")

		jp.markJobRetrying(env.Body.JobID, execErr.Error())

		if err := jp.queueMgr.Retry(jp.ctx, env.ID, delay); err != nil {
			jp.logger.Error().
				Err(err).
				Str("job_id", env.Body.JobID).
				Msg("Failed to schedule retry, message will reappear after visibility timeout")
		}
		return
	}

	jp.logger.Error().
		Err(execErr).
		Str("job_id", env.Body.JobID).
		Int("attempt", attempt).
		Dur("duration", elapsed).
		Int("worker_id", workerID).
		Msg("Job failed permanently, retries exhausted")

	jp.markJobFailed(env.Body.JobID, execErr.Error())
	jp.settle(deleteFn)
}

func (jp *JobProcessor) markJobRetrying(jobID, errMsg string) {
	job, err := jp.jobStorage.GetJob(jp.ctx, jobID)
	if err != nil {
		jp.logger.Warn().Err(err).Str("job_id", jobID).Msg("Cannot update job for retry")
		return
	}
	job.MarkRetrying(errMsg)
	if err := jp.jobStorage.SaveJob(jp.ctx, job); err != nil {
		jp.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to save retrying job")
		return
	}
	jp.publishStatus(job)
}

func (jp *JobProcessor) markJobFailed(jobID, errMsg string) {
	job, err := jp.jobStorage.GetJob(jp.ctx, jobID)
	if err != nil {
		jp.logger.Warn().Err(err).Str("job_id", jobID).Msg("Cannot update job for failure")
		return
	}
	if job.IsTerminal() {
		return
	}
	job.MarkFailed(errMsg)
	if err := jp.jobStorage.SaveJob(jp.ctx, job); err != nil {
		jp.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to save failed job")
		return
	}
	jp.publishStatus(job)
}

func (jp *JobProcessor) publishStatus(job *models.ScrapeJob) {
	if jp.events == nil {
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
	if err := jp.events.Publish(jp.ctx, event); err != nil {
		jp.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to publish job status event")
	}
}

func (jp *JobProcessor) settle(deleteFn func() error) {
	if err := deleteFn(); err != nil {
		jp.logger.Error().Err(err).Msg("Failed to delete message from queue")
	}
}

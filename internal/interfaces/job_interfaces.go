package interfaces

import (
	"context"

	"github.com/Matanbitton/cheap-crawler/internal/queue"
)

// JobWorker defines the interface that all job workers must implement.
// The job processor uses this interface to execute jobs in a type-agnostic
// manner. Workers perform the actual work and update the job record; the
// processor owns queue mechanics such as deletion and retry scheduling.
type JobWorker interface {
	// Execute processes a single claimed queue message. Returns error if
	// execution fails, in which case the processor schedules a retry or
	// marks the job failed once retries are exhausted.
	Execute(ctx context.Context, msg *queue.QueueMessage) error

	// GetWorkerType returns the message type this worker handles.
	GetWorkerType() string

	// Validate checks that the queued message is compatible with this worker.
	Validate(msg *queue.QueueMessage) error
}

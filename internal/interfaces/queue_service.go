package interfaces

import (
	"context"
	"time"

	"github.com/Matanbitton/cheap-crawler/internal/models"
	"github.com/Matanbitton/cheap-crawler/internal/queue"
)

// QueueManager manages the persistent message queue.
// Receive returns the claimed envelope together with a delete function
// that permanently removes it; a message that is neither deleted nor
// retried becomes visible again after the visibility timeout.
type QueueManager interface {
	Enqueue(ctx context.Context, msg models.QueueMessage) error
	EnqueueWithDelay(ctx context.Context, msg models.QueueMessage, delay time.Duration) error
	Receive(ctx context.Context) (*queue.QueueMessage, func() error, error)
	Retry(ctx context.Context, messageID string, delay time.Duration) error
	Extend(ctx context.Context, messageID string, duration time.Duration) error
	Length(ctx context.Context) (int, error)
	Stats(ctx context.Context) (queue.Stats, error)
	Close() error
}

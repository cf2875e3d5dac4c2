package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/Matanbitton/cheap-crawler/internal/models"
)

// Stats summarizes queue contents: ready messages are visible now,
// delayed ones are hidden by an enqueue delay or an in-flight claim.
type Stats struct {
	Ready   int `json:"ready"`
	Delayed int `json:"delayed"`
	Total   int `json:"total"`
}

// QueueMessage is the envelope stored in Badger around a job message.
// ReceiveCount tracks delivery attempts so the processor can apply the
// retry policy and the queue can drop poison messages.
type QueueMessage struct {
	ID           string              `json:"id"`
	Body         models.QueueMessage `json:"body"`
	EnqueuedAt   time.Time           `json:"enqueued_at"`
	VisibleAt    time.Time           `json:"visible_at"`
	ReceiveCount int                 `json:"receive_count"`
}

// BadgerManager implements a persistent visibility-timeout queue on
// BadgerDB. Message data lives under one key per message and a
// timestamp-ordered index key drives Receive scans:
//
//	queue:{name}:msg:{id}                -> message JSON
//	queue:{name}:index:{visibleAt}:{id} -> empty
type BadgerManager struct {
	db                *badger.DB
	queueName         string
	visibilityTimeout time.Duration
	maxReceive        int
}

// NewBadgerManager creates a queue on an externally managed Badger
// instance. A message that has been received maxReceive times without
// being deleted or retried is dropped on its next scan.
func NewBadgerManager(db *badger.DB, queueName string, visibilityTimeout time.Duration, maxReceive int) (*BadgerManager, error) {
	if db == nil {
		return nil, errors.New("badger db is required")
	}
	if queueName == "" {
		return nil, errors.New("queue name is required")
	}
	if visibilityTimeout <= 0 {
		visibilityTimeout = 5 * time.Minute
	}
	if maxReceive <= 0 {
		maxReceive = 4
	}

	return &BadgerManager{
		db:                db,
		queueName:         queueName,
		visibilityTimeout: visibilityTimeout,
		maxReceive:        maxReceive,
	}, nil
}

// Enqueue adds a message that is immediately visible.
func (m *BadgerManager) Enqueue(ctx context.Context, msg models.QueueMessage) error {
	return m.EnqueueWithDelay(ctx, msg, 0)
}

// EnqueueWithDelay adds a message that becomes visible after delay.
func (m *BadgerManager) EnqueueWithDelay(ctx context.Context, msg models.QueueMessage, delay time.Duration) error {
	now := time.Now()
	qMsg := QueueMessage{
		ID:         uuid.New().String(),
		Body:       msg,
		EnqueuedAt: now,
		VisibleAt:  now.Add(delay),
	}

	data, err := json.Marshal(qMsg)
	if err != nil {
		return fmt.Errorf("failed to marshal queue message: %w", err)
	}

	return m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(m.msgKey(qMsg.ID), data); err != nil {
			return err
		}
		return txn.Set(m.indexKey(qMsg.VisibleAt, qMsg.ID), []byte{})
	})
}

// Receive claims the oldest visible message. The claim increments the
// receive count and hides the message for the visibility timeout; the
// returned delete function removes it permanently. When nothing is
// ready, models.ErrNoMessage is returned.
func (m *BadgerManager) Receive(ctx context.Context) (*QueueMessage, func() error, error) {
	var claimed QueueMessage

	err := m.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := m.indexPrefix()
		now := time.Now()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			indexKey := it.Item().KeyCopy(nil)

			ts, id, err := m.parseIndexKey(indexKey)
			if err != nil {
				continue
			}
			if ts.After(now) {
				// Index keys sort by timestamp, so nothing later is
				// ready either.
				break
			}

			item, err := txn.Get(m.msgKey(id))
			if err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					// Orphaned index entry, clean it up.
					if err := txn.Delete(indexKey); err != nil {
						return err
					}
					continue
				}
				return err
			}

			var qMsg QueueMessage
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &qMsg)
			}); err != nil {
				return err
			}

			if qMsg.ReceiveCount >= m.maxReceive {
				// Poison message: delivered too many times without
				// being settled.
				if err := txn.Delete(indexKey); err != nil {
					return err
				}
				if err := txn.Delete(m.msgKey(id)); err != nil {
					return err
				}
				continue
			}

			qMsg.ReceiveCount++
			qMsg.VisibleAt = now.Add(m.visibilityTimeout)

			data, err := json.Marshal(qMsg)
			if err != nil {
				return err
			}
			if err := txn.Set(m.msgKey(id), data); err != nil {
				return err
			}
			if err := txn.Delete(indexKey); err != nil {
				return err
			}
			if err := txn.Set(m.indexKey(qMsg.VisibleAt, id), []byte{}); err != nil {
				return err
			}

			claimed = qMsg
			return nil
		}

		return models.ErrNoMessage
	})
	if err != nil {
		return nil, nil, err
	}

	return &claimed, func() error { return m.remove(claimed.ID) }, nil
}

// Retry reschedules a claimed message to become visible again after
// delay, keeping its receive count.
func (m *BadgerManager) Retry(ctx context.Context, messageID string, delay time.Duration) error {
	return m.reschedule(messageID, time.Now().Add(delay))
}

// Extend pushes out the visibility timeout of a claimed message, for
// work that outlives the initial claim window.
func (m *BadgerManager) Extend(ctx context.Context, messageID string, duration time.Duration) error {
	return m.reschedule(messageID, time.Now().Add(duration))
}

// Length returns the total number of stored messages, ready or not.
func (m *BadgerManager) Length(ctx context.Context) (int, error) {
	stats, err := m.Stats(ctx)
	if err != nil {
		return 0, err
	}
	return stats.Total, nil
}

// Stats counts ready messages (visible now) and delayed ones (hidden
// by a delay or an in-flight claim).
func (m *BadgerManager) Stats(ctx context.Context) (Stats, error) {
	var stats Stats

	err := m.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := m.indexPrefix()
		now := time.Now()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ts, _, err := m.parseIndexKey(it.Item().KeyCopy(nil))
			if err != nil {
				continue
			}
			if ts.After(now) {
				stats.Delayed++
			} else {
				stats.Ready++
			}
		}
		return nil
	})
	if err != nil {
		return Stats{}, err
	}

	stats.Total = stats.Ready + stats.Delayed
	return stats, nil
}

// Close is a no-op; the Badger instance is owned by the storage layer.
func (m *BadgerManager) Close() error {
	return nil
}

// reschedule moves a message's visibility to visibleAt, updating both
// the stored message and its index key.
func (m *BadgerManager) reschedule(messageID string, visibleAt time.Time) error {
	return m.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(m.msgKey(messageID))
		if err != nil {
			return fmt.Errorf("message %s: %w", messageID, err)
		}

		var qMsg QueueMessage
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &qMsg)
		}); err != nil {
			return err
		}

		oldIndexKey := m.indexKey(qMsg.VisibleAt, messageID)
		qMsg.VisibleAt = visibleAt

		data, err := json.Marshal(qMsg)
		if err != nil {
			return err
		}
		if err := txn.Set(m.msgKey(messageID), data); err != nil {
			return err
		}
		if err := txn.Delete(oldIndexKey); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(m.indexKey(qMsg.VisibleAt, messageID), []byte{})
	})
}

// remove deletes a message and its index entry. Safe to call twice.
func (m *BadgerManager) remove(messageID string) error {
	return m.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(m.msgKey(messageID))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}

		var qMsg QueueMessage
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &qMsg)
		}); err != nil {
			return err
		}

		if err := txn.Delete(m.indexKey(qMsg.VisibleAt, messageID)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Delete(m.msgKey(messageID))
	})
}

func (m *BadgerManager) msgKey(id string) []byte {
	return []byte(fmt.Sprintf("queue:%s:msg:%s", m.queueName, id))
}

func (m *BadgerManager) indexPrefix() []byte {
	return []byte(fmt.Sprintf("queue:%s:index:", m.queueName))
}

func (m *BadgerManager) indexKey(visibleAt time.Time, id string) []byte {
	// Zero-padded nanosecond timestamp so lexicographic key order is
	// chronological order.
	return []byte(fmt.Sprintf("queue:%s:index:%020d:%s", m.queueName, visibleAt.UnixNano(), id))
}

func (m *BadgerManager) parseIndexKey(key []byte) (time.Time, string, error) {
	prefix := m.indexPrefix()
	if len(key) <= len(prefix) {
		return time.Time{}, "", fmt.Errorf("invalid index key")
	}

	suffix := string(key[len(prefix):])
	if len(suffix) < 22 {
		return time.Time{}, "", fmt.Errorf("invalid index key")
	}

	var ts int64
	if _, err := fmt.Sscanf(suffix[:20], "%d", &ts); err != nil {
		return time.Time{}, "", err
	}

	return time.Unix(0, ts), suffix[21:], nil
}

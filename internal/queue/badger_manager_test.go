package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Matanbitton/cheap-crawler/internal/models"
)

func newTestQueue(t *testing.T, visibility time.Duration, maxReceive int) *BadgerManager {
	t.Helper()

	opts := badger.DefaultOptions(t.TempDir())
	opts.Logger = nil
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mgr, err := NewBadgerManager(db, "test_jobs", visibility, maxReceive)
	require.NoError(t, err)
	return mgr
}

func testMessage(jobID string) models.QueueMessage {
	payload, _ := json.Marshal(models.ScrapePayload{URL: "https://example.com/", MaxPages: 10})
	return models.QueueMessage{
		JobID:   jobID,
		Type:    models.JobTypeScrape,
		Payload: payload,
	}
}

func TestQueue_EnqueueReceiveDelete(t *testing.T) {
	mgr := newTestQueue(t, time.Minute, 4)
	ctx := context.Background()

	require.NoError(t, mgr.Enqueue(ctx, testMessage("job_1")))

	env, deleteFn, err := mgr.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "job_1", env.Body.JobID)
	assert.Equal(t, models.JobTypeScrape, env.Body.Type)
	assert.Equal(t, 1, env.ReceiveCount)
	assert.NotEmpty(t, env.ID)

	require.NoError(t, deleteFn())

	_, _, err = mgr.Receive(ctx)
	require.ErrorIs(t, err, models.ErrNoMessage)

	length, err := mgr.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, length)
}

func TestQueue_ReceiveIsFIFO(t *testing.T) {
	mgr := newTestQueue(t, time.Minute, 4)
	ctx := context.Background()

	for _, id := range []string{"job_1", "job_2", "job_3"} {
		require.NoError(t, mgr.Enqueue(ctx, testMessage(id)))
		time.Sleep(2 * time.Millisecond)
	}

	var got []string
	for i := 0; i < 3; i++ {
		env, deleteFn, err := mgr.Receive(ctx)
		require.NoError(t, err)
		got = append(got, env.Body.JobID)
		require.NoError(t, deleteFn())
	}

	assert.Equal(t, []string{"job_1", "job_2", "job_3"}, got)
}

func TestQueue_EnqueueWithDelayHidesMessage(t *testing.T) {
	mgr := newTestQueue(t, time.Minute, 4)
	ctx := context.Background()

	require.NoError(t, mgr.EnqueueWithDelay(ctx, testMessage("job_1"), 150*time.Millisecond))

	_, _, err := mgr.Receive(ctx)
	require.ErrorIs(t, err, models.ErrNoMessage)

	require.Eventually(t, func() bool {
		env, deleteFn, err := mgr.Receive(ctx)
		if err != nil {
			return false
		}
		defer deleteFn()
		return env.Body.JobID == "job_1"
	}, 2*time.Second, 20*time.Millisecond)
}

func TestQueue_UnsettledClaimBecomesVisibleAgain(t *testing.T) {
	mgr := newTestQueue(t, 100*time.Millisecond, 4)
	ctx := context.Background()

	require.NoError(t, mgr.Enqueue(ctx, testMessage("job_1")))

	env, _, err := mgr.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, env.ReceiveCount)

	// Claimed message is hidden while the visibility window is open.
	_, _, err = mgr.Receive(ctx)
	require.ErrorIs(t, err, models.ErrNoMessage)

	require.Eventually(t, func() bool {
		env, _, err := mgr.Receive(ctx)
		return err == nil && env.ReceiveCount == 2
	}, 2*time.Second, 20*time.Millisecond)
}

func TestQueue_RetrySchedulesRedelivery(t *testing.T) {
	mgr := newTestQueue(t, time.Minute, 4)
	ctx := context.Background()

	require.NoError(t, mgr.Enqueue(ctx, testMessage("job_1")))

	env, _, err := mgr.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, mgr.Retry(ctx, env.ID, 100*time.Millisecond))

	_, _, err = mgr.Receive(ctx)
	require.ErrorIs(t, err, models.ErrNoMessage)

	require.Eventually(t, func() bool {
		redelivered, _, err := mgr.Receive(ctx)
		return err == nil && redelivered.ID == env.ID && redelivered.ReceiveCount == 2
	}, 2*time.Second, 20*time.Millisecond)
}

func TestQueue_PoisonMessageIsDropped(t *testing.T) {
	mgr := newTestQueue(t, time.Minute, 2)
	ctx := context.Background()

	require.NoError(t, mgr.Enqueue(ctx, testMessage("job_1")))

	for i := 1; i <= 2; i++ {
		env, _, err := mgr.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, env.ReceiveCount)
		require.NoError(t, mgr.Retry(ctx, env.ID, 0))
	}

	// Third delivery attempt exceeds maxReceive; the message is gone.
	_, _, err := mgr.Receive(ctx)
	require.ErrorIs(t, err, models.ErrNoMessage)

	length, err := mgr.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, length)
}

func TestQueue_Stats(t *testing.T) {
	mgr := newTestQueue(t, time.Minute, 4)
	ctx := context.Background()

	require.NoError(t, mgr.Enqueue(ctx, testMessage("job_ready")))
	require.NoError(t, mgr.EnqueueWithDelay(ctx, testMessage("job_delayed"), time.Hour))

	stats, err := mgr.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Ready: 1, Delayed: 1, Total: 2}, stats)
}

func TestQueue_DeleteIsIdempotent(t *testing.T) {
	mgr := newTestQueue(t, time.Minute, 4)
	ctx := context.Background()

	require.NoError(t, mgr.Enqueue(ctx, testMessage("job_1")))

	_, deleteFn, err := mgr.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, deleteFn())
	require.NoError(t, deleteFn())
}

func TestQueue_ExtendKeepsMessageHidden(t *testing.T) {
	mgr := newTestQueue(t, 100*time.Millisecond, 4)
	ctx := context.Background()

	require.NoError(t, mgr.Enqueue(ctx, testMessage("job_1")))

	env, deleteFn, err := mgr.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, mgr.Extend(ctx, env.ID, time.Minute))

	// Well past the original visibility window the message must still
	// be hidden by the extension.
	time.Sleep(300 * time.Millisecond)
	_, _, err = mgr.Receive(ctx)
	require.ErrorIs(t, err, models.ErrNoMessage)

	require.NoError(t, deleteFn())
}

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeTestJob(kind JobKind, endpoint string) Job {
	return Job{
		Kind:     kind,
		Endpoint: endpoint,
		Method:   "POST",
		Payload:  []byte(`{"n":1}`),
		UserID:   "u1",
	}
}

func TestEnqueue(t *testing.T) {
	ctx := context.Background()

	t.Run("new item is pending and immediately eligible", func(t *testing.T) {
		s := newTestStore(t)

		id, err := s.Enqueue(ctx, makeTestJob(KindBlinkBatch, "/sessions/s1/blinks/batch"))
		require.NoError(t, err)

		item, err := s.GetQueueItem(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, item)
		assert.Equal(t, StatusPending, item.Status)
		assert.Nil(t, item.NextEligibleAt)
		assert.Equal(t, 0, item.RetryCount)
	})

	t.Run("retry budget defaults per kind", func(t *testing.T) {
		s := newTestStore(t)

		cases := []struct {
			kind JobKind
			want int
		}{
			{KindBlinkBatch, 5},
			{KindProfileUpdate, 3},
			{KindGDPRErase, 8},
			{KindOpaque, 5},
		}

		for _, tc := range cases {
			id, err := s.Enqueue(ctx, makeTestJob(tc.kind, "/x"))
			require.NoError(t, err)

			item, err := s.GetQueueItem(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, tc.want, item.MaxRetries, "kind %s", tc.kind)
		}
	})

	t.Run("explicit retry budget overrides default", func(t *testing.T) {
		s := newTestStore(t)

		job := makeTestJob(KindBlinkBatch, "/x")
		job.MaxRetries = 2

		id, err := s.Enqueue(ctx, job)
		require.NoError(t, err)

		item, err := s.GetQueueItem(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 2, item.MaxRetries)
	})

	t.Run("headers round-trip", func(t *testing.T) {
		s := newTestStore(t)

		job := makeTestJob(KindProfileUpdate, "/user/profile")
		job.Headers = map[string]string{"If-Match": "abc123"}

		id, err := s.Enqueue(ctx, job)
		require.NoError(t, err)

		item, err := s.GetQueueItem(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "abc123", item.Headers["If-Match"])
	})

	t.Run("unknown kind decodes as opaque", func(t *testing.T) {
		s := newTestStore(t)

		id, err := s.Enqueue(ctx, makeTestJob(JobKind("mood-snapshot"), "/moods"))
		require.NoError(t, err)

		item, err := s.GetQueueItem(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, KindOpaque, item.Kind)
		assert.Equal(t, "/moods", item.Endpoint)
		assert.Equal(t, []byte(`{"n":1}`), item.Payload)
	})
}

func TestNextBatch(t *testing.T) {
	ctx := context.Background()
	now := NowNano()

	t.Run("empty queue yields empty batch", func(t *testing.T) {
		s := newTestStore(t)

		batch, err := s.NextBatch(ctx, now, 10)
		require.NoError(t, err)
		assert.Empty(t, batch)
	})

	t.Run("batch contains only the oldest item's endpoint", func(t *testing.T) {
		s := newTestStore(t)

		_, err := s.Enqueue(ctx, makeTestJob(KindBlinkBatch, "/sessions/s1/blinks/batch"))
		require.NoError(t, err)
		_, err = s.Enqueue(ctx, makeTestJob(KindProfileUpdate, "/user/profile"))
		require.NoError(t, err)
		_, err = s.Enqueue(ctx, makeTestJob(KindBlinkBatch, "/sessions/s1/blinks/batch"))
		require.NoError(t, err)

		batch, err := s.NextBatch(ctx, now, 10)
		require.NoError(t, err)
		require.Len(t, batch, 2)

		for _, item := range batch {
			assert.Equal(t, "/sessions/s1/blinks/batch", item.Endpoint)
		}
	})

	t.Run("respects limit in creation order", func(t *testing.T) {
		s := newTestStore(t)

		var ids []int64
		for range 5 {
			id, err := s.Enqueue(ctx, makeTestJob(KindBlinkBatch, "/b"))
			require.NoError(t, err)
			ids = append(ids, id)
		}

		batch, err := s.NextBatch(ctx, now, 3)
		require.NoError(t, err)
		require.Len(t, batch, 3)
		assert.Equal(t, ids[0], batch[0].ID)
		assert.Equal(t, ids[2], batch[2].ID)
	})

	t.Run("items with future eligibility are skipped", func(t *testing.T) {
		s := newTestStore(t)

		early, err := s.Enqueue(ctx, makeTestJob(KindBlinkBatch, "/b"))
		require.NoError(t, err)
		late, err := s.Enqueue(ctx, makeTestJob(KindProfileUpdate, "/user/profile"))
		require.NoError(t, err)

		// Push the first item's eligibility into the future via a retry.
		_, err = s.MarkRetry(ctx, early, now+int64(1e12), "timeout")
		require.NoError(t, err)

		batch, err := s.NextBatch(ctx, now, 10)
		require.NoError(t, err)
		require.Len(t, batch, 1)
		assert.Equal(t, late, batch[0].ID)
	})

	t.Run("eligibility in the past is included again", func(t *testing.T) {
		s := newTestStore(t)

		id, err := s.Enqueue(ctx, makeTestJob(KindBlinkBatch, "/b"))
		require.NoError(t, err)

		_, err = s.MarkRetry(ctx, id, now-1, "timeout")
		require.NoError(t, err)

		batch, err := s.NextBatch(ctx, now, 10)
		require.NoError(t, err)
		require.Len(t, batch, 1)
		assert.Equal(t, 1, batch[0].RetryCount)
	})
}

func TestQueueTransitions(t *testing.T) {
	ctx := context.Background()
	now := NowNano()

	t.Run("mark success", func(t *testing.T) {
		s := newTestStore(t)

		id, err := s.Enqueue(ctx, makeTestJob(KindBlinkBatch, "/b"))
		require.NoError(t, err)

		require.NoError(t, s.MarkSuccess(ctx, id))

		item, err := s.GetQueueItem(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, StatusSuccess, item.Status)
	})

	t.Run("terminal states reject further transitions", func(t *testing.T) {
		s := newTestStore(t)

		id, err := s.Enqueue(ctx, makeTestJob(KindBlinkBatch, "/b"))
		require.NoError(t, err)
		require.NoError(t, s.MarkSuccess(ctx, id))

		assert.ErrorIs(t, s.MarkSuccess(ctx, id), ErrItemNotPending)
		assert.ErrorIs(t, s.MarkFailed(ctx, id, "x"), ErrItemNotPending)

		_, err = s.MarkRetry(ctx, id, now, "x")
		assert.ErrorIs(t, err, ErrItemNotPending)
	})

	t.Run("retry increments counter and records error", func(t *testing.T) {
		s := newTestStore(t)

		id, err := s.Enqueue(ctx, makeTestJob(KindBlinkBatch, "/b"))
		require.NoError(t, err)

		status, err := s.MarkRetry(ctx, id, now+1000, "connection refused")
		require.NoError(t, err)
		assert.Equal(t, StatusPending, status)

		item, err := s.GetQueueItem(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 1, item.RetryCount)
		assert.Equal(t, "connection refused", item.LastError)
		require.NotNil(t, item.NextEligibleAt)
		assert.Equal(t, now+1000, *item.NextEligibleAt)
	})

	t.Run("exhausting the retry budget dead-letters the item", func(t *testing.T) {
		s := newTestStore(t)

		job := makeTestJob(KindBlinkBatch, "/b")
		job.MaxRetries = 2

		id, err := s.Enqueue(ctx, job)
		require.NoError(t, err)

		status, err := s.MarkRetry(ctx, id, now, "boom")
		require.NoError(t, err)
		assert.Equal(t, StatusPending, status)

		status, err = s.MarkRetry(ctx, id, now, "boom again")
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, status)

		item, err := s.GetQueueItem(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, item.Status)
		assert.Equal(t, "boom again", item.LastError)

		// Failed items never reappear in a batch.
		batch, err := s.NextBatch(ctx, now+int64(1e12), 10)
		require.NoError(t, err)
		assert.Empty(t, batch)
	})

	t.Run("mark failed bypasses remaining budget", func(t *testing.T) {
		s := newTestStore(t)

		id, err := s.Enqueue(ctx, makeTestJob(KindBlinkBatch, "/b"))
		require.NoError(t, err)

		require.NoError(t, s.MarkFailed(ctx, id, "422 validation"))

		item, err := s.GetQueueItem(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, item.Status)
		assert.Equal(t, 0, item.RetryCount)
	})

	t.Run("dead letters listed oldest first", func(t *testing.T) {
		s := newTestStore(t)

		first, err := s.Enqueue(ctx, makeTestJob(KindBlinkBatch, "/b"))
		require.NoError(t, err)
		second, err := s.Enqueue(ctx, makeTestJob(KindProfileUpdate, "/user/profile"))
		require.NoError(t, err)

		require.NoError(t, s.MarkFailed(ctx, second, "y"))
		require.NoError(t, s.MarkFailed(ctx, first, "x"))

		dead, err := s.DeadLetters(ctx)
		require.NoError(t, err)
		require.Len(t, dead, 2)
		assert.Equal(t, first, dead[0].ID)
		assert.Equal(t, second, dead[1].ID)
	})
}

func TestSyncStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("aggregates counts and last success", func(t *testing.T) {
		s := newTestStore(t)
		now := NowNano()

		require.NoError(t, s.CreateSession(ctx, makeTestSession("s1", "u1", "device_a")))
		require.NoError(t, s.InsertRecord(ctx, makeTestRecord("r1", "s1", "device_a", 1)))

		_, err := s.Enqueue(ctx, makeTestJob(KindBlinkBatch, "/b"))
		require.NoError(t, err)

		dead, err := s.Enqueue(ctx, makeTestJob(KindProfileUpdate, "/user/profile"))
		require.NoError(t, err)
		require.NoError(t, s.MarkFailed(ctx, dead, "422"))

		require.NoError(t, s.SetLastSyncSuccess(ctx, now))

		status, err := s.SyncStatus(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, status.PendingItems)
		assert.Equal(t, 1, status.FailedItems)
		assert.Equal(t, 1, status.UnsyncedRecords)
		require.NotNil(t, status.LastSuccess)
		assert.Equal(t, now, *status.LastSuccess)
	})
}

package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wellnessatwork/blinksync/internal/store"
)

// waitFor polls cond until it passes or the deadline expires.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}

		time.Sleep(5 * time.Millisecond)
	}

	t.Fatal("condition not met before deadline")
}

func TestRun(t *testing.T) {
	t.Run("poll timer drains the queue and shuts down cleanly", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		s := newTestStore(t)
		backend := &fakeBackend{}
		e := newTestEngine(t, s, backend, &collectObserver{}, nil)
		e.pollInterval = 10 * time.Millisecond

		records := seedSession(t, s, "s1", 1)
		enqueueBatch(t, s, "s1", records...)

		done := make(chan error, 1)
		go func() { done <- e.Run(ctx) }()

		waitFor(t, 2*time.Second, func() bool {
			n, err := s.CountQueued(context.Background(), store.StatusPending)
			return err == nil && n == 0
		})

		cancel()
		require.NoError(t, <-done)
	})

	t.Run("trigger drains without waiting for the timer", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		s := newTestStore(t)
		backend := &fakeBackend{}
		e := newTestEngine(t, s, backend, &collectObserver{}, nil)
		e.pollInterval = time.Hour

		done := make(chan error, 1)
		go func() { done <- e.Run(ctx) }()

		// Let the startup drain pass before enqueueing.
		time.Sleep(20 * time.Millisecond)

		records := seedSession(t, s, "s1", 1)
		enqueueBatch(t, s, "s1", records...)
		e.TriggerSync()

		waitFor(t, 2*time.Second, func() bool {
			n, err := s.CountQueued(context.Background(), store.StatusPending)
			return err == nil && n == 0
		})

		cancel()
		require.NoError(t, <-done)
	})

	t.Run("recovered connectivity triggers a drain", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		s := newTestStore(t)

		// First upload fails while offline; health answers down once, then
		// recovers.
		backend := &fakeBackend{
			uploadErrs: []error{netErr()},
			healthErrs: []error{netErr()},
		}

		e := newTestEngine(t, s, backend, &collectObserver{}, nil)
		e.pollInterval = time.Hour
		e.healthInterval = 10 * time.Millisecond

		// Near-zero backoff so the retry is eligible by the time the
		// health probe notices recovery.
		e.backoff = NewBackoff(time.Millisecond, time.Millisecond)

		records := seedSession(t, s, "s1", 1)
		enqueueBatch(t, s, "s1", records...)

		done := make(chan error, 1)
		go func() { done <- e.Run(ctx) }()

		waitFor(t, 2*time.Second, func() bool {
			n, err := s.CountQueued(context.Background(), store.StatusPending)
			return err == nil && n == 0
		})

		cancel()
		require.NoError(t, <-done)

		assert.GreaterOrEqual(t, backend.healthCalls, 2)
		assert.Equal(t, 2, backend.uploadCalls)
	})
}

package sync

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Run drains the queue on a timer until ctx is canceled: a periodic poll,
// a health probe that notices the backend coming back after an outage,
// and TriggerSync kicks from producers all feed the same drain loop.
// Returns nil on clean shutdown.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("sync daemon starting",
		slog.Duration("poll_interval", e.pollInterval),
		slog.Duration("health_interval", e.healthInterval),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return e.drainLoop(ctx)
	})

	if e.healthInterval > 0 {
		g.Go(func() error {
			return e.healthLoop(ctx)
		})
	}

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	e.logger.Info("sync daemon stopped")

	return nil
}

// drainLoop runs a drain on every poll tick and on every trigger.
func (e *Engine) drainLoop(ctx context.Context) error {
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	// Drain whatever survived the last shutdown before the first tick.
	e.drain(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.drain(ctx)
		case <-e.trigger:
			e.drain(ctx)
		}
	}
}

// drain runs one cycle, swallowing the contended-lease case.
func (e *Engine) drain(ctx context.Context) {
	_, err := e.RunOnce(ctx)
	if err != nil && !errors.Is(err, ErrDrainInProgress) && ctx.Err() == nil {
		e.logger.Error("drain cycle failed", "error", err)
	}
}

// healthLoop probes the backend periodically and triggers a drain on the
// offline to online transition, so queued work moves the moment
// connectivity returns instead of waiting out the poll interval.
func (e *Engine) healthLoop(ctx context.Context) error {
	ticker := time.NewTicker(e.healthInterval)
	defer ticker.Stop()

	online := true

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			_, err := e.backend.Health(ctx)
			nowOnline := err == nil

			if nowOnline && !online {
				e.logger.Info("backend reachable again, triggering drain")
				e.TriggerSync()
			}

			if !nowOnline && online {
				e.logger.Warn("backend unreachable", "error", err)
			}

			online = nowOnline
		}
	}
}

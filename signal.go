package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// shutdownContext returns a context that cancels on the first
// SIGINT/SIGTERM and force-exits on the second, or after grace elapses
// without cleanup finishing. The first signal gives the engine time to
// finish its in-flight batch; a second one means the user has run out
// of patience.
func shutdownContext(parent context.Context, grace time.Duration, logger *slog.Logger) context.Context {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down",
				slog.String("signal", sig.String()),
			)
			cancel()
		case <-ctx.Done():
			return
		}

		deadline := time.NewTimer(grace)
		defer deadline.Stop()

		select {
		case sig := <-sigCh:
			logger.Warn("received second signal, forcing exit",
				slog.String("signal", sig.String()),
			)
			os.Exit(1)
		case <-deadline.C:
			logger.Warn("shutdown grace period elapsed, forcing exit",
				slog.Duration("grace", grace),
			)
			os.Exit(1)
		case <-parent.Done():
			return
		}
	}()

	return ctx
}

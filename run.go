package main

import (
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the sync agent in the foreground",
		Long: `Run the sync agent in the foreground.

The agent replays any interval records a previous crash left unsynced,
then drains the queue on a poll interval and whenever connectivity
returns. Stop it with Ctrl-C; a second Ctrl-C forces immediate exit.`,
		RunE: runDaemon,
	}
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := shutdownContext(cmd.Context(), cc.Durations.ShutdownTimeout, cc.Logger)

	agent, err := newAgent(ctx, cc)
	if err != nil {
		return err
	}
	defer agent.Close()

	// Re-enqueue records stranded by a crash before the first drain so
	// they ride along with it. The server dedups replays by record id.
	tracker := agent.Tracker(cc)
	if err := tracker.Recover(ctx, cc.Cfg.Sync.BatchSize); err != nil {
		return err
	}

	cc.Logger.Info("agent started",
		"user_id", agent.UserID,
		"device_id", agent.DeviceID.String(),
		"db_path", cc.Cfg.Storage.DBPath)
	cc.Statusf("Sync agent running for %s (Ctrl-C to stop).\n", agent.UserID)

	return agent.Engine.Run(ctx)
}

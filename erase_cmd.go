package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/wellnessatwork/blinksync/internal/sync"
)

func newEraseCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "erase",
		Short: "Delete all of the user's data locally and on the server",
		Long: `Delete all of the user's data locally and on the server.

Local sessions, interval records, consent history, and queued uploads
are removed immediately. A deletion request is then queued for the
backend and pushed right away when reachable. Requires --yes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runErase(cmd, yes)
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm permanent deletion")

	return cmd
}

func runErase(cmd *cobra.Command, yes bool) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	if !yes {
		return errors.New("erase is permanent: re-run with --yes to confirm")
	}

	agent, err := newAgent(ctx, cc)
	if err != nil {
		return err
	}
	defer agent.Close()

	// Erase the local store first: it purges this user's queued uploads,
	// and the propagation job must be enqueued after that purge so it
	// survives.
	if err := agent.Store.EraseUser(ctx, agent.UserID); err != nil {
		return err
	}

	cc.Logger.Info("local data erased", "user_id", agent.UserID)

	if _, err := agent.Store.Enqueue(ctx, sync.NewGDPREraseJob(agent.UserID)); err != nil {
		return err
	}

	if _, err := agent.Engine.RunOnce(ctx); err != nil {
		return err
	}

	cc.Statusf("Erased local data for %s and requested server-side deletion.\n", agent.UserID)

	return nil
}

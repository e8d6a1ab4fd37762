package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wellnessatwork/blinksync/internal/sync"
)

type exportFlags struct {
	Output string
	Server bool
}

func newExportCmd() *cobra.Command {
	var flags exportFlags

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the user's local data as JSON",
		Long: `Export the user's local data as JSON.

Writes every session, interval record, and consent event stored locally.
With --server, additionally queues a request for the backend to prepare
a server-side export; the next sync delivers it.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExport(cmd, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.Output, "output", "o", "", "write the export to a file instead of stdout")
	cmd.Flags().BoolVar(&flags.Server, "server", false, "also request a server-side export")

	return cmd
}

func runExport(cmd *cobra.Command, flags exportFlags) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	agent, err := newAgent(ctx, cc)
	if err != nil {
		return err
	}
	defer agent.Close()

	export, err := agent.Store.ExportUser(ctx, agent.UserID)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding export: %w", err)
	}
	data = append(data, '\n')

	if flags.Output != "" {
		if err := os.WriteFile(flags.Output, data, 0o600); err != nil {
			return fmt.Errorf("writing export: %w", err)
		}

		cc.Statusf("Exported %d session(s) and %d record(s) to %s.\n",
			len(export.Sessions), len(export.Records), flags.Output)
	} else {
		if _, err := os.Stdout.Write(data); err != nil {
			return err
		}
	}

	if flags.Server {
		if _, err := agent.Store.Enqueue(ctx, sync.NewGDPRExportJob(agent.UserID)); err != nil {
			return err
		}

		// Push the request now if the backend is reachable; otherwise it
		// stays queued for the daemon.
		if _, err := agent.Engine.RunOnce(ctx); err != nil {
			return err
		}

		cc.Statusf("Server-side export requested.\n")
	}

	return nil
}

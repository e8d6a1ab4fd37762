package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/wellnessatwork/blinksync/internal/store"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue depth and last successful sync",
		RunE:  runStatus,
	}
}

// statusOutput is the JSON schema for `status --json`.
type statusOutput struct {
	PendingItems    int                `json:"pending_items"`
	FailedItems     int                `json:"failed_items"`
	UnsyncedRecords int                `json:"unsynced_records"`
	LastSuccess     *time.Time         `json:"last_success,omitempty"`
	DeadLetters     []deadLetterOutput `json:"dead_letters"`
}

type deadLetterOutput struct {
	ID        int64  `json:"id"`
	Kind      string `json:"kind"`
	Endpoint  string `json:"endpoint"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"last_error,omitempty"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	// Status reads only the local store, so it works before login and
	// while offline.
	st, err := store.Open(cc.Cfg.Storage.DBPath, cc.Logger)
	if err != nil {
		return err
	}
	defer st.Close()

	status, err := st.SyncStatus(ctx)
	if err != nil {
		return err
	}

	dead, err := st.DeadLetters(ctx)
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		return printStatusJSON(status, dead)
	}

	printStatusHuman(status, dead)

	return nil
}

func printStatusJSON(status *store.Status, dead []*store.QueueItem) error {
	out := statusOutput{
		PendingItems:    status.PendingItems,
		FailedItems:     status.FailedItems,
		UnsyncedRecords: status.UnsyncedRecords,
		DeadLetters:     make([]deadLetterOutput, 0, len(dead)),
	}

	if status.LastSuccess != nil {
		t := time.Unix(0, *status.LastSuccess).UTC()
		out.LastSuccess = &t
	}

	for _, item := range dead {
		out.DeadLetters = append(out.DeadLetters, deadLetterOutput{
			ID:        item.ID,
			Kind:      string(item.Kind),
			Endpoint:  item.Endpoint,
			Attempts:  item.RetryCount,
			LastError: item.LastError,
		})
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(out)
}

func printStatusHuman(status *store.Status, dead []*store.QueueItem) {
	lastSuccess := "never"
	if status.LastSuccess != nil {
		lastSuccess = formatAgo(time.Unix(0, *status.LastSuccess), time.Now())
	}

	fmt.Printf("Pending items:    %d\n", status.PendingItems)
	fmt.Printf("Failed items:     %d\n", status.FailedItems)
	fmt.Printf("Unsynced records: %d\n", status.UnsyncedRecords)
	fmt.Printf("Last sync:        %s\n", lastSuccess)

	if len(dead) == 0 {
		return
	}

	fmt.Printf("\nDead letters:\n")

	rows := make([][]string, 0, len(dead))
	for _, item := range dead {
		rows = append(rows, []string{
			strconv.FormatInt(item.ID, 10),
			string(item.Kind),
			item.Endpoint,
			strconv.Itoa(item.RetryCount),
			formatTime(time.Unix(0, item.CreatedAt)),
			item.LastError,
		})
	}

	printTable(os.Stdout, []string{"ID", "KIND", "ENDPOINT", "ATTEMPTS", "CREATED", "LAST ERROR"}, rows)
}

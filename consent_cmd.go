package main

import (
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/wellnessatwork/blinksync/internal/store"
)

func newConsentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "consent",
		Short: "Record or list consent decisions",
	}

	var policyVersion string

	grant := &cobra.Command{
		Use:   "grant <consent-type>",
		Short: "Record that consent was granted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsentRecord(cmd, args[0], true, policyVersion)
		},
	}
	grant.Flags().StringVar(&policyVersion, "policy", "", "policy version the decision applies to")

	var revokePolicy string

	revoke := &cobra.Command{
		Use:   "revoke <consent-type>",
		Short: "Record that consent was revoked",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsentRecord(cmd, args[0], false, revokePolicy)
		},
	}
	revoke.Flags().StringVar(&revokePolicy, "policy", "", "policy version the decision applies to")

	cmd.AddCommand(grant)
	cmd.AddCommand(revoke)
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Show the consent history",
		RunE:  runConsentList,
	})

	return cmd
}

func runConsentRecord(cmd *cobra.Command, consentType string, granted bool, policyVersion string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	agent, err := newAgent(ctx, cc)
	if err != nil {
		return err
	}
	defer agent.Close()

	ev := &store.ConsentEvent{
		ID:            uuid.NewString(),
		UserID:        agent.UserID,
		ConsentType:   consentType,
		Granted:       granted,
		Timestamp:     store.NowNano(),
		PolicyVersion: policyVersion,
	}

	if err := agent.Store.AppendConsent(ctx, ev); err != nil {
		return err
	}

	verb := "granted"
	if !granted {
		verb = "revoked"
	}

	cc.Logger.Info("consent recorded",
		"user_id", agent.UserID, "consent_type", consentType, "granted", granted)
	cc.Statusf("Consent %s for %s.\n", verb, consentType)

	return nil
}

func runConsentList(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	agent, err := newAgent(ctx, cc)
	if err != nil {
		return err
	}
	defer agent.Close()

	events, err := agent.Store.ListConsents(ctx, agent.UserID)
	if err != nil {
		return err
	}

	if len(events) == 0 {
		cc.Statusf("No consent events recorded.\n")
		return nil
	}

	rows := make([][]string, 0, len(events))
	for _, ev := range events {
		rows = append(rows, []string{
			ev.ConsentType,
			strconv.FormatBool(ev.Granted),
			ev.PolicyVersion,
			formatTime(time.Unix(0, ev.Timestamp)),
		})
	}

	printTable(os.Stdout, []string{"TYPE", "GRANTED", "POLICY", "WHEN"}, rows)

	return nil
}

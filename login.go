package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/wellnessatwork/blinksync/internal/config"
	"github.com/wellnessatwork/blinksync/internal/credentials"
)

type loginFlags struct {
	AccessToken  string
	RefreshToken string
	TokenFile    string
	ExpiresIn    time.Duration
}

func newLoginCmd() *cobra.Command {
	var flags loginFlags

	cmd := &cobra.Command{
		Use:   "login <user-id>",
		Short: "Save backend credentials for a user",
		Long: `Save backend credentials for a user.

Provide a token either inline with --access-token (plus --refresh-token
when the backend issued one) or as a JSON file with --token-file. The
token is written to the local credentials file and the user id is
remembered, so later commands do not need --user.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd, args[0], flags)
		},
	}

	cmd.Flags().StringVar(&flags.AccessToken, "access-token", "", "bearer access token issued by the backend")
	cmd.Flags().StringVar(&flags.RefreshToken, "refresh-token", "", "refresh token for silent renewal")
	cmd.Flags().StringVar(&flags.TokenFile, "token-file", "", "path to a JSON OAuth2 token to import")
	cmd.Flags().DurationVar(&flags.ExpiresIn, "expires-in", time.Hour, "access token lifetime when not importing a file")

	return cmd
}

func runLogin(cmd *cobra.Command, userID string, flags loginFlags) error {
	cc := mustCLIContext(cmd.Context())

	tok, err := loginToken(flags)
	if err != nil {
		return err
	}

	path := config.DefaultTokenPath()
	meta := map[string]string{tokenMetaUserID: userID}

	if err := credentials.Save(path, tok, meta); err != nil {
		return err
	}

	cc.Logger.Info("credentials saved", "user_id", userID, "path", path)
	cc.Statusf("Logged in as %s.\n", userID)

	return nil
}

// loginToken builds the token to persist from either an imported file or
// the inline flags.
func loginToken(flags loginFlags) (*oauth2.Token, error) {
	if flags.TokenFile != "" && flags.AccessToken != "" {
		return nil, errors.New("--token-file and --access-token are mutually exclusive")
	}

	if flags.TokenFile != "" {
		data, err := os.ReadFile(flags.TokenFile)
		if err != nil {
			return nil, fmt.Errorf("reading token file: %w", err)
		}

		var tok oauth2.Token
		if err := json.Unmarshal(data, &tok); err != nil {
			return nil, fmt.Errorf("parsing token file: %w", err)
		}
		if tok.AccessToken == "" {
			return nil, errors.New("token file has no access_token")
		}

		return &tok, nil
	}

	if flags.AccessToken == "" {
		return nil, errors.New("either --access-token or --token-file is required")
	}

	tok := credentials.NewExpiringToken(flags.AccessToken, time.Now().Add(flags.ExpiresIn))
	tok.RefreshToken = flags.RefreshToken

	return tok, nil
}

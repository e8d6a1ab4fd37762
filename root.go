// Command blinksync is the sync agent for the blink-tracking wellness
// app: it records tracking sessions and interval measurements into a
// local SQLite store and syncs them to the backend in the background,
// surviving offline stretches, crashes, and backend outages.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/wellnessatwork/blinksync/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// CLIFlags holds the global persistent flags.
type CLIFlags struct {
	ConfigPath string
	DBPath     string
	UserID     string
	JSON       bool
	Verbose    bool
	Quiet      bool
}

// CLIContext carries the resolved configuration and logger to
// subcommands through the command context.
type CLIContext struct {
	Cfg       *config.Config
	Durations *config.Durations
	Flags     CLIFlags
	Logger    *slog.Logger
}

type cliContextKey struct{}

// mustCLIContext extracts the CLIContext installed by the root pre-run.
// Panics if called before it, which is a programming error.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		panic("CLIContext missing: command ran without root PersistentPreRunE")
	}

	return cc
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	var flags CLIFlags

	cmd := &cobra.Command{
		Use:     "blinksync",
		Short:   "Offline-first sync agent for blink tracking",
		Long:    "Records blink-tracking sessions locally and syncs them to the wellness backend in the background.",
		Version: version,
		// Errors and usage are printed by main, not by cobra.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := resolveCLIContext(flags)
			if err != nil {
				return err
			}

			cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey{}, cc))

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flags.DBPath, "db", "", "state database path")
	cmd.PersistentFlags().StringVar(&flags.UserID, "user", "", "user id (defaults to the stored login)")
	cmd.PersistentFlags().BoolVar(&flags.JSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newExportCmd())
	cmd.AddCommand(newEraseCmd())
	cmd.AddCommand(newConsentCmd())

	return cmd
}

// resolveCLIContext applies the override chain (defaults, config file,
// environment, CLI flags) and builds the logger.
func resolveCLIContext(flags CLIFlags) (*CLIContext, error) {
	env := config.ReadEnvOverrides()
	if flags.ConfigPath != "" {
		env.ConfigPath = flags.ConfigPath
	}

	cfg, err := config.Resolve(env)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	// CLI flags win over everything.
	if flags.DBPath != "" {
		cfg.Storage.DBPath = flags.DBPath
	}

	durations, err := config.Validate(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &CLIContext{
		Cfg:       cfg,
		Durations: durations,
		Flags:     flags,
		Logger:    buildLogger(cfg, flags),
	}, nil
}

// buildLogger creates the slog.Logger from config and flags. The config
// file sets the baseline level; --verbose and --quiet override it because
// CLI flags always win. Format "auto" picks text on a terminal and JSON
// otherwise, so service managers capture structured output.
func buildLogger(cfg *config.Config, flags CLIFlags) *slog.Logger {
	level := slog.LevelInfo

	switch cfg.Logging.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	if flags.Verbose {
		level = slog.LevelDebug
	}

	if flags.Quiet {
		level = slog.LevelError
	}

	return slog.New(newLogHandler(os.Stderr, cfg.Logging.LogFormat, level))
}

func newLogHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	useText := format == "text"
	if format == "auto" || format == "" {
		if f, ok := w.(*os.File); ok {
			useText = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
		}
	}

	if useText {
		return slog.NewTextHandler(w, opts)
	}

	return slog.NewJSONHandler(w, opts)
}

// printError writes a user-friendly error message.
func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %v\n", err)
}

// Package cli implements the civicpoints command line: the API server, the
// device-side sync commands and local admin tooling.
package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/dukerupert/civicpoints/internal/config"
	"github.com/dukerupert/civicpoints/internal/logging"
)

// RootOptions holds global flags for all commands. Empty or zero values
// leave the environment configuration in place.
type RootOptions struct {
	EnvFile   string
	Format    string // "json" | "text"
	LogLevel  string
	DBPath    string
	ServerURL string
	Token     string
	MemberID  int64

	cfg    config.Config
	logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the civicpoints CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "civicpoints",
		Short:         "Civic engagement points and rewards",
		Long:          "Run the civicpoints API, keep a device cache in sync with it, and administer rewards.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return opts.load()
		},
	}

	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file to load before the environment")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "ledger database path")
	cmd.PersistentFlags().StringVar(&opts.ServerURL, "server", "", "backend base URL")
	cmd.PersistentFlags().StringVar(&opts.Token, "token", "", "session token")
	cmd.PersistentFlags().Int64Var(&opts.MemberID, "member", 0, "member ID this device acts for")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewLoginCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewRewardsCommand(opts))
	cmd.AddCommand(NewRedeemCommand(opts))
	cmd.AddCommand(NewSettingsCommand(opts))
	cmd.AddCommand(NewCacheCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewMemberCommand(opts))
	cmd.AddCommand(NewRewardCommand(opts))
	cmd.AddCommand(NewConversionsCommand(opts))

	return cmd
}

// load reads the environment configuration and applies flag overrides.
func (o *RootOptions) load() error {
	var files []string
	if o.EnvFile != "" {
		files = append(files, o.EnvFile)
	}
	cfg, err := config.LoadFiles(files...)
	if err != nil {
		return WrapExitError(ExitCommandError, "load config", err)
	}

	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	if o.DBPath != "" {
		cfg.DBPath = o.DBPath
	}
	if o.ServerURL != "" {
		cfg.ServerURL = o.ServerURL
	}
	if o.Token != "" {
		cfg.Token = o.Token
	}
	if o.MemberID != 0 {
		cfg.MemberID = o.MemberID
	}

	o.cfg = cfg
	o.logger = logging.Setup(cfg.LogLevel, cfg.LogFormat)
	return nil
}

// requireMember fails when no member identity is configured.
func (o *RootOptions) requireMember() error {
	if o.cfg.MemberID <= 0 {
		return NewExitError(ExitCommandError, "no member configured: pass --member or set CIVIC_MEMBER_ID")
	}
	return nil
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fsadmin-io/fsadmin/internal/auth"
	"github.com/fsadmin-io/fsadmin/internal/client"
	"github.com/fsadmin-io/fsadmin/internal/config"
	"github.com/fsadmin-io/fsadmin/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "fsadmin",
	Short: "Freshservice administration toolkit",
	Long: `fsadmin is a console toolkit for help-desk administrators.

It wraps the Freshservice REST API with client-side rate limiting,
dry-run protection for every mutating call, and layered fallbacks for
the queries the API does not support directly: user lookup across the
requester and agent pools, activity reporting, inactivity scans, bulk
CSV operations, and API diagnostics.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	configFileFlag string
	dryRunFlag     bool
	workspaceFlag  int64
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configFileFlag, "config", "", "Path to config file (default: ./fsadmin.yaml)")
	rootCmd.PersistentFlags().BoolVar(&dryRunFlag, "dry-run", false, "Simulate mutating calls without sending them")
	rootCmd.PersistentFlags().Int64Var(&workspaceFlag, "workspace", 0, "Workspace ID to scope catalog requests to")

	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(diagCmd)
	rootCmd.AddCommand(bulkCmd)
}

// app bundles everything a command needs for one invocation.
type app struct {
	cfg    *config.Config
	client *client.Client
}

// newApp loads configuration, applies flag overrides, and connects the
// API client.
func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(configFileFlag)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("dry-run") {
		cfg.DryRun = dryRunFlag
	}
	if cmd.Flags().Changed("workspace") {
		cfg.WorkspaceID = workspaceFlag
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := logging.New(cfg.LogLevel, cfg.LogFile)

	cred := auth.Parse(cfg.APIKey)
	if cfg.Domain != "" {
		cred = auth.NewCredential(cfg.APIKey, cfg.Domain)
	}

	c := client.New(client.Config{
		Credential:  cred,
		WorkspaceID: cfg.WorkspaceID,
		DryRun:      cfg.DryRun,
		Logger:      log,
	})
	return &app{cfg: cfg, client: c}, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

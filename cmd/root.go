// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package cmd provides the leadbot command-line interface: the chat-event
// server, an interactive terminal chat, and the commands that manage the
// Salesforce session and the audit database.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"leadbot/cli/internal/config"
	"leadbot/cli/internal/logging"
)

var (
	showVersion bool
	verbose     bool
	configPath  string

	appConfig config.Config
	logger    = zap.NewNop()
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "leadbot",
	Short: "Manage Salesforce leads with plain-language commands",
	Long: `leadbot turns chat messages such as "update John Doe's lead status to Qualified"
into Salesforce changes. Every command is shown back to the user and only runs
after an explicit confirmation.

Run 'leadbot serve' to accept chat events over HTTP, or 'leadbot run' to chat
from the terminal.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		appConfig = cfg

		level := cfg.LogLevel
		if cmd != serveCmd && (level == "" || level == "debug" || level == "info") {
			// Interactive commands report through the terminal UI.
			level = "warn"
		}
		l, err := logging.New(logging.Options{
			Level:   level,
			Verbose: verbose,
			Console: cmd != serveCmd,
		})
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVersion {
			fmt.Printf("leadbot %s\n", Version)
			return nil
		}
		return cmd.Help()
	},
}

// Execute runs the CLI application.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, logging.PresentError("", err))
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "Show version information")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default $XDG_CONFIG_HOME/leadbot/config.json)")
}

// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"leadbot/cli/internal/config"
	"leadbot/cli/internal/logging"
)

// statusCmd shows the effective configuration and session.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration, session and audit settings",
	Long: `The status command shows the effective configuration (file plus environment),
the Salesforce session, and where the audit database DSN comes from. Secrets are
masked.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		secrets, err := config.LoadSecrets()
		if err != nil {
			return err
		}
		cfg := appConfig

		var b strings.Builder
		fmt.Fprintf(&b, "Language model: %s %s\n", cfg.Oracle.Provider, cfg.Oracle.Model)
		fmt.Fprintf(&b, "Salesforce:     %s (%s, API %s)\n", cfg.CRM.Object, cfg.CRM.Environment, cfg.CRM.APIVersion)
		fmt.Fprintf(&b, "Confirm within: %s\n", cfg.Store.TTL.Std())

		session := "not logged in"
		if svc, err := newAuthService(cfg, secrets); err == nil {
			if st, err := svc.Status(); err == nil && st.LoggedIn {
				session = st.InstanceURL
				if st.Account != "" {
					session = st.Account + " @ " + st.InstanceURL
				}
				if !st.Expiry.IsZero() && time.Now().After(st.Expiry) && st.CanRefresh {
					session += " (refresh pending)"
				}
			}
		} else {
			session = err.Error()
		}
		fmt.Fprintf(&b, "Session:        %s\n", session)

		dsn, source := auditDSN(secrets)
		if dsn == "" {
			b.WriteString("Audit log:      disabled (run leadbot connect)")
		} else {
			fmt.Fprintf(&b, "Audit log:      %s (from %s)", logging.Mask(dsn), source)
		}

		pterm.DefaultBox.
			WithTitle(pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint("leadbot")).
			WithPadding(1).
			Println(b.String())
		pterm.Println()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"leadbot/cli/internal/config"
	"leadbot/cli/internal/keychain"
)

var keepAudit bool

// logoutCmd clears the Salesforce session and stored secrets.
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Revoke the Salesforce session and remove stored secrets",
	Long: `The logout command revokes the Salesforce token (best-effort) and removes it from
the OS keychain, together with the session state and the audit database DSN.

This command removes:
- The Salesforce access and refresh tokens
- Local session state
- The audit database DSN (unless --keep-audit is given)`,

	RunE: func(cmd *cobra.Command, args []string) error {
		secrets, _ := config.LoadSecrets()
		if svc, err := newAuthService(appConfig, secrets); err == nil {
			if revoked, _ := svc.Logout(cmd.Context()); !revoked {
				logger.Warn("token was not revoked remotely")
			}
		}

		// Always clear local credentials regardless of the remote result.
		if km, err := keychain.GetManager(); err == nil {
			if keepAudit {
				_ = km.ClearAuth()
			} else {
				_ = km.ClearAll()
			}
		}

		fmt.Println("✅ All credentials and tokens have been removed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logoutCmd)
	logoutCmd.Flags().BoolVar(&keepAudit, "keep-audit", false, "Keep the audit database DSN")
}

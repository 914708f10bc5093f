package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"leadbot/cli/internal/config"
)

// whoamiCmd shows the Salesforce user leadbot acts as.
var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the Salesforce user leadbot acts as",
	Long: `The whoami command shows the Salesforce user of the stored session. It asks
Salesforce when possible and falls back to the locally stored account when
offline.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		secrets, err := config.LoadSecrets()
		if err != nil {
			return err
		}
		svc, err := newAuthService(appConfig, secrets)
		if err != nil {
			return err
		}
		status, err := svc.Status()
		if err != nil || !status.LoggedIn {
			fmt.Println("🔒 You're not logged in yet!")
			fmt.Println("   Run 'leadbot login' to get started.")
			return nil
		}
		sess, err := svc.Session()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 20*time.Second)
		defer cancel()
		account := status.Account
		if id, err := identify(ctx, svc, sess); err == nil {
			account = id
			if id != status.Account {
				_ = svc.SetAccount(id)
			}
		} else if account == "" {
			return err
		}

		fmt.Printf("👤 Current user: %s\n", account)
		fmt.Printf("   Instance: %s\n", status.InstanceURL)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
}

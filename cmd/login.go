// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/spf13/cobra"

	"leadbot/cli/internal/auth"
	"leadbot/cli/internal/config"
	"leadbot/cli/internal/crm"
	"leadbot/cli/internal/httperrors"
	"leadbot/cli/internal/logging"
	"leadbot/cli/internal/terminal"
)

var forceLogin bool

// loginCmd authorizes leadbot against a Salesforce org.
var loginCmd = &cobra.Command{
	Use:     "login",
	Aliases: []string{"auth"},
	Short:   "Authorize leadbot with your Salesforce org",
	Long: `The login command runs the OAuth authorization code flow with PKCE. It prints a
link (and tries to open it in your browser); after you approve access, paste the
authorization code or the full redirect URL back into the terminal.

The token is stored in the OS keychain and refreshed automatically. Set
SALESFORCE_ENVIRONMENT=sandbox to log in to a sandbox org.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
		defer cancel()

		secrets, err := config.LoadSecrets()
		if err != nil {
			return err
		}
		svc, err := newAuthService(appConfig, secrets)
		if err != nil {
			return err
		}

		if status, err := svc.Status(); err == nil && status.LoggedIn && !forceLogin {
			fmt.Printf("Already logged in to %s\n", status.InstanceURL)
			fmt.Println("   Use --force to log in again.")
			return nil
		}

		l := svc.BeginLogin()
		fmt.Println("Open this link to authorize leadbot:")
		fmt.Printf("%s\n\n", l.URL)
		openBrowser(l.URL)

		input, err := terminal.ReadSecret("Paste the authorization code or redirect URL: ")
		if err != nil {
			return err
		}
		code, err := l.CodeFrom(input)
		if err != nil {
			return err
		}

		var sess auth.Session
		withSpinner("Completing login", func() {
			sess, err = svc.Exchange(ctx, l, code)
		})
		if err != nil {
			if httperrors.Classify(err) != httperrors.Generic {
				return httperrors.FormatNetworkError(err, "logging in")
			}
			return err
		}

		account := sess.InstanceURL
		if id, err := identify(ctx, svc, sess); err == nil {
			account = id
			_ = svc.SetAccount(id)
		} else {
			logger.Warn("could not read Salesforce identity", logging.Error(err))
		}
		fmt.Println(loginGreeting(account))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
	loginCmd.Flags().BoolVar(&forceLogin, "force", false, "Log in again even if a session exists")
}

// identify returns a display name for the logged-in user.
func identify(ctx context.Context, svc *auth.Service, sess auth.Session) (string, error) {
	ts, _, err := svc.TokenSource(ctx)
	if err != nil {
		return "", err
	}
	client, err := crm.New(crm.Config{InstanceURL: sess.InstanceURL, Timeout: 15 * time.Second}, ts, logger)
	if err != nil {
		return "", err
	}
	id, err := client.Identity(ctx)
	if err != nil {
		return "", err
	}
	switch {
	case id.Email != "":
		return id.Email, nil
	case id.Username != "":
		return id.Username, nil
	}
	return id.UserID, nil
}

func loginGreeting(identifier string) string {
	greetings := []string{
		"🎉 Welcome, %s!",
		"✨ Connected to Salesforce as %s",
		"🚀 You're all set, %s!",
		"🔓 Access granted! Hi %s!",
		"✅ Authorization complete for %s",
	}
	return fmt.Sprintf(greetings[rand.IntN(len(greetings))], identifier)
}

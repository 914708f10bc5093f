package cmd

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"leadbot/cli/internal/config"
	apperrors "leadbot/cli/internal/errors"
	"leadbot/cli/internal/intent"
	"leadbot/cli/internal/logging"
)

// parseCmd shows how a request would be understood without staging it.
var parseCmd = &cobra.Command{
	Use:   "parse <request>",
	Short: "Show the CRM command a request would produce",
	Long: `The parse command sends a request to the language model and prints the
validated command as JSON. Nothing is staged and Salesforce is not contacted.`,
	Args: cobra.MinimumNArgs(1),

	RunE: func(cmd *cobra.Command, args []string) error {
		secrets, err := config.LoadSecrets()
		if err != nil {
			return err
		}
		p, err := newParser(cmd.Context(), appConfig, secrets)
		if err != nil {
			return err
		}

		var in intent.Intent
		withSpinner("Understanding your request", func() {
			in, err = p.Parse(cmd.Context(), strings.Join(args, " "))
		})
		if err != nil {
			pterm.Println(logging.FormatFailure(apperrors.KindOf(err), apperrors.MessageOf(err), apperrors.DetailOf(err)))
			return errors.New("request not understood")
		}

		b, err := json.MarshalIndent(in, "", "  ")
		if err != nil {
			return err
		}
		pterm.Println(string(b))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(parseCmd)
}

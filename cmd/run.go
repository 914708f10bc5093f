package cmd

import (
	"bufio"
	"errors"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"leadbot/cli/internal/lifecycle"
	"leadbot/cli/internal/terminal"
)

var autoConfirm bool

// runCmd is an interactive chat in the terminal.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Chat with leadbot from the terminal",
	Long: `The run command reads plain-language requests from the terminal, shows what
leadbot understood, and asks for confirmation before changing Salesforce.

Examples:
  create a lead for Jane Smith at Acme, email jane@acme.com
  update John Doe's lead status to Qualified
  delete the lead Mike Johnson

Type 'exit' or press Ctrl+D to quit.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		a, err := newApp(ctx, appConfig)
		if err != nil {
			if notLoggedIn(err) {
				mustLogin()
				return nil
			}
			return err
		}
		defer a.close()

		userID := localUserID()
		reader := bufio.NewReader(os.Stdin)
		pterm.Println(pterm.NewStyle(pterm.FgLightCyan).Sprint("leadbot is ready. Describe a change to a Salesforce lead."))
		pterm.Println()

		for ctx.Err() == nil {
			text, err := terminal.ReadLine(reader, "› ")
			if errors.Is(err, io.EOF) {
				pterm.Println()
				return nil
			}
			if err != nil {
				return err
			}
			switch strings.ToLower(text) {
			case "":
				continue
			case "exit", "quit":
				return nil
			}

			var staged lifecycle.Reply
			withSpinner("Understanding your request", func() {
				staged = a.svc.HandleText(ctx, userID, text)
			})
			printReply(staged)
			if staged.State != lifecycle.Staged {
				continue
			}

			ok := autoConfirm
			if !ok {
				ok, err = pterm.DefaultInteractiveConfirm.
					WithDefaultText("Execute this command?").
					WithDefaultValue(false).
					Show()
				if err != nil {
					return err
				}
			}

			var done lifecycle.Reply
			if ok {
				withSpinner("Updating Salesforce", func() {
					done = a.svc.Confirm(ctx, userID, staged.CommandID)
				})
			} else {
				done = a.svc.Cancel(ctx, userID, staged.CommandID)
			}
			printReply(done)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVarP(&autoConfirm, "yes", "y", false, "Execute understood commands without asking")
}

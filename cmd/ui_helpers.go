package cmd

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"atomicgo.dev/cursor"
	"github.com/pterm/pterm"

	"leadbot/cli/internal/lifecycle"
	"leadbot/cli/internal/logging"
	"leadbot/cli/internal/terminal"
)

// withSpinner runs fn while a spinner with text is shown. Without a
// terminal it just runs fn.
func withSpinner(text string, fn func()) {
	if !terminal.IsInteractive() {
		fn()
		return
	}
	cursor.Hide()
	defer cursor.Show()
	sp, err := pterm.DefaultSpinner.WithRemoveWhenDone(true).Start(text)
	if err != nil {
		fn()
		return
	}
	fn()
	_ = sp.Stop()
}

// slackMarkup strips the chat formatting from lifecycle messages.
var slackMarkup = strings.NewReplacer("*", "", "```", "\n", "`", "")

func plain(message string) string {
	return strings.TrimSpace(slackMarkup.Replace(message))
}

// printReply renders a lifecycle reply for the terminal.
func printReply(r lifecycle.Reply) {
	switch r.State {
	case lifecycle.Staged:
		pterm.DefaultBox.
			WithTitle(pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint("Please confirm")).
			WithPadding(1).
			Println(plain(r.Message))
	case lifecycle.Executed:
		pterm.Println(pterm.NewStyle(pterm.FgGreen).Sprint(plain(r.Message)))
	case lifecycle.Cancelled, lifecycle.Expired:
		pterm.Println(plain(r.Message))
	default:
		pterm.Println()
		pterm.Println(logging.FormatFailure(r.Kind, plain(r.Message), r.Detail))
	}
	pterm.Println()
}

// openBrowser attempts to open url in the user's default browser without
// waiting for it.
func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	case "darwin":
		cmd = exec.Command("open", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	_ = cmd.Start()
}

func mustLogin() {
	fmt.Println("⚠️  You need to be logged in to Salesforce.")
	fmt.Println("   Please run: leadbot login")
}

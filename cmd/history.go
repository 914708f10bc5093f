package cmd

import (
	"errors"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"leadbot/cli/internal/audit"
	"leadbot/cli/internal/config"
	"leadbot/cli/internal/logging"
)

var (
	historyLimit int
	historyUser  string
)

// historyCmd lists recent executions from the audit log.
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recently executed commands",
	Long: `The history command lists the most recent execution attempts recorded in the
audit database, newest first. Configure the database with 'leadbot connect'.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		secrets, err := config.LoadSecrets()
		if err != nil {
			return err
		}
		dsn, _ := auditDSN(secrets)
		if dsn == "" {
			pterm.Println("⚠️  No audit database configured")
			pterm.Println("   Please run: leadbot connect")
			return nil
		}

		st, err := audit.Open(cmd.Context(), dsn)
		if err != nil {
			return errors.New(logging.PresentError("audit database", err))
		}
		defer st.Close()

		entries, err := st.Recent(cmd.Context(), historyUser, historyLimit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			pterm.Println("No commands have been executed yet.")
			return nil
		}
		return pterm.DefaultTable.WithHasHeader().WithData(historyRows(entries)).Render()
	},
}

func historyRows(entries []audit.Entry) pterm.TableData {
	rows := pterm.TableData{{"When", "User", "Action", "Target", "Result", "Record"}}
	for _, e := range entries {
		result := pterm.Green("ok")
		if !e.Success {
			result = pterm.Red(e.Kind)
		}
		rows = append(rows, []string{
			e.ExecutedAt.Local().Format("2006-01-02 15:04:05"),
			e.UserID,
			e.Action + " " + e.Object,
			strconv.Quote(e.Target),
			result,
			e.RecordID,
		})
	}
	return rows
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of entries to show")
	historyCmd.Flags().StringVar(&historyUser, "user", "", "Only show commands from this chat user")
}

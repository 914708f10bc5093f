// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"strings"

	"github.com/pterm/pterm"

	apperrors "leadbot/cli/internal/errors"
)

// FormatFailure renders a failed command for the terminal: a title, what
// probably happened, what to do next, and the masked technical detail.
func FormatFailure(kind apperrors.Kind, message, detail string) string {
	var b strings.Builder

	b.WriteString(pterm.NewStyle(pterm.FgRed, pterm.Bold).Sprint(failureTitle(kind)))
	b.WriteString("\n\n")
	if message != "" {
		b.WriteString(Mask(message))
		b.WriteString("\n")
	}

	next := "Please try rephrasing your request"
	switch kind {
	case apperrors.OracleUnavailable:
		b.WriteString("The language model could not be reached.\n")
		b.WriteString("  • Check OPENAI_API_KEY or GEMINI_API_KEY\n")
		b.WriteString("  • The provider may be rate limiting or down\n")
		next = "Please try again in a moment"
	case apperrors.MalformedOutput, apperrors.SchemaViolation:
		b.WriteString("The request could not be turned into a CRM command.\n")
		b.WriteString("  • Name the record, e.g. \"update John Doe's lead status to Qualified\"\n")
		b.WriteString("  • Say what to change and the new value\n")
	case apperrors.RecordNotFound:
		b.WriteString("No matching record exists in Salesforce.\n")
		b.WriteString("  • Check the spelling of the name\n")
		b.WriteString("  • The record may have been deleted\n")
	case apperrors.MissingRequiredField:
		b.WriteString("Salesforce needs more information to create this record.\n")
		b.WriteString("  • Include the person's last name\n")
	case apperrors.RemoteRejected:
		b.WriteString("Salesforce refused the change.\n")
		b.WriteString("  • A validation rule or field permission may block it\n")
	case apperrors.Transport:
		b.WriteString("Salesforce could not be reached or the session expired.\n")
		b.WriteString("  • Check your network connection\n")
		b.WriteString("  • Your session may have expired\n")
		next = "Please run 'leadbot login' and try again"
	case apperrors.NotFound, apperrors.AlreadyExecuted:
		next = "Please send the command again"
	default:
		next = "Please try again"
	}

	b.WriteString("\n")
	b.WriteString(pterm.NewStyle(pterm.FgYellow).Sprint("→ " + next))
	b.WriteString("\n")

	if strings.TrimSpace(detail) != "" {
		b.WriteString("\n")
		b.WriteString(pterm.NewStyle(pterm.FgGray).Sprint("Technical details: " + Mask(detail)))
	}
	return b.String()
}

func failureTitle(kind apperrors.Kind) string {
	switch kind {
	case apperrors.OracleUnavailable, apperrors.MalformedOutput, apperrors.SchemaViolation:
		return "Command Not Understood"
	case apperrors.NotFound, apperrors.AlreadyExecuted:
		return "Command Not Available"
	case apperrors.Transport:
		return "Connection Problem"
	}
	return "Command Failed"
}

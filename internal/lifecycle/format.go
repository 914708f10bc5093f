package lifecycle

import (
	"fmt"
	"strings"
	"time"

	"leadbot/cli/internal/engine"
	apperrors "leadbot/cli/internal/errors"
	"leadbot/cli/internal/intent"
)

// Messages use Slack-flavoured markdown: *bold*, `code`, and • bullets.

// Summary describes what an intent will do in one line.
func Summary(in intent.Intent) string {
	switch in.Action {
	case intent.Create:
		return fmt.Sprintf("Create new %s with %d field(s)", in.Object, in.Fields.Len())
	case intent.Update:
		return fmt.Sprintf("Update %s %q, changing %d field(s)", in.Object, in.Target(), in.Fields.Len())
	case intent.Delete:
		return fmt.Sprintf("Delete %s %q", in.Object, in.Target())
	}
	return fmt.Sprintf("Unknown action: %s", in.Action)
}

// ConfirmationMessage asks the user to confirm a staged command.
func ConfirmationMessage(text string, in intent.Intent, commandID string, ttl time.Duration) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🤖 *I understood your command:*\n`%s`\n\n", strings.TrimSpace(text))
	fmt.Fprintf(&b, "• *Tool:* %s\n", in.Tool)
	fmt.Fprintf(&b, "• *Action:* %s\n", in.Action)
	fmt.Fprintf(&b, "• *Object:* %s\n", in.Object)
	fmt.Fprintf(&b, "• *Summary:* %s\n", Summary(in))

	if details := intentDetails(in); details != "" {
		fmt.Fprintf(&b, "\n*Details:*\n%s\n", details)
	}
	fmt.Fprintf(&b, "\nCommand ID: `%s`\n", commandID)
	fmt.Fprintf(&b, "Reply *confirm* to execute or *cancel* to discard. Expires in %s.", humanDuration(ttl))
	return b.String()
}

func intentDetails(in intent.Intent) string {
	switch in.Action {
	case intent.Create:
		return bullets(in.Fields)
	case intent.Delete:
		return bullets(in.Filters)
	case intent.Update:
		return "Filters: " + pairs(in.Filters) + "\nFields: " + pairs(in.Fields)
	}
	return ""
}

func bullets(f intent.Fields) string {
	lines := make([]string, 0, f.Len())
	for _, fl := range f.All() {
		lines = append(lines, fmt.Sprintf("• %s: %s", fl.Name, intent.Format(fl.Value)))
	}
	return strings.Join(lines, "\n")
}

func pairs(f intent.Fields) string {
	parts := make([]string, 0, f.Len())
	for _, fl := range f.All() {
		parts = append(parts, fl.Name+"="+intent.Format(fl.Value))
	}
	return strings.Join(parts, ", ")
}

// OutcomeMessage reports the result of an execution.
func OutcomeMessage(in intent.Intent, out engine.Outcome) string {
	if !out.Success {
		return fmt.Sprintf("❌ *Could not %s %s:* %s", in.Action, in.Object, out.Message)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "✅ *%s*", out.Message)
	d := out.Details
	if d == nil {
		return b.String()
	}
	if d.RecordID != "" {
		fmt.Fprintf(&b, "\n• *Record ID:* `%s`", d.RecordID)
	}
	if d.Status != "" {
		fmt.Fprintf(&b, "\n• *Status:* %s", d.Status)
	}
	for _, c := range d.Changes {
		fmt.Fprintf(&b, "\n• %s: %s → %s", c.Field, display(c.Old), display(c.New))
	}
	if d.Ambiguous {
		b.WriteString("\n⚠️ Several records share this name; the first match was used.")
	}
	return b.String()
}

// ParseFailureMessage explains why text could not be turned into a command.
func ParseFailureMessage(err error) string {
	var b strings.Builder
	switch apperrors.KindOf(err) {
	case apperrors.OracleUnavailable:
		fmt.Fprintf(&b, "❌ *The language model is unavailable:* %s", apperrors.MessageOf(err))
		b.WriteString("\n\nPlease try again in a moment.")
		return b.String()
	case apperrors.MalformedOutput:
		b.WriteString("❌ *Error parsing command:* the language model did not return a command.")
		if raw := apperrors.DetailOf(err); raw != "" {
			fmt.Fprintf(&b, "\n```%s```", raw)
		}
	default:
		fmt.Fprintf(&b, "❌ *Error parsing command:* %s", apperrors.MessageOf(err))
	}
	b.WriteString("\n\nPlease try rephrasing your request.")
	return b.String()
}

func display(v any) string {
	if v == nil {
		return "(empty)"
	}
	return intent.Format(v)
}

func humanDuration(d time.Duration) string {
	if d >= time.Minute && d%time.Minute == 0 {
		m := int(d / time.Minute)
		if m == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", m)
	}
	return d.String()
}

package crm

import (
	"fmt"
	"regexp"
	"strings"
)

var identPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// soqlEscaper escapes the characters SOQL treats specially inside a quoted
// string literal. Quotes are escaped, never stripped, so O'Brien stays O'Brien.
var soqlEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
	"\b", `\b`,
	"\f", `\f`,
)

// EscapeSOQL escapes s for use inside a single-quoted SOQL literal.
func EscapeSOQL(s string) string { return soqlEscaper.Replace(s) }

// ValidIdent reports whether s is a safe object or field API name.
func ValidIdent(s string) bool { return identPattern.MatchString(s) }

// baseColumns are always selected by name lookups.
var baseColumns = []string{"Id", "Name", "Status", "Email"}

// nameQuery builds the lookup query for records of object named name.
// Extra columns are appended once each, compared case-insensitively.
func nameQuery(object, name string, extra []string, limit int) (string, error) {
	if !ValidIdent(object) {
		return "", fmt.Errorf("invalid object name %q", object)
	}
	cols := append([]string(nil), baseColumns...)
	seen := make(map[string]bool, len(cols)+len(extra))
	for _, c := range cols {
		seen[strings.ToLower(c)] = true
	}
	for _, c := range extra {
		if !ValidIdent(c) {
			return "", fmt.Errorf("invalid field name %q", c)
		}
		if seen[strings.ToLower(c)] {
			continue
		}
		seen[strings.ToLower(c)] = true
		cols = append(cols, c)
	}
	return fmt.Sprintf("SELECT %s FROM %s WHERE Name = '%s' LIMIT %d",
		strings.Join(cols, ", "), object, EscapeSOQL(name), limit), nil
}

package engine

import (
	"strings"

	"leadbot/cli/internal/intent"
)

// fieldMap maps canonical intent keys to Salesforce API field names.
// Keys not listed pass through under their display name with spaces and
// hyphens removed, which is what makes them valid API names.
var fieldMap = map[string]string{
	"email":        "Email",
	"emailaddress": "Email",
	"status":       "Status",
	"leadstatus":   "Status",
	"organization": "Company",
	"organisation": "Company",
	"company":      "Company",
	"phone":        "Phone",
	"phonenumber":  "Phone",
	"mobile":       "MobilePhone",
	"title":        "Title",
	"jobtitle":     "Title",
	"description":  "Description",
	"firstname":    "FirstName",
	"lastname":     "LastName",
}

// nameKeys hold a full display name that is split into FirstName/LastName.
var nameKeys = map[string]bool{"name": true, "fullname": true}

// SplitName splits a display name on its first run of whitespace.
// A single token is treated as the family name.
func SplitName(full string) (given, family string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return "", parts[0]
	}
	return parts[0], strings.Join(parts[1:], " ")
}

// values is an insertion-ordered field map.
type values struct {
	order []string
	m     map[string]any
}

func newValues() *values { return &values{m: make(map[string]any)} }

func (v *values) set(k string, val any) {
	if _, ok := v.m[k]; !ok {
		v.order = append(v.order, k)
	}
	v.m[k] = val
}

func (v *values) str(k string) string {
	val, ok := v.m[k]
	if !ok {
		return ""
	}
	return strings.TrimSpace(intent.Format(val))
}

// mapFields converts intent fields into Salesforce field values. A full name
// is split first so that explicit FirstName/LastName entries override it.
func mapFields(fields intent.Fields) *values {
	out := newValues()
	var rest []intent.Field
	for _, f := range fields.All() {
		if !nameKeys[f.Key] {
			rest = append(rest, f)
			continue
		}
		given, family := SplitName(intent.Format(f.Value))
		if given != "" {
			out.set("FirstName", given)
		}
		out.set("LastName", family)
	}
	for _, f := range rest {
		out.set(remoteField(f), f.Value)
	}
	return out
}

func remoteField(f intent.Field) string {
	if name, ok := fieldMap[f.Key]; ok {
		return name
	}
	return apiName.Replace(strings.TrimSpace(f.Name))
}

var apiName = strings.NewReplacer(" ", "", "-", "")

// lookupFold finds k in m ignoring case; Salesforce echoes API names in their
// canonical casing, which may differ from a passed-through display name.
func lookupFold(m map[string]any, k string) any {
	if v, ok := m[k]; ok {
		return v
	}
	for mk, v := range m {
		if strings.EqualFold(mk, k) {
			return v
		}
	}
	return nil
}

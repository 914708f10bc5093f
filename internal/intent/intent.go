// Package intent defines the structured, validated form of a natural-language
// CRM command. An Intent is produced only by Validator and is immutable: its
// filter and field collections expose read-only accessors that return copies.
//
// Keys are canonicalised exactly once, during validation. Downstream packages
// look fields up by canonical key and never normalise casing themselves.
package intent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Action is the CRM mutation an intent requests.
type Action string

const (
	Create Action = "create"
	Update Action = "update"
	Delete Action = "delete"
)

// Field is one key/value pair of an intent's filters or fields. Key is the
// canonical lookup key; Name keeps the spelling the user (or oracle) chose.
type Field struct {
	Key   string
	Name  string
	Value any
}

// Fields is an ordered, read-only collection of Field values.
type Fields struct {
	items []Field
}

// CanonicalKey lowercases s and removes spaces, underscores and hyphens,
// so "Last Name", "last_name" and "LastName" all resolve to "lastname".
func CanonicalKey(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch r {
		case ' ', '_', '-', '\t':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// NewFields builds a collection from display-name/value pairs.
// It fails on duplicate canonical keys.
func NewFields(fields ...Field) (Fields, error) {
	seen := make(map[string]string, len(fields))
	items := make([]Field, 0, len(fields))
	for _, f := range fields {
		key := CanonicalKey(f.Name)
		if prev, ok := seen[key]; ok {
			return Fields{}, fmt.Errorf("duplicate key %q (conflicts with %q)", f.Name, prev)
		}
		seen[key] = f.Name
		items = append(items, Field{Key: key, Name: f.Name, Value: f.Value})
	}
	return Fields{items: items}, nil
}

// Len returns the number of entries.
func (f Fields) Len() int { return len(f.items) }

// Get looks up a value by key. The key is canonicalised before lookup.
func (f Fields) Get(key string) (any, bool) {
	k := CanonicalKey(key)
	for _, it := range f.items {
		if it.Key == k {
			return it.Value, true
		}
	}
	return nil, false
}

// String returns the value under key rendered as a trimmed string.
// Missing keys and null values report false.
func (f Fields) String(key string) (string, bool) {
	v, ok := f.Get(key)
	if !ok || v == nil {
		return "", false
	}
	return strings.TrimSpace(Format(v)), true
}

// First returns the first non-blank string value among keys.
func (f Fields) First(keys ...string) (string, bool) {
	for _, k := range keys {
		if s, ok := f.String(k); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

// All returns a copy of the entries in their original order.
func (f Fields) All() []Field {
	out := make([]Field, len(f.items))
	copy(out, f.items)
	return out
}

// MarshalJSON renders the collection as an object keyed by display name,
// preserving order.
func (f Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, it := range f.items {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(it.Name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(it.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Format renders a scalar intent value for display.
func Format(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// Intent is a validated CRM command.
type Intent struct {
	Tool    string `json:"tool"`
	Action  Action `json:"action"`
	Object  string `json:"object"`
	Filters Fields `json:"filters"`
	Fields  Fields `json:"fields"`
}

// NameKeys are the filter keys that identify a record by display name.
var NameKeys = []string{"name", "fullname", "leadname"}

// LookupName returns the display name used to resolve the target record of
// an update or delete.
func (i Intent) LookupName() (string, bool) {
	return i.Filters.First(NameKeys...)
}

// DisplayName returns the name a create intent assigns to the new record.
func (i Intent) DisplayName() (string, bool) {
	if s, ok := i.Fields.First("name", "fullname"); ok {
		return s, true
	}
	first, _ := i.Fields.First("firstname")
	last, ok := i.Fields.First("lastname")
	if !ok {
		return "", false
	}
	return strings.TrimSpace(first + " " + last), true
}

// Target returns a short human description of the record an intent addresses.
func (i Intent) Target() string {
	if i.Action == Create {
		name, _ := i.DisplayName()
		return name
	}
	name, _ := i.LookupName()
	return name
}

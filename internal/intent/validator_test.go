package intent

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "leadbot/cli/internal/errors"
)

func newTestValidator() *Validator { return NewValidator("salesforce", "Lead") }

func TestValidateAccepts(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		action Action
		target string
	}{
		{
			name:   "create with name",
			raw:    `{"tool":"salesforce","action":"create","object":"Lead","filters":{},"fields":{"Name":"Jane Smith","email":"jane@acme.io"}}`,
			action: Create,
			target: "Jane Smith",
		},
		{
			name:   "create with last name only",
			raw:    `{"tool":"salesforce","action":"create","object":"lead","fields":{"Last Name":"Madonna"}}`,
			action: Create,
			target: "Madonna",
		},
		{
			name:   "update mixed case",
			raw:    `{"tool":"Salesforce","action":"UPDATE","object":"LEAD","filters":{"NAME":"John Doe"},"fields":{"status":"Closed - Converted"}}`,
			action: Update,
			target: "John Doe",
		},
		{
			name:   "delete with null fields",
			raw:    `{"tool":"salesforce","action":"delete","object":"Lead","filters":{"full_name":"Ann Lee"},"fields":null}`,
			action: Delete,
			target: "Ann Lee",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := newTestValidator().Validate([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.action, in.Action)
			assert.Equal(t, "Lead", in.Object)
			assert.Equal(t, "salesforce", in.Tool)
			assert.Equal(t, tt.target, in.Target())
		})
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		kind apperrors.Kind
	}{
		{"not json", `Sure, here is the JSON`, apperrors.MalformedOutput},
		{"array", `[1,2]`, apperrors.MalformedOutput},
		{"trailing garbage", `{"tool":"salesforce"} extra`, apperrors.MalformedOutput},
		{"missing action", `{"tool":"salesforce","object":"Lead","fields":{"name":"A"}}`, apperrors.SchemaViolation},
		{"unknown action", `{"tool":"salesforce","action":"merge","object":"Lead","fields":{"name":"A"}}`, apperrors.SchemaViolation},
		{"wrong tool", `{"tool":"hubspot","action":"create","object":"Lead","fields":{"name":"A"}}`, apperrors.SchemaViolation},
		{"wrong object", `{"tool":"salesforce","action":"create","object":"Contact","fields":{"name":"A"}}`, apperrors.SchemaViolation},
		{"tool not a string", `{"tool":5,"action":"create","object":"Lead","fields":{"name":"A"}}`, apperrors.SchemaViolation},
		{"fields not object", `{"tool":"salesforce","action":"create","object":"Lead","fields":["name"]}`, apperrors.SchemaViolation},
		{"nested value", `{"tool":"salesforce","action":"create","object":"Lead","fields":{"name":{"first":"A"}}}`, apperrors.SchemaViolation},
		{"bad key", `{"tool":"salesforce","action":"create","object":"Lead","fields":{"name":"A","1st":"x"}}`, apperrors.SchemaViolation},
		{"duplicate canonical key", `{"tool":"salesforce","action":"create","object":"Lead","fields":{"Last Name":"A","last_name":"B"}}`, apperrors.SchemaViolation},
		{"hyphen duplicate", `{"tool":"salesforce","action":"create","object":"Lead","fields":{"name":"A","E-mail":"a@b.c","email":"d@e.f"}}`, apperrors.SchemaViolation},
		{"leading hyphen", `{"tool":"salesforce","action":"create","object":"Lead","fields":{"name":"A","-mail":"a@b.c"}}`, apperrors.SchemaViolation},
		{"create without fields", `{"tool":"salesforce","action":"create","object":"Lead","fields":{}}`, apperrors.SchemaViolation},
		{"create without name", `{"tool":"salesforce","action":"create","object":"Lead","fields":{"email":"a@b.c"}}`, apperrors.SchemaViolation},
		{"update without filter", `{"tool":"salesforce","action":"update","object":"Lead","filters":{},"fields":{"status":"New"}}`, apperrors.SchemaViolation},
		{"update filter not name-like", `{"tool":"salesforce","action":"update","object":"Lead","filters":{"email":"a@b.c"},"fields":{"status":"New"}}`, apperrors.SchemaViolation},
		{"update without fields", `{"tool":"salesforce","action":"update","object":"Lead","filters":{"name":"A"},"fields":{}}`, apperrors.SchemaViolation},
		{"delete with blank name", `{"tool":"salesforce","action":"delete","object":"Lead","filters":{"name":"  "}}`, apperrors.SchemaViolation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestValidator().Validate([]byte(tt.raw))
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperrors.KindOf(err), err.Error())
		})
	}
}

func TestFieldsCanonicalLookup(t *testing.T) {
	in, err := newTestValidator().Validate([]byte(
		`{"tool":"salesforce","action":"create","object":"Lead","fields":{"Name":"Jane Smith","Annual Revenue":12000,"Do_Not_Call":true}}`))
	require.NoError(t, err)

	v, ok := in.Fields.Get("annualrevenue")
	require.True(t, ok)
	assert.Equal(t, json.Number("12000"), v)

	s, ok := in.Fields.String("do not call")
	require.True(t, ok)
	assert.Equal(t, "true", s)

	all := in.Fields.All()
	require.Len(t, all, 3)
	assert.Equal(t, "Annual Revenue", all[1].Name)
	assert.Equal(t, "annualrevenue", all[1].Key)

	// Mutating the copy leaves the intent untouched.
	all[0].Value = "Someone Else"
	name, _ := in.DisplayName()
	assert.Equal(t, "Jane Smith", name)
}

func TestValidateAcceptsHyphenatedKeys(t *testing.T) {
	in, err := newTestValidator().Validate([]byte(
		`{"tool":"salesforce","action":"create","object":"Lead","fields":{"Full-Name":"Jane Smith","E-mail":"x","Job-Title":"CTO"}}`))
	require.NoError(t, err)

	email, ok := in.Fields.String("email")
	require.True(t, ok)
	assert.Equal(t, "x", email)
	assert.Equal(t, "Jane Smith", in.Target())

	all := in.Fields.All()
	require.Len(t, all, 3)
	assert.Equal(t, "E-mail", all[1].Name)
	assert.Equal(t, "jobtitle", all[2].Key)
}

func TestIntentMarshalPreservesDisplayOrder(t *testing.T) {
	in, err := newTestValidator().Validate([]byte(
		`{"tool":"salesforce","action":"update","object":"Lead","filters":{"Name":"John Doe"},"fields":{"Status":"Working","Phone":"555"}}`))
	require.NoError(t, err)

	b, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"tool":"salesforce","action":"update","object":"Lead","filters":{"Name":"John Doe"},"fields":{"Status":"Working","Phone":"555"}}`,
		string(b))
	assert.Contains(t, string(b), `"fields":{"Status":"Working","Phone":"555"}`)
}

func TestCanonicalKey(t *testing.T) {
	for in, want := range map[string]string{
		"Last Name":  "lastname",
		"last_name":  "lastname",
		"LastName":   "lastname",
		" e-mail ":   "email",
		"Company__c": "companyc",
	} {
		assert.Equal(t, want, CanonicalKey(in), in)
	}
}

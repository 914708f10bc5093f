package engine

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadbot/cli/internal/crm"
	apperrors "leadbot/cli/internal/errors"
	"leadbot/cli/internal/intent"
)

type call struct {
	op     string
	object string
	id     string
	name   string
	fields []string
	values map[string]any
}

type fakeRecords struct {
	mu      sync.Mutex
	calls   []call
	found   []crm.Record
	findErr error
	err     error
}

func (f *fakeRecords) record(c call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeRecords) FindByName(_ context.Context, object, name string, fields ...string) ([]crm.Record, error) {
	f.record(call{op: "find", object: object, name: name, fields: fields})
	return f.found, f.findErr
}

func (f *fakeRecords) Create(_ context.Context, object string, values map[string]any) (string, error) {
	f.record(call{op: "create", object: object, values: values})
	if f.err != nil {
		return "", f.err
	}
	return "00QNEW", nil
}

func (f *fakeRecords) Update(_ context.Context, object, id string, values map[string]any) error {
	f.record(call{op: "update", object: object, id: id, values: values})
	return f.err
}

func (f *fakeRecords) Delete(_ context.Context, object, id string) error {
	f.record(call{op: "delete", object: object, id: id})
	return f.err
}

func (f *fakeRecords) writes() int {
	n := 0
	for _, c := range f.calls {
		if c.op != "find" {
			n++
		}
	}
	return n
}

func mustIntent(t *testing.T, raw string) intent.Intent {
	t.Helper()
	in, err := intent.NewValidator("salesforce", "Lead").Validate([]byte(raw))
	require.NoError(t, err)
	return in
}

func TestSplitName(t *testing.T) {
	tests := []struct{ in, given, family string }{
		{"Jane Smith", "Jane", "Smith"},
		{"Madonna", "", "Madonna"},
		{"  Mary   Ann Lee ", "Mary", "Ann Lee"},
		{"", "", ""},
	}
	for _, tt := range tests {
		given, family := SplitName(tt.in)
		assert.Equal(t, tt.given, given, tt.in)
		assert.Equal(t, tt.family, family, tt.in)
	}
}

func TestCreateMapsFieldsAndDefaultsCompany(t *testing.T) {
	recs := &fakeRecords{}
	e := New(recs, 0, nil)

	out := e.Execute(context.Background(), mustIntent(t,
		`{"tool":"salesforce","action":"create","object":"Lead","fields":{"Name":"Jane Smith","Email":"jane@acme.io","Lead Status":"Open","Phone Number":"555","Lead Source":"Web","Annual Revenue":5000}}`))

	require.True(t, out.Success, out.Message)
	require.Len(t, recs.calls, 1)
	assert.Equal(t, map[string]any{
		"FirstName":     "Jane",
		"LastName":      "Smith",
		"Email":         "jane@acme.io",
		"Status":        "Open",
		"Phone":         "555",
		"LeadSource":    "Web",
		"AnnualRevenue": json.Number("5000"),
		"Company":       "Smith",
	}, recs.calls[0].values)
	assert.Equal(t, "00QNEW", out.Details.RecordID)
	assert.Equal(t, "Jane Smith", out.Details.Name)
	assert.Equal(t, "Open", out.Details.Status)
}

func TestCreateSingleNameAndOrganization(t *testing.T) {
	recs := &fakeRecords{}
	out := New(recs, 0, nil).Execute(context.Background(), mustIntent(t,
		`{"tool":"salesforce","action":"create","object":"Lead","fields":{"name":"Madonna","organization":"Live Nation"}}`))

	require.True(t, out.Success)
	vals := recs.calls[0].values
	assert.Equal(t, "Madonna", vals["LastName"])
	assert.NotContains(t, vals, "FirstName")
	assert.Equal(t, "Live Nation", vals["Company"])
}

func TestCreateExplicitNamePartsWin(t *testing.T) {
	recs := &fakeRecords{}
	out := New(recs, 0, nil).Execute(context.Background(), mustIntent(t,
		`{"tool":"salesforce","action":"create","object":"Lead","fields":{"FirstName":"Jane","LastName":"Smith","Company":"Smith Corp"}}`))

	require.True(t, out.Success)
	vals := recs.calls[0].values
	assert.Equal(t, "Jane", vals["FirstName"])
	assert.Equal(t, "Smith Corp", vals["Company"])
	assert.Equal(t, "Jane Smith", out.Details.Name)
}

func TestCreateHyphenatedKeys(t *testing.T) {
	recs := &fakeRecords{}
	out := New(recs, 0, nil).Execute(context.Background(), mustIntent(t,
		`{"tool":"salesforce","action":"create","object":"Lead","fields":{"Name":"Jane Smith","E-mail":"x","Job-Title":"CTO","Lead-Source":"Web"}}`))

	require.True(t, out.Success, out.Message)
	vals := recs.calls[0].values
	assert.Equal(t, "x", vals["Email"])
	assert.Equal(t, "CTO", vals["Title"])
	assert.Equal(t, "Web", vals["LeadSource"])
	for k := range vals {
		assert.True(t, crm.ValidIdent(k), k)
	}
}

func TestCreateReportsNameSent(t *testing.T) {
	recs := &fakeRecords{}
	out := New(recs, 0, nil).Execute(context.Background(), mustIntent(t,
		`{"tool":"salesforce","action":"create","object":"Lead","fields":{"Name":"Jane Smith","First Name":"Janet"}}`))

	require.True(t, out.Success, out.Message)
	assert.Equal(t, "Janet", recs.calls[0].values["FirstName"])
	assert.Equal(t, "Janet Smith", out.Details.Name)
	assert.Equal(t, "Created Lead Janet Smith", out.Message)
}

func TestCreateWithoutFamilyName(t *testing.T) {
	recs := &fakeRecords{}
	out := New(recs, 0, nil).Execute(context.Background(), mustIntent(t,
		`{"tool":"salesforce","action":"create","object":"Lead","fields":{"Name":"Jane Smith","LastName":null}}`))

	assert.False(t, out.Success)
	assert.Equal(t, apperrors.MissingRequiredField, out.Kind)
	assert.Zero(t, recs.writes())
}

func TestUpdateRecordsChanges(t *testing.T) {
	recs := &fakeRecords{found: []crm.Record{{
		ID: "00Q1", Name: "John Doe", Status: "Open",
		Fields: map[string]any{"Id": "00Q1", "Name": "John Doe", "Status": "Open", "Email": "old@acme.io"},
	}}}
	out := New(recs, 0, nil).Execute(context.Background(), mustIntent(t,
		`{"tool":"salesforce","action":"update","object":"Lead","filters":{"Name":"John Doe"},"fields":{"status":"Qualified","email":"new@acme.io"}}`))

	require.True(t, out.Success, out.Message)
	require.Len(t, recs.calls, 2)
	assert.Equal(t, []string{"Status", "Email"}, recs.calls[0].fields)
	assert.Equal(t, "00Q1", recs.calls[1].id)
	assert.Equal(t, map[string]any{"Status": "Qualified", "Email": "new@acme.io"}, recs.calls[1].values)
	assert.Equal(t, []Change{
		{Field: "Status", Old: "Open", New: "Qualified"},
		{Field: "Email", Old: "old@acme.io", New: "new@acme.io"},
	}, out.Details.Changes)
	assert.Equal(t, "Qualified", out.Details.Status)
	assert.False(t, out.Details.Ambiguous)
}

func TestUpdateNoMatchIssuesNoWrite(t *testing.T) {
	recs := &fakeRecords{}
	out := New(recs, 0, nil).Execute(context.Background(), mustIntent(t,
		`{"tool":"salesforce","action":"update","object":"Lead","filters":{"Name":"Nobody"},"fields":{"Status":"Closed"}}`))

	assert.False(t, out.Success)
	assert.Equal(t, apperrors.RecordNotFound, out.Kind)
	assert.Contains(t, out.Message, `"Nobody"`)
	assert.Zero(t, recs.writes())
}

func TestDeleteAmbiguousUsesFirst(t *testing.T) {
	recs := &fakeRecords{found: []crm.Record{
		{ID: "00QA", Name: "Mike Johnson"},
		{ID: "00QB", Name: "Mike Johnson"},
	}}
	out := New(recs, 0, nil).Execute(context.Background(), mustIntent(t,
		`{"tool":"salesforce","action":"delete","object":"Lead","filters":{"Name":"Mike Johnson"}}`))

	require.True(t, out.Success)
	assert.Equal(t, "00QA", recs.calls[1].id)
	assert.True(t, out.Details.Ambiguous)
}

func TestRemoteFailuresBecomeOutcomes(t *testing.T) {
	tests := []struct {
		name string
		recs *fakeRecords
		kind apperrors.Kind
	}{
		{"lookup transport", &fakeRecords{findErr: apperrors.New(apperrors.Transport, "cannot reach Salesforce")}, apperrors.Transport},
		{"write rejected", &fakeRecords{
			found: []crm.Record{{ID: "00Q1", Name: "John Doe"}},
			err:   apperrors.New(apperrors.RemoteRejected, "entity is deleted"),
		}, apperrors.RemoteRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := New(tt.recs, 0, nil).Execute(context.Background(), mustIntent(t,
				`{"tool":"salesforce","action":"delete","object":"Lead","filters":{"Name":"John Doe"}}`))
			assert.False(t, out.Success)
			assert.Equal(t, tt.kind, out.Kind)
			assert.NotEmpty(t, out.Message)
		})
	}
}

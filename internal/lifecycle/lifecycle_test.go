package lifecycle

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadbot/cli/internal/audit"
	"leadbot/cli/internal/engine"
	apperrors "leadbot/cli/internal/errors"
	"leadbot/cli/internal/intent"
	"leadbot/cli/internal/store"
)

type stubParser struct {
	raw string
	err error
}

func (p stubParser) Parse(_ context.Context, text string) (intent.Intent, error) {
	if p.err != nil {
		return intent.Intent{}, p.err
	}
	return intent.NewValidator("salesforce", "Lead").Validate([]byte(p.raw))
}

type countingExecutor struct {
	calls   atomic.Int32
	outcome engine.Outcome
	panics  bool
}

func (e *countingExecutor) Execute(_ context.Context, in intent.Intent) engine.Outcome {
	e.calls.Add(1)
	if e.panics {
		panic("nil map write")
	}
	return e.outcome
}

type memRecorder struct {
	mu      sync.Mutex
	entries []audit.Entry
	err     error
}

func (r *memRecorder) Record(_ context.Context, e audit.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return r.err
}

const updateRaw = `{"tool":"salesforce","action":"update","object":"Lead","filters":{"Name":"John Doe"},"fields":{"Status":"Qualified"}}`

func okOutcome() engine.Outcome {
	return engine.Outcome{
		Success: true,
		Message: "Updated Lead John Doe",
		Details: &engine.Details{
			RecordID: "00Q1",
			Name:     "John Doe",
			Status:   "Qualified",
			Changes:  []engine.Change{{Field: "Status", Old: "Open", New: "Qualified"}},
		},
	}
}

func newService(p Parser, e Executor, rec audit.Recorder, opts store.Options) (*Service, *store.Store) {
	st := store.New(opts)
	return New(Config{Parser: p, Store: st, Executor: e, Recorder: rec}), st
}

func TestFullFlow(t *testing.T) {
	exec := &countingExecutor{outcome: okOutcome()}
	rec := &memRecorder{}
	svc, _ := newService(stubParser{raw: updateRaw}, exec, rec, store.Options{})
	ctx := context.Background()

	staged := svc.HandleText(ctx, "U1", "update John Doe's lead status to Qualified")
	require.Equal(t, Staged, staged.State, staged.Message)
	require.NotEmpty(t, staged.CommandID)
	assert.Contains(t, staged.Message, "update John Doe's lead status to Qualified")
	assert.Contains(t, staged.Message, "Filters: Name=John Doe")
	assert.Contains(t, staged.Message, staged.CommandID)
	assert.Contains(t, staged.Message, "5 minutes")

	done := svc.Confirm(ctx, "U1", staged.CommandID)
	require.Equal(t, Executed, done.State, done.Message)
	assert.Contains(t, done.Message, "Updated Lead John Doe")
	assert.Contains(t, done.Message, "Status: Open → Qualified")
	assert.Equal(t, int32(1), exec.calls.Load())

	require.Len(t, rec.entries, 1)
	assert.Equal(t, "U1", rec.entries[0].UserID)
	assert.Equal(t, "00Q1", rec.entries[0].RecordID)
	assert.True(t, rec.entries[0].Success)
	assert.JSONEq(t, updateRaw, string(rec.entries[0].Intent))
}

func TestSecondConfirmIsAlreadyExecuted(t *testing.T) {
	exec := &countingExecutor{outcome: okOutcome()}
	svc, _ := newService(stubParser{raw: updateRaw}, exec, nil, store.Options{})
	ctx := context.Background()

	staged := svc.HandleText(ctx, "U1", "update John Doe")
	require.Equal(t, Executed, svc.Confirm(ctx, "U1", staged.CommandID).State)

	again := svc.Confirm(ctx, "U1", staged.CommandID)
	assert.Equal(t, Failed, again.State)
	assert.Equal(t, apperrors.AlreadyExecuted, again.Kind)
	assert.Equal(t, int32(1), exec.calls.Load(), "no additional remote write")
}

func TestConcurrentConfirmExecutesOnce(t *testing.T) {
	exec := &countingExecutor{outcome: okOutcome()}
	svc, _ := newService(stubParser{raw: updateRaw}, exec, nil, store.Options{})
	ctx := context.Background()
	staged := svc.HandleText(ctx, "U1", "update John Doe")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.Confirm(ctx, "U1", staged.CommandID)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), exec.calls.Load())
}

func TestFailedExecutionCanBeRetried(t *testing.T) {
	exec := &countingExecutor{outcome: engine.Outcome{Kind: apperrors.RecordNotFound, Message: `no Lead named "John Doe" was found`}}
	rec := &memRecorder{err: stderrors.New("audit db down")}
	svc, _ := newService(stubParser{raw: updateRaw}, exec, rec, store.Options{})
	ctx := context.Background()
	staged := svc.HandleText(ctx, "U1", "update John Doe")

	first := svc.Confirm(ctx, "U1", staged.CommandID)
	assert.Equal(t, Failed, first.State)
	assert.Equal(t, apperrors.RecordNotFound, first.Kind)
	assert.Contains(t, first.Message, "Could not update Lead")

	exec.outcome = okOutcome()
	second := svc.Confirm(ctx, "U1", staged.CommandID)
	assert.Equal(t, Executed, second.State)
	assert.Len(t, rec.entries, 2, "audit failures do not block execution")
}

func TestParseFailureSurfacesRawOutput(t *testing.T) {
	perr := apperrors.New(apperrors.MalformedOutput, "intent is not a JSON object").WithDetail("I think you mean John?")
	svc, st := newService(stubParser{err: perr}, &countingExecutor{}, nil, store.Options{})

	r := svc.HandleText(context.Background(), "U1", "do the thing")
	assert.Equal(t, Failed, r.State)
	assert.Equal(t, apperrors.MalformedOutput, r.Kind)
	assert.Equal(t, "I think you mean John?", r.Detail)
	assert.Contains(t, r.Message, "I think you mean John?")
	assert.Contains(t, r.Message, "rephrasing")
	assert.Zero(t, st.Len())
}

func TestConfirmUnknownAndExpired(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	exec := &countingExecutor{outcome: okOutcome()}
	svc, _ := newService(stubParser{raw: updateRaw}, exec, nil, store.Options{TTL: time.Minute, Now: clock})
	ctx := context.Background()

	unknown := svc.Confirm(ctx, "U1", "does-not-exist")
	assert.Equal(t, Failed, unknown.State)
	assert.Equal(t, apperrors.NotFound, unknown.Kind)

	staged := svc.HandleText(ctx, "U1", "update John Doe")
	otherUser := svc.Confirm(ctx, "U2", staged.CommandID)
	assert.Equal(t, apperrors.NotFound, otherUser.Kind)

	now = now.Add(2 * time.Minute)
	expired := svc.Confirm(ctx, "U1", staged.CommandID)
	assert.Equal(t, Expired, expired.State)
	assert.Equal(t, apperrors.NotFound, expired.Kind)
	assert.Zero(t, exec.calls.Load())
}

func TestCancel(t *testing.T) {
	exec := &countingExecutor{outcome: okOutcome()}
	svc, st := newService(stubParser{raw: updateRaw}, exec, nil, store.Options{})
	ctx := context.Background()
	staged := svc.HandleText(ctx, "U1", "update John Doe")

	cancelled := svc.Cancel(ctx, "U1", staged.CommandID)
	assert.Equal(t, Cancelled, cancelled.State)
	assert.Zero(t, st.Len())

	after := svc.Confirm(ctx, "U1", staged.CommandID)
	assert.Equal(t, apperrors.NotFound, after.Kind)
	assert.Zero(t, exec.calls.Load())

	again := svc.Cancel(ctx, "U1", staged.CommandID)
	assert.Equal(t, Failed, again.State)
}

func TestPanicBecomesFailedReply(t *testing.T) {
	exec := &countingExecutor{panics: true}
	svc, _ := newService(stubParser{raw: updateRaw}, exec, nil, store.Options{})
	ctx := context.Background()
	staged := svc.HandleText(ctx, "U1", "update John Doe")

	r := svc.Confirm(ctx, "U1", staged.CommandID)
	assert.Equal(t, Failed, r.State)
	assert.Equal(t, apperrors.Internal, r.Kind)
	assert.Contains(t, r.Detail, "nil map write")

	// The claim was released, so the command is still confirmable.
	exec.panics = false
	exec.outcome = okOutcome()
	assert.Equal(t, Executed, svc.Confirm(ctx, "U1", staged.CommandID).State)
}

func TestSummary(t *testing.T) {
	v := intent.NewValidator("salesforce", "Lead")
	create, err := v.Validate([]byte(`{"tool":"salesforce","action":"create","object":"Lead","fields":{"Name":"Jane Smith","Email":"j@x.io"}}`))
	require.NoError(t, err)
	del, err := v.Validate([]byte(`{"tool":"salesforce","action":"delete","object":"Lead","filters":{"Name":"Mike Johnson"}}`))
	require.NoError(t, err)

	assert.Equal(t, "Create new Lead with 2 field(s)", Summary(create))
	assert.Equal(t, `Delete Lead "Mike Johnson"`, Summary(del))
	assert.Contains(t, ConfirmationMessage("x", create, "id", 90*time.Second), "Expires in 1m30s.")
}

// Package engine executes confirmed intents against the CRM. It owns field
// mapping, name-based record resolution and outcome reporting; it never
// retries and never panics on remote failures.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"leadbot/cli/internal/crm"
	apperrors "leadbot/cli/internal/errors"
	"leadbot/cli/internal/intent"
)

// Records is the subset of the CRM client the engine needs.
type Records interface {
	FindByName(ctx context.Context, object, name string, fields ...string) ([]crm.Record, error)
	Create(ctx context.Context, object string, values map[string]any) (string, error)
	Update(ctx context.Context, object, id string, values map[string]any) error
	Delete(ctx context.Context, object, id string) error
}

// Outcome is the result of executing one intent.
type Outcome struct {
	Success bool           `json:"success"`
	Kind    apperrors.Kind `json:"kind,omitempty"`
	Message string         `json:"message"`
	Details *Details       `json:"details,omitempty"`
}

// Details describes the affected record.
type Details struct {
	RecordID  string         `json:"record_id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Status    string         `json:"status,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
	Changes   []Change       `json:"changes,omitempty"`
	Ambiguous bool           `json:"ambiguous,omitempty"`
}

// Change is one field modified by an update.
type Change struct {
	Field string `json:"field"`
	Old   any    `json:"old"`
	New   any    `json:"new"`
}

// DefaultTimeout bounds all remote calls of one execution.
const DefaultTimeout = 15 * time.Second

// Engine executes intents.
type Engine struct {
	records Records
	timeout time.Duration
	log     *zap.Logger
}

// New creates an Engine over records. A nil logger disables logging.
func New(records Records, timeout time.Duration, log *zap.Logger) *Engine {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{records: records, timeout: timeout, log: log}
}

// Execute performs in and reports what happened. Failures are returned as
// unsuccessful outcomes carrying an error kind, never as panics.
func (e *Engine) Execute(ctx context.Context, in intent.Intent) Outcome {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var (
		out Outcome
		err error
	)
	switch in.Action {
	case intent.Create:
		out, err = e.create(ctx, in)
	case intent.Update:
		out, err = e.update(ctx, in)
	case intent.Delete:
		out, err = e.delete(ctx, in)
	default:
		err = apperrors.New(apperrors.SchemaViolation, fmt.Sprintf("unsupported action %q", in.Action))
	}
	if err != nil {
		return Failure(err)
	}
	return out
}

// Failure converts err into an unsuccessful outcome.
func Failure(err error) Outcome {
	return Outcome{
		Success: false,
		Kind:    apperrors.KindOf(err),
		Message: apperrors.MessageOf(err),
	}
}

func (e *Engine) create(ctx context.Context, in intent.Intent) (Outcome, error) {
	vals := mapFields(in.Fields)
	family := vals.str("LastName")
	if family == "" {
		return Outcome{}, apperrors.New(apperrors.MissingRequiredField, "a last name is required to create a lead")
	}
	if vals.str("Company") == "" {
		vals.set("Company", family)
	}

	id, err := e.records.Create(ctx, in.Object, vals.m)
	if err != nil {
		return Outcome{}, err
	}
	name := strings.TrimSpace(vals.str("FirstName") + " " + family)
	e.log.Info("record created", zap.String("object", in.Object), zap.String("id", id))
	return Outcome{
		Success: true,
		Message: fmt.Sprintf("Created %s %s", in.Object, name),
		Details: &Details{
			RecordID: id,
			Name:     name,
			Status:   vals.str("Status"),
			Fields:   vals.m,
		},
	}, nil
}

func (e *Engine) update(ctx context.Context, in intent.Intent) (Outcome, error) {
	vals := mapFields(in.Fields)
	rec, ambiguous, err := e.resolve(ctx, in, vals.order)
	if err != nil {
		return Outcome{}, err
	}
	if err := e.records.Update(ctx, in.Object, rec.ID, vals.m); err != nil {
		return Outcome{}, err
	}

	changes := make([]Change, 0, len(vals.order))
	for _, k := range vals.order {
		changes = append(changes, Change{Field: k, Old: lookupFold(rec.Fields, k), New: vals.m[k]})
	}
	status := rec.Status
	if s := vals.str("Status"); s != "" {
		status = s
	}
	e.log.Info("record updated", zap.String("object", in.Object), zap.String("id", rec.ID), zap.Int("fields", len(changes)))
	return Outcome{
		Success: true,
		Message: fmt.Sprintf("Updated %s %s", in.Object, rec.Name),
		Details: &Details{
			RecordID:  rec.ID,
			Name:      rec.Name,
			Status:    status,
			Changes:   changes,
			Ambiguous: ambiguous,
		},
	}, nil
}

func (e *Engine) delete(ctx context.Context, in intent.Intent) (Outcome, error) {
	rec, ambiguous, err := e.resolve(ctx, in, nil)
	if err != nil {
		return Outcome{}, err
	}
	if err := e.records.Delete(ctx, in.Object, rec.ID); err != nil {
		return Outcome{}, err
	}
	e.log.Info("record deleted", zap.String("object", in.Object), zap.String("id", rec.ID))
	return Outcome{
		Success: true,
		Message: fmt.Sprintf("Deleted %s %s", in.Object, rec.Name),
		Details: &Details{
			RecordID:  rec.ID,
			Name:      rec.Name,
			Status:    rec.Status,
			Ambiguous: ambiguous,
		},
	}, nil
}

// resolve finds the record an update or delete targets. When the name
// matches several records the first returned one is used and the outcome is
// flagged ambiguous.
func (e *Engine) resolve(ctx context.Context, in intent.Intent, fields []string) (crm.Record, bool, error) {
	name, ok := in.LookupName()
	if !ok {
		return crm.Record{}, false, apperrors.New(apperrors.SchemaViolation, "no name filter to look up")
	}
	recs, err := e.records.FindByName(ctx, in.Object, name, fields...)
	if err != nil {
		return crm.Record{}, false, err
	}
	if len(recs) == 0 {
		return crm.Record{}, false, apperrors.New(apperrors.RecordNotFound, fmt.Sprintf("no %s named %q was found", in.Object, name))
	}
	if len(recs) > 1 {
		e.log.Warn("name matches several records; using the first",
			zap.String("object", in.Object),
			zap.String("name", name),
			zap.String("id", recs[0].ID))
	}
	return recs[0], len(recs) > 1, nil
}

// Package errors defines typed errors with categories for user-friendly reporting.
// Every failure that crosses a component boundary carries a machine-readable Kind
// so the lifecycle layer can map it to a chat reply without string matching.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind is a machine-readable error category.
type Kind string

const (
	// MalformedOutput indicates the oracle returned text that is not a JSON object.
	MalformedOutput Kind = "malformed_output"
	// OracleUnavailable indicates the oracle could not be reached or timed out.
	OracleUnavailable Kind = "oracle_unavailable"
	// SchemaViolation indicates well-formed JSON that is not a valid intent.
	SchemaViolation Kind = "schema_violation"

	// NotFound indicates a staged command is unknown or has expired.
	NotFound Kind = "not_found"
	// AlreadyExecuted indicates a duplicate confirmation.
	AlreadyExecuted Kind = "already_executed"

	RecordNotFound       Kind = "record_not_found"
	MissingRequiredField Kind = "missing_required_field"
	// RemoteRejected indicates the CRM answered with a non-success status.
	RemoteRejected Kind = "remote_rejected"
	// Transport covers network failures, timeouts and expired credentials.
	Transport Kind = "transport"

	// Internal is the catch-all for unclassified failures.
	Internal Kind = "internal"
)

// E wraps an error with kind and human-friendly message.
// Detail carries optional diagnostic text, such as raw oracle output.
type E struct {
	Kind    Kind
	Message string
	Detail  string
	Err     error
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *E) Unwrap() error { return e.Err }

func Wrap(kind Kind, msg string, err error) *E { return &E{Kind: kind, Message: msg, Err: err} }
func New(kind Kind, msg string) *E             { return &E{Kind: kind, Message: msg} }

// WithDetail returns a copy of e carrying the given diagnostic detail.
func (e *E) WithDetail(detail string) *E {
	c := *e
	c.Detail = detail
	return &c
}

// KindOf returns the Kind of the first *E in err's chain, or Internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *E
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// MessageOf returns the human-friendly message of the first *E in err's chain,
// falling back to err.Error().
func MessageOf(err error) string {
	var e *E
	if stderrors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// DetailOf returns the diagnostic detail attached anywhere in err's chain.
func DetailOf(err error) string {
	var e *E
	for err != nil {
		if !stderrors.As(err, &e) {
			return ""
		}
		if e.Detail != "" {
			return e.Detail
		}
		err = e.Err
	}
	return ""
}

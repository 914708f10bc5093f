// Package lifecycle drives a chat command from free text to an executed CRM
// change: parse, stage, wait for confirmation, execute, report.
//
// Every entry point converts failures (including panics) into a Reply, so a
// misbehaving request can never take down the process or affect another
// request.
package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"leadbot/cli/internal/audit"
	"leadbot/cli/internal/engine"
	apperrors "leadbot/cli/internal/errors"
	"leadbot/cli/internal/intent"
	"leadbot/cli/internal/metrics"
	"leadbot/cli/internal/store"
)

// State is the position of a command in its lifecycle.
type State string

const (
	Received  State = "received"
	Parsed    State = "parsed"
	Staged    State = "staged"
	Confirmed State = "confirmed"
	Cancelled State = "cancelled"
	Expired   State = "expired"
	Executed  State = "executed"
	Failed    State = "failed"
)

// Reply is what the chat surface shows the user after an event.
type Reply struct {
	State     State           `json:"state"`
	CommandID string          `json:"command_id,omitempty"`
	Intent    *intent.Intent  `json:"intent,omitempty"`
	Outcome   *engine.Outcome `json:"outcome,omitempty"`
	Kind      apperrors.Kind  `json:"kind,omitempty"`
	Message   string          `json:"message"`
	// Detail carries diagnostics, such as raw language model output.
	Detail string `json:"detail,omitempty"`
}

// Parser turns text into an intent.
type Parser interface {
	Parse(ctx context.Context, text string) (intent.Intent, error)
}

// Executor runs a confirmed intent.
type Executor interface {
	Execute(ctx context.Context, in intent.Intent) engine.Outcome
}

// Config wires a Service. Recorder and Logger are optional.
type Config struct {
	Parser   Parser
	Store    *store.Store
	Executor Executor
	Recorder audit.Recorder
	Logger   *zap.Logger
}

// Service is the lifecycle orchestrator. It is safe for concurrent use.
type Service struct {
	parser   Parser
	store    *store.Store
	exec     Executor
	recorder audit.Recorder
	log      *zap.Logger
}

// New creates a Service.
func New(cfg Config) *Service {
	if cfg.Recorder == nil {
		cfg.Recorder = audit.Nop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Service{
		parser:   cfg.Parser,
		store:    cfg.Store,
		exec:     cfg.Executor,
		recorder: cfg.Recorder,
		log:      cfg.Logger,
	}
}

// HandleText parses text and stages the resulting intent for userID.
func (s *Service) HandleText(ctx context.Context, userID, text string) (reply Reply) {
	defer s.recoverInto(&reply, "command", userID)

	log := s.log.With(zap.String("user", userID))
	log.Debug("command received", zap.String("state", string(Received)))

	in, err := s.parser.Parse(ctx, text)
	if err != nil {
		metrics.ObserveParse(string(apperrors.KindOf(err)))
		log.Info("command rejected", zap.String("kind", string(apperrors.KindOf(err))), zap.Error(err))
		r := failure(err)
		r.Message = ParseFailureMessage(err)
		return r
	}
	metrics.ObserveParse("ok")
	log.Debug("command parsed", zap.String("state", string(Parsed)), zap.String("action", string(in.Action)), zap.String("target", in.Target()))

	id, err := s.store.Stage(userID, in)
	if err != nil {
		log.Error("staging failed", zap.Error(err))
		return failure(err)
	}
	log.Info("command staged", zap.String("command_id", id), zap.String("action", string(in.Action)))
	return Reply{
		State:     Staged,
		CommandID: id,
		Intent:    &in,
		Message:   ConfirmationMessage(text, in, id, s.store.TTL()),
	}
}

// Confirm executes a staged command. A command runs at most once; a failed
// execution leaves it confirmable again until it expires.
func (s *Service) Confirm(ctx context.Context, userID, commandID string) (reply Reply) {
	defer s.recoverInto(&reply, "confirm", userID)

	log := s.log.With(zap.String("user", userID), zap.String("command_id", commandID))

	in, err := s.store.Claim(userID, commandID)
	if err != nil {
		r := s.rejected(err)
		metrics.ObserveConfirmation(confirmResult(r))
		log.Info("confirmation rejected", zap.String("state", string(r.State)), zap.Error(err))
		return r
	}

	finished := false
	defer func() {
		if !finished {
			s.store.Release(userID, commandID)
		}
	}()

	log.Info("command claimed", zap.String("state", string(Confirmed)), zap.String("action", string(in.Action)), zap.String("target", in.Target()))
	out := s.exec.Execute(ctx, in)
	finished = true

	state := Executed
	if out.Success {
		s.store.MarkExecuted(userID, commandID)
	} else {
		s.store.Release(userID, commandID)
		state = Failed
	}

	result := "ok"
	if !out.Success {
		result = string(out.Kind)
	}
	metrics.ObserveExecution(string(in.Action), result)
	metrics.ObserveConfirmation(string(state))
	log.Info("command finished", zap.String("state", string(state)), zap.String("kind", string(out.Kind)))

	s.record(ctx, userID, commandID, in, out)

	return Reply{
		State:     state,
		CommandID: commandID,
		Intent:    &in,
		Outcome:   &out,
		Kind:      out.Kind,
		Message:   OutcomeMessage(in, out),
	}
}

// Cancel discards a staged command without executing it.
func (s *Service) Cancel(ctx context.Context, userID, commandID string) (reply Reply) {
	defer s.recoverInto(&reply, "cancel", userID)

	if err := s.store.Discard(userID, commandID); err != nil {
		r := s.rejected(err)
		metrics.ObserveConfirmation(confirmResult(r))
		return r
	}
	metrics.ObserveConfirmation(string(Cancelled))
	s.log.Info("command cancelled", zap.String("user", userID), zap.String("command_id", commandID))
	return Reply{
		State:     Cancelled,
		CommandID: commandID,
		Message:   "🚫 Command cancelled. Nothing was changed.",
	}
}

// rejected maps a store error to a reply.
func (s *Service) rejected(err error) Reply {
	if store.IsExpired(err) {
		return Reply{
			State:   Expired,
			Kind:    apperrors.NotFound,
			Message: "⏰ This command has expired. Please send it again.",
		}
	}
	r := failure(err)
	switch apperrors.KindOf(err) {
	case apperrors.NotFound:
		r.Message = "❓ I couldn't find that command. It may have expired or belong to someone else."
	case apperrors.AlreadyExecuted:
		r.Message = "⚠️ " + apperrors.MessageOf(err) + "."
	}
	return r
}

func (s *Service) record(ctx context.Context, userID, commandID string, in intent.Intent, out engine.Outcome) {
	raw, err := json.Marshal(in)
	if err != nil {
		raw = nil
	}
	e := audit.Entry{
		UserID:     userID,
		CommandID:  commandID,
		Action:     string(in.Action),
		Object:     in.Object,
		Target:     in.Target(),
		Success:    out.Success,
		Kind:       string(out.Kind),
		Message:    out.Message,
		Intent:     raw,
		ExecutedAt: time.Now().UTC(),
	}
	if out.Details != nil {
		e.RecordID = out.Details.RecordID
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.recorder.Record(ctx, e); err != nil {
		s.log.Warn("failed to write audit entry", zap.String("command_id", commandID), zap.Error(err))
	}
}

func (s *Service) recoverInto(reply *Reply, op, userID string) {
	r := recover()
	if r == nil {
		return
	}
	s.log.Error("panic while handling chat event",
		zap.String("op", op),
		zap.String("user", userID),
		zap.Any("panic", r),
		zap.Stack("stack"))
	*reply = Reply{
		State:   Failed,
		Kind:    apperrors.Internal,
		Message: "❌ Something went wrong while handling your request. Nothing further will be done with it.",
		Detail:  fmt.Sprint(r),
	}
}

func failure(err error) Reply {
	return Reply{
		State:   Failed,
		Kind:    apperrors.KindOf(err),
		Message: "❌ " + apperrors.MessageOf(err),
		Detail:  apperrors.DetailOf(err),
	}
}

func confirmResult(r Reply) string {
	if r.State == Expired {
		return string(Expired)
	}
	return string(r.Kind)
}

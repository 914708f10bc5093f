// Package parser turns free text into a validated intent by asking a language
// model oracle for structured output and validating what comes back.
// The oracle is treated as untrusted: its output may be wrapped in markdown
// fences, may not be JSON at all, or may violate the intent schema.
package parser

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"go.uber.org/zap"

	apperrors "leadbot/cli/internal/errors"
	"leadbot/cli/internal/intent"
)

// Oracle answers a prompt with free text.
type Oracle interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// DefaultTimeout bounds a single oracle call when none is configured.
const DefaultTimeout = 30 * time.Second

// Parser converts natural-language commands into intents.
type Parser struct {
	oracle    Oracle
	validator *intent.Validator
	tool      string
	object    string
	timeout   time.Duration
	log       *zap.Logger
}

// Config controls what the parser asks for and how long it waits.
type Config struct {
	Tool    string
	Object  string
	Timeout time.Duration
}

// New creates a Parser. A nil logger disables logging.
func New(o Oracle, cfg Config, log *zap.Logger) *Parser {
	if cfg.Tool == "" {
		cfg.Tool = "salesforce"
	}
	if cfg.Object == "" {
		cfg.Object = "Lead"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Parser{
		oracle:    o,
		validator: intent.NewValidator(cfg.Tool, cfg.Object),
		tool:      cfg.Tool,
		object:    cfg.Object,
		timeout:   cfg.Timeout,
		log:       log,
	}
}

// Parse asks the oracle to interpret text and validates the answer.
//
// Failures are classified as OracleUnavailable (transport, auth or timeout),
// MalformedOutput (not a JSON object; the raw oracle text is attached as
// detail) or SchemaViolation.
func (p *Parser) Parse(ctx context.Context, text string) (intent.Intent, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return intent.Intent{}, apperrors.New(apperrors.SchemaViolation, "command text is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	out, err := p.oracle.Complete(ctx, SystemPrompt, Prompt(p.tool, p.object, text))
	if err != nil {
		if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
			return intent.Intent{}, apperrors.Wrap(apperrors.OracleUnavailable, "language model timed out", err)
		}
		return intent.Intent{}, apperrors.Wrap(apperrors.OracleUnavailable, "language model unavailable", err)
	}

	in, err := p.validator.Validate([]byte(StripFences(out)))
	if err != nil {
		var e *apperrors.E
		if stderrors.As(err, &e) && e.Kind == apperrors.MalformedOutput {
			p.log.Debug("oracle returned non-JSON output", zap.String("output", out))
			return intent.Intent{}, e.WithDetail(out)
		}
		return intent.Intent{}, err
	}
	return in, nil
}

// StripFences removes a surrounding markdown code fence, including an
// optional language tag such as ```json, and trims whitespace.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "```"); ok {
		i := 0
		for i < len(rest) && isLetter(rest[i]) {
			i++
		}
		s = rest[i:]
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// Package oracle provides language model backends for the intent parser.
package oracle

import (
	"context"
	"fmt"
	"strings"

	"leadbot/cli/internal/parser"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Sampling is kept near-deterministic; intents are short.
const (
	temperature = 0.1
	maxTokens   = 200
)

// Config selects and configures a provider.
type Config struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
}

// New returns the oracle for cfg.Provider. An empty provider means OpenAI.
func New(ctx context.Context, cfg Config) (parser.Oracle, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderOpenAI:
		return NewOpenAI(cfg)
	case ProviderGemini:
		return NewGemini(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown oracle provider %q", cfg.Provider)
	}
}

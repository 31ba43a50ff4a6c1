// Package llm provides the language-model completion client used by the
// extraction and query engines. The service is treated as a black box that
// turns a prompt into text; callers bound every call with a context timeout.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Default configuration values.
const (
	defaultOllamaBaseURL = "http://localhost:11434"
	defaultOllamaModel   = "phi3"
	defaultOpenAIBaseURL = "https://api.openai.com"
	defaultOpenAIModel   = "gpt-4o-mini"
	defaultMaxTokens     = 1024
	defaultTimeout       = 60 * time.Second
)

// Rate limiter defaults: 50 requests per minute.
const (
	defaultRateLimit = 50.0 / 60.0
	defaultBurst     = 5
)

// ErrEmptyPrompt is returned when Generate is called with no prompt.
var ErrEmptyPrompt = errors.New("prompt cannot be empty")

// GenerateOptions tunes a single completion call.
type GenerateOptions struct {
	// Temperature controls sampling randomness. The pipeline uses low
	// values (0.3) to favor determinism over creativity.
	Temperature float64

	// MaxTokens bounds the output length. Zero means the provider default.
	MaxTokens int

	// System is an optional system instruction.
	System string
}

// Client generates text completions.
//
// Implementations are long-lived, shared handles safe for concurrent use.
// Calls are synchronous and bounded by the caller's context deadline.
type Client interface {
	// Generate sends the prompt and returns the raw completion text.
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}

// Config holds provider-specific configuration.
type Config struct {
	Model   string
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// NewClient creates a completion client for the named provider.
// Supported providers: "ollama", "openai".
func NewClient(provider string, cfg Config) (Client, error) {
	switch provider {
	case "ollama":
		return newOllamaClient(cfg)
	case "openai":
		return newOpenAIClient(cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider: %q", provider)
	}
}

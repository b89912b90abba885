// Package llm abstracts the CTO/Coder agents' language model calls behind a
// small provider interface, with structured-output support and a dry-run
// implementation for hermetic tests.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go"
)

// Message is one turn of a chat conversation.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// Response is a provider's reply together with its token accounting.
type Response struct {
	Text       string
	TokensIn   int64
	TokensOut  int64
}

// Provider generates a structured or free-text reply for a conversation.
// When schema is non-nil the provider must return JSON conforming to it.
type Provider interface {
	Name() string
	Generate(ctx context.Context, model string, messages []Message, schemaName string, schema any) (*Response, error)

	// CountTokens returns the provider's own token count for text, used to
	// enforce the context engine's hard cap against the same accounting the
	// model itself will bill against.
	CountTokens(ctx context.Context, model, text string) (int64, error)
}

// EstimateTokens is the same 4-chars-per-token heuristic used throughout the
// context engine, for providers/tests that don't have a real tokenizer
// available.
func EstimateTokens(text string) int64 {
	n := len(text) / 4
	if n < 1 {
		n = 1
	}
	return int64(n)
}

// IsRetryable classifies an LLM call error: 429/5xx and bare network errors
// are retryable, other 4xx and context cancellation are not.
func IsRetryable(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		slog.DebugContext(ctx, "llm error not retryable: context cancelled or deadline exceeded")
		return false
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			return true
		case apiErr.StatusCode >= 500:
			return true
		default:
			return false
		}
	}

	return true
}

// ErrNoChoices is returned when a provider's response contains no choices.
var ErrNoChoices = fmt.Errorf("llm: no choices in response")

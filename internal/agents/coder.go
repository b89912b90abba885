package agents

import (
	"context"
	"fmt"

	"autodev.dev/orchestrator/internal/llm"
)

// summaryPreviewChars is how much of the raw response text is kept for the
// step's MessageSummary and commit message body; the summary is always
// derived from the response text, never supplied by the model.
const summaryPreviewChars = 120

// DiffResponse is the Coder's reply for one execution step: a unified diff
// (empty when the step needed no code change) plus a short human-readable
// summary.
type DiffResponse struct {
	Diff    string
	Summary string
}

// Coder calls the implementer provider for a single step. Unlike the CTO,
// the Coder requests no structured output: the response text is itself the
// unified diff, verbatim; a malformed diff is caught later by the diff
// engine, not here.
type Coder struct {
	Provider llm.Provider
	Model    string
}

func NewCoder(provider llm.Provider, model string) *Coder {
	return &Coder{Provider: provider, Model: model}
}

// StepResult mirrors Result but for a single implementer call.
type StepResult struct {
	Diff      DiffResponse
	RawText   string
	TokensIn  int64
	TokensOut int64
}

func (c *Coder) Implement(ctx context.Context, messages []llm.Message) (*StepResult, error) {
	resp, err := c.Provider.Generate(ctx, c.Model, messages, "", nil)
	if err != nil {
		return nil, fmt.Errorf("coder generate: %w", err)
	}

	diff := DiffResponse{
		Diff:    resp.Text,
		Summary: "Model output: " + truncate(resp.Text, summaryPreviewChars),
	}

	return &StepResult{
		Diff:      diff,
		RawText:   resp.Text,
		TokensIn:  resp.TokensIn,
		TokensOut: resp.TokensOut,
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

package llm

import (
	"context"
	"strings"
)

// DryRunProvider echoes a deterministic canned response without making any
// network call, letting a job run start-to-finish against the orchestrator's
// own machinery (queueing, budget checks, transcript recording) for tests and
// local smoke runs.
type DryRunProvider struct{}

func NewDryRunProvider() Provider { return DryRunProvider{} }

func (DryRunProvider) Name() string { return "dry-run" }

func (DryRunProvider) Generate(ctx context.Context, model string, messages []Message, schemaName string, schema any) (*Response, error) {
	var combined strings.Builder
	for _, m := range messages {
		combined.WriteString(m.Content)
		combined.WriteString("\n")
	}
	text := combined.String()
	if len(text) > 200 {
		text = text[:200]
	}

	reply := "DRY-RUN (" + model + ") RESPONSE: " + text
	if schema != nil {
		reply = dryRunStructuredReply(schemaName)
	}

	tokensIn := EstimateTokens(combined.String())
	return &Response{
		Text:      reply,
		TokensIn:  tokensIn,
		TokensOut: tokensIn / 2,
	}, nil
}

// dryRunStructuredReply returns a minimal valid payload for the schema shapes
// the orchestrator actually requests. A CTO plan reply is a bare JSON array
// of step objects; a Coder diff reply isn't structured output at all (the
// Coder agent treats the raw response text as a unified diff), so it's
// handled by Generate before this function is ever reached for that case.
func dryRunStructuredReply(schemaName string) string {
	switch schemaName {
	case "cto_plan":
		return `[{"title":"Analyse Task","rationale":"placeholder plan produced without a real model","acceptance":"job completes without error"}]`
	default:
		return `{}`
	}
}

// CountTokens mirrors the heuristic Generate already uses for its own token
// accounting, so the context engine's hard cap enforces against the same
// numbers a dry run actually reports.
func (DryRunProvider) CountTokens(ctx context.Context, model, text string) (int64, error) {
	return EstimateTokens(text), nil
}

// Package agents wraps the CTO (planner) and Coder (implementer) roles
// around the llm.Provider contract, pairing each with the structured
// response shape jobrunner expects back.
package agents

import (
	"context"
	"encoding/json"
	"fmt"

	"autodev.dev/orchestrator/internal/apperr"
	"autodev.dev/orchestrator/internal/llm"
)

// PlanStep is one entry in a CTO plan. Files/Commands are optional hints
// the implementer may use when building its own context request.
type PlanStep struct {
	Title      string   `json:"title"`
	Rationale  string   `json:"rationale"`
	Acceptance string   `json:"acceptance"`
	Files      []string `json:"files,omitempty"`
	Commands   []string `json:"commands,omitempty"`
}

// PlanResponse is the parsed plan: an ordered list of steps. The CTO's raw
// reply is a bare JSON array of these, not an object wrapping them.
type PlanResponse struct {
	Steps []PlanStep
}

var planSchema = llm.GenerateSchema([]PlanStep{})

// CTO calls the planner provider and parses its reply into a plan. The
// caller is responsible for building the base system/task messages (via
// the prompt spec's CTO-AI section) and for running those messages through
// the Context Engine first.
type CTO struct {
	Provider llm.Provider
	Model    string
}

func NewCTO(provider llm.Provider, model string) *CTO {
	return &CTO{Provider: provider, Model: model}
}

// Result carries the parsed plan alongside the raw response for transcript
// recording and cost accounting.
type Result struct {
	Plan      PlanResponse
	RawText   string
	TokensIn  int64
	TokensOut int64
}

// Plan asks the CTO to break the task into steps. A response that isn't
// a JSON array of PlanStep objects (or whose plan is empty) is a
// PlanParseError.
func (c *CTO) Plan(ctx context.Context, messages []llm.Message) (*Result, error) {
	resp, err := c.Provider.Generate(ctx, c.Model, messages, "cto_plan", planSchema)
	if err != nil {
		return nil, fmt.Errorf("cto generate: %w", err)
	}

	var steps []PlanStep
	if err := json.Unmarshal([]byte(resp.Text), &steps); err != nil {
		return nil, apperr.Wrap(apperr.KindPlanParse, fmt.Errorf("parsing planner response: %w", err))
	}
	if len(steps) == 0 {
		return nil, apperr.New(apperr.KindPlanParse, "plan has zero steps")
	}
	plan := PlanResponse{Steps: steps}

	return &Result{
		Plan:      plan,
		RawText:   resp.Text,
		TokensIn:  resp.TokensIn,
		TokensOut: resp.TokensOut,
	}, nil
}

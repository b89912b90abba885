// Package pricing loads per-model USD pricing used to cost LLM calls.
package pricing

import (
	"encoding/json"
	"fmt"
	"os"
)

// Pricing is the per-million-token cost of a model.
type Pricing struct {
	InputPerMTok  float64 `json:"input_per_mtok"`
	OutputPerMTok float64 `json:"output_per_mtok"`
}

// Cost returns the USD cost of tokensIn/tokensOut tokens at this pricing.
func (p Pricing) Cost(tokensIn, tokensOut int64) float64 {
	return float64(tokensIn)/1_000_000*p.InputPerMTok + float64(tokensOut)/1_000_000*p.OutputPerMTok
}

// Table maps model name to Pricing, falling back to a "default" entry.
type Table struct {
	data map[string]Pricing
}

// Load reads a pricing table from a JSON file of the form:
//
//	{"gpt-5": {"input_per_mtok": 5, "output_per_mtok": 15}, "default": {...}}
func Load(path string) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pricing file %s: %w", path, err)
	}

	var data map[string]Pricing
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parsing pricing file %s: %w", path, err)
	}

	return &Table{data: data}, nil
}

// Get returns the pricing for model, falling back to the "default" entry.
// Returns an error if neither is configured.
func (t *Table) Get(model string) (Pricing, error) {
	if p, ok := t.data[model]; ok {
		return p, nil
	}
	if p, ok := t.data["default"]; ok {
		return p, nil
	}
	return Pricing{}, fmt.Errorf("no pricing configured for model %q and no default", model)
}

package agents_test

import (
	"context"
	"testing"

	"autodev.dev/orchestrator/internal/agents"
	"autodev.dev/orchestrator/internal/apperr"
	"autodev.dev/orchestrator/internal/llm"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestAgents(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "agents Suite")
}

// fakeProvider returns a canned reply (or error) regardless of input, letting
// tests drive CTO.Plan/Coder.Implement without a real model call.
type fakeProvider struct {
	text string
	err  error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Generate(ctx context.Context, model string, messages []llm.Message, schemaName string, schema any) (*llm.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Text: f.text, TokensIn: 10, TokensOut: 5}, nil
}

func (f *fakeProvider) CountTokens(ctx context.Context, model, text string) (int64, error) {
	return llm.EstimateTokens(text), nil
}

var _ = Describe("CTO", func() {
	It("parses a well-formed plan", func() {
		provider := &fakeProvider{text: `[{"title":"Add endpoint","rationale":"needed for the feature","acceptance":"returns 200"}]`}
		cto := agents.NewCTO(provider, "gpt-5")

		result, err := cto.Plan(context.Background(), []llm.Message{{Role: "user", Content: "do the thing"}})

		Expect(err).NotTo(HaveOccurred())
		Expect(result.Plan.Steps).To(HaveLen(1))
		Expect(result.Plan.Steps[0].Title).To(Equal("Add endpoint"))
		Expect(result.TokensIn).To(Equal(int64(10)))
	})

	It("wraps malformed JSON as a PlanParseError", func() {
		provider := &fakeProvider{text: `not json`}
		cto := agents.NewCTO(provider, "gpt-5")

		_, err := cto.Plan(context.Background(), nil)

		Expect(err).To(HaveOccurred())
		Expect(apperr.KindOf(err)).To(Equal(apperr.KindPlanParse))
	})

	It("rejects a plan with zero steps", func() {
		provider := &fakeProvider{text: `[]`}
		cto := agents.NewCTO(provider, "gpt-5")

		_, err := cto.Plan(context.Background(), nil)

		Expect(err).To(HaveOccurred())
		Expect(apperr.KindOf(err)).To(Equal(apperr.KindPlanParse))
	})

	It("propagates a provider error", func() {
		provider := &fakeProvider{err: llm.ErrNoChoices}
		cto := agents.NewCTO(provider, "gpt-5")

		_, err := cto.Plan(context.Background(), nil)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Coder", func() {
	It("passes the raw response text through as the diff", func() {
		provider := &fakeProvider{text: "--- a/x\n+++ b/x\n"}
		coder := agents.NewCoder(provider, "gpt-5")

		result, err := coder.Implement(context.Background(), nil)

		Expect(err).NotTo(HaveOccurred())
		Expect(result.Diff.Diff).To(Equal("--- a/x\n+++ b/x\n"))
		Expect(result.Diff.Summary).To(Equal("Model output: --- a/x\n+++ b/x\n"))
	})

	It("returns an error when the provider fails", func() {
		provider := &fakeProvider{err: llm.ErrNoChoices}
		coder := agents.NewCoder(provider, "gpt-5")

		_, err := coder.Implement(context.Background(), nil)
		Expect(err).To(HaveOccurred())
	})
})

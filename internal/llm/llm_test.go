package llm_test

import (
	"context"
	"errors"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"autodev.dev/orchestrator/internal/llm"
)

func TestLLM(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "llm Suite")
}

var _ = Describe("EstimateTokens", func() {
	It("estimates at 4 characters per token with a floor of 1", func() {
		Expect(llm.EstimateTokens("")).To(Equal(int64(1)))
		Expect(llm.EstimateTokens("ab")).To(Equal(int64(1)))
		Expect(llm.EstimateTokens("twelve chars")).To(Equal(int64(3)))
	})
})

var _ = Describe("IsRetryable", func() {
	It("is false for a nil error", func() {
		Expect(llm.IsRetryable(context.Background(), nil)).To(BeFalse())
	})

	It("is false when the context was cancelled", func() {
		Expect(llm.IsRetryable(context.Background(), context.Canceled)).To(BeFalse())
	})

	It("is false when the context deadline was exceeded", func() {
		Expect(llm.IsRetryable(context.Background(), context.DeadlineExceeded)).To(BeFalse())
	})

	It("is true for a bare non-API error", func() {
		Expect(llm.IsRetryable(context.Background(), errors.New("connection reset"))).To(BeTrue())
	})
})

var _ = Describe("DryRunProvider", func() {
	provider := llm.NewDryRunProvider()

	It("is named dry-run and makes no network call", func() {
		Expect(provider.Name()).To(Equal("dry-run"))
	})

	It("echoes a canned free-text reply for a schema-less call", func() {
		resp, err := provider.Generate(context.Background(), "gpt-5", []llm.Message{{Role: "user", Content: "fix the bug"}}, "", nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Text).To(ContainSubstring("DRY-RUN"))
		Expect(resp.Text).To(ContainSubstring("gpt-5"))
	})

	It("returns a placeholder CTO plan for the cto_plan schema", func() {
		resp, err := provider.Generate(context.Background(), "gpt-5", nil, "cto_plan", struct{}{})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Text).To(ContainSubstring(`[{"title"`))
	})

	It("falls back to an empty object for the coder_diff schema", func() {
		resp, err := provider.Generate(context.Background(), "gpt-5", nil, "coder_diff", struct{}{})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Text).To(Equal("{}"))
	})

	It("falls back to an empty object for an unrecognized schema", func() {
		resp, err := provider.Generate(context.Background(), "gpt-5", nil, "unknown", struct{}{})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Text).To(Equal("{}"))
	})

	It("halves tokens-in for the tokens-out estimate", func() {
		resp, err := provider.Generate(context.Background(), "gpt-5", []llm.Message{{Role: "user", Content: "0123456789012345"}}, "", nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.TokensOut).To(Equal(resp.TokensIn / 2))
	})
})

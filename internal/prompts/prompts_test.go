package prompts_test

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"autodev.dev/orchestrator/internal/prompts"
)

func TestPrompts(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "prompts Suite")
}

var _ = Describe("Parse", func() {
	It("splits sections by heading and uppercases the name", func() {
		raw := "# intro discarded\n\n# CTO-AI\nplan carefully.\n\n## coder-ai\nwrite diffs.\n"

		file := prompts.Parse(raw)

		body, err := file.Section("CTO-AI")
		Expect(err).NotTo(HaveOccurred())
		Expect(body).To(Equal("plan carefully."))

		body, err = file.Section("coder-ai")
		Expect(err).NotTo(HaveOccurred())
		Expect(body).To(Equal("write diffs."))
	})

	It("discards text before the first heading", func() {
		file := prompts.Parse("stray preamble\n# CTO-AI\nbody\n")
		Expect(file.Sections).To(HaveLen(1))
	})

	It("computes a stable digest for identical input", func() {
		a := prompts.Parse("# CTO-AI\nbody\n")
		b := prompts.Parse("# CTO-AI\nbody\n")
		Expect(a.Digest).To(Equal(b.Digest))
	})

	It("computes a different digest when the content changes", func() {
		a := prompts.Parse("# CTO-AI\nbody\n")
		b := prompts.Parse("# CTO-AI\nother body\n")
		Expect(a.Digest).NotTo(Equal(b.Digest))
	})
})

var _ = Describe("AgentsFile.Section", func() {
	It("errors when the named section is missing", func() {
		file := prompts.Parse("# CTO-AI\nbody\n")
		_, err := file.Section("CODER-AI")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Load", func() {
	It("reads and parses a file from disk", func() {
		path := filepath.Join(GinkgoT().TempDir(), "agents.md")
		Expect(os.WriteFile(path, []byte("# CTO-AI\nplan.\n"), 0o644)).To(Succeed())

		file, err := prompts.Load(path)
		Expect(err).NotTo(HaveOccurred())

		body, err := file.Section("CTO-AI")
		Expect(err).NotTo(HaveOccurred())
		Expect(body).To(Equal("plan."))
	})

	It("errors when the file does not exist", func() {
		_, err := prompts.Load(filepath.Join(GinkgoT().TempDir(), "missing.md"))
		Expect(err).To(HaveOccurred())
	})
})

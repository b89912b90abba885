package jobrunner

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"autodev.dev/orchestrator/internal/apperr"
	"autodev.dev/orchestrator/internal/config"
	ctxengine "autodev.dev/orchestrator/internal/context"
	"autodev.dev/orchestrator/internal/events"
	"autodev.dev/orchestrator/internal/gitops"
	"autodev.dev/orchestrator/internal/idgen"
	"autodev.dev/orchestrator/internal/llm"
	"autodev.dev/orchestrator/internal/model"
	"autodev.dev/orchestrator/internal/pricing"
	"autodev.dev/orchestrator/internal/prompts"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = BeforeSuite(func() {
	Expect(idgen.Init(1)).To(Succeed())
})

const agentsFixture = "## CTO-AI\nYou are the CTO.\n\n## CODER-AI\nYou are the Coder.\n"

// newTestPricing writes a pricing table with realistic per-million-token
// rates, so a dry-run job's handful of tokens costs fractions of a cent
// while a scenario that deliberately inflates TokensIn/TokensOut (S3) can
// still blow through a one-cent budget.
func newTestPricing() *pricing.Table {
	dir := GinkgoT().TempDir()
	path := filepath.Join(dir, "pricing.json")
	raw := `{"default": {"input_per_mtok": 5, "output_per_mtok": 15}}`
	Expect(os.WriteFile(path, []byte(raw), 0o644)).To(Succeed())
	table, err := pricing.Load(path)
	Expect(err).NotTo(HaveOccurred())
	return table
}

func newTestEngine(ctxCfg config.ContextConfig, memory ctxengine.MemoryStore) *ctxengine.Engine {
	return &ctxengine.Engine{
		Memory:      memory,
		ContextCfg:  ctxCfg,
		RetrieveCfg: config.RetrieveConfig{MaxFiles: 50, MaxSnippetTokens: 2000},
		ArtifactsDir: GinkgoT().TempDir(),
	}
}

func defaultContextConfig() config.ContextConfig {
	return config.ContextConfig{
		BudgetTokens:          100000,
		OutputReserveTokens:   0,
		HardCapTokens:         100000,
		CompactThresholdRatio: 0.6,
		CuratorTopK:           50,
		CuratorMinScore:       0,
	}
}

// newTestRunner builds a Runner around in-memory fakes. withRepo is false for
// dry-run scenarios (prepareWorkingCopy/finalize never touch Git); non-dry-run
// scenarios pass true to get a *gitops.Repo backed by a scripted
// gitops.CommandRunner instead of a real clone, sharing DataDir with the
// Runner exactly as cmd/worker/main.go wires cfg.DataDir into both. r.PR
// stays nil throughout: finalize skips opening a pull request whenever no
// GitLab client is configured, the same as a worker started without a
// GitLab token.
func newTestRunner(stores *fakeStores, provider llm.Provider, engine *ctxengine.Engine, withRepo bool) *Runner {
	agents := prompts.Parse(agentsFixture)
	dataDir := GinkgoT().TempDir()
	var repo *gitops.Repo
	if withRepo {
		repo = gitops.NewRepo(&fakeGitRunner{}, dataDir)
	}
	return &Runner{
		Stores:   stores,
		Engine:   engine,
		Bus:      events.NewBus(nil),
		Pricing:  newTestPricing(),
		Prompts:  agents,
		Repo:     repo,
		Provider: provider,
		DataDir:  dataDir,
	}
}

func baseJob() model.Job {
	return model.Job{
		ID:          idgen.New(),
		Task:        "Demo",
		RepoOwner:   "demo",
		RepoName:    "demo-repo",
		BranchBase:  "main",
		BudgetUSD:   5,
		MaxRequests: 10,
		MaxMinutes:  60,
		ModelCTO:    "gpt-test-cto",
		ModelCoder:  "gpt-test-coder",
		DryRun:      true,
		Status:      model.JobStatusPending,
	}
}

var _ = Describe("Runner.Process", func() {
	ctx := context.Background()

	// S1 - dry-run happy path: job.DryRun forces the real DryRunProvider
	// regardless of Runner.Provider (see providerFor), producing its canned
	// single-step "Analyse Task" plan end to end with no fake LLM wiring.
	It("S1: completes a dry-run job with a single planned step", func() {
		job := baseJob()
		stores := newFakeStores(job)
		engine := newTestEngine(defaultContextConfig(), nil)
		runner := newTestRunner(stores, nil, engine, false)

		err := runner.Process(ctx, job.ID)
		Expect(err).NotTo(HaveOccurred())

		final := stores.jobs.snapshot()
		Expect(final.Status).To(Equal(model.JobStatusCompleted))
		Expect(final.PRLinks).To(BeEmpty())
		Expect(final.CostUSD).To(BeNumerically("<", 1))

		steps := stores.steps.snapshot()
		Expect(len(steps)).To(BeNumerically(">=", 1))
	})

	// S2 - plan parse failure: the planner's reply isn't JSON at all, so the
	// CTO returns a PlanParseError and the job never leaves the plan phase.
	// DryRun is false purely to let the scripted fakeProvider answer instead
	// of the canned DryRunProvider; failure happens before prepareWorkingCopy
	// ever runs, so no Git fake is needed.
	It("S2: fails the job when the planner reply cannot be parsed", func() {
		job := baseJob()
		job.DryRun = false
		stores := newFakeStores(job)
		provider := &fakeProvider{planReply: "not json", tokensIn: 10, tokensOut: 5}
		engine := newTestEngine(defaultContextConfig(), nil)
		runner := newTestRunner(stores, provider, engine, false)

		err := runner.Process(ctx, job.ID)
		Expect(err).To(HaveOccurred())
		Expect(apperr.KindOf(err)).To(Equal(apperr.KindPlanParse))

		final := stores.jobs.snapshot()
		Expect(final.Status).To(Equal(model.JobStatusFailed))
		Expect(final.FeatureBranch).To(BeEmpty())
		Expect(stores.summaries.snapshot()).To(HaveLen(1))
	})

	// S3 - budget trip mid-execution: a two-step plan where the first step's
	// cost alone blows through a tiny budget, so the second step's limit
	// check fires before it is ever created. DryRun is false so the scripted
	// provider prices the plan and step calls independently; prepareWorkingCopy
	// runs once against a faked Git runner before the step loop starts.
	It("S3: trips the budget ledger before the second step is created", func() {
		job := baseJob()
		job.DryRun = false
		job.BudgetUSD = 0.01
		stores := newFakeStores(job)
		provider := &fakeProvider{
			planReply: `[{"title":"Step One","rationale":"r1","acceptance":"a1"},` +
				`{"title":"Step Two","rationale":"r2","acceptance":"a2"}]`,
			diffReply:     "",
			planTokensIn:  20,
			planTokensOut: 10,
			tokensIn:      2_000_000,
			tokensOut:     1_000_000,
		}
		engine := newTestEngine(defaultContextConfig(), nil)
		runner := newTestRunner(stores, provider, engine, true)

		err := runner.Process(ctx, job.ID)
		Expect(err).To(HaveOccurred())
		Expect(apperr.KindOf(err)).To(Equal(apperr.KindBudgetExceeded))

		final := stores.jobs.snapshot()
		Expect(final.Status).To(Equal(model.JobStatusFailed))
		Expect(final.PRLinks).To(BeEmpty())

		var executionSteps int
		for _, st := range stores.steps.snapshot() {
			if st.StepType == model.JobStepTypeExecution {
				executionSteps++
			}
		}
		Expect(executionSteps).To(Equal(1))
	})

	// S4 - cancellation: a 3-step job is cancelled (by another actor updating
	// the row directly) right after the first step completes; the worker must
	// observe it at the next step boundary rather than running to completion.
	It("S4: stops at the next step boundary once the job is cancelled", func() {
		job := baseJob()
		job.DryRun = false
		stores := newFakeStores(job)
		stores.jobs.onGet = func(call int, j model.Job) model.Job {
			if call == 3 {
				j.Status = model.JobStatusCancelled
			}
			return j
		}
		provider := &fakeProvider{
			planReply: `[{"title":"Step One"},{"title":"Step Two"},{"title":"Step Three"}]`,
			diffReply: "",
			tokensIn:  5,
			tokensOut: 5,
		}
		engine := newTestEngine(defaultContextConfig(), nil)
		runner := newTestRunner(stores, provider, engine, true)

		err := runner.Process(ctx, job.ID)
		Expect(err).NotTo(HaveOccurred())

		final := stores.jobs.snapshot()
		Expect(final.Status).To(Equal(model.JobStatusCancelled))

		var completedExecution int
		for _, st := range stores.steps.snapshot() {
			if st.StepType == model.JobStepTypeExecution && st.Status == model.JobStepStatusCompleted {
				completedExecution++
			}
		}
		Expect(completedExecution).To(BeNumerically("<=", 1))
	})

	// S5 - context hard cap: a job whose memory notes total roughly 5000
	// tokens is built against a 200-token hard cap; the first diagnostic
	// must land at or under the cap and must record dropped candidates. This
	// stays on the canned DryRunProvider (like S1) since only the Context
	// Engine's behavior is under test, not the plan/diff reply content.
	It("S5: enforces the hard cap and records dropped candidates", func() {
		job := baseJob()
		stores := newFakeStores(job)

		memory := &fakeMemoryStore{}
		chunk := make([]byte, 4*250) // ~250 tokens at 4 chars/token
		for i := range chunk {
			chunk[i] = 'a'
		}
		for i := 0; i < 20; i++ { // ~5000 tokens total
			memory.notes = append(memory.notes, model.MemoryNote{
				ID:       int64(i + 1),
				JobID:    job.ID,
				NoteType: "Decision",
				Title:    "note",
				Body:     string(chunk),
			})
		}

		ctxCfg := defaultContextConfig()
		ctxCfg.BudgetTokens = 1000
		ctxCfg.HardCapTokens = 200

		var diagnostics []model.ContextDiagnostic
		engine := newTestEngine(ctxCfg, memory)
		engine.Diagnostics = func(_ context.Context, d model.ContextDiagnostic) error {
			diagnostics = append(diagnostics, d)
			return nil
		}
		runner := newTestRunner(stores, nil, engine, false)

		err := runner.Process(ctx, job.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(diagnostics).NotTo(BeEmpty())

		var probe struct {
			TokensFinal int               `json:"tokens_final"`
			Dropped     []json.RawMessage `json:"dropped"`
		}
		Expect(json.Unmarshal(diagnostics[0].Details, &probe)).To(Succeed())
		Expect(probe.TokensFinal).To(BeNumerically("<=", 200))
		Expect(probe.Dropped).NotTo(BeEmpty())
	})

	// S6 - whole-file diff: the implementer replies with a ::FULL diff for a
	// brand-new file; applying it must produce the file's content verbatim.
	// DryRun is false so the scripted diff reply is actually used; Git itself
	// is faked, and the absence of a configured PR client (r.PR stays nil)
	// makes finalize skip opening a pull request instead of failing.
	It("S6: applies a whole-file diff to a new file", func() {
		job := baseJob()
		job.DryRun = false
		stores := newFakeStores(job)
		diff := "--- a/foo.txt\n" +
			"+++ b/foo.txt::FULL\n" +
			"@@ -0,0 +1,2 @@\n" +
			"+hello\n" +
			"+world\n"
		provider := &fakeProvider{
			planReply: `[{"title":"Write foo.txt"}]`,
			diffReply: diff,
			tokensIn:  5,
			tokensOut: 5,
		}
		engine := newTestEngine(defaultContextConfig(), nil)
		runner := newTestRunner(stores, provider, engine, true)

		err := runner.Process(ctx, job.ID)
		Expect(err).NotTo(HaveOccurred())

		final := stores.jobs.snapshot()
		Expect(final.Status).To(Equal(model.JobStatusCompleted))

		written, readErr := os.ReadFile(filepath.Join(runner.DataDir, job.RepoOwner+"-"+job.RepoName, "foo.txt"))
		Expect(readErr).NotTo(HaveOccurred())
		Expect(string(written)).To(Equal("hello\nworld\n"))
	})
})

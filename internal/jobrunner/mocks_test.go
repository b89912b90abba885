package jobrunner

import (
	"context"
	"encoding/json"
	"sync"

	"autodev.dev/orchestrator/internal/gitops"
	"autodev.dev/orchestrator/internal/llm"
	"autodev.dev/orchestrator/internal/model"
	"autodev.dev/orchestrator/internal/store"
)

// fakeJobStore is an in-memory store.JobStore. Unlike the teacher's
// mockUserStore (pure function-field overrides, one request at a time), it
// keeps the job row itself so Process's own reload-then-check sequencing
// behaves the same way it would against Postgres. onGet lets a test observe
// (and rewrite) the job on a chosen call, e.g. to simulate a cancellation
// racing in between steps.
type fakeJobStore struct {
	mu       sync.Mutex
	job      model.Job
	getCalls int
	onGet    func(call int, j model.Job) model.Job
}

func newFakeJobStore(job model.Job) *fakeJobStore {
	return &fakeJobStore{job: job}
}

func (s *fakeJobStore) Create(ctx context.Context, j model.Job) (model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.job = j
	return s.job, nil
}

func (s *fakeJobStore) Get(ctx context.Context, id int64) (model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	if s.onGet != nil {
		s.job = s.onGet(s.getCalls, s.job)
	}
	return s.job, nil
}

func (s *fakeJobStore) List(ctx context.Context, status model.JobStatus, limit, offset int) ([]model.Job, error) {
	return nil, nil
}

func (s *fakeJobStore) UpdateStatus(ctx context.Context, q store.Querier, id int64, status model.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.job.Status = status
	return nil
}

func (s *fakeJobStore) AccrueCost(ctx context.Context, q store.Querier, id int64, costUSD float64, tokensIn, tokensOut int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.job.CostUSD += costUSD
	s.job.TokensIn += tokensIn
	s.job.TokensOut += tokensOut
	s.job.RequestsMade++
	return nil
}

func (s *fakeJobStore) SetLastAction(ctx context.Context, q store.Querier, id int64, action string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.job.LastAction = action
	return nil
}

func (s *fakeJobStore) SetFeatureBranch(ctx context.Context, q store.Querier, id int64, branch string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.job.FeatureBranch = branch
	return nil
}

func (s *fakeJobStore) AppendPRLink(ctx context.Context, q store.Querier, id int64, link string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.job.PRLinks = append(s.job.PRLinks, link)
	return nil
}

func (s *fakeJobStore) snapshot() model.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.job
}

// fakeJobStepStore is an in-memory store.JobStepStore.
type fakeJobStepStore struct {
	mu    sync.Mutex
	steps []model.JobStep
}

func (s *fakeJobStepStore) Create(ctx context.Context, q store.Querier, step model.JobStep) (model.JobStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, step)
	return step, nil
}

func (s *fakeJobStepStore) Get(ctx context.Context, id int64) (model.JobStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.steps {
		if st.ID == id {
			return st, nil
		}
	}
	return model.JobStep{}, nil
}

func (s *fakeJobStepStore) ListByJob(ctx context.Context, jobID int64) ([]model.JobStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.JobStep
	for _, st := range s.steps {
		if st.JobID == jobID {
			out = append(out, st)
		}
	}
	return out, nil
}

func (s *fakeJobStepStore) CountByStatus(ctx context.Context, jobID int64) (completed, total int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.steps {
		if st.JobID != jobID {
			continue
		}
		total++
		if st.Status == model.JobStepStatusCompleted {
			completed++
		}
	}
	return completed, total, nil
}

func (s *fakeJobStepStore) UpdateStatus(ctx context.Context, q store.Querier, id int64, status model.JobStepStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.steps {
		if s.steps[i].ID == id {
			s.steps[i].Status = status
		}
	}
	return nil
}

func (s *fakeJobStepStore) SetDetails(ctx context.Context, q store.Querier, id int64, details json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.steps {
		if s.steps[i].ID == id {
			s.steps[i].Details = details
		}
	}
	return nil
}

func (s *fakeJobStepStore) snapshot() []model.JobStep {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.JobStep(nil), s.steps...)
}

// fakeCostEntryStore is an in-memory store.CostEntryStore.
type fakeCostEntryStore struct {
	mu      sync.Mutex
	entries []model.CostEntry
}

func (s *fakeCostEntryStore) Create(ctx context.Context, q store.Querier, e model.CostEntry) (model.CostEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return e, nil
}

func (s *fakeCostEntryStore) ListByJob(ctx context.Context, jobID int64) ([]model.CostEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.CostEntry
	for _, e := range s.entries {
		if e.JobID == jobID {
			out = append(out, e)
		}
	}
	return out, nil
}

// fakeMessageSummaryStore is an in-memory store.MessageSummaryStore.
type fakeMessageSummaryStore struct {
	mu       sync.Mutex
	messages []model.MessageSummary
}

func (s *fakeMessageSummaryStore) Create(ctx context.Context, q store.Querier, m model.MessageSummary) (model.MessageSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
	return m, nil
}

func (s *fakeMessageSummaryStore) ListByJob(ctx context.Context, jobID int64, limit int) ([]model.MessageSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.MessageSummary
	for _, m := range s.messages {
		if m.JobID == jobID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *fakeMessageSummaryStore) snapshot() []model.MessageSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.MessageSummary(nil), s.messages...)
}

// fakeStores wires the four fakes above behind the jobrunner.Stores seam,
// mirroring the teacher's mockStoreProvider: fixed fields returned verbatim
// rather than constructed per call.
type fakeStores struct {
	jobs      *fakeJobStore
	steps     *fakeJobStepStore
	costs     *fakeCostEntryStore
	summaries *fakeMessageSummaryStore
}

func newFakeStores(job model.Job) *fakeStores {
	return &fakeStores{
		jobs:      newFakeJobStore(job),
		steps:     &fakeJobStepStore{},
		costs:     &fakeCostEntryStore{},
		summaries: &fakeMessageSummaryStore{},
	}
}

func (f *fakeStores) Jobs() store.JobStore                       { return f.jobs }
func (f *fakeStores) JobSteps() store.JobStepStore               { return f.steps }
func (f *fakeStores) CostEntries() store.CostEntryStore           { return f.costs }
func (f *fakeStores) MessageSummaries() store.MessageSummaryStore { return f.summaries }

// fakeProvider is a scripted llm.Provider: plan calls (schemaName "cto_plan")
// and implementer calls (no schema) are answered independently, so a test
// can drive the CTO and Coder agents without a real model.
type fakeProvider struct {
	mu        sync.Mutex
	planReply string
	planErr   error
	diffReply string
	diffErr   error

	// tokensIn/tokensOut price every call unless the plan-specific fields
	// below are set, letting most scenarios use one flat cost and S3 give
	// the planner and the implementer very different costs.
	tokensIn  int64
	tokensOut int64

	planTokensIn  int64
	planTokensOut int64

	diffCalls int
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Generate(ctx context.Context, model string, messages []llm.Message, schemaName string, schema any) (*llm.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if schemaName == "cto_plan" {
		if p.planErr != nil {
			return nil, p.planErr
		}
		in, out := p.tokensIn, p.tokensOut
		if p.planTokensIn != 0 || p.planTokensOut != 0 {
			in, out = p.planTokensIn, p.planTokensOut
		}
		return &llm.Response{Text: p.planReply, TokensIn: in, TokensOut: out}, nil
	}

	p.diffCalls++
	if p.diffErr != nil {
		return nil, p.diffErr
	}
	return &llm.Response{Text: p.diffReply, TokensIn: p.tokensIn, TokensOut: p.tokensOut}, nil
}

func (p *fakeProvider) CountTokens(ctx context.Context, model, text string) (int64, error) {
	return llm.EstimateTokens(text), nil
}

// fakeMemoryStore is an in-memory ctxengine.MemoryStore, used only by the
// context hard-cap scenario to supply candidates heavy enough to trigger
// both budget selection and hard-cap trimming.
type fakeMemoryStore struct {
	notes []model.MemoryNote
}

func (s *fakeMemoryStore) ListByJob(ctx context.Context, jobID int64) ([]model.MemoryNote, error) {
	return s.notes, nil
}

func (s *fakeMemoryStore) CountByJob(ctx context.Context, jobID int64) (int, error) {
	return len(s.notes), nil
}

func (s *fakeMemoryStore) Delete(ctx context.Context, id int64) error { return nil }

// fakeGitRunner is a gitops.CommandRunner that succeeds on every invocation
// without shelling out, letting a non-dry-run job exercise prepareWorkingCopy,
// CommitAll, and Push against a real *gitops.Repo (same seam as the teacher's
// gitops_test.go fakeRunner, minus the per-command scripting this package
// doesn't need).
type fakeGitRunner struct {
	mu    sync.Mutex
	calls []gitops.Command
}

func (r *fakeGitRunner) Run(ctx context.Context, cmd gitops.Command) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, cmd)
	return nil, nil
}

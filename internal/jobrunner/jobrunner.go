// Package jobrunner drives a single Job from Pending through its plan,
// execution, and finalize phases to a terminal status. It implements
// worker.JobProcessor.
package jobrunner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"autodev.dev/orchestrator/internal/agents"
	"autodev.dev/orchestrator/internal/apperr"
	ctxengine "autodev.dev/orchestrator/internal/context"
	"autodev.dev/orchestrator/internal/diffengine"
	"autodev.dev/orchestrator/internal/events"
	"autodev.dev/orchestrator/internal/gitops"
	"autodev.dev/orchestrator/internal/idgen"
	"autodev.dev/orchestrator/internal/ledger"
	"autodev.dev/orchestrator/internal/llm"
	"autodev.dev/orchestrator/internal/model"
	"autodev.dev/orchestrator/internal/pricing"
	"autodev.dev/orchestrator/internal/prompts"
	"autodev.dev/orchestrator/internal/store"
	"autodev.dev/orchestrator/internal/transcript"
)

// workspace is the minimal checkout handle the execution phase needs,
// covering both a real gitops.Workspace and a dry-run scratch directory.
type workspace struct {
	Path          string
	FeatureBranch string
}

// Stores is the subset of store.Stores the job runner needs, narrowed to
// interfaces so tests can supply in-memory mocks instead of a live Postgres
// instance. *store.Stores satisfies this directly.
type Stores interface {
	Jobs() store.JobStore
	JobSteps() store.JobStepStore
	CostEntries() store.CostEntryStore
	MessageSummaries() store.MessageSummaryStore
}

// Runner wires every domain-stack component together to execute jobs.
type Runner struct {
	Stores  Stores
	Engine  *ctxengine.Engine
	Bus     *events.Bus
	Pricing *pricing.Table
	Prompts *prompts.AgentsFile
	Repo    *gitops.Repo
	PR      *gitops.PullRequestClient

	Provider       llm.Provider // real provider; nil is fine if every job is DryRun
	GitLabBaseURL  string
	GitLabToken    string
	DataDir        string
	ArtifactsDir   string
	AllowDirectPush bool
}

// Process executes jobID to a terminal status, or leaves it Running if this
// call was interrupted mid-way by a process crash (the worker's reclaimer
// re-delivers the message and Process is simply invoked again).
func (r *Runner) Process(ctx context.Context, jobID int64) error {
	job, err := r.Stores.Jobs().Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("loading job %d: %w", jobID, err)
	}

	if job.Status == model.JobStatusCancelled {
		return nil
	}

	if err := r.Stores.Jobs().UpdateStatus(ctx, nil, job.ID, model.JobStatusRunning); err != nil {
		return fmt.Errorf("transitioning job %d to running: %w", job.ID, err)
	}
	now := time.Now()
	job.Status = model.JobStatusRunning
	job.StartedAt = &now
	r.emit(ctx, events.EventJobUpdated, job)

	tr := transcript.NewRecorder()
	defer tr.Close()

	provider := r.providerFor(job)
	cto := agents.NewCTO(provider, job.ModelCTO)
	coder := agents.NewCoder(provider, job.ModelCoder)

	plan, err := r.runPlanPhase(ctx, &job, cto, tr, provider)
	if err != nil {
		return r.fail(ctx, job, err)
	}
	r.emit(ctx, events.EventJobUpdated, job)

	ws, err := r.prepareWorkingCopy(ctx, &job)
	if err != nil {
		return r.fail(ctx, job, apperr.Wrap(apperr.KindGit, err))
	}
	if err := tr.SetBasePath(ws.Path); err != nil {
		slog.WarnContext(ctx, "failed to attach transcript path", "error", err, "job_id", job.ID)
	}

	var lastDiag model.ContextDiagnostic
	for i, step := range plan.Steps {
		diag, stepErr := r.runStep(ctx, &job, ws, coder, tr, i, step, provider)
		if stepErr != nil {
			return r.fail(ctx, job, stepErr)
		}
		lastDiag = diag
	}

	if err := r.finalize(ctx, &job, ws, lastDiag); err != nil {
		return r.fail(ctx, job, err)
	}

	return nil
}

func (r *Runner) providerFor(job model.Job) llm.Provider {
	if job.DryRun || r.Provider == nil {
		return llm.NewDryRunProvider()
	}
	return r.Provider
}

// runPlanPhase builds the planner's base messages, runs them through the
// Context Engine, calls the CTO, persists cost/summary/plan-marker steps,
// and returns the parsed plan.
func (r *Runner) runPlanPhase(ctx context.Context, job *model.Job, cto *agents.CTO, tr *transcript.Recorder, provider llm.Provider) (*agents.PlanResponse, error) {
	section, err := r.Prompts.Section("CTO-AI")
	if err != nil {
		return nil, fmt.Errorf("loading CTO prompt section: %w", err)
	}

	base := []llm.Message{
		{Role: "system", Content: section},
		{Role: "user", Content: job.Task},
	}

	result, err := r.Engine.Build(ctx, ctxengine.Request{
		JobID:    job.ID,
		Role:     "planner-plan",
		Task:     job.Task,
		Model:    job.ModelCTO,
		Provider: provider,
	}, base)
	if err != nil {
		return nil, fmt.Errorf("building planner context: %w", err)
	}

	planResult, err := cto.Plan(ctx, result.Messages)
	if err != nil {
		_ = tr.Record(transcript.Entry{
			Time: time.Now(), Role: "cto", Model: job.ModelCTO,
			Messages: toTranscriptMessages(result.Messages),
		})
		r.recordSummary(ctx, job.ID, nil, "planner-plan", fmt.Sprintf("plan parse failed: %v", err))
		return nil, err
	}

	r.accrueCost(ctx, job, "openai", job.ModelCTO, planResult.TokensIn, planResult.TokensOut)

	_ = tr.Record(transcript.Entry{
		Time:      time.Now(),
		Role:      "cto",
		Model:     job.ModelCTO,
		Messages:  toTranscriptMessages(result.Messages),
		Response:  planResult.RawText,
		TokensIn:  planResult.TokensIn,
		TokensOut: planResult.TokensOut,
	})

	summary := summarizePlan(planResult.Plan)
	r.recordSummary(ctx, job.ID, nil, "planner-plan", summary)
	r.setLastAction(ctx, job.ID, "planned "+fmt.Sprint(len(planResult.Plan.Steps))+" steps")

	for _, step := range planResult.Plan.Steps {
		details, _ := json.Marshal(step)
		if _, err := r.Stores.JobSteps().Create(ctx, nil, model.JobStep{
			ID:       idgen.New(),
			JobID:    job.ID,
			Name:     step.Title,
			StepType: model.JobStepTypePlanned,
			Status:   model.JobStepStatusCompleted,
			Details:  details,
		}); err != nil {
			slog.WarnContext(ctx, "failed to persist plan marker step", "error", err, "job_id", job.ID)
		}
	}

	return &planResult.Plan, nil
}

func summarizePlan(plan agents.PlanResponse) string {
	titles := make([]string, 0, len(plan.Steps))
	for _, s := range plan.Steps {
		titles = append(titles, s.Title)
	}
	return "Plan: " + strings.Join(titles, "; ")
}

// prepareWorkingCopy clones/fast-forwards the target repo in non-dry-run
// jobs, or allocates a scratch directory in dry-run jobs (no Git touched).
func (r *Runner) prepareWorkingCopy(ctx context.Context, job *model.Job) (*workspace, error) {
	featureBranch := gitops.FeatureBranchName(job.ID)

	if job.DryRun {
		path := filepath.Join(r.DataDir, "dry-run", fmt.Sprint(job.ID))
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("creating dry-run scratch dir: %w", err)
		}
		if err := r.Stores.Jobs().SetFeatureBranch(ctx, nil, job.ID, featureBranch); err != nil {
			slog.WarnContext(ctx, "failed to persist feature branch", "error", err, "job_id", job.ID)
		}
		job.FeatureBranch = featureBranch
		return &workspace{Path: path, FeatureBranch: featureBranch}, nil
	}

	cloneURL := fmt.Sprintf("%s/%s/%s.git", strings.TrimSuffix(r.GitLabBaseURL, "/"), job.RepoOwner, job.RepoName)
	ws, err := r.Repo.PrepareWorkingCopy(ctx, gitops.RepoConfig{
		Owner:      job.RepoOwner,
		Name:       job.RepoName,
		BaseBranch: job.BranchBase,
		CloneURL:   cloneURL,
		Token:      r.GitLabToken,
	}, job.ID)
	if err != nil {
		return nil, err
	}

	if err := r.Stores.Jobs().SetFeatureBranch(ctx, nil, job.ID, ws.FeatureBranch); err != nil {
		slog.WarnContext(ctx, "failed to persist feature branch", "error", err, "job_id", job.ID)
	}
	job.FeatureBranch = ws.FeatureBranch
	return &workspace{Path: ws.Path, FeatureBranch: ws.FeatureBranch}, nil
}

// runStep runs the limit check, cancellation check, context build, implementer
// call, diff application, and commit for one plan step.
func (r *Runner) runStep(ctx context.Context, job *model.Job, ws *workspace, coder *agents.Coder, tr *transcript.Recorder, index int, planStep agents.PlanStep, provider llm.Provider) (model.ContextDiagnostic, error) {
	current, err := r.Stores.Jobs().Get(ctx, job.ID)
	if err != nil {
		return model.ContextDiagnostic{}, fmt.Errorf("reloading job %d: %w", job.ID, err)
	}
	*job = current

	if err := ledger.CheckLimits(*job, time.Now()); err != nil {
		return model.ContextDiagnostic{}, apperr.Wrap(ledgerErrKind(err), err)
	}

	if job.Status == model.JobStatusCancelled {
		return model.ContextDiagnostic{}, errCancelled
	}

	stepID := idgen.New()
	if _, err := r.Stores.JobSteps().Create(ctx, nil, model.JobStep{
		ID:       stepID,
		JobID:    job.ID,
		Name:     planStep.Title,
		StepType: model.JobStepTypeExecution,
		Status:   model.JobStepStatusRunning,
	}); err != nil {
		return model.ContextDiagnostic{}, fmt.Errorf("creating execution step: %w", err)
	}

	section, err := r.Prompts.Section("CODER-AI")
	if err != nil {
		return model.ContextDiagnostic{}, fmt.Errorf("loading Coder prompt section: %w", err)
	}

	taskStep, _ := json.Marshal(struct {
		Task string            `json:"task"`
		Step agents.PlanStep   `json:"step"`
	}{Task: job.Task, Step: planStep})

	base := []llm.Message{
		{Role: "system", Content: section},
		{Role: "user", Content: string(taskStep)},
	}

	ctxResult, err := r.Engine.Build(ctx, ctxengine.Request{
		JobID:    job.ID,
		StepID:   &stepID,
		Role:     "implementer-step",
		Task:     job.Task,
		RepoPath: ws.Path,
		Model:    job.ModelCoder,
		Provider: provider,
		Step: &ctxengine.PlanStep{
			Title:      planStep.Title,
			Rationale:  planStep.Rationale,
			Acceptance: planStep.Acceptance,
			Files:      planStep.Files,
			Commands:   planStep.Commands,
		},
	}, base)
	if err != nil {
		_ = r.Stores.JobSteps().UpdateStatus(ctx, nil, stepID, model.JobStepStatusFailed)
		return model.ContextDiagnostic{}, fmt.Errorf("building implementer context: %w", err)
	}

	stepResult, err := coder.Implement(ctx, ctxResult.Messages)
	if err != nil {
		_ = r.Stores.JobSteps().UpdateStatus(ctx, nil, stepID, model.JobStepStatusFailed)
		_ = tr.Record(transcript.Entry{Time: time.Now(), Role: "coder", Model: job.ModelCoder, Messages: toTranscriptMessages(ctxResult.Messages)})
		return model.ContextDiagnostic{}, apperr.Wrap(apperr.KindProvider, err)
	}

	r.accrueCost(ctx, job, "openai", job.ModelCoder, stepResult.TokensIn, stepResult.TokensOut)
	_ = tr.Record(transcript.Entry{
		Time:      time.Now(),
		Role:      "coder",
		Model:     job.ModelCoder,
		Messages:  toTranscriptMessages(ctxResult.Messages),
		Response:  stepResult.RawText,
		TokensIn:  stepResult.TokensIn,
		TokensOut: stepResult.TokensOut,
		Summary:   stepResult.Diff.Summary,
	})

	if strings.TrimSpace(stepResult.Diff.Diff) != "" {
		if _, err := diffengine.Apply(ws.Path, stepResult.Diff.Diff); err != nil {
			_ = r.Stores.JobSteps().UpdateStatus(ctx, nil, stepID, model.JobStepStatusFailed)
			return model.ContextDiagnostic{}, apperr.Wrap(apperr.KindMalformedDiff, err)
		}
		if !job.DryRun {
			commitMsg := planStep.Title + "\n\n" + stepResult.Diff.Summary
			if err := r.Repo.CommitAll(ctx, &gitops.Workspace{Path: ws.Path, FeatureBranch: ws.FeatureBranch}, commitMsg); err != nil {
				_ = r.Stores.JobSteps().UpdateStatus(ctx, nil, stepID, model.JobStepStatusFailed)
				return model.ContextDiagnostic{}, apperr.Wrap(apperr.KindGit, err)
			}
		}
	}

	details, _ := json.Marshal(stepResult.Diff)
	if err := r.Stores.JobSteps().SetDetails(ctx, nil, stepID, details); err != nil {
		slog.WarnContext(ctx, "failed to set step details", "error", err, "step_id", stepID)
	}
	if err := r.Stores.JobSteps().UpdateStatus(ctx, nil, stepID, model.JobStepStatusCompleted); err != nil {
		slog.WarnContext(ctx, "failed to complete step", "error", err, "step_id", stepID)
	}

	r.recordSummary(ctx, job.ID, &stepID, "coder-step", stepResult.Diff.Summary)
	r.setLastAction(ctx, job.ID, fmt.Sprintf("completed step %d: %s", index+1, planStep.Title))
	r.emit(ctx, events.EventJobUpdated, *job)

	return ctxResult.Diagnostic, nil
}

// finalize pushes the feature branch and opens a PR in non-dry-run jobs,
// then transitions the job to Completed.
func (r *Runner) finalize(ctx context.Context, job *model.Job, ws *workspace, lastDiag model.ContextDiagnostic) error {
	if !job.DryRun {
		if err := r.Repo.Push(ctx, &gitops.Workspace{Path: ws.Path, FeatureBranch: ws.FeatureBranch}); err != nil {
			return apperr.Wrap(apperr.KindGit, err)
		}

		if r.PR == nil {
			slog.WarnContext(ctx, "gitlab client not configured; skipping pull request", "job_id", job.ID)
		} else {
			body := renderContextReport(job, lastDiag)
			url, err := r.PR.OpenPullRequest(ctx, gitops.OpenPullRequestInput{
				ProjectPath:  job.RepoOwner + "/" + job.RepoName,
				SourceBranch: ws.FeatureBranch,
				TargetBranch: job.BranchBase,
				Title:        fmt.Sprintf("[autodev] %s", job.Task),
				Body:         body,
			})
			if err != nil {
				return apperr.Wrap(apperr.KindGit, fmt.Errorf("opening pull request: %w", err))
			}
			if err := r.Stores.Jobs().AppendPRLink(ctx, nil, job.ID, url); err != nil {
				slog.WarnContext(ctx, "failed to persist pr link", "error", err, "job_id", job.ID)
			}
			job.PRLinks = append(job.PRLinks, url)
		}
	}

	if err := r.Stores.Jobs().UpdateStatus(ctx, nil, job.ID, model.JobStatusCompleted); err != nil {
		return fmt.Errorf("completing job %d: %w", job.ID, err)
	}
	job.Status = model.JobStatusCompleted
	r.emit(ctx, events.EventJobCompleted, *job)
	return nil
}

// fail transitions job to Failed (unless it was actually a cancellation) and
// emits the matching terminal event. The original error is returned
// unwrapped so the worker's requeue/DLQ decision sees the true cause.
func (r *Runner) fail(ctx context.Context, job model.Job, err error) error {
	if err == errCancelled {
		if upErr := r.Stores.Jobs().UpdateStatus(ctx, nil, job.ID, model.JobStatusCancelled); upErr != nil {
			slog.ErrorContext(ctx, "failed to persist cancellation", "error", upErr, "job_id", job.ID)
		}
		job.Status = model.JobStatusCancelled
		r.emit(ctx, events.EventJobCancelled, job)
		return nil
	}

	if upErr := r.Stores.Jobs().UpdateStatus(ctx, nil, job.ID, model.JobStatusFailed); upErr != nil {
		slog.ErrorContext(ctx, "failed to persist job failure", "error", upErr, "job_id", job.ID)
	}
	job.Status = model.JobStatusFailed
	job.LastAction = err.Error()
	r.setLastAction(ctx, job.ID, job.LastAction)
	r.emit(ctx, events.EventJobFailed, job)

	slog.ErrorContext(ctx, "job failed", "error", err, "job_id", job.ID, "kind", apperr.KindOf(err))
	return err
}

func (r *Runner) accrueCost(ctx context.Context, job *model.Job, provider, model_ string, tokensIn, tokensOut int64) {
	price, err := r.Pricing.Get(model_)
	var cost float64
	if err == nil {
		cost = price.Cost(tokensIn, tokensOut)
	}

	if err := r.Stores.Jobs().AccrueCost(ctx, nil, job.ID, cost, tokensIn, tokensOut); err != nil {
		slog.WarnContext(ctx, "failed to accrue job cost", "error", err, "job_id", job.ID)
	}
	if _, err := r.Stores.CostEntries().Create(ctx, nil, model.CostEntry{
		ID:        idgen.New(),
		JobID:     job.ID,
		Provider:  provider,
		Model:     model_,
		TokensIn:  tokensIn,
		TokensOut: tokensOut,
		CostUSD:   cost,
	}); err != nil {
		slog.WarnContext(ctx, "failed to persist cost entry", "error", err, "job_id", job.ID)
	}

	job.CostUSD += cost
	job.TokensIn += tokensIn
	job.TokensOut += tokensOut
	job.RequestsMade++
}

func (r *Runner) recordSummary(ctx context.Context, jobID int64, stepID *int64, role, summary string) {
	if _, err := r.Stores.MessageSummaries().Create(ctx, nil, model.MessageSummary{
		ID:      idgen.New(),
		JobID:   jobID,
		StepID:  stepID,
		Role:    role,
		Summary: summary,
	}); err != nil {
		slog.WarnContext(ctx, "failed to persist message summary", "error", err, "job_id", jobID)
	}
}

func (r *Runner) setLastAction(ctx context.Context, jobID int64, action string) {
	if err := r.Stores.Jobs().SetLastAction(ctx, nil, jobID, action); err != nil {
		slog.WarnContext(ctx, "failed to set last action", "error", err, "job_id", jobID)
	}
}

func (r *Runner) emit(ctx context.Context, evtType events.EventType, job model.Job) {
	completed, total, err := r.Stores.JobSteps().CountByStatus(ctx, job.ID)
	if err != nil {
		slog.WarnContext(ctx, "failed to count job steps for event", "error", err, "job_id", job.ID)
	}
	r.Bus.Publish(ctx, events.JobEvent{Type: evtType, Payload: events.SerializeJob(job, completed, total)})
}

func toTranscriptMessages(messages []llm.Message) []transcript.Message {
	out := make([]transcript.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, transcript.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

// errCancelled is a private sentinel distinguishing "step boundary observed
// cancellation" from a real failure; fail() special-cases it.
var errCancelled = fmt.Errorf("job cancelled")

// ledgerErrKind maps a ledger sentinel to its apperr taxonomy kind so
// fail()'s logging and any future HTTP surface can classify it uniformly.
func ledgerErrKind(err error) string {
	switch {
	case errors.Is(err, ledger.ErrBudgetExceeded):
		return apperr.KindBudgetExceeded
	case errors.Is(err, ledger.ErrRequestsExceeded):
		return apperr.KindRequestsExceeded
	case errors.Is(err, ledger.ErrDeadlineExceeded):
		return apperr.KindDeadlineExceeded
	default:
		return apperr.KindValidation
	}
}

type contextReportDetails struct {
	Sources       []contextReportSource `json:"sources"`
	BudgetTokens  int                   `json:"budget_tokens"`
	HardCap       int                   `json:"hard_cap_tokens"`
	TokensFinal   int                   `json:"tokens_final"`
	CompactOps    int                   `json:"compact_ops"`
}

type contextReportSource struct {
	SourceKind string  `json:"source_kind"`
	Title      string  `json:"title"`
	Score      float64 `json:"score"`
}

// renderContextReport builds the Markdown block embedded in the PR body,
// summarizing the last context diagnostic recorded during execution.
func renderContextReport(job *model.Job, diag model.ContextDiagnostic) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## AutoDev Job %d\n\n", job.ID)
	fmt.Fprintf(&b, "Task: %s\n\n", job.Task)
	fmt.Fprintf(&b, "Cost: $%.4f · Tokens in/out: %d/%d · Requests: %d\n\n", job.CostUSD, job.TokensIn, job.TokensOut, job.RequestsMade)

	if len(diag.Details) == 0 {
		return b.String()
	}

	var details contextReportDetails
	if err := json.Unmarshal(diag.Details, &details); err != nil {
		return b.String()
	}

	b.WriteString("### Context Report\n\n")
	fmt.Fprintf(&b, "- tokens_final: %d\n", details.TokensFinal)
	fmt.Fprintf(&b, "- compact_ops: %d\n", details.CompactOps)
	fmt.Fprintf(&b, "- budget_tokens: %d (hard cap %d)\n\n", details.BudgetTokens, details.HardCap)

	sources := append([]contextReportSource(nil), details.Sources...)
	sort.Slice(sources, func(i, j int) bool { return sources[i].Score > sources[j].Score })
	if len(sources) > 5 {
		sources = sources[:5]
	}
	b.WriteString("Top sources:\n")
	for _, s := range sources {
		fmt.Fprintf(&b, "- [%s score=%.2f] %s\n", s.SourceKind, s.Score, s.Title)
	}

	return b.String()
}

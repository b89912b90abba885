package context

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"autodev.dev/orchestrator/internal/config"
	"autodev.dev/orchestrator/internal/embeddings"
	"autodev.dev/orchestrator/internal/idgen"
	"autodev.dev/orchestrator/internal/llm"
	"autodev.dev/orchestrator/internal/model"
)

// MemoryStore is the subset of internal/store's MemoryNoteStore the engine
// needs: reading notes for candidates and, in the Archivist, snapshotting
// and trimming them.
type MemoryStore interface {
	ListByJob(ctx context.Context, jobID int64) ([]model.MemoryNote, error)
	CountByJob(ctx context.Context, jobID int64) (int, error)
	Delete(ctx context.Context, id int64) error
}

// DiagnosticSink persists a ContextDiagnostic row. cmd/worker wires this to
// store.ContextDiagnosticStore.Create.
type DiagnosticSink func(ctx context.Context, d model.ContextDiagnostic) error

// Engine assembles context windows for the CTO and Coder agents.
type Engine struct {
	Memory     MemoryStore
	History    HistorySource
	Docs       DocSearcher
	EmbedProvider embeddings.Provider
	Diagnostics DiagnosticSink

	// Provider supplies the exact token count the hard cap is enforced
	// against, matching the model the built messages will actually be sent
	// to. A nil Provider falls back to the estimate heuristic.
	Provider llm.Provider

	ContextCfg  config.ContextConfig
	MemoryCfg   config.MemoryConfig
	RetrieveCfg config.RetrieveConfig
	JITEnabled  bool

	ArtifactsDir string
}

// Result is the outcome of a single Build call.
type Result struct {
	Messages   []llm.Message
	Diagnostic model.ContextDiagnostic
}

// Build runs the full gather -> curate -> compact -> select -> enforce
// pipeline and returns base messages prefixed with one synthetic context
// message.
func (e *Engine) Build(ctx context.Context, req Request, baseMessages []llm.Message) (*Result, error) {
	e.maintainArchivist(ctx, req.JobID)

	query := req.Task
	if req.Step != nil {
		query = strings.Join([]string{req.Task, req.Step.Title, req.Step.Rationale, req.Step.Acceptance}, "\n")
	}

	candidates := gatherCandidates(ctx, req, e.Memory, e.History, e.Docs, e.JITEnabled, e.RetrieveCfg.MaxFiles, e.RetrieveCfg.MaxSnippetTokens)

	var queryVec []float32
	if e.EmbedProvider != nil {
		if vecs, err := e.EmbedProvider.EmbedTexts([]string{query}); err == nil && len(vecs) == 1 {
			queryVec = vecs[0]
		}
	}

	ranked := curate(query, candidates, queryVec, e.EmbedProvider, e.ContextCfg.CuratorMinScore, e.ContextCfg.CuratorTopK)

	available := e.ContextCfg.BudgetTokens - e.ContextCfg.OutputReserveTokens
	if available < 0 {
		available = 0
	}
	threshold := int(float64(available) * e.ContextCfg.CompactThresholdRatio)
	compactOps := compact(ranked, threshold)

	selected, dropped, tokensClipped := selectWithinBudget(ranked, available)

	contextMsg, hints := renderContextMessage(selected)
	messages := append([]llm.Message{{Role: "system", Content: contextMsg}}, baseMessages...)

	provider := req.Provider
	if provider == nil {
		provider = e.Provider
	}

	messages, extraClipped := e.enforceHardCap(ctx, provider, req.Model, messages, &selected)
	tokensClipped += extraClipped

	diag := model.ContextDiagnostic{
		ID:     idgen.New(),
		JobID:  req.JobID,
		StepID: req.StepID,
	}
	details := diagnosticDetails{
		Sources:       candidateSummaries(selected),
		Dropped:       candidateSummaries(dropped),
		Hints:         hints,
		BudgetTokens:  e.ContextCfg.BudgetTokens,
		OutputReserve: e.ContextCfg.OutputReserveTokens,
		HardCap:       e.ContextCfg.HardCapTokens,
		TokensFinal:   totalProviderTokens(ctx, provider, req.Model, messages),
		TokensClipped: tokensClipped,
		CompactOps:    compactOps,
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("marshaling context diagnostic: %w", err)
	}
	diag.Details = raw

	if e.Diagnostics != nil {
		if err := e.Diagnostics(ctx, diag); err != nil {
			slog.WarnContext(ctx, "failed to persist context diagnostic", "error", err, "job_id", req.JobID)
		}
	}
	e.writeDiagnosticArtifact(req, raw)

	return &Result{Messages: messages, Diagnostic: diag}, nil
}

type diagnosticDetails struct {
	Sources       []candidateSummary `json:"sources"`
	Dropped       []candidateSummary `json:"dropped"`
	Hints         []string           `json:"hints"`
	BudgetTokens  int                `json:"budget_tokens"`
	OutputReserve int                `json:"output_reserve_tokens"`
	HardCap       int                `json:"hard_cap_tokens"`
	TokensFinal   int                `json:"tokens_final"`
	TokensClipped int                `json:"tokens_clipped"`
	CompactOps    int                `json:"compact_ops"`
}

type candidateSummary struct {
	ID         string  `json:"id"`
	SourceKind string  `json:"source_kind"`
	Title      string  `json:"title"`
	Score      float64 `json:"score"`
	Tokens     int     `json:"tokens"`
}

func candidateSummaries(cs []Candidate) []candidateSummary {
	out := make([]candidateSummary, 0, len(cs))
	for _, c := range cs {
		out = append(out, candidateSummary{ID: c.ID, SourceKind: c.SourceKind, Title: c.Title, Score: c.Score, Tokens: c.Tokens})
	}
	return out
}

// selectWithinBudget walks ranked candidates, accumulating tokens. The first
// candidate that would exceed available is truncated and kept; everything
// after is dropped.
func selectWithinBudget(ranked []Candidate, available int) (selected, dropped []Candidate, tokensClipped int) {
	used := 0
	for i, c := range ranked {
		if used+c.Tokens <= available {
			selected = append(selected, c)
			used += c.Tokens
			continue
		}

		remainingTokens := available - used
		if remainingTokens > 0 {
			c.Content = truncateToChars(c.Content, remainingTokens*4)
			c.Tokens = estimateTokens(c.Content)
			selected = append(selected, c)

			for _, rest := range ranked[i+1:] {
				tokensClipped += rest.Tokens
			}
			dropped = append(dropped, ranked[i+1:]...)
		} else {
			for _, rest := range ranked[i:] {
				tokensClipped += rest.Tokens
			}
			dropped = append(dropped, ranked[i:]...)
		}
		return selected, dropped, tokensClipped
	}
	return selected, dropped, tokensClipped
}

func renderContextMessage(selected []Candidate) (string, []string) {
	var b strings.Builder
	hints := make([]string, 0, len(selected))

	for _, c := range selected {
		fmt.Fprintf(&b, "# %s (score=%.2f) %s\n%s\n\n", c.SourceKind, c.Score, c.Title, c.Content)
		hints = append(hints, fmt.Sprintf("[%s score=%.2f] %s %s", c.SourceKind, c.Score, c.Title, firstNonEmptyLines(c.Content, 3)))
	}

	b.WriteString("Curator Hints:\n")
	for _, h := range hints {
		b.WriteString("- ")
		b.WriteString(h)
		b.WriteString("\n")
	}

	return b.String(), hints
}

func firstNonEmptyLines(content string, n int) string {
	var lines []string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		lines = append(lines, trimmed)
		if len(lines) == n {
			break
		}
	}
	return strings.Join(lines, " ")
}

// totalProviderTokens asks provider for the exact token count the target
// model will bill against, falling back to the 4-chars/token heuristic when
// no provider is wired (e.g. a test Engine).
func totalProviderTokens(ctx context.Context, provider llm.Provider, model string, messages []llm.Message) int {
	var combined strings.Builder
	for _, m := range messages {
		combined.WriteString(m.Content)
		combined.WriteString("\n")
	}

	if provider == nil {
		return int(llm.EstimateTokens(combined.String()))
	}

	n, err := provider.CountTokens(ctx, model, combined.String())
	if err != nil {
		return int(llm.EstimateTokens(combined.String()))
	}
	return int(n)
}

// enforceHardCap pops the last selected candidate and rebuilds the context
// message until the total is under hard_cap_tokens or nothing is left to
// drop.
func (e *Engine) enforceHardCap(ctx context.Context, provider llm.Provider, model string, messages []llm.Message, selected *[]Candidate) ([]llm.Message, int) {
	clipped := 0
	for totalProviderTokens(ctx, provider, model, messages) > e.ContextCfg.HardCapTokens && len(*selected) > 0 {
		last := (*selected)[len(*selected)-1]
		*selected = (*selected)[:len(*selected)-1]
		clipped += last.Tokens

		contextMsg, _ := renderContextMessage(*selected)
		messages[0] = llm.Message{Role: "system", Content: contextMsg}
	}
	return messages, clipped
}

func (e *Engine) writeDiagnosticArtifact(req Request, raw []byte) {
	dir := e.ArtifactsDir
	if dir == "" {
		dir = "artifacts"
	}
	jobDir := filepath.Join(dir, fmt.Sprintf("%d", req.JobID))
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return
	}

	tag := req.Role
	if req.StepID != nil {
		tag = fmt.Sprintf("%s-%d", req.Role, *req.StepID)
	}
	path := filepath.Join(jobDir, fmt.Sprintf("context_%s.json", tag))
	_ = os.WriteFile(path, raw, 0o644)
}

// maintainArchivist snapshots and trims a job's memory notes once they reach
// 80% of the per-job cap, keeping the 10 most recent.
func (e *Engine) maintainArchivist(ctx context.Context, jobID int64) {
	if e.Memory == nil || e.MemoryCfg.MaxItemsPerJob <= 0 {
		return
	}

	count, err := e.Memory.CountByJob(ctx, jobID)
	if err != nil || count < int(float64(e.MemoryCfg.MaxItemsPerJob)*0.8) {
		return
	}

	notes, err := e.Memory.ListByJob(ctx, jobID)
	if err != nil || len(notes) <= 10 {
		return
	}

	keepFrom := len(notes) - 10
	toSnapshot := notes[:keepFrom]

	raw, err := json.MarshalIndent(toSnapshot, "", "  ")
	if err != nil {
		return
	}

	dir := e.ArtifactsDir
	if dir == "" {
		dir = "artifacts"
	}
	jobDir := filepath.Join(dir, fmt.Sprintf("%d", jobID))
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return
	}
	path := filepath.Join(jobDir, fmt.Sprintf("memory_snapshot_%d.json", time.Now().UnixNano()))
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return
	}

	for _, n := range toSnapshot {
		_ = e.Memory.Delete(ctx, n.ID)
	}
}

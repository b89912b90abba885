package context

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"autodev.dev/orchestrator/internal/embeddings"
	"autodev.dev/orchestrator/internal/idgen"
	"autodev.dev/orchestrator/internal/llm"
	"autodev.dev/orchestrator/internal/model"
)

const (
	maxRepoFileBytes     = 50 * 1024
	maxArtifactFileBytes = 50 * 1024
	historyLimit         = 10
	externalDocLimit     = 5
)

// PlanStep is the subset of a CTO plan entry the Context Engine needs; it is
// distinct from model.JobStep, which only persists a status placeholder.
type PlanStep struct {
	Title     string   `json:"title"`
	Rationale string   `json:"rationale"`
	Acceptance string  `json:"acceptance"`
	Files     []string `json:"files,omitempty"`
	Commands  []string `json:"commands,omitempty"`
}

// Request carries everything a single Context Engine invocation needs beyond
// the injected stores.
type Request struct {
	JobID    int64
	StepID   *int64
	Role     string
	Task     string
	Step     *PlanStep
	RepoPath string

	// Model is the agent model the built messages will be sent to, used to
	// enforce the hard cap against that provider's own token accounting.
	Model string

	// Provider counts tokens for this call. It overrides Engine.Provider,
	// since a job's provider (real or dry-run) is only known per-call, while
	// the Engine itself is constructed once and shared across jobs.
	Provider llm.Provider
}

// MemoryNotesSource lists a job's stored notes, in insertion order.
type MemoryNotesSource interface {
	ListByJob(ctx context.Context, jobID int64) ([]model.MemoryNote, error)
}

// HistorySource lists a job's recent message summaries.
type HistorySource interface {
	ListByJob(ctx context.Context, jobID int64, limit int) ([]model.MessageSummary, error)
}

// DocSearcher performs similarity search over embedded reference documents.
type DocSearcher interface {
	SimilaritySearch(ctx context.Context, scope, query string, limit int) ([]embeddings.SimilarityResult, error)
}

func gatherCandidates(ctx context.Context, req Request, notes MemoryNotesSource, history HistorySource, docs DocSearcher, jitEnabled bool, maxFiles, maxSnippetTokens int) []Candidate {
	var candidates []Candidate

	candidates = append(candidates, taskCandidate(req.Task))

	if req.Step != nil {
		if c, ok := stepCandidate(req.Step); ok {
			candidates = append(candidates, c)
		}
	}

	candidates = append(candidates, memoryCandidates(ctx, req.JobID, notes)...)

	if req.RepoPath != "" {
		candidates = append(candidates, repoCandidates(req, maxFiles, maxSnippetTokens)...)
	}

	candidates = append(candidates, artifactCandidates(req.JobID)...)

	candidates = append(candidates, historyCandidates(ctx, req.JobID, history)...)

	if jitEnabled && docs != nil {
		candidates = append(candidates, externalDocCandidates(ctx, req, docs)...)
	}

	return candidates
}

func taskCandidate(task string) Candidate {
	return Candidate{
		ID:         "task",
		SourceKind: "task",
		Title:      "task",
		Content:    task,
		Tokens:     estimateTokens(task),
	}
}

func stepCandidate(step *PlanStep) (Candidate, bool) {
	body, err := json.MarshalIndent(step, "", "  ")
	if err != nil {
		return Candidate{}, false
	}
	return Candidate{
		ID:         "step",
		SourceKind: "step",
		Title:      step.Title,
		Content:    string(body),
		Tokens:     estimateTokens(string(body)),
	}, true
}

func memoryCandidates(ctx context.Context, jobID int64, notes MemoryNotesSource) []Candidate {
	if notes == nil {
		return nil
	}
	list, err := notes.ListByJob(ctx, jobID)
	if err != nil {
		return nil
	}
	out := make([]Candidate, 0, len(list))
	for _, n := range list {
		content := n.Title + "\n" + n.Body
		out = append(out, Candidate{
			ID:         fmt.Sprintf("memory-%d", n.ID),
			SourceKind: "memory",
			Title:      n.Title,
			Content:    content,
			Tokens:     estimateTokens(content),
			Metadata:   map[string]string{"note_type": n.NoteType},
		})
	}
	return out
}

func repoCandidates(req Request, maxFiles, maxSnippetTokens int) []Candidate {
	var files []string
	if req.Step != nil && len(req.Step.Files) > 0 {
		files = req.Step.Files
	} else {
		files = walkRepo(req.RepoPath, maxFiles)
	}

	maxChars := maxSnippetTokens * 4
	out := make([]Candidate, 0, len(files))
	for _, rel := range files {
		full := filepath.Join(req.RepoPath, rel)
		data, err := os.ReadFile(full)
		if err != nil {
			continue
		}
		if len(data) > maxRepoFileBytes {
			data = data[:maxRepoFileBytes]
		}
		rendered := renderWithLineNumbers(string(data))
		if len(rendered) > maxChars {
			rendered = rendered[:maxChars]
		}
		out = append(out, Candidate{
			ID:         "repo-" + rel,
			SourceKind: "repo",
			Title:      rel,
			Content:    rendered,
			Tokens:     estimateTokens(rendered),
		})
	}
	return out
}

func walkRepo(root string, maxFiles int) []string {
	var files []string
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if len(files) >= maxFiles {
			return filepath.SkipAll
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	return files
}

func renderWithLineNumbers(content string) string {
	lines := strings.Split(content, "\n")
	var b strings.Builder
	for i, line := range lines {
		fmt.Fprintf(&b, "%4d %s\n", i+1, line)
	}
	return b.String()
}

func artifactCandidates(jobID int64) []Candidate {
	dir := filepath.Join("artifacts", fmt.Sprintf("%d", jobID))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var out []Candidate
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || info.Size() > maxArtifactFileBytes {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		out = append(out, Candidate{
			ID:         "artifact-" + e.Name(),
			SourceKind: "artifact",
			Title:      e.Name(),
			Content:    string(data),
			Tokens:     estimateTokens(string(data)),
		})
	}
	return out
}

func historyCandidates(ctx context.Context, jobID int64, history HistorySource) []Candidate {
	if history == nil {
		return nil
	}
	list, err := history.ListByJob(ctx, jobID, historyLimit)
	if err != nil {
		return nil
	}
	out := make([]Candidate, 0, len(list))
	for _, m := range list {
		out = append(out, Candidate{
			ID:         fmt.Sprintf("history-%d", m.ID),
			SourceKind: "history",
			Title:      m.Role,
			Content:    m.Summary,
			Tokens:     estimateTokens(m.Summary),
		})
	}
	return out
}

func externalDocCandidates(ctx context.Context, req Request, docs DocSearcher) []Candidate {
	query := req.Task
	if req.Step != nil {
		query = strings.Join([]string{req.Task, req.Step.Title, req.Step.Rationale, req.Step.Acceptance}, "\n")
	}

	hits, err := docs.SimilaritySearch(ctx, "doc", query, externalDocLimit)
	if err != nil {
		return nil
	}

	out := make([]Candidate, 0, len(hits))
	for _, h := range hits {
		out = append(out, Candidate{
			ID:         "doc-" + h.RefID,
			SourceKind: "external_doc",
			Title:      h.RefID,
			Content:    h.Text,
			Tokens:     estimateTokens(h.Text),
		})
	}
	return out
}

// newArtifactID returns a fresh snowflake ID string for naming artifact
// files.
func newArtifactID() string {
	return idgen.NewString()
}

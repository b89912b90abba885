package store

import (
	"context"
	"encoding/json"

	"autodev.dev/orchestrator/internal/model"
)

// JobStore defines the contract for Job persistence. Its only production
// implementation is the unexported jobStore backed by pgx; tests can supply
// any other implementation in its place.
type JobStore interface {
	Create(ctx context.Context, j model.Job) (model.Job, error)
	Get(ctx context.Context, id int64) (model.Job, error)
	List(ctx context.Context, status model.JobStatus, limit, offset int) ([]model.Job, error)
	UpdateStatus(ctx context.Context, q Querier, id int64, status model.JobStatus) error
	AccrueCost(ctx context.Context, q Querier, id int64, costUSD float64, tokensIn, tokensOut int64) error
	SetLastAction(ctx context.Context, q Querier, id int64, action string) error
	SetFeatureBranch(ctx context.Context, q Querier, id int64, branch string) error
	AppendPRLink(ctx context.Context, q Querier, id int64, link string) error
}

// JobStepStore defines the contract for JobStep persistence.
type JobStepStore interface {
	Create(ctx context.Context, q Querier, step model.JobStep) (model.JobStep, error)
	Get(ctx context.Context, id int64) (model.JobStep, error)
	ListByJob(ctx context.Context, jobID int64) ([]model.JobStep, error)
	CountByStatus(ctx context.Context, jobID int64) (completed, total int, err error)
	UpdateStatus(ctx context.Context, q Querier, id int64, status model.JobStepStatus) error
	SetDetails(ctx context.Context, q Querier, id int64, details json.RawMessage) error
}

// CostEntryStore defines the contract for CostEntry persistence.
type CostEntryStore interface {
	Create(ctx context.Context, q Querier, e model.CostEntry) (model.CostEntry, error)
	ListByJob(ctx context.Context, jobID int64) ([]model.CostEntry, error)
}

// MemoryNoteStore defines the contract for MemoryNote persistence.
type MemoryNoteStore interface {
	Create(ctx context.Context, n model.MemoryNote) (model.MemoryNote, error)
	Get(ctx context.Context, id int64) (model.MemoryNote, error)
	ListByJob(ctx context.Context, jobID int64) ([]model.MemoryNote, error)
	CountByJob(ctx context.Context, jobID int64) (int, error)
	Delete(ctx context.Context, id int64) error
}

// MemoryFileStore defines the contract for MemoryFile persistence.
type MemoryFileStore interface {
	Create(ctx context.Context, f model.MemoryFile) (model.MemoryFile, error)
	Get(ctx context.Context, id int64) (model.MemoryFile, error)
	ListByJob(ctx context.Context, jobID int64) ([]model.MemoryFile, error)
}

// MessageSummaryStore defines the contract for MessageSummary persistence.
type MessageSummaryStore interface {
	Create(ctx context.Context, q Querier, m model.MessageSummary) (model.MessageSummary, error)
	ListByJob(ctx context.Context, jobID int64, limit int) ([]model.MessageSummary, error)
}

// ContextDiagnosticStore defines the contract for ContextDiagnostic persistence.
type ContextDiagnosticStore interface {
	Create(ctx context.Context, q Querier, d model.ContextDiagnostic) (model.ContextDiagnostic, error)
	ListByJob(ctx context.Context, jobID int64) ([]model.ContextDiagnostic, error)
}

// EmbeddingStore defines the contract for EmbeddingRecord persistence.
type EmbeddingStore interface {
	Upsert(ctx context.Context, rec model.EmbeddingRecord) error
	ListByScope(ctx context.Context, scope string) ([]model.EmbeddingRecord, error)
}

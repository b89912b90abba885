// Package model holds the orchestrator's persisted entity types.
package model

import (
	"encoding/json"
	"time"
)

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Job is a single autonomous development run: a task description, a target
// repository, budget ceilings, and the running totals accrued while the CTO
// and Coder agents work through it.
type Job struct {
	ID         int64
	Task       string
	RepoOwner  string
	RepoName   string
	BranchBase string

	BudgetUSD     float64
	MaxRequests   int
	MaxMinutes    int
	ModelCTO      string
	ModelCoder    string
	AgentsHash    string
	DryRun        bool

	Status       JobStatus
	CostUSD      float64
	TokensIn     int64
	TokensOut    int64
	RequestsMade int
	LastAction   string
	PRLinks      []string

	FeatureBranch string
	StartedAt     *time.Time
	FinishedAt    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Progress returns completed_steps / total_steps, matching the orchestrator's
// API contract (1.0 for a completed job with zero steps).
func Progress(status JobStatus, completed, total int) float64 {
	if total == 0 {
		if status == JobStatusCompleted {
			return 1.0
		}
		return 0.0
	}
	return float64(completed) / float64(total)
}

type JobStepType string

const (
	JobStepTypePlanned   JobStepType = "planned"
	JobStepTypeExecution JobStepType = "execution"
)

type JobStepStatus string

const (
	JobStepStatusPending   JobStepStatus = "pending"
	JobStepStatusRunning   JobStepStatus = "running"
	JobStepStatusCompleted JobStepStatus = "completed"
	JobStepStatusFailed    JobStepStatus = "failed"
)

// JobStep is one unit of the CTO's plan: either a planning-time placeholder
// (StepType planned) or the actual diff-producing execution of that step.
type JobStep struct {
	ID         int64
	JobID      int64
	Name       string
	StepType   JobStepType
	Status     JobStepStatus
	Details    json.RawMessage
	StartedAt  *time.Time
	FinishedAt *time.Time
	CreatedAt  time.Time
}

// CostEntry records one billable LLM call against a job.
type CostEntry struct {
	ID        int64
	JobID     int64
	Provider  string
	Model     string
	TokensIn  int64
	TokensOut int64
	CostUSD   float64
	CreatedAt time.Time
}

var AllowedNoteTypes = map[string]bool{
	"Decision":  true,
	"Constraint": true,
	"Todo":      true,
	"Glossary":  true,
	"Link":      true,
}

// MemoryNote is a small structured fact the CTO or Coder chose to persist
// across steps: a decision made, a constraint discovered, a todo left behind.
type MemoryNote struct {
	ID        int64
	JobID     int64
	NoteType  string
	Title     string
	Body      string
	Tags      []string
	StepID    *int64
	CreatedAt time.Time
}

// MemoryFile is an arbitrary byte blob (a generated asset, a captured log)
// attached to a job's working memory.
type MemoryFile struct {
	ID        int64
	JobID     int64
	Filename  string
	SizeBytes int64
	Path      string
	CreatedAt time.Time
}

// MessageSummary is a condensed record of one CTO/Coder exchange, used both
// for the job transcript and as a context-engine candidate source.
type MessageSummary struct {
	ID        int64
	JobID     int64
	StepID    *int64
	Role      string
	Summary   string
	CreatedAt time.Time
}

// ContextDiagnostic persists the Context Engine's bookkeeping for a single
// build_context call: candidate counts, scores, compaction stats.
type ContextDiagnostic struct {
	ID        int64
	JobID     int64
	StepID    *int64
	Details   json.RawMessage
	CreatedAt time.Time
}

// EmbeddingRecord stores one embedding vector keyed by (scope, ref_id), used
// by the external-doc context candidate producer's similarity search.
type EmbeddingRecord struct {
	ID        int64
	Scope     string
	RefID     string
	Text      string
	Vector    []float32
	CreatedAt time.Time
	UpdatedAt time.Time
}

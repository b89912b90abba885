package dto

import (
	"time"

	"autodev.dev/orchestrator/internal/model"
)

// CreateJobRequest is the body of POST /tasks. BudgetUSD, MaxRequests,
// MaxMinutes, ModelCTO and ModelCoder fall back to configured defaults when
// omitted.
type CreateJobRequest struct {
	Task        string   `json:"task" binding:"required,min=1"`
	RepoOwner   string   `json:"repo_owner" binding:"required"`
	RepoName    string   `json:"repo_name" binding:"required"`
	BranchBase  string   `json:"branch_base"`
	BudgetUSD   *float64 `json:"budgetUsd"`
	MaxRequests *int     `json:"maxRequests"`
	MaxMinutes  *int     `json:"maxMinutes"`
	ModelCTO    *string  `json:"modelCTO"`
	ModelCoder  *string  `json:"modelCoder"`
	DryRun      *bool    `json:"dry_run"`
}

type CreateJobResponse struct {
	JobID int64 `json:"job_id,string"`
}

// JobResponse is the read view of a Job returned by GET /jobs and
// GET /jobs/{id}. Job-events frames carry events.JobPayload instead.
type JobResponse struct {
	ID            int64      `json:"id,string"`
	Task          string     `json:"task"`
	RepoOwner     string     `json:"repo_owner"`
	RepoName      string     `json:"repo_name"`
	BranchBase    string     `json:"branch_base"`
	Status        string     `json:"status"`
	BudgetUSD     float64    `json:"budgetUsd"`
	MaxRequests   int        `json:"maxRequests"`
	MaxMinutes    int        `json:"maxMinutes"`
	ModelCTO      string     `json:"modelCTO"`
	ModelCoder    string     `json:"modelCoder"`
	DryRun        bool       `json:"dry_run"`
	CostUSD       float64    `json:"cost_usd"`
	TokensIn      int64      `json:"tokens_in"`
	TokensOut     int64      `json:"tokens_out"`
	RequestsMade  int        `json:"requests_made"`
	Progress      float64    `json:"progress"`
	LastAction    string     `json:"last_action"`
	PRLinks       []string   `json:"pr_links"`
	FeatureBranch string     `json:"feature_branch"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func ToJobResponse(j model.Job, completedSteps, totalSteps int) *JobResponse {
	return &JobResponse{
		ID:            j.ID,
		Task:          j.Task,
		RepoOwner:     j.RepoOwner,
		RepoName:      j.RepoName,
		BranchBase:    j.BranchBase,
		Status:        string(j.Status),
		BudgetUSD:     j.BudgetUSD,
		MaxRequests:   j.MaxRequests,
		MaxMinutes:    j.MaxMinutes,
		ModelCTO:      j.ModelCTO,
		ModelCoder:    j.ModelCoder,
		DryRun:        j.DryRun,
		CostUSD:       j.CostUSD,
		TokensIn:      j.TokensIn,
		TokensOut:     j.TokensOut,
		RequestsMade:  j.RequestsMade,
		Progress:      model.Progress(j.Status, completedSteps, totalSteps),
		LastAction:    j.LastAction,
		PRLinks:       j.PRLinks,
		FeatureBranch: j.FeatureBranch,
		StartedAt:     j.StartedAt,
		FinishedAt:    j.FinishedAt,
		CreatedAt:     j.CreatedAt,
		UpdatedAt:     j.UpdatedAt,
	}
}

type CancelJobResponse struct {
	Status string `json:"status"`
}

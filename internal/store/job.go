package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"autodev.dev/orchestrator/internal/model"
)

// jobStore persists Job rows.
type jobStore struct {
	db *DB
}

func newJobStore(db *DB) JobStore {
	return &jobStore{db: db}
}

func (s *jobStore) Create(ctx context.Context, j model.Job) (model.Job, error) {
	const q = `
		INSERT INTO jobs (
			id, task, repo_owner, repo_name, branch_base,
			budget_usd, max_requests, max_minutes, model_cto, model_coder, agents_hash, dry_run,
			status, feature_branch
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at`

	row := s.db.Pool.QueryRow(ctx, q,
		j.ID, j.Task, j.RepoOwner, j.RepoName, j.BranchBase,
		j.BudgetUSD, j.MaxRequests, j.MaxMinutes, j.ModelCTO, j.ModelCoder, j.AgentsHash, j.DryRun,
		j.Status, j.FeatureBranch,
	)
	if err := row.Scan(&j.CreatedAt, &j.UpdatedAt); err != nil {
		return model.Job{}, fmt.Errorf("creating job: %w", err)
	}
	return j, nil
}

func (s *jobStore) Get(ctx context.Context, id int64) (model.Job, error) {
	return s.get(ctx, s.db.Pool, id)
}

func (s *jobStore) get(ctx context.Context, q Querier, id int64) (model.Job, error) {
	const query = `
		SELECT id, task, repo_owner, repo_name, branch_base,
		       budget_usd, max_requests, max_minutes, model_cto, model_coder, agents_hash, dry_run,
		       status, cost_usd, tokens_in, tokens_out, requests_made, last_action, pr_links,
		       feature_branch, started_at, finished_at, created_at, updated_at
		FROM jobs WHERE id = $1`

	var j model.Job
	row := q.QueryRow(ctx, query, id)
	err := row.Scan(
		&j.ID, &j.Task, &j.RepoOwner, &j.RepoName, &j.BranchBase,
		&j.BudgetUSD, &j.MaxRequests, &j.MaxMinutes, &j.ModelCTO, &j.ModelCoder, &j.AgentsHash, &j.DryRun,
		&j.Status, &j.CostUSD, &j.TokensIn, &j.TokensOut, &j.RequestsMade, &j.LastAction, &j.PRLinks,
		&j.FeatureBranch, &j.StartedAt, &j.FinishedAt, &j.CreatedAt, &j.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Job{}, ErrNotFound
	}
	if err != nil {
		return model.Job{}, fmt.Errorf("getting job %d: %w", id, err)
	}
	return j, nil
}

// List returns jobs ordered newest-first, optionally filtered by status.
func (s *jobStore) List(ctx context.Context, status model.JobStatus, limit, offset int) ([]model.Job, error) {
	var rows pgx.Rows
	var err error

	if status == "" {
		rows, err = s.db.Pool.Query(ctx, `
			SELECT id, task, repo_owner, repo_name, branch_base,
			       budget_usd, max_requests, max_minutes, model_cto, model_coder, agents_hash, dry_run,
			       status, cost_usd, tokens_in, tokens_out, requests_made, last_action, pr_links,
			       feature_branch, started_at, finished_at, created_at, updated_at
			FROM jobs ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	} else {
		rows, err = s.db.Pool.Query(ctx, `
			SELECT id, task, repo_owner, repo_name, branch_base,
			       budget_usd, max_requests, max_minutes, model_cto, model_coder, agents_hash, dry_run,
			       status, cost_usd, tokens_in, tokens_out, requests_made, last_action, pr_links,
			       feature_branch, started_at, finished_at, created_at, updated_at
			FROM jobs WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, status, limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		var j model.Job
		if err := rows.Scan(
			&j.ID, &j.Task, &j.RepoOwner, &j.RepoName, &j.BranchBase,
			&j.BudgetUSD, &j.MaxRequests, &j.MaxMinutes, &j.ModelCTO, &j.ModelCoder, &j.AgentsHash, &j.DryRun,
			&j.Status, &j.CostUSD, &j.TokensIn, &j.TokensOut, &j.RequestsMade, &j.LastAction, &j.PRLinks,
			&j.FeatureBranch, &j.StartedAt, &j.FinishedAt, &j.CreatedAt, &j.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning job row: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// UpdateStatus transitions a job's status and timestamps in one statement.
func (s *jobStore) UpdateStatus(ctx context.Context, q Querier, id int64, status model.JobStatus) error {
	const query = `
		UPDATE jobs SET
			status = $2,
			started_at = CASE WHEN $2 = 'running' AND started_at IS NULL THEN now() ELSE started_at END,
			finished_at = CASE WHEN $2 IN ('completed', 'failed', 'cancelled') THEN now() ELSE finished_at END,
			updated_at = now()
		WHERE id = $1`
	if q == nil {
		q = s.db.Pool
	}
	_, err := q.Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("updating job %d status: %w", id, err)
	}
	return nil
}

// AccrueCost adds to a job's running cost/token/request counters.
func (s *jobStore) AccrueCost(ctx context.Context, q Querier, id int64, costUSD float64, tokensIn, tokensOut int64) error {
	const query = `
		UPDATE jobs SET
			cost_usd = cost_usd + $2,
			tokens_in = tokens_in + $3,
			tokens_out = tokens_out + $4,
			requests_made = requests_made + 1,
			updated_at = now()
		WHERE id = $1`
	if q == nil {
		q = s.db.Pool
	}
	_, err := q.Exec(ctx, query, id, costUSD, tokensIn, tokensOut)
	if err != nil {
		return fmt.Errorf("accruing cost for job %d: %w", id, err)
	}
	return nil
}

func (s *jobStore) SetLastAction(ctx context.Context, q Querier, id int64, action string) error {
	if q == nil {
		q = s.db.Pool
	}
	_, err := q.Exec(ctx, `UPDATE jobs SET last_action = $2, updated_at = now() WHERE id = $1`, id, action)
	if err != nil {
		return fmt.Errorf("setting last_action for job %d: %w", id, err)
	}
	return nil
}

func (s *jobStore) SetFeatureBranch(ctx context.Context, q Querier, id int64, branch string) error {
	if q == nil {
		q = s.db.Pool
	}
	_, err := q.Exec(ctx, `UPDATE jobs SET feature_branch = $2, updated_at = now() WHERE id = $1`, id, branch)
	if err != nil {
		return fmt.Errorf("setting feature_branch for job %d: %w", id, err)
	}
	return nil
}

func (s *jobStore) AppendPRLink(ctx context.Context, q Querier, id int64, link string) error {
	if q == nil {
		q = s.db.Pool
	}
	_, err := q.Exec(ctx, `UPDATE jobs SET pr_links = array_append(pr_links, $2), updated_at = now() WHERE id = $1`, id, link)
	if err != nil {
		return fmt.Errorf("appending pr_link for job %d: %w", id, err)
	}
	return nil
}

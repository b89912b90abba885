package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"autodev.dev/orchestrator/internal/model"
)

type jobStepStore struct {
	db *DB
}

func newJobStepStore(db *DB) JobStepStore {
	return &jobStepStore{db: db}
}

func (s *jobStepStore) Create(ctx context.Context, q Querier, step model.JobStep) (model.JobStep, error) {
	if q == nil {
		q = s.db.Pool
	}
	if step.Details == nil {
		step.Details = json.RawMessage("{}")
	}
	const query = `
		INSERT INTO job_steps (id, job_id, name, step_type, status, details)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`
	row := q.QueryRow(ctx, query, step.ID, step.JobID, step.Name, step.StepType, step.Status, step.Details)
	if err := row.Scan(&step.CreatedAt); err != nil {
		return model.JobStep{}, fmt.Errorf("creating job step: %w", err)
	}
	return step, nil
}

func (s *jobStepStore) Get(ctx context.Context, id int64) (model.JobStep, error) {
	const query = `
		SELECT id, job_id, name, step_type, status, details, started_at, finished_at, created_at
		FROM job_steps WHERE id = $1`
	var st model.JobStep
	row := s.db.Pool.QueryRow(ctx, query, id)
	err := row.Scan(&st.ID, &st.JobID, &st.Name, &st.StepType, &st.Status, &st.Details, &st.StartedAt, &st.FinishedAt, &st.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.JobStep{}, ErrNotFound
	}
	if err != nil {
		return model.JobStep{}, fmt.Errorf("getting job step %d: %w", id, err)
	}
	return st, nil
}

// ListByJob returns every step for a job, ordered by creation (plan order).
func (s *jobStepStore) ListByJob(ctx context.Context, jobID int64) ([]model.JobStep, error) {
	const query = `
		SELECT id, job_id, name, step_type, status, details, started_at, finished_at, created_at
		FROM job_steps WHERE job_id = $1 ORDER BY id ASC`
	rows, err := s.db.Pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("listing job steps for job %d: %w", jobID, err)
	}
	defer rows.Close()

	var steps []model.JobStep
	for rows.Next() {
		var st model.JobStep
		if err := rows.Scan(&st.ID, &st.JobID, &st.Name, &st.StepType, &st.Status, &st.Details, &st.StartedAt, &st.FinishedAt, &st.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning job step row: %w", err)
		}
		steps = append(steps, st)
	}
	return steps, rows.Err()
}

// CountByStatus is used by Job.Progress to report completed/total steps.
func (s *jobStepStore) CountByStatus(ctx context.Context, jobID int64) (completed, total int, err error) {
	const query = `
		SELECT count(*) FILTER (WHERE status = 'completed'), count(*)
		FROM job_steps WHERE job_id = $1 AND step_type = 'execution'`
	row := s.db.Pool.QueryRow(ctx, query, jobID)
	if err := row.Scan(&completed, &total); err != nil {
		return 0, 0, fmt.Errorf("counting job steps for job %d: %w", jobID, err)
	}
	return completed, total, nil
}

func (s *jobStepStore) UpdateStatus(ctx context.Context, q Querier, id int64, status model.JobStepStatus) error {
	if q == nil {
		q = s.db.Pool
	}
	const query = `
		UPDATE job_steps SET
			status = $2,
			started_at = CASE WHEN $2 = 'running' AND started_at IS NULL THEN now() ELSE started_at END,
			finished_at = CASE WHEN $2 IN ('completed', 'failed') THEN now() ELSE finished_at END
		WHERE id = $1`
	_, err := q.Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("updating job step %d status: %w", id, err)
	}
	return nil
}

func (s *jobStepStore) SetDetails(ctx context.Context, q Querier, id int64, details json.RawMessage) error {
	if q == nil {
		q = s.db.Pool
	}
	_, err := q.Exec(ctx, `UPDATE job_steps SET details = $2 WHERE id = $1`, id, details)
	if err != nil {
		return fmt.Errorf("setting details for job step %d: %w", id, err)
	}
	return nil
}

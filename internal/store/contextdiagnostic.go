package store

import (
	"context"
	"fmt"

	"autodev.dev/orchestrator/internal/model"
)

type contextDiagnosticStore struct {
	db *DB
}

func newContextDiagnosticStore(db *DB) ContextDiagnosticStore {
	return &contextDiagnosticStore{db: db}
}

func (s *contextDiagnosticStore) Create(ctx context.Context, q Querier, d model.ContextDiagnostic) (model.ContextDiagnostic, error) {
	if q == nil {
		q = s.db.Pool
	}
	const query = `
		INSERT INTO context_diagnostics (id, job_id, step_id, details)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`
	row := q.QueryRow(ctx, query, d.ID, d.JobID, d.StepID, d.Details)
	if err := row.Scan(&d.CreatedAt); err != nil {
		return model.ContextDiagnostic{}, fmt.Errorf("creating context diagnostic: %w", err)
	}
	return d, nil
}

func (s *contextDiagnosticStore) ListByJob(ctx context.Context, jobID int64) ([]model.ContextDiagnostic, error) {
	const query = `
		SELECT id, job_id, step_id, details, created_at
		FROM context_diagnostics WHERE job_id = $1 ORDER BY created_at ASC`
	rows, err := s.db.Pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("listing context diagnostics for job %d: %w", jobID, err)
	}
	defer rows.Close()

	var diags []model.ContextDiagnostic
	for rows.Next() {
		var d model.ContextDiagnostic
		if err := rows.Scan(&d.ID, &d.JobID, &d.StepID, &d.Details, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning context diagnostic row: %w", err)
		}
		diags = append(diags, d)
	}
	return diags, rows.Err()
}

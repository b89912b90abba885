package store

import (
	"context"
	"fmt"

	"autodev.dev/orchestrator/internal/model"
)

type messageSummaryStore struct {
	db *DB
}

func newMessageSummaryStore(db *DB) MessageSummaryStore {
	return &messageSummaryStore{db: db}
}

func (s *messageSummaryStore) Create(ctx context.Context, q Querier, m model.MessageSummary) (model.MessageSummary, error) {
	if q == nil {
		q = s.db.Pool
	}
	const query = `
		INSERT INTO message_summaries (id, job_id, step_id, role, summary)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`
	row := q.QueryRow(ctx, query, m.ID, m.JobID, m.StepID, m.Role, m.Summary)
	if err := row.Scan(&m.CreatedAt); err != nil {
		return model.MessageSummary{}, fmt.Errorf("creating message summary: %w", err)
	}
	return m, nil
}

// ListByJob returns message summaries for a job, newest last, optionally
// limited to the most recent `limit` entries (0 means unlimited). Used by
// the context engine's history candidate producer.
func (s *messageSummaryStore) ListByJob(ctx context.Context, jobID int64, limit int) ([]model.MessageSummary, error) {
	query := `
		SELECT id, job_id, step_id, role, summary, created_at
		FROM message_summaries WHERE job_id = $1 ORDER BY created_at DESC`
	args := []any{jobID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing message summaries for job %d: %w", jobID, err)
	}
	defer rows.Close()

	var summaries []model.MessageSummary
	for rows.Next() {
		var m model.MessageSummary
		if err := rows.Scan(&m.ID, &m.JobID, &m.StepID, &m.Role, &m.Summary, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message summary row: %w", err)
		}
		summaries = append(summaries, m)
	}

	// reverse to chronological order
	for i, j := 0, len(summaries)-1; i < j; i, j = i+1, j-1 {
		summaries[i], summaries[j] = summaries[j], summaries[i]
	}
	return summaries, rows.Err()
}

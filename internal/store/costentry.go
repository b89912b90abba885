package store

import (
	"context"
	"fmt"

	"autodev.dev/orchestrator/internal/model"
)

type costEntryStore struct {
	db *DB
}

func newCostEntryStore(db *DB) CostEntryStore {
	return &costEntryStore{db: db}
}

func (s *costEntryStore) Create(ctx context.Context, q Querier, e model.CostEntry) (model.CostEntry, error) {
	if q == nil {
		q = s.db.Pool
	}
	const query = `
		INSERT INTO cost_entries (id, job_id, provider, model, tokens_in, tokens_out, cost_usd)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`
	row := q.QueryRow(ctx, query, e.ID, e.JobID, e.Provider, e.Model, e.TokensIn, e.TokensOut, e.CostUSD)
	if err := row.Scan(&e.CreatedAt); err != nil {
		return model.CostEntry{}, fmt.Errorf("creating cost entry: %w", err)
	}
	return e, nil
}

func (s *costEntryStore) ListByJob(ctx context.Context, jobID int64) ([]model.CostEntry, error) {
	const query = `
		SELECT id, job_id, provider, model, tokens_in, tokens_out, cost_usd, created_at
		FROM cost_entries WHERE job_id = $1 ORDER BY created_at ASC`
	rows, err := s.db.Pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("listing cost entries for job %d: %w", jobID, err)
	}
	defer rows.Close()

	var entries []model.CostEntry
	for rows.Next() {
		var e model.CostEntry
		if err := rows.Scan(&e.ID, &e.JobID, &e.Provider, &e.Model, &e.TokensIn, &e.TokensOut, &e.CostUSD, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning cost entry row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"autodev.dev/orchestrator/internal/model"
)

type memoryNoteStore struct {
	db *DB
}

func newMemoryNoteStore(db *DB) MemoryNoteStore {
	return &memoryNoteStore{db: db}
}

func (s *memoryNoteStore) Create(ctx context.Context, n model.MemoryNote) (model.MemoryNote, error) {
	const query = `
		INSERT INTO memory_notes (id, job_id, note_type, title, body, tags, step_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`
	row := s.db.Pool.QueryRow(ctx, query, n.ID, n.JobID, n.NoteType, n.Title, n.Body, n.Tags, n.StepID)
	if err := row.Scan(&n.CreatedAt); err != nil {
		return model.MemoryNote{}, fmt.Errorf("creating memory note: %w", err)
	}
	return n, nil
}

func (s *memoryNoteStore) Get(ctx context.Context, id int64) (model.MemoryNote, error) {
	const query = `
		SELECT id, job_id, note_type, title, body, tags, step_id, created_at
		FROM memory_notes WHERE id = $1`
	var n model.MemoryNote
	row := s.db.Pool.QueryRow(ctx, query, id)
	err := row.Scan(&n.ID, &n.JobID, &n.NoteType, &n.Title, &n.Body, &n.Tags, &n.StepID, &n.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.MemoryNote{}, ErrNotFound
	}
	if err != nil {
		return model.MemoryNote{}, fmt.Errorf("getting memory note %d: %w", id, err)
	}
	return n, nil
}

func (s *memoryNoteStore) ListByJob(ctx context.Context, jobID int64) ([]model.MemoryNote, error) {
	const query = `
		SELECT id, job_id, note_type, title, body, tags, step_id, created_at
		FROM memory_notes WHERE job_id = $1 ORDER BY created_at ASC`
	rows, err := s.db.Pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("listing memory notes for job %d: %w", jobID, err)
	}
	defer rows.Close()

	var notes []model.MemoryNote
	for rows.Next() {
		var n model.MemoryNote
		if err := rows.Scan(&n.ID, &n.JobID, &n.NoteType, &n.Title, &n.Body, &n.Tags, &n.StepID, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning memory note row: %w", err)
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

func (s *memoryNoteStore) CountByJob(ctx context.Context, jobID int64) (int, error) {
	var count int
	row := s.db.Pool.QueryRow(ctx, `SELECT count(*) FROM memory_notes WHERE job_id = $1`, jobID)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("counting memory notes for job %d: %w", jobID, err)
	}
	return count, nil
}

func (s *memoryNoteStore) Delete(ctx context.Context, id int64) error {
	tag, err := s.db.Pool.Exec(ctx, `DELETE FROM memory_notes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting memory note %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

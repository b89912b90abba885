package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"autodev.dev/orchestrator/internal/model"
)

type memoryFileStore struct {
	db *DB
}

func newMemoryFileStore(db *DB) MemoryFileStore {
	return &memoryFileStore{db: db}
}

func (s *memoryFileStore) Create(ctx context.Context, f model.MemoryFile) (model.MemoryFile, error) {
	const query = `
		INSERT INTO memory_files (id, job_id, filename, size_bytes, path)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`
	row := s.db.Pool.QueryRow(ctx, query, f.ID, f.JobID, f.Filename, f.SizeBytes, f.Path)
	if err := row.Scan(&f.CreatedAt); err != nil {
		return model.MemoryFile{}, fmt.Errorf("creating memory file: %w", err)
	}
	return f, nil
}

func (s *memoryFileStore) Get(ctx context.Context, id int64) (model.MemoryFile, error) {
	const query = `
		SELECT id, job_id, filename, size_bytes, path, created_at
		FROM memory_files WHERE id = $1`
	var f model.MemoryFile
	row := s.db.Pool.QueryRow(ctx, query, id)
	err := row.Scan(&f.ID, &f.JobID, &f.Filename, &f.SizeBytes, &f.Path, &f.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.MemoryFile{}, ErrNotFound
	}
	if err != nil {
		return model.MemoryFile{}, fmt.Errorf("getting memory file %d: %w", id, err)
	}
	return f, nil
}

func (s *memoryFileStore) ListByJob(ctx context.Context, jobID int64) ([]model.MemoryFile, error) {
	const query = `
		SELECT id, job_id, filename, size_bytes, path, created_at
		FROM memory_files WHERE job_id = $1 ORDER BY created_at ASC`
	rows, err := s.db.Pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("listing memory files for job %d: %w", jobID, err)
	}
	defer rows.Close()

	var files []model.MemoryFile
	for rows.Next() {
		var f model.MemoryFile
		if err := rows.Scan(&f.ID, &f.JobID, &f.Filename, &f.SizeBytes, &f.Path, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning memory file row: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

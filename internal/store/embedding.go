package store

import (
	"context"
	"fmt"

	"autodev.dev/orchestrator/internal/idgen"
	"autodev.dev/orchestrator/internal/model"
)

// embeddingStore implements embeddings.Repository against Postgres.
type embeddingStore struct {
	db *DB
}

func newEmbeddingStore(db *DB) EmbeddingStore {
	return &embeddingStore{db: db}
}

// Upsert inserts a new embedding row or replaces the vector/text for an
// existing (scope, ref_id) pair.
func (s *embeddingStore) Upsert(ctx context.Context, rec model.EmbeddingRecord) error {
	const query = `
		INSERT INTO embeddings (id, scope, ref_id, text, vector)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (scope, ref_id) DO UPDATE SET
			text = EXCLUDED.text,
			vector = EXCLUDED.vector,
			updated_at = now()`
	id := rec.ID
	if id == 0 {
		id = idgen.New()
	}
	_, err := s.db.Pool.Exec(ctx, query, id, rec.Scope, rec.RefID, rec.Text, rec.Vector)
	if err != nil {
		return fmt.Errorf("upserting embedding %s/%s: %w", rec.Scope, rec.RefID, err)
	}
	return nil
}

func (s *embeddingStore) ListByScope(ctx context.Context, scope string) ([]model.EmbeddingRecord, error) {
	const query = `
		SELECT id, scope, ref_id, text, vector, created_at, updated_at
		FROM embeddings WHERE scope = $1`
	rows, err := s.db.Pool.Query(ctx, query, scope)
	if err != nil {
		return nil, fmt.Errorf("listing embeddings for scope %s: %w", scope, err)
	}
	defer rows.Close()

	var recs []model.EmbeddingRecord
	for rows.Next() {
		var r model.EmbeddingRecord
		if err := rows.Scan(&r.ID, &r.Scope, &r.RefID, &r.Text, &r.Vector, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning embedding row: %w", err)
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

package embeddings

import (
	"context"
	"fmt"
	"sort"

	"autodev.dev/orchestrator/internal/model"
)

// Repository persists embedding records. internal/store provides the
// Postgres-backed implementation; this interface exists so the context
// engine's external-doc producer can be tested against an in-memory fake.
type Repository interface {
	Upsert(ctx context.Context, rec model.EmbeddingRecord) error
	ListByScope(ctx context.Context, scope string) ([]model.EmbeddingRecord, error)
}

// Store combines a Provider with a Repository to support adding documents
// and running similarity search over a scope (e.g. "doc").
type Store struct {
	repo     Repository
	provider Provider
}

func NewStore(repo Repository, provider Provider) *Store {
	return &Store{repo: repo, provider: provider}
}

// AddDocument embeds text and upserts it keyed by (scope, refID).
func (s *Store) AddDocument(ctx context.Context, scope, refID, text string) error {
	vectors, err := s.provider.EmbedTexts([]string{text})
	if err != nil {
		return fmt.Errorf("embedding document: %w", err)
	}
	return s.repo.Upsert(ctx, model.EmbeddingRecord{
		Scope:  scope,
		RefID:  refID,
		Text:   text,
		Vector: vectors[0],
	})
}

// SimilarityResult is one ranked hit from SimilaritySearch.
type SimilarityResult struct {
	RefID string
	Score float64
	Text  string
}

// SimilaritySearch embeds query and returns the top `limit` records in scope
// ranked by cosine similarity, highest first.
func (s *Store) SimilaritySearch(ctx context.Context, scope, query string, limit int) ([]SimilarityResult, error) {
	vectors, err := s.provider.EmbedTexts([]string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	queryVec := vectors[0]

	records, err := s.repo.ListByScope(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("listing embeddings for scope %s: %w", scope, err)
	}

	results := make([]SimilarityResult, 0, len(records))
	for _, rec := range records {
		results = append(results, SimilarityResult{
			RefID: rec.RefID,
			Score: CosineSimilarity(queryVec, rec.Vector),
			Text:  rec.Text,
		})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

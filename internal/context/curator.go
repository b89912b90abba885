package context

import (
	"sort"
	"strings"

	"autodev.dev/orchestrator/internal/embeddings"
)

const (
	bm25K1 = 1.2
	bm25B  = 0.25

	lexWeight = 0.6
	cosWeight = 0.4
)

func tokenize(s string) []string {
	return strings.Fields(strings.ToLower(s))
}

// lexScore is a BM25-lite score with no corpus statistics: avg|doc| is taken
// to be |doc| itself, so the length-normalization term always equals 1 and
// the formula reduces to (k1+1)*tf / (tf+k1).
func lexScore(queryTokens []string, doc string) float64 {
	docTokens := tokenize(doc)
	if len(docTokens) == 0 || len(queryTokens) == 0 {
		return 0
	}

	tf := make(map[string]int, len(docTokens))
	for _, t := range docTokens {
		tf[t]++
	}

	var score float64
	for _, qt := range queryTokens {
		count := tf[qt]
		if count == 0 {
			continue
		}
		score += (bm25K1 + 1) * float64(count) / (float64(count) + bm25K1)
	}
	return score
}

// curate ranks candidates by a lexical+semantic blend, drops anything below
// minScore, and keeps the top topK.
func curate(query string, candidates []Candidate, queryVec []float32, embedProvider embeddings.Provider, minScore float64, topK int) []Candidate {
	queryTokens := tokenize(query)

	for i := range candidates {
		lex := lexScore(queryTokens, candidates[i].Content)

		var cos float64
		if embedProvider != nil && len(queryVec) > 0 {
			vecs, err := embedProvider.EmbedTexts([]string{candidates[i].Content})
			if err == nil && len(vecs) == 1 {
				cos = embeddings.CosineSimilarity(queryVec, vecs[0])
			}
		}

		candidates[i].Score = lexWeight*lex + cosWeight*cos
	}

	filtered := candidates[:0]
	for _, c := range candidates {
		if c.Score >= minScore {
			filtered = append(filtered, c)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].Score > filtered[j].Score })

	if topK > 0 && len(filtered) > topK {
		filtered = filtered[:topK]
	}
	return filtered
}

package usecase

import (
	"sort"

	"github.com/kirillkom/docstack/internal/core/domain"
)

// rerank applies the stricter similarity gate, orders best-first, and
// caps the context size. The sort is stable so equal scores keep their
// original retrieval order. This is a deliberate score-threshold pass,
// not a learned reranker.
func rerank(candidates []domain.ScoredChunk, threshold float64, topK int) []domain.ScoredChunk {
	if topK <= 0 {
		return nil
	}

	kept := make([]domain.ScoredChunk, 0, len(candidates))
	for _, c := range candidates {
		if c.Similarity >= threshold {
			kept = append(kept, c)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Similarity > kept[j].Similarity
	})

	if len(kept) > topK {
		kept = kept[:topK]
	}
	return kept
}

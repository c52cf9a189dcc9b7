package rag

import (
	"context"
	"sort"

	"arx/model"
	"arx/types"
)

// Rerank reorders candidates by query relevance and returns the top
// topK. With enabled false it is the cheap path: the first topK
// candidates pass through unchanged. Ties keep the original retrieval
// order. An empty candidate list returns empty, never an error.
func Rerank(ctx context.Context, scorer model.Scorer, query string, candidates []types.ScoredChunk, topK int, enabled bool) ([]types.ScoredChunk, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	if topK <= 0 || topK > len(candidates) {
		topK = len(candidates)
	}

	if !enabled {
		return candidates[:topK], nil
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Text
	}

	scores, err := scorer.Score(ctx, query, texts)
	if err != nil {
		return nil, err
	}

	ranked := make([]types.ScoredChunk, len(candidates))
	copy(ranked, candidates)
	for i := range ranked {
		ranked[i].Score = scores[i]
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked[:topK], nil
}

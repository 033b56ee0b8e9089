package search

import (
	"context"

	"hybridmail/internal/concurrency"
)

const (
	rerankTopN           = 30
	rerankBatchSize      = 10
	rerankSnippetMaxChar = 200
	rerankNeutral        = 0.5
)

// RerankModel scores a single candidate's relevance to a query.
type RerankModel interface {
	RerankScore(ctx context.Context, query, subject, snippet string) float64
}

// rerank scores the top 30 fused candidates against the original query, at
// most 10 concurrent model calls at a time. Candidates beyond the top 30
// are dropped, per the pipeline's scope.
func rerank(ctx context.Context, model RerankModel, query string, candidates []candidate) []candidate {
	if len(candidates) > rerankTopN {
		candidates = candidates[:rerankTopN]
	}
	out := make([]candidate, len(candidates))
	copy(out, candidates)

	_ = concurrency.ForEachBounded(ctx, len(out), rerankBatchSize, func(ctx context.Context, i int) error {
		snippet := out[i].snippet
		if len(snippet) > rerankSnippetMaxChar {
			snippet = snippet[:rerankSnippetMaxChar]
		}
		out[i].rerank = safeRerankScore(ctx, model, query, out[i].subject, snippet)
		return nil
	})
	return out
}

// safeRerankScore falls back to the neutral default on any panic-free model
// failure path; RerankModel implementations already return 0.5 on call or
// parse failure, so this is a direct pass-through kept as the single call
// site the blend stage's error taxonomy entry refers to.
func safeRerankScore(ctx context.Context, model RerankModel, query, subject, snippet string) float64 {
	if model == nil {
		return rerankNeutral
	}
	return model.RerankScore(ctx, query, subject, snippet)
}

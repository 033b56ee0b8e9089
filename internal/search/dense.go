package search

import (
	"context"
	"math"
	"sort"

	"hybridmail/internal/tenant"
	"hybridmail/internal/vectorstore"
)

const denseTopK = 100

// DenseStore is the port the dense retrieval stage queries.
type DenseStore interface {
	Query(ctx context.Context, scope tenant.Scope, embedding []float32, k int) ([]vectorstore.Match, error)
}

// Verifier re-checks vector-store hits against the relational store, the
// anti-staleness defense against metadata that outlives a deleted message.
type Verifier interface {
	VerifyTenantMessageIDs(ctx context.Context, scope tenant.Scope, ids []int64) (map[int64]bool, error)
}

// Embedder produces the query embeddings the dense branch searches with.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// denseRetrieve embeds each query variant, queries the vector store for
// each, deduplicates by message id keeping the best raw score, verifies
// tenant ownership against the relational store, and returns candidates
// ranked best-first with scores normalized to [0,1].
func denseRetrieve(ctx context.Context, store DenseStore, verifier Verifier, embedder Embedder, scope tenant.Scope, variants []string) ([]candidate, error) {
	embeddings, err := embedder.EmbedBatch(ctx, variants)
	if err != nil {
		return nil, nil // model error: dropped here, not returned or logged; the search continues lexical-only
	}

	best := make(map[int64]vectorstore.Match)
	for _, emb := range embeddings {
		matches, err := store.Query(ctx, scope, emb, denseTopK)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			if existing, ok := best[m.MessageID]; !ok || m.Score > existing.Score {
				best[m.MessageID] = m
			}
		}
	}
	if len(best) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(best))
	for id := range best {
		ids = append(ids, id)
	}
	verified, err := verifier.VerifyTenantMessageIDs(ctx, scope, ids)
	if err != nil {
		return nil, err
	}

	matches := make([]vectorstore.Match, 0, len(best))
	for id, m := range best {
		if m.Metadata.TenantID != scope.ID() || !verified[id] {
			continue
		}
		matches = append(matches, m)
	}
	if len(matches) == 0 {
		return nil, nil
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })

	minS, maxS := math.Inf(1), math.Inf(-1)
	for _, m := range matches {
		if m.Score < minS {
			minS = m.Score
		}
		if m.Score > maxS {
			maxS = m.Score
		}
	}
	spread := maxS - minS

	out := make([]candidate, len(matches))
	for i, m := range matches {
		rank := i
		norm := 1.0
		if spread > 0 {
			norm = (m.Score - minS) / spread
		}
		out[i] = candidate{
			messageID:  m.MessageID,
			subject:    m.Metadata.Subject,
			fromEmail:  m.Metadata.FromEmail,
			sentAt:     m.Metadata.SentAt,
			denseRank:  &rank,
			denseScore: norm,
		}
	}
	return out, nil
}

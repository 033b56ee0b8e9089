package search

import (
	"context"
	"testing"

	"hybridmail/internal/domain"
	"hybridmail/internal/tenant"
	"hybridmail/internal/vectorstore"
)

type fakeDenseStore struct {
	matches []vectorstore.Match
}

func (f *fakeDenseStore) Query(ctx context.Context, scope tenant.Scope, embedding []float32, k int) ([]vectorstore.Match, error) {
	return f.matches, nil
}

type fakeVerifier struct {
	verified map[int64]bool
}

func (f *fakeVerifier) VerifyTenantMessageIDs(ctx context.Context, scope tenant.Scope, ids []int64) (map[int64]bool, error) {
	out := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if f.verified[id] {
			out[id] = true
		}
	}
	return out, nil
}

type fakeEmbedder struct{ calls int }

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}

func TestDenseRetrieve_DedupKeepsMaxScore(t *testing.T) {
	store := &fakeDenseStore{matches: []vectorstore.Match{
		{MessageID: 1, Score: 0.5, Metadata: domain.VectorMetadata{TenantID: "tenant-a", MessageID: 1}},
		{MessageID: 1, Score: 0.9, Metadata: domain.VectorMetadata{TenantID: "tenant-a", MessageID: 1}},
		{MessageID: 2, Score: 0.3, Metadata: domain.VectorMetadata{TenantID: "tenant-a", MessageID: 2}},
	}}
	verifier := &fakeVerifier{verified: map[int64]bool{1: true, 2: true}}
	embedder := &fakeEmbedder{}

	candidates, err := denseRetrieve(context.Background(), store, verifier, embedder, tenantA, []string{"pricing"})
	if err != nil {
		t.Fatalf("denseRetrieve: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("expected 2 deduped candidates, got %d", len(candidates))
	}
	if candidates[0].messageID != 1 || *candidates[0].denseRank != 0 {
		t.Errorf("expected message 1 (kept max score 0.9) ranked first, got %+v", candidates[0])
	}
	if candidates[0].denseScore != 1.0 {
		t.Errorf("best dense score = %v, want 1.0", candidates[0].denseScore)
	}
}

func TestDenseRetrieve_DropsUnverifiedTenantMatches(t *testing.T) {
	store := &fakeDenseStore{matches: []vectorstore.Match{
		{MessageID: 1, Score: 0.9, Metadata: domain.VectorMetadata{TenantID: "tenant-a", MessageID: 1}},
		{MessageID: 2, Score: 0.8, Metadata: domain.VectorMetadata{TenantID: "tenant-a", MessageID: 2}},
	}}
	// Message 2's vector metadata claims tenant-a but the relational store
	// no longer agrees (stale metadata after deletion) — must be dropped.
	verifier := &fakeVerifier{verified: map[int64]bool{1: true}}
	embedder := &fakeEmbedder{}

	candidates, err := denseRetrieve(context.Background(), store, verifier, embedder, tenantA, []string{"pricing"})
	if err != nil {
		t.Fatalf("denseRetrieve: %v", err)
	}
	if len(candidates) != 1 || candidates[0].messageID != 1 {
		t.Fatalf("expected only message 1 to survive verification, got %+v", candidates)
	}
}

func TestDenseRetrieve_DropsCrossTenantMetadata(t *testing.T) {
	store := &fakeDenseStore{matches: []vectorstore.Match{
		{MessageID: 1, Score: 0.9, Metadata: domain.VectorMetadata{TenantID: "tenant-b", MessageID: 1}},
	}}
	verifier := &fakeVerifier{verified: map[int64]bool{1: true}}
	embedder := &fakeEmbedder{}

	candidates, err := denseRetrieve(context.Background(), store, verifier, embedder, tenantA, []string{"pricing"})
	if err != nil {
		t.Fatalf("denseRetrieve: %v", err)
	}
	if len(candidates) != 0 {
		t.Errorf("expected cross-tenant metadata to be dropped, got %+v", candidates)
	}
}

func TestDenseRetrieve_EmbedFailureYieldsNoCandidatesNotError(t *testing.T) {
	store := &fakeDenseStore{}
	verifier := &fakeVerifier{}
	candidates, err := denseRetrieve(context.Background(), store, verifier, failingEmbedder{}, tenantA, []string{"pricing"})
	if err != nil {
		t.Fatalf("expected embed failure to be absorbed, got error: %v", err)
	}
	if candidates != nil {
		t.Errorf("expected no candidates, got %+v", candidates)
	}
}

type failingEmbedder struct{}

func (failingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errEmbed
}

type embedErr struct{}

func (*embedErr) Error() string { return "embed failed" }

var errEmbed = &embedErr{}

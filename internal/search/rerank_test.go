package search

import (
	"context"
	"sync"
	"testing"
)

type fakeRerankModel struct {
	mu    sync.Mutex
	calls int
	score func(query, subject, snippet string) float64
}

func (f *fakeRerankModel) RerankScore(ctx context.Context, query, subject, snippet string) float64 {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.score(query, subject, snippet)
}

func TestRerank_ScoresEachCandidate(t *testing.T) {
	model := &fakeRerankModel{score: func(query, subject, snippet string) float64 { return 0.8 }}
	candidates := []candidate{{messageID: 1, subject: "pricing update"}, {messageID: 2, subject: "lunch"}}

	out := rerank(context.Background(), model, "pricing", candidates)
	if len(out) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(out))
	}
	for _, c := range out {
		if c.rerank != 0.8 {
			t.Errorf("candidate %d rerank = %v, want 0.8", c.messageID, c.rerank)
		}
	}
	if model.calls != 2 {
		t.Errorf("expected 2 model calls, got %d", model.calls)
	}
}

func TestRerank_TruncatesToTop30(t *testing.T) {
	model := &fakeRerankModel{score: func(query, subject, snippet string) float64 { return 0.5 }}
	candidates := make([]candidate, 40)
	for i := range candidates {
		candidates[i] = candidate{messageID: int64(i)}
	}

	out := rerank(context.Background(), model, "pricing", candidates)
	if len(out) != rerankTopN {
		t.Fatalf("expected %d candidates, got %d", rerankTopN, len(out))
	}
	if model.calls != rerankTopN {
		t.Errorf("expected %d model calls, got %d", rerankTopN, model.calls)
	}
}

func TestRerank_NilModelUsesNeutralDefault(t *testing.T) {
	candidates := []candidate{{messageID: 1}}
	out := rerank(context.Background(), nil, "pricing", candidates)
	if out[0].rerank != rerankNeutral {
		t.Errorf("rerank = %v, want neutral default %v", out[0].rerank, rerankNeutral)
	}
}

func TestRerank_TruncatesSnippetTo200Chars(t *testing.T) {
	longSnippet := make([]byte, 500)
	for i := range longSnippet {
		longSnippet[i] = 'x'
	}
	var seenLen int
	model := &fakeRerankModel{score: func(query, subject, snippet string) float64 {
		seenLen = len(snippet)
		return 0.5
	}}
	candidates := []candidate{{messageID: 1, snippet: string(longSnippet)}}
	rerank(context.Background(), model, "pricing", candidates)
	if seenLen != rerankSnippetMaxChar {
		t.Errorf("snippet passed to model had length %d, want %d", seenLen, rerankSnippetMaxChar)
	}
}

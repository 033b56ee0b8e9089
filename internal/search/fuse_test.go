package search

import (
	"math"
	"testing"
)

func intp(i int) *int { return &i }

func approxEqual(a, b, eps float64) bool { return math.Abs(a-b) <= eps }

func TestFuse_RRFFormula(t *testing.T) {
	dense := []candidate{
		{messageID: 1, denseRank: intp(0), denseScore: 1.0},
	}
	fused := fuse(nil, dense)
	if len(fused) != 1 {
		t.Fatalf("expected 1 fused candidate, got %d", len(fused))
	}
	// rank 0 in a single branch: rrf = 1/(60+0+1) = 1/61, plus the +0.05
	// top-rank bonus since it is also the sole (and therefore top) result.
	want := 1.0/61.0 + 0.05
	if !approxEqual(fused[0].rrf, want, 1e-9) {
		t.Errorf("rrf = %v, want %v", fused[0].rrf, want)
	}
}

func TestFuse_ContributionFromBothBranches(t *testing.T) {
	lexical := []candidate{{messageID: 1, lexRank: intp(1), lexScore: 0.6}}
	dense := []candidate{{messageID: 1, denseRank: intp(2), denseScore: 0.7}}
	fused := fuse(lexical, dense)
	if len(fused) != 1 {
		t.Fatalf("expected 1 merged candidate, got %d", len(fused))
	}
	want := 1.0/(60+1+1) + 1.0/(60+2+1) + 0.05 // sole result also gets the top bonus
	if !approxEqual(fused[0].rrf, want, 1e-9) {
		t.Errorf("rrf = %v, want %v", fused[0].rrf, want)
	}
	if fused[0].lexScore != 0.6 || fused[0].denseScore != 0.7 {
		t.Errorf("expected both branch scores preserved, got lex=%v dense=%v", fused[0].lexScore, fused[0].denseScore)
	}
}

func TestFuse_TieBreakPrefersLexicalBranch(t *testing.T) {
	// Two candidates with identical (contrived) rrf contributions: one
	// only from the lexical branch, one only from the dense branch.
	lexical := []candidate{{messageID: 10, lexRank: intp(5), lexScore: 0.5}}
	dense := []candidate{{messageID: 20, denseRank: intp(5), denseScore: 0.5}}
	fused := fuse(lexical, dense)
	if len(fused) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(fused))
	}
	if fused[0].messageID != 10 {
		t.Errorf("expected lexical-branch candidate to win the tie, got message id %d first", fused[0].messageID)
	}
}

func TestFuse_PositionalBonuses(t *testing.T) {
	dense := []candidate{
		{messageID: 1, denseRank: intp(0), denseScore: 1.0},
		{messageID: 2, denseRank: intp(1), denseScore: 0.9},
		{messageID: 3, denseRank: intp(2), denseScore: 0.8},
		{messageID: 4, denseRank: intp(3), denseScore: 0.7},
	}
	fused := fuse(nil, dense)
	if len(fused) != 4 {
		t.Fatalf("expected 4 candidates, got %d", len(fused))
	}
	base := []float64{
		1.0 / (60 + 0 + 1),
		1.0 / (60 + 1 + 1),
		1.0 / (60 + 2 + 1),
		1.0 / (60 + 3 + 1),
	}
	wantBonus := []float64{0.05, 0.02, 0.02, 0}
	for i, c := range fused {
		want := base[i] + wantBonus[i]
		if !approxEqual(c.rrf, want, 1e-9) {
			t.Errorf("position %d: rrf = %v, want %v", i, c.rrf, want)
		}
	}
}

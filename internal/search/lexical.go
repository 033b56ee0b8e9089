package search

import (
	"context"
	"math"
	"regexp"
	"strings"

	"hybridmail/internal/store/sqlite"
	"hybridmail/internal/tenant"
)

// LexicalStore is the port the lexical retrieval stage depends on.
type LexicalStore interface {
	LexicalSearch(ctx context.Context, scope tenant.Scope, matchExpr string, filters sqlite.SearchFilters, limit int) ([]sqlite.LexicalHit, error)
}

const lexicalTopK = 50

var tokenRe = regexp.MustCompile(`[A-Za-z0-9]+`)

// buildMatchExpr builds the FTS5 MATCH query for a set of query variants:
// an AND-joined term list per variant (tokens longer than two characters),
// OR-joined across variants.
func buildMatchExpr(variants []string) string {
	var clauses []string
	for _, v := range variants {
		tokens := tokenRe.FindAllString(strings.ToLower(v), -1)
		var terms []string
		for _, tok := range tokens {
			if len(tok) > 2 {
				terms = append(terms, `"`+strings.ReplaceAll(tok, `"`, `""`)+`"`)
			}
		}
		if len(terms) == 0 {
			continue
		}
		clauses = append(clauses, "("+strings.Join(terms, " AND ")+")")
	}
	return strings.Join(clauses, " OR ")
}

// lexicalRetrieve runs the lexical branch and returns candidates ranked
// best-first (rank 0 = best bm25 match), with scores normalized to [0,1]
// via min-max over this branch's result list.
func lexicalRetrieve(ctx context.Context, store LexicalStore, scope tenant.Scope, variants []string, filters sqlite.SearchFilters) ([]candidate, error) {
	matchExpr := buildMatchExpr(variants)
	if matchExpr == "" {
		return nil, nil
	}

	hits, err := store.LexicalSearch(ctx, scope, matchExpr, filters, lexicalTopK)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}

	// bm25() is more negative for a better match; abs() then min-max
	// normalize so a higher normalized score is a better match.
	absScores := make([]float64, len(hits))
	minS, maxS := math.Inf(1), math.Inf(-1)
	for i, h := range hits {
		abs := math.Abs(h.Score)
		absScores[i] = abs
		if abs < minS {
			minS = abs
		}
		if abs > maxS {
			maxS = abs
		}
	}
	spread := maxS - minS

	out := make([]candidate, len(hits))
	for i, h := range hits {
		rank := i
		norm := 1.0
		if spread > 0 {
			norm = (absScores[i] - minS) / spread
		}
		out[i] = candidate{
			messageID: h.MessageID,
			subject:   h.Subject,
			snippet:   h.Snippet,
			fromEmail: h.FromEmail,
			fromName:  h.FromName,
			sentAt:    h.SentAt,
			lexRank:   &rank,
			lexScore:  norm,
		}
	}
	return out, nil
}

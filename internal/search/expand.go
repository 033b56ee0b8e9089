package search

import (
	"context"

	"hybridmail/internal/resilience"
)

// QueryModel is the model-runtime port query expansion depends on.
type QueryModel interface {
	ExpandQuery(ctx context.Context, query string) []string
}

// QueryExpander runs a model call through a circuit breaker. ExpandQuery
// itself degrades to [query] on any internal failure and reports no error,
// so every wrapped call counts as a success and the breaker does not trip
// on expansion failures; if the breaker is open, Expand returns [query].
type QueryExpander struct {
	Model   QueryModel
	Breaker *resilience.Breaker
}

// Expand returns [query, alternative] or [query] alone on any failure.
func (e *QueryExpander) Expand(ctx context.Context, query string) []string {
	var variants []string
	err := e.Breaker.Do(ctx, func(ctx context.Context) error {
		variants = e.Model.ExpandQuery(ctx, query)
		return nil
	})
	if err != nil || len(variants) == 0 {
		return []string{query}
	}
	return variants
}

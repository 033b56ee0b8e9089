// Package search implements the hybrid retrieval pipeline: query expansion,
// parallel lexical and dense retrieval, reciprocal rank fusion, an LLM
// rerank pass, and position-aware blending into a single ranked result set.
package search

import (
	"time"

	"hybridmail/internal/store/sqlite"
)

// Request is a single search invocation, always tenant-scoped.
type Request struct {
	TenantID string
	Query    string
	Filters  sqlite.SearchFilters
	Limit    int
	Offset   int
}

// Breakdown exposes the per-branch contribution to a result's final score,
// for debugging and the invariants in the testable-properties list.
type Breakdown struct {
	Lexical float64
	Dense   float64
	Rerank  float64
}

// Result is one ranked message.
type Result struct {
	MessageID int64
	Subject   string
	Snippet   string
	FromEmail string
	FromName  string
	SentAt    time.Time
	Score     float64
	Breakdown Breakdown
}

// Response is the pipeline's output.
type Response struct {
	Results         []Result
	Total           int
	ExpandedQueries []string
	ElapsedMs       int64
}

// candidate carries a message through the fusion, rerank and blend stages.
// LexRank/DenseRank are nil when the message didn't appear in that branch.
type candidate struct {
	messageID int64
	subject   string
	snippet   string
	fromEmail string
	fromName  string
	sentAt    time.Time

	lexRank  *int
	lexScore float64 // normalized [0,1], higher is better

	denseRank  *int
	denseScore float64 // normalized [0,1], higher is better

	rrf    float64
	rerank float64
	final  float64
}

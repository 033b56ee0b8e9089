package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"hybridmail/internal/tenant"
)

// ErrEmptyQuery is returned for a blank or whitespace-only query, rejected
// before pipeline entry per the error taxonomy.
var ErrEmptyQuery = errors.New("search: query must not be empty")

// Pipeline wires the five retrieval stages and the result cache into a
// single entrypoint, mirroring the teacher's search-service shape.
type Pipeline struct {
	Lexical  LexicalStore
	Dense    DenseStore
	Verifier Verifier
	Embedder Embedder
	Expander *QueryExpander
	Reranker RerankModel
	Cache    *SearchCache
	Log      zerolog.Logger
}

// Search runs the full pipeline for req: cache check, query expansion,
// parallel lexical/dense retrieval, RRF fusion, LLM rerank, and
// position-aware blending.
func (p *Pipeline) Search(ctx context.Context, req Request) (Response, error) {
	if strings.TrimSpace(req.Query) == "" {
		return Response{}, ErrEmptyQuery
	}
	scope, err := tenant.NewScope(req.TenantID)
	if err != nil {
		return Response{}, fmt.Errorf("search: invalid tenant id: %w", err)
	}
	start := time.Now()

	var cacheKey string
	if p.Cache != nil {
		cacheKey = p.Cache.BuildKey(req)
		if cached, ok := p.Cache.Get(ctx, cacheKey); ok {
			return *cached, nil
		}
	}

	variants := []string{req.Query}
	if p.Expander != nil {
		variants = p.Expander.Expand(ctx, req.Query)
	}

	var lex, dense []candidate
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		lex, err = lexicalRetrieve(gctx, p.Lexical, scope, variants, req.Filters)
		return err
	})
	g.Go(func() error {
		var err error
		dense, err = denseRetrieve(gctx, p.Dense, p.Verifier, p.Embedder, scope, variants)
		return err
	})
	if err := g.Wait(); err != nil {
		return Response{}, err
	}

	fused := fuse(lex, dense)
	total := len(fused)

	reranked := rerank(ctx, p.Reranker, req.Query, fused)
	blended := blend(reranked)
	windowed := window(blended, req.Offset, req.Limit)

	resp := Response{
		Results:         toResults(windowed),
		Total:           total,
		ExpandedQueries: variants,
		ElapsedMs:       time.Since(start).Milliseconds(),
	}

	if p.Cache != nil {
		if err := p.Cache.Set(ctx, cacheKey, &resp); err != nil {
			p.Log.Warn().Err(err).Msg("failed to cache search response")
		}
	}

	return resp, nil
}

// window applies offset/limit to an already-sorted candidate list.
func window(candidates []candidate, offset, limit int) []candidate {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(candidates) {
		return nil
	}
	end := len(candidates)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return candidates[offset:end]
}

func toResults(candidates []candidate) []Result {
	out := make([]Result, len(candidates))
	for i, c := range candidates {
		out[i] = Result{
			MessageID: c.messageID,
			Subject:   c.subject,
			Snippet:   c.snippet,
			FromEmail: c.fromEmail,
			FromName:  c.fromName,
			SentAt:    c.sentAt,
			Score:     c.final,
			Breakdown: Breakdown{
				Lexical: c.lexScore,
				Dense:   c.denseScore,
				Rerank:  c.rerank,
			},
		}
	}
	return out
}

// Package bootstrap wires every component the ingestion and retrieval paths
// depend on from a loaded Config, in the order each needs its upstream
// dependency ready, and hands back one cleanup closure that tears everything
// down in reverse.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"hybridmail/internal/blob"
	"hybridmail/internal/config"
	"hybridmail/internal/domain"
	"hybridmail/internal/ingest"
	"hybridmail/internal/kv"
	"hybridmail/internal/materializer"
	"hybridmail/internal/modelruntime"
	"hybridmail/internal/progress"
	"hybridmail/internal/queue"
	"hybridmail/internal/resilience"
	"hybridmail/internal/search"
	"hybridmail/internal/store/sqlite"
	"hybridmail/internal/tenant"
	"hybridmail/internal/vectorstore"
)

// Dependencies holds every wired component a worker process needs. Fields
// are populated incrementally by NewDependencies; a field is nil if its
// config prerequisite was absent and nothing downstream required it.
type Dependencies struct {
	Redis      *redis.Client
	VectorDB   *pgxpool.Pool
	Relational *sqlite.Store

	Blob  blob.Store
	KV    *kv.Store
	Queue *queue.Producer

	Models *modelruntime.Runtime

	Vectors *vectorstore.Store

	EmbedBreaker  *resilience.Breaker
	ExpandBreaker *resilience.Breaker
	RerankBreaker *resilience.Breaker
	VectorBreaker *resilience.Breaker

	Materializer *materializer.Materializer
	Progress     *progress.Tracker
	Search       *search.Pipeline

	ChunkHandler *ingest.ChunkHandler
	EmailHandler *materializer.EmailHandler
	Router       *queue.Router

	Log zerolog.Logger
}

// NewDependencies builds every Dependencies field from cfg. On success it
// returns a cleanup func that releases every opened resource in reverse
// order. On error it has already released whatever it opened and returns a
// nil cleanup, which the caller must not call.
func NewDependencies(cfg *config.Config, log zerolog.Logger) (*Dependencies, func(), error) {
	d := &Dependencies{Log: log}
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	relStore, err := sqlite.Open(cfg.SQLitePath)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("bootstrap: open sqlite: %w", err)
	}
	d.Relational = relStore
	cleanups = append(cleanups, func() { relStore.Close() })

	d.Progress = progress.New(relStore.DB())

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("bootstrap: parse redis url: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	d.Redis = redisClient
	cleanups = append(cleanups, func() { redisClient.Close() })

	d.KV = kv.New(redisClient)
	d.Queue = queue.NewProducer(redisClient)

	ctx := context.Background()

	if cfg.VectorDatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.VectorDatabaseURL)
		if err != nil {
			log.Warn().Err(err).Msg("pgvector pool unavailable, dense retrieval disabled")
		} else {
			d.VectorDB = pool
			cleanups = append(cleanups, func() { pool.Close() })
			d.Vectors = vectorstore.New(pool)
		}
	}

	if cfg.BlobBucket != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.BlobRegion))
		if err != nil {
			log.Warn().Err(err).Msg("aws config unavailable, blob store disabled")
		} else {
			s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
				if cfg.BlobEndpoint != "" {
					o.BaseEndpoint = aws.String(cfg.BlobEndpoint)
					o.UsePathStyle = true
				}
			})
			d.Blob = blob.NewS3Store(s3Client, cfg.BlobBucket)
		}
	}

	if cfg.OpenAIAPIKey != "" {
		d.Models = modelruntime.NewWithAPIKey(cfg.OpenAIAPIKey)
	}

	d.EmbedBreaker = resilience.New("modelruntime-embed")
	d.ExpandBreaker = resilience.New("modelruntime-expand")
	d.RerankBreaker = resilience.New("modelruntime-rerank")
	d.VectorBreaker = resilience.New("vectorstore-query")

	embedder := breakerEmbedder{inner: d.Models, breaker: d.EmbedBreaker}

	d.Materializer = &materializer.Materializer{
		Store:   relStore,
		Vectors: breakerVectorStore{inner: d.Vectors, breaker: d.VectorBreaker},
		Models:  embedder,
		Log:     log.With().Str("component", "materializer").Logger(),
	}

	d.ChunkHandler = &ingest.ChunkHandler{
		Blob:     d.Blob,
		KV:       d.KV,
		Producer: d.Queue,
		Sources:  relStore,
		Log:      log.With().Str("component", "ingest").Logger(),
	}

	d.EmailHandler = &materializer.EmailHandler{
		Blob:         d.Blob,
		Materializer: d.Materializer,
	}

	d.Router = queue.NewRouter().
		Register(queue.TypeProcessChunk, d.ChunkHandler).
		Register(queue.TypeProcessEmail, d.EmailHandler).
		Register(queue.TypeProcessEmailRef, d.EmailHandler)

	var expander *search.QueryExpander
	if d.Models != nil {
		expander = &search.QueryExpander{Model: d.Models, Breaker: d.ExpandBreaker}
	}

	var dense search.DenseStore = noopDenseStore{}
	if d.Vectors != nil {
		dense = d.Vectors
	}

	d.Search = &search.Pipeline{
		Lexical:  relStore,
		Dense:    dense,
		Verifier: relStore,
		Embedder: embedder,
		Expander: expander,
		Reranker: breakerReranker{inner: d.Models, breaker: d.RerankBreaker},
		Cache:    search.NewSearchCache(d.KV, cfg.SearchCacheTTL),
		Log:      log.With().Str("component", "search").Logger(),
	}

	return d, cleanup, nil
}

// HealthCheck pings every external dependency this process depends on.
func (d *Dependencies) HealthCheck(ctx context.Context) error {
	if d.Relational != nil {
		if err := d.Relational.DB().PingContext(ctx); err != nil {
			return fmt.Errorf("bootstrap: sqlite ping: %w", err)
		}
	}
	if d.Redis != nil {
		if err := d.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("bootstrap: redis ping: %w", err)
		}
	}
	if d.VectorDB != nil {
		if err := d.VectorDB.Ping(ctx); err != nil {
			return fmt.Errorf("bootstrap: pgvector ping: %w", err)
		}
	}
	return nil
}

// breakerEmbedder wraps a *modelruntime.Runtime's embedding call with a
// circuit breaker, satisfying both materializer.ModelRuntime and
// search.Embedder. A nil inner (no OPENAI_API_KEY configured) fails closed
// rather than panicking, so a deployment without model access still runs
// ingestion and lexical-only search.
type breakerEmbedder struct {
	inner   *modelruntime.Runtime
	breaker *resilience.Breaker
}

func (b breakerEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if b.inner == nil {
		return nil, fmt.Errorf("bootstrap: model runtime not configured")
	}
	var out [][]float32
	err := b.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = b.inner.EmbedBatch(ctx, texts)
		return err
	})
	return out, err
}

// breakerReranker runs rerank scoring through a circuit breaker. RerankScore
// already degrades to the neutral 0.5 on an OpenAI call failure and reports
// no error, so every wrapped call counts as a success and this breaker does
// not trip on rerank failures; 0.5 is also returned if the breaker is open.
type breakerReranker struct {
	inner   *modelruntime.Runtime
	breaker *resilience.Breaker
}

func (b breakerReranker) RerankScore(ctx context.Context, query, subject, snippet string) float64 {
	if b.inner == nil {
		return 0.5
	}
	var score float64
	err := b.breaker.Do(ctx, func(ctx context.Context) error {
		score = b.inner.RerankScore(ctx, query, subject, snippet)
		return nil
	})
	if err != nil {
		return 0.5
	}
	return score
}

// breakerVectorStore wraps vector upserts with a circuit breaker so a
// degraded pgvector dependency trips instead of blocking materialization on
// every message. A nil inner is a no-op: dense indexing is skipped, not
// fatal, when no vector database is configured.
type breakerVectorStore struct {
	inner   *vectorstore.Store
	breaker *resilience.Breaker
}

func (b breakerVectorStore) UpsertBatch(ctx context.Context, entries []domain.VectorEntry) error {
	if b.inner == nil {
		return nil
	}
	return b.breaker.Do(ctx, func(ctx context.Context) error {
		return b.inner.UpsertBatch(ctx, entries)
	})
}

// noopDenseStore stands in for search.DenseStore when no pgvector database
// is configured, so the dense retrieval branch returns no matches instead
// of a nil-pointer dereference on an unconfigured *vectorstore.Store.
type noopDenseStore struct{}

func (noopDenseStore) Query(ctx context.Context, scope tenant.Scope, embedding []float32, k int) ([]vectorstore.Match, error) {
	return nil, nil
}

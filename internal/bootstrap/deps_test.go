package bootstrap

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"

	"hybridmail/internal/config"
)

func testConfig(t *testing.T, redisAddr string) *config.Config {
	t.Helper()
	return &config.Config{
		WorkerID:                "test-worker",
		SQLitePath:              filepath.Join(t.TempDir(), "test.db"),
		RedisURL:                "redis://" + redisAddr + "/0",
		ConsumerBatchSize:       10,
		ConsumerBlockMS:         100,
		ConsumerMaxRetries:      3,
		ConsumerPendingCheckSec: 30,
		ConsumerPendingIdleSec:  120,
		SearchCacheTTL:          time.Minute,
		CarryoverTTL:            time.Hour,
	}
}

func TestNewDependencies_DegradesGracefullyWithoutOptionalDeps(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	defer mr.Close()

	cfg := testConfig(t, mr.Addr())
	d, cleanup, err := NewDependencies(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewDependencies: %v", err)
	}
	defer cleanup()

	if d.Vectors != nil {
		t.Error("expected Vectors to be nil without VECTOR_DATABASE_URL")
	}
	if d.Blob != nil {
		t.Error("expected Blob to be nil without BLOB_BUCKET")
	}
	if d.Models != nil {
		t.Error("expected Models to be nil without OPENAI_API_KEY")
	}
	if d.Search.Dense == nil {
		t.Fatal("expected Dense to fall back to a non-nil noop store")
	}
	if _, ok := d.Search.Dense.(noopDenseStore); !ok {
		t.Errorf("expected Dense to be noopDenseStore, got %T", d.Search.Dense)
	}
	if d.Search.Expander != nil {
		t.Error("expected Expander to be nil without a model runtime")
	}
	if d.Router == nil {
		t.Fatal("expected Router to be wired")
	}
}

func TestNewDependencies_HealthCheckPassesWithLiveConnections(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	defer mr.Close()

	cfg := testConfig(t, mr.Addr())
	d, cleanup, err := NewDependencies(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewDependencies: %v", err)
	}
	defer cleanup()

	if err := d.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
}

func TestNewDependencies_InvalidRedisURLFails(t *testing.T) {
	cfg := testConfig(t, "ignored")
	cfg.RedisURL = "not-a-valid-url"
	_, _, err := NewDependencies(cfg, zerolog.Nop())
	if err == nil {
		t.Fatal("expected error for invalid redis url")
	}
}

func TestBreakerEmbedder_NilInnerReturnsError(t *testing.T) {
	e := breakerEmbedder{}
	if _, err := e.EmbedBatch(context.Background(), []string{"hi"}); err == nil {
		t.Error("expected error for nil model runtime")
	}
}

func TestBreakerReranker_NilInnerReturnsNeutralScore(t *testing.T) {
	r := breakerReranker{}
	if got := r.RerankScore(context.Background(), "q", "s", "snippet"); got != 0.5 {
		t.Errorf("RerankScore = %v, want 0.5", got)
	}
}

func TestBreakerVectorStore_NilInnerIsNoOp(t *testing.T) {
	v := breakerVectorStore{}
	if err := v.UpsertBatch(context.Background(), nil); err != nil {
		t.Errorf("UpsertBatch: %v", err)
	}
}

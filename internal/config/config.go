// Package config loads process configuration from the environment. There is
// no flag parsing: CLI surfaces are out of scope for this module, and every
// deployment-specific knob is expected to arrive as an env var, the way the
// rest of this codebase's ambient stack does things.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

func generateWorkerID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "worker"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

// Config is the complete set of environment-driven settings for a process
// running either the ingestion consumer or the retrieval pipeline (or both).
type Config struct {
	Environment string
	WorkerID    string

	// Relational store (SQLite, lexical retrieval)
	SQLitePath string

	// Vector store (Postgres + pgvector)
	VectorDatabaseURL string

	// KV store / queue (Redis)
	RedisURL string

	// Blob store (S3-compatible)
	BlobBucket   string
	BlobEndpoint string
	BlobRegion   string

	// Model runtime
	OpenAIAPIKey    string
	EmbeddingModel  string
	EmbeddingDims   int
	InstructModel   string
	ModelTimeoutSec int

	// Queue consumer
	ConsumerBatchSize       int
	ConsumerBlockMS         int
	ConsumerMaxRetries      int
	ConsumerPendingCheckSec int
	ConsumerPendingIdleSec  int

	// Materializer / chunk thresholds
	ContactCreateConcurrency int
	PersistConcurrency       int
	RerankBatchSize          int
	MessageBodyMaxChars      int
	QueuePayloadCapBytes     int
	EmailBodySpillThreshold  int

	// Carryover / cache TTLs
	CarryoverTTL  time.Duration
	SearchCacheTTL time.Duration
}

// Load reads Config from the environment, applying the same defaults
// philosophy as the rest of this codebase: safe, small, and explicit.
func Load() (*Config, error) {
	return &Config{
		Environment: getEnv("ENV", "development"),
		WorkerID:    getEnv("WORKER_ID", generateWorkerID()),

		SQLitePath: getEnv("SQLITE_PATH", "./data/mail.db"),

		VectorDatabaseURL: getEnv("VECTOR_DATABASE_URL", ""),

		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		BlobBucket:   getEnv("BLOB_BUCKET", ""),
		BlobEndpoint: getEnv("BLOB_ENDPOINT", ""),
		BlobRegion:   getEnv("BLOB_REGION", "us-east-1"),

		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		EmbeddingModel:  getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDims:   getEnvInt("EMBEDDING_DIMS", 768),
		InstructModel:   getEnv("INSTRUCT_MODEL", "gpt-4o-mini"),
		ModelTimeoutSec: getEnvInt("MODEL_TIMEOUT_SEC", 30),

		ConsumerBatchSize:       getEnvInt("CONSUMER_BATCH_SIZE", 50),
		ConsumerBlockMS:         getEnvInt("CONSUMER_BLOCK_MS", 5000),
		ConsumerMaxRetries:      getEnvInt("CONSUMER_MAX_RETRIES", 3),
		ConsumerPendingCheckSec: getEnvInt("CONSUMER_PENDING_CHECK_SEC", 30),
		ConsumerPendingIdleSec:  getEnvInt("CONSUMER_PENDING_IDLE_SEC", 120),

		ContactCreateConcurrency: getEnvInt("CONTACT_CREATE_CONCURRENCY", 10),
		PersistConcurrency:       getEnvInt("PERSIST_CONCURRENCY", 10),
		RerankBatchSize:          getEnvInt("RERANK_BATCH_SIZE", 10),
		MessageBodyMaxChars:      getEnvInt("MESSAGE_BODY_MAX_CHARS", 50000),
		QueuePayloadCapBytes:     getEnvInt("QUEUE_PAYLOAD_CAP_BYTES", 256*1024),
		EmailBodySpillThreshold:  getEnvInt("EMAIL_BODY_SPILL_THRESHOLD_BYTES", 200*1024),

		CarryoverTTL:   time.Duration(getEnvInt("CARRYOVER_TTL_SEC", 3600)) * time.Second,
		SearchCacheTTL: time.Duration(getEnvInt("SEARCH_CACHE_TTL_SEC", 60)) * time.Second,
	}, nil
}

func (c *Config) IsDevelopment() bool { return c.Environment == "development" }
func (c *Config) IsProduction() bool  { return c.Environment == "production" }

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

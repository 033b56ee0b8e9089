// Package kv is the ephemeral, short-TTL key-value store: chunk carryover
// bytes between mbox chunks, and optional session records.
package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is a thin Redis-backed TTL'd byte store.
type Store struct {
	client *redis.Client
}

// New wraps an existing Redis client.
func New(client *redis.Client) *Store {
	return &Store{client: client}
}

// Set writes value under key with the given TTL, replacing any prior value.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

// Get returns the value at key and whether it existed.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// carryoverPrefix namespaces chunk carryover keys, per source.
const carryoverPrefix = "carryover:"

// CarryoverKey builds the key a source's trailing partial-message bytes are
// stored under between chunk deliveries.
func CarryoverKey(sourceID int64) string {
	return fmt.Sprintf("%s%d", carryoverPrefix, sourceID)
}

// GetCarryover returns the carryover bytes for a source, or nil if none is
// stored (the first chunk of a source has no prior carryover).
func (s *Store) GetCarryover(ctx context.Context, sourceID int64) ([]byte, error) {
	val, ok, err := s.Get(ctx, CarryoverKey(sourceID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return val, nil
}

// SetCarryover stores the trailing partial-message bytes for a source with
// ttl sufficient to outlive the time until the next chunk is processed.
func (s *Store) SetCarryover(ctx context.Context, sourceID int64, data []byte, ttl time.Duration) error {
	return s.Set(ctx, CarryoverKey(sourceID), data, ttl)
}

// DeleteCarryover removes a source's carryover once its last chunk has been
// processed.
func (s *Store) DeleteCarryover(ctx context.Context, sourceID int64) error {
	return s.Delete(ctx, CarryoverKey(sourceID))
}

package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"hybridmail/internal/kv"
	"hybridmail/internal/store/sqlite"
)

const cacheKeyPrefix = "search:"

// SearchCache caches ranked responses keyed on {tenant_id, query, filters},
// backed by the same Redis KV store chunk carryover uses. Expiry is TTL-only
// via Redis itself, so unlike an in-memory cache this needs no cleanup loop.
type SearchCache struct {
	kv  *kv.Store
	ttl time.Duration
}

// NewSearchCache wraps an existing KV store with a fixed entry TTL.
func NewSearchCache(store *kv.Store, ttl time.Duration) *SearchCache {
	return &SearchCache{kv: store, ttl: ttl}
}

// BuildKey derives a cache key from the parts of a request that affect its
// ranked result set.
func (c *SearchCache) BuildKey(req Request) string {
	keyData := fmt.Sprintf("%s:%s:%d:%d:%s", req.TenantID, req.Query, req.Limit, req.Offset, filtersKey(req.Filters))
	hash := sha256.Sum256([]byte(keyData))
	return cacheKeyPrefix + hex.EncodeToString(hash[:16])
}

// Get returns a cached response, if present and unexpired.
func (c *SearchCache) Get(ctx context.Context, key string) (*Response, bool) {
	val, ok, err := c.kv.Get(ctx, key)
	if err != nil || !ok {
		return nil, false
	}
	var resp Response
	if err := json.Unmarshal(val, &resp); err != nil {
		return nil, false
	}
	return &resp, true
}

// Set stores a response under key with this cache's TTL.
func (c *SearchCache) Set(ctx context.Context, key string, resp *Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return c.kv.Set(ctx, key, data, c.ttl)
}

// Invalidate removes a specific cache entry.
func (c *SearchCache) Invalidate(ctx context.Context, key string) error {
	return c.kv.Delete(ctx, key)
}

func filtersKey(f sqlite.SearchFilters) string {
	return fmt.Sprintf("%s|%s|%v|%v|%v|%v", f.SenderEmail, f.CompanyDomain, f.DateFrom, f.DateTo, f.HasAttachments, f.SourceIDs)
}

package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ellenlabs/ellen/internal/domain"
)

const retrievalCachePrefix = "retrieval:"

// RetrievalBundle is the cached result of one retrieval pass for a query.
type RetrievalBundle struct {
	Materials []domain.Material `json:"materials"`
	Sources   []domain.Source   `json:"sources"`
}

// RetrievalCache caches catalog and article search results per normalized
// query so repeated questions skip the full-text searches.
type RetrievalCache struct {
	client *Client
	ttl    time.Duration
}

// NewRetrievalCache creates a new retrieval cache
func NewRetrievalCache(client *Client, ttl time.Duration) *RetrievalCache {
	return &RetrievalCache{client: client, ttl: ttl}
}

// Get retrieves a cached retrieval bundle. A miss returns (nil, nil).
func (c *RetrievalCache) Get(ctx context.Context, query string) (*RetrievalBundle, error) {
	data, err := c.client.rdb.Get(ctx, cacheKey(query)).Bytes()
	if err != nil {
		return nil, nil // Cache miss
	}

	var bundle RetrievalBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("failed to unmarshal retrieval bundle: %w", err)
	}

	return &bundle, nil
}

// Set caches a retrieval bundle for a query
func (c *RetrievalCache) Set(ctx context.Context, query string, bundle *RetrievalBundle) error {
	data, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("failed to marshal retrieval bundle: %w", err)
	}

	return c.client.rdb.Set(ctx, cacheKey(query), data, c.ttl).Err()
}

// Invalidate removes the cached bundle for a query
func (c *RetrievalCache) Invalidate(ctx context.Context, query string) error {
	return c.client.rdb.Del(ctx, cacheKey(query)).Err()
}

// FlushAll removes all cached retrieval bundles, e.g. after a catalog import.
func (c *RetrievalCache) FlushAll(ctx context.Context) (int64, error) {
	pattern := retrievalCachePrefix + "*"
	var cursor uint64
	var deleted int64

	for {
		keys, nextCursor, err := c.client.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return deleted, fmt.Errorf("failed to scan keys: %w", err)
		}

		if len(keys) > 0 {
			count, err := c.client.rdb.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("failed to delete keys: %w", err)
			}
			deleted += count
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return deleted, nil
}

func cacheKey(query string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	sum := sha256.Sum256([]byte(normalized))
	return retrievalCachePrefix + hex.EncodeToString(sum[:16])
}

// Package cache is the result cache (C5's query cache): a Redis-backed,
// TTL-bounded store of fully materialized response envelopes, keyed by a
// stable fingerprint of the query shape. Adapted from the teacher's
// internal/searcher/cache, generalized from one hardcoded result type to
// any JSON-serializable response via a generic GetOrCompute (the teacher
// predates generics support in this codebase's target Go version).
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	pkgredis "github.com/domainsearch/engine/pkg/redis"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "search:"

// DefaultTTL is the 24-hour default cache lifetime from spec.md §4.5.
const DefaultTTL = 24 * time.Hour

// Cache is the result cache. A nil *Cache is valid and every method
// degrades to "always miss" / "no-op invalidate", matching spec.md's
// requirement that the cache be optional and never fail a request.
type Cache struct {
	client *pkgredis.Client
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a Cache backed by client, with the given TTL (DefaultTTL if
// zero).
func New(client *pkgredis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{client: client, ttl: ttl, logger: slog.Default().With("component", "query-cache")}
}

// Enabled reports whether a cache backend is configured.
func (c *Cache) Enabled() bool {
	return c != nil && c.client != nil
}

// GetOrCompute returns the cached value for key if present, otherwise
// calls computeFn, caches its result, and returns it. Concurrent callers
// for the same key are coalesced via singleflight so a cache stampede
// computes the result once. A nil Cache always computes.
func GetOrCompute[T any](ctx context.Context, c *Cache, key string, computeFn func() (T, error)) (T, bool, error) {
	if !c.Enabled() {
		v, err := computeFn()
		return v, false, err
	}
	if v, ok := getCached[T](ctx, c, key); ok {
		return v, true, nil
	}

	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if v, ok := getCached[T](ctx, c, key); ok {
			return v, nil
		}
		v, cerr := computeFn()
		if cerr != nil {
			return nil, cerr
		}
		c.set(ctx, key, v)
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, false, err
	}
	return val.(T), false, nil
}

func getCached[T any](ctx context.Context, c *Cache, key string) (T, bool) {
	var zero T
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.misses.Add(1)
		return zero, false
	}
	var v T
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.misses.Add(1)
		return zero, false
	}
	c.hits.Add(1)
	return v, true
}

func (c *Cache) set(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// Invalidate flushes every cached response. Called once per writer
// commit per spec.md §4.5's coarse-grained invalidation policy.
func (c *Cache) Invalidate(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	deleted, err := c.client.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

// Stats reports cumulative hit/miss counts.
func (c *Cache) Stats() (hits, misses int64) {
	if c == nil {
		return 0, 0
	}
	return c.hits.Load(), c.misses.Load()
}

// SearchKey builds the fingerprint for a keyword-search cache entry from
// its already-canonicalized (lowercased, deduped, sorted) tokens plus the
// remaining query shape.
func SearchKey(tokens []string, tld string, limit, minMatch int) string {
	raw := fmt.Sprintf("search|%s|tld=%s|limit=%d|min_match=%d", strings.Join(tokens, ","), tld, limit, minMatch)
	return fingerprint(raw)
}

// ExactKey builds the fingerprint for an exact-lookup cache entry.
func ExactKey(domainName string) string {
	return fingerprint("exact|" + domainName)
}

func fingerprint(raw string) string {
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}

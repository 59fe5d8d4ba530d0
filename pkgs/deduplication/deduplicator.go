// Package deduplication guards an API adapter against processing the same
// payload submission twice — e.g. a retried HTTP request after a dropped
// response. It keys on a hash of the raw payload bytes, not on any
// decode/validation result, so it never substitutes for Process: a
// duplicate payload that was previously rejected by validation is still
// rejected the second time it actually reaches Process.
//
// Guard pairs a local LRU fast path with a Redis SetNX slow path, so a
// single-instance deployment never needs Redis and a multi-instance one
// still shares dedup state.
package deduplication

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2"
	log "github.com/sirupsen/logrus"
)

// Guard deduplicates payload submissions within a TTL window.
type Guard struct {
	redis      *redis.Client // nil disables the shared (Redis) layer
	localCache *lru.Cache[string, bool]
	ttl        time.Duration
	keyPrefix  string
}

// NewGuard builds a Guard backed by a local LRU cache of localCacheSize
// entries and, if redisClient is non-nil, a shared Redis layer with the
// given TTL.
func NewGuard(redisClient *redis.Client, localCacheSize int, ttl time.Duration) (*Guard, error) {
	cache, err := lru.New[string, bool](localCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}

	return &Guard{
		redis:      redisClient,
		localCache: cache,
		ttl:        ttl,
		keyPrefix:  "redstone:submission:",
	}, nil
}

// KeyForPayload derives a dedup key from the raw payload bytes.
func KeyForPayload(payload []byte) string {
	hash := sha256.Sum256(payload)
	return hex.EncodeToString(hash[:16])
}

// CheckAndMark reports whether key is a new submission (true) and records
// it as seen either way. A false result means an identical payload was
// already accepted for processing: it is still held in the local LRU
// cache (which has no expiry), or Redis saw it within the TTL window.
func (g *Guard) CheckAndMark(ctx context.Context, key string) (bool, error) {
	if g.localCache.Contains(key) {
		log.Debugf("submission dedup hit (local cache): %s", key)
		return false, nil
	}

	if g.redis == nil {
		g.localCache.Add(key, true)
		return true, nil
	}

	fullKey := g.keyPrefix + key
	ok, err := g.redis.SetNX(ctx, fullKey, time.Now().Unix(), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis SetNX failed: %w", err)
	}

	g.localCache.Add(key, true)
	if ok {
		log.Debugf("submission dedup miss (new): %s", key)
		return true, nil
	}
	log.Debugf("submission dedup hit (redis): %s", key)
	return false, nil
}

// ClearLocal purges the local LRU cache. Useful in tests.
func (g *Guard) ClearLocal() {
	g.localCache.Purge()
	log.Debug("local submission dedup cache cleared")
}

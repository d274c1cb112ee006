package searchcache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/r3elabs/logwatch/infrastructure/logging"
	"github.com/r3elabs/logwatch/recordmodel"
)

// RedisConfig configures the optional distributed cache mirror (§6
// searchCache.distributed), grounded on the pack's go-redis usage for
// shared, cross-instance caching.
type RedisConfig struct {
	Addr string
	DB   int
}

// RedisMirror wraps a local Cache with a shared Redis-backed tier: a miss
// on the local LRU falls through to Redis before counting as a true miss,
// and every local Put also writes through to Redis so sibling instances
// (behind the same shard router) see it immediately.
type RedisMirror struct {
	local  *Cache
	client *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

// NewRedisMirror creates a RedisMirror over an existing local Cache.
func NewRedisMirror(local *Cache, cfg RedisConfig, logger *logging.Logger) *RedisMirror {
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr, DB: cfg.DB})
	return &RedisMirror{local: local, client: client, ttl: time.Duration(local.cfg.ExpirationMs) * time.Millisecond, logger: logger}
}

// Get checks the local cache, then Redis. Satisfies index.Cache.
func (m *RedisMirror) Get(query string, isRegex bool, startTime, endTime int64) ([]*recordmodel.LogRecord, bool) {
	if hit, ok := m.local.Get(query, isRegex, startTime, endTime); ok {
		return hit, true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	raw, err := m.client.Get(ctx, cacheKey(query, isRegex, startTime, endTime)).Bytes()
	if err != nil {
		return nil, false
	}
	var records []*recordmodel.LogRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, false
	}
	m.local.Put(query, isRegex, startTime, endTime, records)
	return records, true
}

// Put writes through to both the local cache and Redis. Satisfies
// index.Cache.
func (m *RedisMirror) Put(query string, isRegex bool, startTime, endTime int64, results []*recordmodel.LogRecord) {
	m.local.Put(query, isRegex, startTime, endTime, results)

	data, err := json.Marshal(results)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.client.Set(ctx, cacheKey(query, isRegex, startTime, endTime), data, m.ttl).Err(); err != nil && m.logger != nil {
		m.logger.LogIngest(ctx, "searchcache-redis-put", len(results), err)
	}
}

// Close releases the Redis connection.
func (m *RedisMirror) Close() error {
	return m.client.Close()
}

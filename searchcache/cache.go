// Package searchcache implements C4: an LRU-with-TTL cache of search
// results keyed on (query, isRegex, startTime, endTime).
package searchcache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/r3elabs/logwatch/recordmodel"
)

// Config controls cache size and entry lifetime (§4.4).
type Config struct {
	MaxSize       int
	ExpirationMs  int64
	SweepInterval time.Duration
}

// DefaultConfig matches common defaults for a search result cache: 500
// entries, 60s TTL, swept every 30s.
func DefaultConfig() Config {
	return Config{MaxSize: 500, ExpirationMs: 60000, SweepInterval: 30 * time.Second}
}

type entry struct {
	results     []*recordmodel.LogRecord
	createdAt   int64
	lastAccess  int64
	accessCount int64
}

// Cache is the LRU+TTL search-result cache described in §4.4. It satisfies
// index.Cache.
type Cache struct {
	cfg Config

	mu      sync.Mutex
	entries map[string]*entry

	hits      int64
	misses    int64
	evictions int64

	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a Cache and starts its background sweeper.
func New(cfg Config) *Cache {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 500
	}
	if cfg.ExpirationMs <= 0 {
		cfg.ExpirationMs = 60000
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 30 * time.Second
	}
	c := &Cache{
		cfg:     cfg,
		entries: make(map[string]*entry),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	go c.sweep()
	return c
}

func cacheKey(query string, isRegex bool, startTime, endTime int64) string {
	return fmt.Sprintf("%t|%d|%d|%s", isRegex, startTime, endTime, query)
}

// Get returns the cached result for the key, or a miss. An expired entry is
// evicted and counted as a miss, not a hit (§4.4).
func (c *Cache) Get(query string, isRegex bool, startTime, endTime int64) ([]*recordmodel.LogRecord, bool) {
	key := cacheKey(query, isRegex, startTime, endTime)
	now := time.Now().UnixMilli()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if now-e.createdAt > c.cfg.ExpirationMs {
		delete(c.entries, key)
		c.evictions++
		c.misses++
		return nil, false
	}
	e.lastAccess = now
	e.accessCount++
	c.hits++
	return e.results, true
}

// Put inserts results for the key, evicting the least-recently-accessed
// entry first if the cache is full (§4.4).
func (c *Cache) Put(query string, isRegex bool, startTime, endTime int64, results []*recordmodel.LogRecord) {
	key := cacheKey(query, isRegex, startTime, endTime)
	now := time.Now().UnixMilli()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.cfg.MaxSize {
		c.evictLRULocked()
	}
	c.entries[key] = &entry{results: results, createdAt: now, lastAccess: now}
}

func (c *Cache) evictLRULocked() {
	var oldestKey string
	var oldestAccess int64 = -1
	for k, e := range c.entries {
		if oldestAccess == -1 || e.lastAccess < oldestAccess {
			oldestAccess = e.lastAccess
			oldestKey = k
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
		c.evictions++
	}
}

// Stats is the snapshot exposed by §4.4.
type Stats struct {
	Size         int
	MaxSize      int
	ExpirationMs int64
	Hits         int64
	Misses       int64
	Evictions    int64
	HitRatio     float64
}

// Stats returns a point-in-time snapshot of cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	var ratio float64
	if total > 0 {
		ratio = float64(c.hits) / float64(total)
	}
	return Stats{
		Size:         len(c.entries),
		MaxSize:      c.cfg.MaxSize,
		ExpirationMs: c.cfg.ExpirationMs,
		Hits:         c.hits,
		Misses:       c.misses,
		Evictions:    c.evictions,
		HitRatio:     ratio,
	}
}

func (c *Cache) sweep() {
	defer close(c.doneCh)
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.sweepExpired()
		}
	}
}

func (c *Cache) sweepExpired() {
	now := time.Now().UnixMilli()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if now-e.createdAt > c.cfg.ExpirationMs {
			delete(c.entries, k)
			c.evictions++
		}
	}
}

// Stop halts the background sweeper.
func (c *Cache) Stop(ctx context.Context) {
	select {
	case <-c.stopCh:
	default:
		close(c.stopCh)
	}
	<-c.doneCh
}

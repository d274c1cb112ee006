// Package router implements C5: fanning a search out across shards chosen
// by the configured sharding strategy, merging and caching the result.
package router

import (
	"context"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/r3elabs/logwatch/cluster"
	"github.com/r3elabs/logwatch/infrastructure/logging"
	"github.com/r3elabs/logwatch/recordmodel"
)

// ShardingType selects the routing strategy (§4.5).
type ShardingType string

const (
	ShardingTimeBased ShardingType = "TIME_BASED"
	ShardingSourceBased ShardingType = "SOURCE_BASED"
	ShardingBalanced    ShardingType = "BALANCED"
)

// Config mirrors §6's sharding.* options.
type Config struct {
	Enabled       bool
	LocalNodeID   string
	LocalNodeURL  string
	Type          ShardingType
	NumberOfShards int
}

// DefaultConfig defaults to BALANCED (fan out to every node), per §4.5.
func DefaultConfig() Config {
	return Config{Type: ShardingBalanced, NumberOfShards: 1}
}

// LocalSearcher runs a search against this node's own partitioned index (C3).
type LocalSearcher interface {
	Search(ctx context.Context, query string, isRegex bool, startTime, endTime int64) ([]*recordmodel.LogRecord, error)
}

// RemoteSearcher issues a suppressed-fan-out search against one peer node
// (§4.5: "issue a remote search with a flag that suppresses further
// fan-out").
type RemoteSearcher interface {
	SearchRemote(ctx context.Context, nodeURL, query string, isRegex bool, startTime, endTime int64) ([]*recordmodel.LogRecord, error)
}

// Cache is populated with the merged fan-out result (C4).
type Cache interface {
	Put(query string, isRegex bool, startTime, endTime int64, results []*recordmodel.LogRecord)
}

const perNodeDeadline = 10 * time.Second

var sourceTokenRE = regexp.MustCompile(`(?:^|\s)source:(\S+)`)

// Router fans a search out to the nodes selected by the configured
// sharding strategy.
type Router struct {
	cfg    Config
	local  LocalSearcher
	remote RemoteSearcher
	cache  Cache
	logger *logging.Logger

	mu    sync.RWMutex
	nodes map[string]cluster.Node
}

// New creates a Router.
func New(cfg Config, local LocalSearcher, remote RemoteSearcher, cache Cache, logger *logging.Logger) *Router {
	if cfg.Type == "" {
		cfg.Type = ShardingBalanced
	}
	if cfg.NumberOfShards <= 0 {
		cfg.NumberOfShards = 1
	}
	return &Router{cfg: cfg, local: local, remote: remote, cache: cache, logger: logger, nodes: make(map[string]cluster.Node)}
}

// RegisterNode registers a peer for fan-out. Satisfies membership.ShardRegistry.
func (r *Router) RegisterNode(id, url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes[id] = cluster.Node{ID: id, URL: url}
}

// DeregisterNode removes a peer. Satisfies membership.ShardRegistry.
func (r *Router) DeregisterNode(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.nodes, id)
}

func (r *Router) sortedNodeIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.nodes))
	for id := range r.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Router) nodeURL(id string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.nodes[id].URL
}

// selectTargets implements §4.5's per-strategy node selection.
func (r *Router) selectTargets(query string, startTime, endTime int64) []string {
	ids := r.sortedNodeIDs()
	if len(ids) == 0 {
		return []string{r.cfg.LocalNodeID}
	}

	switch r.cfg.Type {
	case ShardingTimeBased:
		if startTime == 0 && endTime == 0 {
			return ids
		}
		n := r.cfg.NumberOfShards
		if n > len(ids) {
			n = len(ids)
		}
		return ids[:n]
	case ShardingSourceBased:
		m := sourceTokenRE.FindStringSubmatch(query)
		if m == nil {
			return ids
		}
		idx := cluster.HashMod(m[1], len(ids))
		return []string{ids[idx]}
	default: // BALANCED
		return ids
	}
}

// Search fans the query out to the selected targets, merges within a
// 10-second per-node deadline, sorts by timestamp descending, and
// populates the cache (§4.5).
func (r *Router) Search(ctx context.Context, query string, isRegex bool, startTime, endTime int64) ([]*recordmodel.LogRecord, error) {
	targets := r.selectTargets(query, startTime, endTime)

	type result struct {
		records []*recordmodel.LogRecord
	}
	resultsCh := make(chan result, len(targets))
	var wg sync.WaitGroup

	start := time.Now()
	succeeded := 0
	var succMu sync.Mutex

	for _, nodeID := range targets {
		wg.Add(1)
		go func(nodeID string) {
			defer wg.Done()
			nodeCtx, cancel := context.WithTimeout(ctx, perNodeDeadline)
			defer cancel()

			var records []*recordmodel.LogRecord
			var err error
			if nodeID == r.cfg.LocalNodeID || r.remote == nil {
				if r.local != nil {
					records, err = r.local.Search(nodeCtx, query, isRegex, startTime, endTime)
				}
			} else {
				url := r.nodeURL(nodeID)
				if url == "" {
					return
				}
				records, err = r.remote.SearchRemote(nodeCtx, url, query, isRegex, startTime, endTime)
			}
			if err != nil {
				return
			}
			succMu.Lock()
			succeeded++
			succMu.Unlock()
			resultsCh <- result{records: records}
		}(nodeID)
	}

	go func() {
		wg.Wait()
		close(resultsCh)
	}()

	var merged []*recordmodel.LogRecord
	for res := range resultsCh {
		merged = append(merged, res.records...)
	}

	sort.Slice(merged, func(i, j int) bool { return merged[i].EffectiveTime() > merged[j].EffectiveTime() })

	if r.logger != nil {
		r.logger.LogShardFanout(ctx, len(targets), succeeded, time.Since(start))
	}
	if r.cache != nil {
		r.cache.Put(query, isRegex, startTime, endTime, merged)
	}
	return merged, nil
}

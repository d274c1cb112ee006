// Package coordinator implements C14: the horizontal-scaling gate that
// assigns each log source to exactly one active instance by consistent
// hash, so every source is scanned/listened-to by one node only.
package coordinator

import (
	"sort"
	"sync"

	"github.com/r3elabs/logwatch/cluster"
)

// Config controls whether the gate is active (§4.12, §6 horizontalScaling).
type Config struct {
	Enabled    bool
	InstanceID string
}

// Coordinator tracks the active-instance set and answers "is this source
// mine" for every source id.
type Coordinator struct {
	cfg Config

	mu     sync.RWMutex
	active map[string]bool
}

// New creates a Coordinator seeded with its own instance id in the active set.
func New(cfg Config) *Coordinator {
	c := &Coordinator{cfg: cfg, active: make(map[string]bool)}
	if cfg.InstanceID != "" {
		c.active[cfg.InstanceID] = true
	}
	return c
}

// RegisterNode marks an instance active. Satisfies membership.ShardRegistry.
func (c *Coordinator) RegisterNode(id, url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active[id] = true
}

// DeregisterNode marks an instance inactive. Satisfies membership.ShardRegistry.
func (c *Coordinator) DeregisterNode(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.active, id)
}

// Owns reports whether this instance should process the given source id.
// When scaling is disabled or the active set is empty, every source is
// processed locally (§4.12).
func (c *Coordinator) Owns(sourceID string) bool {
	if !c.cfg.Enabled {
		return true
	}

	c.mu.RLock()
	ids := make([]string, 0, len(c.active))
	for id := range c.active {
		ids = append(ids, id)
	}
	c.mu.RUnlock()

	if len(ids) == 0 {
		return true
	}
	sort.Strings(ids)
	idx := cluster.HashMod(sourceID, len(ids))
	return ids[idx] == c.cfg.InstanceID
}

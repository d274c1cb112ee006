// Package membership implements C9: heartbeat-based cluster membership,
// min-id leader election, and peer registration for the shard router and
// ingestion coordinator.
package membership

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/r3elabs/logwatch/cluster"
	"github.com/r3elabs/logwatch/infrastructure/logging"
)

// Config controls heartbeat cadence and identity (§4.9, §6).
type Config struct {
	Enabled              bool
	NodeID               string
	NodeURL              string
	HeartbeatIntervalMs  int64
	HeartbeatTimeoutMs   int64
	LeaderCheckIntervalMs int64
}

// DefaultConfig matches §6's highAvailability defaults.
func DefaultConfig() Config {
	return Config{
		HeartbeatIntervalMs:   5000,
		HeartbeatTimeoutMs:    15000,
		LeaderCheckIntervalMs: 10000,
	}
}

// PeerClient issues the outbound peer RPCs §4.9 and §6 describe. Production
// wiring backs this with infrastructure/resilience-wrapped HTTP calls.
type PeerClient interface {
	Heartbeat(ctx context.Context, peerURL string, self cluster.Node) error
	LeaderChange(ctx context.Context, peerURL string, state State) error
}

// ShardRegistry is notified as peers join/leave so C5 can route to them.
type ShardRegistry interface {
	RegisterNode(id, url string)
	DeregisterNode(id string)
}

// State is the cluster snapshot published on a leader change (§4.9, §6).
type State struct {
	Nodes    map[string]cluster.Node `json:"nodes"`
	LeaderID string                  `json:"leaderId"`
}

// Membership owns the node set, leader state, and heartbeat lifecycle.
type Membership struct {
	cfg    Config
	selfID string
	logger *logging.Logger
	peers  PeerClient
	shards ShardRegistry

	mu       sync.RWMutex
	nodes    map[string]cluster.Node
	leaderID string
	isLeader bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// New constructs a Membership with the configured or generated node identity.
func New(cfg Config, logger *logging.Logger, peers PeerClient, shards ShardRegistry) *Membership {
	if cfg.HeartbeatIntervalMs <= 0 {
		cfg.HeartbeatIntervalMs = 5000
	}
	if cfg.HeartbeatTimeoutMs <= 0 {
		cfg.HeartbeatTimeoutMs = 15000
	}
	if cfg.LeaderCheckIntervalMs <= 0 {
		cfg.LeaderCheckIntervalMs = 10000
	}
	if cfg.NodeID == "" {
		cfg.NodeID = generateNodeID()
	}

	m := &Membership{
		cfg:    cfg,
		selfID: cfg.NodeID,
		logger: logger,
		peers:  peers,
		shards: shards,
		nodes:  make(map[string]cluster.Node),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	m.nodes[cfg.NodeID] = cluster.Node{ID: cfg.NodeID, URL: cfg.NodeURL, LastHeartbeat: time.Now().UnixMilli()}
	return m
}

// generateNodeID builds "hostname-<8hex>" per §4.9.
func generateNodeID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "node"
	}
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("%s-%s", host, hex.EncodeToString(buf))
}

// SelfID returns this instance's node id.
func (m *Membership) SelfID() string { return m.selfID }

// IsLeader reports whether this instance currently believes it is the leader.
func (m *Membership) IsLeader() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isLeader
}

// Snapshot returns a consistent copy of the current node set and leader id,
// the form C5 and C14 consume for routing decisions (§5 "membership
// mutations publish a consistent snapshot for C5 reads").
func (m *Membership) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	nodes := make(map[string]cluster.Node, len(m.nodes))
	for k, v := range m.nodes {
		nodes[k] = v
	}
	return State{Nodes: nodes, LeaderID: m.leaderID}
}

// Start registers self, runs an initial election, and launches the
// heartbeat loop (§4.9 lifecycle). Disabled Membership is a no-op.
func (m *Membership) Start(ctx context.Context) {
	if !m.cfg.Enabled {
		close(m.doneCh)
		return
	}
	if m.shards != nil {
		m.shards.RegisterNode(m.selfID, m.cfg.NodeURL)
	}
	m.elect(ctx)
	go m.run(ctx)
}

func (m *Membership) run(ctx context.Context) {
	defer close(m.doneCh)
	ticker := time.NewTicker(time.Duration(m.cfg.HeartbeatIntervalMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

// tick updates self, broadcasts to peers, prunes stale nodes, and re-elects
// if needed — the per-interval body of §4.9's lifecycle.
func (m *Membership) tick(ctx context.Context) {
	now := time.Now().UnixMilli()

	m.mu.Lock()
	self := m.nodes[m.selfID]
	self.LastHeartbeat = now
	self.IsLeader = m.isLeader
	m.nodes[m.selfID] = self

	peerURLs := make([]string, 0, len(m.nodes))
	for id, n := range m.nodes {
		if id == m.selfID || n.URL == "" {
			continue
		}
		peerURLs = append(peerURLs, n.URL)
	}
	m.mu.Unlock()

	if m.peers != nil {
		for _, url := range peerURLs {
			_ = m.peers.Heartbeat(ctx, url, self)
		}
	}

	m.pruneStale(now)
	m.elect(ctx)
}

// pruneStale removes peers whose lastHeartbeat is older than the configured
// timeout (§4.9). Self is never pruned.
func (m *Membership) pruneStale(now int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, n := range m.nodes {
		if id == m.selfID {
			continue
		}
		if now-n.LastHeartbeat > m.cfg.HeartbeatTimeoutMs {
			delete(m.nodes, id)
			if m.shards != nil {
				m.shards.DeregisterNode(id)
			}
		}
	}
}

// OnHeartbeat handles an inbound peer heartbeat (§4.9, §6 wire contract).
func (m *Membership) OnHeartbeat(ctx context.Context, nodeID string, timestamp int64, isLeader bool) {
	m.mu.Lock()
	n := m.nodes[nodeID]
	n.ID = nodeID
	n.LastHeartbeat = timestamp
	becameLeader := false
	if isLeader && m.leaderID != nodeID {
		m.leaderID = nodeID
		m.isLeader = nodeID == m.selfID
		becameLeader = true
	}
	m.nodes[nodeID] = n
	m.mu.Unlock()

	if m.shards != nil {
		m.shards.RegisterNode(nodeID, n.URL)
	}
	if becameLeader && m.logger != nil {
		m.logger.LogClusterElection(ctx, nodeID, len(m.nodes), nodeID == m.selfID)
	}
}

// OnNodeLeaving handles an inbound node-leaving notice (§4.9, §6).
func (m *Membership) OnNodeLeaving(ctx context.Context, nodeID string) {
	m.mu.Lock()
	_, wasLeader := m.nodes[nodeID]
	wasLeader = wasLeader && m.leaderID == nodeID
	delete(m.nodes, nodeID)
	m.mu.Unlock()

	if m.shards != nil {
		m.shards.DeregisterNode(nodeID)
	}
	if wasLeader {
		m.elect(ctx)
	}
}

// elect picks min(nodeIds) among the alive set as leader (§4.9). If self
// newly becomes leader, peers are notified of the new ClusterState.
func (m *Membership) elect(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.nodes))
	for id := range m.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if len(ids) == 0 {
		m.mu.Unlock()
		return
	}
	newLeader := ids[0]
	becameLeader := newLeader == m.selfID && m.leaderID != newLeader
	changed := m.leaderID != newLeader
	m.leaderID = newLeader
	m.isLeader = newLeader == m.selfID
	state := State{Nodes: cloneNodes(m.nodes), LeaderID: m.leaderID}
	peerURLs := peerURLsLocked(m.nodes, m.selfID)
	m.mu.Unlock()

	if changed && m.logger != nil {
		m.logger.LogClusterElection(ctx, newLeader, len(state.Nodes), becameLeader)
	}
	if becameLeader && m.peers != nil {
		for _, url := range peerURLs {
			_ = m.peers.LeaderChange(ctx, url, state)
		}
	}
}

func cloneNodes(nodes map[string]cluster.Node) map[string]cluster.Node {
	out := make(map[string]cluster.Node, len(nodes))
	for k, v := range nodes {
		out[k] = v
	}
	return out
}

func peerURLsLocked(nodes map[string]cluster.Node, selfID string) []string {
	out := make([]string, 0, len(nodes))
	for id, n := range nodes {
		if id != selfID && n.URL != "" {
			out = append(out, n.URL)
		}
	}
	return out
}

// Stop halts the heartbeat loop.
func (m *Membership) Stop() {
	select {
	case <-m.stopCh:
	default:
		close(m.stopCh)
	}
	<-m.doneCh
}

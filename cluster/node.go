// Package cluster holds types shared by membership, the shard router, and
// the ingestion coordinator: the peer record and the consistent-hash
// helper used to assign sources/shards across the active node set.
package cluster

import (
	"sort"

	"github.com/cespare/xxhash/v2"
	rendezvous "github.com/dgryski/go-rendezvous"
)

// Node is one member of the cluster as seen by C9 (§4.9).
type Node struct {
	ID            string `json:"nodeId"`
	URL           string `json:"nodeUrl"`
	LastHeartbeat int64  `json:"lastHeartbeat"`
	IsLeader      bool   `json:"isLeader"`
}

func hasher(s string, seed uint64) uint64 {
	return xxhash.Sum64String(s) + seed
}

// NewRendezvous builds a rendezvous-hash ring over the given node ids.
// SOURCE_BASED shard routing (C5) and the ingestion coordinator's
// per-source assignment (C14) use HashMod, not this ring.
func NewRendezvous(nodeIDs []string) *rendezvous.Rendezvous {
	sorted := make([]string, len(nodeIDs))
	copy(sorted, nodeIDs)
	sort.Strings(sorted)
	return rendezvous.New(sorted, hasher)
}

// HashMod assigns key to one of |modulus| buckets by xxhash mod, used for
// SOURCE_BASED routing's hash(value) mod |nodes| rule (§4.5) and by the
// ingestion coordinator (C14).
func HashMod(key string, modulus int) int {
	if modulus <= 0 {
		return 0
	}
	return int(xxhash.Sum64String(key) % uint64(modulus))
}

package router

import (
	"context"
	"testing"

	"github.com/r3elabs/logwatch/recordmodel"
)

type fakeLocal struct {
	records []*recordmodel.LogRecord
}

func (f *fakeLocal) Search(ctx context.Context, query string, isRegex bool, startTime, endTime int64) ([]*recordmodel.LogRecord, error) {
	return f.records, nil
}

type fakeRemote struct {
	byNode map[string][]*recordmodel.LogRecord
}

func (f *fakeRemote) SearchRemote(ctx context.Context, nodeURL, query string, isRegex bool, startTime, endTime int64) ([]*recordmodel.LogRecord, error) {
	return f.byNode[nodeURL], nil
}

type fakeCache struct {
	put    bool
	cached []*recordmodel.LogRecord
}

func (f *fakeCache) Put(query string, isRegex bool, startTime, endTime int64, results []*recordmodel.LogRecord) {
	f.put = true
	f.cached = results
}

func recAt(ts int64) *recordmodel.LogRecord {
	r := recordmodel.New("s", "raw", "m", recordmodel.LevelInfo, &ts, nil)
	return r
}

func TestBalancedRoutingFansOutToAllNodes(t *testing.T) {
	local := &fakeLocal{records: []*recordmodel.LogRecord{recAt(100)}}
	remote := &fakeRemote{byNode: map[string][]*recordmodel.LogRecord{
		"http://b": {recAt(200)},
	}}
	cache := &fakeCache{}
	r := New(Config{Type: ShardingBalanced, LocalNodeID: "node-a"}, local, remote, cache, nil)
	r.RegisterNode("node-a", "http://a")
	r.RegisterNode("node-b", "http://b")

	results, err := r.Search(context.Background(), "query", false, 0, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].EffectiveTime() != 200 {
		t.Errorf("expected descending sort by timestamp, got %d first", results[0].EffectiveTime())
	}
	if !cache.put {
		t.Error("expected Search to populate the cache")
	}
}

func TestSourceBasedRoutingSelectsOneNode(t *testing.T) {
	local := &fakeLocal{}
	remote := &fakeRemote{byNode: map[string][]*recordmodel.LogRecord{}}
	r := New(Config{Type: ShardingSourceBased, LocalNodeID: "node-a"}, local, remote, nil, nil)
	r.RegisterNode("node-a", "http://a")
	r.RegisterNode("node-b", "http://b")
	r.RegisterNode("node-c", "http://c")

	targets := r.selectTargets("source:access.log error", 0, 0)
	if len(targets) != 1 {
		t.Fatalf("targets = %v, want exactly 1 node for a source-scoped query", targets)
	}

	targetsAgain := r.selectTargets("source:access.log error", 0, 0)
	if targets[0] != targetsAgain[0] {
		t.Error("source-based routing must be deterministic for the same source value")
	}
}

func TestSourceBasedRoutingFallsBackToAllNodesWithoutSourceToken(t *testing.T) {
	r := New(Config{Type: ShardingSourceBased, LocalNodeID: "node-a"}, &fakeLocal{}, &fakeRemote{}, nil, nil)
	r.RegisterNode("node-a", "http://a")
	r.RegisterNode("node-b", "http://b")

	targets := r.selectTargets("plain text query", 0, 0)
	if len(targets) != 2 {
		t.Errorf("targets = %d, want 2 (no source: token -> all nodes)", len(targets))
	}
}

func TestTimeBasedRoutingAllNodesWhenUnbounded(t *testing.T) {
	r := New(Config{Type: ShardingTimeBased, LocalNodeID: "node-a", NumberOfShards: 1}, &fakeLocal{}, &fakeRemote{}, nil, nil)
	r.RegisterNode("node-a", "http://a")
	r.RegisterNode("node-b", "http://b")

	targets := r.selectTargets("q", 0, 0)
	if len(targets) != 2 {
		t.Errorf("targets = %d, want 2 (unbounded time range -> all nodes)", len(targets))
	}
}

func TestTimeBasedRoutingCapsAtNumberOfShards(t *testing.T) {
	r := New(Config{Type: ShardingTimeBased, LocalNodeID: "node-a", NumberOfShards: 1}, &fakeLocal{}, &fakeRemote{}, nil, nil)
	r.RegisterNode("node-a", "http://a")
	r.RegisterNode("node-b", "http://b")

	targets := r.selectTargets("q", 100, 200)
	if len(targets) != 1 {
		t.Errorf("targets = %d, want 1 (numberOfShards=1)", len(targets))
	}
}

func TestNoRegisteredNodesFallsBackToLocal(t *testing.T) {
	local := &fakeLocal{records: []*recordmodel.LogRecord{recAt(1)}}
	r := New(Config{Type: ShardingBalanced, LocalNodeID: "node-a"}, local, nil, nil, nil)

	results, err := r.Search(context.Background(), "q", false, 0, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("results = %d, want 1 (local-only fallback)", len(results))
	}
}

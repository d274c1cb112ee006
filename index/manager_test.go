package index

import (
	"context"
	"testing"

	"github.com/r3elabs/logwatch/recordmodel"
)

type fakeCache struct {
	store map[string][]*recordmodel.LogRecord
	puts  int
}

func newFakeCache() *fakeCache {
	return &fakeCache{store: make(map[string][]*recordmodel.LogRecord)}
}

func (c *fakeCache) key(q string, isRegex bool, start, end int64) string {
	return q
}

func (c *fakeCache) Get(q string, isRegex bool, start, end int64) ([]*recordmodel.LogRecord, bool) {
	v, ok := c.store[c.key(q, isRegex, start, end)]
	return v, ok
}

func (c *fakeCache) Put(q string, isRegex bool, start, end int64, results []*recordmodel.LogRecord) {
	c.puts++
	c.store[c.key(q, isRegex, start, end)] = results
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := New(Config{Partitioned: false}, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func TestIndexAllAndSearchByText(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	records := []*recordmodel.LogRecord{
		recordmodel.New("access.log", "raw1", "GET /a 200", recordmodel.LevelInfo, nil, map[string]string{"status_code": "200"}),
		recordmodel.New("access.log", "raw2", "POST /b 500", recordmodel.LevelError, nil, map[string]string{"status_code": "500"}),
	}
	if err := m.IndexAll(ctx, records); err != nil {
		t.Fatalf("IndexAll: %v", err)
	}

	results, err := m.Search(ctx, "GET", false, 0, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	if results[0].Message != "GET /a 200" {
		t.Errorf("message = %q", results[0].Message)
	}
}

func TestSearchEmptyQueryAndNullTimeRangeReturnsEmpty(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	records := []*recordmodel.LogRecord{
		recordmodel.New("access.log", "raw1", "GET /a 200", recordmodel.LevelInfo, nil, nil),
	}
	if err := m.IndexAll(ctx, records); err != nil {
		t.Fatalf("IndexAll: %v", err)
	}

	results, err := m.Search(ctx, "", false, 0, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("results = %d, want 0 for empty query and null time range (spec.md §8)", len(results))
	}

	results, err = m.Search(ctx, "^", false, 0, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("results = %d, want 0 for a trailing-caret-only query (spec.md §8)", len(results))
	}
}

func TestSearchUsesCache(t *testing.T) {
	m, err := New(Config{Partitioned: false}, nil, newFakeCache(), nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	cache := m.cache.(*fakeCache)
	ctx := context.Background()

	rec := recordmodel.New("app.log", "raw", "hello world", recordmodel.LevelInfo, nil, nil)
	if err := m.IndexAll(ctx, []*recordmodel.LogRecord{rec}); err != nil {
		t.Fatalf("IndexAll: %v", err)
	}

	if _, err := m.Search(ctx, "hello", false, 0, 0); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if cache.puts != 1 {
		t.Errorf("puts = %d, want 1", cache.puts)
	}

	cached := []*recordmodel.LogRecord{rec}
	cache.store["hello"] = cached
	results, err := m.Search(ctx, "hello", false, 0, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected cached hit, got %d results", len(results))
	}
}

func TestFindByLevel(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	records := []*recordmodel.LogRecord{
		recordmodel.New("a.log", "raw1", "m1", recordmodel.LevelError, nil, nil),
		recordmodel.New("a.log", "raw2", "m2", recordmodel.LevelInfo, nil, nil),
	}
	if err := m.IndexAll(ctx, records); err != nil {
		t.Fatalf("IndexAll: %v", err)
	}

	results, err := m.FindByLevel(ctx, recordmodel.LevelError)
	if err != nil {
		t.Fatalf("FindByLevel: %v", err)
	}
	if len(results) != 1 || results[0].Level != recordmodel.LevelError {
		t.Fatalf("expected exactly one ERROR record, got %d", len(results))
	}
}

func TestFindBySource(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	records := []*recordmodel.LogRecord{
		recordmodel.New("source-a.log", "raw1", "m1", recordmodel.LevelInfo, nil, nil),
		recordmodel.New("source-b.log", "raw2", "m2", recordmodel.LevelInfo, nil, nil),
	}
	if err := m.IndexAll(ctx, records); err != nil {
		t.Fatalf("IndexAll: %v", err)
	}

	results, err := m.FindBySource(ctx, "source-a.log")
	if err != nil {
		t.Fatalf("FindBySource: %v", err)
	}
	if len(results) != 1 || results[0].Source != "source-a.log" {
		t.Fatalf("expected exactly one record from source-a.log, got %d", len(results))
	}
}

func TestFindByIDAndDedup(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	rec := recordmodel.New("a.log", "same raw content", "first version", recordmodel.LevelInfo, nil, nil)
	if err := m.IndexAll(ctx, []*recordmodel.LogRecord{rec}); err != nil {
		t.Fatalf("IndexAll: %v", err)
	}

	updated := recordmodel.New("a.log", "same raw content", "second version", recordmodel.LevelWarn, nil, nil)
	if err := m.IndexAll(ctx, []*recordmodel.LogRecord{updated}); err != nil {
		t.Fatalf("IndexAll: %v", err)
	}

	results, err := m.FindBySource(ctx, "a.log")
	if err != nil {
		t.Fatalf("FindBySource: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected re-indexing same rawContent to overwrite, got %d records", len(results))
	}
	if results[0].Message != "second version" {
		t.Errorf("message = %q, want second version", results[0].Message)
	}
}

func TestDeleteOlderThan(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	old := int64(1000)
	recent := int64(9000000000000)
	records := []*recordmodel.LogRecord{
		recordmodel.New("a.log", "old-raw", "old message", recordmodel.LevelInfo, &old, nil),
		recordmodel.New("a.log", "new-raw", "new message", recordmodel.LevelInfo, &recent, nil),
	}
	if err := m.IndexAll(ctx, records); err != nil {
		t.Fatalf("IndexAll: %v", err)
	}

	if err := m.DeleteOlderThan(ctx, 5000, ""); err != nil {
		t.Fatalf("DeleteOlderThan: %v", err)
	}

	results, err := m.FindBySource(ctx, "a.log")
	if err != nil {
		t.Fatalf("FindBySource: %v", err)
	}
	if len(results) != 1 || results[0].Message != "new message" {
		t.Fatalf("expected only the recent record to survive, got %d", len(results))
	}
}

type recordingArchiver struct {
	archived []*recordmodel.LogRecord
}

func (a *recordingArchiver) Archive(ctx context.Context, partitionName string, records []*recordmodel.LogRecord) error {
	a.archived = append(a.archived, records...)
	return nil
}

func TestDeleteOlderThanArchivesFirst(t *testing.T) {
	arch := &recordingArchiver{}
	m, err := New(Config{Partitioned: false}, nil, nil, nil, arch)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	old := int64(1000)
	rec := recordmodel.New("a.log", "raw", "msg", recordmodel.LevelInfo, &old, nil)
	if err := m.IndexAll(ctx, []*recordmodel.LogRecord{rec}); err != nil {
		t.Fatalf("IndexAll: %v", err)
	}
	if err := m.DeleteOlderThan(ctx, 5000, ""); err != nil {
		t.Fatalf("DeleteOlderThan: %v", err)
	}
	if len(arch.archived) != 1 {
		t.Fatalf("archived = %d, want 1", len(arch.archived))
	}
}

type recordingBroadcaster struct {
	calls int
}

func (b *recordingBroadcaster) BroadcastIndexed(ctx context.Context, records []*recordmodel.LogRecord) {
	b.calls++
}

func TestIndexAllBroadcasts(t *testing.T) {
	bcast := &recordingBroadcaster{}
	m, err := New(Config{Partitioned: false}, nil, nil, bcast, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rec := recordmodel.New("a.log", "raw", "msg", recordmodel.LevelInfo, nil, nil)
	if err := m.IndexAll(context.Background(), []*recordmodel.LogRecord{rec}); err != nil {
		t.Fatalf("IndexAll: %v", err)
	}
	if bcast.calls != 1 {
		t.Errorf("calls = %d, want 1", bcast.calls)
	}
}

package query

import (
	"context"
	"testing"

	"github.com/r3elabs/logwatch/recordmodel"
)

type fakeIndex struct {
	searchResults    []*recordmodel.LogRecord
	byLevelResults   []*recordmodel.LogRecord
	bySourceResults  []*recordmodel.LogRecord
}

func (f *fakeIndex) Search(ctx context.Context, query string, isRegex bool, startTime, endTime int64) ([]*recordmodel.LogRecord, error) {
	return f.searchResults, nil
}
func (f *fakeIndex) FindByLevel(ctx context.Context, level recordmodel.Level) ([]*recordmodel.LogRecord, error) {
	return f.byLevelResults, nil
}
func (f *fakeIndex) FindBySource(ctx context.Context, source string) ([]*recordmodel.LogRecord, error) {
	return f.bySourceResults, nil
}

func rec(source string, level recordmodel.Level, msg string, ts int64) *recordmodel.LogRecord {
	r := recordmodel.New(source, msg, msg, level, &ts, nil)
	return r
}

func TestSearchStageUsesLevelTermLookup(t *testing.T) {
	idx := &fakeIndex{byLevelResults: []*recordmodel.LogRecord{rec("a", recordmodel.LevelError, "m", 1)}}
	res := Execute(context.Background(), idx, "search level=ERROR", 0, 0)
	if len(res.LogEntries) != 1 {
		t.Fatalf("entries = %d, want 1", len(res.LogEntries))
	}
}

func TestSearchStageUsesSourceTermLookup(t *testing.T) {
	idx := &fakeIndex{bySourceResults: []*recordmodel.LogRecord{rec("access.log", recordmodel.LevelInfo, "m", 1)}}
	res := Execute(context.Background(), idx, "search source=access.log", 0, 0)
	if len(res.LogEntries) != 1 {
		t.Fatalf("entries = %d, want 1", len(res.LogEntries))
	}
}

func TestSearchStageFallsBackToFullText(t *testing.T) {
	idx := &fakeIndex{searchResults: []*recordmodel.LogRecord{rec("a", recordmodel.LevelInfo, "hello", 1)}}
	res := Execute(context.Background(), idx, "search hello", 0, 0)
	if len(res.LogEntries) != 1 {
		t.Fatalf("entries = %d, want 1", len(res.LogEntries))
	}
}

func TestWhereFiltersInMemory(t *testing.T) {
	idx := &fakeIndex{searchResults: []*recordmodel.LogRecord{
		rec("a.log", recordmodel.LevelError, "m1", 1),
		rec("b.log", recordmodel.LevelInfo, "m2", 2),
	}}
	res := Execute(context.Background(), idx, "search m | where level=ERROR", 0, 0)
	if len(res.LogEntries) != 1 || res.LogEntries[0].Source != "a.log" {
		t.Fatalf("expected exactly the ERROR record to survive, got %d", len(res.LogEntries))
	}
}

func TestSortDescendingByTimestamp(t *testing.T) {
	idx := &fakeIndex{searchResults: []*recordmodel.LogRecord{
		rec("a", recordmodel.LevelInfo, "m1", 1),
		rec("a", recordmodel.LevelInfo, "m2", 5),
		rec("a", recordmodel.LevelInfo, "m3", 3),
	}}
	res := Execute(context.Background(), idx, "search m | sort -timestamp", 0, 0)
	if res.LogEntries[0].EffectiveTime() != 5 || res.LogEntries[2].EffectiveTime() != 1 {
		t.Errorf("expected descending order, got %v", []int64{res.LogEntries[0].EffectiveTime(), res.LogEntries[1].EffectiveTime(), res.LogEntries[2].EffectiveTime()})
	}
}

func TestHeadAndTailDefaultAndExplicit(t *testing.T) {
	entries := make([]*recordmodel.LogRecord, 20)
	for i := range entries {
		entries[i] = rec("a", recordmodel.LevelInfo, "m", int64(i))
	}
	idx := &fakeIndex{searchResults: entries}

	res := Execute(context.Background(), idx, "search m | head", 0, 0)
	if len(res.LogEntries) != 10 {
		t.Errorf("head default = %d, want 10", len(res.LogEntries))
	}

	res = Execute(context.Background(), idx, "search m | tail 3", 0, 0)
	if len(res.LogEntries) != 3 {
		t.Errorf("tail 3 = %d, want 3", len(res.LogEntries))
	}
	if res.LogEntries[0].EffectiveTime() != 17 {
		t.Errorf("tail should keep the last 3, got first ts=%d", res.LogEntries[0].EffectiveTime())
	}
}

func TestStatsCountTerminal(t *testing.T) {
	idx := &fakeIndex{searchResults: []*recordmodel.LogRecord{
		rec("a", recordmodel.LevelInfo, "m1", 1),
		rec("a", recordmodel.LevelInfo, "m2", 2),
	}}
	res := Execute(context.Background(), idx, "search m | stats count | sort timestamp", 0, 0)
	if res.ResultType != ResultStatistics {
		t.Fatalf("resultType = %s, want STATISTICS", res.ResultType)
	}
	if res.Statistics["count"] != 2 {
		t.Errorf("count = %d, want 2", res.Statistics["count"])
	}
}

func TestStatsCountByField(t *testing.T) {
	idx := &fakeIndex{searchResults: []*recordmodel.LogRecord{
		rec("a.log", recordmodel.LevelError, "m1", 1),
		rec("a.log", recordmodel.LevelInfo, "m2", 2),
		rec("b.log", recordmodel.LevelInfo, "m3", 3),
	}}
	res := Execute(context.Background(), idx, "search m | stats count by source", 0, 0)
	if res.Statistics["a.log"] != 2 || res.Statistics["b.log"] != 1 {
		t.Errorf("statistics = %+v", res.Statistics)
	}
}

func TestEvalIsNoop(t *testing.T) {
	idx := &fakeIndex{searchResults: []*recordmodel.LogRecord{rec("a", recordmodel.LevelInfo, "m", 1)}}
	res := Execute(context.Background(), idx, "search m | eval something", 0, 0)
	if len(res.LogEntries) != 1 {
		t.Errorf("eval stage should pass records through unchanged, got %d", len(res.LogEntries))
	}
}

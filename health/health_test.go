package health

import (
	"context"
	"testing"

	"github.com/r3elabs/logwatch/alarms"
)

type fakeAlarmStore struct {
	upserted map[string]alarms.Alarm
}

func newFakeAlarmStore() *fakeAlarmStore {
	return &fakeAlarmStore{upserted: make(map[string]alarms.Alarm)}
}

func (f *fakeAlarmStore) Upsert(ctx context.Context, a alarms.Alarm) error {
	f.upserted[a.ID] = a
	return nil
}

func TestSampleOnceProducesAReading(t *testing.T) {
	store := newFakeAlarmStore()
	s := New(DefaultThresholds(), store, nil, nil)

	sample := s.SampleOnce(context.Background())
	if sample.SampledAt == 0 {
		t.Fatal("expected a non-zero sample timestamp")
	}
	if s.Last().SampledAt != sample.SampledAt {
		t.Fatal("expected Last() to return the sample just taken")
	}
}

func TestSampleOnceUpsertsFourPredefinedAlarms(t *testing.T) {
	store := newFakeAlarmStore()
	s := New(DefaultThresholds(), store, nil, nil)

	s.SampleOnce(context.Background())

	if len(store.upserted) != 4 {
		t.Fatalf("expected 4 predefined alarms, got %d", len(store.upserted))
	}
	for _, want := range []string{cpuAlarmName, memAlarmName, diskAlarmName, healthAlarmName} {
		found := false
		for _, a := range store.upserted {
			if a.Name == want {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expected an alarm named %q", want)
		}
	}
}

func TestPredefinedAlarmsShareGroupingKey(t *testing.T) {
	store := newFakeAlarmStore()
	s := New(DefaultThresholds(), store, nil, nil)
	s.SampleOnce(context.Background())

	for _, a := range store.upserted {
		if a.GroupingKey != groupingKey {
			t.Errorf("alarm %s: grouping key = %q, want %q", a.Name, a.GroupingKey, groupingKey)
		}
	}
}

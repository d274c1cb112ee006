package alarms

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/r3elabs/logwatch/infrastructure/logging"
)

// Searcher runs a count-only search against the index (C3).
type Searcher interface {
	Count(ctx context.Context, query string, startTime, endTime int64) (int, error)
}

// Sender delivers a rendered message to one channel. Pure sink: returns
// success/failure, never retried (§4.7).
type Sender interface {
	Send(ctx context.Context, channel Channel, message string) bool
}

// Store loads the enabled alarms (§6: alarm configuration repository).
// Notification history is kept in the Engine's memory, not in the Store.
type Store interface {
	ListEnabled(ctx context.Context) ([]Alarm, error)
}

type historyEntry struct {
	timestamps []int64
}

type groupBucket struct {
	members []GroupMember
	channels map[Channel]bool
}

// Engine runs the evaluation and grouped-delivery loops described in §4.7.
type Engine struct {
	store    Store
	searcher Searcher
	sender   Sender
	logger   *logging.Logger

	historyMu sync.Mutex
	history   map[string]*historyEntry // alarm id -> notification timestamps

	groupMu sync.Mutex
	groups  map[string]*groupBucket // groupingKey -> pending members

	defaultGroupingWindowMs int64
	cronRunner              *cron.Cron
}

// DefaultGroupingWindowMs is §4.7's 5-minute default grouping window.
const DefaultGroupingWindowMs = 5 * 60 * 1000

// New creates an Engine.
func New(store Store, searcher Searcher, sender Sender, logger *logging.Logger) *Engine {
	return &Engine{
		store:                   store,
		searcher:                searcher,
		sender:                  sender,
		logger:                  logger,
		history:                 make(map[string]*historyEntry),
		groups:                  make(map[string]*groupBucket),
		defaultGroupingWindowMs: DefaultGroupingWindowMs,
	}
}

// Start schedules the 60s evaluation loop and the 30s grouped-delivery loop
// via robfig/cron (§4.7).
func (e *Engine) Start(ctx context.Context) error {
	e.cronRunner = cron.New()
	if _, err := e.cronRunner.AddFunc("@every 60s", func() { e.EvaluateAll(ctx) }); err != nil {
		return err
	}
	if _, err := e.cronRunner.AddFunc("@every 30s", func() { e.ProcessGroups(ctx) }); err != nil {
		return err
	}
	e.cronRunner.Start()
	return nil
}

// Stop halts the scheduled loops.
func (e *Engine) Stop() {
	if e.cronRunner != nil {
		stopCtx := e.cronRunner.Stop()
		<-stopCtx.Done()
	}
}

// EvaluateAll runs one pass of §4.7's evaluation loop over every enabled alarm.
func (e *Engine) EvaluateAll(ctx context.Context) {
	alarms, err := e.store.ListEnabled(ctx)
	if err != nil {
		return
	}
	now := time.Now().UnixMilli()
	for _, a := range alarms {
		e.evaluateOne(ctx, a, now)
	}
}

func (e *Engine) evaluateOne(ctx context.Context, a Alarm, now int64) {
	windowMs := int64(a.TimeWindowMinutes) * 60 * 1000
	start := now - windowMs

	count, err := e.searcher.Count(ctx, a.Query, start, now)
	if err != nil {
		return
	}

	op, ok := ParseCondition(a.Condition)
	if !ok {
		return
	}
	triggered := Evaluate(op, count, a.Threshold)
	throttled := false
	if triggered {
		throttled = e.deliverOrGroup(ctx, a, count, now)
	}
	if e.logger != nil {
		e.logger.LogAlarmFire(ctx, a.Name, count, a.Threshold, throttled)
	}
}

// deliverOrGroup implements §4.7's notification path: throttle check, then
// either append to a grouping bucket or deliver immediately. Returns true
// if the notification was throttled (short-circuited).
func (e *Engine) deliverOrGroup(ctx context.Context, a Alarm, count int, now int64) bool {
	if a.ThrottleWindowMinutes > 0 {
		if e.isThrottled(a, now) {
			return true
		}
	}

	if a.GroupingKey != "" {
		e.addToGroup(a, count, now)
		return false
	}

	e.dispatch(ctx, a.Channels, RenderMessage(a, count))
	e.recordHistory(a.ID, now)
	return false
}

func (e *Engine) isThrottled(a Alarm, now int64) bool {
	windowMs := int64(a.ThrottleWindowMinutes) * 60 * 1000
	cutoff := now - windowMs

	e.historyMu.Lock()
	defer e.historyMu.Unlock()

	h, ok := e.history[a.ID]
	if !ok {
		return false
	}
	pruned := h.timestamps[:0]
	for _, ts := range h.timestamps {
		if ts >= cutoff {
			pruned = append(pruned, ts)
		}
	}
	h.timestamps = pruned
	return len(h.timestamps) >= a.MaxNotificationsPerWindow
}

func (e *Engine) recordHistory(alarmID string, now int64) {
	e.historyMu.Lock()
	defer e.historyMu.Unlock()
	h, ok := e.history[alarmID]
	if !ok {
		h = &historyEntry{}
		e.history[alarmID] = h
	}
	h.timestamps = append(h.timestamps, now)
}

func (e *Engine) addToGroup(a Alarm, count int, now int64) {
	e.groupMu.Lock()
	defer e.groupMu.Unlock()

	b, ok := e.groups[a.GroupingKey]
	if !ok {
		b = &groupBucket{channels: make(map[Channel]bool)}
		e.groups[a.GroupingKey] = b
	}
	b.members = append(b.members, GroupMember{Alarm: a, MatchCount: count, TriggeredAt: now})
	for _, ch := range a.Channels {
		b.channels[ch] = true
	}
}

// ProcessGroups runs one pass of §4.7's grouped-delivery loop: every bucket
// whose oldest member has aged past its grouping window is flushed as one
// combined message.
func (e *Engine) ProcessGroups(ctx context.Context) {
	now := time.Now().UnixMilli()

	e.groupMu.Lock()
	var ready []struct {
		key string
		b   *groupBucket
	}
	for key, b := range e.groups {
		if len(b.members) == 0 {
			delete(e.groups, key)
			continue
		}
		oldest := b.members[0].TriggeredAt
		for _, m := range b.members {
			if m.TriggeredAt < oldest {
				oldest = m.TriggeredAt
			}
		}
		window := e.windowFor(b)
		if now-oldest >= window {
			ready = append(ready, struct {
				key string
				b   *groupBucket
			}{key, b})
			delete(e.groups, key)
		}
	}
	e.groupMu.Unlock()

	for _, r := range ready {
		e.flushGroup(ctx, r.key, r.b, now)
	}
}

func (e *Engine) windowFor(b *groupBucket) int64 {
	for _, m := range b.members {
		if m.Alarm.GroupingWindowMs > 0 {
			return m.Alarm.GroupingWindowMs
		}
	}
	return e.defaultGroupingWindowMs
}

func (e *Engine) flushGroup(ctx context.Context, key string, b *groupBucket, now int64) {
	sort.Slice(b.members, func(i, j int) bool { return b.members[i].TriggeredAt < b.members[j].TriggeredAt })
	message := RenderGroupedMessage(key, b.members)

	channels := make([]Channel, 0, len(b.channels))
	for ch := range b.channels {
		channels = append(channels, ch)
	}
	e.dispatch(ctx, channels, message)

	for _, m := range b.members {
		e.recordHistory(m.Alarm.ID, now)
	}
}

// dispatch sends message to every channel; per-channel failures are logged,
// never retried (§4.7).
func (e *Engine) dispatch(ctx context.Context, channels []Channel, message string) {
	for _, ch := range channels {
		if e.sender == nil {
			continue
		}
		if ok := e.sender.Send(ctx, ch, message); !ok && e.logger != nil {
			e.logger.LogAlarmFire(ctx, "dispatch-failed:"+string(ch), 0, 0, false)
		}
	}
}

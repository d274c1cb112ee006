// Package health implements C12: periodic sampling of CPU/memory/disk
// utilization and overall health status, fed into the alarm engine via four
// predefined, self-maintaining alarms (§4.13).
package health

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/r3elabs/logwatch/alarms"
	"github.com/r3elabs/logwatch/infrastructure/logging"
	"github.com/r3elabs/logwatch/infrastructure/metrics"
)

// Sample is one point-in-time system health reading (§4.13).
type Sample struct {
	CPUPercent  float64
	MemPercent  float64
	DiskPercent float64
	Healthy     bool
	SampledAt   int64
}

// Thresholds control when a sample is considered unhealthy and what the
// four predefined alarms compare against (§4.13: "configurable thresholds").
type Thresholds struct {
	CPUPercent  float64
	MemPercent  float64
	DiskPercent float64
	DiskPath    string
}

// DefaultThresholds matches common conservative defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{CPUPercent: 90, MemPercent: 90, DiskPercent: 90, DiskPath: "/"}
}

// AlarmStore upserts the four predefined system-health alarms (§4.13:
// "maintained (created or updated)").
type AlarmStore interface {
	Upsert(ctx context.Context, a alarms.Alarm) error
}

const (
	cpuAlarmName    = "System CPU Usage Alert"
	memAlarmName    = "System Memory Usage Alert"
	diskAlarmName   = "System Disk Usage Alert"
	healthAlarmName = "System Health Check Alert"

	// groupingKey defaults system-health alarms into a single bucket
	// (§4.13: 'default grouping key "system-health"').
	groupingKey      = "system-health"
	groupingWindowMs = 5 * 60 * 1000
)

// Sampler periodically samples system resources, records Prometheus
// gauges, and keeps the four predefined alarms in sync (§4.13).
type Sampler struct {
	thresholds Thresholds
	alarmStore AlarmStore
	metrics    *metrics.Metrics
	logger     *logging.Logger

	cronRunner *cron.Cron

	mu   sync.Mutex
	last Sample
}

// New creates a Sampler.
func New(thresholds Thresholds, alarmStore AlarmStore, m *metrics.Metrics, logger *logging.Logger) *Sampler {
	if thresholds.DiskPath == "" {
		thresholds.DiskPath = "/"
	}
	return &Sampler{thresholds: thresholds, alarmStore: alarmStore, metrics: m, logger: logger}
}

// Start schedules the 60s sampling loop (§4.13) and seeds the predefined
// alarms once at startup.
func (s *Sampler) Start(ctx context.Context) error {
	s.ensureAlarms(ctx)

	s.cronRunner = cron.New()
	if _, err := s.cronRunner.AddFunc("@every 60s", func() { s.SampleOnce(ctx) }); err != nil {
		return err
	}
	s.cronRunner.Start()
	return nil
}

// Stop halts the sampling loop.
func (s *Sampler) Stop() {
	if s.cronRunner != nil {
		stopCtx := s.cronRunner.Stop()
		<-stopCtx.Done()
	}
}

// SampleOnce takes one reading, updates metrics, and keeps the predefined
// alarms current. Sampling failures on one dimension do not block the
// others (§4.13 shares §7's "continue on per-component failure" posture).
func (s *Sampler) SampleOnce(ctx context.Context) Sample {
	sample := Sample{SampledAt: time.Now().UnixMilli(), Healthy: true}

	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		sample.CPUPercent = pct[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		sample.MemPercent = vm.UsedPercent
	}
	if du, err := disk.UsageWithContext(ctx, s.thresholds.DiskPath); err == nil {
		sample.DiskPercent = du.UsedPercent
	}

	sample.Healthy = sample.CPUPercent < s.thresholds.CPUPercent &&
		sample.MemPercent < s.thresholds.MemPercent &&
		sample.DiskPercent < s.thresholds.DiskPercent

	s.mu.Lock()
	s.last = sample
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordSystemHealth(sample.CPUPercent, sample.MemPercent, sample.DiskPercent, sample.Healthy)
	}
	s.ensureAlarms(ctx)
	return sample
}

// Last returns the most recent sample taken.
func (s *Sampler) Last() Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// ensureAlarms creates or updates the four predefined system-health alarms
// against the current thresholds (§4.13). The query clauses match records
// with source "system-health"; the Sampler itself writes no records to the
// index, only metrics and these alarm definitions.
func (s *Sampler) ensureAlarms(ctx context.Context) {
	if s.alarmStore == nil {
		return
	}
	defs := []alarms.Alarm{
		{
			ID: "system-cpu-alert", Name: cpuAlarmName,
			Query: "source=system-health level=WARN metadata.metric=cpu",
			Condition: "count > 0", Threshold: float64(s.thresholds.CPUPercent),
			TimeWindowMinutes: 5, ThrottleWindowMinutes: 15, MaxNotificationsPerWindow: 1,
			GroupingKey: groupingKey, GroupingWindowMs: groupingWindowMs,
			Channels: []alarms.Channel{alarms.ChannelSlack}, Enabled: true,
		},
		{
			ID: "system-memory-alert", Name: memAlarmName,
			Query: "source=system-health level=WARN metadata.metric=memory",
			Condition: "count > 0", Threshold: float64(s.thresholds.MemPercent),
			TimeWindowMinutes: 5, ThrottleWindowMinutes: 15, MaxNotificationsPerWindow: 1,
			GroupingKey: groupingKey, GroupingWindowMs: groupingWindowMs,
			Channels: []alarms.Channel{alarms.ChannelSlack}, Enabled: true,
		},
		{
			ID: "system-disk-alert", Name: diskAlarmName,
			Query: "source=system-health level=WARN metadata.metric=disk",
			Condition: "count > 0", Threshold: float64(s.thresholds.DiskPercent),
			TimeWindowMinutes: 5, ThrottleWindowMinutes: 15, MaxNotificationsPerWindow: 1,
			GroupingKey: groupingKey, GroupingWindowMs: groupingWindowMs,
			Channels: []alarms.Channel{alarms.ChannelSlack}, Enabled: true,
		},
		{
			ID: "system-health-check-alert", Name: healthAlarmName,
			Query: "source=system-health level=ERROR", Condition: "count > 0", Threshold: 0,
			TimeWindowMinutes: 5, ThrottleWindowMinutes: 15, MaxNotificationsPerWindow: 1,
			GroupingKey: groupingKey, GroupingWindowMs: groupingWindowMs,
			Channels: []alarms.Channel{alarms.ChannelPagerDuty}, Enabled: true,
		},
	}
	for _, a := range defs {
		if err := s.alarmStore.Upsert(ctx, a); err != nil && s.logger != nil {
			s.logger.LogIngest(ctx, "health-alarm-upsert:"+a.Name, 0, err)
		}
	}
}

// Package metrics provides Prometheus metrics collection
package metrics

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/r3elabs/logwatch/infrastructure/runtime"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Error metrics
	ErrorsTotal *prometheus.CounterVec

	// Ingestion metrics
	IngestRecordsTotal    *prometheus.CounterVec
	IngestBatchDuration   *prometheus.HistogramVec

	// Index/storage metrics
	IndexQueriesTotal   *prometheus.CounterVec
	IndexQueryDuration  *prometheus.HistogramVec
	IndexSegmentsOpen   prometheus.Gauge

	// Service health
	ServiceUptime prometheus.Gauge
	ServiceInfo   *prometheus.GaugeVec

	// System health samples (C12)
	SystemCPUPercent  prometheus.Gauge
	SystemMemPercent  prometheus.Gauge
	SystemDiskPercent prometheus.Gauge
	SystemHealthy     prometheus.Gauge
}

// New creates a new Metrics instance with all collectors registered
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new Metrics instance with a custom registry
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP metrics
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"service", "method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"service", "method", "path"},
		),
		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Current number of HTTP requests being processed",
			},
		),

		// Error metrics
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "errors_total",
				Help: "Total number of errors",
			},
			[]string{"service", "type", "operation"},
		),

		// Ingestion metrics
		IngestRecordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "logwatch_ingest_records_total",
				Help: "Total number of log records ingested",
			},
			[]string{"service", "source_type", "status"},
		),
		IngestBatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "logwatch_ingest_batch_duration_seconds",
				Help:    "Duration of a parse-and-buffer ingestion batch in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"service", "source_type"},
		),

		// Index/storage metrics
		IndexQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "logwatch_index_operations_total",
				Help: "Total number of partitioned index read/write operations",
			},
			[]string{"service", "operation", "status"},
		),
		IndexQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "logwatch_index_operation_duration_seconds",
				Help:    "Duration of partitioned index read/write operations in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"service", "operation"},
		),
		IndexSegmentsOpen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "logwatch_index_segments_open",
				Help: "Current number of open index segments across partitions",
			},
		),

		// Service health
		ServiceUptime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "service_uptime_seconds",
				Help: "Service uptime in seconds",
			},
		),
		ServiceInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "service_info",
				Help: "Service information",
			},
			[]string{"service", "version", "environment"},
		),

		// System health samples (C12)
		SystemCPUPercent: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "logwatch_system_cpu_percent",
				Help: "Most recently sampled overall CPU load percentage",
			},
		),
		SystemMemPercent: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "logwatch_system_memory_percent",
				Help: "Most recently sampled heap+non-heap memory usage percentage",
			},
		),
		SystemDiskPercent: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "logwatch_system_disk_percent",
				Help: "Most recently sampled disk usage percentage",
			},
		),
		SystemHealthy: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "logwatch_system_healthy",
				Help: "1 if the last health sample was within all thresholds, else 0",
			},
		),
	}

	// Register all collectors
	if registerer != nil {
		registerer.MustRegister(
			m.RequestsTotal,
			m.RequestDuration,
			m.RequestsInFlight,
			m.ErrorsTotal,
			m.IngestRecordsTotal,
			m.IngestBatchDuration,
			m.IndexQueriesTotal,
			m.IndexQueryDuration,
			m.IndexSegmentsOpen,
			m.ServiceUptime,
			m.ServiceInfo,
			m.SystemCPUPercent,
			m.SystemMemPercent,
			m.SystemDiskPercent,
			m.SystemHealthy,
		)
	}

	// Set service info
	m.ServiceInfo.WithLabelValues(serviceName, "1.0.0", getEnvironment()).Set(1)

	return m
}

// RecordSystemHealth records one C12 health sample.
func (m *Metrics) RecordSystemHealth(cpuPercent, memPercent, diskPercent float64, healthy bool) {
	m.SystemCPUPercent.Set(cpuPercent)
	m.SystemMemPercent.Set(memPercent)
	m.SystemDiskPercent.Set(diskPercent)
	if healthy {
		m.SystemHealthy.Set(1)
	} else {
		m.SystemHealthy.Set(0)
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(service, method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(service, method, path, status).Inc()
	m.RequestDuration.WithLabelValues(service, method, path).Observe(duration.Seconds())
}

// RecordError records an error
func (m *Metrics) RecordError(service, errorType, operation string) {
	m.ErrorsTotal.WithLabelValues(service, errorType, operation).Inc()
}

// RecordIngestBatch records a parse-and-buffer ingestion batch for a source type.
func (m *Metrics) RecordIngestBatch(service, sourceType, status string, recordCount int, duration time.Duration) {
	m.IngestRecordsTotal.WithLabelValues(service, sourceType, status).Add(float64(recordCount))
	m.IngestBatchDuration.WithLabelValues(service, sourceType).Observe(duration.Seconds())
}

// RecordIndexOperation records a partitioned index read or write operation.
func (m *Metrics) RecordIndexOperation(service, operation, status string, duration time.Duration) {
	m.IndexQueriesTotal.WithLabelValues(service, operation, status).Inc()
	m.IndexQueryDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
}

// SetIndexSegmentsOpen sets the number of open index segments.
func (m *Metrics) SetIndexSegmentsOpen(count int) {
	m.IndexSegmentsOpen.Set(float64(count))
}

// UpdateUptime updates the service uptime
func (m *Metrics) UpdateUptime(startTime time.Time) {
	m.ServiceUptime.Set(time.Since(startTime).Seconds())
}

// IncrementInFlight increments the in-flight requests counter
func (m *Metrics) IncrementInFlight() {
	m.RequestsInFlight.Inc()
}

// DecrementInFlight decrements the in-flight requests counter
func (m *Metrics) DecrementInFlight() {
	m.RequestsInFlight.Dec()
}

// Helper functions

func getEnvironment() string {
	return string(runtime.Env())
}

// Enabled returns whether Prometheus metrics should be exposed.
//
// Defaults:
// - production: disabled unless explicitly enabled via METRICS_ENABLED
// - non-production: enabled unless explicitly disabled via METRICS_ENABLED
func Enabled() bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("METRICS_ENABLED")))
	if raw == "" {
		return !runtime.IsProduction()
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// Global metrics instance
var (
	globalMetrics *Metrics
	globalMu      sync.Mutex
)

// Init initializes the global metrics instance
func Init(serviceName string) *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New(serviceName)
	}
	return globalMetrics
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New("unknown")
	}
	return globalMetrics
}

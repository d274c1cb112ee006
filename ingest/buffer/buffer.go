// Package buffer implements C2: a bounded in-memory queue that decouples
// the many producers feeding parsed LogRecords from the one indexer that
// consumes them in batches.
package buffer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/r3elabs/logwatch/infrastructure/logging"
	"github.com/r3elabs/logwatch/recordmodel"
	"github.com/r3elabs/logwatch/redaction"
)

// redactionMask replaces a matched sensitive value before a record ever
// reaches the index (C13, §4.14).
const redactionMask = "***"

// Sink indexes a batch of records. Implemented by the partitioned index (C3).
type Sink interface {
	IndexAll(ctx context.Context, records []*recordmodel.LogRecord) error
}

// Config controls size- and time-triggered flush behavior (§4.2).
// MaxRecordsPerSecond caps the rate of records accepted through Add; 0
// disables the limiter. AddAll is not rate limited.
type Config struct {
	MaxSize             int
	FlushIntervalMs     int64
	MaxRecordsPerSecond float64
}

// DefaultConfig matches the spec defaults: buffer.max-size=1000,
// buffer.flush-interval-ms=30000.
func DefaultConfig() Config {
	return Config{MaxSize: 1000, FlushIntervalMs: 30000}
}

// Buffer is the bounded queue described in §4.2. add/addAll return
// immediately; flush is non-reentrant and mutually exclusive — a contended
// flush call is a no-op, not a blocking wait, since the running flush
// already covers everything pending at the time it started.
type Buffer struct {
	cfg      Config
	sink     Sink
	logger   *logging.Logger
	limiter  *rate.Limiter
	redactor *redaction.Redactor

	mu      sync.Mutex
	pending []*recordmodel.LogRecord

	dropped int64

	flushing  int32
	stopCh    chan struct{}
	doneCh    chan struct{}
	startOnce sync.Once
}

// New creates a Buffer that flushes into sink.
func New(cfg Config, sink Sink, logger *logging.Logger) *Buffer {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 1000
	}
	if cfg.FlushIntervalMs <= 0 {
		cfg.FlushIntervalMs = 30000
	}
	b := &Buffer{
		cfg:    cfg,
		sink:   sink,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	if cfg.MaxRecordsPerSecond > 0 {
		b.limiter = rate.NewLimiter(rate.Limit(cfg.MaxRecordsPerSecond), int(cfg.MaxRecordsPerSecond))
	}
	return b
}

// WithRedactor attaches a Redactor applied to every record's message and
// metadata before it is queued. Returns the Buffer for chaining at
// construction time.
func (b *Buffer) WithRedactor(r *redaction.Redactor) *Buffer {
	b.redactor = r
	return b
}

func (b *Buffer) redact(record *recordmodel.LogRecord) {
	if b.redactor == nil {
		return
	}
	record.Message = b.redactor.RedactLine(record.Message, redactionMask)
	record.RawContent = b.redactor.RedactLine(record.RawContent, redactionMask)
	if len(record.Metadata) > 0 {
		record.Metadata = b.redactor.RedactMetadataValues(record.Metadata, redactionMask)
	}
}

// Dropped returns how many records were rejected by the rate limiter since
// startup.
func (b *Buffer) Dropped() int64 {
	return atomic.LoadInt64(&b.dropped)
}

// Size returns the number of records currently queued.
func (b *Buffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// MaxSize returns the configured size threshold.
func (b *Buffer) MaxSize() int { return b.cfg.MaxSize }

// FlushIntervalMs returns the configured periodic flush interval.
func (b *Buffer) FlushIntervalMs() int64 { return b.cfg.FlushIntervalMs }

// Add appends one record. If the queue reaches maxSize, the caller's
// goroutine triggers an immediate flush (§4.2: "producer-visible add
// triggers an immediate flush").
func (b *Buffer) Add(ctx context.Context, record *recordmodel.LogRecord) {
	if b.limiter != nil && !b.limiter.Allow() {
		atomic.AddInt64(&b.dropped, 1)
		return
	}
	b.redact(record)

	b.mu.Lock()
	b.pending = append(b.pending, record)
	trigger := len(b.pending) >= b.cfg.MaxSize
	b.mu.Unlock()

	if trigger {
		b.Flush(ctx)
	}
}

// AddAll bulk-appends records, triggering a flush mid-stream if the queue
// crosses maxSize partway through.
func (b *Buffer) AddAll(ctx context.Context, records []*recordmodel.LogRecord) {
	for _, record := range records {
		b.redact(record)
	}

	b.mu.Lock()
	b.pending = append(b.pending, records...)
	trigger := len(b.pending) >= b.cfg.MaxSize
	b.mu.Unlock()

	if trigger {
		b.Flush(ctx)
	}
}

// Flush indexes everything currently queued in one batch. Concurrent calls
// coalesce: only one flush runs at a time, and a caller that loses the race
// returns immediately since the running flush already owns the pending set
// at the moment it was drained.
func (b *Buffer) Flush(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&b.flushing, 0, 1) {
		return
	}
	defer atomic.StoreInt32(&b.flushing, 0)

	b.mu.Lock()
	batch := b.pending
	b.pending = nil
	b.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	if err := b.sink.IndexAll(ctx, batch); err != nil {
		// Indexing failures are logged and dropped, not re-queued, to
		// avoid unbounded growth on persistent errors (§4.2).
		if b.logger != nil {
			b.logger.LogIngest(ctx, "buffer-flush", len(batch), err)
		}
	}
}

// Start launches the periodic flusher goroutine. Safe to call once; repeat
// calls are no-ops.
func (b *Buffer) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		go b.run(ctx)
	})
}

func (b *Buffer) run(ctx context.Context) {
	defer close(b.doneCh)

	interval := time.Duration(b.cfg.FlushIntervalMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.Flush(context.Background())
			return
		case <-b.stopCh:
			b.Flush(context.Background())
			return
		case <-ticker.C:
			b.Flush(ctx)
		}
	}
}

// Stop signals the periodic flusher to perform one best-effort final flush
// and exit, then waits for it to finish.
func (b *Buffer) Stop() {
	select {
	case <-b.stopCh:
		// already stopped
	default:
		close(b.stopCh)
	}
	<-b.doneCh
}

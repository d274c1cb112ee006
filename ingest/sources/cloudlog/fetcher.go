// Package cloudlog implements the cloud log fetcher source from C6: per
// registered stream, page through events using a continuation token and a
// last-seen timestamp, advancing the cursor only on success.
package cloudlog

import (
	"context"
	"sync"
	"time"

	"github.com/r3elabs/logwatch/infrastructure/logging"
	"github.com/r3elabs/logwatch/infrastructure/resilience"
	"github.com/r3elabs/logwatch/ingest/parsers"
	"github.com/r3elabs/logwatch/recordmodel"
)

// Sink receives parsed records for buffering (C2).
type Sink interface {
	Add(ctx context.Context, record *recordmodel.LogRecord)
}

// Gate answers whether this instance should process a given source id (C14).
type Gate interface {
	Owns(sourceID string) bool
}

// Event is one raw log line returned by a provider page.
type Event struct {
	Message   string
	Timestamp int64
}

// Page is one page of events plus the token to continue from.
type Page struct {
	Events        []Event
	NextToken     string
	HasMore       bool
}

// Provider fetches one page of events for a group/stream, starting from a
// continuation token (empty for "from the beginning of what's retained").
type Provider interface {
	FetchEvents(ctx context.Context, group, stream, token string) (Page, error)
}

// StreamConfig identifies one registered cloud log stream.
type StreamConfig struct {
	SourceID string
	Group    string
	Stream   string
}

type cursor struct {
	token         string
	lastTimestamp int64
}

// Fetcher polls every registered stream once a minute, advancing each
// stream's cursor only on a successful page fetch (§4.6).
type Fetcher struct {
	streams  []StreamConfig
	provider Provider
	sink     Sink
	gate     Gate
	chain    *parsers.Chain
	logger   *logging.Logger
	breaker  *resilience.CircuitBreaker

	mu      sync.Mutex
	cursors map[string]*cursor

	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a Fetcher. Provider calls are wrapped in a lenient circuit
// breaker (§7 TransientExternalError: a flaky provider should not be
// hammered every minute once it starts failing).
func New(streams []StreamConfig, provider Provider, sink Sink, gate Gate, logger *logging.Logger) *Fetcher {
	return &Fetcher{
		streams:  streams,
		provider: provider,
		sink:     sink,
		gate:     gate,
		chain:    parsers.DefaultChain(),
		logger:   logger,
		breaker:  resilience.New(resilience.LenientServiceCBConfig(logger)),
		cursors:  make(map[string]*cursor),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the once-a-minute poll loop.
func (f *Fetcher) Start(ctx context.Context) {
	go f.run(ctx)
}

func (f *Fetcher) run(ctx context.Context) {
	defer close(f.doneCh)
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	f.pollAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.stopCh:
			return
		case <-ticker.C:
			f.pollAll(ctx)
		}
	}
}

func (f *Fetcher) pollAll(ctx context.Context) {
	for _, s := range f.streams {
		if f.gate != nil && !f.gate.Owns(s.SourceID) {
			continue
		}
		f.pollOne(ctx, s)
	}
}

func (f *Fetcher) pollOne(ctx context.Context, s StreamConfig) {
	f.mu.Lock()
	c, ok := f.cursors[s.SourceID]
	if !ok {
		c = &cursor{}
		f.cursors[s.SourceID] = c
	}
	token := c.token
	f.mu.Unlock()

	var page Page
	err := f.breaker.Execute(ctx, func() error {
		var fetchErr error
		page, fetchErr = f.provider.FetchEvents(ctx, s.Group, s.Stream, token)
		return fetchErr
	})
	if err != nil {
		// Unread events remain available at next tick; the cursor is not
		// advanced on failure (§4.6).
		if f.logger != nil {
			f.logger.LogIngest(ctx, s.SourceID, 0, err)
		}
		return
	}

	count := 0
	var lastTS int64
	for _, ev := range page.Events {
		rec := f.chain.Parse(ev.Message, s.SourceID)
		if f.sink != nil {
			f.sink.Add(ctx, rec)
		}
		count++
		if ev.Timestamp > lastTS {
			lastTS = ev.Timestamp
		}
	}

	f.mu.Lock()
	c.token = page.NextToken
	if lastTS > c.lastTimestamp {
		c.lastTimestamp = lastTS
	}
	f.mu.Unlock()

	if count > 0 && f.logger != nil {
		f.logger.LogIngest(ctx, s.SourceID, count, nil)
	}
}

// Stop halts the poll loop.
func (f *Fetcher) Stop() {
	select {
	case <-f.stopCh:
	default:
		close(f.stopCh)
	}
	<-f.doneCh
}

// Package dirscan implements the directory-scanner source from C6: a
// periodic walk of configured directories, streaming each regular file
// line-by-line into the buffer through the parser chain.
package dirscan

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/r3elabs/logwatch/infrastructure/logging"
	"github.com/r3elabs/logwatch/ingest/parsers"
	"github.com/r3elabs/logwatch/recordmodel"
)

// Sink receives parsed records for buffering (C2).
type Sink interface {
	Add(ctx context.Context, record *recordmodel.LogRecord)
}

// Gate answers whether this instance should process a given source id
// (C14's consistent-hash gate, §4.6).
type Gate interface {
	Owns(sourceID string) bool
}

// SourceConfig describes one watched directory.
type SourceConfig struct {
	ID        string
	Directory string
}

// Scanner periodically walks its configured directories and streams new
// file content through the parser chain into the buffer.
type Scanner struct {
	sources  []SourceConfig
	interval time.Duration
	sink     Sink
	gate     Gate
	chain    *parsers.Chain
	logger   *logging.Logger

	mu      sync.Mutex
	offsets map[string]int64 // filePath -> bytes already consumed

	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a Scanner. gate may be nil (then every source is owned locally).
func New(sources []SourceConfig, interval time.Duration, sink Sink, gate Gate, logger *logging.Logger) *Scanner {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Scanner{
		sources:  sources,
		interval: interval,
		sink:     sink,
		gate:     gate,
		chain:    parsers.DefaultChain(),
		logger:   logger,
		offsets:  make(map[string]int64),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the periodic walk loop.
func (s *Scanner) Start(ctx context.Context) {
	go s.run(ctx)
}

func (s *Scanner) run(ctx context.Context) {
	defer close(s.doneCh)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.scanOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.scanOnce(ctx)
		}
	}
}

func (s *Scanner) scanOnce(ctx context.Context) {
	for _, src := range s.sources {
		if s.gate != nil && !s.gate.Owns(src.ID) {
			continue
		}
		s.scanSource(ctx, src)
	}
}

func (s *Scanner) scanSource(ctx context.Context, src SourceConfig) {
	entries, err := os.ReadDir(src.Directory)
	if err != nil {
		if s.logger != nil {
			s.logger.LogIngest(ctx, src.ID, 0, err)
		}
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(src.Directory, e.Name())
		s.streamFile(ctx, src.ID, path)
	}
}

// streamFile reads new bytes from path since the last scan and feeds each
// complete line through the parser chain into the buffer.
func (s *Scanner) streamFile(ctx context.Context, sourceID, path string) {
	f, err := os.Open(path)
	if err != nil {
		if s.logger != nil {
			s.logger.LogIngest(ctx, sourceID, 0, err)
		}
		return
	}
	defer f.Close()

	s.mu.Lock()
	offset := s.offsets[path]
	s.mu.Unlock()

	info, err := f.Stat()
	if err != nil {
		return
	}
	if info.Size() < offset {
		// File was truncated/rotated; restart from the beginning.
		offset = 0
	}
	if _, err := f.Seek(offset, 0); err != nil {
		return
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	count := 0
	var consumed int64
	for scanner.Scan() {
		line := scanner.Text()
		consumed += int64(len(line)) + 1
		if line == "" {
			continue
		}
		rec := s.chain.Parse(line, sourceID)
		if s.sink != nil {
			s.sink.Add(ctx, rec)
		}
		count++
	}

	s.mu.Lock()
	s.offsets[path] = offset + consumed
	s.mu.Unlock()

	if count > 0 && s.logger != nil {
		s.logger.LogIngest(ctx, sourceID, count, nil)
	}
}

// Stop halts the scan loop.
func (s *Scanner) Stop() {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	<-s.doneCh
}

// Package index implements C3: a full-text index of LogRecords partitioned
// by calendar bucket, backed by one bleve index per partition.
package index

import (
	"context"
	"sort"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/r3elabs/logwatch/infrastructure/logging"
	"github.com/r3elabs/logwatch/recordmodel"
)

// Cache is the search-result cache consulted first and populated after a
// live search (C4).
type Cache interface {
	Get(query string, isRegex bool, startTime, endTime int64) ([]*recordmodel.LogRecord, bool)
	Put(query string, isRegex bool, startTime, endTime int64, results []*recordmodel.LogRecord)
}

// Broadcaster is notified after a successful commit so subscribers (C10)
// can be pushed new matching records.
type Broadcaster interface {
	BroadcastIndexed(ctx context.Context, records []*recordmodel.LogRecord)
}

// Archiver persists records before they are deleted by retention (C11).
type Archiver interface {
	Archive(ctx context.Context, partitionName string, records []*recordmodel.LogRecord) error
}

// Config controls partitioning and rotation (§4.3).
type Config struct {
	// Partitioned disables calendar partitioning in favor of one legacy
	// index handle when false.
	Partitioned bool
	BucketType  recordmodel.BucketType
	MaxActive   int
	BasePath    string
	CustomFields []CustomFieldConfig
}

// DefaultConfig partitions daily with up to 30 active partitions, in-memory.
func DefaultConfig() Config {
	return Config{Partitioned: true, BucketType: recordmodel.BucketDaily, MaxActive: 30}
}

const (
	searchCap    = 1000
	deleteCap    = 10000
	legacyBucket = "legacy"
)

// Manager owns the set of active partitions and serves every C3 operation.
type Manager struct {
	cfg    Config
	logger *logging.Logger
	cache  Cache
	bcast  Broadcaster
	arch   Archiver

	mu     sync.RWMutex
	active []*partition // active[0] is newest
}

// New creates a Manager. cache/bcast/arch may be nil; each feature they back
// is then simply skipped.
func New(cfg Config, logger *logging.Logger, cache Cache, bcast Broadcaster, arch Archiver) (*Manager, error) {
	if cfg.MaxActive <= 0 {
		cfg.MaxActive = 30
	}
	m := &Manager{cfg: cfg, logger: logger, cache: cache, bcast: bcast, arch: arch}

	if !cfg.Partitioned {
		p, err := openPartition(recordmodel.PartitionName(legacyBucket), legacyBucket, cfg.CustomFields, cfg.BasePath)
		if err != nil {
			return nil, err
		}
		m.active = []*partition{p}
		return m, nil
	}

	bucket := recordmodel.CurrentBucket(cfg.BucketType)
	p, err := openPartition(recordmodel.PartitionName(bucket), bucket, cfg.CustomFields, cfg.BasePath)
	if err != nil {
		return nil, err
	}
	m.active = []*partition{p}
	return m, nil
}

// checkAndRotate ensures the current calendar bucket has an open partition,
// prepending a new one and evicting the oldest past MaxActive (§4.3).
func (m *Manager) checkAndRotate(ctx context.Context) error {
	if !m.cfg.Partitioned {
		return nil
	}
	bucket := recordmodel.CurrentBucket(m.cfg.BucketType)

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.active) > 0 && m.active[0].bucket == bucket {
		return nil
	}

	p, err := openPartition(recordmodel.PartitionName(bucket), bucket, m.cfg.CustomFields, m.cfg.BasePath)
	if err != nil {
		return err
	}
	m.active = append([]*partition{p}, m.active...)

	archived := false
	if len(m.active) > m.cfg.MaxActive {
		oldest := m.active[len(m.active)-1]
		m.active = m.active[:len(m.active)-1]
		if m.arch != nil {
			archived = true
		}
		_ = oldest.close()
	}
	if m.logger != nil {
		m.logger.LogPartitionRotate(ctx, recordmodel.PartitionName(bucket), len(m.active), archived)
	}
	return nil
}

// partitionFor returns the partition a record belongs to, routing
// out-of-bucket records to the current (newest) partition when their own
// bucket is not active (§4.3).
func (m *Manager) partitionFor(rec *recordmodel.LogRecord) *partition {
	if !m.cfg.Partitioned {
		return m.active[0]
	}
	bucket := recordmodel.BucketName(m.cfg.BucketType, rec.EffectiveTime())
	for _, p := range m.active {
		if p.bucket == bucket {
			return p
		}
	}
	return m.active[0]
}

// IndexAll groups records by partition, updates each partition (keyed by
// rawContent's dedup key so re-ingesting the same content overwrites the
// prior document), commits, and broadcasts (§3, §4.3). Satisfies
// buffer.Sink.
func (m *Manager) IndexAll(ctx context.Context, records []*recordmodel.LogRecord) error {
	if err := m.checkAndRotate(ctx); err != nil {
		if m.logger != nil {
			m.logger.LogIngest(ctx, "rotate", 0, err)
		}
	}

	m.mu.RLock()
	byPartition := make(map[*partition]map[string]map[string]interface{})
	for _, rec := range records {
		p := m.partitionFor(rec)
		if byPartition[p] == nil {
			byPartition[p] = make(map[string]map[string]interface{})
		}
		byPartition[p][rec.DedupKey()] = toDocument(rec, m.cfg.CustomFields)
	}
	m.mu.RUnlock()

	var firstErr error
	for p, docs := range byPartition {
		if err := p.indexBatch(docs); err != nil {
			if m.logger != nil {
				m.logger.LogIngest(ctx, p.name, len(docs), err)
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
	}
	if m.bcast != nil {
		m.bcast.BroadcastIndexed(ctx, records)
	}
	if m.logger != nil {
		m.logger.LogIngest(ctx, "index-all", len(records), nil)
	}
	return firstErr
}

// Search runs the cache-first text+time search described in §4.3.
func (m *Manager) Search(ctx context.Context, q string, isRegex bool, startTime, endTime int64) ([]*recordmodel.LogRecord, error) {
	if trimTrailingCaret(q) == "" && startTime == 0 && endTime == 0 {
		return nil, nil
	}

	if m.cache != nil {
		if hit, ok := m.cache.Get(q, isRegex, startTime, endTime); ok {
			return hit, nil
		}
	}

	text := buildTextQuery(q, isRegex)
	timeQ := buildTimeQuery(startTime, endTime)
	full := combineQuery(text, timeQ)

	results, err := m.searchAllPartitions(full, searchCap)
	if err != nil && len(results) == 0 {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].EffectiveTime() > results[j].EffectiveTime() })

	if m.cache != nil {
		m.cache.Put(q, isRegex, startTime, endTime, results)
	}
	return results, nil
}

// FindByLevel returns records at the given level across all active partitions.
func (m *Manager) FindByLevel(ctx context.Context, level recordmodel.Level) ([]*recordmodel.LogRecord, error) {
	results, err := m.searchAllPartitions(termQuery("level", string(level)), searchCap)
	return results, err
}

// FindBySource returns records from the given source across all active partitions.
func (m *Manager) FindBySource(ctx context.Context, source string) ([]*recordmodel.LogRecord, error) {
	results, err := m.searchAllPartitions(termQuery("source", source), searchCap)
	return results, err
}

// FindByID returns the single record with the given id, or nil.
func (m *Manager) FindByID(ctx context.Context, id string) (*recordmodel.LogRecord, error) {
	results, err := m.searchAllPartitions(termQuery("id", id), 1)
	if len(results) == 0 {
		return nil, err
	}
	return results[0], err
}

// searchAllPartitions executes q against every active partition (capped per
// partition), unions the hits, and continues past a partition-level I/O
// error rather than failing the whole search (§4.3 failure semantics).
func (m *Manager) searchAllPartitions(q query.Query, limit int) ([]*recordmodel.LogRecord, error) {
	m.mu.RLock()
	partitions := make([]*partition, len(m.active))
	copy(partitions, m.active)
	m.mu.RUnlock()

	var all []*recordmodel.LogRecord
	var firstErr error
	for _, p := range partitions {
		req := bleve.NewSearchRequestOptions(q, limit, 0, false)
		req.Fields = []string{"*"}
		res, err := p.idx.Search(req)
		if err != nil {
			if m.logger != nil {
				m.logger.LogIngest(context.Background(), "search:"+p.name, 0, err)
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		for _, hit := range res.Hits {
			all = append(all, hitToRecord(hit))
		}
	}
	return all, firstErr
}

// DeleteOlderThan removes records at or before ts (optionally restricted to
// source) from every active partition, archiving the batch first when an
// Archiver is configured (§4.3). Archive failures are logged, never
// blocking deletion.
func (m *Manager) DeleteOlderThan(ctx context.Context, ts int64, source string) error {
	rangeQ := buildTimeQuery(0, ts)
	full := rangeQ
	if source != "" {
		full = query.NewConjunctionQuery([]query.Query{rangeQ, termQuery("source", source)})
	}

	m.mu.RLock()
	partitions := make([]*partition, len(m.active))
	copy(partitions, m.active)
	m.mu.RUnlock()

	var firstErr error
	for _, p := range partitions {
		req := bleve.NewSearchRequestOptions(full, deleteCap, 0, false)
		req.Fields = []string{"*"}
		res, err := p.idx.Search(req)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if len(res.Hits) == 0 {
			continue
		}

		records := make([]*recordmodel.LogRecord, 0, len(res.Hits))
		ids := make([]string, 0, len(res.Hits))
		for _, hit := range res.Hits {
			records = append(records, hitToRecord(hit))
			ids = append(ids, hit.ID)
		}

		if m.arch != nil {
			if err := m.arch.Archive(ctx, p.name, records); err != nil && m.logger != nil {
				m.logger.LogIngest(ctx, "archive:"+p.name, len(records), err)
			}
		}

		if err := p.deleteBatch(ids); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

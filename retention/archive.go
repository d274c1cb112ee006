package retention

import (
	"archive/zip"
	"bufio"
	"compress/flate"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/r3elabs/logwatch/infrastructure/logging"
	"github.com/r3elabs/logwatch/recordmodel"
)

// Metadata describes one archival artifact (§3 ArchiveMetadata entity).
type Metadata struct {
	ID              string   `json:"id"`
	Filename        string   `json:"filename"`
	StartTimestamp  int64    `json:"startTimestamp"`
	EndTimestamp    int64    `json:"endTimestamp"`
	Sources         []string `json:"sources"`
	LogCount        int      `json:"logCount"`
	CompressionType string   `json:"compressionType"`
	CompressionLevel int     `json:"compressionLevel"`
	SizeBytes       int64    `json:"sizeBytes"`
	CreatedAt       int64    `json:"createdAt"`
	Available       bool     `json:"available"`
}

// MetadataStore persists ArchiveMetadata (§6 configuration repository
// abstraction).
type MetadataStore interface {
	Save(ctx context.Context, m Metadata) error
	Get(ctx context.Context, id string) (Metadata, error)
	ListOlderThan(ctx context.Context, cutoffMs int64) ([]Metadata, error)
	MarkUnavailable(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// ArchiveConfig controls where and how archives are written (§6 archive.*).
type ArchiveConfig struct {
	Directory           string
	CompressionLevel    int
	AutoArchiveEnabled  bool
	RetentionDays       int
}

// DefaultArchiveConfig matches a conservative default: deflate compression,
// 90-day cold retention.
func DefaultArchiveConfig() ArchiveConfig {
	return ArchiveConfig{Directory: "./archives", CompressionLevel: 6, AutoArchiveEnabled: true, RetentionDays: 90}
}

// Archiver writes a single zip per archival batch: metadata.json plus one
// JSON record per line in logs.json (§4.11). Satisfies index.Archiver.
type Archiver struct {
	cfg    ArchiveConfig
	store  MetadataStore
	logger *logging.Logger
}

// NewArchiver creates an Archiver.
func NewArchiver(cfg ArchiveConfig, store MetadataStore, logger *logging.Logger) *Archiver {
	if cfg.Directory == "" {
		cfg.Directory = "./archives"
	}
	return &Archiver{cfg: cfg, store: store, logger: logger}
}

// Archive writes records to a new zip archive and records its metadata
// (§4.11). partitionName is recorded only for logging context; archives are
// not partition-scoped on disk.
func (a *Archiver) Archive(ctx context.Context, partitionName string, records []*recordmodel.LogRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := os.MkdirAll(a.cfg.Directory, 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}

	now := time.Now()
	filename := fmt.Sprintf("logs_%s.zip", now.Format("20060102_150405"))
	fullPath := filepath.Join(a.cfg.Directory, filename)

	meta := Metadata{
		ID:               uuid.NewString(),
		Filename:         filename,
		CompressionType:  "DEFLATE",
		CompressionLevel: a.cfg.CompressionLevel,
		LogCount:         len(records),
		CreatedAt:        now.UnixMilli(),
		Available:        true,
	}
	meta.StartTimestamp, meta.EndTimestamp = timeBounds(records)
	meta.Sources = distinctSources(records)

	if err := writeZip(fullPath, meta, records); err != nil {
		return fmt.Errorf("write archive zip: %w", err)
	}

	if info, err := os.Stat(fullPath); err == nil {
		meta.SizeBytes = info.Size()
	}

	if a.store != nil {
		if err := a.store.Save(ctx, meta); err != nil {
			return fmt.Errorf("save archive metadata: %w", err)
		}
	}
	if a.logger != nil {
		a.logger.LogIngest(ctx, "archive:"+partitionName, len(records), nil)
	}
	return nil
}

func timeBounds(records []*recordmodel.LogRecord) (start, end int64) {
	start, end = records[0].EffectiveTime(), records[0].EffectiveTime()
	for _, r := range records[1:] {
		t := r.EffectiveTime()
		if t < start {
			start = t
		}
		if t > end {
			end = t
		}
	}
	return start, end
}

func distinctSources(records []*recordmodel.LogRecord) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range records {
		if !seen[r.Source] {
			seen[r.Source] = true
			out = append(out, r.Source)
		}
	}
	return out
}

// writeZip writes metadata.json and logs.json (one record per line) into a
// single zip file at path (§4.11), using the configured flate compression
// level (§6 archive.compressionLevel).
func writeZip(path string, meta Metadata, records []*recordmodel.LogRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	defer zw.Close()
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, meta.CompressionLevel)
	})

	metaWriter, err := zw.Create("metadata.json")
	if err != nil {
		return err
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	if _, err := metaWriter.Write(metaBytes); err != nil {
		return err
	}

	logsWriter, err := zw.Create("logs.json")
	if err != nil {
		return err
	}
	for _, r := range records {
		line, err := json.Marshal(r)
		if err != nil {
			return err
		}
		if _, err := logsWriter.Write(append(line, '\n')); err != nil {
			return err
		}
	}
	return nil
}

// Extract opens an archive by id and returns the records it contains
// (§4.11 extraction operation).
func (a *Archiver) Extract(ctx context.Context, id string) ([]*recordmodel.LogRecord, error) {
	meta, err := a.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(a.cfg.Directory, meta.Filename)

	r, err := zip.OpenReader(path)
	if err != nil {
		if os.IsNotExist(err) {
			_ = a.store.MarkUnavailable(ctx, id)
		}
		return nil, err
	}
	defer r.Close()

	for _, f := range r.File {
		if f.Name != "logs.json" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()

		var records []*recordmodel.LogRecord
		scanner := bufio.NewScanner(rc)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			var rec recordmodel.LogRecord
			if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
				continue
			}
			records = append(records, &rec)
		}
		return records, scanner.Err()
	}
	return nil, fmt.Errorf("logs.json not found in archive %s", id)
}

// CleanupOlderThan deletes archive files and metadata older than
// retentionDays (§4.11: "Cold cleanup: daily at 02:00"). Missing files mark
// metadata unavailable instead of erroring.
func (a *Archiver) CleanupOlderThan(ctx context.Context, retentionDays int) error {
	cutoff := time.Now().Add(-time.Duration(retentionDays) * day).UnixMilli()
	metas, err := a.store.ListOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}
	for _, m := range metas {
		path := filepath.Join(a.cfg.Directory, m.Filename)
		if err := os.Remove(path); err != nil {
			if os.IsNotExist(err) {
				_ = a.store.MarkUnavailable(ctx, m.ID)
				continue
			}
			if a.logger != nil {
				a.logger.LogIngest(ctx, "archive-cleanup:"+m.ID, 0, err)
			}
			continue
		}
		if err := a.store.Delete(ctx, m.ID); err != nil && a.logger != nil {
			a.logger.LogIngest(ctx, "archive-cleanup-meta:"+m.ID, 0, err)
		}
	}
	return nil
}

// CleanupScheduler runs the daily 02:00 cold-cleanup job.
type CleanupScheduler struct {
	archiver      *Archiver
	retentionDays int

	cronRunner *cron.Cron
}

// NewCleanupScheduler creates a CleanupScheduler.
func NewCleanupScheduler(archiver *Archiver, retentionDays int) *CleanupScheduler {
	if retentionDays <= 0 {
		retentionDays = 90
	}
	return &CleanupScheduler{archiver: archiver, retentionDays: retentionDays}
}

// Start schedules the daily 02:00 cold-archive cleanup job (§4.11).
func (c *CleanupScheduler) Start(ctx context.Context) error {
	c.cronRunner = cron.New()
	if _, err := c.cronRunner.AddFunc("0 2 * * *", func() { c.Run(ctx) }); err != nil {
		return err
	}
	c.cronRunner.Start()
	return nil
}

// Stop halts the scheduled job.
func (c *CleanupScheduler) Stop() {
	if c.cronRunner != nil {
		stopCtx := c.cronRunner.Stop()
		<-stopCtx.Done()
	}
}

// Run performs one cleanup pass.
func (c *CleanupScheduler) Run(ctx context.Context) {
	_ = c.archiver.CleanupOlderThan(ctx, c.retentionDays)
}

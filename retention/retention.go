// Package retention implements C11: scheduled retention-policy enforcement
// and cold zip archival of deleted records (§4.11).
package retention

import (
	"context"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/r3elabs/logwatch/infrastructure/errors"
	"github.com/r3elabs/logwatch/infrastructure/logging"
)

// Policy is a retention rule: records older than MaxAgeDays are deleted from
// the applicable sources (§3 RetentionPolicy entity).
type Policy struct {
	ID             string
	Name           string
	MaxAgeDays     int
	Enabled        bool
	ApplyToSources []string // empty = all sources
}

// Validate enforces the minimal shape a retention policy must have.
func Validate(p Policy) error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.MissingParameter("name")
	}
	if p.MaxAgeDays <= 0 {
		return errors.InvalidInput("maxAgeDays", "must be greater than zero")
	}
	return nil
}

// PolicyStore loads enabled retention policies (§6 configuration repository
// abstraction).
type PolicyStore interface {
	ListEnabled(ctx context.Context) ([]Policy, error)
}

// Deleter deletes records at or before a cutoff, optionally scoped to one
// source (C3's DeleteOlderThan). Archival is performed internally by the
// index manager via its own Archiver hook before delete; see index.Manager.
type Deleter interface {
	DeleteOlderThan(ctx context.Context, cutoffMs int64, source string) error
}

// SourceLister enumerates the distinct sources currently indexed, used when
// a policy's ApplyToSources is empty (§4.11: "for every applicable source
// (or all)").
type SourceLister interface {
	Sources(ctx context.Context) ([]string, error)
}

// StaticSourceLister implements SourceLister over a fixed list assembled
// at startup from the configured ingestion sources (§6 dirscan/syslog/cloud
// source ids), used when a policy's ApplyToSources is empty.
type StaticSourceLister []string

// Sources returns the fixed id list. Satisfies SourceLister.
func (l StaticSourceLister) Sources(ctx context.Context) ([]string, error) {
	return []string(l), nil
}

const day = 24 * time.Hour

// Scheduler runs the daily retention-enforcement job (§4.11: "Daily at
// 00:00").
type Scheduler struct {
	store   PolicyStore
	deleter Deleter
	sources SourceLister
	logger  *logging.Logger

	cronRunner *cron.Cron
}

// New creates a Scheduler.
func New(store PolicyStore, deleter Deleter, sources SourceLister, logger *logging.Logger) *Scheduler {
	return &Scheduler{store: store, deleter: deleter, sources: sources, logger: logger}
}

// Start schedules the daily 00:00 retention job.
func (s *Scheduler) Start(ctx context.Context) error {
	s.cronRunner = cron.New()
	if _, err := s.cronRunner.AddFunc("0 0 * * *", func() { s.ApplyAll(ctx) }); err != nil {
		return err
	}
	s.cronRunner.Start()
	return nil
}

// Stop halts the scheduled job.
func (s *Scheduler) Stop() {
	if s.cronRunner != nil {
		stopCtx := s.cronRunner.Stop()
		<-stopCtx.Done()
	}
}

// ApplyAll runs one pass of §4.11: every enabled policy's cutoff is
// computed and applied to its scoped sources (or every known source).
func (s *Scheduler) ApplyAll(ctx context.Context) {
	policies, err := s.store.ListEnabled(ctx)
	if err != nil {
		if s.logger != nil {
			s.logger.LogIngest(ctx, "retention-list", 0, err)
		}
		return
	}
	now := time.Now()
	for _, p := range policies {
		s.applyOne(ctx, p, now)
	}
}

func (s *Scheduler) applyOne(ctx context.Context, p Policy, now time.Time) {
	cutoff := now.Add(-time.Duration(p.MaxAgeDays) * day).UnixMilli()

	targets := p.ApplyToSources
	if len(targets) == 0 {
		targets = []string{""} // "" = all sources, per C3.DeleteOlderThan's contract
		if s.sources != nil {
			if all, err := s.sources.Sources(ctx); err == nil && len(all) > 0 {
				targets = all
			}
		}
	}

	for _, src := range targets {
		if err := s.deleter.DeleteOlderThan(ctx, cutoff, src); err != nil && s.logger != nil {
			s.logger.LogIngest(ctx, "retention-apply:"+p.Name, 0, err)
		}
	}
}

// Package recordmodel holds the core data types shared by ingestion, the
// partitioned index, and every subsystem that reads or writes LogRecords.
package recordmodel

import (
	"time"

	"github.com/google/uuid"
)

// Level is the normalized severity assigned to a LogRecord by a parser.
type Level string

const (
	LevelEmergency Level = "EMERGENCY"
	LevelAlert     Level = "ALERT"
	LevelCritical  Level = "CRITICAL"
	LevelError     Level = "ERROR"
	LevelWarn      Level = "WARN"
	LevelNotice    Level = "NOTICE"
	LevelInfo      Level = "INFO"
	LevelDebug     Level = "DEBUG"
	LevelUnknown   Level = "UNKNOWN"
)

// Well-known metadata keys populated by parsers (recordmodel.LogRecord.Metadata).
const (
	MetaIPAddress   = "ip_address"
	MetaMethod      = "method"
	MetaPath        = "path"
	MetaStatusCode  = "status_code"
	MetaUserAgent   = "user_agent"
	MetaReferer     = "referer"
	MetaLogFormat   = "log_format"
	MetaProtocol    = "protocol"
	MetaClientIP    = "client_ip"
	MetaPID         = "pid"
	MetaFacility    = "facility"
	MetaSeverity    = "severity"
	MetaHostname    = "hostname"
	MetaAppName     = "app_name"
)

// LogRecord is the normalized, immutable-once-indexed unit of ingestion.
type LogRecord struct {
	ID         string            `json:"id"`
	IngestTime int64             `json:"ingestTime"`
	RecordTime *int64            `json:"recordTime,omitempty"`
	Level      Level             `json:"level"`
	Message    string            `json:"message"`
	Source     string            `json:"source"`
	RawContent string            `json:"rawContent"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// New creates a LogRecord with a fresh id and the current ingest time.
// recordTime is nil when the parser could not determine the event's own
// timestamp (§4.1: "On failure, recordTime = null").
func New(source, rawContent, message string, level Level, recordTime *int64, metadata map[string]string) *LogRecord {
	return &LogRecord{
		ID:         uuid.NewString(),
		IngestTime: time.Now().UnixMilli(),
		RecordTime: recordTime,
		Level:      level,
		Message:    message,
		Source:     source,
		RawContent: rawContent,
		Metadata:   metadata,
	}
}

// EffectiveTime returns RecordTime when present, else IngestTime. Used for
// partition bucketing and for the timestamp/recordTime OR clause in search.
func (r *LogRecord) EffectiveTime() int64 {
	if r.RecordTime != nil {
		return *r.RecordTime
	}
	return r.IngestTime
}

// DedupKey identifies records that should overwrite one another within a
// single partition (§3: "re-indexing with the same rawContent ... overwrites").
func (r *LogRecord) DedupKey() string {
	return r.Source + "\x00" + r.RawContent
}

// LevelFromHTTPStatus derives a severity from an HTTP status code per §4.1.
func LevelFromHTTPStatus(status int) Level {
	switch {
	case status >= 500:
		return LevelError
	case status >= 400:
		return LevelWarn
	default:
		return LevelInfo
	}
}

// LevelFromErrorToken maps a free-text error-log token to a Level per §4.1.
func LevelFromErrorToken(token string) Level {
	switch token {
	case "emerg", "alert", "crit", "error", "fatal", "severe":
		return LevelError
	case "warn", "warning", "notice":
		return LevelWarn
	case "info":
		return LevelInfo
	case "debug", "trace":
		return LevelDebug
	default:
		return LevelUnknown
	}
}

// syslogSeverityLevels maps RFC3164/RFC5424 severity (0..7) to a Level, §4.1.
var syslogSeverityLevels = [8]Level{
	LevelEmergency, LevelAlert, LevelCritical, LevelError,
	LevelWarn, LevelNotice, LevelInfo, LevelDebug,
}

// LevelFromSyslogSeverity maps a syslog PRI severity (0-7) to a Level.
// Out-of-range severities map to LevelUnknown.
func LevelFromSyslogSeverity(severity int) Level {
	if severity < 0 || severity > 7 {
		return LevelUnknown
	}
	return syslogSeverityLevels[severity]
}

// SyslogFacilitySeverity splits an RFC3164/5424 PRI value into facility and
// severity: facility = pri/8, severity = pri%8.
func SyslogFacilitySeverity(pri int) (facility, severity int) {
	return pri / 8, pri % 8
}

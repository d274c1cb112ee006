package parsers

import (
	"regexp"
	"strconv"
	"time"

	"github.com/r3elabs/logwatch/recordmodel"
)

// priRE extracts the leading <PRI> header common to RFC3164 and RFC5424.
var priRE = regexp.MustCompile(`^<(\d{1,3})>(.*)$`)

// rfc5424RE matches the RFC5424 header following the PRI: VERSION
// TIMESTAMP HOSTNAME APP-NAME PROCID MSGID [STRUCTURED-DATA] MSG.
var rfc5424RE = regexp.MustCompile(
	`^(\d+) (\S+) (\S+) (\S+) (\S+) (\S+) (?:(-|\[.*?\])\s*)?(.*)$`,
)

// rfc3164RE matches the RFC3164 header: MMM dd HH:mm:ss hostname tag: msg.
var rfc3164RE = regexp.MustCompile(
	`^(\w{3}\s+\d{1,2} \d{2}:\d{2}:\d{2}) (\S+) (.*)$`,
)

const rfc3164TimeLayout = "Jan 2 15:04:05"

// SyslogParser matches RFC3164 and RFC5424 framed lines (both UDP and TCP
// syslog sources hand every line through this parser, per §4.1/§4.6).
type SyslogParser struct{}

func (SyslogParser) Name() string { return "syslog" }

func (SyslogParser) TryParse(line, sourceTag string) (*recordmodel.LogRecord, bool) {
	m := priRE.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	pri, err := strconv.Atoi(m[1])
	if err != nil {
		return nil, false
	}
	facility, severity := recordmodel.SyslogFacilitySeverity(pri)
	rest := m[2]
	level := recordmodel.LevelFromSyslogSeverity(severity)
	meta := map[string]string{
		recordmodel.MetaProtocol: "syslog",
		recordmodel.MetaFacility: strconv.Itoa(facility),
		recordmodel.MetaSeverity: strconv.Itoa(severity),
	}

	if rec, ok := tryRFC5424(rest, sourceTag, line, level, meta); ok {
		return rec, true
	}
	if rec, ok := tryRFC3164(rest, sourceTag, line, level, meta); ok {
		return rec, true
	}

	// PRI present but body unparseable: still a syslog record, just
	// without a recoverable timestamp/hostname.
	rec := recordmodel.New(sourceTag, line, rest, level, nil, meta)
	return rec, true
}

func tryRFC5424(rest, sourceTag, line string, level recordmodel.Level, meta map[string]string) (*recordmodel.LogRecord, bool) {
	m := rfc5424RE.FindStringSubmatch(rest)
	if m == nil {
		return nil, false
	}
	version := m[1]
	if version != "1" {
		return nil, false
	}
	ts, err := time.Parse(time.RFC3339Nano, m[2])
	if err != nil {
		ts, err = time.Parse(time.RFC3339, m[2])
		if err != nil {
			return nil, false
		}
	}
	meta = cloneMeta(meta)
	meta[recordmodel.MetaHostname] = m[3]
	meta[recordmodel.MetaAppName] = m[4]
	if m[5] != "-" {
		meta[recordmodel.MetaPID] = m[5]
	}
	recordTimeMs := ts.UnixMilli()
	rec := recordmodel.New(sourceTag, line, m[8], level, &recordTimeMs, meta)
	return rec, true
}

func tryRFC3164(rest, sourceTag, line string, level recordmodel.Level, meta map[string]string) (*recordmodel.LogRecord, bool) {
	m := rfc3164RE.FindStringSubmatch(rest)
	if m == nil {
		return nil, false
	}
	// RFC3164 carries no year; use the current wall-clock year (§4.1, §8).
	parsed, err := time.Parse(rfc3164TimeLayout, collapseDoubleSpace(m[1]))
	if err != nil {
		return nil, false
	}
	now := time.Now().UTC()
	ts := time.Date(now.Year(), parsed.Month(), parsed.Day(), parsed.Hour(), parsed.Minute(), parsed.Second(), 0, time.UTC)
	meta = cloneMeta(meta)
	meta[recordmodel.MetaHostname] = m[2]
	recordTimeMs := ts.UnixMilli()
	rec := recordmodel.New(sourceTag, line, m[3], level, &recordTimeMs, meta)
	return rec, true
}

func cloneMeta(meta map[string]string) map[string]string {
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}

func collapseDoubleSpace(s string) string {
	return normalizeApacheErrorSpacing(s)
}

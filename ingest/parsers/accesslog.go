package parsers

import (
	"regexp"
	"strconv"
	"time"

	"github.com/r3elabs/logwatch/recordmodel"
)

// accessLineRE matches the common-log-format prefix shared by Nginx and
// Apache access logs, with an optional combined-format suffix (referer +
// user-agent). Both "nginx common/combined" and "apache common/combined"
// parsers reuse this single regex and differ only in the log_format label
// they stamp on the resulting record, per §4.1.
var accessLineRE = regexp.MustCompile(
	`^(\S+) \S+ (\S+) \[([^\]]+)\] "(\S+)\s+(\S+)(?:\s+\S+)?" (\d{3}) (\S+)(?:\s+"([^"]*)"\s+"([^"]*)")?\s*$`,
)

// apacheTimeLayout parses the bracketed Apache/Nginx-combined timestamp:
// dd/Mon/yyyy:HH:mm:ss ±ZZZZ (§4.1).
const apacheTimeLayout = "02/Jan/2006:15:04:05 -0700"

type accessFields struct {
	ip         string
	user       string
	timeRaw    string
	method     string
	path       string
	status     int
	bytes      string
	hasTrailer bool
	referer    string
	userAgent  string
}

func parseAccessLine(line string) (*accessFields, bool) {
	m := accessLineRE.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	status, err := strconv.Atoi(m[6])
	if err != nil {
		return nil, false
	}
	f := &accessFields{
		ip:      m[1],
		user:    m[2],
		timeRaw: m[3],
		method:  m[4],
		path:    m[5],
		status:  status,
		bytes:   m[7],
	}
	if m[8] != "" || m[9] != "" {
		f.hasTrailer = true
		f.referer = m[8]
		f.userAgent = m[9]
	}
	return f, true
}

func accessRecordTime(raw string) *int64 {
	t, err := time.Parse(apacheTimeLayout, raw)
	if err != nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

func accessMetadata(f *accessFields, logFormat string) map[string]string {
	meta := map[string]string{
		recordmodel.MetaIPAddress:  f.ip,
		recordmodel.MetaMethod:     f.method,
		recordmodel.MetaPath:       f.path,
		recordmodel.MetaStatusCode: strconv.Itoa(f.status),
		recordmodel.MetaLogFormat:  logFormat,
	}
	if f.hasTrailer {
		meta[recordmodel.MetaReferer] = f.referer
		meta[recordmodel.MetaUserAgent] = f.userAgent
	}
	return meta
}

func accessMessage(f *accessFields) string {
	return f.method + " " + f.path + " " + strconv.Itoa(f.status)
}

// NginxCombinedParser matches access lines carrying referer + user-agent.
type NginxCombinedParser struct{}

func (NginxCombinedParser) Name() string { return "nginx-combined" }

func (NginxCombinedParser) TryParse(line, sourceTag string) (*recordmodel.LogRecord, bool) {
	f, ok := parseAccessLine(line)
	if !ok || !f.hasTrailer {
		return nil, false
	}
	rec := recordmodel.New(sourceTag, line, accessMessage(f), recordmodel.LevelFromHTTPStatus(f.status),
		accessRecordTime(f.timeRaw), accessMetadata(f, "nginx_combined"))
	return rec, true
}

// NginxCommonParser matches access lines without referer/user-agent.
type NginxCommonParser struct{}

func (NginxCommonParser) Name() string { return "nginx-common" }

func (NginxCommonParser) TryParse(line, sourceTag string) (*recordmodel.LogRecord, bool) {
	f, ok := parseAccessLine(line)
	if !ok || f.hasTrailer {
		return nil, false
	}
	rec := recordmodel.New(sourceTag, line, accessMessage(f), recordmodel.LevelFromHTTPStatus(f.status),
		accessRecordTime(f.timeRaw), accessMetadata(f, "nginx_common"))
	return rec, true
}

// ApacheCombinedParser matches access lines carrying referer + user-agent.
// Reached only when NginxCombinedParser (tried first in §4.1's order) does
// not match — both formats share the same wire shape.
type ApacheCombinedParser struct{}

func (ApacheCombinedParser) Name() string { return "apache-combined" }

func (ApacheCombinedParser) TryParse(line, sourceTag string) (*recordmodel.LogRecord, bool) {
	f, ok := parseAccessLine(line)
	if !ok || !f.hasTrailer {
		return nil, false
	}
	rec := recordmodel.New(sourceTag, line, accessMessage(f), recordmodel.LevelFromHTTPStatus(f.status),
		accessRecordTime(f.timeRaw), accessMetadata(f, "apache_combined"))
	return rec, true
}

// ApacheCommonParser matches access lines without referer/user-agent.
type ApacheCommonParser struct{}

func (ApacheCommonParser) Name() string { return "apache-common" }

func (ApacheCommonParser) TryParse(line, sourceTag string) (*recordmodel.LogRecord, bool) {
	f, ok := parseAccessLine(line)
	if !ok || f.hasTrailer {
		return nil, false
	}
	rec := recordmodel.New(sourceTag, line, accessMessage(f), recordmodel.LevelFromHTTPStatus(f.status),
		accessRecordTime(f.timeRaw), accessMetadata(f, "apache_common"))
	return rec, true
}

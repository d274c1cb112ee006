package parsers

import (
	"regexp"
	"time"

	"github.com/r3elabs/logwatch/recordmodel"
)

// nginxErrorRE matches: 2023/10/10 13:55:36 [error] 1234#0: message
var nginxErrorRE = regexp.MustCompile(`^(\d{4}/\d{2}/\d{2} \d{2}:\d{2}:\d{2}) \[(\w+)\] (\d+)#\d+: (.*)$`)

const nginxTimeLayout = "2006/01/02 15:04:05"

// NginxErrorParser matches Nginx's error_log format.
type NginxErrorParser struct{}

func (NginxErrorParser) Name() string { return "nginx-error" }

func (NginxErrorParser) TryParse(line, sourceTag string) (*recordmodel.LogRecord, bool) {
	m := nginxErrorRE.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	meta := map[string]string{
		recordmodel.MetaLogFormat: "nginx_error",
		recordmodel.MetaPID:       m[3],
	}
	var recordTime *int64
	if t, err := time.Parse(nginxTimeLayout, m[1]); err == nil {
		ms := t.UnixMilli()
		recordTime = &ms
	}
	rec := recordmodel.New(sourceTag, line, m[4], recordmodel.LevelFromErrorToken(m[2]), recordTime, meta)
	return rec, true
}

// apacheErrorRE matches: [Wed Oct 11 14:32:52 2000] [error] [pid 12345] [client 127.0.0.1] message
var apacheErrorRE = regexp.MustCompile(
	`^\[(\w{3} \w{3}\s+\d{1,2} \d{2}:\d{2}:\d{2} \d{4})\] \[(\w+)\](?: \[pid (\d+)\])?(?: \[client ([\d.:a-fA-F]+)\])? (.*)$`,
)

const apacheErrorTimeLayout = "Mon Jan 2 15:04:05 2006"

// ApacheErrorParser matches Apache's error_log format.
type ApacheErrorParser struct{}

func (ApacheErrorParser) Name() string { return "apache-error" }

func (ApacheErrorParser) TryParse(line, sourceTag string) (*recordmodel.LogRecord, bool) {
	m := apacheErrorRE.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	meta := map[string]string{
		recordmodel.MetaLogFormat: "apache_error",
	}
	if m[3] != "" {
		meta[recordmodel.MetaPID] = m[3]
	}
	if m[4] != "" {
		meta[recordmodel.MetaClientIP] = m[4]
	}
	var recordTime *int64
	if t, err := time.Parse(apacheErrorTimeLayout, normalizeApacheErrorSpacing(m[1])); err == nil {
		ms := t.UnixMilli()
		recordTime = &ms
	}
	rec := recordmodel.New(sourceTag, line, m[5], recordmodel.LevelFromErrorToken(m[2]), recordTime, meta)
	return rec, true
}

// normalizeApacheErrorSpacing collapses the double space Apache uses before
// single-digit days ("Oct 11" but "Oct  2") so time.Parse's single-space
// layout still matches.
func normalizeApacheErrorSpacing(raw string) string {
	out := make([]byte, 0, len(raw))
	lastSpace := false
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c == ' ' {
			if lastSpace {
				continue
			}
			lastSpace = true
		} else {
			lastSpace = false
		}
		out = append(out, c)
	}
	return string(out)
}

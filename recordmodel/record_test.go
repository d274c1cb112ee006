package recordmodel

import "testing"

func TestLevelFromHTTPStatus(t *testing.T) {
	cases := map[int]Level{
		200: LevelInfo,
		301: LevelInfo,
		404: LevelWarn,
		499: LevelWarn,
		500: LevelError,
		503: LevelError,
	}
	for status, want := range cases {
		if got := LevelFromHTTPStatus(status); got != want {
			t.Errorf("LevelFromHTTPStatus(%d) = %s, want %s", status, got, want)
		}
	}
}

func TestLevelFromErrorToken(t *testing.T) {
	cases := map[string]Level{
		"emerg":   LevelError,
		"crit":    LevelError,
		"warn":    LevelWarn,
		"notice":  LevelWarn,
		"info":    LevelInfo,
		"debug":   LevelDebug,
		"trace":   LevelDebug,
		"bogus":   LevelUnknown,
	}
	for token, want := range cases {
		if got := LevelFromErrorToken(token); got != want {
			t.Errorf("LevelFromErrorToken(%q) = %s, want %s", token, got, want)
		}
	}
}

func TestSyslogFacilitySeverity(t *testing.T) {
	// <34> => facility 4, severity 2 (scenario 3 in spec §8)
	facility, severity := SyslogFacilitySeverity(34)
	if facility != 4 || severity != 2 {
		t.Errorf("SyslogFacilitySeverity(34) = (%d,%d), want (4,2)", facility, severity)
	}
	if got := LevelFromSyslogSeverity(severity); got != LevelCritical {
		t.Errorf("LevelFromSyslogSeverity(2) = %s, want CRITICAL", got)
	}
}

func TestLevelFromSyslogSeverityOutOfRange(t *testing.T) {
	if got := LevelFromSyslogSeverity(99); got != LevelUnknown {
		t.Errorf("expected UNKNOWN for out-of-range severity, got %s", got)
	}
}

func TestEffectiveTime(t *testing.T) {
	rt := int64(1000)
	r := &LogRecord{IngestTime: 2000, RecordTime: &rt}
	if r.EffectiveTime() != 1000 {
		t.Errorf("expected recordTime to take precedence")
	}
	r2 := &LogRecord{IngestTime: 2000}
	if r2.EffectiveTime() != 2000 {
		t.Errorf("expected ingestTime fallback")
	}
}

func TestDedupKeyStableForSameRawContent(t *testing.T) {
	r1 := New("access.log", "same line", "msg", LevelInfo, nil, nil)
	r2 := New("access.log", "same line", "msg", LevelInfo, nil, nil)
	if r1.DedupKey() != r2.DedupKey() {
		t.Errorf("expected identical dedup keys for identical (source, rawContent)")
	}
	if r1.ID == r2.ID {
		t.Errorf("expected distinct ids even with identical content")
	}
}

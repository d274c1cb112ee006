package redaction

import "testing"

func TestRedactLineWithCaptureGroupKeepsPrefix(t *testing.T) {
	r := New()
	r.Refresh(nil, []string{`(?i)(password\s*=\s*)(\S+)`})

	got := r.RedactLine("login password=hunter2 ok", "***")
	want := "login password=*** ok"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRedactLineWithoutCaptureGroupReplacesWholeMatch(t *testing.T) {
	r := New()
	r.Refresh(nil, []string{`\b\d{3}-\d{2}-\d{4}\b`})

	got := r.RedactLine("ssn 123-45-6789 on file", "***")
	want := "ssn *** on file"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRedactMetadataValuesMasksBySensitiveKeyRegardlessOfContent(t *testing.T) {
	r := New()
	r.Refresh([]string{"password", "token"}, nil)

	fields := map[string]string{"password": "not-even-secret-looking", "path": "/a/b"}
	out := r.RedactMetadataValues(fields, "***")

	if out["password"] != "***" {
		t.Errorf("expected password to be masked regardless of content, got %q", out["password"])
	}
	if out["path"] != "/a/b" {
		t.Errorf("expected non-sensitive key to pass through, got %q", out["path"])
	}
}

func TestRefreshReplacesPreviousSet(t *testing.T) {
	r := New()
	r.Refresh(nil, []string{`foo`})
	if got := r.RedactLine("foo bar", "X"); got != "X bar" {
		t.Fatalf("expected first pattern set to apply, got %q", got)
	}

	r.Refresh(nil, []string{`bar`})
	if got := r.RedactLine("foo bar", "X"); got != "foo X" {
		t.Fatalf("expected refreshed pattern set to replace the old one, got %q", got)
	}
}

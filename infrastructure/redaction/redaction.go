// Package redaction scrubs secret-shaped values (API keys, tokens,
// passwords, bearer credentials) out of structured log fields before they
// reach a formatter. It is deliberately distinct from the domain-level
// `redaction` package (C13, §4.14), which masks sensitive values inside
// ingested LogRecord content rather than the service's own log output.
package redaction

import (
	"regexp"
	"strings"
)

// secretValuePatterns match "key: value"-shaped secrets embedded in a log
// field's string value; each replacement keeps the matched key name and
// swaps the value for the configured redaction text.
var secretValuePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|apikey)["']?\s*[:=]\s*["']?([^"'\s,}]+)["']?`),
	regexp.MustCompile(`(?i)(secret|token|auth)["']?\s*[:=]\s*["']?([^"'\s,}]+)["']?`),
	regexp.MustCompile(`(?i)(Bearer)\s+([a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`(?i)(password)["']?\s*[:=]\s*["']?([^"'\s,}]+)["']?`),
	regexp.MustCompile(`(?i)(private[_-]?key|privkey)["']?\s*[:=]\s*["']?([^"'\s,}]+)["']?`),
	regexp.MustCompile(`(?i)(access[_-]?key|aws[_-]?secret)["']?\s*[:=]\s*["']?([^"'\s,}]+)["']?`),
}

// SecretConfig controls which field names are treated as inherently
// sensitive (redacted regardless of content) and the placeholder text
// substituted for a matched secret.
type SecretConfig struct {
	Enabled          bool
	RedactionText    string
	BlockedFieldKeys []string
}

// DefaultConfig returns the field-name blocklist the logging package's
// field redactor uses: field keys that are always replaced outright, independent of
// the value-pattern matching RedactString applies to string values.
func DefaultConfig() SecretConfig {
	return SecretConfig{
		Enabled:       true,
		RedactionText: "***REDACTED***",
		BlockedFieldKeys: []string{
			"password",
			"secret",
			"token",
			"apikey",
			"private_key",
			"credential",
		},
	}
}

// Redactor applies SecretConfig to log field maps and string values.
type Redactor struct {
	config SecretConfig
}

// NewRedactor creates a Redactor from cfg, falling back to the default
// placeholder text if none was supplied.
func NewRedactor(cfg SecretConfig) *Redactor {
	if cfg.RedactionText == "" {
		cfg.RedactionText = "***REDACTED***"
	}
	return &Redactor{config: cfg}
}

// RedactString applies every value pattern to s, replacing each matched
// secret value with the configured redaction text while keeping the
// matched key name.
func (r *Redactor) RedactString(s string) string {
	if !r.config.Enabled {
		return s
	}
	result := s
	for _, pattern := range secretValuePatterns {
		result = pattern.ReplaceAllString(result, "${1}: "+r.config.RedactionText)
	}
	return result
}

// RedactMap walks m, replacing values under a blocked field key outright
// and running RedactString/RedactMap/RedactSlice recursively over the rest.
// This is the entry point infrastructure/logging.Logger calls before a
// structured log line is formatted.
func (r *Redactor) RedactMap(m map[string]interface{}) map[string]interface{} {
	if !r.config.Enabled {
		return m
	}
	result := make(map[string]interface{}, len(m))
	for k, v := range m {
		switch {
		case r.isBlockedFieldKey(k):
			result[k] = r.config.RedactionText
		case v == nil:
			result[k] = v
		default:
			switch val := v.(type) {
			case string:
				result[k] = r.RedactString(val)
			case map[string]interface{}:
				result[k] = r.RedactMap(val)
			case []interface{}:
				result[k] = r.RedactSlice(val)
			default:
				result[k] = v
			}
		}
	}
	return result
}

// RedactSlice applies RedactString/RedactMap to each element of s.
func (r *Redactor) RedactSlice(s []interface{}) []interface{} {
	if !r.config.Enabled {
		return s
	}
	result := make([]interface{}, len(s))
	for i, v := range s {
		switch val := v.(type) {
		case string:
			result[i] = r.RedactString(val)
		case map[string]interface{}:
			result[i] = r.RedactMap(val)
		default:
			result[i] = val
		}
	}
	return result
}

func (r *Redactor) isBlockedFieldKey(fieldName string) bool {
	lowerName := strings.ToLower(fieldName)
	for _, blocked := range r.config.BlockedFieldKeys {
		if strings.Contains(lowerName, strings.ToLower(blocked)) {
			return true
		}
	}
	return false
}

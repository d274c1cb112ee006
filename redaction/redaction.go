// Package redaction implements C13: a process-wide, refreshable set of
// sensitive-key matchers and value-masking patterns applied to record
// fields (§4.14). It is the one piece of intentional global state this
// module carries, per §9's design note: "avoid injected global singletons
// except for Redaction (refreshable configuration) and the single
// partitioned-index handle."
package redaction

import (
	"regexp"
	"sync"
)

// compiledPattern pairs a compiled value-masking pattern with its captured
// group count, used to pick §4.14's replacement rule.
type compiledPattern struct {
	re     *regexp.Regexp
	groups int
}

// Redactor holds the current key/pattern set and applies it to text and
// metadata maps. Safe for concurrent use; Refresh swaps the whole set
// atomically under a mutex so in-flight redactions finish against a
// consistent snapshot.
type Redactor struct {
	mu       sync.RWMutex
	keys     []*regexp.Regexp
	patterns []compiledPattern
}

// New creates an empty Redactor. Call Refresh to load an initial key/pattern
// set (§4.14: "RedactionUtil used as a pure function" externally compiles
// the patterns; this type is the application engine that consumes them).
func New() *Redactor {
	return &Redactor{}
}

// Refresh recompiles the sensitive-key matchers and value-masking patterns,
// replacing whatever set was previously active (§4.14).
func (r *Redactor) Refresh(keys, patterns []string) {
	compiledKeys := make([]*regexp.Regexp, 0, len(keys))
	for _, k := range keys {
		if re, err := regexp.Compile("(?i)" + k); err == nil {
			compiledKeys = append(compiledKeys, re)
		}
	}
	compiledPatterns := make([]compiledPattern, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			continue
		}
		compiledPatterns = append(compiledPatterns, compiledPattern{re: re, groups: re.NumSubexp()})
	}

	r.mu.Lock()
	r.keys = compiledKeys
	r.patterns = compiledPatterns
	r.mu.Unlock()
}

// RedactLine applies every active value pattern to text, in order. A
// pattern with 2+ capture groups replaces the match with group(1)+mask
// (preserving a prefix, e.g. "user=" before a masked value); a pattern with
// fewer groups replaces the whole match with mask (§4.14).
func (r *Redactor) RedactLine(text, mask string) string {
	r.mu.RLock()
	patterns := r.patterns
	r.mu.RUnlock()

	result := text
	for _, p := range patterns {
		if p.groups >= 2 {
			result = p.re.ReplaceAllString(result, "${1}"+mask)
		} else {
			result = p.re.ReplaceAllString(result, mask)
		}
	}
	return result
}

// RedactMetadataValues returns a copy of fields with every value masked
// whose own value matches an active pattern (via RedactLine) OR whose key
// matches an active sensitive-key matcher regardless of content (§4.14).
func (r *Redactor) RedactMetadataValues(fields map[string]string, mask string) map[string]string {
	if fields == nil {
		return nil
	}

	r.mu.RLock()
	keys := r.keys
	r.mu.RUnlock()

	out := make(map[string]string, len(fields))
	for k, v := range fields {
		if matchesAnyKey(keys, k) {
			out[k] = mask
			continue
		}
		out[k] = r.RedactLine(v, mask)
	}
	return out
}

func matchesAnyKey(keys []*regexp.Regexp, fieldName string) bool {
	for _, re := range keys {
		if re.MatchString(fieldName) {
			return true
		}
	}
	return false
}

// DefaultSensitiveKeys mirrors the teacher's blocked-field list
// (infrastructure/redaction.DefaultConfig), generalized to regex form for
// this package's key matchers.
func DefaultSensitiveKeys() []string {
	return []string{"password", "secret", "token", "api[_-]?key", "private[_-]?key", "credential"}
}

// DefaultValuePatterns mirrors the teacher's secretPatterns, generalized
// into a key/value pair list this package's Refresh accepts: each pattern
// captures a leading label as group(1) so RedactLine preserves it.
func DefaultValuePatterns() []string {
	return []string{
		`(?i)(api[_-]?key\s*[:=]\s*)(\S+)`,
		`(?i)(secret\s*[:=]\s*)(\S+)`,
		`(?i)(password\s*[:=]\s*)(\S+)`,
		`(?i)(Bearer\s+)([A-Za-z0-9_.-]+)`,
		`\b\d{3}-\d{2}-\d{4}\b`, // bare SSN pattern, no capture group
	}
}

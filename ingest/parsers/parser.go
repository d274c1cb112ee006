// Package parsers implements C1: classifying a raw line as
// Nginx/Apache/syslog/unknown and producing a normalized LogRecord.
package parsers

import (
	"github.com/r3elabs/logwatch/recordmodel"
)

// Parser converts one raw line into a LogRecord. It returns ok=false when
// the line does not match its format, letting the caller try the next
// parser in order (§9: "parsers return option<LogRecord>; caller tries next
// parser on none" — modeled here as a (value, bool) result instead of
// exceptions for control flow).
type Parser interface {
	Name() string
	TryParse(line, sourceTag string) (*recordmodel.LogRecord, bool)
}

// Chain tries each parser in §4.1's fixed order and returns the first match.
// Every entry in Chain must also appear, in the same relative order, as a
// case in DefaultChain below.
type Chain struct {
	parsers []Parser
}

// DefaultChain returns the parsers tried in the order mandated by §4.1:
// nginx-combined, nginx-common, nginx-error, apache-combined, apache-common,
// apache-error, syslog, generic.
func DefaultChain() *Chain {
	return &Chain{parsers: []Parser{
		NginxCombinedParser{},
		NginxCommonParser{},
		NginxErrorParser{},
		ApacheCombinedParser{},
		ApacheCommonParser{},
		ApacheErrorParser{},
		SyslogParser{},
		GenericParser{},
	}}
}

// Parse runs the chain and always returns a record: if no specific parser
// matches, a raw UNKNOWN record is produced (§4.1 failure semantics).
func (c *Chain) Parse(line, sourceTag string) *recordmodel.LogRecord {
	for _, p := range c.parsers {
		if rec, ok := p.TryParse(line, sourceTag); ok {
			return rec
		}
	}
	return rawRecord(line, sourceTag)
}

// rawRecord builds the fallback record for unrecognized lines: level=UNKNOWN,
// rawContent=line, no metadata beyond protocol.
func rawRecord(line, sourceTag string) *recordmodel.LogRecord {
	return recordmodel.New(sourceTag, line, line, recordmodel.LevelUnknown, nil, map[string]string{
		recordmodel.MetaProtocol: "raw",
	})
}

package parsers

import "github.com/r3elabs/logwatch/recordmodel"

// GenericParser is the terminal entry in the chain: it matches every
// non-empty line, producing a minimal record, so DefaultChain.Parse falls
// back to rawRecord only for an empty line (the fallback also serves
// Chain.Parse callers that build a custom chain without GenericParser).
type GenericParser struct{}

func (GenericParser) Name() string { return "generic" }

func (GenericParser) TryParse(line, sourceTag string) (*recordmodel.LogRecord, bool) {
	if line == "" {
		return nil, false
	}
	meta := map[string]string{recordmodel.MetaLogFormat: "generic"}
	rec := recordmodel.New(sourceTag, line, line, recordmodel.LevelUnknown, nil, meta)
	return rec, true
}

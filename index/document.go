package index

import (
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2/search"
	"github.com/r3elabs/logwatch/recordmodel"
)

// FieldType is the declared type of a custom indexed field (§4.3).
type FieldType string

const (
	FieldTypeString  FieldType = "STRING"
	FieldTypeNumber  FieldType = "NUMBER"
	FieldTypeDate    FieldType = "DATE"
	FieldTypeBoolean FieldType = "BOOLEAN"
)

// CustomFieldConfig describes one operator-configured custom_<name> field,
// including whether it participates in the index at all, whether its value
// is retrievable from a hit, and whether it gets a tokenized text variant
// in addition to its exact-match term (§4.3).
type CustomFieldConfig struct {
	Name      string
	Type      FieldType
	Indexed   bool
	Stored    bool
	Tokenized bool
}

// knownTokenizedMetadata lists metadata keys that also get a "_text" tokenized
// variant alongside their exact metadata_<k> term, per §4.3 ("known IP/path/
// request fields").
var knownTokenizedMetadata = map[string]bool{
	recordmodel.MetaPath:      true,
	recordmodel.MetaIPAddress: true,
	recordmodel.MetaUserAgent: true,
	recordmodel.MetaReferer:   true,
}

// logDocument is the shape indexed into bleve for one LogRecord. Field names
// here are the canonical document field names referenced by queries.
type logDocument struct {
	ID         string                 `json:"id"`
	Timestamp  int64                  `json:"timestamp"`
	RecordTime *int64                 `json:"recordTime,omitempty"`
	Level      string                 `json:"level"`
	Message    string                 `json:"message"`
	Source     string                 `json:"source"`
	RawContent string                 `json:"rawContent"`
	Metadata   map[string]interface{} `json:"-"`
}

// toDocument flattens a LogRecord into the map bleve indexes: fixed fields
// plus metadata_<k> (and metadata_<k>_text for known tokenized keys) plus
// custom_<name> for any configured custom field present in metadata.
func toDocument(rec *recordmodel.LogRecord, customFields []CustomFieldConfig) map[string]interface{} {
	doc := map[string]interface{}{
		"id":         rec.ID,
		"timestamp":  rec.IngestTime,
		"level":      string(rec.Level),
		"message":    rec.Message,
		"source":     rec.Source,
		"rawContent": rec.RawContent,
	}
	if rec.RecordTime != nil {
		doc["recordTime"] = *rec.RecordTime
	}
	for k, v := range rec.Metadata {
		doc["metadata_"+k] = v
		if knownTokenizedMetadata[k] {
			doc["metadata_"+k+"_text"] = v
		}
	}
	for _, cf := range customFields {
		if !cf.Indexed {
			continue
		}
		v, ok := rec.Metadata[cf.Name]
		if !ok {
			continue
		}
		doc["custom_"+cf.Name] = v
	}
	return doc
}

// hitToRecord reconstructs a LogRecord from a bleve hit's stored fields.
func hitToRecord(hit *search.DocumentMatch) *recordmodel.LogRecord {
	f := hit.Fields
	rec := &recordmodel.LogRecord{
		ID:         asString(f["id"]),
		IngestTime: asInt64(f["timestamp"]),
		Level:      recordmodel.Level(asString(f["level"])),
		Message:    asString(f["message"]),
		Source:     asString(f["source"]),
		RawContent: asString(f["rawContent"]),
	}
	if v, ok := f["recordTime"]; ok {
		rt := asInt64(v)
		rec.RecordTime = &rt
	}

	meta := make(map[string]string)
	for k, v := range f {
		if !strings.HasPrefix(k, "metadata_") || strings.HasSuffix(k, "_text") {
			continue
		}
		meta[strings.TrimPrefix(k, "metadata_")] = asString(v)
	}
	if len(meta) > 0 {
		rec.Metadata = meta
	}
	return rec
}

func asString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func asInt64(v interface{}) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case int64:
		return t
	default:
		return 0
	}
}

package index

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
)

// BuildIndexMapping constructs the bleve mapping for one partition: exact
// (keyword) fields for id/level/source, tokenized text fields for
// message/rawContent, and per-type mappings for configured custom_<name>
// fields (§4.3). metadata_* and metadata_*_text get no explicit mapping.
func BuildIndexMapping(customFields []CustomFieldConfig) *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()
	doc := bleve.NewDocumentMapping()

	keyword := bleve.NewTextFieldMapping()
	keyword.Analyzer = "keyword"

	text := bleve.NewTextFieldMapping()
	text.Analyzer = "standard"

	ts := bleve.NewNumericFieldMapping()

	doc.AddFieldMappingsAt("id", keyword)
	doc.AddFieldMappingsAt("level", keyword)
	doc.AddFieldMappingsAt("source", keyword)
	doc.AddFieldMappingsAt("timestamp", ts)
	doc.AddFieldMappingsAt("recordTime", ts)
	doc.AddFieldMappingsAt("message", text)
	doc.AddFieldMappingsAt("rawContent", text)

	for _, cf := range customFields {
		if !cf.Indexed {
			continue
		}
		var fm *mapping.FieldMapping
		switch cf.Type {
		case FieldTypeNumber:
			fm = bleve.NewNumericFieldMapping()
		case FieldTypeDate:
			fm = bleve.NewDateTimeFieldMapping()
		case FieldTypeBoolean:
			fm = bleve.NewBooleanFieldMapping()
		default:
			fm = bleve.NewTextFieldMapping()
			if !cf.Tokenized {
				fm.Analyzer = "keyword"
			}
		}
		fm.Store = cf.Stored
		doc.AddFieldMappingsAt("custom_"+cf.Name, fm)
	}

	// metadata_* fields are dynamic (unknown key set at mapping-build time);
	// bleve's dynamic-field handling indexes them as text with the index's
	// default analyzer, so both metadata_<k> and metadata_<k>_text end up
	// tokenized the same way.
	im.DefaultMapping = doc
	return im
}

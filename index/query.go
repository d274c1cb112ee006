package index

import (
	"strings"

	"github.com/blevesearch/bleve/v2/search/query"
)

// textSearchFields are the fields a non-regex text search runs AND-combined
// term matching over (§4.3).
var textSearchFields = []string{"message", "rawContent"}

// regexSearchFields are the fields a regex search runs across: message,
// rawContent, and the known tokenized/exact metadata variants (§4.3).
var regexSearchFields = []string{
	"message", "rawContent",
	"metadata_ip_address", "metadata_ip_address_text",
	"metadata_path", "metadata_path_text",
	"metadata_user_agent", "metadata_user_agent_text",
	"metadata_referer", "metadata_referer_text",
}

// buildTextQuery builds the text clause of a search. A single trailing '^'
// is trimmed to avoid the boost-operator artifact it would otherwise
// introduce into bleve's query syntax (§4.3).
func buildTextQuery(q string, isRegex bool) query.Query {
	q = trimTrailingCaret(q)
	if q == "" {
		return query.NewMatchNoneQuery()
	}
	if isRegex {
		disjuncts := make([]query.Query, 0, len(regexSearchFields))
		for _, f := range regexSearchFields {
			rq := query.NewRegexpQuery(q)
			rq.SetField(f)
			disjuncts = append(disjuncts, rq)
		}
		return query.NewDisjunctionQuery(disjuncts)
	}

	terms := strings.Fields(q)
	if len(terms) == 0 {
		return wildcardFallback(q)
	}
	conjuncts := make([]query.Query, 0, len(terms))
	for _, term := range terms {
		perField := make([]query.Query, 0, len(textSearchFields))
		for _, f := range textSearchFields {
			mq := query.NewMatchQuery(term)
			mq.SetField(f)
			perField = append(perField, mq)
		}
		conjuncts = append(conjuncts, query.NewDisjunctionQuery(perField))
	}
	return query.NewConjunctionQuery(conjuncts)
}

// wildcardFallback builds the *q* wildcard query used when the text clause
// cannot otherwise be parsed (§4.3).
func wildcardFallback(q string) query.Query {
	disjuncts := make([]query.Query, 0, len(textSearchFields))
	for _, f := range textSearchFields {
		wq := query.NewWildcardQuery("*" + q + "*")
		wq.SetField(f)
		disjuncts = append(disjuncts, wq)
	}
	return query.NewDisjunctionQuery(disjuncts)
}

func trimTrailingCaret(q string) string {
	if strings.HasSuffix(q, "^") {
		return q[:len(q)-1]
	}
	return q
}

// buildTimeQuery builds the timestamp-OR-recordTime range clause. A zero
// bound on either side is treated as unset (§4.4's cache key convention of
// startTime|0, endTime|0 carries through to "no bound" here too).
func buildTimeQuery(startTime, endTime int64) query.Query {
	if startTime == 0 && endTime == 0 {
		return nil
	}
	var min, max *float64
	if startTime != 0 {
		v := float64(startTime)
		min = &v
	}
	if endTime != 0 {
		v := float64(endTime)
		max = &v
	}
	minIncl, maxIncl := true, true
	tsRange := query.NewNumericRangeInclusiveQuery(min, max, &minIncl, &maxIncl)
	tsRange.SetField("timestamp")
	recRange := query.NewNumericRangeInclusiveQuery(min, max, &minIncl, &maxIncl)
	recRange.SetField("recordTime")
	return query.NewDisjunctionQuery([]query.Query{tsRange, recRange})
}

// combineQuery ANDs the text clause with the time clause when a time bound
// was supplied, else returns the text clause alone.
func combineQuery(text query.Query, timeQ query.Query) query.Query {
	if timeQ == nil {
		return text
	}
	// An empty text clause leaves the time clause alone, so a bare
	// time-range search matches every record in range.
	if _, none := text.(*query.MatchNoneQuery); none {
		return timeQ
	}
	return query.NewConjunctionQuery([]query.Query{text, timeQ})
}

func termQuery(field, value string) query.Query {
	tq := query.NewTermQuery(value)
	tq.SetField(field)
	return tq
}

// Package query implements C8: a pipeline query language over LogRecords
// with search/where/stats/eval/sort/head/tail stages.
package query

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/r3elabs/logwatch/recordmodel"
)

// ResultType distinguishes a flowing-records result from a terminal
// statistics result (§4.8).
type ResultType string

const (
	ResultLogEntries ResultType = "LOG_ENTRIES"
	ResultStatistics ResultType = "STATISTICS"
)

// Result is the shape every pipeline execution returns (§4.8).
type Result struct {
	ResultType ResultType
	LogEntries []*recordmodel.LogRecord
	Statistics map[string]int
}

// Index runs the searches a "search" stage needs (C3).
type Index interface {
	Search(ctx context.Context, query string, isRegex bool, startTime, endTime int64) ([]*recordmodel.LogRecord, error)
	FindByLevel(ctx context.Context, level recordmodel.Level) ([]*recordmodel.LogRecord, error)
	FindBySource(ctx context.Context, source string) ([]*recordmodel.LogRecord, error)
}

// stage is one parsed pipeline step.
type stage struct {
	kind string // search, where, stats, eval, sort, head, tail
	arg  string
}

// Parse splits a pipeline query string by '|' into ordered stages (§4.8).
func Parse(pipelineQuery string) []stage {
	parts := strings.Split(pipelineQuery, "|")
	stages := make([]stage, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		kind, arg := splitStage(p)
		stages = append(stages, stage{kind: kind, arg: arg})
	}
	return stages
}

func splitStage(s string) (kind, arg string) {
	i := strings.IndexFunc(s, func(r rune) bool { return r == ' ' })
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i+1:])
}

// Execute runs every stage of a pipeline query in order, terminating early
// at a "stats" stage (§4.8: "After a terminal stats, subsequent stages (if
// any) are ignored").
func Execute(ctx context.Context, idx Index, pipelineQuery string, startTime, endTime int64) Result {
	stages := Parse(pipelineQuery)

	var records []*recordmodel.LogRecord
	for _, st := range stages {
		switch st.kind {
		case "search":
			records = execSearch(ctx, idx, st.arg, startTime, endTime)
		case "where":
			records = execWhere(records, st.arg)
		case "sort":
			records = execSort(records, st.arg)
		case "head":
			records = execHead(records, st.arg)
		case "tail":
			records = execTail(records, st.arg)
		case "stats":
			return execStats(records, st.arg)
		case "eval":
			// no-op reserved hook: records flow through unchanged (§4.8, §9).
		}
	}
	return Result{ResultType: ResultLogEntries, LogEntries: records}
}

// execSearch implements the "search <term>" / "search field=value" stage:
// level= and source= use term lookups on the index, others run full-text
// search (§4.8).
func execSearch(ctx context.Context, idx Index, arg string, startTime, endTime int64) []*recordmodel.LogRecord {
	field, value, isFieldMatch := parseFieldValue(arg)
	if isFieldMatch {
		switch field {
		case "level":
			recs, _ := idx.FindByLevel(ctx, recordmodel.Level(strings.ToUpper(value)))
			return recs
		case "source":
			recs, _ := idx.FindBySource(ctx, value)
			return recs
		}
	}
	recs, _ := idx.Search(ctx, arg, false, startTime, endTime)
	return recs
}

// parseFieldValue recognizes "field=value" (quotes around value allowed)
// and reports whether the stage argument took that shape.
func parseFieldValue(arg string) (field, value string, ok bool) {
	eq := strings.Index(arg, "=")
	if eq < 0 {
		return "", "", false
	}
	field = strings.TrimSpace(arg[:eq])
	value = strings.TrimSpace(arg[eq+1:])
	value = strings.Trim(value, `"`)
	if field == "" || strings.ContainsAny(field, " ") {
		return "", "", false
	}
	return field, value, true
}

// execWhere filters already-materialized records by an in-memory
// field=value match (§4.8).
func execWhere(records []*recordmodel.LogRecord, arg string) []*recordmodel.LogRecord {
	field, value, ok := parseFieldValue(arg)
	if !ok {
		return records
	}
	out := make([]*recordmodel.LogRecord, 0, len(records))
	for _, r := range records {
		if matchesField(r, field, value) {
			out = append(out, r)
		}
	}
	return out
}

func matchesField(r *recordmodel.LogRecord, field, value string) bool {
	switch field {
	case "level":
		return strings.EqualFold(string(r.Level), value)
	case "source":
		return r.Source == value
	case "message":
		return strings.Contains(r.Message, value)
	default:
		if r.Metadata == nil {
			return false
		}
		return r.Metadata[field] == value
	}
}

// execSort implements "sort [-]<field>": stable order by timestamp or
// level, '-' prefix reverses (§4.8).
func execSort(records []*recordmodel.LogRecord, arg string) []*recordmodel.LogRecord {
	desc := strings.HasPrefix(arg, "-")
	field := strings.TrimPrefix(arg, "-")

	out := make([]*recordmodel.LogRecord, len(records))
	copy(out, records)

	less := func(i, j int) bool {
		switch field {
		case "level":
			return out[i].Level < out[j].Level
		default: // "timestamp"
			return out[i].EffectiveTime() < out[j].EffectiveTime()
		}
	}
	if desc {
		inner := less
		less = func(i, j int) bool { return inner(j, i) }
	}
	sort.SliceStable(out, less)
	return out
}

// execHead implements "head <n>", defaulting to 10 (§4.8).
func execHead(records []*recordmodel.LogRecord, arg string) []*recordmodel.LogRecord {
	n := parsePositiveInt(arg, 10)
	if n > len(records) {
		n = len(records)
	}
	return records[:n]
}

// execTail implements "tail <n>", defaulting to 10 (§4.8).
func execTail(records []*recordmodel.LogRecord, arg string) []*recordmodel.LogRecord {
	n := parsePositiveInt(arg, 10)
	if n > len(records) {
		n = len(records)
	}
	return records[len(records)-n:]
}

func parsePositiveInt(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// execStats implements the terminal "stats count [by <field>]" stage
// (§4.8).
func execStats(records []*recordmodel.LogRecord, arg string) Result {
	arg = strings.TrimSpace(arg)
	if !strings.HasPrefix(arg, "count") {
		return Result{ResultType: ResultStatistics, Statistics: map[string]int{"count": len(records)}}
	}
	rest := strings.TrimSpace(strings.TrimPrefix(arg, "count"))
	if !strings.HasPrefix(rest, "by ") {
		return Result{ResultType: ResultStatistics, Statistics: map[string]int{"count": len(records)}}
	}
	field := strings.TrimSpace(strings.TrimPrefix(rest, "by "))
	groups := make(map[string]int)
	for _, r := range records {
		groups[fieldValue(r, field)]++
	}
	return Result{ResultType: ResultStatistics, Statistics: groups}
}

func fieldValue(r *recordmodel.LogRecord, field string) string {
	switch field {
	case "level":
		return string(r.Level)
	case "source":
		return r.Source
	default:
		if r.Metadata == nil {
			return ""
		}
		return r.Metadata[field]
	}
}

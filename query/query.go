// Package query evaluates equality queries against the annotation table.
//
// Results are either data (Rows, Count), an Advisory explaining why no data is returned,
// or a Display meant for the end user only. Every result serializes to the JSON value that
// is appended to the conversation.
package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"iter"
	"slices"
	"strings"

	llama "github.com/gamazeps/encode-llama"
)

const (
	// MaxResultBytes bounds the serialized size of an inline search result.
	MaxResultBytes = 4000
	// DisplayRowLimit is the largest result rendered directly to the user.
	DisplayRowLimit = 20
)

// Advisories returned instead of data.
const (
	AdvisoryTooBig        = "Result too big. You may either call count function, do a better filter, or just show the result directly to the user with `tabular_search_display`"
	AdvisoryNoMatch       = "No match found. Check the filter values and the requested feature."
	AdvisoryNoIdentifier  = "No match found. Did you check for the correct kind (transcript_id or gene_name)?"
	advisoryUnknownCodon  = "This feature '%s' doesn't exist. Did you mean start_codon?"
	advisoryUnknownKind   = "This kind of feature '%s' doesn't exist"
	advisoryFeatureAbsent = "No '%s' rows match this request."
)

// Filter requires a field to equal a literal value.
type Filter struct {
	Field string
	Value string
}

// Query is a conjunctive equality filter plus an ordered projection.
type Query struct {
	Filters []Filter
	Fields  []string
	// Feature optionally restricts matches to one feature kind.
	Feature llama.Feature
}

// ValidationError reports a query naming something outside the schema.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %q", e.Message, e.Field)
}

// Validate checks every filter and projection field against the schema.
func (q Query) Validate() error {
	for _, f := range q.Filters {
		if !llama.IsField(f.Field) {
			return &ValidationError{Field: f.Field, Message: "unknown filter field"}
		}
	}
	for _, f := range q.Fields {
		if !llama.IsField(f) {
			return &ValidationError{Field: f, Message: "unknown output field"}
		}
	}
	return nil
}

func (q Query) filters() []Filter {
	if q.Feature == "" {
		return q.Filters
	}
	return append(slices.Clip(q.Filters), Filter{Field: "feature", Value: string(q.Feature)})
}

// Cell is one projected field value.
type Cell struct {
	Field string
	Value any
}

// Row is a projected record, with fields in request order.
type Row []Cell

// Strings returns the cell values formatted for tabular output.
func (r Row) Strings() []string {
	out := make([]string, len(r))
	for i, c := range r {
		out[i] = fmt.Sprint(c.Value)
	}
	return out
}

// MarshalJSON encodes the row as an object keeping field order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c.Field)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(c.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Result is the outcome of a query operation.
type Result interface {
	// Payload is the value serialized into the conversation.
	Payload() any
}

// Rows is an inline search result.
type Rows []Row

func (r Rows) Payload() any { return []Row(r) }

// Count is a count_of_type result.
type Count int

func (c Count) Payload() any { return int(c) }

// Advisory is a descriptive string returned instead of data.
type Advisory string

func (a Advisory) Payload() any { return string(a) }

// Display is a result shown to the end user and kept out of the model context.
type Display struct {
	// Path is the tabular artifact written for the query.
	Path string
	// Matched is the number of matching records.
	Matched int
	// Table is the rendered rows, empty when Matched exceeds DisplayRowLimit.
	Table string
}

// Payload is the short notice the model receives in place of the rows.
func (d Display) Payload() any {
	if d.Table == "" {
		return fmt.Sprintf("Generated %s with those infos (%d rows), shown to the user", d.Path, d.Matched)
	}
	return fmt.Sprintf("Displayed %d rows directly to the user", d.Matched)
}

// UserText is what the end user sees.
func (d Display) UserText() string {
	if d.Table == "" {
		return fmt.Sprintf("Generated %s with %d rows", d.Path, d.Matched)
	}
	return d.Table
}

// Marshal serializes a result payload as the model will see it.
func Marshal(r Result) (string, error) {
	b, err := json.Marshal(r.Payload())
	if err != nil {
		return "", fmt.Errorf("query: marshal result: %w", err)
	}
	return string(b), nil
}

// FilterRecords keeps the records matching every filter.
func FilterRecords(records iter.Seq[llama.Record], filters []Filter) iter.Seq[llama.Record] {
	return func(yield func(llama.Record) bool) {
		for r := range records {
			if matches(r, filters) && !yield(r) {
				return
			}
		}
	}
}

func matches(r llama.Record, filters []Filter) bool {
	for _, f := range filters {
		if r.Text(f.Field) != f.Value {
			return false
		}
	}
	return true
}

// Project emits the requested fields of each record in iteration order.
func Project(records iter.Seq[llama.Record], fields []string) ([]Row, error) {
	if err := (Query{Fields: fields}).Validate(); err != nil {
		return nil, err
	}
	var rows []Row
	for r := range records {
		rows = append(rows, project(r, fields))
	}
	return rows, nil
}

func project(r llama.Record, fields []string) Row {
	row := make(Row, len(fields))
	for i, f := range fields {
		v, _ := r.Get(f)
		row[i] = Cell{Field: f, Value: v}
	}
	return row
}

func describeFilters(filters []Filter) string {
	parts := make([]string, len(filters))
	for i, f := range filters {
		parts[i] = f.Field + "=" + f.Value
	}
	return strings.Join(parts, ",")
}

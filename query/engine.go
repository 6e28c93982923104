package query

import (
	"encoding/json"
	"fmt"
	"strings"

	llama "github.com/gamazeps/encode-llama"
	"github.com/rs/zerolog/log"
)

// Engine runs queries against a RecordStore. It only reads the store, so one Engine can
// serve any number of sessions.
type Engine struct {
	store *llama.RecordStore
	sink  TableSink
}

// NewEngine creates an engine over store. Tabular results are written to sink.
func NewEngine(store *llama.RecordStore, sink TableSink) (*Engine, error) {
	if store == nil {
		return nil, llama.ErrStoreNotLoaded
	}
	if sink == nil {
		sink = &CSVSink{Path: "output.csv"}
	}
	return &Engine{store: store, sink: sink}, nil
}

// Search returns the projected matches inline, or an advisory when nothing matches or the
// serialized rows would exceed MaxResultBytes. It never truncates.
func (e *Engine) Search(q Query) (Result, error) {
	if err := e.validate(q); err != nil {
		return nil, err
	}

	var rows Rows
	// Bytes of "[" plus each row followed by "," or "]".
	size := 1
	for r := range FilterRecords(e.store.All(), q.filters()) {
		row := project(r, q.Fields)
		b, err := json.Marshal(row)
		if err != nil {
			return nil, fmt.Errorf("query: marshal row: %w", err)
		}
		size += len(b) + 1
		if size > MaxResultBytes {
			log.Debug().Str("filters", describeFilters(q.filters())).Int("rows", len(rows)+1).Msg("query: search result over size limit")
			return Advisory(AdvisoryTooBig), nil
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return Advisory(AdvisoryNoMatch), nil
	}
	return rows, nil
}

// SearchGeneByName searches rows whose gene_name equals name.
func (e *Engine) SearchGeneByName(name string, fields []string, feature llama.Feature) (Result, error) {
	return e.Search(Query{
		Filters: []Filter{{Field: "gene_name", Value: name}},
		Fields:  fields,
		Feature: feature,
	})
}

// SearchTranscriptByID searches rows whose transcript_id equals id.
func (e *Engine) SearchTranscriptByID(id string, fields []string, feature llama.Feature) (Result, error) {
	return e.Search(Query{
		Filters: []Filter{{Field: "transcript_id", Value: id}},
		Fields:  fields,
		Feature: feature,
	})
}

// TabularDisplay writes all matches to the table sink. Up to DisplayRowLimit rows are also
// rendered for the user; larger results only point at the artifact.
func (e *Engine) TabularDisplay(q Query) (Result, error) {
	if err := e.validate(q); err != nil {
		return nil, err
	}

	rows, err := Project(FilterRecords(e.store.All(), q.filters()), q.Fields)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return Advisory(AdvisoryNoMatch), nil
	}

	path, err := e.sink.WriteTable(q.Fields, rows)
	if err != nil {
		return nil, fmt.Errorf("query: write table: %w", err)
	}

	d := Display{Path: path, Matched: len(rows)}
	if len(rows) <= DisplayRowLimit {
		d.Table = RenderTable(q.Fields, rows)
	}
	return d, nil
}

// CountOfType counts rows of a feature kind for a transcript or a gene. Exons count distinct
// exon ids; start codons, stop codons and CDS count distinct start positions; every other kind
// counts rows.
func (e *Engine) CountOfType(feature, transcriptID, geneName string) (Result, error) {
	if transcriptID != "" && geneName != "" {
		return nil, &ValidationError{Message: "count_of_type takes transcript_id or gene_name, not both"}
	}

	var filters []Filter
	switch {
	case transcriptID != "":
		filters = []Filter{{Field: "transcript_id", Value: transcriptID}}
	case geneName != "":
		filters = []Filter{{Field: "gene_name", Value: geneName}}
	}

	matched := 0
	present := make(map[llama.Feature]bool)
	distinct := make(map[string]struct{})
	count := 0
	key := countKey(llama.Feature(feature))

	for r := range FilterRecords(e.store.All(), filters) {
		matched++
		present[r.Feature] = true
		if string(r.Feature) != feature {
			continue
		}
		if key == "" {
			count++
			continue
		}
		distinct[r.Text(key)] = struct{}{}
	}

	if matched == 0 {
		return Advisory(AdvisoryNoIdentifier), nil
	}
	if !present[llama.Feature(feature)] {
		return featureAdvisory(feature), nil
	}
	if key != "" {
		count = len(distinct)
	}
	return Count(count), nil
}

func countKey(f llama.Feature) string {
	switch f {
	case llama.FeatureExon:
		return "exon_id"
	case llama.FeatureStartCodon, llama.FeatureStopCodon, llama.FeatureCDS:
		return "start"
	}
	return ""
}

func featureAdvisory(feature string) Advisory {
	switch {
	case llama.Feature(feature).Valid():
		return Advisory(fmt.Sprintf(advisoryFeatureAbsent, feature))
	case strings.Contains(feature, "codon"):
		return Advisory(fmt.Sprintf(advisoryUnknownCodon, feature))
	default:
		return Advisory(fmt.Sprintf(advisoryUnknownKind, feature))
	}
}

func (e *Engine) validate(q Query) error {
	if len(q.Fields) == 0 {
		return &ValidationError{Message: "Missing `fields` value"}
	}
	return q.Validate()
}

package llama

import (
	"errors"
	"fmt"
	"iter"
	"slices"
	"strconv"
)

var ErrStoreNotLoaded = errors.New("llama: record store not loaded")

// Feature is the kind of a GENCODE annotation row.
type Feature string

const (
	FeatureGene           Feature = "gene"
	FeatureTranscript     Feature = "transcript"
	FeatureExon           Feature = "exon"
	FeatureCDS            Feature = "CDS"
	FeatureStartCodon     Feature = "start_codon"
	FeatureStopCodon      Feature = "stop_codon"
	FeatureUTR            Feature = "UTR"
	FeatureSelenocysteine Feature = "Selenocysteine"
)

// Features lists every feature kind in annotation order.
var Features = []Feature{
	FeatureGene, FeatureTranscript, FeatureExon, FeatureCDS,
	FeatureStartCodon, FeatureStopCodon, FeatureUTR, FeatureSelenocysteine,
}

// Valid reports whether f is one of the known feature kinds.
func (f Feature) Valid() bool {
	return slices.Contains(Features, f)
}

// Fields is the fixed schema of a record, in column order.
var Fields = []string{
	"seqname", "source", "feature", "start", "end", "score", "strand", "frame",
	"gene_id", "gene_type", "gene_name", "level", "hgnc_id", "havana_gene",
	"transcript_id", "transcript_type", "transcript_name", "transcript_support_level",
	"tag", "havana_transcript", "exon_number", "exon_id", "ont", "protein_id", "ccdsid",
}

var fieldSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(Fields))
	for _, f := range Fields {
		m[f] = struct{}{}
	}
	return m
}()

// IsField reports whether name is a schema field.
func IsField(name string) bool {
	_, ok := fieldSet[name]
	return ok
}

// Record is one annotation row. Absent attributes are empty strings.
type Record struct {
	Seqname                string
	Source                 string
	Feature                Feature
	Start                  int64
	End                    int64
	Score                  string
	Strand                 string
	Frame                  string
	GeneID                 string
	GeneType               string
	GeneName               string
	Level                  string
	HGNCID                 string
	HavanaGene             string
	TranscriptID           string
	TranscriptType         string
	TranscriptName         string
	TranscriptSupportLevel string
	Tag                    string
	HavanaTranscript       string
	ExonNumber             string
	ExonID                 string
	Ont                    string
	ProteinID              string
	CCDSID                 string
}

// Get returns the typed value of a schema field: int64 for start and end, string otherwise.
func (r Record) Get(field string) (any, bool) {
	switch field {
	case "start":
		return r.Start, true
	case "end":
		return r.End, true
	}
	s, ok := r.text(field)
	return s, ok
}

// Text returns the literal form of a field used for equality comparisons.
func (r Record) Text(field string) string {
	s, _ := r.text(field)
	return s
}

func (r Record) text(field string) (string, bool) {
	switch field {
	case "seqname":
		return r.Seqname, true
	case "source":
		return r.Source, true
	case "feature":
		return string(r.Feature), true
	case "start":
		return strconv.FormatInt(r.Start, 10), true
	case "end":
		return strconv.FormatInt(r.End, 10), true
	case "score":
		return r.Score, true
	case "strand":
		return r.Strand, true
	case "frame":
		return r.Frame, true
	case "gene_id":
		return r.GeneID, true
	case "gene_type":
		return r.GeneType, true
	case "gene_name":
		return r.GeneName, true
	case "level":
		return r.Level, true
	case "hgnc_id":
		return r.HGNCID, true
	case "havana_gene":
		return r.HavanaGene, true
	case "transcript_id":
		return r.TranscriptID, true
	case "transcript_type":
		return r.TranscriptType, true
	case "transcript_name":
		return r.TranscriptName, true
	case "transcript_support_level":
		return r.TranscriptSupportLevel, true
	case "tag":
		return r.Tag, true
	case "havana_transcript":
		return r.HavanaTranscript, true
	case "exon_number":
		return r.ExonNumber, true
	case "exon_id":
		return r.ExonID, true
	case "ont":
		return r.Ont, true
	case "protein_id":
		return r.ProteinID, true
	case "ccdsid":
		return r.CCDSID, true
	}
	return "", false
}

// Set assigns a field from its literal form. It is used by importers.
func (r *Record) Set(field, value string) error {
	switch field {
	case "start", "end":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("llama: field %s: %w", field, err)
		}
		if field == "start" {
			r.Start = n
		} else {
			r.End = n
		}
	case "seqname":
		r.Seqname = value
	case "source":
		r.Source = value
	case "feature":
		r.Feature = Feature(value)
	case "score":
		r.Score = value
	case "strand":
		r.Strand = value
	case "frame":
		r.Frame = value
	case "gene_id":
		r.GeneID = value
	case "gene_type":
		r.GeneType = value
	case "gene_name":
		r.GeneName = value
	case "level":
		r.Level = value
	case "hgnc_id":
		r.HGNCID = value
	case "havana_gene":
		r.HavanaGene = value
	case "transcript_id":
		r.TranscriptID = value
	case "transcript_type":
		r.TranscriptType = value
	case "transcript_name":
		r.TranscriptName = value
	case "transcript_support_level":
		r.TranscriptSupportLevel = value
	case "tag":
		r.Tag = value
	case "havana_transcript":
		r.HavanaTranscript = value
	case "exon_number":
		r.ExonNumber = value
	case "exon_id":
		r.ExonID = value
	case "ont":
		r.Ont = value
	case "protein_id":
		r.ProteinID = value
	case "ccdsid":
		r.CCDSID = value
	default:
		return fmt.Errorf("llama: unknown field %q", field)
	}
	return nil
}

// Validate checks that start <= end, the strand is + or - and the feature kind is known.
func (r Record) Validate() error {
	if r.Start > r.End {
		return fmt.Errorf("llama: record start %d after end %d", r.Start, r.End)
	}
	if r.Strand != "+" && r.Strand != "-" {
		return fmt.Errorf("llama: record strand %q is not + or -", r.Strand)
	}
	if !r.Feature.Valid() {
		return fmt.Errorf("llama: record feature %q is unknown", r.Feature)
	}
	return nil
}

// RecordStore is the in-memory annotation table. It is never mutated after construction.
type RecordStore struct {
	version string
	records []Record
}

// NewRecordStore copies records into a new store.
func NewRecordStore(version string, records []Record) *RecordStore {
	return &RecordStore{
		version: version,
		records: slices.Clone(records),
	}
}

// Version is the dataset version the store was loaded from.
func (s *RecordStore) Version() string {
	return s.version
}

// Len returns the number of records.
func (s *RecordStore) Len() int {
	return len(s.records)
}

// All yields copies of the records in load order.
func (s *RecordStore) All() iter.Seq[Record] {
	return func(yield func(Record) bool) {
		for _, r := range s.records {
			if !yield(r) {
				return
			}
		}
	}
}

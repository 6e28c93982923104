package fncall

import (
	"testing"

	llama "github.com/gamazeps/encode-llama"
	"github.com/gamazeps/encode-llama/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Call
	}{
		{
			name: "gene search with feature",
			line: `Assistant: {"function":"search_gene_by_name","query":"MT-TP","fields":["transcript_id","transcript_name"],"feature":"transcript"}`,
			want: SearchGeneByName{Query: "MT-TP", Fields: []string{"transcript_id", "transcript_name"}, Feature: llama.FeatureTranscript},
		},
		{
			name: "transcript search without feature",
			line: `Assistant: {"function":"search_transcript_by_id","query":"ENST00000450305.2","fields":["gene_name"]}`,
			want: SearchTranscriptByID{Query: "ENST00000450305.2", Fields: []string{"gene_name"}},
		},
		{
			name: "end of turn marker",
			line: `Assistant: {"function":"say","message":"Hello world"}</s>`,
			want: Say{Message: "Hello world"},
		},
		{
			name: "garbage around the object",
			line: `Assistant: sure, here you go {"function":"exit"} that's it`,
			want: Exit{},
		},
		{
			name: "braces in prose before the object",
			line: `Assistant: I'll use {search} here: {"function":"exit"}`,
			want: Exit{},
		},
		{
			name: "integral float literal",
			line: `Assistant: {"function":"search","gene_name":"MT-TP","exon_number":4.0,"fields":["exon_id"]}`,
			want: Search{
				Filters: []query.Filter{
					{Field: "gene_name", Value: "MT-TP"},
					{Field: "exon_number", Value: "4"},
				},
				Fields: []string{"exon_id"},
			},
		},
		{
			name: "generic search filters in schema order",
			line: `Assistant: {"function":"search","exon_number":4,"havana_transcript":"OTTHUMT00000058878.2","fields":["strand"]}`,
			want: Search{
				Filters: []query.Filter{
					{Field: "havana_transcript", Value: "OTTHUMT00000058878.2"},
					{Field: "exon_number", Value: "4"},
				},
				Fields: []string{"strand"},
			},
		},
		{
			name: "tabular display",
			line: `Assistant: {"function":"tabular_search_display","gene_name":"MT-TP","fields":["exon_id","start"]}`,
			want: TabularSearchDisplay{
				Filters: []query.Filter{{Field: "gene_name", Value: "MT-TP"}},
				Fields:  []string{"exon_id", "start"},
			},
		},
		{
			name: "count",
			line: `Assistant: {"function":"count_of_type","gene_name":"MT-TP","feature":"start_codon"}`,
			want: CountOfType{Feature: "start_codon", GeneName: "MT-TP"},
		},
		{
			name: "unknown operation",
			line: `Assistant: {"function":"frobnicate","x":1}`,
			want: Unknown{Name: "frobnicate"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLine(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.Function(), got.Function())
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"empty", ""},
		{"not json", "I think the answer is 42"},
		{"broken object", `{"function":"say","message":"hi"`},
		{"two objects", `{"function":"say","message":"a"} {"function":"exit"}`},
		{"broken second object", `{"function":"exit"}{"function":"say","message":"x"`},
		{"prose braces then broken object", `I'll use {search} here: {"function":"exit"`},
		{"no function", `{"message":"hi"}`},
		{"function not a string", `{"function":3}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.payload)
			var perr *ParseError
			require.ErrorAs(t, err, &perr)
		})
	}
}

func TestParseLine_BrokenSecondObject(t *testing.T) {
	_, err := ParseLine(`Assistant: {"function":"exit"}{"function":"say","message":"x"`)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
}

func TestParseLine_RequiresAssistantLabel(t *testing.T) {
	_, err := ParseLine(`System: {"function":"exit"}`)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		message string
	}{
		{"count extra key", `{"function":"count_of_type","gene_name":"MT-TP","feature":"exon","colour":"red"}`, "Unexpected keys [colour]"},
		{"count missing feature", `{"function":"count_of_type","gene_name":"MT-TP"}`, "Missing `feature` value"},
		{"search extra key", `{"function":"search","gene_name":"MT-TP","fields":["start"],"limit":3,"colour":1}`, "Unexpected keys [colour, limit]"},
		{"search without filters", `{"function":"search","fields":["start"]}`, "Missing search parameters"},
		{"search without fields", `{"function":"search","gene_name":"MT-TP"}`, "Missing `fields` value"},
		{"search object literal", `{"function":"search","gene_name":{"a":1},"fields":["start"]}`, "Invalid value for `gene_name`: expected a string or a number"},
		{"named search extra key", `{"function":"search_gene_by_name","query":"MT-TP","fields":["start"],"strand":"+"}`, "Unexpected keys [strand]"},
		{"named search missing query", `{"function":"search_transcript_by_id","fields":["start"]}`, "Missing `query` value"},
		{"named search bad fields", `{"function":"search_gene_by_name","query":"MT-TP","fields":"start"}`, "`fields` must be a list of field names"},
		{"say without message", `{"function":"say"}`, "Missing `message` value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			call, err := Parse(tt.payload)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.message, verr.Error())
			require.NotNil(t, call)
			assert.Equal(t, verr.Function, call.Function())
		})
	}
}

func TestParse_SayIgnoresExtraKeys(t *testing.T) {
	call, err := Parse(`{"function":"say","message":"hi","mood":"happy"}`)
	require.NoError(t, err)
	assert.Equal(t, Say{Message: "hi"}, call)
}

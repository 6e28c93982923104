package llama

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_SetGetRoundTrip(t *testing.T) {
	var r Record
	for i, f := range Fields {
		value := "v" + f
		switch f {
		case "start":
			value = "100"
		case "end":
			value = "200"
		}
		require.NoError(t, r.Set(f, value), "field %d", i)
		assert.Equal(t, value, r.Text(f))
	}

	start, ok := r.Get("start")
	require.True(t, ok)
	assert.Equal(t, int64(100), start)

	name, ok := r.Get("gene_name")
	require.True(t, ok)
	assert.Equal(t, "vgene_name", name)

	_, ok = r.Get("colour")
	assert.False(t, ok)
}

func TestRecord_SetErrors(t *testing.T) {
	var r Record
	require.Error(t, r.Set("start", "abc"))
	require.Error(t, r.Set("colour", "red"))
}

func TestRecord_Validate(t *testing.T) {
	ok := Record{Feature: FeatureExon, Start: 1, End: 1, Strand: "+"}
	require.NoError(t, ok.Validate())

	tests := []struct {
		name string
		mut  func(*Record)
	}{
		{"start after end", func(r *Record) { r.Start = 2 }},
		{"bad strand", func(r *Record) { r.Strand = "." }},
		{"unknown feature", func(r *Record) { r.Feature = "intron" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ok
			tt.mut(&r)
			require.Error(t, r.Validate())
		})
	}
}

func TestFeatureValid(t *testing.T) {
	for _, f := range Features {
		assert.True(t, f.Valid(), f)
	}
	assert.False(t, Feature("start-codon").Valid())
	assert.True(t, IsField("ccdsid"))
	assert.False(t, IsField("feature_type"))
	assert.Len(t, Fields, 25)
}

func TestRecordStore(t *testing.T) {
	records := []Record{{GeneName: "A"}, {GeneName: "B"}, {GeneName: "C"}}
	s := NewRecordStore("40", records)
	records[0].GeneName = "changed"

	assert.Equal(t, "40", s.Version())
	assert.Equal(t, 3, s.Len())

	var names []string
	for r := range s.All() {
		names = append(names, r.GeneName)
		if len(names) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"A", "B"}, names)
}

package ingest

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/kinji/internal/identity"
	"github.com/hyperjump/kinji/internal/models"
)

const rawJSON = `[
  {"id": 1, "title": "  Graph   NEURAL Networks ", "abstract": "Message\npassing", "year": "2020", "journal": "Nature", "x": 0.5, "y": -1.25},
  {"id": 2.0, "title": "", "abstract": "missing title"},
  {"id": "abc", "title": "Protein Folding", "abstract": "Structure", "year": "n/a", "doi": "10.1/XYZ"},
  {"title": "no id", "abstract": "x"},
  {"id": 7, "title": "Attention", "abstract": "Transformers", "year": 2017, "journal": "", "x": "1", "y": "2", "z": "3", "tags": ["a", "b"]}
]`

func defaultOpts() CleanOptions {
	return CleanOptions{NormalizeFields: []string{"title", "abstract"}}
}

func TestDecode_JSONArray(t *testing.T) {
	raw, err := Decode([]byte(rawJSON), ".json")
	require.NoError(t, err)
	require.Len(t, raw, 5)
	assert.Equal(t, json.Number("1"), raw[0]["id"])
}

func TestDecode_JSONLines(t *testing.T) {
	content := "{\"id\": 1, \"title\": \"a\", \"abstract\": \"b\"}\n\n{\"id\": 2, \"title\": \"c\", \"abstract\": \"d\"}\n"
	for _, ext := range []string{".jsonl", ".ndjson", ".json"} {
		raw, err := Decode([]byte(content), ext)
		require.NoError(t, err, ext)
		assert.Len(t, raw, 2, ext)
	}

	_, err := Decode([]byte("{\"id\": 1}\n{broken"), ".jsonl")
	assert.ErrorContains(t, err, "line 2")
}

func TestDecode_Unsupported(t *testing.T) {
	_, err := Decode([]byte("a,b"), ".csv")
	assert.Error(t, err)
}

func TestClean(t *testing.T) {
	raw, err := Decode([]byte(rawJSON), ".json")
	require.NoError(t, err)

	recs, stats, err := Clean(raw, defaultOpts())
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 5, Valid: 3, Invalid: 2}, stats)
	require.Len(t, recs, 3)

	first := recs[0]
	assert.Equal(t, models.RecordID("1"), first.ID)
	assert.Equal(t, 0, first.Row)
	assert.Equal(t, "graph neural networks", first.Title)
	assert.Equal(t, "message passing", first.Abstract)
	assert.Equal(t, 2020, first.Year)
	assert.Equal(t, "Nature", first.Journal)
	assert.Equal(t, []float64{0.5, -1.25}, first.Coords)

	second := recs[1]
	assert.Equal(t, models.RecordID("abc"), second.ID)
	assert.Equal(t, 1, second.Row)
	assert.Equal(t, 0, second.Year)
	assert.Equal(t, UnknownJournal, second.Journal)
	assert.Equal(t, map[string]string{"doi": "10.1/XYZ"}, second.Fields)
	assert.Nil(t, second.Coords)

	third := recs[2]
	assert.Equal(t, models.RecordID("7"), third.ID)
	assert.Equal(t, 2, third.Row)
	assert.Equal(t, 2017, third.Year)
	assert.Equal(t, UnknownJournal, third.Journal)
	assert.Equal(t, []float64{1, 2, 3}, third.Coords)
	assert.Equal(t, `["a","b"]`, third.Fields["tags"])
}

func TestClean_NormalizesExtraTextFields(t *testing.T) {
	raw := []RawRecord{{"id": "1", "title": "T", "abstract": "A", "keywords": "  Deep   Learning "}}
	recs, _, err := Clean(raw, CleanOptions{NormalizeFields: []string{"title", "keywords"}})
	require.NoError(t, err)
	assert.Equal(t, "t", recs[0].Title)
	assert.Equal(t, "A", recs[0].Abstract)
	assert.Equal(t, "deep learning", recs[0].Fields["keywords"])
}

func TestClean_DuplicateIdentityIsFatal(t *testing.T) {
	raw := []RawRecord{
		{"id": json.Number("1"), "title": "a", "abstract": "b"},
		{"id": "1.0", "title": "c", "abstract": "d"},
		{"id": json.Number("1.0"), "title": "e", "abstract": "f"},
	}
	_, _, err := Clean(raw, defaultOpts())
	assert.ErrorIs(t, err, identity.ErrDuplicateIdentity)
}

func TestClean_LargeNumericIdentities(t *testing.T) {
	raw, err := Decode([]byte(`[
  {"id": 12345678901234567891, "title": "a", "abstract": "b"},
  {"id": 12345678901234567890, "title": "c", "abstract": "d"}
]`), ".json")
	require.NoError(t, err)

	recs, _, err := Clean(raw, defaultOpts())
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, models.RecordID("12345678901234567891"), recs[0].ID)
	assert.Equal(t, models.RecordID("12345678901234567890"), recs[1].ID)
}

func TestParseYear(t *testing.T) {
	tests := []struct {
		in   interface{}
		want int
	}{
		{nil, 0},
		{"", 0},
		{"2021", 2021},
		{json.Number("1999"), 1999},
		{"2020.0", 2020},
		{"unknown", 0},
		{float64(2005), 2005},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseYear(tt.in), "input %v", tt.in)
	}
}

func TestIngest_Excel(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	rows := [][]interface{}{
		{"ID", "Title", "Abstract", "Year", "Journal", ""},
		{1, "Graph Nets", "GNN survey", 2019, "JMLR", "ignored"},
		{2, "Empty Abstract", "", 2020, "", ""},
		{"x9", "Diffusion", "Score models", "", "", ""},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	var buf bytes.Buffer
	_, err := f.WriteTo(&buf)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "raw.xlsx")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))

	recs, stats, err := Ingest(path, defaultOpts())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Invalid)
	require.Len(t, recs, 2)
	assert.Equal(t, models.RecordID("1"), recs[0].ID)
	assert.Equal(t, "graph nets", recs[0].Title)
	assert.Equal(t, 2019, recs[0].Year)
	assert.Equal(t, "JMLR", recs[0].Journal)
	assert.Equal(t, models.RecordID("x9"), recs[1].ID)
	assert.Equal(t, UnknownJournal, recs[1].Journal)
	assert.Equal(t, 1, recs[1].Row)
}

func TestIngest_MissingFile(t *testing.T) {
	_, _, err := Ingest(filepath.Join(t.TempDir(), "nope.json"), defaultOpts())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

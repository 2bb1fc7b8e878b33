package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hyperjump/kinji/internal/embedding"
	"github.com/hyperjump/kinji/internal/identity"
	"github.com/hyperjump/kinji/internal/models"
	"github.com/hyperjump/kinji/internal/storage"
	"github.com/hyperjump/kinji/internal/vector"
)

func testRecords(n int) []*models.Record {
	recs := make([]*models.Record, n)
	for i := range recs {
		recs[i] = &models.Record{
			ID:       models.RecordID(string(rune('a'+i%26)) + strings.Repeat("x", i/26)),
			Row:      i,
			Title:    "title " + string(rune('a'+i%26)),
			Abstract: strings.Repeat("word ", i+1),
			Journal:  "Unknown Journal",
		}
	}
	return recs
}

func testOptions() Options {
	return Options{
		IndexType: "flat",
		Metric:    vector.MetricL2,
		BatchSize: 3,
		Workers:   4,
		Text:      TextBuilder{Fields: []string{"title", "abstract"}, Prefix: "passage: "},
		Model:     "mock/8",
		Logger:    zap.NewNop(),
	}
}

func TestTextBuilder(t *testing.T) {
	r := &models.Record{ID: "1", Title: "graph nets", Abstract: "", Year: 2020,
		Fields: map[string]string{"keywords": "gnn"}}

	b := TextBuilder{Fields: []string{"title", "abstract"}}
	assert.Equal(t, "graph nets ", b.Text(r))

	b = TextBuilder{Fields: []string{"title", "keywords", "year"}, Prefix: "passage: "}
	assert.Equal(t, "passage: graph nets gnn 2020", b.Text(r))
	assert.Equal(t, []string{"passage: graph nets gnn 2020"}, b.Texts([]*models.Record{r}))
}

func TestBuild_RowsMatchRecords(t *testing.T) {
	ctx := context.Background()
	recs := testRecords(10)
	emb := embedding.NewMockEmbedder(8)

	var mu sync.Mutex
	var progress []int
	opts := testOptions()
	opts.Progress = func(done, total int) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, 10, total)
		progress = append(progress, done)
	}

	res, err := Build(ctx, recs, emb, opts)
	require.NoError(t, err)
	require.Equal(t, 10, res.Index.Size())
	assert.Equal(t, 8, res.Index.Dimension())
	assert.Len(t, progress, 4)

	flat, ok := res.Index.(*vector.FlatIndex)
	require.True(t, ok)
	for i, r := range recs {
		want, err := emb.Embed(ctx, opts.Text.Text(r))
		require.NoError(t, err)
		got, err := flat.Vector(i)
		require.NoError(t, err)
		assert.Equal(t, want, got, "row %d", i)
	}

	assert.Equal(t, 10, res.Manifest.RecordCount)
	assert.Equal(t, "l2", res.Manifest.Metric)
	assert.Equal(t, "flat", res.Manifest.IndexType)
	assert.Equal(t, []string{"title", "abstract"}, res.Manifest.TextFields)
}

func TestBuild_Empty(t *testing.T) {
	res, err := Build(context.Background(), nil, embedding.NewMockEmbedder(4), testOptions())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Index.Size())
	_, err = res.Index.Search(context.Background(), make([]float32, 4), 1)
	assert.ErrorIs(t, err, vector.ErrEmptyIndex)
}

func TestBuild_DuplicateIdentityIsFatal(t *testing.T) {
	recs := testRecords(3)
	recs[2].ID = recs[0].ID
	_, err := Build(context.Background(), recs, embedding.NewMockEmbedder(4), testOptions())
	assert.ErrorIs(t, err, identity.ErrDuplicateIdentity)
}

type failingEmbedder struct {
	*embedding.MockEmbedder
	failOn string
}

func (f *failingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	for _, t := range texts {
		if strings.Contains(t, f.failOn) {
			return nil, errors.New("provider unavailable")
		}
	}
	return f.MockEmbedder.EmbedBatch(ctx, texts)
}

func TestBuild_BatchFailureAborts(t *testing.T) {
	recs := testRecords(10)
	emb := &failingEmbedder{MockEmbedder: embedding.NewMockEmbedder(4), failOn: "title g"}
	_, err := Build(context.Background(), recs, emb, testOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider unavailable")
}

type shortEmbedder struct {
	*embedding.MockEmbedder
}

func (s *shortEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out, err := s.MockEmbedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	out[len(out)-1] = out[len(out)-1][:2]
	return out, nil
}

func TestBuild_DimensionMismatch(t *testing.T) {
	emb := &shortEmbedder{MockEmbedder: embedding.NewMockEmbedder(4)}
	_, err := Build(context.Background(), testRecords(5), emb, testOptions())
	assert.ErrorIs(t, err, vector.ErrDimensionMismatch)
}

func TestBuild_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Build(ctx, testRecords(5), embedding.NewMockEmbedder(4), testOptions())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPersist(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	recs := testRecords(6)
	recs[1].Coords = []float64{1.5, -2}

	res, err := Build(ctx, recs, embedding.NewMockEmbedder(8), testOptions())
	require.NoError(t, err)

	paths := Paths{
		Records:     filepath.Join(dir, "data", "records.db"),
		Index:       filepath.Join(dir, "data", "index.knjv"),
		Compression: vector.CompressionZstd,
	}
	require.NoError(t, Persist(ctx, res, paths))

	loadedRecs, manifest, err := storage.ReadRecordsFile(ctx, paths.Records)
	require.NoError(t, err)
	assert.Equal(t, recs, loadedRecs)
	require.NotNil(t, manifest)
	assert.Equal(t, 6, manifest.RecordCount)
	assert.Equal(t, "mock/8", manifest.Model)

	idx, err := vector.Load(paths.Index)
	require.NoError(t, err)
	assert.Equal(t, 6, idx.Size())

	q := make([]float32, 8)
	q[0] = 1
	want, err := res.Index.Search(ctx, q, 6)
	require.NoError(t, err)
	got, err := idx.Search(ctx, q, 6)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	entries, err := os.ReadDir(filepath.Join(dir, "data"))
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"records.db", "index.knjv"}, names)
}

func TestPersist_RequiresPaths(t *testing.T) {
	res, err := Build(context.Background(), testRecords(1), embedding.NewMockEmbedder(4), testOptions())
	require.NoError(t, err)
	assert.Error(t, Persist(context.Background(), res, Paths{Records: "x"}))
}

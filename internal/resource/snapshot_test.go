package resource

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hyperjump/kinji/internal/config"
	"github.com/hyperjump/kinji/internal/embedding"
	"github.com/hyperjump/kinji/internal/indexer"
	"github.com/hyperjump/kinji/internal/models"
	"github.com/hyperjump/kinji/internal/records"
	"github.com/hyperjump/kinji/internal/search"
	"github.com/hyperjump/kinji/internal/storage"
	"github.com/hyperjump/kinji/internal/vector"
)

func testConfig(dir string) *config.Config {
	cfg := &config.Config{
		Storage: config.StorageConfig{
			RecordsPath: filepath.Join(dir, "records.db"),
			IndexPath:   filepath.Join(dir, "index.knjv"),
		},
		Embedding: config.EmbeddingConfig{Provider: "mock", Dimensions: 16},
	}
	config.ApplyDefaults(cfg)
	cfg.Embedding.CacheSize = 0
	return cfg
}

func testRecords(n int) []*models.Record {
	titles := []string{"graph networks", "protein folding", "ocean currents", "sparse coding", "bayesian priors"}
	recs := make([]*models.Record, n)
	for i := range recs {
		recs[i] = &models.Record{
			ID:       models.RecordID(string(rune('a' + i))),
			Title:    titles[i%len(titles)],
			Abstract: "abstract number " + string(rune('a'+i)),
			Year:     2000 + i,
			Journal:  "Journal",
		}
	}
	records.AssignRows(recs)
	return recs
}

// buildArtifacts writes a records/index pair for cfg from recs.
func buildArtifacts(t *testing.T, cfg *config.Config, recs []*models.Record) {
	t.Helper()
	metric, err := vector.ParseMetric(cfg.Index.Metric)
	require.NoError(t, err)
	res, err := indexer.Build(context.Background(), recs, embedding.NewMockEmbedder(cfg.Embedding.Dimensions), indexer.Options{
		Metric: metric,
		Text:   indexer.TextBuilder{Fields: cfg.Embedding.TextFields, Prefix: cfg.Embedding.PassagePrefix},
		Model:  embedding.ModelName(cfg.Embedding),
	})
	require.NoError(t, err)
	require.NoError(t, indexer.Persist(context.Background(), res, indexer.Paths{
		Records: cfg.Storage.RecordsPath,
		Index:   cfg.Storage.IndexPath,
	}))
}

func TestLoad(t *testing.T) {
	cfg := testConfig(t.TempDir())
	buildArtifacts(t, cfg, testRecords(5))

	snap, err := Load(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer snap.Close()

	assert.Equal(t, 5, snap.Store.Len())
	assert.Equal(t, 5, snap.Index.Size())
	assert.Equal(t, cfg.Fingerprint(), snap.Fingerprint)
	require.NotNil(t, snap.Manifest)
	assert.Equal(t, 5, snap.Manifest.RecordCount)

	hits, err := snap.Engine.Query(context.Background(), search.ByIdentity{ID: "c"}, 4)
	require.NoError(t, err)
	assert.Len(t, hits, 4)
	for _, h := range hits {
		assert.NotEqual(t, models.RecordID("c"), h.ID)
	}

	matched, err := snap.Text.Match(context.Background(), "protein", nil)
	require.NoError(t, err)
	assert.Contains(t, matched, models.RecordID("b"))
}

func TestLoad_RecordCountMismatch(t *testing.T) {
	cfg := testConfig(t.TempDir())
	buildArtifacts(t, cfg, testRecords(2))
	require.NoError(t, storage.WriteRecordsFile(context.Background(), cfg.Storage.RecordsPath, testRecords(3), nil))

	_, err := Load(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, ErrRecordCountMismatch)
}

func TestLoad_MetricMismatch(t *testing.T) {
	cfg := testConfig(t.TempDir())
	buildArtifacts(t, cfg, testRecords(3))

	cfg.Index.Metric = "ip"
	_, err := Load(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, vector.ErrMetricMismatch)
}

func TestLoad_DimensionMismatch(t *testing.T) {
	cfg := testConfig(t.TempDir())
	buildArtifacts(t, cfg, testRecords(3))

	cfg.Embedding.Dimensions = 8
	_, err := Load(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, vector.ErrDimensionMismatch)
}

func TestLoad_MissingArtifacts(t *testing.T) {
	cfg := testConfig(t.TempDir())
	_, err := Load(context.Background(), cfg, nil)
	assert.Error(t, err)
}

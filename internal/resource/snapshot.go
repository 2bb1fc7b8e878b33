// Package resource loads the heavyweight serving resources (records, vector index, embedder,
// text index) once per configuration and hands out immutable snapshots.
package resource

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kinji/internal/config"
	"github.com/hyperjump/kinji/internal/embedding"
	"github.com/hyperjump/kinji/internal/indexer"
	"github.com/hyperjump/kinji/internal/keyword"
	"github.com/hyperjump/kinji/internal/records"
	"github.com/hyperjump/kinji/internal/search"
	"github.com/hyperjump/kinji/internal/storage"
	"github.com/hyperjump/kinji/internal/vector"
)

// ErrRecordCountMismatch is returned when the records artifact and the index artifact do
// not come from the same build.
var ErrRecordCountMismatch = errors.New("record count does not match index size")

// Snapshot is one loaded, immutable set of serving resources.
type Snapshot struct {
	Fingerprint string
	Store       *records.Store
	Index       vector.Index
	Embedder    embedding.Embedder
	Engine      *search.Engine
	Text        keyword.Index
	Manifest    *storage.Manifest
	LoadedAt    time.Time
}

// Close releases the index, embedder and text index.
func (s *Snapshot) Close() error {
	return errors.Join(s.Text.Close(), s.Embedder.Close(), s.Index.Close())
}

// Load reads both artifacts named by cfg, checks they belong together and builds the
// query engine over them.
func Load(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Snapshot, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	start := time.Now()

	metric, err := vector.ParseMetric(cfg.Index.Metric)
	if err != nil {
		return nil, err
	}

	recs, manifest, err := storage.ReadRecordsFile(ctx, cfg.Storage.RecordsPath)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	store, err := records.NewStore(recs)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}

	idx, err := vector.Open(cfg.Index.Type, cfg.Storage.IndexPath)
	if err != nil {
		return nil, fmt.Errorf("load index: %w", err)
	}
	if err := vector.CheckMetric(idx, metric); err != nil {
		_ = idx.Close()
		return nil, err
	}
	if store.Len() != idx.Size() {
		_ = idx.Close()
		return nil, fmt.Errorf("%w: %d records, %d vectors", ErrRecordCountMismatch, store.Len(), idx.Size())
	}

	textFields := cfg.Embedding.TextFields
	if manifest != nil {
		if len(manifest.TextFields) > 0 {
			textFields = manifest.TextFields
		}
		if model := embedding.ModelName(cfg.Embedding); manifest.Model != "" && manifest.Model != model {
			logger.Warn("Index was built with a different embedding model",
				zap.String("built_with", manifest.Model), zap.String("configured", model))
		}
	}

	emb, err := embedding.New(cfg.Embedding, logger)
	if err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	if emb.Dimensions() != idx.Dimension() {
		_ = idx.Close()
		_ = emb.Close()
		return nil, fmt.Errorf("embedder does not match index: %w",
			&vector.DimensionMismatchError{Expected: idx.Dimension(), Actual: emb.Dimensions(), Row: -1})
	}

	text, err := keyword.NewMemIndex()
	if err != nil {
		_ = idx.Close()
		_ = emb.Close()
		return nil, err
	}
	if err := text.IndexRecords(ctx, store.All()); err != nil {
		_ = text.Close()
		_ = idx.Close()
		_ = emb.Close()
		return nil, fmt.Errorf("build text index: %w", err)
	}

	engine := search.NewEngine(store, idx, emb,
		search.WithLogger(logger),
		search.WithQueryPrefix(cfg.Embedding.QueryPrefix),
		search.WithDocumentText(indexer.TextBuilder{Fields: textFields, Prefix: cfg.Embedding.PassagePrefix}),
	)

	logger.Info("Snapshot loaded",
		zap.Int("records", store.Len()),
		zap.Int("dimension", idx.Dimension()),
		zap.String("metric", metric.String()),
		zap.Duration("took", time.Since(start)),
	)
	return &Snapshot{
		Fingerprint: cfg.Fingerprint(),
		Store:       store,
		Index:       idx,
		Embedder:    emb,
		Engine:      engine,
		Text:        text,
		Manifest:    manifest,
		LoadedAt:    time.Now(),
	}, nil
}

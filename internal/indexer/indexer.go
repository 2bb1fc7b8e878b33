// Package indexer runs the offline pipeline: embed records in parallel batches, build the
// vector index in row order and persist both artifacts together.
package indexer

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/kinji/internal/embedding"
	"github.com/hyperjump/kinji/internal/models"
	"github.com/hyperjump/kinji/internal/records"
	"github.com/hyperjump/kinji/internal/storage"
	"github.com/hyperjump/kinji/internal/vector"
)

// Options configures Build.
type Options struct {
	IndexType string
	Metric    vector.Metric
	// Dimension of the vectors; 0 uses the embedder's dimension.
	Dimension int
	BatchSize int
	Workers   int
	Text      TextBuilder
	Model     string
	Logger    *zap.Logger
	// Progress, when set, is called after each batch with the number of embedded records.
	// It may be called from several goroutines at once.
	Progress func(done, total int)
}

// Result is a built, not yet persisted, pair of artifacts.
type Result struct {
	Records  []*models.Record
	Index    vector.Index
	Manifest storage.Manifest
}

// Paths are the artifact destinations.
type Paths struct {
	Records     string
	Index       string
	Compression vector.Compression
}

// Build embeds recs and builds the vector index. recs must already carry dense rows.
// Any batch failure cancels the remaining batches and aborts the build.
func Build(ctx context.Context, recs []*models.Record, embedder embedding.Embedder, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := records.NewStore(recs); err != nil {
		return nil, err
	}
	if len(opts.Text.Fields) == 0 {
		return nil, fmt.Errorf("no text fields configured")
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 64
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	dim := opts.Dimension
	if dim == 0 {
		dim = embedder.Dimensions()
	}

	start := time.Now()
	texts := opts.Text.Texts(recs)
	vectors := make([][]float32, len(texts))
	var done int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for lo := 0; lo < len(texts); lo += batchSize {
		lo := lo
		hi := lo + batchSize
		if hi > len(texts) {
			hi = len(texts)
		}
		g.Go(func() error {
			vecs, err := embedder.EmbedBatch(gctx, texts[lo:hi])
			if err != nil {
				return fmt.Errorf("embed rows %d-%d: %w", lo, hi-1, err)
			}
			if len(vecs) != hi-lo {
				return fmt.Errorf("embed rows %d-%d: got %d vectors for %d texts", lo, hi-1, len(vecs), hi-lo)
			}
			copy(vectors[lo:hi], vecs)
			n := atomic.AddInt64(&done, int64(hi-lo))
			logger.Debug("Batch embedded", zap.Int("from", lo), zap.Int("to", hi-1))
			if opts.Progress != nil {
				opts.Progress(int(n), len(texts))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	idx, err := vector.New(opts.IndexType, vectors, dim, opts.Metric)
	if err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}
	if idx.Size() != len(recs) {
		_ = idx.Close()
		return nil, fmt.Errorf("index holds %d vectors for %d records", idx.Size(), len(recs))
	}
	if len(recs) == 0 {
		logger.Warn("No records to index; built an empty index")
	}
	logger.Info("Index built",
		zap.Int("records", len(recs)),
		zap.Int("dimension", dim),
		zap.String("metric", opts.Metric.String()),
		zap.Duration("took", time.Since(start)),
	)

	indexType := opts.IndexType
	if indexType == "" {
		indexType = string(vector.IndexTypeFlat)
	}
	return &Result{
		Records: recs,
		Index:   idx,
		Manifest: storage.Manifest{
			RecordCount: len(recs),
			Model:       opts.Model,
			Dimension:   dim,
			Metric:      opts.Metric.String(),
			IndexType:   indexType,
			TextFields:  append([]string(nil), opts.Text.Fields...),
		},
	}, nil
}

// Persist writes both artifacts to temporary files and renames them into place only after
// both writes succeed. On failure the previous artifacts are left untouched.
func Persist(ctx context.Context, res *Result, paths Paths) error {
	if paths.Records == "" || paths.Index == "" {
		return fmt.Errorf("artifact paths must be set")
	}
	tmpRecords := paths.Records + ".building"
	tmpIndex := paths.Index + ".building"
	defer os.Remove(tmpRecords)
	defer os.Remove(tmpIndex)

	manifest := res.Manifest
	if err := storage.WriteRecordsFile(ctx, tmpRecords, res.Records, &manifest); err != nil {
		return fmt.Errorf("write records artifact: %w", err)
	}
	if err := res.Index.Save(tmpIndex, vector.WithCompression(paths.Compression)); err != nil {
		return fmt.Errorf("write index artifact: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Rename(tmpIndex, paths.Index); err != nil {
		return fmt.Errorf("install index artifact: %w", err)
	}
	if err := os.Rename(tmpRecords, paths.Records); err != nil {
		return fmt.Errorf("install records artifact: %w", err)
	}
	return nil
}

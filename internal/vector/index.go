// Package vector provides the row-addressed vector index and k-nearest-neighbor search.
package vector

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrEmptyIndex is returned when searching an index that holds no vectors.
	ErrEmptyIndex = errors.New("empty index")
	// ErrDimensionMismatch matches any *DimensionMismatchError.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")
	// ErrMetricMismatch is returned when a loaded index uses a different metric than configured.
	ErrMetricMismatch = errors.New("metric mismatch")
	// ErrIndexClosed is returned when an index backed by native memory is used after Close.
	ErrIndexClosed = errors.New("index is closed")
)

// DimensionMismatchError reports a vector whose length differs from the index dimension.
type DimensionMismatchError struct {
	Expected int
	Actual   int
	Row      int // -1 for query vectors
}

func (e *DimensionMismatchError) Error() string {
	if e.Row >= 0 {
		return fmt.Sprintf("dimension mismatch at row %d: expected %d, got %d", e.Row, e.Expected, e.Actual)
	}
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Is lets errors.Is(err, ErrDimensionMismatch) match.
func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch
}

// Index is a read-only vector index. Row i holds the vector of record row i.
// Implementations must be safe for concurrent Search calls.
type Index interface {
	// Search returns up to k hits ordered by ascending distance, ties by ascending row.
	Search(ctx context.Context, query []float32, k int) ([]Hit, error)
	Dimension() int
	Size() int
	Metric() Metric
	// Type names the backend, "flat" or "faiss".
	Type() string
	Save(path string, opts ...SaveOption) error
	Close() error
}

// Hit is a single search result.
type Hit struct {
	Row      int
	Distance float32
}

// CheckMetric returns ErrMetricMismatch when idx was built with a metric other than want.
func CheckMetric(idx Index, want Metric) error {
	if idx.Metric() != want {
		return fmt.Errorf("%w: index uses %s, configured %s", ErrMetricMismatch, idx.Metric(), want)
	}
	return nil
}

package vector

import (
	"context"
	"fmt"
	"sort"
)

// FlatIndex is an exact brute-force index over a contiguous row-major float32 slab.
// It is immutable after Build and safe for concurrent searches.
type FlatIndex struct {
	dimension int
	metric    Metric
	count     int
	data      []float32
}

// Build creates a FlatIndex where vectors[i] becomes row i. If dimension is 0 it is taken from
// the first vector. Every vector must have the same length; the first mismatch fails the build.
// Building from zero vectors yields an empty index whose searches fail with ErrEmptyIndex.
func Build(vectors [][]float32, dimension int, metric Metric) (*FlatIndex, error) {
	if !metric.valid() {
		return nil, fmt.Errorf("invalid metric: %s", metric)
	}
	if dimension < 0 {
		return nil, fmt.Errorf("dimension must not be negative")
	}
	if dimension == 0 && len(vectors) > 0 {
		dimension = len(vectors[0])
	}
	if len(vectors) > 0 && dimension == 0 {
		return nil, fmt.Errorf("vectors must not be empty")
	}
	data := make([]float32, 0, len(vectors)*dimension)
	for row, vec := range vectors {
		if len(vec) != dimension {
			return nil, &DimensionMismatchError{Expected: dimension, Actual: len(vec), Row: row}
		}
		data = append(data, vec...)
	}
	return &FlatIndex{
		dimension: dimension,
		metric:    metric,
		count:     len(vectors),
		data:      data,
	}, nil
}

// Type returns the index type identifier.
func (f *FlatIndex) Type() string {
	return string(IndexTypeFlat)
}

// Dimension returns the vector length.
func (f *FlatIndex) Dimension() int { return f.dimension }

// Size returns the number of vectors (rows).
func (f *FlatIndex) Size() int { return f.count }

// Metric returns the distance metric.
func (f *FlatIndex) Metric() Metric { return f.metric }

// Vector returns a copy of the vector at row.
func (f *FlatIndex) Vector(row int) ([]float32, error) {
	if row < 0 || row >= f.count {
		return nil, fmt.Errorf("row %d out of range [0, %d)", row, f.count)
	}
	out := make([]float32, f.dimension)
	copy(out, f.row(row))
	return out, nil
}

func (f *FlatIndex) row(i int) []float32 {
	return f.data[i*f.dimension : (i+1)*f.dimension]
}

// Search returns the k nearest rows to query, ascending by distance with ties broken by
// ascending row. Fewer than k hits are returned only when the index holds fewer than k rows.
func (f *FlatIndex) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}
	if f.count == 0 {
		return nil, ErrEmptyIndex
	}
	if len(query) != f.dimension {
		return nil, &DimensionMismatchError{Expected: f.dimension, Actual: len(query), Row: -1}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	hits := make([]Hit, f.count)
	for i := 0; i < f.count; i++ {
		hits[i] = Hit{Row: i, Distance: f.metric.Distance(query, f.row(i))}
	}
	sortHits(hits)
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k:k], nil
}

// Close releases the vectors.
func (f *FlatIndex) Close() error {
	return nil
}

func sortHits(hits []Hit) {
	sort.Slice(hits, func(i, j int) bool {
		di, dj := sortKey(hits[i].Distance), sortKey(hits[j].Distance)
		if di != dj {
			return di < dj
		}
		return hits[i].Row < hits[j].Row
	})
}

var _ Index = (*FlatIndex)(nil)

//go:build !faiss || !cgo
// +build !faiss !cgo

package vector

import (
	"context"
	"errors"
)

// ErrFAISSUnavailable is returned when the binary was built without FAISS support.
var ErrFAISSUnavailable = errors.New("FAISS not available: build with -tags=faiss and install FAISS library")

// FAISSIndex is a stub that returns an error when FAISS is not available.
type FAISSIndex struct{}

// NewFAISSIndex returns an error because FAISS is not available.
func NewFAISSIndex(vectors [][]float32, dimension int, metric Metric) (*FAISSIndex, error) {
	return nil, ErrFAISSUnavailable
}

// LoadFAISS returns an error because FAISS is not available.
func LoadFAISS(path string) (*FAISSIndex, error) {
	return nil, ErrFAISSUnavailable
}

func (f *FAISSIndex) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	return nil, ErrFAISSUnavailable
}

func (f *FAISSIndex) Save(path string, opts ...SaveOption) error { return ErrFAISSUnavailable }
func (f *FAISSIndex) Dimension() int                             { return 0 }
func (f *FAISSIndex) Size() int                                  { return 0 }
func (f *FAISSIndex) Metric() Metric                             { return MetricL2 }
func (f *FAISSIndex) Close() error                               { return nil }

// Type returns the index type identifier.
func (f *FAISSIndex) Type() string {
	return string(IndexTypeFAISS)
}

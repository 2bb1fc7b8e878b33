//go:build faiss && cgo
// +build faiss,cgo

package vector

/*
#cgo CFLAGS: -I/opt/homebrew/include -I/usr/local/include
#cgo LDFLAGS: -L/opt/homebrew/lib -L/usr/local/lib -lfaiss_c

#include <stdlib.h>
#include <faiss/c_api/Index_c.h>
#include <faiss/c_api/IndexFlat_c.h>
#include <faiss/c_api/index_io_c.h>
#include <faiss/c_api/error_c.h>
*/
import "C"

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"unsafe"
)

// FAISSIndex wraps a FAISS IndexFlatL2 or IndexFlatIP. FAISS labels are sequential from 0,
// so a label is the record row.
type FAISSIndex struct {
	index     *C.FaissIndex
	dimension int
	metric    Metric
	mu        sync.RWMutex
}

// NewFAISSIndex creates a FAISS flat index and adds vectors as rows 0..n-1.
func NewFAISSIndex(vectors [][]float32, dimension int, metric Metric) (*FAISSIndex, error) {
	if dimension == 0 && len(vectors) > 0 {
		dimension = len(vectors[0])
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive")
	}
	if !metric.valid() {
		return nil, fmt.Errorf("invalid metric: %s", metric)
	}

	var ptr *C.FaissIndex
	var ret C.int
	switch metric {
	case MetricInnerProduct:
		var ip *C.FaissIndexFlatIP
		ret = C.faiss_IndexFlatIP_new_with(&ip, C.idx_t(dimension))
		ptr = (*C.FaissIndex)(unsafe.Pointer(ip))
	default:
		var l2 *C.FaissIndexFlatL2
		ret = C.faiss_IndexFlatL2_new_with(&l2, C.idx_t(dimension))
		ptr = (*C.FaissIndex)(unsafe.Pointer(l2))
	}
	if ret != 0 {
		return nil, fmt.Errorf("failed to create FAISS index: %s", faissLastError())
	}
	f := &FAISSIndex{index: ptr, dimension: dimension, metric: metric}

	if len(vectors) > 0 {
		flat := make([]float32, 0, len(vectors)*dimension)
		for row, vec := range vectors {
			if len(vec) != dimension {
				f.Close()
				return nil, &DimensionMismatchError{Expected: dimension, Actual: len(vec), Row: row}
			}
			flat = append(flat, vec...)
		}
		ret = C.faiss_Index_add(f.index, C.idx_t(len(vectors)), (*C.float)(unsafe.Pointer(&flat[0])))
		if ret != 0 {
			f.Close()
			return nil, fmt.Errorf("failed to add vectors to FAISS index: %s", faissLastError())
		}
	}
	return f, nil
}

// LoadFAISS reads a FAISS index written by Save.
func LoadFAISS(path string) (*FAISSIndex, error) {
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	var idx *C.FaissIndex
	if ret := C.faiss_read_index_fname(cPath, 0, &idx); ret != 0 {
		return nil, fmt.Errorf("failed to load FAISS index: %s", faissLastError())
	}
	metric := MetricL2
	if C.faiss_Index_metric_type(idx) == C.METRIC_INNER_PRODUCT {
		metric = MetricInnerProduct
	}
	return &FAISSIndex{
		index:     idx,
		dimension: int(C.faiss_Index_d(idx)),
		metric:    metric,
	}, nil
}

func faissLastError() string {
	cErr := C.faiss_get_last_error()
	if cErr == nil {
		return "unknown error"
	}
	return C.GoString(cErr)
}

// Search returns the k nearest rows. Inner-product similarities are converted to 1 - ip so
// both metrics rank ascending; hits are re-sorted with ties broken by row.
func (f *FAISSIndex) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.index == nil {
		return nil, ErrIndexClosed
	}

	ntotal := int(C.faiss_Index_ntotal(f.index))
	if ntotal == 0 {
		return nil, ErrEmptyIndex
	}
	if len(query) != f.dimension {
		return nil, &DimensionMismatchError{Expected: f.dimension, Actual: len(query), Row: -1}
	}
	if k > ntotal {
		k = ntotal
	}

	distances := make([]float32, k)
	labels := make([]int64, k)
	ret := C.faiss_Index_search(
		f.index,
		1,
		(*C.float)(unsafe.Pointer(&query[0])),
		C.idx_t(k),
		(*C.float)(unsafe.Pointer(&distances[0])),
		(*C.idx_t)(unsafe.Pointer(&labels[0])),
	)
	if ret != 0 {
		return nil, fmt.Errorf("FAISS search failed: %s", faissLastError())
	}

	hits := make([]Hit, 0, k)
	for i := 0; i < k; i++ {
		if labels[i] < 0 {
			continue
		}
		d := distances[i]
		if f.metric == MetricInnerProduct {
			d = 1 - d
		}
		hits = append(hits, Hit{Row: int(labels[i]), Distance: d})
	}
	sortHits(hits)
	return hits, nil
}

// Save writes the native FAISS index file to path via a temp file and rename.
func (f *FAISSIndex) Save(path string, opts ...SaveOption) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.index == nil {
		return ErrIndexClosed
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmp := path + ".tmp"
	cPath := C.CString(tmp)
	defer C.free(unsafe.Pointer(cPath))

	if ret := C.faiss_write_index_fname(f.index, cPath); ret != 0 {
		return fmt.Errorf("failed to save FAISS index: %s", faissLastError())
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename index: %w", err)
	}
	return nil
}

// Dimension returns the vector length.
func (f *FAISSIndex) Dimension() int { return f.dimension }

// Metric returns the distance metric.
func (f *FAISSIndex) Metric() Metric { return f.metric }

// Size returns the number of rows.
func (f *FAISSIndex) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.index == nil {
		return 0
	}
	return int(C.faiss_Index_ntotal(f.index))
}

// Close frees the FAISS index resources.
func (f *FAISSIndex) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index != nil {
		C.faiss_Index_free(f.index)
		f.index = nil
	}
	return nil
}

// Type returns the index type identifier.
func (f *FAISSIndex) Type() string {
	return string(IndexTypeFAISS)
}

var _ Index = (*FAISSIndex)(nil)

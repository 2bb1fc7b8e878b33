package vector

import "fmt"

// IndexType represents the type of vector index to use.
type IndexType string

const (
	// IndexTypeFlat uses exact in-memory brute-force search.
	IndexTypeFlat IndexType = "flat"
	// IndexTypeFAISS uses a FAISS flat index. Requires FAISS library and build tag -tags=faiss.
	IndexTypeFAISS IndexType = "faiss"
)

// New builds an index of the given type from vectors, where vectors[i] becomes row i.
func New(indexType string, vectors [][]float32, dimension int, metric Metric) (Index, error) {
	switch IndexType(indexType) {
	case IndexTypeFlat, "", "memory":
		idx, err := Build(vectors, dimension, metric)
		if err != nil {
			return nil, err
		}
		return idx, nil
	case IndexTypeFAISS:
		idx, err := NewFAISSIndex(vectors, dimension, metric)
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: flat, faiss)", indexType)
	}
}

// Open loads a persisted index of the given type.
func Open(indexType, path string) (Index, error) {
	switch IndexType(indexType) {
	case IndexTypeFlat, "", "memory":
		idx, err := Load(path)
		if err != nil {
			return nil, err
		}
		return idx, nil
	case IndexTypeFAISS:
		idx, err := LoadFAISS(path)
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: flat, faiss)", indexType)
	}
}

// IsFAISSAvailable returns true if FAISS support is compiled in.
func IsFAISSAvailable() bool {
	idx, err := NewFAISSIndex(nil, 1, MetricL2)
	if err != nil {
		return false
	}
	_ = idx.Close()
	return true
}

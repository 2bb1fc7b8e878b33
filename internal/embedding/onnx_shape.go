package embedding

import (
	"errors"
	"fmt"
	"math"

	"github.com/hyperjump/kinji/pkg/utils"
)

var (
	// ErrEmbedderClosed is returned by an embedder used after Close.
	ErrEmbedderClosed = errors.New("embedder is closed")
	// ErrInvalidEmbedding is returned when a model produces an unusable vector.
	ErrInvalidEmbedding = errors.New("model produced an invalid embedding")
)

// onnxInputNames are the BERT-style inputs every supported model takes, in tensor order.
var onnxInputNames = []string{"input_ids", "attention_mask", "token_type_ids"}

const onnxOutputName = "output"

func validateONNXShape(modelPath string, dimensions, maxTokens int) error {
	if modelPath == "" {
		return fmt.Errorf("embedding.model_path is required for the onnx provider")
	}
	if dimensions <= 0 {
		return fmt.Errorf("invalid onnx shape: dimensions must be positive, got %d", dimensions)
	}
	// [CLS] and [SEP] take two positions.
	if maxTokens < 3 {
		return fmt.Errorf("invalid onnx shape: max_tokens must be at least 3, got %d", maxTokens)
	}
	return nil
}

// pooledVector copies the first dimensions values of a pooled output tensor and scales the
// copy to unit length. A short, non-finite or all-zero output is rejected.
func pooledVector(out []float32, dimensions int) ([]float32, error) {
	if len(out) < dimensions {
		return nil, fmt.Errorf("%w: output has %d values, want %d", ErrInvalidEmbedding, len(out), dimensions)
	}
	vec := make([]float32, dimensions)
	copy(vec, out[:dimensions])
	for i, v := range vec {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return nil, fmt.Errorf("%w: non-finite value at %d", ErrInvalidEmbedding, i)
		}
	}
	if utils.NormL2(vec) == 0 {
		return nil, fmt.Errorf("%w: zero vector", ErrInvalidEmbedding)
	}
	utils.NormalizeL2(vec)
	return vec, nil
}

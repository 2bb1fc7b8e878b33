//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// onnxTensors are the session's bound inputs and pooled output. Each inference overwrites
// the input data in place and reads the output back.
type onnxTensors struct {
	inputs []*ort.Tensor[int64]
	output *ort.Tensor[float32]
}

func newONNXTensors(maxTokens, dimensions int) (*onnxTensors, error) {
	t := &onnxTensors{}
	for _, name := range onnxInputNames {
		in, err := ort.NewTensor(ort.NewShape(1, int64(maxTokens)), make([]int64, maxTokens))
		if err != nil {
			t.destroy()
			return nil, fmt.Errorf("create %s tensor: %w", name, err)
		}
		t.inputs = append(t.inputs, in)
	}
	out, err := ort.NewTensor(ort.NewShape(1, int64(dimensions)), make([]float32, dimensions))
	if err != nil {
		t.destroy()
		return nil, fmt.Errorf("create %s tensor: %w", onnxOutputName, err)
	}
	t.output = out
	return t, nil
}

func (t *onnxTensors) bound() (inputs, outputs []ort.ArbitraryTensor) {
	for _, in := range t.inputs {
		inputs = append(inputs, in)
	}
	return inputs, []ort.ArbitraryTensor{t.output}
}

// load copies token ids, attention mask and token type ids into the input tensors.
func (t *onnxTensors) load(values ...[]int64) {
	for i, v := range values {
		copy(t.inputs[i].GetData(), v)
	}
}

func (t *onnxTensors) destroy() error {
	var errs []error
	for _, in := range t.inputs {
		errs = append(errs, in.Destroy())
	}
	t.inputs = nil
	if t.output != nil {
		errs = append(errs, t.output.Destroy())
		t.output = nil
	}
	return errors.Join(errs...)
}

// ONNXEmbedder runs a sentence-embedding model whose "output" tensor is the pooled
// (1, dimensions) sentence vector. It requires CGO and the onnxruntime shared library.
type ONNXEmbedder struct {
	mu         sync.Mutex
	session    *ort.AdvancedSession
	tensors    *onnxTensors
	tokenizer  Tokenizer
	dimensions int
	maxTokens  int
}

// NewONNXEmbedder loads the model at modelPath. The runtime environment is initialized on
// first use and shared by every embedder in the process.
func NewONNXEmbedder(modelPath string, dimensions, maxTokens int) (*ONNXEmbedder, error) {
	if err := validateONNXShape(modelPath, dimensions, maxTokens); err != nil {
		return nil, err
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize ONNX runtime: %w", err)
		}
	}

	tensors, err := newONNXTensors(maxTokens, dimensions)
	if err != nil {
		return nil, err
	}
	inputs, outputs := tensors.bound()
	session, err := ort.NewAdvancedSession(modelPath, onnxInputNames, []string{onnxOutputName}, inputs, outputs, nil)
	if err != nil {
		_ = tensors.destroy()
		return nil, fmt.Errorf("create ONNX session for %s: %w", modelPath, err)
	}
	return &ONNXEmbedder{
		session:    session,
		tensors:    tensors,
		tokenizer:  &SimpleTokenizer{},
		dimensions: dimensions,
		maxTokens:  maxTokens,
	}, nil
}

// Embed runs one inference. Calls are serialized on the shared tensors; a context cancelled
// while waiting for them aborts before the model runs.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ids, mask, types := e.tokenizer.Tokenize(text, e.maxTokens)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil, ErrEmbedderClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.tensors.load(ids, mask, types)
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("ONNX inference: %w", err)
	}
	return pooledVector(e.tensors.output.GetData(), e.dimensions)
}

// EmbedBatch embeds texts one at a time, stopping at the first error or cancellation.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, e, texts)
}

// Dimensions returns the embedding dimension.
func (e *ONNXEmbedder) Dimensions() int {
	return e.dimensions
}

// Close destroys the session and its tensors. Later Embed calls fail with ErrEmbedderClosed.
func (e *ONNXEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	err := e.session.Destroy()
	e.session = nil
	return errors.Join(err, e.tensors.destroy())
}

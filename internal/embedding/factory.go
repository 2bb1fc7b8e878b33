package embedding

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/hyperjump/kinji/internal/config"
)

// New creates the embedder configured in cfg, wrapped with an LRU cache when cache_size > 0.
func New(cfg config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var (
		e   Embedder
		err error
	)
	switch cfg.Provider {
	case "mock":
		e = NewMockEmbedder(cfg.Dimensions)
	case "onnx":
		var onnx *ONNXEmbedder
		onnx, err = NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
		if err == nil {
			e = onnx
		}
	case "openai":
		var oa *OpenAIEmbedder
		oa, err = NewOpenAIEmbedder(os.Getenv("OPENAI_API_KEY"), cfg.Model, cfg.Dimensions,
			WithBaseURL(os.Getenv("OPENAI_BASE_URL")),
			WithBatchSize(cfg.BatchSize),
			WithConcurrency(cfg.Workers),
			WithRateLimit(cfg.RequestsPerSecond),
			WithOpenAILogger(logger),
		)
		if err == nil {
			e = oa
		}
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: mock, onnx, openai)", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s embedder: %w", cfg.Provider, err)
	}
	logger.Info("Embedder ready",
		zap.String("provider", cfg.Provider),
		zap.String("model", ModelName(cfg)),
		zap.Int("dimensions", e.Dimensions()),
	)
	if cfg.CacheSize > 0 {
		return NewCachedEmbedder(e, cfg.CacheSize), nil
	}
	return e, nil
}

// ModelName identifies the model for build manifests.
func ModelName(cfg config.EmbeddingConfig) string {
	switch cfg.Provider {
	case "openai":
		if cfg.Model == "" {
			return "openai/" + DefaultOpenAIModel
		}
		return "openai/" + cfg.Model
	case "onnx":
		return "onnx/" + cfg.ModelPath
	default:
		return fmt.Sprintf("%s/%d", cfg.Provider, cfg.Dimensions)
	}
}

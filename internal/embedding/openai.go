package embedding

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hyperjump/kinji/pkg/utils"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "text-embedding-3-small"

// OpenAIEmbedder calls the OpenAI embeddings API. Batches are split into requests of at most
// batchSize inputs, sent with bounded concurrency and throttled by a token-bucket limiter.
type OpenAIEmbedder struct {
	client      *openai.Client
	model       string
	dimensions  int
	batchSize   int
	concurrency int
	limiter     *rate.Limiter
	logger      *zap.Logger
}

// OpenAIOption configures an OpenAIEmbedder.
type OpenAIOption func(*openAIOptions)

type openAIOptions struct {
	baseURL     string
	batchSize   int
	concurrency int
	rps         float64
	logger      *zap.Logger
}

// WithBaseURL points the client at a compatible endpoint.
func WithBaseURL(url string) OpenAIOption {
	return func(o *openAIOptions) { o.baseURL = url }
}

// WithBatchSize sets the maximum inputs per request.
func WithBatchSize(n int) OpenAIOption {
	return func(o *openAIOptions) { o.batchSize = n }
}

// WithConcurrency sets the maximum number of in-flight requests.
func WithConcurrency(n int) OpenAIOption {
	return func(o *openAIOptions) { o.concurrency = n }
}

// WithRateLimit limits requests per second; 0 disables throttling.
func WithRateLimit(rps float64) OpenAIOption {
	return func(o *openAIOptions) { o.rps = rps }
}

// WithOpenAILogger sets the logger.
func WithOpenAILogger(logger *zap.Logger) OpenAIOption {
	return func(o *openAIOptions) { o.logger = logger }
}

// NewOpenAIEmbedder creates an embedder for model. dimensions must match what the model returns.
func NewOpenAIEmbedder(apiKey, model string, dimensions int, opts ...OpenAIOption) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY environment variable not set")
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	o := openAIOptions{batchSize: 64, concurrency: 4}
	for _, opt := range opts {
		opt(&o)
	}
	if o.batchSize <= 0 {
		o.batchSize = 64
	}
	if o.concurrency <= 0 {
		o.concurrency = 1
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	cfg := openai.DefaultConfig(apiKey)
	if o.baseURL != "" {
		cfg.BaseURL = o.baseURL
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if o.rps > 0 {
		burst := int(o.rps)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(o.rps), burst)
	}
	return &OpenAIEmbedder{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		dimensions:  dimensions,
		batchSize:   o.batchSize,
		concurrency: o.concurrency,
		limiter:     limiter,
		logger:      o.logger,
	}, nil
}

// Embed returns the embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.request(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in request-sized chunks. The first failing chunk cancels the rest.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for start := 0; start < len(texts); start += e.batchSize {
		start := start
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		g.Go(func() error {
			vecs, err := e.request(gctx, texts[start:end])
			if err != nil {
				return err
			}
			copy(out[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *OpenAIEmbedder) request(ctx context.Context, texts []string) ([][]float32, error) {
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, fmt.Errorf("cannot embed empty text (input %d)", i)
		}
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req := openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: texts,
	}
	if strings.HasPrefix(e.model, "text-embedding-3") {
		req.Dimensions = e.dimensions
	}
	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("OpenAI returned %d embeddings for %d inputs", len(resp.Data), len(texts))
	}
	sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })

	vecs := make([][]float32, len(texts))
	for i, d := range resp.Data {
		if len(d.Embedding) != e.dimensions {
			return nil, fmt.Errorf("OpenAI embedding has %d dimensions, configured %d", len(d.Embedding), e.dimensions)
		}
		v := make([]float32, len(d.Embedding))
		for j := range d.Embedding {
			v[j] = float32(d.Embedding[j])
		}
		utils.NormalizeL2(v)
		vecs[i] = v
	}
	e.logger.Debug("OpenAI embeddings",
		zap.String("model", e.model),
		zap.Int("inputs", len(texts)),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
	)
	return vecs, nil
}

// Dimensions returns the embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op; the HTTP client holds no resources that need releasing.
func (e *OpenAIEmbedder) Close() error {
	return nil
}

// Package search answers nearest-neighbor queries by text or by record identity.
package search

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kinji/internal/embedding"
	"github.com/hyperjump/kinji/internal/indexer"
	"github.com/hyperjump/kinji/internal/models"
	"github.com/hyperjump/kinji/internal/records"
	"github.com/hyperjump/kinji/internal/vector"
)

// Engine runs queries against one immutable snapshot of records and index. It holds no
// mutable state and is safe for concurrent use.
type Engine struct {
	store       *records.Store
	index       vector.Index
	embedder    embedding.Embedder
	queryPrefix string
	documents   indexer.TextBuilder
	logger      *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets a logger for query events.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithQueryPrefix sets the prefix prepended to free-text queries before embedding.
func WithQueryPrefix(p string) Option {
	return func(e *Engine) { e.queryPrefix = p }
}

// WithDocumentText sets how a record's text is rebuilt for identity queries. It must match
// the builder used when the index was built.
func WithDocumentText(b indexer.TextBuilder) Option {
	return func(e *Engine) { e.documents = b }
}

// NewEngine creates a search engine. store.Len() must equal index.Size().
func NewEngine(store *records.Store, index vector.Index, embedder embedding.Embedder, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		index:     index,
		embedder:  embedder,
		documents: indexer.TextBuilder{Fields: []string{"title", "abstract"}},
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Query returns up to k neighbors ordered by ascending distance (ties by ascending row).
// Identity queries never include the queried record. Fewer than k neighbors are returned
// only when the index holds too few other records.
func (e *Engine) Query(ctx context.Context, in Input, k int) ([]models.Neighbor, error) {
	if k <= 0 {
		return nil, vector.ErrInvalidK
	}
	in, err := ProcessQuery(in)
	if err != nil {
		return nil, err
	}

	var (
		text    string
		exclude models.RecordID
	)
	switch v := in.(type) {
	case Text:
		text = e.queryPrefix + v.Query
	case ByIdentity:
		row, err := e.store.Resolver().RowOf(v.ID)
		if err != nil {
			return nil, err
		}
		rec, err := e.store.At(row)
		if err != nil {
			return nil, err
		}
		text = e.documents.Text(rec)
		exclude = v.ID
	}

	vec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoEmbedding, err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: provider returned an empty vector", ErrNoEmbedding)
	}

	hits, err := e.index.Search(ctx, vec, k+1)
	if err != nil {
		return nil, err
	}

	resolver := e.store.Resolver()
	out := make([]models.Neighbor, 0, k)
	for _, h := range hits {
		id, err := resolver.IdentityOf(h.Row)
		if err != nil {
			return nil, err
		}
		if id == exclude {
			continue
		}
		out = append(out, models.Neighbor{ID: id, Row: h.Row, Distance: h.Distance})
		if len(out) == k {
			break
		}
	}
	return out, nil
}

// Search runs Query and attaches the neighbor records.
func (e *Engine) Search(ctx context.Context, in Input, k int) (*models.SearchResponse, error) {
	start := time.Now()
	neighbors, err := e.Query(ctx, in, k)
	if err != nil {
		return nil, err
	}
	resp := &models.SearchResponse{
		K:       k,
		Results: make([]*models.SearchResult, 0, len(neighbors)),
	}
	switch v := in.(type) {
	case Text:
		resp.Query = v.Query
	case ByIdentity:
		resp.SourceID = v.ID
	}
	for i, n := range neighbors {
		rec, err := e.store.At(n.Row)
		if err != nil {
			return nil, err
		}
		resp.Results = append(resp.Results, &models.SearchResult{Record: rec, Distance: n.Distance, Rank: i + 1})
	}
	resp.QueryTime = time.Since(start).Milliseconds()
	e.logger.Debug("Query served",
		zap.String("query", resp.Query),
		zap.String("source_id", string(resp.SourceID)),
		zap.Int("k", k),
		zap.Int("results", len(neighbors)),
		zap.Int64("took_ms", resp.QueryTime),
	)
	return resp, nil
}

// Store returns the record store the engine queries.
func (e *Engine) Store() *records.Store { return e.store }

// Index returns the vector index the engine queries.
func (e *Engine) Index() vector.Index { return e.index }

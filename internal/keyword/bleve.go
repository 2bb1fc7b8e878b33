package keyword

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/kinji/internal/models"
)

const batchSize = 1000

// BleveIndex implements Index using Bleve.
type BleveIndex struct {
	index bleve.Index
}

func newMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so "bayes" does not match "bay".
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("title", textFieldMapping)
	docMapping.AddFieldMappingsAt("abstract", textFieldMapping)
	docMapping.AddFieldMappingsAt("journal", textFieldMapping)
	docMapping.AddFieldMappingsAt("fields", textFieldMapping)
	im.AddDocumentMapping("record", docMapping)
	im.DefaultType = "record"
	im.DefaultMapping = docMapping
	im.DefaultAnalyzer = standard.Name
	return im
}

// NewMemIndex creates an in-memory index, rebuilt for every loaded snapshot.
func NewMemIndex() (*BleveIndex, error) {
	index, err := bleve.NewMemOnly(newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

func recordDocument(r *models.Record) map[string]interface{} {
	doc := map[string]interface{}{
		"title":    r.Title,
		"abstract": r.Abstract,
		"journal":  r.Journal,
	}
	if len(r.Fields) > 0 {
		keys := make([]string, 0, len(r.Fields))
		for k := range r.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		vals := make([]string, len(keys))
		for i, k := range keys {
			vals[i] = r.Fields[k]
		}
		doc["fields"] = strings.Join(vals, " ")
	}
	return doc
}

// IndexRecords indexes recs in batches, keyed by identity.
func (b *BleveIndex) IndexRecords(ctx context.Context, recs []*models.Record) error {
	batch := b.index.NewBatch()
	for _, r := range recs {
		if err := batch.Index(string(r.ID), recordDocument(r)); err != nil {
			return fmt.Errorf("index record %s: %w", r.ID, err)
		}
		if batch.Size() >= batchSize {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := b.index.Batch(batch); err != nil {
				return fmt.Errorf("Bleve batch failed: %w", err)
			}
			batch = b.index.NewBatch()
		}
	}
	if batch.Size() > 0 {
		if err := b.index.Batch(batch); err != nil {
			return fmt.Errorf("Bleve batch failed: %w", err)
		}
	}
	return nil
}

// Match returns every record containing all terms of text.
func (b *BleveIndex) Match(ctx context.Context, text string, opts *MatchOptions) (map[models.RecordID]struct{}, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	total, err := b.index.DocCount()
	if err != nil {
		return nil, fmt.Errorf("failed to get doc count: %w", err)
	}
	out := make(map[models.RecordID]struct{})
	if total == 0 {
		return out, nil
	}

	var q blevequery.Query
	if opts != nil && opts.FuzzyEnabled {
		fuzziness := opts.Fuzziness
		if fuzziness <= 0 {
			fuzziness = 1
		}
		q = buildFuzzyQuery(text, fuzziness)
	} else {
		mq := bleve.NewMatchQuery(text)
		mq.SetOperator(blevequery.MatchQueryOperatorAnd)
		q = mq
	}
	req := bleve.NewSearchRequestOptions(q, int(total), 0, false)
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	for _, hit := range results.Hits {
		out[models.RecordID(hit.ID)] = struct{}{}
	}
	return out, nil
}

// tokenizeQuery splits query into lowercase terms.
func tokenizeQuery(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

// buildFuzzyQuery requires every term to match within the given edit distance.
func buildFuzzyQuery(text string, fuzziness int) blevequery.Query {
	terms := tokenizeQuery(text)
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		queries = append(queries, fq)
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return bleve.NewConjunctionQuery(queries...)
}

// DocCount returns the total number of records in the index.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}

var _ Index = (*BleveIndex)(nil)

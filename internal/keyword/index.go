// Package keyword provides a full-text index over records, used to filter views by text.
package keyword

import (
	"context"
	"errors"

	"github.com/hyperjump/kinji/internal/models"
)

// ErrEmptyText is returned when matching blank text.
var ErrEmptyText = errors.New("text filter is empty")

// MatchOptions optional parameters for Match. Nil means exact term matching.
type MatchOptions struct {
	// FuzzyEnabled enables fuzzy matching for typo tolerance.
	FuzzyEnabled bool
	// Fuzziness is the maximum Levenshtein edit distance for fuzzy matching (1 or 2).
	// Default is 1 when FuzzyEnabled is true.
	Fuzziness int
}

// Index matches text against record title, abstract, journal and extra fields.
type Index interface {
	IndexRecords(ctx context.Context, recs []*models.Record) error
	// Match returns the identities of all records containing every term of text, in no
	// particular order.
	Match(ctx context.Context, text string, opts *MatchOptions) (map[models.RecordID]struct{}, error)
	DocCount() (uint64, error)
	Close() error
}

package view

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/kinji/internal/keyword"
	"github.com/hyperjump/kinji/internal/models"
	"github.com/hyperjump/kinji/internal/records"
)

// Filter selects a subset of records. Zero values leave a criterion unconstrained.
type Filter struct {
	YearFrom int      `json:"year_from,omitempty"`
	YearTo   int      `json:"year_to,omitempty"`
	Journals []string `json:"journals,omitempty"`
	Text     string   `json:"text,omitempty"`
	Fuzzy    bool     `json:"fuzzy,omitempty"`
}

// IsZero reports whether f selects every record.
func (f Filter) IsZero() bool {
	return f.YearFrom == 0 && f.YearTo == 0 && len(f.Journals) == 0 && strings.TrimSpace(f.Text) == ""
}

// Validate rejects inverted year ranges.
func (f Filter) Validate() error {
	if f.YearFrom != 0 && f.YearTo != 0 && f.YearFrom > f.YearTo {
		return fmt.Errorf("year_from %d is after year_to %d", f.YearFrom, f.YearTo)
	}
	return nil
}

// Apply returns the records selected by f as a VisibleSet and as identities in row order.
// Position i of the returned slice is row i of the filtered view. A nil text index is only
// allowed when f has no text criterion.
func Apply(ctx context.Context, store *records.Store, f Filter, text keyword.Index) (VisibleSet, []models.RecordID, error) {
	if err := f.Validate(); err != nil {
		return VisibleSet{}, nil, err
	}

	var matched map[models.RecordID]struct{}
	if q := strings.TrimSpace(f.Text); q != "" {
		if text == nil {
			return VisibleSet{}, nil, fmt.Errorf("text filter requires a text index")
		}
		var opts *keyword.MatchOptions
		if f.Fuzzy {
			opts = &keyword.MatchOptions{FuzzyEnabled: true}
		}
		m, err := text.Match(ctx, q, opts)
		if err != nil {
			return VisibleSet{}, nil, fmt.Errorf("text filter: %w", err)
		}
		matched = m
	}

	journals := make(map[string]struct{}, len(f.Journals))
	for _, j := range f.Journals {
		if j = strings.ToLower(strings.TrimSpace(j)); j != "" {
			journals[j] = struct{}{}
		}
	}

	ids := store.Select(func(r *models.Record) bool {
		if f.YearFrom != 0 && r.Year < f.YearFrom {
			return false
		}
		if f.YearTo != 0 && r.Year > f.YearTo {
			return false
		}
		if len(journals) > 0 {
			if _, ok := journals[strings.ToLower(r.Journal)]; !ok {
				return false
			}
		}
		if matched != nil {
			if _, ok := matched[r.ID]; !ok {
				return false
			}
		}
		return true
	})
	if ids == nil {
		ids = []models.RecordID{}
	}
	return NewVisibleSet(ids...), ids, nil
}

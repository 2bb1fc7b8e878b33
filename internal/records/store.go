// Package records provides the in-memory, row-ordered record store.
package records

import (
	"fmt"

	"github.com/hyperjump/kinji/internal/identity"
	"github.com/hyperjump/kinji/internal/models"
)

// Store is an immutable ordered collection of records. Record i has Row == i.
// It is safe for concurrent reads.
type Store struct {
	records  []*models.Record
	resolver *identity.Resolver
}

// NewStore validates that rows are dense and in order and builds the identity resolver.
// Duplicate identities are a fatal error.
func NewStore(recs []*models.Record) (*Store, error) {
	ids := make([]models.RecordID, len(recs))
	for i, r := range recs {
		if r == nil {
			return nil, fmt.Errorf("record at position %d is nil", i)
		}
		if r.Row != i {
			return nil, fmt.Errorf("record %q has row %d, expected %d", r.ID, r.Row, i)
		}
		ids[i] = r.ID
	}
	resolver, err := identity.New(ids)
	if err != nil {
		return nil, fmt.Errorf("build identity resolver: %w", err)
	}
	return &Store{records: recs, resolver: resolver}, nil
}

// Len returns the number of records.
func (s *Store) Len() int {
	return len(s.records)
}

// At returns the record at row.
func (s *Store) At(row int) (*models.Record, error) {
	if row < 0 || row >= len(s.records) {
		return nil, fmt.Errorf("%w: %d", identity.ErrInvalidRow, row)
	}
	return s.records[row], nil
}

// Get returns the record with the given identity.
func (s *Store) Get(id models.RecordID) (*models.Record, error) {
	row, err := s.resolver.RowOf(id)
	if err != nil {
		return nil, err
	}
	return s.records[row], nil
}

// Resolver returns the identity resolver built over the store.
func (s *Store) Resolver() *identity.Resolver {
	return s.resolver
}

// All returns the records in row order. Callers must not modify the returned records.
func (s *Store) All() []*models.Record {
	out := make([]*models.Record, len(s.records))
	copy(out, s.records)
	return out
}

// IDs returns all identities in row order.
func (s *Store) IDs() []models.RecordID {
	ids := make([]models.RecordID, len(s.records))
	for i, r := range s.records {
		ids[i] = r.ID
	}
	return ids
}

// Select returns, in row order, the identities of records matching keep.
func (s *Store) Select(keep func(*models.Record) bool) []models.RecordID {
	var ids []models.RecordID
	for _, r := range s.records {
		if keep(r) {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

// AssignRows sets Row to each record's position. Used at ingestion, before NewStore.
func AssignRows(recs []*models.Record) {
	for i, r := range recs {
		r.Row = i
	}
}

// Package identity maps record identities to vector-index rows and back.
package identity

import (
	"errors"
	"fmt"

	"github.com/hyperjump/kinji/internal/models"
)

var (
	// ErrUnknownIdentity is returned when an identity is not among the loaded records.
	ErrUnknownIdentity = errors.New("unknown identity")
	// ErrInvalidRow is returned when a row is outside [0, Len()).
	ErrInvalidRow = errors.New("invalid row")
	// ErrDuplicateIdentity is returned at construction when two rows share an identity.
	// Duplicates are fatal; there is no first-wins or last-wins policy.
	ErrDuplicateIdentity = errors.New("duplicate identity")
)

// Resolver is an immutable bijection between identities and rows. It is safe for concurrent use.
type Resolver struct {
	rows map[models.RecordID]int
	ids  []models.RecordID
}

// New builds a Resolver where ids[i] is the identity at row i.
func New(ids []models.RecordID) (*Resolver, error) {
	r := &Resolver{
		rows: make(map[models.RecordID]int, len(ids)),
		ids:  make([]models.RecordID, len(ids)),
	}
	for row, id := range ids {
		if id == "" {
			return nil, fmt.Errorf("row %d: empty identity", row)
		}
		if prev, ok := r.rows[id]; ok {
			return nil, fmt.Errorf("%w: %q at rows %d and %d", ErrDuplicateIdentity, id, prev, row)
		}
		r.rows[id] = row
		r.ids[row] = id
	}
	return r, nil
}

// RowOf returns the row of id.
func (r *Resolver) RowOf(id models.RecordID) (int, error) {
	row, ok := r.rows[id]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownIdentity, id)
	}
	return row, nil
}

// IdentityOf returns the identity stored at row.
func (r *Resolver) IdentityOf(row int) (models.RecordID, error) {
	if row < 0 || row >= len(r.ids) {
		return "", fmt.Errorf("%w: %d (have %d rows)", ErrInvalidRow, row, len(r.ids))
	}
	return r.ids[row], nil
}

// Contains reports whether id is loaded.
func (r *Resolver) Contains(id models.RecordID) bool {
	_, ok := r.rows[id]
	return ok
}

// Len returns the number of rows.
func (r *Resolver) Len() int {
	return len(r.ids)
}

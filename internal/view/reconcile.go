// Package view projects the current selection onto a filtered subset of records.
package view

import "github.com/hyperjump/kinji/internal/models"

// VisibleSet is the set of identities present in the current filtered view.
type VisibleSet struct {
	ids map[models.RecordID]struct{}
}

// NewVisibleSet builds a VisibleSet from ids. Duplicates are ignored.
func NewVisibleSet(ids ...models.RecordID) VisibleSet {
	m := make(map[models.RecordID]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return VisibleSet{ids: m}
}

// Contains reports whether id is visible. The zero VisibleSet contains nothing.
func (v VisibleSet) Contains(id models.RecordID) bool {
	_, ok := v.ids[id]
	return ok
}

// Len returns the number of visible identities.
func (v VisibleSet) Len() int {
	return len(v.ids)
}

// Projection is the part of a selection that falls inside a view.
type Projection struct {
	Focus     *models.RecordID  `json:"focus"`
	Neighbors []models.RecordID `json:"neighbors"`
}

// Reconcile keeps the focus if it is visible and the visible neighbors in their original
// order. It never mutates its inputs, and reconciling a projection again against the same
// set returns an equal projection.
func Reconcile(visible VisibleSet, focus *models.RecordID, neighbors []models.RecordID) Projection {
	var p Projection
	if focus != nil && visible.Contains(*focus) {
		f := *focus
		p.Focus = &f
	}
	p.Neighbors = make([]models.RecordID, 0, len(neighbors))
	for _, n := range neighbors {
		if visible.Contains(n) {
			p.Neighbors = append(p.Neighbors, n)
		}
	}
	return p
}

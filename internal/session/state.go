// Package session holds per-user selection state and the reducer that advances it.
package session

import (
	"context"
	"fmt"

	"github.com/hyperjump/kinji/internal/models"
	"github.com/hyperjump/kinji/internal/search"
)

// Querier runs similarity queries. *search.Engine satisfies it.
type Querier interface {
	Query(ctx context.Context, in search.Input, k int) ([]models.Neighbor, error)
}

// State is the selection: either empty (Focus == nil) or focused on one record with its
// ranked neighbors.
type State struct {
	Focus     *models.RecordID  `json:"focus"`
	Neighbors []models.Neighbor `json:"neighbors"`
	// Query is the text of the last text search, kept for display.
	Query string `json:"query,omitempty"`
}

// Empty reports whether nothing is selected.
func (s State) Empty() bool {
	return s.Focus == nil
}

// NeighborIDs returns the neighbor identities in rank order.
func (s State) NeighborIDs() []models.RecordID {
	return models.NeighborIDs(s.Neighbors)
}

// Event is a selection event. The set of events is closed.
type Event interface {
	isEvent()
}

// Search is a free-text search.
type Search struct {
	Text string
}

// ClickNeighbor selects a record, usually one of the current neighbors.
type ClickNeighbor struct {
	ID models.RecordID
}

// SearchFocusAgain re-runs the similarity query for the current focus.
type SearchFocusAgain struct{}

func (Search) isEvent()           {}
func (ClickNeighbor) isEvent()    {}
func (SearchFocusAgain) isEvent() {}

// Reduce applies ev to st and returns the next state. k is the number of neighbors to
// show. When a query fails, st is returned unchanged together with the error.
func Reduce(ctx context.Context, q Querier, st State, ev Event, k int) (State, error) {
	switch e := ev.(type) {
	case Search:
		// The top hit becomes the focus, so ask for one more.
		hits, err := q.Query(ctx, search.Text{Query: e.Text}, k+1)
		if err != nil {
			return st, err
		}
		if len(hits) == 0 {
			return State{Query: e.Text}, nil
		}
		focus := hits[0].ID
		return State{Focus: &focus, Neighbors: hits[1:], Query: e.Text}, nil

	case ClickNeighbor:
		return focusOn(ctx, q, st, e.ID, "", k)

	case SearchFocusAgain:
		if st.Empty() {
			return st, nil
		}
		return focusOn(ctx, q, st, *st.Focus, st.Query, k)

	default:
		return st, fmt.Errorf("unknown selection event %T", ev)
	}
}

func focusOn(ctx context.Context, q Querier, st State, id models.RecordID, query string, k int) (State, error) {
	hits, err := q.Query(ctx, search.ByIdentity{ID: id}, k)
	if err != nil {
		return st, err
	}
	if hits == nil {
		hits = []models.Neighbor{}
	}
	return State{Focus: &id, Neighbors: hits, Query: query}, nil
}

// Revalidate drops whatever no longer exists after a reload. If the focus is gone the state
// becomes empty.
func Revalidate(st State, contains func(models.RecordID) bool) State {
	if st.Empty() {
		return st
	}
	if !contains(*st.Focus) {
		return State{Query: st.Query}
	}
	focus := *st.Focus
	kept := make([]models.Neighbor, 0, len(st.Neighbors))
	for _, n := range st.Neighbors {
		if contains(n.ID) {
			kept = append(kept, n)
		}
	}
	return State{Focus: &focus, Neighbors: kept, Query: st.Query}
}

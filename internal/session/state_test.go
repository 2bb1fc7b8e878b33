package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/kinji/internal/models"
	"github.com/hyperjump/kinji/internal/search"
)

// fakeQuerier answers text queries from byText and identity queries from byID.
type fakeQuerier struct {
	mu     sync.Mutex
	byText map[string][]models.Neighbor
	byID   map[models.RecordID][]models.Neighbor
	err    error
	calls  []search.Input
	lastK  int
}

func (f *fakeQuerier) Query(_ context.Context, in search.Input, k int) ([]models.Neighbor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, in)
	f.lastK = k
	if f.err != nil {
		return nil, f.err
	}
	var hits []models.Neighbor
	switch v := in.(type) {
	case search.Text:
		hits = f.byText[v.Query]
	case search.ByIdentity:
		hits = f.byID[v.ID]
	}
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func nb(ids ...string) []models.Neighbor {
	out := make([]models.Neighbor, len(ids))
	for i, id := range ids {
		out[i] = models.Neighbor{ID: models.RecordID(id), Row: i, Distance: float32(i)}
	}
	return out
}

func newFake() *fakeQuerier {
	return &fakeQuerier{
		byText: map[string][]models.Neighbor{
			"graphs": nb("3", "1", "5"),
		},
		byID: map[models.RecordID][]models.Neighbor{
			"1": nb("3", "5"),
			"3": nb("1", "5"),
		},
	}
}

func TestReduce_SearchFocusesTopHit(t *testing.T) {
	q := newFake()
	st, err := Reduce(context.Background(), q, State{}, Search{Text: "graphs"}, 2)
	require.NoError(t, err)

	require.NotNil(t, st.Focus)
	assert.Equal(t, models.RecordID("3"), *st.Focus)
	assert.Equal(t, []models.RecordID{"1", "5"}, st.NeighborIDs())
	assert.Equal(t, "graphs", st.Query)
	assert.Equal(t, 3, q.lastK)
}

func TestReduce_SearchZeroResultsEmpties(t *testing.T) {
	q := newFake()
	focused, err := Reduce(context.Background(), q, State{}, Search{Text: "graphs"}, 2)
	require.NoError(t, err)
	require.False(t, focused.Empty())

	st, err := Reduce(context.Background(), q, focused, Search{Text: "nothing"}, 2)
	require.NoError(t, err)
	assert.True(t, st.Empty())
	assert.Empty(t, st.Neighbors)
}

func TestReduce_ClickNeighbor(t *testing.T) {
	q := newFake()
	focused, err := Reduce(context.Background(), q, State{}, Search{Text: "graphs"}, 2)
	require.NoError(t, err)

	st, err := Reduce(context.Background(), q, focused, ClickNeighbor{ID: "1"}, 2)
	require.NoError(t, err)
	require.NotNil(t, st.Focus)
	assert.Equal(t, models.RecordID("1"), *st.Focus)
	assert.Equal(t, []models.RecordID{"3", "5"}, st.NeighborIDs())
	assert.Equal(t, search.ByIdentity{ID: "1"}, q.calls[len(q.calls)-1])
	assert.Equal(t, models.RecordID("3"), *focused.Focus, "previous state must not change")
}

func TestReduce_FailedQueryKeepsState(t *testing.T) {
	q := newFake()
	focused, err := Reduce(context.Background(), q, State{}, Search{Text: "graphs"}, 2)
	require.NoError(t, err)

	boom := errors.New("provider down")
	q.err = boom
	for _, ev := range []Event{Search{Text: "x"}, ClickNeighbor{ID: "1"}, SearchFocusAgain{}} {
		st, err := Reduce(context.Background(), q, focused, ev, 2)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, focused, st)
	}
}

func TestReduce_SearchFocusAgain(t *testing.T) {
	q := newFake()

	st, err := Reduce(context.Background(), q, State{}, SearchFocusAgain{}, 2)
	require.NoError(t, err)
	assert.True(t, st.Empty())
	assert.Empty(t, q.calls, "no-op on empty state")

	focus := models.RecordID("3")
	st, err = Reduce(context.Background(), q, State{Focus: &focus, Query: "graphs"}, SearchFocusAgain{}, 2)
	require.NoError(t, err)
	require.NotNil(t, st.Focus)
	assert.Equal(t, focus, *st.Focus)
	assert.Equal(t, []models.RecordID{"1", "5"}, st.NeighborIDs())
	assert.Equal(t, "graphs", st.Query)
}

func TestRevalidate(t *testing.T) {
	focus := models.RecordID("1")
	st := State{Focus: &focus, Neighbors: nb("2", "3", "4")}
	present := map[models.RecordID]bool{"1": true, "3": true}
	contains := func(id models.RecordID) bool { return present[id] }

	got := Revalidate(st, contains)
	require.NotNil(t, got.Focus)
	assert.Equal(t, []models.RecordID{"3"}, got.NeighborIDs())
	assert.Len(t, st.Neighbors, 3)

	delete(present, "1")
	got = Revalidate(st, contains)
	assert.True(t, got.Empty())
	assert.Empty(t, got.Neighbors)

	assert.True(t, Revalidate(State{}, contains).Empty())
}

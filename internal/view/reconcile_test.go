package view

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/kinji/internal/models"
)

func idPtr(s string) *models.RecordID {
	id := models.RecordID(s)
	return &id
}

func ids(ss ...string) []models.RecordID {
	out := make([]models.RecordID, len(ss))
	for i, s := range ss {
		out[i] = models.RecordID(s)
	}
	return out
}

func TestVisibleSet(t *testing.T) {
	v := NewVisibleSet(ids("a", "b", "a")...)
	assert.Equal(t, 2, v.Len())
	assert.True(t, v.Contains("a"))
	assert.False(t, v.Contains("c"))

	var zero VisibleSet
	assert.False(t, zero.Contains("a"))
	assert.Equal(t, 0, zero.Len())
}

func TestReconcile(t *testing.T) {
	tests := []struct {
		name          string
		visible       []models.RecordID
		focus         *models.RecordID
		neighbors     []models.RecordID
		wantFocus     *models.RecordID
		wantNeighbors []models.RecordID
	}{
		{
			name:          "all visible",
			visible:       ids("1", "2", "3", "4"),
			focus:         idPtr("1"),
			neighbors:     ids("3", "2", "4"),
			wantFocus:     idPtr("1"),
			wantNeighbors: ids("3", "2", "4"),
		},
		{
			name:          "focus filtered out",
			visible:       ids("2", "3"),
			focus:         idPtr("1"),
			neighbors:     ids("3", "2", "4"),
			wantFocus:     nil,
			wantNeighbors: ids("3", "2"),
		},
		{
			name:          "no focus",
			visible:       ids("2"),
			focus:         nil,
			neighbors:     nil,
			wantFocus:     nil,
			wantNeighbors: []models.RecordID{},
		},
		{
			name:          "nothing visible",
			visible:       nil,
			focus:         idPtr("1"),
			neighbors:     ids("2", "3"),
			wantFocus:     nil,
			wantNeighbors: []models.RecordID{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Reconcile(NewVisibleSet(tt.visible...), tt.focus, tt.neighbors)
			assert.Equal(t, tt.wantFocus, p.Focus)
			assert.Equal(t, tt.wantNeighbors, p.Neighbors)
		})
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	visible := NewVisibleSet(ids("1", "3", "5", "7")...)
	first := Reconcile(visible, idPtr("3"), ids("7", "2", "5", "4", "1"))
	second := Reconcile(visible, first.Focus, first.Neighbors)
	assert.Equal(t, first, second)
}

func TestReconcile_PreservesOrderAsSubsequence(t *testing.T) {
	neighbors := ids("9", "4", "6", "1", "8", "2")
	p := Reconcile(NewVisibleSet(ids("1", "2", "4", "8")...), nil, neighbors)
	require.Equal(t, ids("4", "1", "8", "2"), p.Neighbors)

	j := 0
	for _, n := range neighbors {
		if j < len(p.Neighbors) && p.Neighbors[j] == n {
			j++
		}
	}
	assert.Equal(t, len(p.Neighbors), j, "result is not a subsequence of the input")
}

func TestReconcile_DoesNotMutateInputs(t *testing.T) {
	focus := idPtr("1")
	neighbors := ids("2", "3", "4")
	p := Reconcile(NewVisibleSet(ids("1", "3")...), focus, neighbors)

	assert.Equal(t, ids("2", "3", "4"), neighbors)
	require.NotNil(t, p.Focus)
	*p.Focus = "changed"
	assert.Equal(t, models.RecordID("1"), *focus)
}

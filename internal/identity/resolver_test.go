package identity

import (
	"fmt"
	"testing"

	"github.com/hyperjump/kinji/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolver_Bijection(t *testing.T) {
	ids := make([]models.RecordID, 50)
	for i := range ids {
		ids[i] = models.RecordID(fmt.Sprintf("rec-%d", i*7))
	}
	r, err := New(ids)
	require.NoError(t, err)
	require.Equal(t, len(ids), r.Len())

	for _, id := range ids {
		row, err := r.RowOf(id)
		require.NoError(t, err)
		back, err := r.IdentityOf(row)
		require.NoError(t, err)
		assert.Equal(t, id, back)
	}
	for row := 0; row < r.Len(); row++ {
		id, err := r.IdentityOf(row)
		require.NoError(t, err)
		back, err := r.RowOf(id)
		require.NoError(t, err)
		assert.Equal(t, row, back)
	}
}

func TestResolver_Errors(t *testing.T) {
	r, err := New([]models.RecordID{"a", "b"})
	require.NoError(t, err)

	_, err = r.RowOf("zzz")
	assert.ErrorIs(t, err, ErrUnknownIdentity)

	_, err = r.IdentityOf(2)
	assert.ErrorIs(t, err, ErrInvalidRow)
	_, err = r.IdentityOf(-1)
	assert.ErrorIs(t, err, ErrInvalidRow)

	assert.True(t, r.Contains("a"))
	assert.False(t, r.Contains("c"))
}

func TestNew_DuplicateIsFatal(t *testing.T) {
	_, err := New([]models.RecordID{"1", "2", "1"})
	assert.ErrorIs(t, err, ErrDuplicateIdentity)
}

func TestNew_EmptyIdentity(t *testing.T) {
	_, err := New([]models.RecordID{"1", ""})
	assert.Error(t, err)
}

func TestNew_Empty(t *testing.T) {
	r, err := New(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, r.Len())
	_, err = r.IdentityOf(0)
	assert.ErrorIs(t, err, ErrInvalidRow)
}

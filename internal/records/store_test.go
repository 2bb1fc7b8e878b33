package records

import (
	"testing"

	"github.com/hyperjump/kinji/internal/identity"
	"github.com/hyperjump/kinji/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() []*models.Record {
	recs := []*models.Record{
		{ID: "10", Title: "alpha", Year: 2019},
		{ID: "20", Title: "beta", Year: 2020},
		{ID: "30", Title: "gamma", Year: 2021},
	}
	AssignRows(recs)
	return recs
}

func TestNewStore(t *testing.T) {
	s, err := NewStore(sample())
	require.NoError(t, err)
	assert.Equal(t, 3, s.Len())

	r, err := s.Get("20")
	require.NoError(t, err)
	assert.Equal(t, 1, r.Row)
	assert.Equal(t, "beta", r.Title)

	r, err = s.At(2)
	require.NoError(t, err)
	assert.Equal(t, models.RecordID("30"), r.ID)

	_, err = s.At(3)
	assert.ErrorIs(t, err, identity.ErrInvalidRow)
	_, err = s.Get("99")
	assert.ErrorIs(t, err, identity.ErrUnknownIdentity)

	assert.Equal(t, []models.RecordID{"10", "20", "30"}, s.IDs())
}

func TestNewStore_RowsMustBeDense(t *testing.T) {
	recs := sample()
	recs[1].Row = 5
	_, err := NewStore(recs)
	assert.Error(t, err)
}

func TestNewStore_DuplicateIdentity(t *testing.T) {
	recs := sample()
	recs[2].ID = "10"
	_, err := NewStore(recs)
	assert.ErrorIs(t, err, identity.ErrDuplicateIdentity)
}

func TestStore_Select(t *testing.T) {
	s, err := NewStore(sample())
	require.NoError(t, err)
	ids := s.Select(func(r *models.Record) bool { return r.Year >= 2020 })
	assert.Equal(t, []models.RecordID{"20", "30"}, ids)
}

package search

import (
	"errors"
	"strings"

	"github.com/hyperjump/kinji/internal/models"
)

var (
	// ErrEmptyQuery is returned for blank text queries.
	ErrEmptyQuery = errors.New("query is empty")
	// ErrNoEmbedding is returned when the embedding provider could not embed the query.
	ErrNoEmbedding = errors.New("no embedding available")
)

// ProcessQuery validates and normalizes an Input.
func ProcessQuery(in Input) (Input, error) {
	switch v := in.(type) {
	case Text:
		q := strings.TrimSpace(v.Query)
		if q == "" {
			return nil, ErrEmptyQuery
		}
		return Text{Query: q}, nil
	case ByIdentity:
		id, err := models.ParseRecordID(string(v.ID))
		if err != nil {
			return nil, ErrEmptyQuery
		}
		return ByIdentity{ID: id}, nil
	case nil:
		return nil, ErrEmptyQuery
	default:
		return nil, errors.New("unsupported query input")
	}
}

package indexer

import (
	"strings"

	"github.com/hyperjump/kinji/internal/models"
)

// TextBuilder produces the canonical document text of a record: the configured fields in
// order, joined with a single space, preceded by Prefix. The offline build and identity
// queries must use the same builder so a record embeds to the vector stored at its row.
type TextBuilder struct {
	Fields []string
	Prefix string
}

// Text returns the canonical text for r.
func (b TextBuilder) Text(r *models.Record) string {
	parts := make([]string, len(b.Fields))
	for i, f := range b.Fields {
		parts[i] = r.Field(f)
	}
	return b.Prefix + strings.Join(parts, " ")
}

// Texts returns the canonical text of each record, in order.
func (b TextBuilder) Texts(recs []*models.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = b.Text(r)
	}
	return out
}

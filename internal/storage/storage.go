// Package storage persists the Record Store artifact: the cleaned records in row order.
package storage

import (
	"context"
	"time"

	"github.com/hyperjump/kinji/internal/models"
)

// RecordStore defines record artifact operations.
type RecordStore interface {
	// SaveRecords replaces the stored records. Record.Row must equal its position in recs.
	SaveRecords(ctx context.Context, recs []*models.Record) error
	// LoadRecords returns all records ordered by row.
	LoadRecords(ctx context.Context) ([]*models.Record, error)
	CountRecords(ctx context.Context) (int64, error)

	SaveManifest(ctx context.Context, m *Manifest) error
	Manifest(ctx context.Context) (*Manifest, error)

	Close() error
}

// Manifest describes how the artifacts were built.
type Manifest struct {
	RecordCount int       `json:"record_count"`
	Model       string    `json:"model"`
	Dimension   int       `json:"dimension"`
	Metric      string    `json:"metric"`
	IndexType   string    `json:"index_type"`
	TextFields  []string  `json:"text_fields"`
	BuiltAt     time.Time `json:"built_at"`
}

// Package ingest reads raw record files and cleans them into row-ordered records.
package ingest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/kinji/internal/models"
)

// RawRecord is one undecoded input row. Numbers decoded from JSON are json.Number.
type RawRecord map[string]interface{}

// LoadFile reads the file at path and decodes its raw records.
// Supported formats: JSON array (.json), JSON Lines (.jsonl, .ndjson) and Excel (.xlsx).
func LoadFile(path string) ([]RawRecord, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return Decode(content, strings.ToLower(filepath.Ext(path)))
}

// Decode decodes raw records from content based on the given extension.
// ext should include the leading dot (e.g. ".json"). A .json file whose first
// non-space byte is not '[' is read as JSON Lines.
func Decode(content []byte, ext string) ([]RawRecord, error) {
	switch ext {
	case ".xlsx":
		return decodeExcel(content)
	case ".jsonl", ".ndjson":
		return decodeJSONLines(content)
	case ".json", "":
		trimmed := bytes.TrimSpace(content)
		if len(trimmed) > 0 && trimmed[0] != '[' {
			return decodeJSONLines(content)
		}
		return decodeJSONArray(content)
	default:
		return nil, fmt.Errorf("unsupported raw data format %q (supported: .json, .jsonl, .ndjson, .xlsx)", ext)
	}
}

// Ingest loads the file at path and cleans its records.
func Ingest(path string, opts CleanOptions) ([]*models.Record, Stats, error) {
	raw, err := LoadFile(path)
	if err != nil {
		return nil, Stats{}, err
	}
	return Clean(raw, opts)
}

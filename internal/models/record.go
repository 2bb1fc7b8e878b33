// Package models defines core data structures for records, identities, and query results.
package models

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// RecordID is the canonical identity of a record. Identities arriving as JSON numbers or
// strings are normalized once at ingestion by ParseRecordID; nothing downstream compares
// them as integers.
type RecordID string

// String returns the identity as a plain string.
func (id RecordID) String() string { return string(id) }

// ParseRecordID normalizes a raw identity value into a RecordID.
// Integral numbers (1, 1.0, "1") all normalize to "1"; strings are trimmed.
func ParseRecordID(v interface{}) (RecordID, error) {
	var s string
	switch x := v.(type) {
	case nil:
		return "", fmt.Errorf("record id is missing")
	case RecordID:
		s = strings.TrimSpace(string(x))
	case string:
		s = strings.TrimSpace(x)
	case json.Number:
		return parseNumericID(string(x))
	case int:
		s = strconv.Itoa(x)
	case int64:
		s = strconv.FormatInt(x, 10)
	case float64:
		s = formatFloatID(x)
	case float32:
		s = formatFloatID(float64(x))
	default:
		return "", fmt.Errorf("unsupported record id type %T", v)
	}
	if s == "" {
		return "", fmt.Errorf("record id is empty")
	}
	return RecordID(s), nil
}

// parseNumericID keeps every digit of an integral literal, whatever its size. Only true
// fractions go through float64.
func parseNumericID(s string) (RecordID, error) {
	s = strings.TrimSpace(s)
	if n, ok := new(big.Int).SetString(s, 10); ok {
		return RecordID(n.String()), nil
	}
	if !strings.ContainsAny(s, "eE") {
		if r, ok := new(big.Rat).SetString(s); ok && r.IsInt() {
			return RecordID(r.Num().String()), nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return "", fmt.Errorf("invalid numeric record id %q: %w", s, err)
	}
	return RecordID(formatFloatID(f)), nil
}

func formatFloatID(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Record is one content item. Row is assigned once at load time and never changes.
type Record struct {
	ID       RecordID          `json:"id"`
	Row      int               `json:"row"`
	Title    string            `json:"title"`
	Abstract string            `json:"abstract"`
	Year     int               `json:"year"`
	Journal  string            `json:"journal"`
	Fields   map[string]string `json:"fields,omitempty"`
	Coords   []float64         `json:"coords,omitempty"`
}

// Field returns the named text field. Well-known names map to struct fields;
// anything else is looked up in Fields. Missing fields are empty.
func (r *Record) Field(name string) string {
	switch name {
	case "id":
		return string(r.ID)
	case "title":
		return r.Title
	case "abstract":
		return r.Abstract
	case "journal":
		return r.Journal
	case "year":
		return strconv.Itoa(r.Year)
	}
	if r.Fields == nil {
		return ""
	}
	return r.Fields[name]
}

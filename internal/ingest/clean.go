package ingest

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kinji/internal/identity"
	"github.com/hyperjump/kinji/internal/models"
	"github.com/hyperjump/kinji/pkg/utils"
)

// UnknownJournal replaces a missing or empty journal.
const UnknownJournal = "Unknown Journal"

// RequiredFields must be present and non-empty for a record to be kept.
var RequiredFields = []string{"id", "title", "abstract"}

// CleanOptions configures Clean.
type CleanOptions struct {
	// NormalizeFields are lowercased and whitespace-collapsed.
	NormalizeFields []string
	Logger          *zap.Logger
}

// Stats summarizes a cleaning run.
type Stats struct {
	Total   int `json:"total"`
	Valid   int `json:"valid"`
	Invalid int `json:"invalid"`
}

// Clean validates raw records and converts them to records with rows assigned in input order.
// Invalid records are skipped and counted. Duplicate identities among the kept records are
// fatal and return identity.ErrDuplicateIdentity.
func Clean(raw []RawRecord, opts CleanOptions) ([]*models.Record, Stats, error) {
	logger := utils.OrNop(opts.Logger)
	normalize := make(map[string]bool, len(opts.NormalizeFields))
	for _, f := range opts.NormalizeFields {
		normalize[f] = true
	}

	stats := Stats{Total: len(raw)}
	out := make([]*models.Record, 0, len(raw))
	seen := make(map[models.RecordID]int, len(raw))
	for i, r := range raw {
		rec, err := cleanRecord(r, normalize)
		if err != nil {
			stats.Invalid++
			logger.Debug("Skipping invalid record", zap.Int("input", i), zap.Error(err))
			continue
		}
		if first, dup := seen[rec.ID]; dup {
			return nil, stats, fmt.Errorf("%w: %q at inputs %d and %d", identity.ErrDuplicateIdentity, rec.ID, first, i)
		}
		seen[rec.ID] = i
		rec.Row = len(out)
		out = append(out, rec)
		stats.Valid++
	}
	logger.Info("Data cleaning complete",
		zap.Int("valid", stats.Valid),
		zap.Int("invalid", stats.Invalid),
	)
	return out, stats, nil
}

func cleanRecord(r RawRecord, normalize map[string]bool) (*models.Record, error) {
	for _, f := range RequiredFields {
		if isBlank(r[f]) {
			return nil, fmt.Errorf("missing required field %q", f)
		}
	}
	id, err := models.ParseRecordID(r["id"])
	if err != nil {
		return nil, err
	}

	text := func(field string) string {
		s := stringify(r[field])
		if normalize[field] {
			return utils.NormalizeText(s)
		}
		return s
	}

	rec := &models.Record{
		ID:       id,
		Title:    text("title"),
		Abstract: text("abstract"),
		Year:     parseYear(r["year"]),
		Journal:  stringify(r["journal"]),
	}
	if strings.TrimSpace(rec.Journal) == "" {
		rec.Journal = UnknownJournal
	}
	rec.Coords = parseCoords(r)

	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch k {
		case "id", "title", "abstract", "year", "journal", "x", "y", "z":
			continue
		}
		if r[k] == nil {
			continue
		}
		if rec.Fields == nil {
			rec.Fields = make(map[string]string)
		}
		rec.Fields[k] = text(k)
	}
	return rec, nil
}

func isBlank(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	default:
		return false
	}
}

// stringify renders scalar values as text; composite values are re-encoded as JSON.
func stringify(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

// parseYear returns the year as an int, or 0 when it is missing or unparseable.
func parseYear(v interface{}) int {
	s := strings.TrimSpace(stringify(v))
	if s == "" {
		return 0
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f)
	}
	return 0
}

func parseNumber(v interface{}) (float64, bool) {
	s := strings.TrimSpace(stringify(v))
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

// parseCoords returns [x, y] or [x, y, z] when x and y are numeric.
func parseCoords(r RawRecord) []float64 {
	x, okX := parseNumber(r["x"])
	y, okY := parseNumber(r["y"])
	if !okX || !okY {
		return nil
	}
	coords := []float64{x, y}
	if z, ok := parseNumber(r["z"]); ok {
		coords = append(coords, z)
	}
	return coords
}

// Package cli provides output formatting for the kinji command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/hyperjump/kinji/internal/models"
	"github.com/hyperjump/kinji/internal/storage"
	"github.com/hyperjump/kinji/pkg/utils"
)

// SearchOutputFormat is the format for search result output.
type SearchOutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText SearchOutputFormat = "text"
	// OutputCompact prints one line per result.
	OutputCompact SearchOutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON SearchOutputFormat = "json"
)

// WriteSearchResults writes search results to w in the given format.
// Unknown formats fall back to text.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format SearchOutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, response)
	case OutputCompact:
		for _, r := range response.Results {
			fmt.Fprintf(w, "%d\t%s\t%.4f\t%s\n", r.Rank, r.Record.ID, r.Distance, Truncate(r.Record.Title, 80))
		}
		return nil
	default:
		writeSearchResultsText(w, response)
		return nil
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeSearchResultsText(w io.Writer, response *models.SearchResponse) {
	switch {
	case response.SourceID != "":
		fmt.Fprintf(w, "\nFound %d records similar to %s in %dms\n\n", len(response.Results), response.SourceID, response.QueryTime)
	default:
		fmt.Fprintf(w, "\nFound %d results in %dms\n\n", len(response.Results), response.QueryTime)
	}
	for _, result := range response.Results {
		writeOneResult(w, result)
	}
}

func writeOneResult(w io.Writer, result *models.SearchResult) {
	rec := result.Record
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "Rank: %d | Distance: %.4f\n", result.Rank, result.Distance)
	fmt.Fprintf(w, "ID: %s\n", rec.ID)
	if rec.Title != "" {
		fmt.Fprintf(w, "Title: %s\n", rec.Title)
	}
	if rec.Journal != "" || rec.Year != 0 {
		fmt.Fprintf(w, "Journal: %s (%s)\n", rec.Journal, yearString(rec.Year))
	}
	fmt.Fprintf(w, "\n%s\n", TruncateWords(rec.Abstract, 40))
	fmt.Fprintln(w)
}

func yearString(y int) string {
	if y == 0 {
		return "n.d."
	}
	return fmt.Sprintf("%d", y)
}

// PrintSearchResults prints search results to stdout in text format.
func PrintSearchResults(response *models.SearchResponse) {
	_ = WriteSearchResults(os.Stdout, response, OutputText)
}

// Status summarizes a loaded snapshot for the status command.
type Status struct {
	Records        int                    `json:"records"`
	IndexSize      int                    `json:"index_size"`
	Dimension      int                    `json:"dimension"`
	Metric         string                 `json:"metric"`
	IndexType      string                 `json:"index_type"`
	Model          string                 `json:"model,omitempty"`
	TextFields     []string               `json:"text_fields,omitempty"`
	BuiltAt        time.Time              `json:"built_at,omitempty"`
	FAISSAvailable bool                   `json:"faiss_available"`
	Artifacts      []storage.ArtifactSize `json:"artifacts"`
	DiskUsageBytes int64                  `json:"disk_usage_bytes"`
}

// WriteStatus writes s to w as text or JSON.
func WriteStatus(w io.Writer, s *Status, format SearchOutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, s)
	}
	fmt.Fprintf(w, "Records:      %d\n", s.Records)
	fmt.Fprintf(w, "Index size:   %d\n", s.IndexSize)
	fmt.Fprintf(w, "Index type:   %s\n", s.IndexType)
	if s.FAISSAvailable {
		fmt.Fprintf(w, "FAISS:        available\n")
	} else {
		fmt.Fprintf(w, "FAISS:        not compiled in\n")
	}
	fmt.Fprintf(w, "Dimension:    %d\n", s.Dimension)
	fmt.Fprintf(w, "Metric:       %s\n", s.Metric)
	if s.Model != "" {
		fmt.Fprintf(w, "Model:        %s\n", s.Model)
	}
	if len(s.TextFields) > 0 {
		fmt.Fprintf(w, "Text fields:  %s\n", strings.Join(s.TextFields, ", "))
	}
	if !s.BuiltAt.IsZero() {
		fmt.Fprintf(w, "Built at:     %s\n", s.BuiltAt.Format(time.RFC3339))
	}
	for _, a := range s.Artifacts {
		if a.Exists {
			fmt.Fprintf(w, "Artifact:     %s (%s)\n", a.Path, FormatBytes(a.Bytes))
		} else {
			fmt.Fprintf(w, "Artifact:     %s (missing)\n", a.Path)
		}
	}
	fmt.Fprintf(w, "Disk usage:   %s\n", FormatBytes(s.DiskUsageBytes))
	return nil
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// Truncate truncates s to maxLen runes and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	return utils.Truncate(s, maxLen)
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}

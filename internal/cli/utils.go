// Package cli provides output formatting for the Katachi command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/hyperjump/katachi/internal/indexer"
	"github.com/hyperjump/katachi/internal/models"
	"github.com/hyperjump/katachi/internal/search"
	"github.com/hyperjump/katachi/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// maxPathWidth bounds how much of a path is printed in text output.
const maxPathWidth = 72

// WriteSearchResults writes search results to w in the given format.
// Use OutputJSON for parseable output consumable by other apps.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, response)
	}
	fmt.Fprintf(w, "\nFound %d results in %dms", response.Total, response.QueryTime)
	if response.Text != "" {
		fmt.Fprintf(w, " (text %q, alpha %.2f)", response.Text, response.Alpha)
	}
	fmt.Fprint(w, "\n\n")
	for _, result := range response.Results {
		fmt.Fprintf(w, "%3d. %.4f  %s  [row %d]\n",
			result.Rank, result.Score, utils.TruncateLeft(result.Path, maxPathWidth), result.Index)
	}
	return nil
}

// WriteBuildReport writes a summary of an index build.
func WriteBuildReport(w io.Writer, report *indexer.BuildReport, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, report)
	}
	fmt.Fprintf(w, "Indexed %d of %d images (%d masked, %d skipped) in %s\n",
		report.Indexed, report.Found, report.Masked, len(report.Skipped), report.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  embeddings: %s (%d x %d)\n", report.EmbeddingsPath, report.Indexed, report.Dimensions)
	fmt.Fprintf(w, "  paths:      %s\n", report.PathsPath)
	for _, s := range report.Skipped {
		fmt.Fprintf(w, "  skipped %s: %s\n", utils.TruncateLeft(s.Path, maxPathWidth), utils.Truncate(s.Reason, 120))
	}
	return nil
}

// WriteWardrobe writes a user's wardrobe items.
func WriteWardrobe(w io.Writer, userID string, items []*models.WardrobeItem, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, map[string]interface{}{"user_id": userID, "items": items})
	}
	if len(items) == 0 {
		fmt.Fprintf(w, "Wardrobe of %s is empty\n", userID)
		return nil
	}
	fmt.Fprintf(w, "Wardrobe of %s (%d items):\n", userID, len(items))
	for _, item := range items {
		fmt.Fprintf(w, "  %s  %s  %s\n", item.AddedAt.Format("2006-01-02 15:04"), item.ID, item.ProductPath)
	}
	return nil
}

// WriteStatus writes the state of the embedding store.
func WriteStatus(w io.Writer, status search.Status, wardrobeItems int64, diskBytes int64, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, map[string]interface{}{
			"index":            status,
			"wardrobe_items":   wardrobeItems,
			"disk_usage_bytes": diskBytes,
		})
	}
	if !status.Loaded {
		fmt.Fprintf(w, "Index: not built (%s)\n", status.EmbeddingsPath)
	} else {
		fmt.Fprintf(w, "Index: %d images, %d dimensions\n", status.Rows, status.Dimensions)
		fmt.Fprintf(w, "  embeddings: %s\n  paths:      %s\n", status.EmbeddingsPath, status.PathsPath)
	}
	fmt.Fprintf(w, "Wardrobe items: %d\n", wardrobeItems)
	fmt.Fprintf(w, "Disk usage: %s\n", FormatBytes(diskBytes))
	return nil
}

// FormatBytes renders n bytes with a binary unit suffix.
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

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

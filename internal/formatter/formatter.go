// package formatter renders heatmaps and activities to GeoJSON, CSV, Markdown and plain text
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/desertthunder/heatx/internal/heatmap"
	"github.com/desertthunder/heatx/internal/models"
	"github.com/desertthunder/heatx/internal/shared"
	"github.com/desertthunder/heatx/internal/tracks"
	"github.com/paulmach/orb/geojson"
)

const dateLayout = "2006-01-02 15:04"

// FormatDistance renders meters as kilometers with two decimals.
func FormatDistance(meters float64) string {
	return fmt.Sprintf("%.2f km", meters/1000)
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func writeCSV(headers []string, records [][]string) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, record := range records {
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

// SegmentsToGeoJSON renders heatmap segments as a GeoJSON FeatureCollection
func SegmentsToGeoJSON(segs []heatmap.Segment, pretty bool) ([]byte, error) {
	return shared.MarshalJSON(heatmap.SegmentsGeoJSON(segs), pretty)
}

// DensityToGeoJSON renders H3 density cells as a GeoJSON FeatureCollection
func DensityToGeoJSON(cells []heatmap.Cell, pretty bool) ([]byte, error) {
	return shared.MarshalJSON(heatmap.DensityGeoJSON(cells), pretty)
}

// SegmentsToCSV converts segments to CSV with columns: start_lat, start_lng, end_lat, end_lng, count
func SegmentsToCSV(segs []heatmap.Segment) ([]byte, error) {
	records := make([][]string, len(segs))
	for i, s := range segs {
		records[i] = []string{
			formatCoord(s.Start[0]),
			formatCoord(s.Start[1]),
			formatCoord(s.End[0]),
			formatCoord(s.End[1]),
			strconv.Itoa(s.Count),
		}
	}
	return writeCSV([]string{"start_lat", "start_lng", "end_lat", "end_lng", "count"}, records)
}

// DensityToCSV converts cells to CSV with columns: h3, count, lat, lng
func DensityToCSV(cells []heatmap.Cell) ([]byte, error) {
	records := make([][]string, len(cells))
	for i, c := range cells {
		records[i] = []string{c.Index, strconv.Itoa(c.Count), formatCoord(c.Center[0]), formatCoord(c.Center[1])}
	}
	return writeCSV([]string{"h3", "count", "lat", "lng"}, records)
}

// ActivitiesToCSV converts activities to CSV with columns: Source, ID, Name, Type, Distance, Start, Track
func ActivitiesToCSV(activities []models.Activity) ([]byte, error) {
	records := make([][]string, len(activities))
	for i, a := range activities {
		records[i] = []string{
			a.Source,
			a.SourceID,
			a.Name,
			a.Type,
			strconv.FormatFloat(a.Distance, 'f', 1, 64),
			startDate(a),
			strconv.FormatBool(a.HasTrack()),
		}
	}
	return writeCSV([]string{"Source", "ID", "Name", "Type", "Distance", "Start", "Track"}, records)
}

func startDate(a models.Activity) string {
	if a.StartDate.IsZero() {
		return ""
	}
	return a.StartDate.Format(dateLayout)
}

// ActivitiesToMarkdown renders activities as a Markdown table under title
func ActivitiesToMarkdown(title string, activities []models.Activity) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# %s\n\n", title)

	var total float64
	withTrack := 0
	for _, a := range activities {
		total += a.Distance
		if a.HasTrack() {
			withTrack++
		}
	}

	fmt.Fprintf(&buf, "**Activities**: %d\n", len(activities))
	fmt.Fprintf(&buf, "**With track**: %d\n", withTrack)
	fmt.Fprintf(&buf, "**Distance**: %s\n\n", FormatDistance(total))

	if len(activities) == 0 {
		return buf.Bytes()
	}

	buf.WriteString("| # | Date | Name | Type | Distance | Track |\n")
	buf.WriteString("|---|---|---|---|---|---|\n")
	for i, a := range activities {
		track := ""
		if a.HasTrack() {
			track = "yes"
		}
		fmt.Fprintf(&buf, "| %d | %s | %s | %s | %s | %s |\n",
			i+1, startDate(a), escapeCell(a.Name), a.Type, FormatDistance(a.Distance), track)
	}

	return buf.Bytes()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// ActivitiesToText renders activities as plain text, one per line
func ActivitiesToText(activities []models.Activity) []byte {
	var buf bytes.Buffer
	for i, a := range activities {
		marker := " "
		if a.HasTrack() {
			marker = "*"
		}
		fmt.Fprintf(&buf, "%d. %s %s [%s] %s (%s) %s\n", i+1, marker, startDate(a), a.Source, a.Name, a.Type, FormatDistance(a.Distance))
	}
	return buf.Bytes()
}

// HeatmapToText summarizes a heatmap result and lists the top segments
func HeatmapToText(res *heatmap.Result, top int) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Tracks: %d\n", res.Stats.Tracks)
	fmt.Fprintf(&buf, "Points: %d\n", res.Stats.Points)
	fmt.Fprintf(&buf, "Segments: %d\n", res.Stats.Segments)
	fmt.Fprintf(&buf, "Max count: %d\n", res.Stats.MaxCount)
	if res.Skipped > 0 {
		fmt.Fprintf(&buf, "Skipped: %d\n", res.Skipped)
	}

	if top <= 0 || len(res.Segments) == 0 {
		return buf.Bytes()
	}

	buf.WriteString("\nTop segments:\n")
	for i, s := range res.Segments[:min(top, len(res.Segments))] {
		fmt.Fprintf(&buf, "%d. %dx (%s, %s) -> (%s, %s)\n", i+1, s.Count,
			formatCoord(s.Start[0]), formatCoord(s.Start[1]), formatCoord(s.End[0]), formatCoord(s.End[1]))
	}
	return buf.Bytes()
}

// ActivityFeature renders one activity and its track as a GeoJSON Feature
func ActivityFeature(activity models.Activity, track models.Track) *geojson.Feature {
	f := geojson.NewFeature(tracks.LineString(track))
	f.ID = activity.Source + ":" + activity.SourceID
	f.Properties["source"] = activity.Source
	f.Properties["source_id"] = activity.SourceID
	f.Properties["name"] = activity.Name
	f.Properties["type"] = activity.Type
	f.Properties["distance"] = activity.Distance
	if !activity.StartDate.IsZero() {
		f.Properties["start_date"] = activity.StartDate
	}
	return f
}

// WriteExportManifest writes manifest as indented JSON to path
func WriteExportManifest(manifest *models.ExportManifest, path string) error {
	data, err := shared.MarshalJSON(manifest, true)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

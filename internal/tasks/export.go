package tasks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/desertthunder/heatx/internal/formatter"
	"github.com/desertthunder/heatx/internal/models"
	"github.com/desertthunder/heatx/internal/services"
	"github.com/desertthunder/heatx/internal/shared"
	"github.com/desertthunder/heatx/internal/tracks"
	"golang.org/x/time/rate"
)

const (
	FormatGeoJSON = "geojson"
	FormatGPX     = "gpx"
	FormatJSON    = "json"

	ManifestName = "export_manifest.json"
)

// ExportOpts contains configuration for per-activity track exports.
type ExportOpts struct {
	Format     string                 // Export format: geojson, gpx, json
	OutputDir  string                 // Base output directory (default: heatx_export_{epoch})
	NumWorkers int                    // Concurrent workers (default: 4)
	RateLimit  float64                // Upstream requests per second when resolving tracks (default: 2)
	Resolver   services.TrackResolver // Optional; fetches tracks for activities that only reference one
	Session    *services.Session      // Credentials for Resolver
}

// exportedActivity is the JSON export payload.
type exportedActivity struct {
	models.Activity
	Points [][2]float64 `json:"points"`
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func exportFilename(a models.Activity, format string) string {
	id := strings.Trim(unsafeName.ReplaceAllString(a.SourceID, "_"), "_")
	if id == "" {
		id = "activity"
	}
	return fmt.Sprintf("%s_%s.%s", a.Source, id, format)
}

// ExportTracks writes one file per activity with a worker pool and finishes with a manifest.
//
// Activities without a track are resolved through opts.Resolver when one is set; otherwise they are
// recorded as failures. Individual failures never abort the export.
func (e *HeatmapEngine) ExportTracks(
	ctx context.Context,
	prog chan<- ProgressUpdate,
	activities []models.Activity,
	opts ExportOpts,
) (*models.ExportManifest, error) {
	switch opts.Format {
	case "":
		opts.Format = FormatGeoJSON
	case FormatGeoJSON, FormatGPX, FormatJSON:
	default:
		return nil, fmt.Errorf("%w: unsupported export format %q", shared.ErrInvalidArgument, opts.Format)
	}
	if opts.OutputDir == "" {
		opts.OutputDir = fmt.Sprintf("heatx_export_%d", time.Now().Unix())
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = e.workers
	}
	opts.NumWorkers = min(opts.NumWorkers, maxWorkers)
	if opts.RateLimit <= 0 {
		opts.RateLimit = e.rateLimit
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	manifest := &models.ExportManifest{
		Format:          opts.Format,
		OutputDirectory: opts.OutputDir,
		CreatedAt:       time.Now().UTC(),
		Total:           len(activities),
		Files:           make([]models.ExportFile, 0, len(activities)),
	}

	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	jobs := make(chan models.Activity)
	results := make(chan models.ExportFile, len(activities))

	var wg sync.WaitGroup
	for range opts.NumWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for a := range jobs {
				results <- e.exportActivity(ctx, limiter, a, opts)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, a := range activities {
			select {
			case <-ctx.Done():
				return
			case jobs <- a:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	completed := 0
	for res := range results {
		completed++
		manifest.Files = append(manifest.Files, res)
		if res.Succeeded() {
			manifest.Succeeded++
			sendProgress(prog, exportCompletedUpdate(completed, len(activities), res.Name, res.Points))
		} else {
			manifest.Failed++
			sendProgress(prog, exportFailedUpdate(completed, len(activities), res.Name, fmt.Errorf("%s", res.Error)))
		}
	}

	manifestPath := filepath.Join(opts.OutputDir, ManifestName)
	if err := formatter.WriteExportManifest(manifest, manifestPath); err != nil {
		return manifest, fmt.Errorf("export completed but failed to write manifest: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return manifest, fmt.Errorf("export interrupted: %w", err)
	}
	return manifest, nil
}

// exportActivity writes a single activity in the requested format.
func (e *HeatmapEngine) exportActivity(ctx context.Context, limiter *rate.Limiter, a models.Activity, opts ExportOpts) models.ExportFile {
	out := models.ExportFile{Source: a.Source, SourceID: a.SourceID, Name: a.Name}
	if out.Name == "" {
		out.Name = a.SourceID
	}

	if !a.HasTrack() && opts.Resolver != nil && a.TrackID != "" {
		if err := limiter.Wait(ctx); err != nil {
			out.Error = err.Error()
			return out
		}
		if err := opts.Resolver.ResolveTrack(ctx, opts.Session, &a); err != nil {
			out.Error = fmt.Sprintf("failed to fetch track: %v", err)
			return out
		}
	}
	if !a.HasTrack() {
		out.Error = shared.ErrNoTrackData.Error()
		return out
	}

	track, err := tracks.ParseWith(e.codec, a.Polyline)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	out.Points = len(track)

	var data []byte
	switch opts.Format {
	case FormatGPX:
		data, err = tracks.ToGPX(a.Name, track)
	case FormatJSON:
		points := make([][2]float64, len(track))
		for i, p := range track {
			points[i] = [2]float64{p.Latitude, p.Longitude}
		}
		data, err = shared.MarshalJSON(exportedActivity{Activity: a, Points: points}, true)
	default:
		data, err = shared.MarshalJSON(formatter.ActivityFeature(a, track), true)
	}
	if err != nil {
		out.Error = fmt.Sprintf("%s encoding failed: %v", opts.Format, err)
		return out
	}

	path := filepath.Join(opts.OutputDir, exportFilename(a, opts.Format))
	if err := os.WriteFile(path, data, 0644); err != nil {
		out.Error = fmt.Sprintf("write failed: %v", err)
		return out
	}
	out.Path = path
	return out
}

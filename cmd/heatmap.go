package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/desertthunder/heatx/internal/formatter"
	"github.com/desertthunder/heatx/internal/models"
	"github.com/desertthunder/heatx/internal/shared"
	"github.com/desertthunder/heatx/internal/tasks"
	"github.com/urfave/cli/v3"
)

var heatmapFormats = []string{"geojson", "csv", "json", "text"}

// Heatmap builds a heatmap from the cache plus any --gpx and --polyline input.
func (r *Runner) Heatmap(ctx context.Context, cmd *cli.Command) error {
	format := cmd.String("format")
	output := cmd.String("output")
	pretty := cmd.Bool("pretty")

	if !slices.Contains(heatmapFormats, format) {
		return fmt.Errorf("%w: unsupported format %q", shared.ErrInvalidFlag, format)
	}

	opts := tasks.BuildOpts{
		Sources:    normalizeSources(cmd.StringSlice("source")),
		SkipCache:  cmd.Bool("no-cache"),
		Polylines:  cmd.StringSlice("polyline"),
		Density:    cmd.Bool("density"),
		Resolution: cmd.Int("resolution"),
	}
	if opts.Resolution < 0 {
		opts.Resolution = r.config.Heatmap.H3Resolution
	}

	for _, path := range cmd.StringSlice("gpx") {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read GPX file: %w", err)
		}
		opts.GPXFiles = append(opts.GPXFiles, data)
	}

	var cacher tasks.ActivityCacher
	if !opts.SkipCache {
		c, err := r.openCache()
		if err != nil {
			return err
		}
		defer c.Close()
		cacher = c.adapter
	}

	engine, err := r.newEngine(cacher, nil)
	if err != nil {
		return err
	}

	progress := make(chan tasks.ProgressUpdate, 50)
	done := r.followProgress(progress, output != "")
	result, err := engine.Build(ctx, progress, opts)
	close(progress)
	<-done

	if err != nil {
		return err
	}

	data, err := encodeHeatmap(result, format, pretty, cmd.Int("top"))
	if err != nil {
		return err
	}
	if err := r.writeOutput(output, data); err != nil {
		return err
	}

	if output != "" {
		res := result.Heatmap
		r.writePlain("\n✓ Heatmap written to %s\n", output)
		r.writePlain("  Tracks: %d, segments: %d, busiest: %dx\n", res.Stats.Tracks, res.Stats.Segments, res.Stats.MaxCount)
		if len(result.Cells) > 0 {
			r.writePlain("  H3 cells: %d\n", len(result.Cells))
		}
		if res.Skipped > 0 {
			r.writePlain("  Skipped: %d tracks that could not be read\n", res.Skipped)
		}
	}
	return nil
}

// encodeHeatmap renders result in format. Density mode emits cells instead of segments.
func encodeHeatmap(result *tasks.BuildResult, format string, pretty bool, top int) ([]byte, error) {
	switch format {
	case "geojson":
		if result.Cells != nil {
			return formatter.DensityToGeoJSON(result.Cells, pretty)
		}
		return formatter.SegmentsToGeoJSON(result.Heatmap.Segments, pretty)
	case "csv":
		if result.Cells != nil {
			return formatter.DensityToCSV(result.Cells)
		}
		return formatter.SegmentsToCSV(result.Heatmap.Segments)
	case "json":
		if result.Cells != nil {
			return shared.MarshalJSON(result.Cells, pretty)
		}
		return shared.MarshalJSON(result.Heatmap, pretty)
	case "text":
		return formatter.HeatmapToText(result.Heatmap, top), nil
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", shared.ErrInvalidFlag, format)
	}
}

// followProgress renders progress when the terminal is free, and logs it when stdout carries data.
func (r *Runner) followProgress(progress <-chan tasks.ProgressUpdate, render bool) <-chan struct{} {
	if render {
		return r.renderProgress(progress)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progress {
			r.logger.Debug(update.Message, "phase", update.Phase.String())
		}
	}()
	return done
}

// Export writes one track file per cached activity and a manifest next to them.
func (r *Runner) Export(ctx context.Context, cmd *cli.Command) error {
	source := normalizeSource(cmd.String("source"))

	c, err := r.openCache()
	if err != nil {
		return err
	}
	defer c.Close()

	criteria := map[string]any{}
	if source != "" {
		criteria["source"] = source
	}
	persisted, err := c.activities.List(criteria)
	if err != nil {
		return fmt.Errorf("failed to list cached activities: %w", err)
	}
	if len(persisted) == 0 {
		return fmt.Errorf("%w: the cache is empty, run heatx sync first", shared.ErrNoTrackData)
	}

	activities := make([]models.Activity, len(persisted))
	for i, p := range persisted {
		activities[i] = p.Activity()
	}

	opts := tasks.ExportOpts{
		Format:     cmd.String("format"),
		OutputDir:  cmd.String("output"),
		NumWorkers: cmd.Int("workers"),
	}
	if cmd.Bool("resolve") {
		src, err := r.source(models.SourceRideWithGPS)
		if err != nil {
			return err
		}
		sess, err := r.session(ctx, cmd, src)
		if err != nil {
			return err
		}
		opts.Resolver = r.rwgps
		opts.Session = sess
	}

	engine, err := r.newEngine(nil, nil)
	if err != nil {
		return err
	}

	r.writePlain("Exporting %d activities...\n\n", len(activities))

	progress := make(chan tasks.ProgressUpdate, 50)
	done := r.renderProgress(progress)
	manifest, err := engine.ExportTracks(ctx, progress, activities, opts)
	close(progress)
	<-done

	if err != nil {
		return err
	}

	r.writePlain("\n")
	r.writePlainHeader("Export Complete!")
	r.writePlain("Format: %s\n", manifest.Format)
	r.writePlain("Directory: %s\n", manifest.OutputDirectory)
	r.writePlain("Exported: %d/%d\n", manifest.Succeeded, manifest.Total)
	r.writePlain("Manifest: %s\n", filepath.Join(manifest.OutputDirectory, tasks.ManifestName))

	if manifest.Failed > 0 {
		r.writePlain("\nFailed to export %d activities:\n", manifest.Failed)
		for _, f := range manifest.Files {
			if f.Error != "" {
				r.writePlain("  - %s #%s: %s\n", f.Source, f.SourceID, f.Error)
			}
		}
	}
	return nil
}

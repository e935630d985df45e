package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/heatx/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Sync returns the action that fetches every activity from source into the cache.
func (r *Runner) Sync(source string) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		src, err := r.source(source)
		if err != nil {
			return err
		}
		sess, err := r.session(ctx, cmd, src)
		if err != nil {
			return err
		}

		c, err := r.openCache()
		if err != nil {
			return err
		}
		defer c.Close()

		engine, err := r.newEngine(c.adapter, c.jobs)
		if err != nil {
			return err
		}

		r.logger.Info("starting sync", "source", src.Name())
		r.writePlain("Syncing %s activities into %s...\n\n", src.Name(), r.config.Database.Path)

		progress := make(chan tasks.ProgressUpdate, 50)
		done := r.renderProgress(progress)
		result, err := engine.Sync(ctx, progress, src, sess)
		close(progress)
		<-done

		if err != nil {
			return err
		}

		r.writePlain("\n")
		r.writePlainHeader("Sync Complete!")
		r.writePlain("Activities: %d\n", len(result.Activities))
		r.writePlain("With track: %d\n", result.WithTrack)
		if result.Resolved > 0 {
			r.writePlain("Tracks fetched: %d\n", result.Resolved)
		}
		r.writePlain("Newly cached: %d\n", result.Cached)
		if result.CacheErrs > 0 {
			r.writePlain("Cache errors: %d\n", result.CacheErrs)
		}

		if len(result.Failures) > 0 {
			r.writePlain("\nCould not fetch %d tracks:\n", len(result.Failures))
			for _, f := range result.Failures {
				r.writePlain("  - %s (track %s): %v\n", f.SourceID, f.TrackID, f.Error)
			}
		}

		if result.JobID != "" {
			r.logger.Debug("sync recorded", "job", result.JobID)
		}
		return r.writePlain("\nRun %s to build a heatmap from the cache.\n", fmt.Sprintf("%q", "heatx heatmap"))
	}
}

package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/heatx/internal/formatter"
	"github.com/desertthunder/heatx/internal/models"
	"github.com/desertthunder/heatx/internal/polyline"
	"github.com/desertthunder/heatx/internal/tracks"
	"github.com/urfave/cli/v3"
)

// StravaActivities lists the athlete's activities, one page or all of them.
func (r *Runner) StravaActivities(ctx context.Context, cmd *cli.Command) error {
	page := cmd.Int("page")
	perPage := cmd.Int("per-page")
	useJSON := cmd.Bool("json")
	pretty := cmd.Bool("pretty")

	src, err := r.source(models.SourceStrava)
	if err != nil {
		return err
	}
	sess, err := r.session(ctx, cmd, src)
	if err != nil {
		return err
	}

	var activities []models.Activity
	if page <= 0 {
		r.logger.Info("fetching every strava activity")
		activities, err = r.strava.Activities(ctx, sess, func(n int) {
			r.logger.Debug("fetched activities", "count", n)
		})
		if err != nil {
			return err
		}
	} else {
		r.logger.Info("fetching strava activities", "page", page, "per_page", perPage)
		items, err := r.strava.ActivitiesPage(ctx, sess, page, perPage)
		if err != nil {
			return err
		}
		if useJSON {
			return r.writeJSON(items, pretty)
		}
		activities = make([]models.Activity, len(items))
		for i, item := range items {
			activities[i] = item.Activity()
		}
	}

	if useJSON {
		return r.writeJSON(activities, pretty)
	}

	r.writePlain("Found %d activities (* has track):\n\n", len(activities))
	_, err = r.output.Write(formatter.ActivitiesToText(activities))
	return err
}

// StravaActivity shows one activity with a summary of its track.
func (r *Runner) StravaActivity(ctx context.Context, cmd *cli.Command) error {
	id := cmd.String("id")

	src, err := r.source(models.SourceStrava)
	if err != nil {
		return err
	}
	sess, err := r.session(ctx, cmd, src)
	if err != nil {
		return err
	}

	r.logger.Info("fetching strava activity", "id", id)
	activity, err := r.strava.Activity(ctx, sess, id)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(activity, cmd.Bool("pretty"))
	}
	return r.writeActivity(activity.Activity())
}

// codec returns the polyline codec for the configured precision.
func (r *Runner) codec() (*polyline.Codec, error) {
	return polyline.NewCodec(r.config.Heatmap.Precision)
}

// writeActivity prints a and, when it carries a track, a summary of it.
func (r *Runner) writeActivity(a models.Activity) error {
	name := a.Name
	if name == "" {
		name = a.SourceID
	}
	r.writePlainHeader(name)
	r.writePlain("Source:   %s #%s\n", a.Source, a.SourceID)
	if a.Type != "" {
		r.writePlain("Type:     %s\n", a.Type)
	}
	r.writePlain("Distance: %s\n", formatter.FormatDistance(a.Distance))
	if !a.StartDate.IsZero() {
		r.writePlain("Started:  %s\n", a.StartDate.Format("2006-01-02 15:04"))
	}

	if !a.HasTrack() {
		if a.TrackID != "" {
			return r.writePlain("Track:    %s (not included in this response)\n", a.TrackID)
		}
		return r.writePlain("Track:    none\n")
	}

	c, err := r.codec()
	if err != nil {
		return err
	}
	track, err := tracks.ParseWith(c, a.Polyline)
	if err != nil {
		return fmt.Errorf("failed to decode track: %w", err)
	}
	summary, err := tracks.Summarize(c, track)
	if err != nil {
		return err
	}

	r.writePlain("Points:   %d\n", summary.Points)
	r.writePlain("Length:   %s\n", formatter.FormatDistance(summary.Length))
	r.writePlain("Bounds:   %.5f,%.5f → %.5f,%.5f\n",
		summary.Bounds.Min.Lat(), summary.Bounds.Min.Lon(), summary.Bounds.Max.Lat(), summary.Bounds.Max.Lon())
	return r.writePlain("Encoded:  %d bytes\n", summary.EncodedSize)
}

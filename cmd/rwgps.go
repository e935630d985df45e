package main

import (
	"context"

	"github.com/desertthunder/heatx/internal/formatter"
	"github.com/desertthunder/heatx/internal/models"
	"github.com/urfave/cli/v3"
)

// RWGPSTrips lists the current user's trips, one page or all of them.
func (r *Runner) RWGPSTrips(ctx context.Context, cmd *cli.Command) error {
	offset := cmd.Int("offset")
	limit := cmd.Int("limit")
	useJSON := cmd.Bool("json")
	pretty := cmd.Bool("pretty")

	src, err := r.source(models.SourceRideWithGPS)
	if err != nil {
		return err
	}
	sess, err := r.session(ctx, cmd, src)
	if err != nil {
		return err
	}

	var activities []models.Activity
	if limit <= 0 {
		r.logger.Info("fetching every ridewithgps trip")
		if activities, err = r.rwgps.Activities(ctx, sess, nil); err != nil {
			return err
		}
	} else {
		r.logger.Info("fetching ridewithgps trips", "offset", offset, "limit", limit)
		page, err := r.rwgps.TripsPage(ctx, sess, offset, limit)
		if err != nil {
			return err
		}
		if useJSON {
			return r.writeJSON(page, pretty)
		}
		activities = make([]models.Activity, len(page.Results))
		for i, trip := range page.Results {
			activities[i] = trip.Activity()
		}
		r.writePlain("Showing %d of %d trips:\n\n", len(activities), page.ResultsCount)
		_, err = r.output.Write(formatter.ActivitiesToText(activities))
		return err
	}

	if useJSON {
		return r.writeJSON(activities, pretty)
	}
	r.writePlain("Found %d trips (* has track):\n\n", len(activities))
	_, err = r.output.Write(formatter.ActivitiesToText(activities))
	return err
}

// RWGPSTrip shows one trip with a summary of its track.
func (r *Runner) RWGPSTrip(ctx context.Context, cmd *cli.Command) error {
	id := cmd.String("id")

	src, err := r.source(models.SourceRideWithGPS)
	if err != nil {
		return err
	}
	sess, err := r.session(ctx, cmd, src)
	if err != nil {
		return err
	}

	r.logger.Info("fetching ridewithgps trip", "id", id)
	trip, err := r.rwgps.Trip(ctx, sess, id)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(trip, cmd.Bool("pretty"))
	}

	activity := trip.Activity()
	if err := r.rwgps.ResolveTrack(ctx, sess, &activity); err != nil {
		r.logger.Warn("track unavailable", "track_id", activity.TrackID, "error", err)
	}
	return r.writeActivity(activity)
}

// RWGPSUser shows the authenticated user.
func (r *Runner) RWGPSUser(ctx context.Context, cmd *cli.Command) error {
	src, err := r.source(models.SourceRideWithGPS)
	if err != nil {
		return err
	}
	sess, err := r.session(ctx, cmd, src)
	if err != nil {
		return err
	}

	user, err := r.rwgps.User(ctx, sess)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(user, cmd.Bool("pretty"))
	}

	athlete := user.Athlete()
	r.writePlainHeader(athlete.Name)
	r.writePlain("ID:    %s\n", athlete.SourceID)
	if athlete.Email != "" {
		r.writePlain("Email: %s\n", athlete.Email)
	}
	return nil
}

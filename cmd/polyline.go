package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/desertthunder/heatx/internal/models"
	"github.com/desertthunder/heatx/internal/polyline"
	"github.com/desertthunder/heatx/internal/shared"
	"github.com/urfave/cli/v3"
)

// PolylineEncode encodes points given as lat,lng arguments or as one JSON array.
func (r *Runner) PolylineEncode(ctx context.Context, cmd *cli.Command) error {
	c, err := polyline.NewCodec(cmd.Int("precision"))
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidFlag, err)
	}

	track, err := parsePoints(cmd.Args().Slice())
	if err != nil {
		return err
	}

	encoded, err := c.Encode(track)
	if err != nil {
		return err
	}
	r.logger.Debug("encoded polyline", "points", len(track), "precision", c.Precision(), "bytes", len(encoded))
	return r.writePlain("%s\n", encoded)
}

// PolylineDecode decodes a polyline and prints its points.
func (r *Runner) PolylineDecode(ctx context.Context, cmd *cli.Command) error {
	c, err := polyline.NewCodec(cmd.Int("precision"))
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidFlag, err)
	}

	encoded := cmd.Args().First()
	if encoded == "" {
		return fmt.Errorf("%w: polyline", shared.ErrMissingArgument)
	}

	track, err := c.Decode(encoded)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		pairs := make([][2]float64, len(track))
		for i, p := range track {
			pairs[i] = [2]float64{p.Latitude, p.Longitude}
		}
		return r.writeJSON(pairs, cmd.Bool("pretty"))
	}

	for _, p := range track {
		r.writePlain("%s,%s\n",
			strconv.FormatFloat(p.Latitude, 'f', -1, 64), strconv.FormatFloat(p.Longitude, 'f', -1, 64))
	}
	return nil
}

// parsePoints reads "lat,lng" arguments, or a single JSON array of [lat, lng] pairs.
func parsePoints(args []string) (models.Track, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: points", shared.ErrMissingArgument)
	}
	if len(args) == 1 && strings.HasPrefix(strings.TrimSpace(args[0]), "[") {
		track, err := models.ParseCoordinates([]byte(args[0]))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
		}
		return track, nil
	}

	track := make(models.Track, 0, len(args))
	for _, arg := range args {
		lat, lng, ok := strings.Cut(arg, ",")
		if !ok {
			return nil, fmt.Errorf("%w: expected lat,lng, got %q", shared.ErrInvalidInput, arg)
		}
		latV, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: latitude %q", shared.ErrInvalidInput, lat)
		}
		lngV, err := strconv.ParseFloat(strings.TrimSpace(lng), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: longitude %q", shared.ErrInvalidInput, lng)
		}
		track = append(track, models.NewGeoPoint(latV, lngV))
	}
	return track, nil
}

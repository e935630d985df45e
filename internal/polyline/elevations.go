package polyline

import (
	"errors"
	"fmt"
	"math"

	"github.com/desertthunder/heatx/internal/models"
)

var ErrElevationMismatch = errors.New("elevation count does not match point count")

// Elevations returns the elevation column of track, with NaN where a point has none.
func Elevations(track models.Track) []float64 {
	out := make([]float64, len(track))
	for i, p := range track {
		if p.HasElevation {
			out[i] = p.Elevation
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// WithElevations returns a copy of track with elevations attached point by point.
// NaN entries leave the point without elevation.
func WithElevations(track models.Track, elevations []float64) (models.Track, error) {
	if len(track) != len(elevations) {
		return nil, fmt.Errorf("%w: %d points, %d elevations", ErrElevationMismatch, len(track), len(elevations))
	}

	out := make(models.Track, len(track))
	for i, p := range track {
		p.Elevation, p.HasElevation = 0, false
		if !math.IsNaN(elevations[i]) {
			p = p.WithElevation(elevations[i])
		}
		out[i] = p
	}
	return out, nil
}

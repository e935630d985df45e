package tracks

import (
	"github.com/desertthunder/heatx/internal/models"
	"github.com/desertthunder/heatx/internal/polyline"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// LineString converts track to an orb line string (longitude first).
func LineString(track models.Track) orb.LineString {
	ls := make(orb.LineString, len(track))
	for i, p := range track {
		ls[i] = orb.Point{p.Longitude, p.Latitude}
	}
	return ls
}

// Length returns the geodesic length of track in meters.
func Length(track models.Track) float64 {
	if len(track) < 2 {
		return 0
	}
	return geo.Length(LineString(track))
}

// Bounds returns the bounding box of track. It is the zero bound for an empty track.
func Bounds(track models.Track) orb.Bound {
	if len(track) == 0 {
		return orb.Bound{}
	}
	return LineString(track).Bound()
}

// Summary describes one track.
type Summary struct {
	Points      int       `json:"points"`
	Length      float64   `json:"length_m"`
	Bounds      orb.Bound `json:"-"`
	EncodedSize int       `json:"encoded_bytes"`
	Elevation   bool      `json:"has_elevation"`
}

// Summarize computes a [Summary] for track. EncodedSize is measured with c.
func Summarize(c *polyline.Codec, track models.Track) (Summary, error) {
	encoded, err := c.Encode(track)
	if err != nil {
		return Summary{}, err
	}

	s := Summary{
		Points:      len(track),
		Length:      Length(track),
		Bounds:      Bounds(track),
		EncodedSize: len(encoded),
	}
	for _, p := range track {
		if p.HasElevation {
			s.Elevation = true
			break
		}
	}
	return s, nil
}

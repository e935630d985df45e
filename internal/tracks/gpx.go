package tracks

import (
	"fmt"
	"os"

	"github.com/desertthunder/heatx/internal/models"
	"github.com/tkrajina/gpxgo/gpx"
)

// FromGPX returns one track per track segment and route in a GPX document, elevation preserved.
// Empty segments are dropped.
func FromGPX(data []byte) ([]models.Track, error) {
	doc, err := gpx.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse gpx: %w", err)
	}

	var out []models.Track
	for _, trk := range doc.Tracks {
		for _, seg := range trk.Segments {
			if t := fromGPXPoints(seg.Points); len(t) > 0 {
				out = append(out, t)
			}
		}
	}
	for _, rte := range doc.Routes {
		if t := fromGPXPoints(rte.Points); len(t) > 0 {
			out = append(out, t)
		}
	}
	return out, nil
}

// FromGPXFile reads and parses the GPX file at path.
func FromGPXFile(path string) ([]models.Track, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return FromGPX(data)
}

func fromGPXPoints(points []gpx.GPXPoint) models.Track {
	track := make(models.Track, 0, len(points))
	for _, p := range points {
		gp := models.NewGeoPoint(p.Latitude, p.Longitude)
		if !gp.Valid() {
			continue
		}
		if p.Elevation.NotNull() {
			gp = gp.WithElevation(p.Elevation.Value())
		}
		track = append(track, gp)
	}
	return track
}

// ToGPX writes track as a GPX 1.1 document with a single named track and segment.
func ToGPX(name string, track models.Track) ([]byte, error) {
	seg := gpx.GPXTrackSegment{Points: make([]gpx.GPXPoint, 0, len(track))}
	for _, p := range track {
		pt := gpx.GPXPoint{Point: gpx.Point{Latitude: p.Latitude, Longitude: p.Longitude}}
		if p.HasElevation {
			pt.Elevation = *gpx.NewNullableFloat64(p.Elevation)
		}
		seg.Points = append(seg.Points, pt)
	}

	doc := gpx.GPX{
		Creator: "heatx",
		Name:    name,
		Tracks:  []gpx.GPXTrack{{Name: name, Segments: []gpx.GPXTrackSegment{seg}}},
	}

	data, err := doc.ToXml(gpx.ToXmlParams{Version: "1.1", Indent: true})
	if err != nil {
		return nil, fmt.Errorf("failed to encode gpx: %w", err)
	}
	return data, nil
}

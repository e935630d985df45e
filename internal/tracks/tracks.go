// Package tracks converts between the track representations heatx meets: encoded polylines,
// JSON coordinate arrays, GPX files and orb geometries.
package tracks

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/desertthunder/heatx/internal/models"
	"github.com/desertthunder/heatx/internal/polyline"
)

// Format identifies how a raw track payload is encoded.
type Format int

const (
	FormatEmpty Format = iota
	FormatPolyline
	FormatCoordinates
)

func (f Format) String() string {
	switch f {
	case FormatPolyline:
		return "polyline"
	case FormatCoordinates:
		return "coordinates"
	default:
		return "empty"
	}
}

// Detect reports the format of raw.
//
// '[' and ']' are legal polyline characters, so a payload only counts as a coordinate array when it is
// well-formed JSON starting with '['.
func Detect(raw string) Format {
	trimmed := bytes.TrimSpace([]byte(raw))
	switch {
	case len(trimmed) == 0:
		return FormatEmpty
	case trimmed[0] == '[' && json.Valid(trimmed):
		return FormatCoordinates
	default:
		return FormatPolyline
	}
}

// Parse decodes raw at the default precision.
func Parse(raw string) (models.Track, error) {
	return ParseWith(polyline.Default(), raw)
}

// ParseWith decodes raw, using c for polylines.
func ParseWith(c *polyline.Codec, raw string) (models.Track, error) {
	switch Detect(raw) {
	case FormatEmpty:
		return models.Track{}, nil
	case FormatCoordinates:
		return models.ParseCoordinates([]byte(raw))
	default:
		track, err := c.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decode polyline: %w", err)
		}
		return track, nil
	}
}


// Package polyline implements the Google Encoded Polyline Algorithm Format.
//
// A track is turned into a compact ASCII string by scaling every coordinate to a fixed-point
// integer, taking the delta from the previous point, and writing each delta as a run of 5-bit
// groups. Strava (summary_polyline) and RideWithGPS (track_encoded) both use precision 5,
// which is the package default.
//
// Only latitude and longitude are encoded. Elevation travels out of band: see [Elevations]
// and [WithElevations].
//
// A [Codec] holds nothing but its precision and is safe for concurrent use.
package polyline

import (
	"errors"
	"fmt"
	"iter"
	"math"

	"github.com/desertthunder/heatx/internal/models"
	gopolyline "github.com/twpayne/go-polyline"
)

const (
	// DefaultPrecision is the number of decimal digits kept by [Encode] and [Decode].
	DefaultPrecision = 5
	// MaxPrecision keeps 180 * 10^p well inside the float64 exact-integer range.
	MaxPrecision = 10

	chunkBits    = 5
	chunkMask    = 0x1f
	continuation = 0x20
	charOffset   = 63
	maxChar      = 126

	// an int64 delta never needs more than 13 groups of 5 bits
	maxChunks    = 13
	lastChunkMax = 0xf
)

var (
	ErrInvalidCoordinate = errors.New("invalid coordinate")
	ErrMalformedPolyline = errors.New("malformed polyline")
	ErrInvalidPrecision  = errors.New("invalid precision")
)

// InvalidCoordinateError reports the first point that cannot be encoded.
type InvalidCoordinateError struct {
	Index     int
	Latitude  float64
	Longitude float64
}

func (e *InvalidCoordinateError) Error() string {
	return fmt.Sprintf("%v at index %d: (%v, %v)", ErrInvalidCoordinate, e.Index, e.Latitude, e.Longitude)
}

func (e *InvalidCoordinateError) Unwrap() error { return ErrInvalidCoordinate }

// MalformedPolylineError reports the byte offset at which decoding failed.
type MalformedPolylineError struct {
	Offset int
	Reason string
}

func (e *MalformedPolylineError) Error() string {
	return fmt.Sprintf("%v at offset %d: %s", ErrMalformedPolyline, e.Offset, e.Reason)
}

func (e *MalformedPolylineError) Unwrap() error { return ErrMalformedPolyline }

// Codec encodes and decodes polylines at a fixed precision.
type Codec struct {
	precision int
	factor    float64
}

var defaultCodec = &Codec{precision: DefaultPrecision, factor: 1e5}

// NewCodec returns a codec for the given number of decimal digits, 0 through [MaxPrecision].
func NewCodec(precision int) (*Codec, error) {
	if precision < 0 || precision > MaxPrecision {
		return nil, fmt.Errorf("%w: %d not in [0, %d]", ErrInvalidPrecision, precision, MaxPrecision)
	}
	return &Codec{precision: precision, factor: math.Pow10(precision)}, nil
}

// Default returns the precision 5 codec.
func Default() *Codec {
	return defaultCodec
}

// Precision returns the number of decimal digits this codec keeps.
func (c *Codec) Precision() int {
	return c.precision
}

// Encode encodes points at [DefaultPrecision].
func Encode(points models.Track) (string, error) {
	return defaultCodec.Encode(points)
}

// Decode decodes s at [DefaultPrecision].
func Decode(s string) (models.Track, error) {
	return defaultCodec.Decode(s)
}

// Encode returns the polyline for points. An empty track encodes to "".
//
// Every point is validated before any output is produced; the first invalid point is reported
// as an [*InvalidCoordinateError].
func (c *Codec) Encode(points models.Track) (string, error) {
	for i, p := range points {
		if !p.Valid() {
			return "", &InvalidCoordinateError{Index: i, Latitude: p.Latitude, Longitude: p.Longitude}
		}
	}

	// most deltas fit in 3 or 4 characters
	buf := make([]byte, 0, len(points)*8)

	var prevLat, prevLng int64
	for _, p := range points {
		lat := c.scale(p.Latitude)
		lng := c.scale(p.Longitude)
		buf = gopolyline.EncodeInt(buf, int(lat-prevLat))
		buf = gopolyline.EncodeInt(buf, int(lng-prevLng))
		prevLat, prevLng = lat, lng
	}
	return string(buf), nil
}

// Decode returns every point in s, or an error and no points.
func (c *Codec) Decode(s string) (models.Track, error) {
	track := make(models.Track, 0, len(s)/4)
	for p, err := range c.Points(s) {
		if err != nil {
			return nil, err
		}
		track = append(track, p)
	}
	return track, nil
}

// Points returns a lazy sequence over the points of s.
//
// Each iteration decodes from the start of s, so ranging over the sequence twice yields the same
// points. On malformed input the sequence yields a zero point with a [*MalformedPolylineError]
// and stops.
func (c *Codec) Points(s string) iter.Seq2[models.GeoPoint, error] {
	return func(yield func(models.GeoPoint, error) bool) {
		var lat, lng int64
		offset := 0
		for offset < len(s) {
			dLat, next, err := readValue(s, offset)
			if err != nil {
				yield(models.GeoPoint{}, err)
				return
			}
			if next >= len(s) {
				yield(models.GeoPoint{}, &MalformedPolylineError{Offset: next, Reason: "latitude without longitude"})
				return
			}
			dLng, next, err := readValue(s, next)
			if err != nil {
				yield(models.GeoPoint{}, err)
				return
			}
			offset = next

			lat += dLat
			lng += dLng
			if !yield(models.NewGeoPoint(c.unscale(lat), c.unscale(lng)), nil) {
				return
			}
		}
	}
}

// Count returns the number of points in s without materializing them.
func (c *Codec) Count(s string) (int, error) {
	n := 0
	for _, err := range c.Points(s) {
		if err != nil {
			return 0, err
		}
		n++
	}
	return n, nil
}

func (c *Codec) scale(v float64) int64 {
	return int64(math.Round(v * c.factor))
}

func (c *Codec) unscale(v int64) float64 {
	return float64(v) / c.factor
}

// readValue reads one signed delta starting at offset and returns it with the offset just past it.
func readValue(s string, offset int) (int64, int, error) {
	var u uint64
	shift := uint(0)
	for i := offset; i < len(s); i++ {
		ch := s[i]
		if ch < charOffset || ch > maxChar {
			return 0, i, &MalformedPolylineError{Offset: i, Reason: fmt.Sprintf("byte 0x%02x outside [0x3f, 0x7e]", ch)}
		}
		chunk := uint64(ch - charOffset)
		// the last group only has room for the top 4 bits
		if n := (i - offset) + 1; n > maxChunks || (n == maxChunks && chunk > lastChunkMax) {
			return 0, i, &MalformedPolylineError{Offset: i, Reason: "value overflows 64 bits"}
		}

		u |= (chunk & chunkMask) << shift
		shift += chunkBits

		if chunk&continuation == 0 {
			v := int64(u >> 1)
			if u&1 != 0 {
				v = ^v
			}
			return v, i + 1, nil
		}
	}
	return 0, len(s), &MalformedPolylineError{Offset: len(s), Reason: "input ends inside a value"}
}

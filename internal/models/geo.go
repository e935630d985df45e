package models

import (
	"encoding/json"
	"fmt"
	"math"
)

const (
	MinLatitude  = -90.0
	MaxLatitude  = 90.0
	MinLongitude = -180.0
	MaxLongitude = 180.0
)

// GeoPoint is a single recorded position.
//
// Elevation is optional: HasElevation reports whether Elevation carries a value.
// GeoPoint is a value type and is comparable with ==.
type GeoPoint struct {
	Latitude     float64 `json:"lat"`
	Longitude    float64 `json:"lng"`
	Elevation    float64 `json:"ele,omitempty"`
	HasElevation bool    `json:"-"`
}

// NewGeoPoint returns a point without elevation.
func NewGeoPoint(lat, lng float64) GeoPoint {
	return GeoPoint{Latitude: lat, Longitude: lng}
}

// WithElevation returns a copy of p carrying the given elevation.
func (p GeoPoint) WithElevation(ele float64) GeoPoint {
	p.Elevation = ele
	p.HasElevation = true
	return p
}

// Valid reports whether both coordinates are finite and inside their ranges.
func (p GeoPoint) Valid() bool {
	return ValidLatitude(p.Latitude) && ValidLongitude(p.Longitude)
}

// ValidLatitude reports whether lat is finite and within [-90, 90].
func ValidLatitude(lat float64) bool {
	return !math.IsNaN(lat) && lat >= MinLatitude && lat <= MaxLatitude
}

// ValidLongitude reports whether lng is finite and within [-180, 180].
func ValidLongitude(lng float64) bool {
	return !math.IsNaN(lng) && lng >= MinLongitude && lng <= MaxLongitude
}

// Track is an ordered sequence of points in recording order. It may be empty.
type Track []GeoPoint

// Equal reports whether two tracks hold the same points in the same order.
func (t Track) Equal(other Track) bool {
	if len(t) != len(other) {
		return false
	}
	for i := range t {
		if t[i] != other[i] {
			return false
		}
	}
	return true
}

// MarshalCoordinates renders the track as a JSON array of [lat, lng] pairs.
//
// This is the plain transport RideWithGPS trips fall back to when no encoded polyline is available.
func (t Track) MarshalCoordinates() ([]byte, error) {
	pairs := make([][2]float64, len(t))
	for i, p := range t {
		pairs[i] = [2]float64{p.Latitude, p.Longitude}
	}
	return json.Marshal(pairs)
}

// ParseCoordinates reads a JSON array of [lat, lng] or [lat, lng, ele] entries into a Track.
func ParseCoordinates(data []byte) (Track, error) {
	var pairs [][]float64
	if err := json.Unmarshal(data, &pairs); err != nil {
		return nil, fmt.Errorf("failed to parse coordinate array: %w", err)
	}

	track := make(Track, 0, len(pairs))
	for i, pair := range pairs {
		if len(pair) < 2 || len(pair) > 3 {
			return nil, fmt.Errorf("coordinate %d: expected [lat, lng] or [lat, lng, ele], got %d values", i, len(pair))
		}
		p := NewGeoPoint(pair[0], pair[1])
		if !p.Valid() {
			return nil, fmt.Errorf("coordinate %d: (%v, %v) out of range", i, pair[0], pair[1])
		}
		if len(pair) == 3 {
			p = p.WithElevation(pair[2])
		}
		track = append(track, p)
	}
	return track, nil
}

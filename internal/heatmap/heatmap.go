// Package heatmap counts how often each stretch of road appears across many tracks.
//
// Coordinates are rounded to five decimal places (about a meter) and every pair of consecutive points
// becomes an undirected edge. Edges with the same rounded endpoints are merged, so a street ridden ten
// times in either direction ends up as one segment with a count of ten.
package heatmap

import (
	"cmp"
	"math"
	"slices"
	"sync"

	"github.com/desertthunder/heatx/internal/models"
)

// Scale is the rounding factor applied to coordinates before they are compared.
const Scale = 1e5

// Segment is an undirected edge between two rounded points, [lat, lng] each.
// Start is always the numerically smaller endpoint, comparing latitude then longitude.
// Consecutive points that round onto the same vertex give a segment whose Start equals End.
type Segment struct {
	Start [2]float64 `json:"start"`
	End   [2]float64 `json:"end"`
	Count int        `json:"count"`
}

// Stats summarizes a [Builder].
type Stats struct {
	Tracks   int `json:"tracks"`
	Points   int `json:"points"`
	Segments int `json:"segments"`
	MaxCount int `json:"max_count"`
	Total    int `json:"total"`
}

type vertex struct{ lat, lng int64 }

func (v vertex) coords() [2]float64 {
	return [2]float64{float64(v.lat) / Scale, float64(v.lng) / Scale}
}

func compareVertex(a, b vertex) int {
	if c := cmp.Compare(a.lat, b.lat); c != 0 {
		return c
	}
	return cmp.Compare(a.lng, b.lng)
}

type edge struct{ a, b vertex }

func newEdge(a, b vertex) edge {
	if compareVertex(b, a) < 0 {
		a, b = b, a
	}
	return edge{a, b}
}

func round(x float64) int64 {
	return int64(math.Round(x * Scale))
}

// Builder accumulates segment counts. It is safe for concurrent use.
type Builder struct {
	mu     sync.Mutex
	counts map[edge]int
	tracks int
	points int
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{counts: make(map[edge]int)}
}

// Add counts the edge between every pair of consecutive points of track.
func (b *Builder) Add(track models.Track) {
	local := make(map[edge]int, len(track))
	var prev vertex
	for i, p := range track {
		v := vertex{round(p.Latitude), round(p.Longitude)}
		if i > 0 {
			local[newEdge(prev, v)]++
		}
		prev = v
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.tracks++
	b.points += len(track)
	for e, n := range local {
		b.counts[e] += n
	}
}

// Merge adds all counts from other into b.
func (b *Builder) Merge(other *Builder) {
	if other == nil || other == b {
		return
	}
	other.mu.Lock()
	counts := make(map[edge]int, len(other.counts))
	for e, n := range other.counts {
		counts[e] = n
	}
	tracks, points := other.tracks, other.points
	other.mu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.tracks += tracks
	b.points += points
	for e, n := range counts {
		b.counts[e] += n
	}
}

// Segments returns the merged segments sorted by count (highest first), then by endpoints.
func (b *Builder) Segments() []Segment {
	b.mu.Lock()
	segs := make([]Segment, 0, len(b.counts))
	for e, n := range b.counts {
		segs = append(segs, Segment{Start: e.a.coords(), End: e.b.coords(), Count: n})
	}
	b.mu.Unlock()

	slices.SortFunc(segs, compareSegments)
	return segs
}

func compareSegments(x, y Segment) int {
	if c := cmp.Compare(y.Count, x.Count); c != 0 {
		return c
	}
	for i := range 2 {
		if c := cmp.Compare(x.Start[i], y.Start[i]); c != 0 {
			return c
		}
	}
	for i := range 2 {
		if c := cmp.Compare(x.End[i], y.End[i]); c != 0 {
			return c
		}
	}
	return 0
}

// Stats reports totals for everything added so far.
func (b *Builder) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Stats{Tracks: b.tracks, Points: b.points, Segments: len(b.counts)}
	for _, n := range b.counts {
		s.Total += n
		s.MaxCount = max(s.MaxCount, n)
	}
	return s
}

// Len returns the number of distinct segments.
func (b *Builder) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.counts)
}

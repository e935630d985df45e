package heatmap

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/desertthunder/heatx/internal/models"
	"github.com/uber/h3-go/v4"
)

const (
	MinResolution = 0
	MaxResolution = 15
)

var ErrInvalidResolution = errors.New("invalid h3 resolution")

// Cell is an H3 cell with the number of track points that fell inside it.
type Cell struct {
	Index    string       `json:"index"`
	Count    int          `json:"count"`
	Center   [2]float64   `json:"center"`   // [lat, lng]
	Boundary [][2]float64 `json:"boundary"` // [lat, lng], not closed
}

// Density bins every valid point of every track into H3 cells at resolution.
// Cells are sorted by count (highest first), then by index.
func Density(tracks []models.Track, resolution int) ([]Cell, error) {
	if resolution < MinResolution || resolution > MaxResolution {
		return nil, fmt.Errorf("%w: %d (want %d-%d)", ErrInvalidResolution, resolution, MinResolution, MaxResolution)
	}

	counts := make(map[h3.Cell]int)
	for _, t := range tracks {
		for _, p := range t {
			if !p.Valid() {
				continue
			}
			counts[h3.LatLngToCell(h3.NewLatLng(p.Latitude, p.Longitude), resolution)]++
		}
	}

	cells := make([]Cell, 0, len(counts))
	for c, n := range counts {
		center := c.LatLng()
		boundary := c.Boundary()
		ring := make([][2]float64, len(boundary))
		for i, ll := range boundary {
			ring[i] = [2]float64{ll.Lat, ll.Lng}
		}
		cells = append(cells, Cell{
			Index:    c.String(),
			Count:    n,
			Center:   [2]float64{center.Lat, center.Lng},
			Boundary: ring,
		})
	}

	slices.SortFunc(cells, func(a, b Cell) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Index, b.Index)
	})
	return cells, nil
}

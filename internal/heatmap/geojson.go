package heatmap

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// SegmentsGeoJSON renders segments as LineString features carrying a "count" property.
func SegmentsGeoJSON(segs []Segment) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, s := range segs {
		f := geojson.NewFeature(orb.LineString{
			{s.Start[1], s.Start[0]},
			{s.End[1], s.End[0]},
		})
		f.Properties["count"] = s.Count
		fc.Append(f)
	}
	return fc
}

// DensityGeoJSON renders cells as closed Polygon features carrying "h3" and "count" properties.
func DensityGeoJSON(cells []Cell) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, c := range cells {
		if len(c.Boundary) == 0 {
			continue
		}
		ring := make(orb.Ring, 0, len(c.Boundary)+1)
		for _, ll := range c.Boundary {
			ring = append(ring, orb.Point{ll[1], ll[0]})
		}
		ring = append(ring, ring[0])

		f := geojson.NewFeature(orb.Polygon{ring})
		f.Properties["h3"] = c.Index
		f.Properties["count"] = c.Count
		fc.Append(f)
	}
	return fc
}

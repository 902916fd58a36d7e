package route

import (
	"bytes"
	"encoding/json"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	kml "github.com/twpayne/go-kml/v3"
)

const (
	defaultRegionLat   = 53.558297
	defaultRegionLng   = -1.635262
	defaultRegionDelta = 9
	followRegionDelta  = 0.05
)

// Project maps every point to its coordinate pair. Order and length are
// preserved; nothing is filtered or simplified.
func Project(r Route) []Coordinate {
	coords := make([]Coordinate, len(r))
	for i, p := range r {
		coords[i] = Coordinate{Latitude: p.Latitude, Longitude: p.Longitude}
	}
	return coords
}

// LineString returns the route as an orb geometry (lon, lat order).
func LineString(r Route) orb.LineString {
	ls := make(orb.LineString, len(r))
	for i, p := range r {
		ls[i] = orb.Point{p.Longitude, p.Latitude}
	}
	return ls
}

// GeoJSON encodes the polyline as a FeatureCollection. A non-empty route
// also gets a "last" point feature for the current position marker.
func GeoJSON(r Route) ([]byte, error) {
	fc := geojson.NewFeatureCollection()

	line := geojson.NewFeature(LineString(r))
	line.Properties["kind"] = "route"
	line.Properties["points"] = len(r)
	fc.Append(line)

	if last, ok := r.Last(); ok {
		marker := geojson.NewFeature(orb.Point{last.Longitude, last.Latitude})
		marker.Properties["kind"] = "last"
		marker.Properties["time"] = last.Time
		fc.Append(marker)
	}
	return json.Marshal(fc)
}

// KML renders the polyline as a single placemark document.
func KML(r Route, name string) ([]byte, error) {
	coords := make([]kml.Coordinate, len(r))
	for i, p := range r {
		coords[i] = kml.Coordinate{Lon: p.Longitude, Lat: p.Latitude}
	}

	doc := kml.KML(
		kml.Document(
			kml.Name(name),
			kml.Placemark(
				kml.Name(name),
				kml.LineString(
					kml.Coordinates(coords...),
				),
			),
		),
	)

	var buf bytes.Buffer
	if err := doc.WriteIndent(&buf, "", "  "); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RegionFor centres on the last point, or falls back to a wide default
// view while nothing has been recorded.
func RegionFor(r Route) Region {
	last, ok := r.Last()
	if !ok {
		return Region{
			Latitude:       defaultRegionLat,
			Longitude:      defaultRegionLng,
			LatitudeDelta:  defaultRegionDelta,
			LongitudeDelta: defaultRegionDelta,
		}
	}
	return Region{
		Latitude:       last.Latitude,
		Longitude:      last.Longitude,
		LatitudeDelta:  followRegionDelta,
		LongitudeDelta: followRegionDelta,
	}
}

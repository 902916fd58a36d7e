package route

import (
	"time"

	"github.com/tkrajina/gpxgo/gpx"
)

// GPX renders the route as a single-segment GPX 1.1 track with per-point
// timestamps.
func GPX(r Route, name string) ([]byte, error) {
	segment := gpx.GPXTrackSegment{Points: make([]gpx.GPXPoint, len(r))}
	for i, p := range r {
		segment.Points[i] = gpx.GPXPoint{
			Point: gpx.Point{
				Latitude:  p.Latitude,
				Longitude: p.Longitude,
			},
			Timestamp: time.UnixMilli(p.Time).UTC(),
		}
	}

	doc := gpx.GPX{
		Creator: "routerecorder",
		Tracks: []gpx.GPXTrack{{
			Name:     name,
			Segments: []gpx.GPXTrackSegment{segment},
		}},
	}
	return doc.ToXml(gpx.ToXmlParams{Version: "1.1", Indent: true})
}

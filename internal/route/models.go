package route

// LocationPoint is one persisted fix. Time is epoch milliseconds.
type LocationPoint struct {
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
	Time      int64   `json:"time" validate:"gt=0"`
}

// Route is a chronologically ordered point sequence.
type Route []LocationPoint

// Coordinate is a single polyline vertex.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Region is the viewport a map should show for a route.
type Region struct {
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	LatitudeDelta  float64 `json:"latitude_delta"`
	LongitudeDelta float64 `json:"longitude_delta"`
}

// Clone returns a copy that shares no backing array with r.
func (r Route) Clone() Route {
	out := make(Route, len(r))
	copy(out, r)
	return out
}

// Last returns the most recent point.
func (r Route) Last() (LocationPoint, bool) {
	if len(r) == 0 {
		return LocationPoint{}, false
	}
	return r[len(r)-1], true
}

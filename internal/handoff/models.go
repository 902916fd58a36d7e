package handoff

import "time"

type Draft struct {
	ID         string    `json:"id"`
	PointCount int       `json:"point_count"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
	Route      []byte    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

type recordedEvent struct {
	Event      string  `json:"event"`
	PointCount int     `json:"point_count"`
	StartedAt  int64   `json:"started_at"`
	StoppedAt  int64   `json:"stopped_at"`
	First      *latLng `json:"first,omitempty"`
	Last       *latLng `json:"last,omitempty"`
}

type latLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

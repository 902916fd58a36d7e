package tracking

import (
	"context"
	"time"

	"backend-routerecorder/internal/route"
)

type State string

const (
	StateIdle     State = "idle"
	StateTracking State = "tracking"
)

type Accuracy string

const (
	AccuracyLowest   Accuracy = "lowest"
	AccuracyBalanced Accuracy = "balanced"
	AccuracyHigh     Accuracy = "high"
	AccuracyHighest  Accuracy = "highest"
)

type ActivityType string

const (
	ActivityOther   ActivityType = "other"
	ActivityFitness ActivityType = "fitness"
)

type ForegroundIndicator struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Color string `json:"color"`
}

// SamplingConfig is handed to the host scheduler on registration.
type SamplingConfig struct {
	Accuracy                       Accuracy            `json:"accuracy"`
	MinIntervalMs                  int64               `json:"min_interval_ms"`
	MinDistanceMeters              float64             `json:"min_distance_meters"`
	ForegroundIndicator            ForegroundIndicator `json:"foreground_indicator"`
	ActivityType                   ActivityType        `json:"activity_type"`
	ShowIndicatorWhileBackgrounded bool                `json:"show_indicator_while_backgrounded"`
}

func (c SamplingConfig) MinInterval() time.Duration {
	return time.Duration(c.MinIntervalMs) * time.Millisecond
}

// Coords mirrors what positioning subsystems report. Only latitude and
// longitude are persisted.
type Coords struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude,omitempty"`
	Accuracy  float64 `json:"accuracy,omitempty"`
	Speed     float64 `json:"speed,omitempty"`
	Heading   float64 `json:"heading,omitempty"`
}

// RawFix is a single reading. Timestamp is epoch milliseconds.
type RawFix struct {
	Coords    Coords `json:"coords"`
	Timestamp int64  `json:"timestamp"`
}

func (f RawFix) Point() route.LocationPoint {
	return route.LocationPoint{
		Latitude:  f.Coords.Latitude,
		Longitude: f.Coords.Longitude,
		Time:      f.Timestamp,
	}
}

// TaskEvent is one invocation payload: either a batch of fixes or an
// error reported by the host instead of data.
type TaskEvent struct {
	Locations []RawFix `json:"locations"`
	Error     string   `json:"error,omitempty"`
}

func (e TaskEvent) Failed() bool {
	return e.Error != ""
}

// Handler is invoked by the host for every delivered event.
type Handler func(ctx context.Context, event TaskEvent)

// Scheduler is the host capability that invokes a registered task.
type Scheduler interface {
	Register(ctx context.Context, name string, cfg SamplingConfig, handler Handler) error
	Unregister(ctx context.Context, name string) error
}

// Deliverer is implemented by hosts that accept batches pushed to them.
type Deliverer interface {
	Deliver(ctx context.Context, name string, event TaskEvent) error
}

type Status struct {
	State     State          `json:"state"`
	StartedAt time.Time      `json:"started_at,omitempty"`
	Sampling  SamplingConfig `json:"sampling"`
}

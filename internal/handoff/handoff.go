package handoff

import (
	"context"
	"time"

	"backend-routerecorder/internal/route"
)

// Handoff is what the recorder passes downstream once a session stops.
// Route is a private copy; SetRoute lets the receiver replace the route
// shown by the UI.
type Handoff struct {
	Route     route.Route
	SetRoute  func(route.Route)
	StartedAt time.Time
	StoppedAt time.Time
}

type Consumer interface {
	Receive(ctx context.Context, h Handoff) error
}

type ConsumerFunc func(ctx context.Context, h Handoff) error

func (f ConsumerFunc) Receive(ctx context.Context, h Handoff) error {
	return f(ctx, h)
}

package viewsync

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"backend-routerecorder/internal/route"

	"github.com/rs/zerolog"
)

const DefaultInterval = 5 * time.Second

type Reader interface {
	Read(ctx context.Context) (route.Route, error)
}

// Sink receives every snapshot that differs from the previous one.
type Sink interface {
	Publish(r route.Route)
}

type SinkFunc func(r route.Route)

func (f SinkFunc) Publish(r route.Route) { f(r) }

type broadcaster interface {
	Broadcast(topic string, payload []byte)
}

// BroadcastSink pushes snapshots to stream subscribers of topic.
func BroadcastSink(b broadcaster, topic string, logger zerolog.Logger) Sink {
	return SinkFunc(func(r route.Route) {
		payload, err := json.Marshal(Update{Points: r, Polyline: route.Project(r), Region: route.RegionFor(r)})
		if err != nil {
			logger.Error().Err(err).Msg("encode route update")
			return
		}
		b.Broadcast(topic, payload)
	})
}

// Update is the payload pushed to stream subscribers.
type Update struct {
	Points   route.Route        `json:"points"`
	Polyline []route.Coordinate `json:"polyline"`
	Region   route.Region       `json:"region"`
}

// Syncer polls the store on a fixed period and publishes the route when
// it changed. It is best effort: the UI may lag the store by up to one
// interval and a failed read just waits for the next tick.
type Syncer struct {
	store    Reader
	interval time.Duration
	sinks    []Sink
	log      zerolog.Logger

	mu       sync.Mutex
	observed bool
	lastLen  int
	lastTime int64
}

func New(store Reader, interval time.Duration, logger zerolog.Logger, sinks ...Sink) *Syncer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Syncer{
		store:    store,
		interval: interval,
		sinks:    sinks,
		log:      logger.With().Str("component", "viewsync").Logger(),
	}
}

// Run loads the route once, then polls until ctx is cancelled. A poll
// already in progress finishes; no new one is scheduled.
func (s *Syncer) Run(ctx context.Context) {
	s.poll(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Debug().Msg("view sync stopped")
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

func (s *Syncer) poll(ctx context.Context) {
	if _, err := s.Refresh(context.WithoutCancel(ctx)); err != nil {
		s.log.Warn().Err(err).Msg("failed to refresh route snapshot")
	}
}

// Refresh reads the store now and publishes if the route changed. It
// reports whether anything was published. Polls are serialized so an
// older read is never published after a newer one.
func (s *Syncer) Refresh(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.store.Read(ctx)
	if err != nil {
		return false, err
	}

	var lastTime int64
	if last, ok := r.Last(); ok {
		lastTime = last.Time
	}
	if s.observed && len(r) == s.lastLen && lastTime == s.lastTime {
		return false, nil
	}
	s.observed = true
	s.lastLen = len(r)
	s.lastTime = lastTime

	for _, sink := range s.sinks {
		sink.Publish(r.Clone())
	}
	return true, nil
}

package host

import (
	"context"
	"sync"

	"backend-routerecorder/internal/shared/geo"
	"backend-routerecorder/internal/tracking"

	"github.com/rs/zerolog"
)

// Local is an in-process host. Batches pushed with Deliver are filtered
// by the task's sampling config and handed to the task on their own
// goroutine, so invocations may overlap just as they do on a device.
type Local struct {
	base   context.Context
	cancel context.CancelFunc
	log    zerolog.Logger

	mu    sync.Mutex
	tasks map[string]*registration
	wg    sync.WaitGroup
}

type registration struct {
	sampling tracking.SamplingConfig
	handler  tracking.Handler
	last     *tracking.RawFix
	inflight sync.WaitGroup
}

func NewLocal(logger zerolog.Logger) *Local {
	ctx, cancel := context.WithCancel(context.Background())
	return &Local{
		base:   ctx,
		cancel: cancel,
		log:    logger.With().Str("component", "host").Str("host", "local").Logger(),
		tasks:  map[string]*registration{},
	}
}

// Register installs handler under name, replacing an earlier registration.
func (l *Local) Register(_ context.Context, name string, cfg tracking.SamplingConfig, handler tracking.Handler) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tasks[name] = &registration{sampling: cfg, handler: handler}
	l.log.Debug().Str("task", name).Int64("min_interval_ms", cfg.MinIntervalMs).Float64("min_distance_m", cfg.MinDistanceMeters).Msg("task registered")
	return nil
}

// Unregister removes the task and waits for its already scheduled
// invocations, so everything accepted before it returns is handled.
func (l *Local) Unregister(_ context.Context, name string) error {
	l.mu.Lock()
	reg, ok := l.tasks[name]
	if !ok {
		l.mu.Unlock()
		return tracking.ErrTaskNotRegistered
	}
	delete(l.tasks, name)
	l.mu.Unlock()

	reg.inflight.Wait()
	return nil
}

func (l *Local) Registered(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.tasks[name]
	return ok
}

// Deliver schedules one invocation and returns without waiting for it.
// The invocation runs on the host's own context, not the caller's.
func (l *Local) Deliver(_ context.Context, name string, event tracking.TaskEvent) error {
	l.mu.Lock()
	reg, ok := l.tasks[name]
	if !ok {
		l.mu.Unlock()
		return tracking.ErrTaskNotRegistered
	}
	if !event.Failed() {
		event.Locations = reg.sample(event.Locations)
		if len(event.Locations) == 0 {
			l.mu.Unlock()
			return nil
		}
	}
	handler := reg.handler
	l.wg.Add(1)
	reg.inflight.Add(1)
	l.mu.Unlock()

	go func() {
		defer l.wg.Done()
		defer reg.inflight.Done()
		handler(l.base, event)
	}()
	return nil
}

// Wait blocks until every scheduled invocation has returned.
func (l *Local) Wait() {
	l.wg.Wait()
}

func (l *Local) Close() {
	l.cancel()
	l.wg.Wait()
}

// sample keeps fixes that are at least MinInterval after and
// MinDistanceMeters away from the previously delivered one.
func (r *registration) sample(fixes []tracking.RawFix) []tracking.RawFix {
	kept := make([]tracking.RawFix, 0, len(fixes))
	for _, f := range fixes {
		if r.last != nil {
			elapsed := f.Timestamp - r.last.Timestamp
			moved := geo.HaversineMeters(r.last.Coords.Latitude, r.last.Coords.Longitude, f.Coords.Latitude, f.Coords.Longitude)
			if elapsed < r.sampling.MinIntervalMs || moved < r.sampling.MinDistanceMeters {
				continue
			}
		}
		fix := f
		r.last = &fix
		kept = append(kept, f)
	}
	return kept
}

package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"backend-routerecorder/internal/handoff"
	"backend-routerecorder/internal/locationstore"
	"backend-routerecorder/internal/route"

	"github.com/rs/zerolog"
)

// TaskName is the name the background task is registered under.
const TaskName = "bgLocation"

var (
	ErrPermissionDenied  = errors.New("permission to access location was denied")
	ErrAlreadyTracking   = errors.New("tracking already active")
	ErrNotTracking       = errors.New("tracking not active")
	ErrTaskNotRegistered = errors.New("background task not registered")
)

var DefaultSampling = SamplingConfig{
	Accuracy:          AccuracyHighest,
	MinIntervalMs:     6000,
	MinDistanceMeters: 5,
	ForegroundIndicator: ForegroundIndicator{
		Title: "Tracking is active",
		Body:  "Recording your route",
		Color: "#333333",
	},
	ActivityType:                   ActivityFitness,
	ShowIndicatorWhileBackgrounded: true,
}

// LocationStore is the persistence the controller and task work against.
type LocationStore interface {
	Read(ctx context.Context) (route.Route, error)
	Clear(ctx context.Context) error
	Append(ctx context.Context, points ...route.LocationPoint) (locationstore.AppendResult, error)
}

// Controller owns the session lifecycle. Start and Stop are serialized.
type Controller struct {
	store     LocationStore
	scheduler Scheduler
	task      *Task
	log       zerolog.Logger

	consumers []handoff.Consumer
	setRoute  func(route.Route)

	mu        sync.Mutex
	state     State
	startedAt time.Time
}

func NewController(store LocationStore, scheduler Scheduler, task *Task, logger zerolog.Logger) *Controller {
	return &Controller{
		store:     store,
		scheduler: scheduler,
		task:      task,
		log:       logger.With().Str("component", "tracking").Logger(),
		state:     StateIdle,
	}
}

// AddConsumer registers a downstream stage that receives each finished route.
func (c *Controller) AddConsumer(consumer handoff.Consumer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consumers = append(c.consumers, consumer)
}

// SetRouteSetter sets the capability passed downstream with every handoff.
func (c *Controller) SetRouteSetter(fn func(route.Route)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setRoute = fn
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{State: c.state, StartedAt: c.startedAt, Sampling: DefaultSampling}
}

// Start discards any previous route and registers the background task.
// It returns once the host accepted the registration.
func (c *Controller) Start(ctx context.Context, gate PermissionGate) error {
	granted, err := gate.RequestForegroundPermission(ctx)
	if err != nil {
		return fmt.Errorf("request location permission: %w", err)
	}
	if !granted {
		return ErrPermissionDenied
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateTracking {
		return ErrAlreadyTracking
	}
	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("reset location store: %w", err)
	}
	if err := c.scheduler.Register(ctx, TaskName, DefaultSampling, c.task.Handle); err != nil {
		return fmt.Errorf("register background location task: %w", err)
	}

	c.state = StateTracking
	c.startedAt = time.Now()
	c.log.Info().Str("task", TaskName).Msg("started background location task")
	return nil
}

// Stop unregisters the task and hands a copy of the final route to every
// consumer. Unregister and consumer failures are logged, not returned.
func (c *Controller) Stop(ctx context.Context) (route.Route, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateTracking {
		return nil, ErrNotTracking
	}

	if err := c.scheduler.Unregister(ctx, TaskName); err != nil {
		c.log.Warn().Err(err).Str("task", TaskName).Msg("failed to unregister background location task")
	} else {
		c.log.Info().Str("task", TaskName).Msg("stopped background location task")
	}
	startedAt := c.startedAt
	c.state = StateIdle
	c.startedAt = time.Time{}

	final, err := c.store.Read(ctx)
	if err != nil {
		c.log.Error().Err(err).Time("started_at", startedAt).Msg("failed to read final route, nothing handed off")
		return nil, fmt.Errorf("read final route: %w", err)
	}

	stoppedAt := time.Now()
	for _, consumer := range c.consumers {
		h := handoff.Handoff{
			Route:     final.Clone(),
			SetRoute:  c.setRoute,
			StartedAt: startedAt,
			StoppedAt: stoppedAt,
		}
		if err := consumer.Receive(ctx, h); err != nil {
			c.log.Error().Err(err).Msg("downstream handoff failed")
		}
	}

	c.log.Info().Int("points", len(final)).Msg("route recorded")
	return final.Clone(), nil
}

package tracking

import (
	"context"

	"backend-routerecorder/internal/locationstore"
	"backend-routerecorder/internal/route"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

type appender interface {
	Append(ctx context.Context, points ...route.LocationPoint) (locationstore.AppendResult, error)
}

// Task is the background location handler. It is created explicitly and
// handed to the controller; nothing is registered at package load.
type Task struct {
	store    appender
	log      zerolog.Logger
	validate *validator.Validate
}

func NewTask(store appender, logger zerolog.Logger) *Task {
	return &Task{
		store:    store,
		log:      logger.With().Str("component", "tracking").Logger(),
		validate: validator.New(),
	}
}

// Handle processes one host invocation. It never returns an error or
// panics: failures are logged and the batch is dropped so the host keeps
// scheduling the task.
func (t *Task) Handle(ctx context.Context, event TaskEvent) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error().Interface("panic", r).Msg("background location task panicked")
		}
	}()

	if event.Failed() {
		t.log.Error().Str("error", event.Error).Msg("something went wrong within the background location task")
		return
	}
	if len(event.Locations) == 0 {
		return
	}

	points := make([]route.LocationPoint, 0, len(event.Locations))
	for i, fix := range event.Locations {
		p := fix.Point()
		if err := t.validate.Struct(p); err != nil {
			t.log.Warn().Err(err).Int("index", i).Msg("discarding invalid fix")
			continue
		}
		points = append(points, p)
	}
	if len(points) == 0 {
		return
	}

	res, err := t.store.Append(ctx, points...)
	if err != nil {
		t.log.Error().Err(err).Int("batch", len(points)).Msg("something went wrong when saving new locations")
		return
	}
	if res.Dropped > 0 {
		t.log.Info().Int("dropped", res.Dropped).Msg("skipped redelivered fixes")
	}
}

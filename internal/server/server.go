package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"backend-routerecorder/internal/auth"
	"backend-routerecorder/internal/config"
	"backend-routerecorder/internal/db"
	"backend-routerecorder/internal/handoff"
	"backend-routerecorder/internal/host"
	"backend-routerecorder/internal/locationstore"
	"backend-routerecorder/internal/stream"
	"backend-routerecorder/internal/tracking"
	"backend-routerecorder/internal/viewsync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RouteTopic is the stream topic carrying route snapshots.
const RouteTopic = "route"

// Backends are the external connections the server is built on. Only
// Redis is mandatory.
type Backends struct {
	DB    *pgxpool.Pool
	Redis *redis.Client
	MQTT  mqtt.Client
	AMQP  *amqp.Connection
}

type Server struct {
	App        *fiber.App
	Cfg        config.Config
	Backends   Backends
	Stream     *stream.Hub
	Store      *locationstore.Store
	Controller *tracking.Controller
	Snapshot   *viewsync.Holder
	Sync       *viewsync.Syncer

	local  *host.Local
	log    zerolog.Logger
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewServer(cfg config.Config, b Backends, log zerolog.Logger) (*Server, error) {
	if b.Redis == nil {
		return nil, errors.New("redis client required")
	}

	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	s := &Server{
		App:      app,
		Cfg:      cfg,
		Backends: b,
		Stream:   stream.NewHub(b.Redis, log),
		Store:    locationstore.New(b.Redis, cfg.LocationKey, log),
		Snapshot: viewsync.NewHolder(),
		log:      log,
	}

	var scheduler tracking.Scheduler
	switch cfg.HostMode {
	case "mqtt":
		if b.MQTT == nil {
			return nil, errors.New("mqtt host mode needs an mqtt client")
		}
		scheduler = host.NewMQTT(b.MQTT, cfg.MQTTTopicPrefix, log)
	default:
		s.local = host.NewLocal(log)
		scheduler = s.local
	}

	task := tracking.NewTask(s.Store, log)
	s.Controller = tracking.NewController(s.Store, scheduler, task, log)
	s.Controller.SetRouteSetter(s.Snapshot.Set)

	s.Sync = viewsync.New(s.Store, cfg.PollInterval, log,
		s.Snapshot,
		viewsync.BroadcastSink(s.Stream, RouteTopic, log),
	)

	if err := s.wireHandoff(); err != nil {
		return nil, err
	}

	registerRoutes(s)
	return s, nil
}

func (s *Server) wireHandoff() error {
	if s.Backends.DB != nil {
		s.Controller.AddConsumer(handoff.NewDraftStore(s.Backends.DB, s.log))
	}
	if s.Backends.AMQP != nil {
		pub, err := handoff.NewPublisher(s.Backends.AMQP)
		if err != nil {
			return fmt.Errorf("route event publisher: %w", err)
		}
		s.Controller.AddConsumer(pub)
	}
	return nil
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "tracking": s.Controller.Status().State})
	})

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	// Deliverer stays a nil interface in mqtt mode so /fixes is not mounted.
	var deliverer tracking.Deliverer
	if s.local != nil {
		deliverer = s.local
	}

	// Without a database no device can obtain a token, so control routes
	// accept anonymous callers and gateFor falls back to the static gate.
	trackingAuth := jwtMiddleware
	if s.Backends.DB == nil {
		trackingAuth = auth.OptionalJWTMiddleware(s.Cfg.JWTSecret)
	}

	tracking.RegisterRoutes(s.App.Group("/tracking"), s.Controller, s.Snapshot, deliverer, s.gateFor, trackingAuth)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream)

	if s.Backends.DB != nil {
		auth.RegisterRoutes(s.App.Group("/auth"), auth.NewService(s.Cfg.JWTSecret, s.Backends.DB), jwtMiddleware)
		handoff.RegisterRoutes(s.App.Group("/drafts"), handoff.NewDraftStore(s.Backends.DB, s.log), jwtMiddleware)
	}
}

// gateFor answers from the caller's token when present and falls back to
// the configured static permission otherwise.
func (s *Server) gateFor(c *fiber.Ctx) tracking.PermissionGate {
	if claims, ok := auth.ClaimsFrom(c); ok {
		return auth.ClaimsGate{Claims: claims}
	}
	return tracking.StaticGate(s.Cfg.LocationPermission == auth.PermissionGranted)
}

// EnsureSchema creates the Postgres tables when a database is configured.
func (s *Server) EnsureSchema(ctx context.Context) error {
	if s.Backends.DB == nil {
		return nil
	}
	return db.EnsureSchema(ctx, s.Backends.DB)
}

// StartBackground runs the view sync loop until Close.
func (s *Server) StartBackground(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Sync.Run(ctx)
	}()
}

// Close stops background work and drains in-flight task invocations.
func (s *Server) Close() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	if s.local != nil {
		s.local.Close()
	}
	s.Stream.Close()
}

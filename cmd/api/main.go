package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"backend-routerecorder/internal/config"
	"backend-routerecorder/internal/db"
	"backend-routerecorder/internal/server"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var mainDepsProvider = defaultDeps
var mainRunner = realMain

func main() {
	mainRunner(mainDepsProvider())
}

type mainDeps struct {
	loadConfig      func() config.Config
	connectPostgres func(config.Config) (*pgxpool.Pool, error)
	connectRedis    func(config.Config) *redis.Client
	connectMQTT     func(config.Config) (mqtt.Client, error)
	connectRabbitMQ func(config.Config) (*amqp.Connection, error)
	notify          func(chan<- os.Signal, ...os.Signal)
	run             func(context.Context, config.Config, server.Backends, <-chan os.Signal, ListenFunc) error
}

func defaultDeps() mainDeps {
	return mainDeps{
		loadConfig:      loadConfig,
		connectPostgres: db.ConnectPostgres,
		connectRedis:    db.ConnectRedis,
		connectMQTT:     db.ConnectMQTT,
		connectRabbitMQ: db.ConnectRabbitMQ,
		notify:          signal.Notify,
		run:             Run,
	}
}

// loadConfig parses flags, binds them over the environment and loads.
func loadConfig() config.Config {
	flag.Bool("debug", false, "sets log level to debug")
	flag.String("port", ":8080", "sets the address to listen on")
	flag.Parse()

	_ = viper.BindPFlag("DEBUG", flag.Lookup("debug"))
	_ = viper.BindPFlag("SERVER_PORT", flag.Lookup("port"))
	return config.Load()
}

func setupLogging(debug bool) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout}).With().Caller().Logger()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

func realMain(deps mainDeps) {
	cfg := deps.loadConfig()
	setupLogging(cfg.Debug)

	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return
	}

	var backends server.Backends
	pg, err := deps.connectPostgres(cfg)
	if err != nil {
		log.Warn().Err(err).Msg("postgres unavailable, drafts and device auth disabled")
	} else {
		backends.DB = pg
	}

	backends.Redis = deps.connectRedis(cfg)

	backends.MQTT, err = deps.connectMQTT(cfg)
	if err != nil {
		log.Error().Err(err).Msg("mqtt connection failed")
		return
	}

	backends.AMQP, err = deps.connectRabbitMQ(cfg)
	if err != nil {
		log.Warn().Err(err).Msg("rabbitmq unavailable, route events disabled")
	}

	signals := make(chan os.Signal, 1)
	deps.notify(signals, syscall.SIGINT, syscall.SIGTERM)

	if err := deps.run(context.Background(), cfg, backends, signals, nil); err != nil {
		log.Error().Err(err).Msg("server exited with error")
	}
}

type ListenFunc func(app *fiber.App, addr string) error

var defaultListen ListenFunc = func(app *fiber.App, addr string) error {
	return app.Listen(addr)
}

// Run starts the HTTP server and waits for termination signals.
func Run(ctx context.Context, cfg config.Config, b server.Backends, signals <-chan os.Signal, listen ListenFunc) error {
	defer closeBackends(b)

	srv, err := server.NewServer(cfg, b, log.Logger)
	if err != nil {
		return err
	}
	if err := srv.EnsureSchema(ctx); err != nil {
		return err
	}
	srv.StartBackground(ctx)
	defer srv.Close()

	if listen == nil {
		listen = defaultListen
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- listen(srv.App, cfg.ServerPort)
	}()

	select {
	case <-signals:
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return shutdownFn(srv.App, shutdownCtx)
}

var shutdownFn = func(app *fiber.App, ctx context.Context) error {
	return app.ShutdownWithContext(ctx)
}

func closeBackends(b server.Backends) {
	if b.DB != nil {
		b.DB.Close()
	}
	if b.Redis != nil {
		_ = b.Redis.Close()
	}
	if b.MQTT != nil {
		b.MQTT.Disconnect(250)
	}
	if b.AMQP != nil {
		_ = b.AMQP.Close()
	}
}

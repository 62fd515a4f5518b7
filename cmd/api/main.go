package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/azrayildirim/mekandamobil/internal/config"
	"github.com/azrayildirim/mekandamobil/internal/db"
	"github.com/azrayildirim/mekandamobil/internal/events"
	"github.com/azrayildirim/mekandamobil/internal/logging"
	"github.com/azrayildirim/mekandamobil/internal/server"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
)

var mainDepsProvider = defaultDeps
var mainRunner = realMain

func main() {
	mainRunner(mainDepsProvider())
}

// Infra is everything the server needs from the outside world. Any field may
// be nil when its backend is unavailable.
type Infra struct {
	PG     *pgxpool.Pool
	Redis  *redis.Client
	Mongo  *mongo.Database
	Events events.Publisher
	Log    zerolog.Logger
}

type mainDeps struct {
	loadConfig      func() config.Config
	newLogger       func(config.Config) zerolog.Logger
	connectPostgres func(config.Config) (*pgxpool.Pool, error)
	connectRedis    func(config.Config) *redis.Client
	connectMongo    func(config.Config) (*mongo.Database, error)
	connectEvents   func(context.Context, config.Config, zerolog.Logger) (events.Publisher, error)
	notify          func(chan<- os.Signal, ...os.Signal)
	run             func(context.Context, config.Config, Infra, <-chan os.Signal, ListenFunc) error
}

func defaultDeps() mainDeps {
	return mainDeps{
		loadConfig:      config.Load,
		newLogger:       newLogger,
		connectPostgres: db.ConnectPostgres,
		connectRedis:    db.ConnectRedis,
		connectMongo:    db.ConnectMongo,
		connectEvents:   connectEvents,
		notify:          signal.Notify,
		run:             Run,
	}
}

func newLogger(cfg config.Config) zerolog.Logger {
	return logging.New("mekanda-api", cfg.LogLevel, cfg.LogPretty)
}

// connectEvents publishes to RabbitMQ when AMQP_URL is set and drops events
// otherwise.
func connectEvents(ctx context.Context, cfg config.Config, log zerolog.Logger) (events.Publisher, error) {
	if cfg.AMQPURL == "" {
		return events.Nop{}, nil
	}
	return events.Connect(ctx, cfg.AMQPURL, log)
}

func realMain(deps mainDeps) {
	cfg := deps.loadConfig()
	log := deps.newLogger(cfg)
	infra := Infra{Log: log, Events: events.Nop{}}

	pg, err := deps.connectPostgres(cfg)
	if err != nil {
		log.Error().Err(err).Str("action", "postgres_connect_failed").Msg("postgres connection failed")
	}
	infra.PG = pg

	infra.Redis = deps.connectRedis(cfg)

	mdb, err := deps.connectMongo(cfg)
	if err != nil {
		log.Error().Err(err).Str("action", "mongo_connect_failed").Msg("falling back to postgres venues")
	}
	infra.Mongo = mdb

	pub, err := deps.connectEvents(context.Background(), cfg, log)
	if err != nil {
		log.Error().Err(err).Str("action", "amqp_connect_failed").Msg("presence events disabled")
	} else if pub != nil {
		infra.Events = pub
	}

	signals := make(chan os.Signal, 1)
	deps.notify(signals, syscall.SIGINT, syscall.SIGTERM)

	if err := deps.run(context.Background(), cfg, infra, signals, nil); err != nil {
		log.Error().Err(err).Str("action", "server_exit").Msg("server exited with error")
	}
}

type ListenFunc func(app *fiber.App, addr string) error

var defaultListen ListenFunc = func(app *fiber.App, addr string) error {
	return app.Listen(addr)
}

var shutdownFn = func(app *fiber.App, ctx context.Context) error {
	return app.ShutdownWithContext(ctx)
}

type closer interface {
	Close() error
}

// Run starts the HTTP server and waits for termination signals.
func Run(ctx context.Context, cfg config.Config, infra Infra, signals <-chan os.Signal, listen ListenFunc) error {
	srv := server.NewServer(cfg, infra.PG, infra.Redis, infra.Mongo, infra.Events, infra.Log)

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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := shutdownFn(srv.App, shutdownCtx); err != nil {
		return err
	}
	_ = srv.Stream.Close()
	if c, ok := infra.Events.(closer); ok {
		_ = c.Close()
	}
	if infra.Mongo != nil {
		_ = infra.Mongo.Client().Disconnect(shutdownCtx)
	}
	if infra.PG != nil {
		infra.PG.Close()
	}
	if infra.Redis != nil {
		_ = infra.Redis.Close()
	}
	return nil
}

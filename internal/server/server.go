package server

import (
	"github.com/azrayildirim/mekandamobil/internal/auth"
	"github.com/azrayildirim/mekandamobil/internal/chat"
	"github.com/azrayildirim/mekandamobil/internal/checkin"
	"github.com/azrayildirim/mekandamobil/internal/config"
	"github.com/azrayildirim/mekandamobil/internal/events"
	"github.com/azrayildirim/mekandamobil/internal/kv"
	"github.com/azrayildirim/mekandamobil/internal/location"
	"github.com/azrayildirim/mekandamobil/internal/presence"
	"github.com/azrayildirim/mekandamobil/internal/realtime"
	"github.com/azrayildirim/mekandamobil/internal/stream"
	"github.com/azrayildirim/mekandamobil/internal/user"
	"github.com/azrayildirim/mekandamobil/internal/venue"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
)

type Server struct {
	App    *fiber.App
	Cfg    config.Config
	DB     *pgxpool.Pool
	Redis  *redis.Client
	Mongo  *mongo.Database
	Stream *stream.Hub
	Events events.Publisher
	Log    zerolog.Logger
}

func NewServer(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client, mongoDB *mongo.Database, pub events.Publisher, log zerolog.Logger) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	if pub == nil {
		pub = events.Nop{}
	}

	s := &Server{
		App:    app,
		Cfg:    cfg,
		DB:     db,
		Redis:  redisClient,
		Mongo:  mongoDB,
		Stream: stream.NewHub(redisClient, log),
		Events: pub,
		Log:    log,
	}

	registerRoutes(s)
	return s
}

func (s *Server) venueStore() venue.Store {
	if s.Cfg.DocumentStore == "mongo" && s.Mongo != nil {
		return venue.NewMongoStore(s.Mongo)
	}
	return venue.NewPGStore(s.DB)
}

func (s *Server) checkinConfig() checkin.Config {
	return checkin.Config{
		RadiusM:      s.Cfg.CheckinRadiusM,
		Cooldown:     s.Cfg.CheckinCooldown,
		NearestFirst: s.Cfg.CheckinNearestFirst,
		DeviceIdle:   s.Cfg.DeviceIdleTimeout,
		Watch: location.Options{
			MinDistanceM: s.Cfg.LocationMinDistanceM,
			Accuracy:     location.AccuracyHigh,
		},
	}
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	authSvc := auth.NewService(s.Cfg.JWTSecret, s.DB)
	jwtMiddleware := authSvc.Middleware()

	venues := venue.NewService(s.venueStore(), s.Stream, s.Log)
	users := user.NewService(s.DB, venues, s.Log)
	rt := realtime.NewRedisStore(s.Redis, s.Stream, s.Log)
	writer := presence.NewWriter(venues, rt, users, s.Events, s.Log)
	reconciler := presence.NewReconciler(writer, rt, s.Log)

	cfg := s.checkinConfig()
	scanner := checkin.NewScanner(venues, reconciler, cfg, s.Log)
	newKV := func(scope string) kv.Store { return kv.NewRedisStore(s.Redis, scope) }
	devices := checkin.NewManager(scanner, writer, reconciler, newKV, cfg, s.Log)

	messages := chat.NewService(s.DB, s.Stream, rt, users, s.Log)

	auth.RegisterRoutes(s.App.Group("/auth"), authSvc)
	user.RegisterRoutes(s.App.Group("/users"), users, jwtMiddleware)
	venue.RegisterRoutes(s.App.Group("/venues"), venues, jwtMiddleware)
	presence.RegisterRoutes(s.App.Group("/presence"), rt)
	checkin.RegisterRoutes(s.App.Group("/checkin"), devices, jwtMiddleware)
	chat.RegisterRoutes(s.App.Group("/messages"), messages, jwtMiddleware)

	streams := s.App.Group("/stream", stream.Upgrade)
	checkin.RegisterSocket(streams, devices, reconciler, authSvc.ValidateAccessToken, s.Log)
	streams.Get("/venues", stream.Serve(venueSource(venues, s.Log), s.Log))
	streams.Get("/presence/:userId", stream.Serve(presenceSource(rt), s.Log))
	streams.Get("/chat/:roomID", stream.Serve(chatSource(messages, authSvc.ValidateAccessToken), s.Log))
}

package main // Entry point package

import (
	"log"  // Logging library
	"time" // Durations for engine knobs

	"github.com/joho/godotenv"    // .env loader for local development
	"github.com/labstack/echo/v4" // Echo web framework

	"github.com/solacestudio/studio-reservation/internal/booking"    // Reservation engine
	"github.com/solacestudio/studio-reservation/internal/config"     // Internal config loader
	"github.com/solacestudio/studio-reservation/internal/database"   // MySQL connector
	"github.com/solacestudio/studio-reservation/internal/handler"    // HTTP handlers
	"github.com/solacestudio/studio-reservation/internal/middleware" // Rate limit / cache middleware
	"github.com/solacestudio/studio-reservation/internal/queue"      // Event consumer
	"github.com/solacestudio/studio-reservation/internal/repository" // Data access layer
	"github.com/solacestudio/studio-reservation/internal/router"     // Route registration
	queue_publisher "github.com/solacestudio/studio-reservation/internal/service"
)

func main() {
	// Load .env when present; real deployments set environment directly.
	_ = godotenv.Load()
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Repositories and the engine's SQL-backed store.
	members := repository.NewMemberRepo(db)
	sessions := repository.NewSessionRepo(db)
	reservations := repository.NewReservationRepo(db)
	ledger := repository.NewLedgerRepo(db)
	store := repository.NewSQLStore(db, sessions, reservations, ledger)

	sink := queue_publisher.NewQueueSink(cfg.RabbitURL)
	engine := booking.NewReservationEngine(store, sink,
		time.Duration(cfg.LockWaitMS)*time.Millisecond,
		time.Duration(cfg.CheckInGraceMin)*time.Minute)
	clock := booking.RealClock{}

	e := echo.New()

	// Redis-backed rate limiting; when Redis is unreachable both middlewares
	// degrade to pass-through.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Printf("redis unavailable; rate limiting and response cache disabled")
	}
	e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))
	cacheMW := middleware.NewRedisCache(config.LoadCacheConfig(), rdb)

	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, members), cfg.JWTSecret)
	router.RegisterSchedule(e, handler.NewScheduleHandler(sessions, engine, clock), cacheMW)
	router.RegisterBooking(e, handler.NewBookingHandler(engine, reservations, ledger, clock), cfg.JWTSecret)
	router.RegisterStaff(e, handler.NewStaffHandler(sessions, reservations, members, ledger, engine, clock), cfg.JWTSecret)

	// Drain reservation events into logs/reservations.log in the background.
	go func() {
		if err := queue.StartReservationConsumer(); err != nil {
			log.Printf("reservation consumer stopped: %v", err)
		}
	}()

	addr := ":" + cfg.Port                                // Address string with port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env) // Print startup info

	if err := e.Start(addr); err != nil { // Start HTTP server
		log.Fatal(err) // Log and exit if server fails
	}
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"liveauction-service/internal/adapters/broadcaster"
	"liveauction-service/internal/adapters/db"
	"liveauction-service/internal/adapters/redis"
	"liveauction-service/internal/adapters/scheduler"
	"liveauction-service/internal/adapters/ws"
	"liveauction-service/internal/app"
	"liveauction-service/internal/config"
)

func main() {

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	initLogging(cfg)

	log.Info().Msg("Starting Live Auction Service...")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection
	dbConn, err := db.NewConnection(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbConn.Close()

	log.Info().Msg("Database connection established")

	auctionRepo := db.NewAuctionRepository(dbConn)
	bidRepo := db.NewBidRepository(dbConn)

	log.Info().Msg("Database repositories initialized")

	// Create Redis client
	redisClient := redis.NewClient(cfg)
	if err := redis.PingRedis(redisClient); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	log.Info().Msg("Redis connection established")

	// Create Redis broadcaster
	redisBroadcaster := broadcaster.NewBroadcaster(broadcaster.RedisBroadcasterParams{
		RedisClient: redisClient,
		Logger:      log.Logger,
	})
	log.Info().Msg("Redis broadcaster initialized")

	// Create expiration scheduler
	expirationScheduler := scheduler.NewExpirationScheduler(scheduler.ExpirationSchedulerParams{
		RedisClient:  redisClient,
		AuctionRepo:  auctionRepo,
		PollInterval: cfg.Scheduler.PollInterval,
		RetryBackoff: cfg.Scheduler.RetryBackoff,
		Logger:       log.Logger,
	})

	// Create business services
	finalizer := app.NewFinalizerService(app.FinalizerServiceParams{
		AuctionRepo: auctionRepo,
		Scheduler:   expirationScheduler,
		Broadcaster: redisBroadcaster,
		Logger:      log.Logger,
	})
	expirationScheduler.SetFinalizer(finalizer)

	auctionService := app.NewAuctionService(app.AuctionServiceParams{
		AuctionRepo: auctionRepo,
		Scheduler:   expirationScheduler,
		Finalizer:   finalizer,
		Logger:      log.Logger,
	})
	bidService := app.NewBidService(app.BidServiceParams{
		BidRepo:      bidRepo,
		AuctionRepo:  auctionRepo,
		Scheduler:    expirationScheduler,
		Broadcaster:  redisBroadcaster,
		MaxIncrement: cfg.Bidding.MaxIncrement,
		Logger:       log.Logger,
	})

	log.Info().Msg("Business services initialized")

	// Start scheduler and re-arm checks for auctions that were active
	// when the previous process stopped
	expirationScheduler.Start()
	if err := expirationScheduler.Reconcile(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to reconcile expiration checks")
	}
	log.Info().Msg("Expiration scheduler started")

	wsServer := ws.NewServer(ws.ServerParams{
		Config:         cfg,
		AuctionService: auctionService,
		BidService:     bidService,
		Broadcaster:    redisBroadcaster,
		Logger:         log.Logger,
	})

	log.Info().Msg("Server initialized")

	// Start server
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("Starting server")
		if err := wsServer.Start(); err != nil {
			log.Error().Err(err).Msg("Failed to start server")
			cancel()
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case <-ctx.Done():
		log.Info().Msg("Context cancelled")
	}

	// Graceful shutdown
	log.Info().Msg("Starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop expiration scheduler
	expirationScheduler.Stop()
	log.Info().Msg("Expiration scheduler stopped")

	// Stop server
	if err := wsServer.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping server")
	}

	log.Info().Msg("Graceful shutdown completed")
}

func initLogging(cfg *config.Config) {
	// Set log level
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Set log format
	if cfg.Logging.Format == "json" {
		// JSON format (default)
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		// Console format for development
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		log.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global logger
	zerolog.DefaultContextLogger = &log.Logger
}

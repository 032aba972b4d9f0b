package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/pulsechat/pulse/internal/api"
	"github.com/pulsechat/pulse/internal/api/middleware"
	"github.com/pulsechat/pulse/internal/config"
	"github.com/pulsechat/pulse/internal/handlers"
	"github.com/pulsechat/pulse/internal/realtime"
	"github.com/pulsechat/pulse/internal/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Run migrations when Postgres is configured
	if cfg.DatabaseURL != "" {
		logger.Info().Msg("running database migrations...")
		if err := store.RunMigrations(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		logger.Info().Msg("migrations completed")
	}

	// Initialize the durable store: Postgres when DATABASE_URL is set,
	// SQLite otherwise
	var db store.DataStore
	if cfg.DatabaseURL != "" {
		pgStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		db = pgStore
		logger.Info().Msg("connected to PostgreSQL")
	} else {
		sqliteStore, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		db = sqliteStore
		logger.Info().Str("path", cfg.SQLitePath).Msg("opened SQLite database")
	}
	defer db.Close()

	// Initialize Redis (optional): message cache, change feed, rate limits
	var redisStore *store.RedisStore
	var feed store.MessageFeed
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		var err error
		redisStore, err = store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		feed = redisStore
		redisClient = redisStore.Client()
		logger.Info().Msg("connected to Redis")
	} else {
		feed = store.NewLocalFeed()
		logger.Info().Msg("redis not configured, using in-process message feed")
	}

	// Start the realtime hub
	hub := realtime.NewHub(logger, cfg.TypingExpiry, cfg.TypingSweep)
	go hub.Run(ctx)

	// Bridge the change-feed into the local relay
	feedCh, unsubscribe, err := feed.SubscribeAll(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("change-feed subscribe failed")
	}
	defer unsubscribe()
	go hub.RelayFeed(feedCh)

	// Create handler, auth and rate limiter
	auth := middleware.NewAuthMiddleware(cfg.JWTSecret)
	limiter := middleware.NewRateLimiter(redisClient, logger)
	h := handlers.NewHandler(db, redisStore, feed, hub, auth, logger, cfg.SendBufferSize)

	// Create router
	router := api.NewRouter(logger, h, auth, limiter)

	// Create server
	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// WriteTimeout stays unset: websocket connections are long-lived
		// and gorilla clears per-connection deadlines after the upgrade.
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting pulse server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")
	cancel()

	// Graceful shutdown with 30 second timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}

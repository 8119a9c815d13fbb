package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/quizfunnel/internal/adapters/cache"
	"github.com/zatekoja/quizfunnel/internal/adapters/database"
	"github.com/zatekoja/quizfunnel/internal/adapters/events"
	"github.com/zatekoja/quizfunnel/internal/api/handlers"
	"github.com/zatekoja/quizfunnel/internal/api/routes"
	"github.com/zatekoja/quizfunnel/internal/application/services"
	"github.com/zatekoja/quizfunnel/internal/domain/providers"
	"github.com/zatekoja/quizfunnel/internal/infrastructure/clients/meta"
	redisclient "github.com/zatekoja/quizfunnel/internal/infrastructure/clients/redis"
	"github.com/zatekoja/quizfunnel/internal/infrastructure/clients/sqldb"
	"github.com/zatekoja/quizfunnel/internal/infrastructure/observability"
	"github.com/zatekoja/quizfunnel/pkg/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.OTEL.ServiceName, cfg.Log.Env, cfg.Log.Level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry if enabled
	var metrics *observability.Metrics
	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err := observability.Setup(ctx, cfg.OTEL.ServiceName, cfg.OTEL.ServiceVersion, cfg.OTEL.Endpoint)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to set up OpenTelemetry")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					log.Error().Err(err).Msg("Error shutting down OpenTelemetry")
				}
			}()
			if metrics, err = observability.InitMetrics(); err != nil {
				log.Fatal().Err(err).Msg("Failed to initialize metrics")
			}
			log.Info().Str("endpoint", cfg.OTEL.Endpoint).Msg("OpenTelemetry initialized")
		}
	}

	// Session store
	dbClient, err := sqldb.NewClient(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("Failed to initialize database client")
	}
	defer dbClient.Close()

	if cfg.Database.AutoMigrate {
		if err := database.EnsureSchema(ctx, dbClient); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply schema")
		}
	}
	log.Info().Str("driver", dbClient.Driver()).Msg("Database client initialized")

	// Redis is optional unless it backs the queue
	var redisClient *redisclient.Client
	if cfg.Redis.Enabled {
		redisClient, err = redisclient.NewClient(ctx, &cfg.Redis)
		if err != nil {
			if cfg.Queue.Backend == config.QueueBackendRedis {
				log.Fatal().Err(err).Msg("Failed to initialize Redis client")
			}
			log.Warn().Err(err).Msg("Redis unavailable, using in-process cache")
			redisClient = nil
		} else {
			defer redisClient.Close()
			log.Info().Str("addr", cfg.Redis.RedisAddr()).Msg("Redis client initialized")
		}
	}

	var cacheProvider providers.CacheProvider
	if redisClient != nil {
		cacheProvider = cache.NewRedisAdapter(redisClient)
	} else {
		cacheProvider = cache.NewMemoryAdapter()
	}

	// Outbound conversions queue
	var queue providers.ConversionQueue
	switch cfg.Queue.Backend {
	case config.QueueBackendRedis:
		queue = events.NewRedisQueue(redisClient, cfg.Queue.RedisKey)
	default:
		queue = events.NewMemoryQueue(cfg.Queue.Buffer, events.NewZerologAdapter(log.Logger))
	}

	conversions := meta.NewConversionsClient(&cfg.Meta)
	if !conversions.Configured() {
		log.Warn().Msg("Conversions API not configured, server-side events will be skipped")
	}

	dispatcher := services.NewConversionDispatcher(queue, conversions, services.DispatcherConfig{
		Workers:     cfg.Queue.Workers,
		SendTimeout: cfg.Queue.SendTimeout,
	})
	if err := dispatcher.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start conversion dispatcher")
	}

	// Adapters and services
	sessionAdapter := database.NewSessionAdapter(dbClient, metrics)
	statsAdapter := database.NewSessionStatsAdapter(dbClient)

	trackingService := services.NewTrackingService(sessionAdapter, queue)
	purchaseService := services.NewPurchaseService(sessionAdapter, queue)
	statsService := services.NewStatsService(statsAdapter, cacheProvider, cfg.Admin.StatsCacheTTL)

	if cfg.Admin.Key == "" {
		log.Warn().Msg("Admin key not set, the stats endpoint will reject every request")
	}

	healthChecks := map[string]handlers.Pinger{"database": dbClient}
	if redisClient != nil {
		healthChecks["redis"] = redisClient
	}

	router := routes.NewRouter(routes.Handlers{
		Tracking: handlers.NewTrackingHandler(trackingService),
		Session:  handlers.NewSessionHandler(),
		Webhook:  handlers.NewPurchaseWebhookHandler(purchaseService),
		Admin:    handlers.NewAdminStatsHandler(statsService, cfg.Admin.Key),
		Quiz:     handlers.NewQuizHandler(),
		Config: handlers.NewConfigHandler(handlers.PublicConfig{
			PixelID:         cfg.Meta.PixelID,
			GAMeasurementID: cfg.Analytics.GAMeasurementID,
		}),
		Health: handlers.NewHealthHandler(healthChecks),
	}, cfg.CORS.Origins(), metrics)

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router.SetupRoutes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", serverAddr).Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Server shutting down")
	case err := <-serverErr:
		log.Error().Err(err).Msg("Server failed")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during server shutdown")
	}

	// Stop consuming before closing the queue so in-flight sends finish.
	dispatcher.Stop()
	if err := queue.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing conversion queue")
	}

	log.Info().Msg("Server stopped")
}

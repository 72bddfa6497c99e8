package main

// @title           Office Realtime API
// @version         1.0
// @description     Authenticated WebSocket event stream and internal producer API of the office backend
// @host            localhost:8080
// @BasePath        /
// @schemes         http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

// @securityDefinitions.apikey InternalKey
// @in header
// @name X-Internal-Key

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"office-realtime/internal/adapters/kafka"
	"office-realtime/internal/api/handlers"
	"office-realtime/internal/api/middleware"
	"office-realtime/internal/api/routes"
	"office-realtime/internal/auth"
	"office-realtime/internal/config"
	"office-realtime/internal/database"
	"office-realtime/internal/ingest"
	"office-realtime/internal/relay"
	"office-realtime/internal/repositories"
	"office-realtime/internal/services"
	"office-realtime/internal/ws"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger := config.NewLogger(cfg.Log)
	slog.SetDefault(logger)
	logger.Info("Starting realtime server")

	if err := run(cfg, logger); err != nil {
		logger.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := ws.NewMetrics(reg)
	checks := map[string]handlers.HealthCheck{}

	var (
		redisService  *services.RedisService
		presenceStore ws.PresenceStore
		accessCache   services.AccessCache
		cluster       handlers.ClusterPresence
		limiter       middleware.RateLimiter
		wsRelay       ws.Relay
		redisRelay    *relay.RedisRelay
	)
	if cfg.Redis.Enabled() {
		redisClient, err := database.NewRedisConnection(cfg.Redis, logger)
		if err != nil {
			return err
		}
		defer redisClient.Close()

		redisService = services.NewRedisService(redisClient, cfg.Redis.PresenceTTL)
		redisRelay = relay.New(redisService, cfg.Redis.RelayChannel, logger)
		presenceStore, accessCache, cluster, limiter, wsRelay = redisService, redisService, redisService, redisService, redisRelay
		checks["redis"] = redisService.Ping
	} else {
		logger.Warn("REDIS_URL not set, running as a single instance without presence mirror")
	}

	var accessStore services.AccessStore
	if cfg.Database.Enabled() {
		db, err := database.NewConnection(cfg.Database, logger)
		if err != nil {
			return err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		defer sqlDB.Close()

		accessStore = repositories.NewAccessRepository(db)
		checks["database"] = sqlDB.PingContext
	} else {
		logger.Warn("DB_DRIVER not set, entity subscriptions limited to privileged roles")
	}

	policy := services.NewAccessPolicy(cfg.Access.PrivilegedRoles, accessStore, accessCache, cfg.Access.CacheTTL, logger)

	hub := ws.NewHub(ws.Options{
		Authorizer:       policy,
		PresenceStore:    presenceStore,
		Relay:            wsRelay,
		Metrics:          metrics,
		Logger:           logger,
		AuthorizeTimeout: cfg.WebSocket.AuthorizeTimeout,
		PresenceRefresh:  cfg.Redis.PresenceTTL / 3,
	})
	applier := ingest.NewApplier(hub.Dispatcher(), hub.Presence(), ingest.WithAccessControl(policy, hub))

	router := routes.NewRouter(routes.Dependencies{
		Hub:      hub,
		Upgrader: ws.NewUpgrader(cfg.Server.AllowedOrigins),
		Client: ws.ClientConfig{
			SendQueueSize:  cfg.WebSocket.SendQueueSize,
			MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		},
		Tokens:          auth.NewTokenService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL),
		Applier:         applier,
		Cluster:         cluster,
		RateLimiter:     limiter,
		Checks:          checks,
		Gatherer:        reg,
		Logger:          logger,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		InternalAPIKey:  cfg.Internal.APIKey,
		HandshakeLimit:  cfg.WebSocket.HandshakeLimit,
		HandshakeWindow: cfg.WebSocket.HandshakeWindow,
	})
	router.SetupRoutes()

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router.GetEngine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return hub.Run(gctx) })

	if redisRelay != nil {
		g.Go(func() error { return redisRelay.Run(gctx, hub.Dispatcher()) })
	}

	if cfg.Kafka.Enabled() {
		consumer := kafka.NewConsumer(kafka.NewReader(cfg.Kafka), applier, logger)
		g.Go(func() error { return consumer.Run(gctx) })
	}

	g.Go(func() error {
		logger.Info("Server starting", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Server shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		err := server.Shutdown(shutdownCtx)
		if err != nil {
			logger.Error("Server forced to shutdown", "error", err)
		}
		// Upgraded connections are not tracked by http.Server.
		hub.Shutdown()
		hub.Drain(shutdownCtx)
		return err
	})

	return g.Wait()
}

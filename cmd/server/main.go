// Command server runs the growth loop HTTP API.
//
//	@title						Growth Loop API
//	@version					1.0
//	@description				Smart links, attribution, rewards, XP and presence for the viral growth loops.
//	@BasePath					/api/v1
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				HS256 JWT: "Bearer <token>"
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

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/growth-loop-backend/docs"
	"github.com/tbourn/growth-loop-backend/internal/analytics"
	"github.com/tbourn/growth-loop-backend/internal/config"
	"github.com/tbourn/growth-loop-backend/internal/ephemeral"
	httpapi "github.com/tbourn/growth-loop-backend/internal/http"
	"github.com/tbourn/growth-loop-backend/internal/observability"
	"github.com/tbourn/growth-loop-backend/internal/repo"
	"github.com/tbourn/growth-loop-backend/internal/services"
	"github.com/tbourn/growth-loop-backend/internal/sysutil"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	// .env is optional; real deployments inject the environment.
	_ = godotenv.Load()

	cfg, err := config.Load()
	ver := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)
	log.Logger = sysutil.NewLogger(os.Stdout, sysutil.LogOptions{
		Level:   cfg.LogLevel,
		Pretty:  cfg.LogPretty,
		NoColor: sysutil.IsTruthy(os.Getenv("NO_COLOR")),
		Service: cfg.OTEL.ServiceName,
		Version: ver,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	if err := run(cfg, ver); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run(cfg config.Config, ver string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, ver)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	// Relational store
	db, err := repo.Open(ctx, cfg.DB)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	if cfg.OTEL.Enabled {
		if err := observability.InstrumentGORM(db); err != nil {
			return fmt.Errorf("instrument gorm: %w", err)
		}
	}
	if err := repo.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	// Reward policy catalog
	defs, err := config.LoadPolicies(cfg.RewardPolicyFile)
	if err != nil {
		return err
	}
	policies, err := services.NewPolicyCatalog(defs)
	if err != nil {
		return err
	}

	// Ephemeral store (optional)
	store, closeStore := openEphemeral(ctx, cfg.RedisURL)
	defer closeStore()

	// Analytics
	sink, err := newSink(cfg.Analytics)
	if err != nil {
		return fmt.Errorf("analytics sink: %w", err)
	}
	events := analytics.NewDispatcher(sink, cfg.Analytics.QueueSize, cfg.Analytics.Timeout)
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := events.Close(sctx); err != nil {
			log.Warn().Err(err).Int64("dropped", events.Dropped()).Msg("analytics drain incomplete")
		}
	}()

	// HTTP
	gin.SetMode(cfg.GinMode)
	docs.SwaggerInfo.BasePath = cfg.APIBasePath
	docs.SwaggerInfo.Version = ver
	r := gin.New()
	if err := httpapi.RegisterRoutes(r, httpapi.Infra{
		DB:        db,
		Ephemeral: store,
		Policies:  policies,
		Events:    events,
	}, cfg); err != nil {
		return fmt.Errorf("routes: %w", err)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("db", cfg.DB.Driver).Bool("ephemeral", store.Configured()).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-errCh:
		return err
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(sctx)
}

// openEphemeral connects to Redis when configured. A failed initial ping is
// logged and the client kept: the adapter reports unhealthy until Redis comes
// up, and presence and invite quotas fail open meanwhile.
func openEphemeral(ctx context.Context, url string) (*ephemeral.Adapter, func()) {
	if url == "" {
		log.Warn().Msg("REDIS_URL not set; presence and invite quotas disabled")
		return ephemeral.NewAdapter(nil), func() {}
	}
	client, err := ephemeral.Connect(ctx, url)
	if client == nil {
		log.Error().Err(err).Msg("redis configuration rejected; presence and invite quotas disabled")
		return ephemeral.NewAdapter(nil), func() {}
	}
	if err != nil {
		log.Warn().Err(err).Msg("redis unreachable at startup")
	}
	store := ephemeral.NewAdapter(ephemeral.NewRedisStore(client),
		ephemeral.WithLogger(log.With().Str("component", "ephemeral").Logger()))
	return store, func() { _ = client.Close() }
}

func newSink(cfg config.AnalyticsConfig) (analytics.Sink, error) {
	switch cfg.Sink {
	case "http":
		return analytics.NewHTTPSink(cfg.IngestURL), nil
	case "kafka":
		return analytics.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
	default:
		return analytics.LogSink{Logger: log.With().Str("component", "analytics").Logger()}, nil
	}
}

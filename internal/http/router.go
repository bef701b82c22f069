// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// authentication, CORS, security headers, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/growth-loop-backend/internal/analytics"
	"github.com/tbourn/growth-loop-backend/internal/attribution"
	"github.com/tbourn/growth-loop-backend/internal/config"
	"github.com/tbourn/growth-loop-backend/internal/ephemeral"
	"github.com/tbourn/growth-loop-backend/internal/http/handlers"
	"github.com/tbourn/growth-loop-backend/internal/http/middleware"
	"github.com/tbourn/growth-loop-backend/internal/presence"
	"github.com/tbourn/growth-loop-backend/internal/ratelimit"
	"github.com/tbourn/growth-loop-backend/internal/repo"
	"github.com/tbourn/growth-loop-backend/internal/services"
	"github.com/tbourn/growth-loop-backend/internal/signing"
)

// Route patterns referenced by middleware options.
const (
	routeSmartLink    = "/l/:code"
	routeXPTrack      = "/xp/track"
	routeAuthComplete = "/auth/complete"
	routeStream       = "/presence/:subject/stream"
)

// Infra carries the process-level resources services are built from.
type Infra struct {
	// DB is the relational store.
	DB *gorm.DB
	// Ephemeral backs presence and invite counters. An adapter over a nil
	// store degrades both to their fail-open behaviour.
	Ephemeral *ephemeral.Adapter
	// Policies is the reward policy catalog.
	Policies *services.PolicyCatalog
	// Events receives analytics. Nil discards.
	Events analytics.Emitter
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), authentication,
// idempotency and rate limiting, CORS and security headers, health and
// metrics endpoints, the public smart link redirect, and then mounts the
// versioned API under /api/v*.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter and gzip
//  6. Metrics
//  7. Authenticate (identity for everything below)
//  8. Idempotency validator (before rate limiter to allow bypass on replay)
//  9. Rate limiter (per user/IP, bypass on replay)
//  10. CORS and Security headers
func RegisterRoutes(r *gin.Engine, infra Infra, cfg config.Config) error {
	if infra.DB == nil {
		return errors.New("httpapi: nil DB")
	}
	if infra.Ephemeral == nil {
		infra.Ephemeral = ephemeral.NewAdapter(nil)
	}
	if infra.Events == nil {
		infra.Events = analytics.Discard{}
	}
	if infra.Policies == nil {
		p, err := services.NewPolicyCatalog(config.DefaultPolicies())
		if err != nil {
			return err
		}
		infra.Policies = p
	}
	db := infra.DB

	signer, err := signing.NewCodec([]byte(cfg.SmartLink.Secret))
	if err != nil {
		return err
	}
	cookies := attribution.NewCodec(signer)
	cookieOpt := middleware.CookieOptions{Secure: cfg.SmartLink.CookieSecure}

	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	apiPath := func(p string) string { return strings.TrimRight(apiBase, "/") + p }

	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{
			"X-API-Key",
		},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB) and response compression. Event
	// streams must flush frame by frame, so they are never gzipped.
	r.Use(limitBody(1 << 20))
	r.Use(gzip.Gzip(gzip.DefaultCompression,
		gzip.WithExcludedPathsRegexs([]string{`/presence/[^/]+/stream$`}),
		gzip.WithExcludedPaths([]string{"/metrics"}),
	))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics(middleware.MetricsOptions{
		StreamRoutes: []string{apiPath(routeStream)},
	}))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Identity
	r.Use(middleware.Authenticate(cfg.AuthJWTSecret))

	// 8) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
			Scopes: map[string]string{apiPath(routeXPTrack): handlers.ScopeXPTrack},
		},
		func(ctx context.Context, userID, scope, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, userID, scope, key, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		},
	))

	// 9) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	// 10) CORS posture (safe defaults: allow all if none configured)
	allowHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderUserID, middleware.HeaderIdempotencyKey}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", "ETag", middleware.HeaderIdempotencyReplayed,
		"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Set("Access-Control-Allow-Credentials", "true")
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		// Attribution cookies ride along on credentialed requests.
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:    cfg.Security.EnableHSTS,
		HSTSMaxAge:    cfg.Security.HSTSMaxAge,
		NoStore:       false,
		NoStoreRoutes: []string{routeSmartLink, apiPath(routeAuthComplete)},
		EnablePolicy:  true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", healthHandler(db, infra.Ephemeral))

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← repo/db/ephemeral store
	limiter := ratelimit.NewInviteLimiter(infra.Ephemeral, cfg.DailyInviteLimit)

	links := services.NewSmartLinkService(db, signer, limiter, infra.Events)
	if cfg.SmartLink.TTL > 0 {
		links.TTL = cfg.SmartLink.TTL
	}
	links.PublicBaseURL = cfg.SmartLink.PublicBaseURL

	rewards := services.NewRewardService(db, infra.Policies, infra.Events)
	xp := services.NewXPService(db)
	conversions := services.NewConversionService(db, xp, rewards, infra.Events)
	pres := presence.New(infra.Ephemeral, presence.Options{
		TTL:          cfg.Presence.TTL,
		PollInterval: cfg.Presence.PollInterval,
		KeepAlive:    cfg.Presence.KeepAlive,
	})

	h := handlers.New(handlers.Deps{
		DB:             db,
		Links:          links,
		Quota:          limiter,
		Rewards:        rewards,
		XP:             xp,
		Presence:       pres,
		Conversions:    conversions,
		Cookies:        cookies,
		CookieOptions:  cookieOpt,
		Events:         infra.Events,
		IdempotencyTTL: cfg.IdempotencyTTL,
	})

	// Anonymous surfaces get an extra per-IP bucket so rotating X-User-ID
	// values cannot dodge the global limiter.
	ipRL := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByIP())

	// Public smart link redirect
	r.GET(routeSmartLink, ipRL.Handler(), h.ResolveSmartLink)

	// Public API
	api := groupWithPrefix(r, apiBase)
	api.Use(middleware.Propagate(cookies, infra.Events, cookieOpt))
	{
		// Presence (anonymous allowed)
		api.POST("/presence/:subject/ping", h.PingPresence)
		api.GET("/presence/:subject", h.PresenceCount)
		api.GET(routeStream, h.PresenceStream)
		api.GET("/presence", h.PresenceCounts)

		// Guest completions
		api.POST("/guest/completions", ipRL.Handler(), h.RecordGuestCompletion)
	}

	authed := api.Group("", middleware.RequireUser())
	{
		// Smart links
		authed.POST("/smart-links", h.CreateSmartLink)
		authed.GET("/invites/limit", h.InviteLimit)

		// Rewards
		authed.POST("/rewards/grant", h.GrantReward)
		authed.GET("/rewards/ledger", h.ListLedger)

		// XP
		authed.POST(routeXPTrack, h.TrackXP)
		authed.GET("/xp/balance", h.XPBalance)

		// Sign-in completion and referrals
		authed.POST(routeAuthComplete, h.CompleteSignIn)
		authed.GET("/referrals", h.ListReferrals)
	}
	return nil
}

// healthHandler reports liveness plus dependency state. Only the database
// decides the status code; a degraded ephemeral store leaves the service
// serving with fail-open presence and quotas.
func healthHandler(db *gorm.DB, store *ephemeral.Adapter) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, code := "ok", http.StatusOK
		dbState := "ok"
		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			status, code, dbState = "degraded", http.StatusServiceUnavailable, "down"
		}

		storeState := "ok"
		switch {
		case !store.Configured():
			storeState = "disabled"
		case !store.IsHealthy():
			storeState = "degraded"
		}
		c.JSON(code, gin.H{"status": status, "db": dbState, "ephemeral": storeState})
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}

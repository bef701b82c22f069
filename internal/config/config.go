// Package config loads process configuration from the environment.
//
// Unset variables take their defaults. A variable that is set but cannot be
// parsed is an error rather than a silent fallback, and Load reports every
// problem at once. The reward policy catalog lives in a separate optional
// TOML or YAML file (see policies.go).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "growth-loop-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects and locates the relational store.
type DBConfig struct {
	Driver string // sqlite|postgres
	Path   string // SQLite file path
	URL    string // Postgres DSN
}

// SmartLinkConfig controls link signing and attribution cookies.
type SmartLinkConfig struct {
	Secret        string        // SMART_LINK_SECRET; also keys the attribution cookie
	TTL           time.Duration // default link lifetime
	PublicBaseURL string        // prefix for issued URLs, e.g. "https://app.example.com"
	CookieSecure  bool          // Secure attribute on attribution cookies
}

// PresenceConfig defines presence set TTL and push channel cadence.
type PresenceConfig struct {
	TTL          time.Duration
	PollInterval time.Duration
	KeepAlive    time.Duration
}

// AnalyticsConfig selects the fire-and-forget analytics sink.
type AnalyticsConfig struct {
	Sink         string   // log|http|kafka
	IngestURL    string   // http sink target
	KafkaBrokers []string // kafka sink brokers
	KafkaTopic   string
	QueueSize    int
	Timeout      time.Duration // per-publish deadline
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Storage
	DB       DBConfig
	RedisURL string // optional; empty disables presence and invite counters gracefully

	// Growth
	SmartLink        SmartLinkConfig
	DailyInviteLimit int
	Presence         PresenceConfig
	RewardPolicyFile string // optional TOML/YAML catalog
	AuthJWTSecret    string // HS256 secret; empty trusts X-User-ID (development)

	// Analytics
	Analytics AnalyticsConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// Load reads the environment, applies defaults and normalization, and
// validates the result. The returned Config is populated even on error so
// callers can still configure logging before exiting.
func Load() (Config, error) {
	var e env
	cfg := Config{
		Port:              e.str("PORT", "8080"),
		ReadTimeout:       e.dur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: e.dur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      e.dur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       e.dur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    e.int("MAX_HEADER_BYTES", 1<<20),
		GinMode:           ginMode(e.str("GIN_MODE", "release")),

		LogLevel:       logLevel(e.str("LOG_LEVEL", "info")),
		LogPretty:      e.bool("LOG_PRETTY", false),
		SwaggerEnabled: e.bool("SWAGGER_ENABLED", false),
		APIBasePath:    basePath(e.str("API_BASE_PATH", "/api/v1")),

		DB: DBConfig{
			Driver: strings.ToLower(e.str("DB_DRIVER", "sqlite")),
			Path:   e.str("DB_PATH", "app.db"),
			URL:    e.str("DATABASE_URL", ""),
		},
		RedisURL: e.str("REDIS_URL", ""),

		SmartLink: SmartLinkConfig{
			Secret:        e.str("SMART_LINK_SECRET", ""),
			TTL:           e.dur("SMART_LINK_TTL", 7*24*time.Hour),
			PublicBaseURL: strings.TrimRight(e.str("PUBLIC_BASE_URL", ""), "/"),
			CookieSecure:  e.bool("COOKIE_SECURE", false),
		},
		DailyInviteLimit: e.int("DAILY_INVITE_LIMIT", 20),
		Presence: PresenceConfig{
			TTL:          e.dur("PRESENCE_TTL", 30*time.Second),
			PollInterval: e.dur("PRESENCE_POLL_INTERVAL", 2500*time.Millisecond),
			KeepAlive:    e.dur("PRESENCE_KEEPALIVE", 15*time.Second),
		},
		RewardPolicyFile: e.str("REWARD_POLICY_FILE", ""),
		AuthJWTSecret:    e.str("AUTH_JWT_SECRET", ""),

		Analytics: AnalyticsConfig{
			Sink:         strings.ToLower(e.str("ANALYTICS_SINK", "log")),
			IngestURL:    e.str("ANALYTICS_INGEST_URL", ""),
			KafkaBrokers: e.list("ANALYTICS_KAFKA_BROKERS"),
			KafkaTopic:   e.str("ANALYTICS_KAFKA_TOPIC", "growth.events"),
			QueueSize:    e.int("ANALYTICS_QUEUE_SIZE", 1024),
			Timeout:      e.dur("ANALYTICS_TIMEOUT", 150*time.Millisecond),
		},

		RateRPS:   e.float("RATE_RPS", 5),
		RateBurst: e.int("RATE_BURST", 10),

		CORS: CORSConfig{AllowedOrigins: e.list("CORS_ALLOWED_ORIGINS")},
		Security: SecurityConfig{
			EnableHSTS: e.bool("ENABLE_HSTS", false),
			HSTSMaxAge: e.dur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		IdempotencyTTL: e.dur("IDEMPOTENCY_TTL", 24*time.Hour),

		OTEL: OTELConfig{
			Enabled:     e.bool("OTEL_ENABLED", false),
			Endpoint:    e.str("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    e.bool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: e.str("OTEL_SERVICE_NAME", "growth-loop-backend"),
			SampleRatio: e.float("OTEL_TRACES_SAMPLER_ARG", 1),
		},
	}
	return cfg, errors.Join(append(e.errs, cfg.validate()...)...)
}

// validate returns one error per violated constraint.
func (c Config) validate() []error {
	var errs []error
	check := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, errors.New(msg))
		}
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL %q is not one of debug, info, warn, error, fatal, panic", c.LogLevel))
	}
	check(strings.TrimSpace(c.Port) != "", "PORT must not be empty")
	check(c.ReadTimeout > 0 && c.ReadHeaderTimeout > 0 && c.WriteTimeout > 0 && c.IdleTimeout > 0,
		"server timeouts must be positive")
	check(c.MaxHeaderBytes > 0, "MAX_HEADER_BYTES must be > 0")

	switch c.DB.Driver {
	case "sqlite":
		check(strings.TrimSpace(c.DB.Path) != "", "DB_PATH must not be empty")
	case "postgres":
		check(strings.TrimSpace(c.DB.URL) != "", "DATABASE_URL is required when DB_DRIVER=postgres")
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER %q is not one of sqlite, postgres", c.DB.Driver))
	}

	check(len(c.SmartLink.Secret) >= 16, "SMART_LINK_SECRET must be at least 16 bytes")
	check(c.SmartLink.TTL > 0, "SMART_LINK_TTL must be > 0")
	check(c.DailyInviteLimit >= 1, "DAILY_INVITE_LIMIT must be >= 1")
	check(c.Presence.TTL > 0 && c.Presence.PollInterval > 0 && c.Presence.KeepAlive > 0,
		"PRESENCE_* durations must be positive")

	switch c.Analytics.Sink {
	case "log":
	case "http":
		check(c.Analytics.IngestURL != "", "ANALYTICS_INGEST_URL is required when ANALYTICS_SINK=http")
	case "kafka":
		check(len(c.Analytics.KafkaBrokers) > 0 && c.Analytics.KafkaTopic != "",
			"ANALYTICS_KAFKA_BROKERS and ANALYTICS_KAFKA_TOPIC are required when ANALYTICS_SINK=kafka")
	default:
		errs = append(errs, fmt.Errorf("ANALYTICS_SINK %q is not one of log, http, kafka", c.Analytics.Sink))
	}
	check(c.Analytics.QueueSize >= 1, "ANALYTICS_QUEUE_SIZE must be >= 1")
	check(c.Analytics.Timeout > 0, "ANALYTICS_TIMEOUT must be > 0")

	check(c.RateRPS >= 0, "RATE_RPS must be >= 0")
	check(c.RateBurst >= 1, "RATE_BURST must be >= 1")
	check(c.Security.HSTSMaxAge >= 0, "HSTS_MAX_AGE must be >= 0")
	check(c.IdempotencyTTL > 0, "IDEMPOTENCY_TTL must be > 0")
	check(c.OTEL.SampleRatio >= 0 && c.OTEL.SampleRatio <= 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	return errs
}

// env reads typed variables and records malformed ones.
type env struct{ errs []error }

func (e *env) lookup(k string) (string, bool) {
	v, ok := os.LookupEnv(k)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *env) fail(k, v, kind string) {
	e.errs = append(e.errs, fmt.Errorf("%s=%q is not a valid %s", k, v, kind))
}

func (e *env) str(k, def string) string {
	if v, ok := e.lookup(k); ok {
		return v
	}
	return def
}

func (e *env) int(k string, def int) int {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(k, v, "integer")
		return def
	}
	return n
}

func (e *env) float(k string, def float64) float64 {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(k, v, "number")
		return def
	}
	return f
}

func (e *env) dur(k string, def time.Duration) time.Duration {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(k, v, "duration")
		return def
	}
	return d
}

func (e *env) bool(k string, def bool) bool {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	}
	e.fail(k, v, "boolean")
	return def
}

// list splits a comma-separated variable, dropping blanks.
func (e *env) list(k string) []string {
	v, ok := e.lookup(k)
	if !ok {
		return nil
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func ginMode(v string) string {
	switch v = strings.ToLower(v); v {
	case "debug", "test":
		return v
	default:
		return "release"
	}
}

func logLevel(v string) string {
	if v = strings.ToLower(v); v == "warning" {
		return "warn"
	}
	return v
}

// basePath returns p with one leading slash and no trailing slash; blank is "/".
func basePath(p string) string {
	return "/" + strings.Trim(strings.TrimSpace(p), "/")
}

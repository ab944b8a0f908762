// Package config loads all runtime configuration from environment variables.
// The returned Config is built once at process start and passed by value or
// pointer into constructors; nothing in business logic reads the environment.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"
)

// MinBcryptCost is the lowest bcrypt cost accepted for password hashing.
const MinBcryptCost = 10

// Config holds all runtime configuration for Confera.
type Config struct {
	HTTP      HTTPConfig
	DB        DBConfig
	Log       LogConfig
	JWT       JWTConfig
	Google    GoogleConfig
	App       AppConfig
	Mail      MailConfig
	RateLimit RateLimitConfig
	Worker    WorkerConfig
	OTel      OTelConfig
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int
	// TrustedProxies are the peers whose X-Forwarded-For entries are believed
	// when resolving the client IP. Empty means the TCP peer is the client.
	TrustedProxies []netip.Prefix
}

// DBConfig holds database connection configuration.
type DBConfig struct {
	Driver   string // "sqlite" (default) or "postgres"
	DSN      string // required when Driver == "postgres"
	File     string // SQLite database file path (default: "confera.db")
	MaxConns int    // Postgres only
}

// LogConfig controls structured logging output.
type LogConfig struct {
	Level  string
	Format string
}

// JWTConfig holds the two independent signing secrets and token lifetimes.
type JWTConfig struct {
	AccessSecret  string //nolint:gosec // intentional: holds JWT signing secret loaded from env
	RefreshSecret string //nolint:gosec // intentional: holds JWT signing secret loaded from env
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// GoogleConfig holds Google sign-in settings. An empty ClientID disables it.
type GoogleConfig struct {
	ClientID string
	JWKSURL  string
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Env               string // "production" enables secure cross-site cookies
	FrontendURL       string
	BcryptCost        int
	SeedAdminEmail    string
	SeedAdminPassword string //nolint:gosec // intentional: seed credential loaded from env
	SeedOrgName       string
}

// Production reports whether the service runs with production cookie flags.
func (a AppConfig) Production() bool {
	return strings.EqualFold(a.Env, "production")
}

// MailConfig holds outbound mail settings. An empty SMTPAddr logs mail instead.
type MailConfig struct {
	SMTPAddr     string
	SMTPUsername string
	SMTPPassword string //nolint:gosec // intentional: SMTP credential loaded from env
	From         string
}

// RateLimitConfig bounds unauthenticated auth requests per client IP.
type RateLimitConfig struct {
	PerSecond float64
	Burst     int
}

// WorkerConfig holds background worker settings.
type WorkerConfig struct {
	Concurrency int
}

// OTelConfig holds OpenTelemetry exporter settings.
type OTelConfig struct {
	OTLPEndpoint string
}

// Load reads configuration from environment variables, applies defaults,
// and returns an error if any required field is absent or malformed.
func Load() (*Config, error) {
	cfg := &Config{}

	// HTTP
	cfg.HTTP.Port = envInt("HTTP_PORT", 8080)
	proxies, err := ParsePrefixes(os.Getenv("TRUSTED_PROXY_CIDRS"))
	if err != nil {
		return nil, fmt.Errorf("TRUSTED_PROXY_CIDRS: %w", err)
	}
	cfg.HTTP.TrustedProxies = proxies

	// DB
	cfg.DB.Driver = envStr("DB_DRIVER", "sqlite")
	cfg.DB.File = envStr("DB_FILE", "confera.db")
	cfg.DB.DSN = os.Getenv("DB_DSN")
	if cfg.DB.Driver == "postgres" && cfg.DB.DSN == "" {
		return nil, errors.New("DB_DSN is required when DB_DRIVER=postgres")
	}
	cfg.DB.MaxConns = envInt("DB_MAX_CONNS", 25)

	// Log
	cfg.Log.Level = envStr("LOG_LEVEL", "info")
	cfg.Log.Format = envStr("LOG_FORMAT", "json")

	// JWT (secrets required)
	cfg.JWT.AccessSecret = os.Getenv("JWT_ACCESS_SECRET")
	if cfg.JWT.AccessSecret == "" {
		return nil, errors.New("JWT_ACCESS_SECRET is required")
	}
	cfg.JWT.RefreshSecret = os.Getenv("JWT_REFRESH_SECRET")
	if cfg.JWT.RefreshSecret == "" {
		return nil, errors.New("JWT_REFRESH_SECRET is required")
	}
	if cfg.JWT.AccessSecret == cfg.JWT.RefreshSecret {
		return nil, errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}
	cfg.JWT.AccessTTL, err = envDuration("JWT_ACCESS_EXPIRATION", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("JWT_ACCESS_EXPIRATION: %w", err)
	}
	cfg.JWT.RefreshTTL, err = envDuration("JWT_REFRESH_EXPIRATION", 7*24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("JWT_REFRESH_EXPIRATION: %w", err)
	}

	// Google
	cfg.Google.ClientID = os.Getenv("GOOGLE_CLIENT_ID")
	cfg.Google.JWKSURL = envStr("GOOGLE_JWKS_URL", "https://www.googleapis.com/oauth2/v3/certs")

	// App
	cfg.App.Env = envStr("APP_ENV", envStr("NODE_ENV", "development"))
	cfg.App.FrontendURL = strings.TrimRight(envStr("FRONTEND_URL", "http://localhost:5173"), "/")
	cfg.App.BcryptCost = envInt("BCRYPT_COST", MinBcryptCost)
	if cfg.App.BcryptCost < MinBcryptCost {
		return nil, fmt.Errorf("BCRYPT_COST must be at least %d", MinBcryptCost)
	}
	cfg.App.SeedAdminEmail = os.Getenv("SEED_ADMIN_EMAIL")
	cfg.App.SeedAdminPassword = os.Getenv("SEED_ADMIN_PASSWORD")
	cfg.App.SeedOrgName = envStr("SEED_ORG_NAME", "Confera")

	// Mail
	cfg.Mail.SMTPAddr = os.Getenv("SMTP_ADDR")
	cfg.Mail.SMTPUsername = os.Getenv("SMTP_USERNAME")
	cfg.Mail.SMTPPassword = os.Getenv("SMTP_PASSWORD")
	cfg.Mail.From = envStr("MAIL_FROM", "Confera <no-reply@confera.local>")

	// Rate limit
	cfg.RateLimit.PerSecond = envFloat("AUTH_RATE_LIMIT_RPS", 5)
	cfg.RateLimit.Burst = envInt("AUTH_RATE_LIMIT_BURST", 10)

	// Worker
	cfg.Worker.Concurrency = envInt("WORKER_CONCURRENCY", 10)

	// OTel
	cfg.OTel.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")

	return cfg, nil
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", v, err)
	}
	return d, nil
}

// ParseDuration extends time.ParseDuration with a whole-day suffix, so that
// values such as "7d" are accepted alongside "15m" or "168h".
func ParseDuration(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if days, ok := strings.CutSuffix(v, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("parse days: %w", err)
		}
		if n <= 0 {
			return 0, errors.New("duration must be positive")
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, errors.New("duration must be positive")
	}
	return d, nil
}

// ParsePrefixes parses a comma-separated list of CIDRs. A bare address is
// taken as a single-host prefix.
func ParsePrefixes(v string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if p, err := netip.ParsePrefix(part); err == nil {
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(part)
		if err != nil {
			return nil, fmt.Errorf("invalid CIDR or address %q", part)
		}
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

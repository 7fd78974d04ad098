package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Backends for codes, access tokens and SSO sessions.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Signing modes for session tokens, id_tokens and signed responses.
const (
	SigningRS256 = "rs256"
	SigningHS256 = "hs256"
)

type Config struct {
	Issuer string // Issuer claim on everything the server signs (default: http://localhost:8080)

	DatabaseFile     string // Path to the SQLite database file (default: authz.db)
	PepperFile       string // Path to the password hashing pepper (default: pepper)
	EphemeralBackend string // Where codes, tokens and sessions live: sqlite or redis (default: sqlite)
	RedisAddr        string // Required when EphemeralBackend is redis
	RedisUsername    string
	RedisPassword    string
	RedisDB          int
	RedisKeyPrefix   string // (default: authz:)
	SeedFile         string // Optional YAML file with clients and users applied at startup

	SigningMode       string        // rs256 or hs256 (default: rs256)
	SigningKeyFile    string        // Optional PEM RSA private key; generated when empty
	SigningSecret     string        // HS256 secret, at least 32 bytes
	RSABits           int           // Size of generated RSA keys (default: 2048)
	KeyRotationEvery  time.Duration // Rotate generated RSA keys this often; 0 disables (default: 0)
	KeyRetention      time.Duration // How long retired keys stay published (default: 24h)
	TrustedJWKSURL    string        // Optional JWKS of another issuer whose session tokens are accepted
	TrustedIssuer     string        // Issuer expected on those tokens
	VerifyLeeway      time.Duration // Clock skew allowed when checking exp (default: 30s)
	CodeTTL           time.Duration // (default: 5m)
	AccessTokenTTL    time.Duration // (default: 1h)
	RefreshTokenTTL   time.Duration // (default: 720h)
	SessionTTL        time.Duration // (default: 12h)
	CookieSecure      bool          // Mark the session cookie Secure (default: false in dev, true otherwise)
	MetricsEnabled    bool          // Serve /metrics (default: true)
	Env               string        // Environment (dev, staging, prod) (default: dev)
	LogLevel          string        // Log level (debug, info, warn, error) (default: info)
	LogFormat         string        // Log format (json, text) (default: json)
	Port              int           // HTTP server port (default: 8080)
	ShutdownGrace     time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingEvery time.Duration // Housekeeping interval (default: 1m)
}

// LoadConfig reads the configuration from AUTHZ_* environment variables.
// A .env file in the working directory is loaded first when present;
// variables already set in the environment win.
func LoadConfig() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("could not load .env file", "error", err)
	}

	env := getEnvOrDefault("AUTHZ_ENV", "dev")
	cfg := Config{
		Issuer: getEnvOrDefault("AUTHZ_ISSUER", "http://localhost:8080"),

		DatabaseFile:     getEnvOrDefault("AUTHZ_DATABASE_FILE", "authz.db"),
		PepperFile:       getEnvOrDefault("AUTHZ_PEPPER_FILE", "pepper"),
		EphemeralBackend: strings.ToLower(getEnvOrDefault("AUTHZ_EPHEMERAL_BACKEND", BackendSQLite)),
		RedisAddr:        os.Getenv("AUTHZ_REDIS_ADDR"),
		RedisUsername:    os.Getenv("AUTHZ_REDIS_USERNAME"),
		RedisPassword:    os.Getenv("AUTHZ_REDIS_PASSWORD"),
		RedisDB:          getEnvIntOrDefault("AUTHZ_REDIS_DB", 0),
		RedisKeyPrefix:   getEnvOrDefault("AUTHZ_REDIS_KEY_PREFIX", "authz:"),
		SeedFile:         os.Getenv("AUTHZ_SEED_FILE"),

		SigningMode:       strings.ToLower(getEnvOrDefault("AUTHZ_SIGNING_MODE", SigningRS256)),
		SigningKeyFile:    os.Getenv("AUTHZ_SIGNING_KEY_FILE"),
		SigningSecret:     os.Getenv("AUTHZ_SIGNING_SECRET"),
		RSABits:           getEnvIntOrDefault("AUTHZ_RSA_BITS", 0),
		KeyRotationEvery:  getEnvDurationOrDefault("AUTHZ_KEY_ROTATION_INTERVAL", 0),
		KeyRetention:      getEnvDurationOrDefault("AUTHZ_KEY_RETENTION", 24*time.Hour),
		TrustedJWKSURL:    os.Getenv("AUTHZ_TRUSTED_JWKS_URL"),
		TrustedIssuer:     os.Getenv("AUTHZ_TRUSTED_ISSUER"),
		VerifyLeeway:      getEnvDurationOrDefault("AUTHZ_VERIFY_LEEWAY", 30*time.Second),
		CodeTTL:           getEnvDurationOrDefault("AUTHZ_CODE_TTL", 5*time.Minute),
		AccessTokenTTL:    getEnvDurationOrDefault("AUTHZ_ACCESS_TOKEN_TTL", time.Hour),
		RefreshTokenTTL:   getEnvDurationOrDefault("AUTHZ_REFRESH_TOKEN_TTL", 30*24*time.Hour),
		SessionTTL:        getEnvDurationOrDefault("AUTHZ_SESSION_TTL", 12*time.Hour),
		CookieSecure:      getEnvBoolOrDefault("AUTHZ_COOKIE_SECURE", env != "dev"),
		MetricsEnabled:    getEnvBoolOrDefault("AUTHZ_METRICS_ENABLED", true),
		Env:               env,
		LogLevel:          getEnvOrDefault("AUTHZ_LOG_LEVEL", "info"),
		LogFormat:         getEnvOrDefault("AUTHZ_LOG_FORMAT", "json"),
		Port:              getEnvIntOrDefault("AUTHZ_PORT", 8080),
		ShutdownGrace:     getEnvDurationOrDefault("AUTHZ_SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingEvery: getEnvDurationOrDefault("AUTHZ_HOUSEKEEPING_INTERVAL", time.Minute),
	}

	if cfg.SigningSecret == "" {
		if path := os.Getenv("AUTHZ_SIGNING_SECRET_FILE"); path != "" {
			if raw, err := os.ReadFile(path); err == nil {
				cfg.SigningSecret = strings.TrimSpace(string(raw))
			} else {
				slog.Warn("could not read signing secret file", "path", path, "error", err)
			}
		}
	}

	return cfg
}

// Validate reports configuration that cannot work.
func (c Config) Validate() error {
	var errs []error
	if c.Issuer == "" {
		errs = append(errs, errors.New("AUTHZ_ISSUER must not be empty"))
	}
	switch c.EphemeralBackend {
	case BackendSQLite:
	case BackendRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("AUTHZ_REDIS_ADDR is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown AUTHZ_EPHEMERAL_BACKEND %q", c.EphemeralBackend))
	}
	switch c.SigningMode {
	case SigningRS256:
	case SigningHS256:
		if len(c.SigningSecret) < 32 {
			errs = append(errs, errors.New("AUTHZ_SIGNING_SECRET must be at least 32 bytes in hs256 mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown AUTHZ_SIGNING_MODE %q", c.SigningMode))
	}
	if c.TrustedJWKSURL != "" && c.TrustedIssuer == "" {
		errs = append(errs, errors.New("AUTHZ_TRUSTED_ISSUER is required with AUTHZ_TRUSTED_JWKS_URL"))
	}
	return errors.Join(errs...)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are minutes.
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// GoCardless environment names accepted by GOCARDLESS_ENVIRONMENT.
const (
	EnvLive    = "live"
	EnvSandbox = "sandbox"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string

	GoCardlessAccessToken string
	GoCardlessEnvironment string
	GoCardlessBaseURL     string

	CallbackBaseURL string
	SessionTokenTTL time.Duration
	GatewayTimeout  time.Duration
	MigrationsDir   string
}

// Load reads configuration from environment variables and optional .env files.
// Missing gateway credentials are a hard startup failure; no remote call is
// ever attempted with an unconfigured client.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		GoCardlessAccessToken: strings.TrimSpace(k.String("GOCARDLESS_ACCESS_TOKEN")),
		GoCardlessEnvironment: valueOrDefault(strings.ToLower(strings.TrimSpace(k.String("GOCARDLESS_ENVIRONMENT"))), EnvSandbox),
		GoCardlessBaseURL:     strings.TrimSpace(k.String("GOCARDLESS_BASE_URL")),

		CallbackBaseURL: valueOrDefault(strings.TrimSpace(k.String("CALLBACK_BASE_URL")), "http://localhost:8080"),
		SessionTokenTTL: parseDuration(k.String("SESSION_TOKEN_TTL"), "30m"),
		GatewayTimeout:  parseDuration(k.String("GATEWAY_TIMEOUT"), "30s"),
		MigrationsDir:   valueOrDefault(strings.TrimSpace(k.String("MIGRATIONS_DIR")), "migrations"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.GoCardlessAccessToken == "" {
		return nil, errors.New("GOCARDLESS_ACCESS_TOKEN is required")
	}
	if cfg.GoCardlessEnvironment != EnvLive && cfg.GoCardlessEnvironment != EnvSandbox {
		return nil, fmt.Errorf("GOCARDLESS_ENVIRONMENT must be %q or %q, got %q", EnvLive, EnvSandbox, cfg.GoCardlessEnvironment)
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Package config loads process configuration from the environment,
// optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/authgate/internal/logger"
	"github.com/joho/godotenv"
)

// requiredVars must be present; startup fails listing every missing one.
var requiredVars = []string{
	"DATABASE_URL",
	"REDIS_URL",
	"SMTP_HOST",
	"SMTP_PORT",
	"SMTP_USER",
	"SMTP_PASSWORD",
	"MAIL_FROM",
}

// SMTP holds outbound mail settings.
type SMTP struct {
	Host     string
	Port     int
	User     string
	Password string
	Secure   bool
	From     string
}

// Config is the runtime configuration of the authgate server.
type Config struct {
	Port              int
	CORSOrigins       []string
	DatabaseURL       string
	RedisURL          string
	SMTP              SMTP
	AuthSecret        string
	LogLevel          slog.Level
	CookieSecure      bool
	TrustProxyHeaders bool
	OTPBackend        string
	AutoMigrate       bool
	ShutdownTimeout   time.Duration
}

// Load reads path (when non-empty and present) into the environment
// without overriding variables that are already set, then builds Config.
func Load(path string) (Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", path, err)
		}
	}
	return FromEnv()
}

// FromEnv builds Config from the current environment.
func FromEnv() (Config, error) {
	var missing []string
	for _, key := range requiredVars {
		if strings.TrimSpace(os.Getenv(key)) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required env variables: %s", strings.Join(missing, ", "))
	}

	smtpPort, err := strconv.Atoi(os.Getenv("SMTP_PORT"))
	if err != nil || smtpPort <= 0 || smtpPort > 65535 {
		return Config{}, fmt.Errorf("invalid SMTP_PORT %q", os.Getenv("SMTP_PORT"))
	}

	cfg := Config{
		Port:        getInt("PORT", 3000),
		CORSOrigins: splitList(getString("CORS_ORIGIN", "http://localhost:3001")),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		SMTP: SMTP{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     smtpPort,
			User:     os.Getenv("SMTP_USER"),
			Password: os.Getenv("SMTP_PASSWORD"),
			Secure:   getBool("SMTP_SECURE", false),
			From:     os.Getenv("MAIL_FROM"),
		},
		AuthSecret:        getString("AUTH_SECRET", ""),
		LogLevel:          logger.ParseLevel(getString("LOG_LEVEL", "info")),
		CookieSecure:      getBool("COOKIE_SECURE", false),
		TrustProxyHeaders: getBool("TRUST_PROXY_HEADERS", false),
		OTPBackend:        getString("OTP_BACKEND", "redis"),
		AutoMigrate:       getBool("AUTO_MIGRATE", true),
		ShutdownTimeout:   time.Duration(getInt("SHUTDOWN_TIMEOUT_SECONDS", 10)) * time.Second,
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return Config{}, fmt.Errorf("invalid PORT %d", cfg.Port)
	}
	if cfg.AuthSecret != "" && len(cfg.AuthSecret) < 32 {
		return Config{}, errors.New("AUTH_SECRET must be at least 32 bytes")
	}
	switch cfg.OTPBackend {
	case "redis", "database":
	default:
		return Config{}, fmt.Errorf("invalid OTP_BACKEND %q", cfg.OTPBackend)
	}
	return cfg, nil
}

// Addr is the listen address for Port.
func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

func getString(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			slog.Warn("invalid integer env value", slog.String("key", key), slog.String("error", err.Error()))
			return fallback
		}
		return parsed
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			slog.Warn("invalid boolean env value", slog.String("key", key), slog.String("error", err.Error()))
			return fallback
		}
		return parsed
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

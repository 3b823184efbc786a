package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/amiralifaghihirad/Project-ECM/internal/domain"
	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

const maxQueueSize = 4096

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8080"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	DefaultRole          string `env:"DEFAULT_ROLE" default:"viewer"`
	OutboundQueueSize    int    `env:"OUTBOUND_QUEUE_SIZE" default:"16"`
	SlowViewerEvictAfter int    `env:"SLOW_VIEWER_EVICT_AFTER" default:"64"`
	MaxMessageBytes      int64  `env:"MAX_MESSAGE_BYTES" default:"4096"`
	PrimaryField         string `env:"PRIMARY_FIELD" default:"temp"`
	RecentWindowSize     int    `env:"RECENT_WINDOW_SIZE" default:"20"`

	MaxConnections      int     `env:"MAX_CONNECTIONS" default:"10000"`
	MaxConnectionsPerIP int     `env:"MAX_CONNECTIONS_PER_IP" default:"100"`
	ConnectionRate      float64 `env:"CONNECTION_RATE" default:"10"`
	ConnectionBurst     int     `env:"CONNECTION_BURST" default:"20"`
	IngestRate          float64 `env:"INGEST_RATE" default:"50"`
	IngestBurst         int     `env:"INGEST_BURST" default:"100"`

	// AllowedOrigins is a comma-separated list of browser origins allowed to open WebSockets.
	AllowedOrigins string `env:"ALLOWED_ORIGINS"`

	// RedisURL enables the Redis ingest source when set.
	RedisURL     string `env:"REDIS_URL"`
	RedisChannel string `env:"REDIS_CHANNEL" default:"telemetry:readings"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" default:"10s"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// Role returns DefaultRole parsed. validate guarantees it is a known role.
func (c *Config) Role() domain.Role {
	role, _ := domain.ParseRole(c.DefaultRole)
	return role
}

// Origins splits AllowedOrigins into trimmed, non-empty entries.
func (c *Config) Origins() []string {
	var origins []string
	for _, origin := range strings.Split(c.AllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

func validate(cfg *Config) error {
	if _, err := domain.ParseRole(cfg.DefaultRole); err != nil {
		return fmt.Errorf("DEFAULT_ROLE: %w", err)
	}

	if cfg.OutboundQueueSize < 1 || cfg.OutboundQueueSize > maxQueueSize {
		return fmt.Errorf("OUTBOUND_QUEUE_SIZE must be between 1 and %d, got %d", maxQueueSize, cfg.OutboundQueueSize)
	}
	if cfg.SlowViewerEvictAfter < 0 {
		return errors.New("SLOW_VIEWER_EVICT_AFTER must not be negative")
	}
	if cfg.MaxMessageBytes < 1 {
		return errors.New("MAX_MESSAGE_BYTES must be positive")
	}
	if cfg.RecentWindowSize < 0 {
		return errors.New("RECENT_WINDOW_SIZE must not be negative")
	}
	if cfg.ConnectionRate < 0 || cfg.IngestRate < 0 {
		return errors.New("CONNECTION_RATE and INGEST_RATE must not be negative")
	}
	if cfg.ShutdownTimeout <= 0 {
		return errors.New("SHUTDOWN_TIMEOUT must be positive")
	}

	if cfg.RedisURL != "" {
		if _, err := url.Parse(cfg.RedisURL); err != nil {
			return fmt.Errorf("REDIS_URL is not a valid URL: %w", err)
		}
		if cfg.RedisChannel == "" {
			return errors.New("REDIS_CHANNEL is required when REDIS_URL is set")
		}
	}

	if cfg.AppEnv == "production" {
		for _, origin := range cfg.Origins() {
			if origin == "*" {
				return errors.New("ALLOWED_ORIGINS must not contain * in production")
			}
		}
	}

	return nil
}

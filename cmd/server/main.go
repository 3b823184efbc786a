package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/amiralifaghihirad/Project-ECM/internal/adapter/httpserver"
	"github.com/amiralifaghihirad/Project-ECM/internal/adapter/metrics"
	redisadapter "github.com/amiralifaghihirad/Project-ECM/internal/adapter/redis"
	wsadapter "github.com/amiralifaghihirad/Project-ECM/internal/adapter/websocket"
	"github.com/amiralifaghihirad/Project-ECM/internal/broadcast"
	"github.com/amiralifaghihirad/Project-ECM/internal/platform/config"
	"github.com/amiralifaghihirad/Project-ECM/internal/platform/logging"
	"github.com/amiralifaghihirad/Project-ECM/internal/platform/version"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
)

const shutdownReason = "server shutting down"

func runGracefulShutdown(srv *httpserver.Server, hub *broadcast.Hub, stopIngest context.CancelFunc, cfg *config.Config) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		stopIngest()
		hub.Shutdown(shutdownReason)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		close(done)
	}()

	return done
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupRedis(ctx context.Context, cfg *config.Config, redisMetrics *metrics.RedisMetrics) *goredis.Client {
	client, err := redisadapter.NewClient(ctx, cfg.RedisURL, redisMetrics)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", version.Get())

	registry := metrics.NewRegistry()
	relayMetrics := metrics.NewRelayMetrics(registry)
	wsMetrics := metrics.NewWebSocketMetrics(registry)
	httpMetrics := metrics.NewHTTPMetrics(registry)

	connections := broadcast.NewRegistry()
	relay := broadcast.NewRelay(connections, clock, relayMetrics, broadcast.RelayConfig{
		PrimaryField: cfg.PrimaryField,
		EvictAfter:   cfg.SlowViewerEvictAfter,
		WindowSize:   cfg.RecentWindowSize,
	})
	hub := broadcast.NewHub(connections, relay, clock, wsMetrics, broadcast.HubConfig{
		QueueSize:       cfg.OutboundQueueSize,
		MaxMessageBytes: cfg.MaxMessageBytes,
	})

	limits := wsadapter.NewConnectionLimits(wsadapter.LimitsConfig{
		MaxConnections:      cfg.MaxConnections,
		MaxConnectionsPerIP: cfg.MaxConnectionsPerIP,
		ConnectionsPerSec:   cfg.ConnectionRate,
		Burst:               cfg.ConnectionBurst,
	}, clock)
	wsHandler := wsadapter.NewHandler(hub, limits, wsMetrics, wsadapter.HandlerConfig{
		DefaultRole:    cfg.Role(),
		AllowedOrigins: cfg.Origins(),
		Development:    cfg.IsDevelopment(),
	})

	ingestCtx, stopIngest := context.WithCancel(context.Background())
	defer stopIngest()

	var healthChecks []httpserver.HealthCheck
	if cfg.RedisURL != "" {
		redisMetrics := metrics.NewRedisMetrics(registry)
		redisClient := setupRedis(ingestCtx, cfg, redisMetrics)
		defer func() { _ = redisClient.Close() }()

		source := redisadapter.NewSource(redisClient, cfg.RedisChannel, relay, redisMetrics)
		healthChecks = append(healthChecks,
			httpserver.HealthCheck{Name: "redis", Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
			httpserver.HealthCheck{Name: "redis_subscription", Check: source.Check},
		)

		go func() {
			if err := source.Run(ingestCtx); err != nil {
				slog.Error("Redis ingest stopped", "channel", cfg.RedisChannel, "error", err)
			}
		}()
	}

	srv := httpserver.NewServer(cfg, relay, wsHandler, metrics.Handler(registry), httpMetrics, healthChecks)

	done := runGracefulShutdown(srv, hub, stopIngest, cfg)

	if err := srv.Start(); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}

// Package httpserver exposes the relay over HTTP: WebSocket endpoints,
// HTTP ingest, stats, health probes and Prometheus metrics.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/amiralifaghihirad/Project-ECM/internal/adapter/metrics"
	"github.com/amiralifaghihirad/Project-ECM/internal/broadcast"
	"github.com/amiralifaghihirad/Project-ECM/internal/domain"
	"github.com/amiralifaghihirad/Project-ECM/internal/platform/config"
	"github.com/labstack/echo/v4"
)

type relayService interface {
	domain.Publisher
	Stats() broadcast.Stats
}

type websocketHandler interface {
	Connect(fixed domain.Role) echo.HandlerFunc
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	relay     relayService
	websocket websocketHandler

	metricsHandler http.Handler
	httpMetrics    *metrics.HTTPMetrics

	healthChecks []HealthCheck
	startTime    time.Time
}

func NewServer(cfg *config.Config, relay relayService, websocket websocketHandler, metricsHandler http.Handler, httpMetrics *metrics.HTTPMetrics, healthChecks []HealthCheck) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:           e,
		config:         cfg,
		relay:          relay,
		websocket:      websocket,
		metricsHandler: metricsHandler,
		httpMetrics:    httpMetrics,
		healthChecks:   healthChecks,
		startTime:      time.Now(),
	}

	srv.registerRoutes()

	return srv
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
// Hijacked WebSocket connections are not tracked by the HTTP server; close
// them through the hub first.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// ServeHTTP lets tests drive the full middleware stack.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

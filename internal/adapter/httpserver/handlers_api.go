package httpserver

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/amiralifaghihirad/Project-ECM/internal/broadcast"
	"github.com/amiralifaghihirad/Project-ECM/internal/domain"
	apperrors "github.com/amiralifaghihirad/Project-ECM/internal/platform/errors"
	"github.com/labstack/echo/v4"
)

func (s *Server) registerAPIRoutes() {
	api := s.echo.Group("/api")

	var ingestMiddleware []echo.MiddlewareFunc
	if s.config.IngestRate > 0 {
		ingestMiddleware = append(ingestMiddleware, newRateLimiter(s.config.IngestRate, s.config.IngestBurst))
	}

	api.POST("/readings", s.handlePostReading, ingestMiddleware...)
	api.GET("/stats", s.handleStats)
}

// handlePostReading publishes one reading for devices that cannot hold a
// WebSocket open. The body uses the same format as producer frames.
func (s *Server) handlePostReading(c echo.Context) error {
	limit := s.config.MaxMessageBytes
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, limit+1))
	if err != nil {
		return apperrors.ValidationError("failed to read request body", err)
	}
	if int64(len(body)) > limit {
		return apperrors.TooLargeError("reading exceeds maximum message size").WithContext("max_bytes", limit)
	}

	report, err := s.relay.Publish(c.Request().Context(), broadcast.SourceHTTP, body)
	if err != nil {
		var parseErr *domain.ParseError
		if errors.As(err, &parseErr) {
			return apperrors.ValidationError("malformed reading", err).WithContext("reason", parseErr.Reason)
		}
		return apperrors.InternalError("failed to publish reading", err)
	}

	if err := c.JSON(http.StatusAccepted, report); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleStats(c echo.Context) error {
	if err := c.JSON(http.StatusOK, s.relay.Stats()); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

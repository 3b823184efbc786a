// Package websocket accepts WebSocket upgrades for the telemetry relay and
// hands the resulting connections to the broadcast hub.
package websocket

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/amiralifaghihirad/Project-ECM/internal/adapter/metrics"
	"github.com/amiralifaghihirad/Project-ECM/internal/broadcast"
	"github.com/amiralifaghihirad/Project-ECM/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	rejectInvalidRole   = "invalid_role"
	rejectUpgradeFailed = "upgrade_failed"
	rejectShuttingDown  = "shutting_down"
)

type HandlerConfig struct {
	// DefaultRole applies when a request on the generic endpoint names no role.
	DefaultRole    domain.Role
	AllowedOrigins []string
	Development    bool
}

// Handler upgrades HTTP requests and serves the resulting connections.
type Handler struct {
	hub         *broadcast.Hub
	limits      *ConnectionLimits
	wsMetrics   *metrics.WebSocketMetrics
	upgrader    websocket.Upgrader
	defaultRole domain.Role
}

func NewHandler(hub *broadcast.Hub, limits *ConnectionLimits, wsMetrics *metrics.WebSocketMetrics, cfg HandlerConfig) *Handler {
	defaultRole := cfg.DefaultRole
	if defaultRole == "" {
		defaultRole = domain.RoleViewer
	}
	return &Handler{
		hub:       hub,
		limits:    limits,
		wsMetrics: wsMetrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     NewCheckOrigin(cfg.AllowedOrigins, cfg.Development),
		},
		defaultRole: defaultRole,
	}
}

// Connect returns the upgrade handler. A non-empty fixed role pins the role
// for the route; otherwise it is taken from the "role" query parameter,
// falling back to the configured default.
//
// The handler blocks for the lifetime of the connection.
func (h *Handler) Connect(fixed domain.Role) echo.HandlerFunc {
	return func(c echo.Context) error {
		role, err := h.resolveRole(fixed, c.QueryParam("role"))
		if err != nil {
			h.wsMetrics.Rejected(rejectInvalidRole)
			return echo.NewHTTPError(http.StatusBadRequest, "role must be producer or viewer").SetInternal(err)
		}

		ip := c.RealIP()
		if ok, reason := h.limits.Acquire(ip); !ok {
			h.wsMetrics.Rejected(string(reason))
			slog.Warn("WebSocket connection refused", "remote_ip", ip, "reason", reason)
			return echo.NewHTTPError(http.StatusTooManyRequests, "connection limit exceeded")
		}
		defer h.limits.Release(ip)

		socket, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			// The upgrader has already written the HTTP error response.
			h.wsMetrics.Rejected(rejectUpgradeFailed)
			slog.Debug("WebSocket upgrade failed", "remote_ip", ip, "error", err)
			return nil
		}

		conn, err := h.hub.Attach(socket, role, ip)
		if err != nil {
			if errors.Is(err, broadcast.ErrHubClosed) {
				h.wsMetrics.Rejected(rejectShuttingDown)
			}
			slog.Warn("WebSocket connection not registered", "remote_ip", ip, "role", role, "error", err)
			return nil
		}

		h.hub.Serve(c.Request().Context(), conn)
		return nil
	}
}

func (h *Handler) resolveRole(fixed domain.Role, requested string) (domain.Role, error) {
	if fixed != "" {
		return fixed, nil
	}
	if requested == "" {
		return h.defaultRole, nil
	}
	return domain.ParseRole(requested)
}

package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/amiralifaghihirad/Project-ECM/internal/adapter/metrics"
	wsadapter "github.com/amiralifaghihirad/Project-ECM/internal/adapter/websocket"
	"github.com/amiralifaghihirad/Project-ECM/internal/broadcast"
	"github.com/amiralifaghihirad/Project-ECM/internal/domain"
	"github.com/amiralifaghihirad/Project-ECM/internal/platform/config"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRelay struct {
	mu        sync.Mutex
	published [][]byte
	sources   []string
	report    domain.BroadcastReport
	err       error
	stats     broadcast.Stats
}

func (m *mockRelay) Publish(_ context.Context, source string, raw []byte) (domain.BroadcastReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, raw)
	m.sources = append(m.sources, source)
	return m.report, m.err
}

func (m *mockRelay) Stats() broadcast.Stats {
	return m.stats
}

type mockWebSocket struct {
	roles []domain.Role
}

func (m *mockWebSocket) Connect(fixed domain.Role) echo.HandlerFunc {
	m.roles = append(m.roles, fixed)
	return func(c echo.Context) error {
		return c.String(http.StatusOK, "ws:"+fixed.String())
	}
}

func testConfig() *config.Config {
	return &config.Config{
		Port:            "0",
		MaxMessageBytes: 256,
		IngestRate:      0,
	}
}

func newTestServer(t *testing.T, relay relayService, opts ...func(*Server)) *Server {
	t.Helper()

	srv := &Server{
		echo:      echo.New(),
		config:    testConfig(),
		relay:     relay,
		websocket: &mockWebSocket{},
		startTime: time.Now(),
	}

	for _, opt := range opts {
		opt(srv)
	}

	srv.registerRoutes()
	return srv
}

func withHealthChecks(checks ...HealthCheck) func(*Server) {
	return func(s *Server) {
		s.healthChecks = checks
	}
}

func withConfig(cfg *config.Config) func(*Server) {
	return func(s *Server) {
		s.config = cfg
	}
}

func withMetrics(reg *metrics.HTTPMetrics, handler http.Handler) func(*Server) {
	return func(s *Server) {
		s.httpMetrics = reg
		s.metricsHandler = handler
	}
}

func serve(srv *Server, method, target string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestRoutes_WebSocketEndpoints(t *testing.T) {
	srv := newTestServer(t, &mockRelay{})

	tests := []struct {
		path string
		want string
	}{
		{"/ws", "ws:"},
		{"/ws/producer", "ws:producer"},
		{"/ws/viewer", "ws:viewer"},
	}
	for _, tt := range tests {
		rec := serve(srv, http.MethodGet, tt.path, "")
		assert.Equal(t, http.StatusOK, rec.Code, tt.path)
		assert.Equal(t, tt.want, rec.Body.String(), tt.path)
	}
}

func TestRoutes_RequestIDHeader(t *testing.T) {
	srv := newTestServer(t, &mockRelay{})

	rec := serve(srv, http.MethodGet, "/health/live", "")
	assert.Len(t, rec.Header().Get(headerRequestID), 8)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set(headerRequestID, "caller-id")
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, "caller-id", rec.Header().Get(headerRequestID))
}

func TestRoutes_SecurityHeaders(t *testing.T) {
	srv := newTestServer(t, &mockRelay{})

	rec := serve(srv, http.MethodGet, "/api/stats", "")

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestRoutes_Metrics(t *testing.T) {
	reg := metrics.NewRegistry()
	httpMetrics := metrics.NewHTTPMetrics(reg)
	srv := newTestServer(t, &mockRelay{}, withMetrics(httpMetrics, metrics.Handler(reg)))

	serve(srv, http.MethodGet, "/api/stats", "")
	rec := serve(srv, http.MethodGet, "/metrics", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `telemetry_http_requests_total{method="GET",route="/api/stats",status_code="200"} 1`)
}

// End to end: a reading POSTed over HTTP reaches a WebSocket viewer.
func TestServer_HTTPIngestReachesViewer(t *testing.T) {
	reg := metrics.NewRegistry()
	wsMetrics := metrics.NewWebSocketMetrics(reg)
	registry := broadcast.NewRegistry()
	relay := broadcast.NewRelay(registry, clockwork.NewRealClock(), metrics.NewRelayMetrics(reg), broadcast.RelayConfig{PrimaryField: "temp", WindowSize: 5})
	hub := broadcast.NewHub(registry, relay, clockwork.NewRealClock(), wsMetrics, broadcast.HubConfig{QueueSize: 8, MaxMessageBytes: 256})
	wsHandler := wsadapter.NewHandler(hub, wsadapter.NewConnectionLimits(wsadapter.LimitsConfig{}, clockwork.NewRealClock()), wsMetrics, wsadapter.HandlerConfig{})

	srv := NewServer(testConfig(), relay, wsHandler, metrics.Handler(reg), metrics.NewHTTPMetrics(reg), nil)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	viewer, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws/viewer", nil)
	require.NoError(t, err)
	t.Cleanup(func() { viewer.Close() })
	require.Eventually(t, func() bool { return registry.Count(domain.RoleViewer) == 1 }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Post(ts.URL+"/api/readings", "application/json", strings.NewReader(`{"temp": 21.5, "gas": 3}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.NoError(t, viewer.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := viewer.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"value":21.5`)
	assert.Contains(t, string(data), `"gas":3`)

	hub.Shutdown("test done")
}

package redis

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/amiralifaghihirad/Project-ECM/internal/adapter/metrics"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failingProcess(calls *int) goredis.ProcessHook {
	return func(context.Context, goredis.Cmder) error {
		*calls++
		return errors.New("connection refused")
	}
}

func TestCircuitBreakerHook_StaysClosedOnSuccess(t *testing.T) {
	hook := newCircuitBreakerHook(nil, 3, time.Minute)
	ctx := context.Background()
	process := hook.ProcessHook(func(context.Context, goredis.Cmder) error { return nil })

	for range 10 {
		require.NoError(t, process(ctx, goredis.NewStatusCmd(ctx, "ping")))
	}
	assert.Equal(t, circuitbreaker.ClosedState, hook.State())
}

func TestCircuitBreakerHook_NilIsNotAFailure(t *testing.T) {
	hook := newCircuitBreakerHook(nil, 1, time.Minute)
	ctx := context.Background()
	process := hook.ProcessHook(func(context.Context, goredis.Cmder) error { return goredis.Nil })

	for range 3 {
		assert.ErrorIs(t, process(ctx, goredis.NewStringCmd(ctx, "get", "missing")), goredis.Nil)
	}
	assert.Equal(t, circuitbreaker.ClosedState, hook.State())
}

func TestCircuitBreakerHook_OpensAndFailsFast(t *testing.T) {
	redisMetrics := metrics.NewRedisMetrics(prometheus.NewRegistry())
	hook := newCircuitBreakerHook(redisMetrics, 3, time.Minute)
	ctx := context.Background()

	calls := 0
	process := hook.ProcessHook(failingProcess(&calls))
	for range 3 {
		assert.Error(t, process(ctx, goredis.NewStatusCmd(ctx, "ping")))
	}
	require.Equal(t, circuitbreaker.OpenState, hook.State())

	cmd := goredis.NewStatusCmd(ctx, "ping")
	err := process(ctx, cmd)
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.ErrorIs(t, cmd.Err(), circuitbreaker.ErrOpen)
	assert.Equal(t, 3, calls, "open breaker must not reach Redis")

	assert.Equal(t, 2.0, testutil.ToFloat64(redisMetrics.BreakerState))
	assert.Equal(t, 1.0, testutil.ToFloat64(redisMetrics.BreakerTransitions.WithLabelValues(circuitbreaker.OpenState.String())))
}

func TestCircuitBreakerHook_DialFailuresOpen(t *testing.T) {
	hook := newCircuitBreakerHook(nil, 2, time.Minute)
	ctx := context.Background()
	dial := hook.DialHook(func(context.Context, string, string) (net.Conn, error) {
		return nil, errors.New("dial tcp: connection refused")
	})

	for range 2 {
		_, err := dial(ctx, "tcp", "127.0.0.1:1")
		assert.Error(t, err)
	}
	_, err := dial(ctx, "tcp", "127.0.0.1:1")
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
}

func TestCircuitBreakerHook_HalfOpenProbeCloses(t *testing.T) {
	hook := newCircuitBreakerHook(nil, 1, 20*time.Millisecond)
	ctx := context.Background()

	calls := 0
	require.Error(t, hook.ProcessHook(failingProcess(&calls))(ctx, goredis.NewStatusCmd(ctx, "ping")))
	require.Equal(t, circuitbreaker.OpenState, hook.State())

	process := hook.ProcessHook(func(context.Context, goredis.Cmder) error { return nil })
	require.Eventually(t, func() bool {
		return process(ctx, goredis.NewStatusCmd(ctx, "ping")) == nil
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, circuitbreaker.ClosedState, hook.State())
}

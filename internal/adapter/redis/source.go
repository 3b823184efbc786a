package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/amiralifaghihirad/Project-ECM/internal/adapter/metrics"
	"github.com/amiralifaghihirad/Project-ECM/internal/broadcast"
	"github.com/amiralifaghihirad/Project-ECM/internal/domain"
	"github.com/amiralifaghihirad/Project-ECM/internal/platform/retry"
	goredis "github.com/redis/go-redis/v9"
)

// ErrNotSubscribed is reported by the readiness check while the subscription is down.
var ErrNotSubscribed = errors.New("redis ingest subscription is not active")

var resubscribePolicy = retry.Policy{
	MaxAttempts:    10,
	InitialBackoff: 250 * time.Millisecond,
	MaxBackoff:     10 * time.Second,
}

// Source subscribes to a Pub/Sub channel and publishes every message through
// the relay as if a producer had sent it. Messages on the channel use the
// producer frame format.
type Source struct {
	rdb       *goredis.Client
	channel   string
	publisher domain.Publisher
	metrics   *metrics.RedisMetrics
	policy    retry.Policy
	active    atomic.Bool
}

func NewSource(rdb *goredis.Client, channel string, publisher domain.Publisher, redisMetrics *metrics.RedisMetrics) *Source {
	return &Source{
		rdb:       rdb,
		channel:   channel,
		publisher: publisher,
		metrics:   redisMetrics,
		policy:    resubscribePolicy,
	}
}

// Run consumes the channel until ctx is cancelled. go-redis reconnects the
// subscription on its own; Run waits for it with backoff and returns an
// error only once reconnection has been given up.
func (s *Source) Run(ctx context.Context) error {
	sub := s.rdb.Subscribe(ctx, s.channel)
	defer func() {
		s.setActive(false)
		_ = sub.Close()
	}()

	if err := s.await(ctx, func() error {
		_, err := sub.Receive(ctx)
		return err
	}); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe to %s: %w", s.channel, err)
	}
	s.setActive(true)
	slog.Info("Redis ingest subscribed", "channel", s.channel)

	for {
		msg, err := sub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			s.setActive(false)
			if s.metrics != nil {
				s.metrics.Resubscribes.Inc()
			}
			slog.Warn("Redis ingest subscription interrupted", "channel", s.channel, "error", err)

			if err := s.await(ctx, func() error { return sub.Ping(ctx) }); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("resubscribe to %s: %w", s.channel, err)
			}
			s.setActive(true)
			slog.Info("Redis ingest resubscribed", "channel", s.channel)
			continue
		}

		// Publish logs and counts malformed payloads itself.
		_, _ = s.publisher.Publish(ctx, broadcast.SourceRedis, []byte(msg.Payload))
	}
}

// Active reports whether the subscription is currently established.
func (s *Source) Active() bool {
	return s.active.Load()
}

// Check is a readiness probe for the subscription.
func (s *Source) Check(context.Context) error {
	if !s.Active() {
		return ErrNotSubscribed
	}
	return nil
}

func (s *Source) await(ctx context.Context, op retry.VoidOperation) error {
	policy := s.policy
	policy.OnRetry = func(attempt int, err error, backoff time.Duration) {
		slog.Warn("Redis ingest not ready, retrying", "channel", s.channel, "attempt", attempt, "backoff", backoff, "error", err)
	}
	return retry.DoVoid(ctx, policy, retry.Transient, op)
}

func (s *Source) setActive(active bool) {
	s.active.Store(active)
	if s.metrics == nil {
		return
	}
	if active {
		s.metrics.SubscriptionActive.Set(1)
	} else {
		s.metrics.SubscriptionActive.Set(0)
	}
}

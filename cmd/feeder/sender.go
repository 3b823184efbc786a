package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	goredis "github.com/redis/go-redis/v9"
)

const (
	transportWebSocket = "websocket"
	transportHTTP      = "http"
	transportRedis     = "redis"

	writeTimeout = 10 * time.Second
)

// Sender delivers one raw reading payload to the relay.
type Sender interface {
	Send(ctx context.Context, payload []byte) error
	Close() error
}

func newSender(ctx context.Context, opts options) (Sender, error) {
	switch opts.transport {
	case transportWebSocket:
		return dialWebSocket(ctx, opts.url)
	case transportHTTP:
		return &httpSender{client: &http.Client{Timeout: writeTimeout}, url: opts.url}, nil
	case transportRedis:
		return dialRedis(ctx, opts.redisURL, opts.channel)
	default:
		return nil, fmt.Errorf("unknown transport %q", opts.transport)
	}
}

type wsSender struct {
	conn *websocket.Conn
}

func dialWebSocket(ctx context.Context, url string) (*wsSender, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &wsSender{conn: conn}, nil
}

func (s *wsSender) Send(_ context.Context, payload []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

func (s *wsSender) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "feeder done")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return s.conn.Close()
}

type httpSender struct {
	client *http.Client
	url    string
}

func (s *httpSender) Send(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("relay answered %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return nil
}

func (s *httpSender) Close() error { return nil }

type redisSender struct {
	rdb     *goredis.Client
	channel string
}

func dialRedis(ctx context.Context, redisURL, channel string) (*redisSender, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("redis transport requires --redis-url or REDIS_URL")
	}
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	rdb := goredis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &redisSender{rdb: rdb, channel: channel}, nil
}

func (s *redisSender) Send(ctx context.Context, payload []byte) error {
	return s.rdb.Publish(ctx, s.channel, payload).Err()
}

func (s *redisSender) Close() error { return s.rdb.Close() }

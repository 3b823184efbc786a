// Command feeder simulates a telemetry device. It sends synthetic readings to
// a relay over a producer WebSocket, the HTTP ingest endpoint, or a Redis channel.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amiralifaghihirad/Project-ECM/internal/platform/logging"
	"github.com/spf13/cobra"
)

type options struct {
	transport string
	url       string
	redisURL  string
	channel   string
	interval  time.Duration
	count     int
	seed      int64
	logLevel  string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := options{}

	cmd := &cobra.Command{
		Use:          "feeder",
		Short:        "Send synthetic sensor readings to a telemetry relay",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.interval <= 0 {
				return errors.New("--interval must be positive")
			}
			logging.InitLogger(opts.logLevel, "text")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sender, err := newSender(ctx, opts)
			if err != nil {
				return err
			}
			defer func() { _ = sender.Close() }()

			return feed(ctx, sender, newGenerator(opts.seed), opts.interval, opts.count)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.transport, "transport", transportWebSocket, "one of websocket, http, redis")
	flags.StringVar(&opts.url, "url", "ws://localhost:8080/ws/producer", "relay producer endpoint (ws:// or http:// depending on transport)")
	flags.StringVar(&opts.redisURL, "redis-url", os.Getenv("REDIS_URL"), "Redis URL for the redis transport (or set REDIS_URL env)")
	flags.StringVar(&opts.channel, "channel", "telemetry:readings", "Redis channel for the redis transport")
	flags.DurationVar(&opts.interval, "interval", time.Second, "delay between readings")
	flags.IntVar(&opts.count, "count", 0, "number of readings to send; 0 sends until interrupted")
	flags.Int64Var(&opts.seed, "seed", time.Now().UnixNano(), "random seed for generated values")
	flags.StringVar(&opts.logLevel, "log-level", "info", "debug, info, warn or error")

	return cmd
}

// feed sends one reading per interval until count readings are sent or ctx ends.
func feed(ctx context.Context, sender Sender, gen *generator, interval time.Duration, count int) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for sent := 0; count <= 0 || sent < count; {
		payload, err := gen.Next()
		if err != nil {
			return fmt.Errorf("generate reading: %w", err)
		}
		if err := sender.Send(ctx, payload); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("send reading %d: %w", sent+1, err)
		}
		sent++
		slog.Debug("Reading sent", "count", sent, "payload", string(payload))

		if count > 0 && sent >= count {
			break
		}
		select {
		case <-ctx.Done():
			slog.Info("Feeder stopped", "sent", sent)
			return nil
		case <-ticker.C:
		}
	}

	slog.Info("Feeder finished", "sent", count)
	return nil
}

// Package settlement delivers token issuance notices to downstream sinks.
//
// Delivery is asynchronous: the Dispatcher queues notices and a worker
// pool hands them to a Sink with per-attempt timeouts and bounded retries.
// A failed delivery never affects the token it describes.
package settlement

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

var (
	ErrQueueFull         = errors.New("settlement: queue full")
	ErrDispatcherStopped = errors.New("settlement: dispatcher stopped")
	ErrDeliveryFailed    = errors.New("settlement: delivery failed")
)

// Sink receives settlement notices. Deliver must honour ctx cancellation.
type Sink interface {
	Deliver(ctx context.Context, n *Notice) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ctx context.Context, n *Notice) error

func (f SinkFunc) Deliver(ctx context.Context, n *Notice) error { return f(ctx, n) }

// MultiSink delivers to every sink in order and joins their errors.
// A Dispatcher retries each member separately, so a retry never repeats
// a delivery that already succeeded. Called directly, Deliver has no
// such memory.
type MultiSink []Sink

func (m MultiSink) Deliver(ctx context.Context, n *Notice) error {
	var errs []error
	for _, s := range m {
		if err := s.Deliver(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes notices to a logger, optionally after a simulated
// settlement latency.
type LogSink struct {
	Logger  *slog.Logger
	Latency time.Duration
}

func (s *LogSink) Deliver(ctx context.Context, n *Notice) error {
	if s.Latency > 0 {
		t := time.NewTimer(s.Latency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}

	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "settlement notice",
		"notice_id", n.ID.String(),
		"token_id", n.TokenID,
		"payer", ShortPayer(n.Payer),
		"paid", n.Paid.String(),
		"tier", n.Tier,
		"endpoint", n.Endpoint,
		"priority", n.Priority,
	)
	return nil
}

// ShortPayer truncates a payer identifier for logging.
func ShortPayer(payer string) string {
	if len(payer) <= 8 {
		return payer
	}
	return payer[:8]
}

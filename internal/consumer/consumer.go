// Package consumer drains the notification queue and applies the idempotent
// event handlers. Multiple consumer processes may share the queue; prefetch=1
// keeps distribution fair and bounds in-flight work to one event per process.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/streadway/amqp"

	"github.com/giaprika/Social-Media-Platform/internal/broker"
	"github.com/giaprika/Social-Media-Platform/internal/models"
	"github.com/giaprika/Social-Media-Platform/pkg/metrics"
)

// Consumer owns the consume loop over the shared broker connection.
type Consumer struct {
	conn          *broker.Connection
	handlers      *Handlers
	logger        *slog.Logger
	metrics       *metrics.Metrics
	prefetch      int
	maxDeliveries int

	started atomic.Bool
	ready   chan struct{}

	// failures counts handler failures per message fingerprint. A plain
	// nack-with-requeue does not advance the broker's x-death counter, so the
	// redelivery ceiling is enforced here. Prefetch=1 means the single consume
	// loop is the only accessor. State is per-process, like the breaker's.
	failures map[uint64]int
}

// New creates a consumer. prefetch defaults to 1 — the contract that makes
// horizontal scaling safe. maxDeliveries bounds redelivery of a failing
// message before it is dead-lettered.
func New(conn *broker.Connection, handlers *Handlers, prefetch, maxDeliveries int, m *metrics.Metrics, logger *slog.Logger) *Consumer {
	if prefetch <= 0 {
		prefetch = 1
	}
	if maxDeliveries <= 0 {
		maxDeliveries = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Consumer{
		conn:          conn,
		handlers:      handlers,
		logger:        logger,
		metrics:       m,
		prefetch:      prefetch,
		maxDeliveries: maxDeliveries,
		ready:         make(chan struct{}, 1),
		failures:      make(map[uint64]int),
	}
	if conn != nil {
		conn.OnReady(c.wake)
	}
	return c
}

// wake interrupts the retry pause so a fresh connection is consumed from
// immediately instead of on the next poll tick.
func (c *Consumer) wake() {
	select {
	case c.ready <- struct{}{}:
	default:
	}
}

// Start runs the consume loop until ctx is cancelled. Duplicate calls are
// no-ops: the loop is registered at most once per process.
func (c *Consumer) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		c.logger.Info("consumer already running")
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		ch, err := c.conn.Channel()
		if err != nil {
			// The connection manager owns reconnection; wait for its ready
			// signal or the next poll tick.
			c.await(ctx, time.Second)
			continue
		}

		if err := c.consume(ctx, ch); err != nil {
			c.logger.Warn("consume loop ended", slog.Any("error", err))
		}
		c.await(ctx, time.Second)
	}
}

// consume registers the loop on the given channel and blocks until the
// deliveries channel closes (connection lost) or ctx is cancelled.
func (c *Consumer) consume(ctx context.Context, ch *amqp.Channel) error {
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return err
	}

	deliveries, err := ch.Consume(
		c.conn.Queue(),
		"",
		false, // autoAck
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	c.logger.Info("consumer started, waiting for messages",
		slog.String("queue", c.conn.Queue()), slog.Int("prefetch", c.prefetch))

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-deliveries:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.handleDelivery(ctx, msg)
		}
	}
}

func (c *Consumer) handleDelivery(ctx context.Context, msg amqp.Delivery) {
	if c.metrics != nil {
		c.metrics.IncConsumed()
	}

	var env models.Envelope
	if err := json.Unmarshal(msg.Body, &env); err != nil {
		c.logger.Error("failed to unmarshal event envelope", slog.Any("error", err))
		_ = msg.Reject(false)
		return
	}

	c.logger.Info("processing event", slog.String("type", string(env.Type)))

	key := fingerprint(msg.Body)
	err := c.handlers.Handle(ctx, &env)
	switch {
	case err == nil:
		delete(c.failures, key)
		_ = msg.Ack(false)
		if c.metrics != nil {
			c.metrics.IncAcked()
		}
	case errors.Is(err, models.ErrUnknownKind):
		// Dropped, not retried: an unknown kind will not become known on
		// redelivery.
		c.logger.Warn("unknown event type, dropping", slog.String("type", string(env.Type)))
		_ = msg.Ack(false)
	default:
		attempts := c.failures[key] + 1
		if prior := deliveryAttempts(&msg); prior >= attempts {
			attempts = prior + 1
		}

		if attempts < c.maxDeliveries {
			c.failures[key] = attempts
			c.logger.Warn("handler failed, message requeued",
				slog.String("type", string(env.Type)),
				slog.Int("attempt", attempts), slog.Any("error", err))
			if c.metrics != nil {
				c.metrics.IncRequeued()
			}
			_ = msg.Nack(false, true)
		} else {
			delete(c.failures, key)
			c.logger.Error("handler failed, message dead-lettered",
				slog.String("type", string(env.Type)),
				slog.Int("attempt", attempts), slog.Any("error", err))
			if c.metrics != nil {
				c.metrics.IncDeadLettered()
			}
			_ = msg.Nack(false, false)
		}
	}
}

// deliveryAttempts reads the broker-side delivery history: the x-death
// header when the message has cycled through the dead-letter exchange, the
// redelivered flag otherwise.
func deliveryAttempts(msg *amqp.Delivery) int {
	if msg.Headers != nil {
		if raw, ok := msg.Headers["x-death"]; ok {
			if deaths, ok := raw.([]interface{}); ok && len(deaths) > 0 {
				if table, ok := deaths[0].(amqp.Table); ok {
					if count, ok := table["count"].(int64); ok {
						return int(count)
					}
				}
			}
		}
	}
	if msg.Redelivered {
		return 1
	}
	return 0
}

// fingerprint identifies a message body across redeliveries.
func fingerprint(body []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(body)
	return h.Sum64()
}

// await pauses between consume attempts, returning early on a
// connection-ready signal.
func (c *Consumer) await(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-c.ready:
	case <-timer.C:
	}
}

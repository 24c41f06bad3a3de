package broker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/giaprika/Social-Media-Platform/internal/models"
	"github.com/giaprika/Social-Media-Platform/pkg/metrics"
)

var errPublishBufferFull = errors.New("publish buffer full, event dropped")

// Publisher sends domain events to the notification queue. Publish is
// fire-and-forget from the caller's perspective: it never returns an error,
// only a best-effort success flag, so a broker outage can never fail the
// triggering HTTP request. Producer helpers go through a bounded in-process
// buffer so the request does not even wait for the broker round trip.
type Publisher struct {
	conn    *Connection
	logger  *slog.Logger
	metrics *metrics.Metrics
	buffer  chan *models.Envelope

	// OnError is invoked for every event that could not be published from the
	// async path: buffer overflow or broker publish failure. Nil means log-only.
	OnError func(kind models.EventKind, err error)
}

// NewPublisher creates a publisher bound to the shared connection manager.
// bufferSize bounds the async queue; events beyond it are dropped, not
// blocked on.
func NewPublisher(conn *Connection, bufferSize int, m *metrics.Metrics, logger *slog.Logger) *Publisher {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:    conn,
		logger:  logger,
		metrics: m,
		buffer:  make(chan *models.Envelope, bufferSize),
	}
}

// Start launches the background worker draining the async buffer. It returns
// immediately; the worker stops when ctx is cancelled.
func (p *Publisher) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case env := <-p.buffer:
				if !p.send(env) {
					p.fail(env.Type, ErrNotConnected)
				}
			}
		}
	}()
}

// Publish sends one event synchronously and reports success. All failures are
// swallowed and logged; if the broker is unreachable the event is lost and
// only the log line records it.
func (p *Publisher) Publish(kind models.EventKind, payload interface{}) bool {
	env, err := models.NewEnvelope(kind, payload)
	if err != nil {
		p.logger.Error("failed to build event envelope",
			slog.String("type", string(kind)), slog.Any("error", err))
		return false
	}
	return p.send(env)
}

// enqueue hands the envelope to the background worker without blocking. A
// full buffer drops the event.
func (p *Publisher) enqueue(kind models.EventKind, payload interface{}) bool {
	env, err := models.NewEnvelope(kind, payload)
	if err != nil {
		p.logger.Error("failed to build event envelope",
			slog.String("type", string(kind)), slog.Any("error", err))
		return false
	}

	select {
	case p.buffer <- env:
		return true
	default:
		p.fail(kind, errPublishBufferFull)
		return false
	}
}

func (p *Publisher) send(env *models.Envelope) bool {
	ch, err := p.conn.Channel()
	if err != nil {
		p.logger.Error("broker channel not available, event not published",
			slog.String("type", string(env.Type)))
		if p.metrics != nil {
			p.metrics.IncPublishDropped()
		}
		return false
	}

	body, err := json.Marshal(env)
	if err != nil {
		p.logger.Error("failed to marshal event", slog.String("type", string(env.Type)), slog.Any("error", err))
		return false
	}

	err = ch.Publish(
		"",             // default exchange
		p.conn.Queue(), // routing key = queue name
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
	if err != nil {
		p.logger.Error("failed to publish event",
			slog.String("type", string(env.Type)), slog.Any("error", err))
		if p.metrics != nil {
			p.metrics.IncPublishDropped()
		}
		return false
	}

	p.logger.Info("event published", slog.String("type", string(env.Type)))
	if p.metrics != nil {
		p.metrics.IncPublished()
	}
	return true
}

func (p *Publisher) fail(kind models.EventKind, err error) {
	p.logger.Error("async publish failed",
		slog.String("type", string(kind)), slog.Any("error", err))
	if p.metrics != nil {
		p.metrics.IncPublishDropped()
	}
	if p.OnError != nil {
		p.OnError(kind, err)
	}
}

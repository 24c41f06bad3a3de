// Package broker owns RabbitMQ connectivity for the eventing core: a single
// connection manager shared by publisher and consumer, the fire-and-forget
// event publisher, and the per-action producer helpers.
package broker

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/streadway/amqp"
)

// ErrNotConnected is returned by Channel when no broker connection is
// currently established. Callers treat it as a soft failure; the reconnect
// loop owns recovery.
var ErrNotConnected = errors.New("broker not connected")

// ConnState is the connection manager's lifecycle state.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
)

// DefaultReconnectDelay is the fixed delay between reconnect attempts. The
// loop retries indefinitely; there is deliberately no backoff and no ceiling.
const DefaultReconnectDelay = 5 * time.Second

// Connection manages one broker connection and channel per process. It is
// constructed once and passed by reference to the publisher and consumer;
// the shared refs are replaced wholesale on error, never partially repaired.
type Connection struct {
	url            string
	queue          string
	dlq            string
	reconnectDelay time.Duration
	logger         *slog.Logger

	mu      sync.Mutex
	state   ConnState
	conn    *amqp.Connection
	channel *amqp.Channel
	closed  bool
	onReady []func()

	dial func(url string) (*amqp.Connection, error)
}

// NewConnection creates a connection manager for the named durable queue.
// No network I/O happens until the first Channel call.
func NewConnection(url, queue, dlq string, reconnectDelay time.Duration, logger *slog.Logger) *Connection {
	if reconnectDelay <= 0 {
		reconnectDelay = DefaultReconnectDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Connection{
		url:            url,
		queue:          queue,
		dlq:            dlq,
		reconnectDelay: reconnectDelay,
		logger:         logger,
		state:          StateDisconnected,
		dial:           amqp.Dial,
	}
}

// Queue returns the durable queue name shared by all producers and the
// consumer group.
func (c *Connection) Queue() string { return c.queue }

// State returns the current lifecycle state.
func (c *Connection) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnReady registers a hook invoked after every successful connect, including
// reconnects. A hook registered while already connected fires immediately.
// The consumer uses it to cut its retry pause short and re-register its
// consume loop on the fresh connection.
func (c *Connection) OnReady(fn func()) {
	c.mu.Lock()
	c.onReady = append(c.onReady, fn)
	ready := c.state == StateConnected
	c.mu.Unlock()
	if ready {
		fn()
	}
}

// Channel returns the shared channel, lazily connecting on first use. When
// the broker is unreachable it returns ErrNotConnected and leaves recovery to
// the reconnect loop it has scheduled.
func (c *Connection) Channel() (*amqp.Channel, error) {
	c.mu.Lock()
	if c.state == StateConnected && c.channel != nil {
		ch := c.channel
		c.mu.Unlock()
		return ch, nil
	}
	if c.state == StateConnecting || c.closed {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	c.state = StateConnecting
	c.mu.Unlock()

	if err := c.connect(); err != nil {
		c.scheduleReconnect()
		return nil, ErrNotConnected
	}

	c.mu.Lock()
	ch := c.channel
	c.mu.Unlock()
	if ch == nil {
		return nil, ErrNotConnected
	}
	return ch, nil
}

// Close shuts the connection down for good; the reconnect loop stops.
func (c *Connection) Close() error {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.channel = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *Connection) connect() error {
	conn, err := c.dial(c.url)
	if err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		c.logger.Error("failed to connect to broker", slog.Any("error", err))
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		c.logger.Error("failed to open channel", slog.Any("error", err))
		return err
	}

	if err := c.declareQueues(ch); err != nil {
		conn.Close()
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		c.logger.Error("queue declaration failed", slog.Any("error", err))
		return err
	}

	closeCh := conn.NotifyClose(make(chan *amqp.Error, 1))

	c.mu.Lock()
	c.conn = conn
	c.channel = ch
	c.state = StateConnected
	hooks := append([]func(){}, c.onReady...)
	c.mu.Unlock()

	c.logger.Info("broker connected", slog.String("queue", c.queue))

	go c.watchClose(closeCh)
	for _, fn := range hooks {
		fn()
	}
	return nil
}

// declareQueues asserts the durable queue idempotently. Messages that exhaust
// their redelivery budget are routed to the dead-letter queue.
func (c *Connection) declareQueues(ch *amqp.Channel) error {
	args := amqp.Table{}
	if c.dlq != "" {
		args["x-dead-letter-exchange"] = ""
		args["x-dead-letter-routing-key"] = c.dlq

		if _, err := ch.QueueDeclare(c.dlq, true, false, false, false, nil); err != nil {
			return err
		}
	}

	_, err := ch.QueueDeclare(c.queue, true, false, false, false, args)
	return err
}

// watchClose clears the shared refs when the connection drops and schedules
// the fixed-delay reconnect loop.
func (c *Connection) watchClose(closeCh chan *amqp.Error) {
	err, ok := <-closeCh
	if !ok {
		// Clean shutdown via Close.
		return
	}

	c.mu.Lock()
	c.conn = nil
	c.channel = nil
	c.state = StateDisconnected
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return
	}
	c.logger.Warn("broker connection lost, reconnecting", slog.Any("error", err))
	c.scheduleReconnect()
}

func (c *Connection) scheduleReconnect() {
	time.AfterFunc(c.reconnectDelay, func() {
		c.mu.Lock()
		if c.closed || c.state == StateConnected {
			c.mu.Unlock()
			return
		}
		c.state = StateConnecting
		c.mu.Unlock()

		if err := c.connect(); err != nil {
			c.scheduleReconnect()
		}
	})
}

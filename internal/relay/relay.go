// Package relay maintains the consumer's persistent outbound connection to
// the gateway's realtime layer. Emissions are best-effort: a false return
// means the payload was not delivered, and the caller must not retry — the
// reconnect loop owns recovery.
package relay

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/giaprika/Social-Media-Platform/pkg/metrics"
)

// ServiceName identifies this process to the gateway on connect.
const ServiceName = "notification-service"

const (
	// EventJoinService is the handshake frame sent right after connecting.
	EventJoinService = "joinService"
	// EventCreateNotify pushes a freshly stored notification to clients.
	EventCreateNotify = "createNotify"
	// EventRemoveNotify retracts a previously pushed notification.
	EventRemoveNotify = "removeNotify"
)

// frame is the wire format exchanged with the gateway realtime layer.
type frame struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Bridge is the single outbound websocket connection to the gateway. It
// connects lazily, re-establishes automatically on disconnect with a fixed
// delay and a capped number of attempts, and serializes all writes.
type Bridge struct {
	url            string
	reconnectDelay time.Duration
	maxAttempts    int
	metrics        *metrics.Metrics
	logger         *slog.Logger

	mu         sync.Mutex
	conn       *websocket.Conn
	connecting bool
	closed     bool

	dial func(url string) (*websocket.Conn, error)
}

// NewBridge creates a bridge to the gateway realtime endpoint. Defaults match
// the gateway client contract: 1s between attempts, 10 attempts per outage.
func NewBridge(url string, reconnectDelay time.Duration, maxAttempts int, m *metrics.Metrics, logger *slog.Logger) *Bridge {
	if reconnectDelay <= 0 {
		reconnectDelay = time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		url:            url,
		reconnectDelay: reconnectDelay,
		maxAttempts:    maxAttempts,
		metrics:        m,
		logger:         logger,
		dial: func(url string) (*websocket.Conn, error) {
			c, _, err := websocket.DefaultDialer.Dial(url, nil)
			return c, err
		},
	}
}

// Connect establishes the connection and performs the joinService handshake.
// Safe to call when already connected; a call overlapping an in-flight dial
// yields to it rather than dialing a second connection.
func (b *Bridge) Connect() error {
	b.mu.Lock()
	if b.conn != nil || b.closed || b.connecting {
		b.mu.Unlock()
		return nil
	}
	b.connecting = true
	b.mu.Unlock()

	conn, err := b.dial(b.url)

	b.mu.Lock()
	b.connecting = false
	if err != nil {
		b.mu.Unlock()
		b.logger.Error("relay connection failed", slog.String("url", b.url), slog.Any("error", err))
		return err
	}
	if b.closed {
		b.mu.Unlock()
		conn.Close()
		return nil
	}
	b.conn = conn
	b.mu.Unlock()

	b.logger.Info("relay connected to gateway", slog.String("url", b.url))

	if !b.write(frame{Event: EventJoinService, Data: ServiceName}) {
		return nil
	}

	go b.readPump(conn)
	return nil
}

// Emit pushes an event to the gateway and reports delivery. When the bridge
// is not connected it returns false immediately and kicks off a background
// reconnect; it never blocks the caller on connection establishment.
func (b *Bridge) Emit(event string, payload interface{}) bool {
	b.mu.Lock()
	connected := b.conn != nil
	reconnecting := b.connecting
	closed := b.closed
	b.mu.Unlock()

	if closed {
		return false
	}
	if !connected {
		b.logger.Warn("relay not connected, emission dropped", slog.String("event", event))
		if b.metrics != nil {
			b.metrics.IncRelayDropped()
		}
		if !reconnecting {
			go b.reconnect()
		}
		return false
	}

	if !b.write(frame{Event: event, Data: payload}) {
		if b.metrics != nil {
			b.metrics.IncRelayDropped()
		}
		return false
	}
	if b.metrics != nil {
		b.metrics.IncRelayEmitted()
	}
	b.logger.Info("relay event emitted", slog.String("event", event))
	return true
}

// Close tears the bridge down permanently.
func (b *Bridge) Close() error {
	b.mu.Lock()
	b.closed = true
	conn := b.conn
	b.conn = nil
	b.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// write serializes a frame onto the connection under the lock; gorilla
// connections allow one concurrent writer. A failed write drops the
// connection and schedules a reconnect.
func (b *Bridge) write(f frame) bool {
	body, err := json.Marshal(f)
	if err != nil {
		b.logger.Error("relay frame marshal failed", slog.String("event", f.Event), slog.Any("error", err))
		return false
	}

	b.mu.Lock()
	conn := b.conn
	if conn == nil {
		b.mu.Unlock()
		return false
	}
	err = conn.WriteMessage(websocket.TextMessage, body)
	b.mu.Unlock()

	if err != nil {
		b.logger.Error("relay write failed", slog.String("event", f.Event), slog.Any("error", err))
		b.dropAndReconnect(conn)
		return false
	}
	return true
}

// readPump drains inbound frames to detect peer closure.
func (b *Bridge) readPump(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			b.logger.Warn("relay disconnected from gateway", slog.Any("error", err))
			b.dropAndReconnect(conn)
			return
		}
	}
}

func (b *Bridge) dropAndReconnect(conn *websocket.Conn) {
	b.mu.Lock()
	if b.conn == conn {
		b.conn = nil
	}
	closed := b.closed
	reconnecting := b.connecting
	b.mu.Unlock()

	conn.Close()
	if closed || reconnecting {
		return
	}
	go b.reconnect()
}

// reconnect retries with a fixed delay up to maxAttempts, then gives up until
// the next Emit triggers a fresh round.
func (b *Bridge) reconnect() {
	for attempt := 1; attempt <= b.maxAttempts; attempt++ {
		b.mu.Lock()
		if b.closed || b.conn != nil {
			b.mu.Unlock()
			return
		}
		b.mu.Unlock()

		time.Sleep(b.reconnectDelay)
		if err := b.Connect(); err == nil {
			return
		}
		b.logger.Warn("relay reconnect attempt failed",
			slog.Int("attempt", attempt), slog.Int("max", b.maxAttempts))
	}
	b.logger.Error("relay reconnect attempts exhausted", slog.Int("max", b.maxAttempts))
}

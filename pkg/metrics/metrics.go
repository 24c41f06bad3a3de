package metrics

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
)

// Metrics exposes a tiny in-memory counter set for the eventing core.
type Metrics struct {
	published      atomic.Int64
	publishDropped atomic.Int64
	consumed       atomic.Int64
	acked          atomic.Int64
	requeued       atomic.Int64
	deadLettered   atomic.Int64
	cacheHits      atomic.Int64
	cacheMisses    atomic.Int64
	relayEmitted   atomic.Int64
	relayDropped   atomic.Int64
}

// New returns a zeroed Metrics collector.
func New() *Metrics {
	return &Metrics{}
}

func (m *Metrics) IncPublished()      { m.published.Add(1) }
func (m *Metrics) IncPublishDropped() { m.publishDropped.Add(1) }
func (m *Metrics) IncConsumed()       { m.consumed.Add(1) }
func (m *Metrics) IncAcked()          { m.acked.Add(1) }
func (m *Metrics) IncRequeued()       { m.requeued.Add(1) }
func (m *Metrics) IncDeadLettered()   { m.deadLettered.Add(1) }
func (m *Metrics) IncCacheHit()       { m.cacheHits.Add(1) }
func (m *Metrics) IncCacheMiss()      { m.cacheMisses.Add(1) }
func (m *Metrics) IncRelayEmitted()   { m.relayEmitted.Add(1) }
func (m *Metrics) IncRelayDropped()   { m.relayDropped.Add(1) }

// Handler exposes the counters via a very small JSON response so we do not
// need to pull in a heavy metrics dependency for this service.
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]int64{
			"published":       m.published.Load(),
			"publish_dropped": m.publishDropped.Load(),
			"consumed":        m.consumed.Load(),
			"acked":           m.acked.Load(),
			"requeued":        m.requeued.Load(),
			"dead_lettered":   m.deadLettered.Load(),
			"cache_hits":      m.cacheHits.Load(),
			"cache_misses":    m.cacheMisses.Load(),
			"relay_emitted":   m.relayEmitted.Load(),
			"relay_dropped":   m.relayDropped.Load(),
		})
	})
}

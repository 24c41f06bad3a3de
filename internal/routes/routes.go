package routes

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/giaprika/Social-Media-Platform/internal/breaker"
	"github.com/giaprika/Social-Media-Platform/internal/broker"
	"github.com/giaprika/Social-Media-Platform/internal/models"
	"github.com/giaprika/Social-Media-Platform/internal/services"
	"github.com/giaprika/Social-Media-Platform/pkg/metrics"
)

// NewRouter wires the notification read API and the event ingest endpoint
// next to lightweight health/metrics endpoints so the service can be
// monitored.
func NewRouter(m *metrics.Metrics, userBreaker *breaker.Breaker, notifies *services.NotifyService, pub *broker.Publisher, started time.Time) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"message": "notification service healthy",
			"meta": map[string]interface{}{
				"uptime_seconds": int(time.Since(started).Seconds()),
				"timestamp":      time.Now().UTC(),
			},
		})
	})
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/breaker", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, userBreaker.Snapshot())
	})

	// Sibling services without a broker connection of their own hand events
	// over HTTP; the payload is relayed into the durable queue as-is.
	mux.HandleFunc("POST /events", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Type models.EventKind `json:"type"`
			Data json.RawMessage  `json:"data"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"success": false, "message": "malformed event body",
			})
			return
		}
		if !req.Type.Valid() {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"success": false, "message": "unknown event type",
			})
			return
		}
		if !pub.Publish(req.Type, req.Data) {
			writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
				"success": false, "message": "event broker unavailable",
			})
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]interface{}{"success": true})
	})

	mux.HandleFunc("GET /notifications/{userId}", func(w http.ResponseWriter, r *http.Request) {
		views, err := notifies.GetNotifies(r.Context(), r.PathValue("userId"))
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
				"success": false, "message": err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true, "data": views,
		})
	})

	mux.HandleFunc("PATCH /notifications/{userId}/{notifyId}", func(w http.ResponseWriter, r *http.Request) {
		err := notifies.MarkRead(r.Context(), r.PathValue("userId"), r.PathValue("notifyId"))
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
				"success": false, "message": err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
	})

	mux.HandleFunc("DELETE /notifications/{userId}", func(w http.ResponseWriter, r *http.Request) {
		count, err := notifies.DeleteAll(r.Context(), r.PathValue("userId"))
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
				"success": false, "message": err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true, "deleted": count,
		})
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

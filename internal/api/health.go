package api

import (
	"context"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/120m4n/infovis/internal"
)

// HealthResponse is the body of /health.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Uptime    string                 `json:"uptime"`
	MongoDB   ServiceStatus          `json:"mongodb"`
	NATS      *ServiceStatus         `json:"nats,omitempty"`
	Stats     internal.StatsSnapshot `json:"stats"`
}

type ServiceStatus struct {
	Connected bool   `json:"connected"`
	Error     string `json:"error,omitempty"`
}

// Pinger is implemented by storage.Mongo.
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

var startTime = time.Now()

// Health serves /health. nc may be nil when the admin channel is disabled.
type Health struct {
	store   Pinger
	nc      *nats.Conn
	stats   *internal.Stats
	timeout time.Duration
}

// NewHealth crea el handler de health
func NewHealth(store Pinger, nc *nats.Conn, stats *internal.Stats) *Health {
	if stats == nil {
		stats = internal.NewStats()
	}
	return &Health{store: store, nc: nc, stats: stats, timeout: 5 * time.Second}
}

// ServeHTTP reports the store and NATS status. The status is "degraded" and
// the code 503 when MongoDB cannot be reached.
func (h *Health) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	resp := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Uptime:    time.Since(startTime).String(),
		MongoDB:   ServiceStatus{Connected: true},
		Stats:     h.stats.Snapshot(),
	}
	if err := h.store.HealthCheck(ctx); err != nil {
		resp.Status = "degraded"
		resp.MongoDB = ServiceStatus{Connected: false, Error: err.Error()}
	}
	if h.nc != nil {
		natsStatus := ServiceStatus{Connected: h.nc.IsConnected()}
		if !natsStatus.Connected {
			natsStatus.Error = "disconnected from NATS"
		}
		resp.NATS = &natsStatus
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// Package metrics registers the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "infovis_http_requests_total",
			Help: "Total HTTP requests by route and status code",
		},
		[]string{"route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "infovis_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	StoreQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "infovis_store_query_duration_seconds",
			Help:    "Duration of MongoDB operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "collection"},
	)

	StoreQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "infovis_store_query_errors_total",
			Help: "Total failed MongoDB operations",
		},
		[]string{"operation", "collection"},
	)

	StoreConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "infovis_store_connected",
			Help: "1 when the MongoDB client is connected, 0 otherwise",
		},
	)

	StoreConnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "infovis_store_connects_total",
			Help: "Total MongoDB client creations, including reconnects",
		},
	)

	AdminCommands = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "infovis_admin_commands_total",
			Help: "Admin commands received over NATS by action and result",
		},
		[]string{"action", "result"},
	)
)

// RecordHTTPRequest records one served request.
func RecordHTTPRequest(route string, status int, duration time.Duration) {
	HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordStoreQuery records one store operation and its outcome.
func RecordStoreQuery(operation, collection string, duration time.Duration, err error) {
	StoreQueryDuration.WithLabelValues(operation, collection).Observe(duration.Seconds())
	if err != nil {
		StoreQueryErrors.WithLabelValues(operation, collection).Inc()
	}
}

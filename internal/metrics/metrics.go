// Package metrics defines the Prometheus instruments exported at /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts requests by route pattern, method and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parabase",
		Name:      "http_requests_total",
		Help:      "Count of HTTP requests handled.",
	}, []string{"route", "method", "status"})

	// HTTPRequestDuration observes request latency by route pattern.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "parabase",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})

	// TenantPoolsOpen gauges how many per-project pools are currently cached.
	TenantPoolsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "parabase",
		Name:      "tenant_pools_open",
		Help:      "Number of cached tenant connection pools.",
	})

	// BackupsTotal counts finished backups by type and final status.
	BackupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parabase",
		Name:      "backups_total",
		Help:      "Count of finished backup tasks.",
	}, []string{"type", "status"})

	// CronDispatchesTotal counts cron dispatch outcomes, skips included.
	CronDispatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parabase",
		Name:      "cron_dispatches_total",
		Help:      "Count of cron job dispatch outcomes.",
	}, []string{"outcome"})
)

// Handler returns the /metrics endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRequest records one handled request.
func ObserveRequest(route, method string, status int, elapsed time.Duration) {
	HTTPRequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

// Package observability holds the gateway's Prometheus metrics, gin
// middleware and OpenTelemetry tracing setup.
package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "wafa"

var (
	registerOnce sync.Once

	sessionStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "status",
			Help:      "1 for the current connection status, 0 for the others.",
		},
		[]string{"status"},
	)
	sessionReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "reconnects_total",
			Help:      "Reconnection attempts scheduled.",
		},
	)
	inboundMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "inbound_messages_total",
			Help:      "Inbound messages by outcome.",
		},
		[]string{"outcome"},
	)
	deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "messages_total",
			Help:      "Outbound deliveries by payload kind and result.",
		},
		[]string{"kind", "result"},
	)
	deliveryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "duration_seconds",
			Help:      "Outbound delivery duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			sessionStatus, sessionReconnects, inboundMessages,
			deliveries, deliveryDuration,
			httpRequests, httpDuration,
		)
	})
}

// SetSessionStatus marks current as the only active status among all.
func SetSessionStatus(current string, all []string) {
	RegisterMetrics()
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1
		}
		sessionStatus.WithLabelValues(s).Set(v)
	}
}

func RecordReconnect() {
	RegisterMetrics()
	sessionReconnects.Inc()
}

// RecordInbound counts an inbound message. outcome is "accepted",
// "invalid" or "ignored".
func RecordInbound(outcome string) {
	RegisterMetrics()
	inboundMessages.WithLabelValues(outcome).Inc()
}

func RecordDelivery(kind string, ok bool, d time.Duration) {
	RegisterMetrics()
	result := "ok"
	if !ok {
		result = "error"
	}
	deliveries.WithLabelValues(kind, result).Inc()
	deliveryDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func RecordHTTPRequest(method, path string, status int, d time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(d.Seconds())
}

package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics scraped from /metrics.
var (
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quizfunnel_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	TrackingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quizfunnel_tracking_requests_total",
			Help: "Tracking calls by mapped event and outcome",
		},
		[]string{"event", "outcome"},
	)

	ConversionsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quizfunnel_conversions_enqueued_total",
			Help: "Conversion events handed to the outbound queue",
		},
		[]string{"origin", "outcome"},
	)

	ConversionsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quizfunnel_conversions_sent_total",
			Help: "Conversion events delivered to the Conversions API by outcome",
		},
		[]string{"event", "outcome"},
	)

	ConversionSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "quizfunnel_conversion_send_duration_seconds",
			Help:    "Duration of Conversions API calls in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	WebhookNotifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quizfunnel_webhook_notifications_total",
			Help: "Checkout notifications by payment status and resolution",
		},
		[]string{"status", "resolution"},
	)
)

// Outcome label values.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)

// ObserveHTTPRequest records one served request.
func ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(duration.Seconds())
}

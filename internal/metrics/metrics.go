package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Tracks outbound API calls to the payment provider.
	ProviderRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cryptopay_api_requests_total",
			Help: "Total number of Crypto Pay API requests made (by method and result).",
		},
		[]string{"method", "result"},
	)

	// Measures duration of payment provider API requests.
	ProviderRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cryptopay_api_request_duration_seconds",
			Help:    "Duration of Crypto Pay API requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms → ~16s
		},
		[]string{"method"},
	)

	// Tracks price feed refresh attempts by feed half and result.
	FeedRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricefeed_refresh_total",
			Help: "Total number of price feed refresh attempts.",
		},
		[]string{"feed", "result"}, // feed = "fiat" | "crypto", result = "ok" | "error"
	)

	// Tracks invoice outcomes by error kind ("ok" for success).
	InvoicesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_invoices_total",
			Help: "Total number of invoice creation attempts by outcome.",
		},
		[]string{"asset", "outcome"},
	)

	// Tracks deliveries by outcome.
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_deliveries_total",
			Help: "Total number of delivery attempts by outcome.",
		},
		[]string{"outcome"},
	)

	// Tracks NATS messages published by subject and result.
	NATSMessageCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nats_messages_total",
			Help: "Total number of NATS messages published.",
		},
		[]string{"subject", "result"}, // result = "ok" | "error"
	)

	NATSMessageLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nats_message_latency_seconds",
			Help:    "Time taken to publish NATS messages",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"subject"},
	)

	// Tracks cache hits and misses for the secret cache.
	SecretsCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "secrets_cache_access_total",
			Help: "Number of cache hits/misses in secret cache.",
		},
		[]string{"result"}, // hit | miss
	)

	// Tracks total errors (aggregated).
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_errors_total",
			Help: "Count of service-level errors by component.",
		},
		[]string{"component", "reason"},
	)

	// Gauges the last successful rates refresh time (seconds since epoch).
	LastRefreshTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storefront_last_rates_refresh_timestamp",
			Help: "Timestamp (unix seconds) of the last successful rates refresh.",
		},
	)
)

// ObserveDuration records the time taken for a function and updates the given histogram.
func ObserveDuration(v interface{}, start time.Time, labels ...string) {
	duration := time.Since(start).Seconds()

	switch metric := v.(type) {
	case *prometheus.HistogramVec:
		metric.WithLabelValues(labels...).Observe(duration)
	case *prometheus.SummaryVec:
		metric.WithLabelValues(labels...).Observe(duration)
	default:
		// counters are not meant for duration tracking
	}
}

func IncProviderRequest(method, result string) {
	ProviderRequestsTotal.WithLabelValues(method, result).Inc()
}

func IncFeedRefresh(feed, result string) {
	FeedRefreshTotal.WithLabelValues(feed, result).Inc()
}

func IncInvoice(asset, outcome string) {
	InvoicesTotal.WithLabelValues(asset, outcome).Inc()
}

func IncDelivery(outcome string) {
	DeliveriesTotal.WithLabelValues(outcome).Inc()
}

func IncNATSMessage(subject, result string) {
	NATSMessageCount.WithLabelValues(subject, result).Inc()
}

func IncCacheHit(result string) {
	SecretsCacheHits.WithLabelValues(result).Inc()
}

func IncError(component, reason string) {
	ErrorsTotal.WithLabelValues(component, reason).Inc()
}

func SetLastRefresh(t time.Time) {
	LastRefreshTimestamp.Set(float64(t.Unix()))
}

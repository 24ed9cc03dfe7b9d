// Package metrics exposes the Prometheus instruments shared across
// modules. Collectors are registered once via promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// NoticesSent counts outbound opt-out notices by outcome
	// (sent, failed, skipped).
	NoticesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "likeness",
		Name:      "notices_sent_total",
		Help:      "Opt-out notices dispatched, by outcome.",
	}, []string{"outcome"})

	// WebhookDeliveries counts webhook delivery attempts by outcome
	// (delivered, retry, failed).
	WebhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "likeness",
		Name:      "webhook_deliveries_total",
		Help:      "Webhook delivery attempts, by outcome.",
	}, []string{"outcome"})

	// BatchDuration observes how long a full opt-out batch run takes.
	BatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "likeness",
		Name:      "optout_batch_duration_seconds",
		Help:      "Duration of opt-out batch dispatch runs.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	// ScanRequests counts likeness scan requests by result
	// (ok, error, circuit_open).
	ScanRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "likeness",
		Name:      "scan_requests_total",
		Help:      "Likeness scan requests to the scanner service, by result.",
	}, []string{"result"})
)

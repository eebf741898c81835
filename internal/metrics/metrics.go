// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// NotificationsTotal counts notification outcomes by result
	// (delivered, failed, dropped, skipped).
	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "assetace",
		Name:      "notifications_total",
		Help:      "Notification send attempts by outcome.",
	}, []string{"result"})

	// TransitionsTotal counts successful lifecycle transitions.
	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "assetace",
		Name:      "property_transitions_total",
		Help:      "Property lifecycle transitions by name.",
	}, []string{"transition"})

	// VacancyNoticesTotal counts properties whose followers were notified.
	VacancyNoticesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "assetace",
		Name:      "vacancy_notices_total",
		Help:      "Properties announced to followers by the vacancy scan.",
	})

	// MarketplaceQueryDuration observes marketplace page latency.
	MarketplaceQueryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "assetace",
		Name:      "marketplace_query_seconds",
		Help:      "Marketplace search latency.",
		Buckets:   prometheus.DefBuckets,
	})
)

// Transition records one lifecycle transition.
func Transition(name string) {
	TransitionsTotal.WithLabelValues(name).Inc()
}

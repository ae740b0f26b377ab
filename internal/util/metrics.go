package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CartMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_mutations_total",
		Help: "Total number of cart mutations by operation and outcome",
	}, []string{"operation", "outcome"})

	CartMutationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cart_mutation_duration_seconds",
		Help:    "Latency of cart mutations including the backend round trip",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	CartDegradedFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cart_degraded_fallbacks_total",
		Help: "Total number of cart operations served from the local snapshot cache",
	})

	CartContractViolationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cart_contract_violations_total",
		Help: "Total number of malformed responses received from the shop backend",
	})

	AbandonedCartsReportedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "abandoned_carts_reported_total",
		Help: "Total number of abandoned-cart reports sent",
	})

	AbandonedCartsSuppressedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "abandoned_carts_suppressed_total",
		Help: "Total number of abandoned-cart reports suppressed by the cooldown marker",
	})

	AbandonedReportFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "abandoned_report_failures_total",
		Help: "Total number of abandoned-cart reports that failed to send",
	})

	ShippingQuotesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shipping_quotes_total",
		Help: "Total number of shipping quotes by source",
	}, []string{"source"})

	DistanceFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "distance_fallbacks_total",
		Help: "Total number of distance calculations served by the great-circle fallback",
	})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_active_sessions",
		Help: "Number of storefront sessions currently held in memory",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	OrdersCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Total number of orders created",
		},
	)

	OrdersCancelledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_cancelled_total",
			Help: "Total number of orders cancelled, by reason",
		},
		[]string{"reason"},
	)

	OrderStatusChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_status_changes_total",
			Help: "Order status writes made by the synchronizer, by new status",
		},
		[]string{"status"},
	)

	PaymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Payment state transitions, by method and status",
		},
		[]string{"method", "status"},
	)

	ExpirationSweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "expiration_sweep_duration_seconds",
			Help:    "Duration of expiration sweep runs",
			Buckets: prometheus.DefBuckets,
		},
	)

	ExternalCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "external_call_duration_seconds",
			Help:    "Duration of calls to external services",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service"},
	)
)

// Register registers all collectors with the default registry.
func Register() {
	prometheus.MustRegister(OrdersCreatedTotal)
	prometheus.MustRegister(OrdersCancelledTotal)
	prometheus.MustRegister(OrderStatusChangesTotal)
	prometheus.MustRegister(PaymentsTotal)
	prometheus.MustRegister(ExpirationSweepDuration)
	prometheus.MustRegister(ExternalCallDuration)
}

// ObserveExternalCall is meant to be deferred with the call's start time.
func ObserveExternalCall(service string, start time.Time) {
	ExternalCallDuration.WithLabelValues(service).Observe(time.Since(start).Seconds())
}

package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersPlacedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_orders_placed_total",
		Help: "Total number of orders placed",
	}, []string{"payment_method", "status"})

	OrdersRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_orders_rejected_total",
		Help: "Total number of order placements rejected",
	}, []string{"reason"})

	OrderTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_order_transitions_total",
		Help: "Total number of order status transitions",
	}, []string{"from", "to"})

	OrderEventsPublishFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_order_events_publish_failed_total",
		Help: "Total number of order change events that could not be published",
	})

	InventoryRecomputeLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pos_inventory_recompute_latency_seconds",
		Help:    "Latency of inventory recomputation",
		Buckets: prometheus.DefBuckets,
	})

	InventoryRecomputeFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_inventory_recompute_failed_total",
		Help: "Total number of failed inventory recomputations",
	})

	InventoryReservationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_inventory_reservations_failed_total",
		Help: "Total number of failed inventory reservations",
	}, []string{"reason"})

	InventoryManagersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pos_inventory_managers_active",
		Help: "Number of live per-tenant inventory managers",
	})

	LoginAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_login_attempts_total",
		Help: "Total number of login attempts",
	}, []string{"app", "result"})

	ImpersonationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_impersonations_total",
		Help: "Total number of impersonation sessions granted",
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

package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	})

	OrdersUpdatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_updated_total",
		Help: "Total number of orders rewritten through an update",
	})

	OrdersDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_deleted_total",
		Help: "Total number of orders deleted",
	})

	OrderStatusChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_status_changes_total",
		Help: "Total number of order status changes by target status",
	}, []string{"status"})

	OrdersRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_rejected_total",
		Help: "Total number of order operations rejected",
	}, []string{"reason"})

	OrderTxLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "order_tx_latency_seconds",
		Help:    "Latency of order transactions including retries",
		Buckets: prometheus.DefBuckets,
	})

	OrderTxRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "order_tx_retries_total",
		Help: "Total number of order transaction attempts retried after a conflict",
	})

	StockUnitsReservedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_units_reserved_total",
		Help: "Total number of product units taken from stock by orders",
	})

	StockUnitsReleasedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_units_released_total",
		Help: "Total number of product units returned to stock by orders",
	})

	EventsPublishFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_publish_failed_total",
		Help: "Total number of events that could not be published",
	}, []string{"topic"})

	EmailsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "emails_sent_total",
		Help: "Total number of emails handed to the SMTP server",
	}, []string{"result"})

	LoginAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "login_attempts_total",
		Help: "Total number of login attempts by result",
	}, []string{"result"})

	DatabaseUp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "database_up",
		Help: "Whether the last database probe succeeded",
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

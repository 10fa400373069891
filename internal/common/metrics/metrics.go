package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DeliveriesSucceeded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_deliveries_succeeded_total",
			Help: "Total number of queue items delivered successfully",
		},
		[]string{"task_type", "queue_type"},
	)

	DeliveriesFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_deliveries_failed_total",
			Help: "Total number of failed delivery attempts",
		},
		[]string{"task_type", "queue_type", "error_code", "outcome"},
	)

	DeliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notification_delivery_duration_seconds",
			Help:    "Duration of delivery attempts in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"task_type", "queue_type"},
	)

	DeliveriesActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "notification_deliveries_active",
			Help: "Number of queue items currently being delivered per worker",
		},
		[]string{"task_type"},
	)

	QueueClaimed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_queue_claimed_total",
			Help: "Total number of queue items claimed by workers",
		},
		[]string{"queue_type"},
	)

	QueueClaimErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_queue_claim_errors_total",
			Help: "Total number of failed claim statements",
		},
		[]string{"queue_type"},
	)

	QueueRequeuedStale = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notification_queue_requeued_stale_total",
			Help: "Total number of in-flight queue items reset by the staleness sweep",
		},
	)

	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_created_total",
			Help: "Total number of notifications accepted by the producer API",
		},
		[]string{"variant"},
	)

	OutcomeListenerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_outcome_listener_errors_total",
			Help: "Total number of outcome listener failures",
		},
		[]string{"listener"},
	)
)

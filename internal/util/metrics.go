package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BookingsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookings_created_total",
		Help: "Total number of bookings created",
	})

	BookingsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_requests_refused_total",
		Help: "Total number of booking requests refused, by reason",
	}, []string{"reason"})

	BookingTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_transitions_total",
		Help: "Total number of booking status transitions, by target status",
	}, []string{"status"})

	BookingAmountRepairsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "booking_amount_repairs_total",
		Help: "Total number of completed bookings whose zero amount was recomputed",
	})

	OwnerEarningsCents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "owner_earnings_cents_total",
		Help: "Sum of amounts of bookings marked completed",
	})

	ListingLockContentionTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "listing_lock_contention_total",
		Help: "Total number of booking attempts refused because another booking held the listing lock",
	})

	ListingLockErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "listing_lock_errors_total",
		Help: "Total number of listing lock operations that failed and fell back to the database",
	})

	BookingTxLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "booking_tx_latency_seconds",
		Help:    "Latency of booking write transactions",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	AvailabilityRepairsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "listing_availability_repairs_total",
		Help: "Total number of listing availability flags fixed by reconciliation",
	})

	EventsPublishFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_publish_failed_total",
		Help: "Total number of domain events that could not be published",
	}, []string{"event_type"})

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

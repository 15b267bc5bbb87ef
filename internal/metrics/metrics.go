package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	bookingCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bookingpro",
			Name:      "booking_created_total",
			Help:      "Count of bookings created by resource kind.",
		},
		[]string{"kind"},
	)

	bookingTransition = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bookingpro",
			Name:      "booking_transition_total",
			Help:      "Count of booking status transitions.",
		},
		[]string{"to"},
	)

	bookingRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bookingpro",
			Name:      "booking_rejected_total",
			Help:      "Count of rejected booking attempts by reason.",
		},
		[]string{"reason"},
	)

	lockBusy = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bookingpro",
			Name:      "lock_busy_total",
			Help:      "Count of per-resource lock acquisition timeouts.",
		},
	)

	reconciliationErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bookingpro",
			Name:      "reconciliation_errors_total",
			Help:      "Count of payment/status disagreements queued for operators.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bookingpro",
			Name:      "http_requests_total",
			Help:      "Count of API requests by handler.",
		},
		[]string{"handler"},
	)

	indexSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "bookingpro",
			Name:      "availability_index_entries",
			Help:      "Current number of occupied intervals in the availability index.",
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(bookingCreated, bookingTransition, bookingRejected,
			lockBusy, reconciliationErrors, httpRequests, indexSize)
	})
}

func IncBookingCreated(kind string) {
	bookingCreated.WithLabelValues(kind).Inc()
}

func IncTransition(to string) {
	bookingTransition.WithLabelValues(to).Inc()
}

func IncRejected(reason string) {
	bookingRejected.WithLabelValues(reason).Inc()
}

func IncHTTP(handler string) {
	httpRequests.WithLabelValues(handler).Inc()
}

func IncLockBusy() {
	lockBusy.Inc()
}

func IncReconciliationError() {
	reconciliationErrors.Inc()
}

func SetIndexSize(n int) {
	indexSize.Set(float64(n))
}

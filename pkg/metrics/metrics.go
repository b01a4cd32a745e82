package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Lifecycle metrics
	BorrowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slotpool_borrows_total",
			Help: "Total number of borrow operations by outcome",
		},
		[]string{"outcome"},
	)

	ReturnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slotpool_returns_total",
			Help: "Total number of return operations by outcome",
		},
		[]string{"outcome"},
	)

	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "slotpool_operation_duration_seconds",
			Help:    "Borrow/return operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	SnapshotsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "slotpool_snapshots_created_total",
			Help: "Total number of session snapshots created",
		},
	)

	StatesRestored = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "slotpool_states_restored_total",
			Help: "Total number of states restored from session snapshots",
		},
	)

	BlankMounts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "slotpool_blank_mounts_total",
			Help: "Total number of blank state mounts",
		},
	)

	ErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slotpool_errors_total",
			Help: "Total number of errors by kind",
		},
		[]string{"kind"},
	)

	// Webhook metrics
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slotpool_requests_total",
			Help: "Total number of webhook requests by path and status",
		},
		[]string{"path", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		BorrowsTotal,
		ReturnsTotal,
		OperationDuration,
		SnapshotsCreated,
		StatesRestored,
		BlankMounts,
		ErrorsTotal,
		RequestsTotal,
	)
}

// Handler returns the HTTP handler for the /metrics endpoint
func Handler() http.Handler {
	return promhttp.Handler()
}

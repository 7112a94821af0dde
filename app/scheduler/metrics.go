package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pollerTicksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reconciliation_poller_ticks_total",
			Help: "Total number of reconciliation sweeps",
		},
	)

	pollerTickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reconciliation_poller_tick_duration_seconds",
			Help:    "Duration of one reconciliation sweep",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Pending top-ups seen by the last sweep
	pollerPendingGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reconciliation_poller_pending_top_ups",
			Help: "Number of created top-ups seen by the last reconciliation sweep",
		},
	)

	pollerInvoiceErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciliation_poller_invoice_errors_total",
			Help: "Total number of per-invoice failures during reconciliation sweeps",
		},
		[]string{"provider"},
	)
)

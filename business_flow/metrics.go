package businessflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Reconcile calls partitioned by provider, observed status and outcome
	reconcileTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "top_up_reconcile_total",
			Help: "Total number of reconcile calls by provider, observed status and outcome",
		},
		[]string{"provider", "observed", "outcome"},
	)

	// Credited USD partitioned by provider
	creditedAmountTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "top_up_credited_amount_total",
			Help: "Total USD credited to user balances from top-ups",
		},
		[]string{"provider"},
	)

	// Failed cascade steps partitioned by step name
	cascadeStepFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reward_cascade_step_failures_total",
			Help: "Total number of reward cascade steps that failed or panicked",
		},
		[]string{"step"},
	)

	// Jobs waiting in the reward queue
	rewardQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reward_queue_depth",
			Help: "Number of credited top-ups waiting for the reward cascade",
		},
	)

	// Webhook notifications partitioned by provider and result
	webhookTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_webhook_total",
			Help: "Total number of provider webhook notifications by result",
		},
		[]string{"provider", "result"},
	)
)

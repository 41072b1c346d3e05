package keeper

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/compose-network/wormhole-keeper/metrics"
	"github.com/compose-network/wormhole-keeper/x/bridge"
)

// Metrics holds keeper metrics.
type Metrics struct {
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	FlushDecisions    *prometheus.CounterVec
	FinalizeDecisions *prometheus.CounterVec
	PendingDebt       *prometheus.GaugeVec
	FinalityPolls     prometheus.Histogram
	StatusPolls       *prometheus.CounterVec
	LockContention    prometheus.Counter
}

// NewMetrics registers keeper collectors on the default registerer.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	r := metrics.NewComponentRegistryWith(reg, "wormhole_keeper", "")

	return &Metrics{
		OperationsTotal: r.NewCounterVec(prometheus.CounterOpts{
			Name: "operations_total",
			Help: "Keeper operations by outcome",
		}, []string{"operation", "result"}),

		OperationDuration: r.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "operation_duration_seconds",
			Help:    "Wall time of keeper operations, including finality waits",
			Buckets: metrics.DurationBuckets,
		}, []string{"operation"}),

		FlushDecisions: r.NewCounterVec(prometheus.CounterOpts{
			Name: "flush_decisions_total",
			Help: "Flush decisions by policy and eligibility",
		}, []string{"policy", "eligible"}),

		FinalizeDecisions: r.NewCounterVec(prometheus.CounterOpts{
			Name: "finalize_decisions_total",
			Help: "Finalize decisions by delivery status and eligibility",
		}, []string{"delivery", "eligible"}),

		PendingDebt: r.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pending_debt_wei",
			Help: "Last observed batched DAI to flush, per domain",
		}, []string{"domain"}),

		FinalityPolls: r.NewHistogram(prometheus.HistogramOpts{
			Name:    "finality_polls",
			Help:    "Status polls until a flush transaction became terminal",
			Buckets: metrics.CountBuckets,
		}),

		StatusPolls: r.NewCounterVec(prometheus.CounterOpts{
			Name: "l2_status_polls_total",
			Help: "L2 transaction status observations by status",
		}, []string{"status"}),

		LockContention: r.NewCounter(prometheus.CounterOpts{
			Name: "lock_contention_total",
			Help: "Operations skipped because the domain lock was held",
		}),
	}
}

// ObservePoll implements finality.Observer.
func (m *Metrics) ObservePoll(outcome bridge.TxOutcome) {
	if m == nil {
		return
	}
	m.StatusPolls.WithLabelValues(outcome.Status.String()).Inc()
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "freelance_wallet"

// Ledger счётчики кошелька. Nil-получатель допустим: метрики просто не пишутся.
type Ledger struct {
	commitsTotal        *prometheus.CounterVec
	commitRetriesTotal  *prometheus.CounterVec
	withdrawalsTotal    *prometheus.CounterVec
	reconcileRunsTotal  *prometheus.CounterVec
	reconcileDrift      prometheus.Gauge
	reconcileLastRun    prometheus.Gauge
	notificationsFailed prometheus.Counter
}

// New регистрирует коллекторы в reg. Для тестов передавайте prometheus.NewRegistry().
func New(reg prometheus.Registerer) *Ledger {
	factory := promauto.With(reg)
	return &Ledger{
		commitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "commits_total",
				Help:      "Total ledger commits partitioned by operation and result.",
			},
			[]string{"op", "result"},
		),
		commitRetriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "commit_retries_total",
				Help:      "Total commit retries after concurrent modification.",
			},
			[]string{"op"},
		),
		withdrawalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "withdrawals",
				Name:      "transitions_total",
				Help:      "Total withdrawal request transitions by target status.",
			},
			[]string{"status"},
		),
		reconcileRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reconcile",
				Name:      "runs_total",
				Help:      "Total reconciliation runs by outcome.",
			},
			[]string{"outcome"},
		),
		reconcileDrift: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "reconcile",
				Name:      "last_drift_minor_units",
				Help:      "Absolute balance drift corrected by the most recent reconciliation.",
			},
		),
		reconcileLastRun: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "reconcile",
				Name:      "last_run_unix",
				Help:      "Unix time of the most recent reconciliation.",
			},
		),
		notificationsFailed: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "notifications",
				Name:      "failed_total",
				Help:      "Total ledger notifications that could not be delivered.",
			},
		),
	}
}

func (m *Ledger) ObserveCommit(op, result string) {
	if m == nil {
		return
	}
	m.commitsTotal.WithLabelValues(op, result).Inc()
}

func (m *Ledger) ObserveRetry(op string) {
	if m == nil {
		return
	}
	m.commitRetriesTotal.WithLabelValues(op).Inc()
}

func (m *Ledger) ObserveWithdrawal(status string) {
	if m == nil {
		return
	}
	m.withdrawalsTotal.WithLabelValues(status).Inc()
}

func (m *Ledger) ObserveReconcile(outcome string, drift int64, unixTime int64) {
	if m == nil {
		return
	}
	m.reconcileRunsTotal.WithLabelValues(outcome).Inc()
	if drift < 0 {
		drift = -drift
	}
	m.reconcileDrift.Set(float64(drift))
	m.reconcileLastRun.Set(float64(unixTime))
}

func (m *Ledger) ObserveNotificationFailure() {
	if m == nil {
		return
	}
	m.notificationsFailed.Inc()
}

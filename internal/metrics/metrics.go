// Package metrics holds the Prometheus instrumentation for the trading
// engine and the pool it manages.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every poolmind series under one registry so tests and
// embedded deployments never fight over the global default.
type Metrics struct {
	registry *prometheus.Registry

	// Cycle loop
	CyclesTotal   *prometheus.CounterVec
	CycleDuration prometheus.Histogram

	// Trading outcomes
	OpportunitiesDetected prometheus.Counter
	OpportunitiesExecuted prometheus.Counter
	RealizedProfitUSD     prometheus.Gauge
	FallbackActivations   prometheus.Counter
	ErrorsTotal           prometheus.Counter
	BreakerTripped        prometheus.Gauge

	// Pool state
	PoolValueUSD        prometheus.Gauge
	PoolCashReserveUSD  prometheus.Gauge
	PoolParticipants    prometheus.Gauge
	WithdrawalsTotal    *prometheus.CounterVec
	ParticipantDeposits prometheus.Counter
}

// New builds and registers the poolmind metric set. A nil registry gets a
// fresh one with the standard Go and process collectors attached.
func New(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	m := &Metrics{
		registry: registry,

		CyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "poolmind_cycles_total",
				Help: "Trading cycles run, by final status",
			},
			[]string{"status"},
		),

		CycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "poolmind_cycle_duration_seconds",
				Help:    "Wall time of one observe-reason-act-reflect pass",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),

		OpportunitiesDetected: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "poolmind_opportunities_detected_total",
				Help: "Arbitrage opportunities found by the scanner",
			},
		),

		OpportunitiesExecuted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "poolmind_opportunities_executed_total",
				Help: "Opportunities that reached the executor",
			},
		),

		RealizedProfitUSD: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "poolmind_realized_profit_usd",
				Help: "Cumulative realized profit and loss in USD since start",
			},
		),

		FallbackActivations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "poolmind_fallback_activations_total",
				Help: "Cycles where the advisory failed and the rule-based fallback decided",
			},
		),

		ErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "poolmind_errors_total",
				Help: "Cycles that ended in error or degraded persistence",
			},
		),

		BreakerTripped: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "poolmind_circuit_breaker_tripped",
				Help: "1 while the cycle circuit breaker is open, 0 otherwise",
			},
		),

		PoolValueUSD: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "poolmind_pool_value_usd",
				Help: "Marked pool value in USD",
			},
		),

		PoolCashReserveUSD: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "poolmind_pool_cash_reserve_usd",
				Help: "Unallocated cash portion of the pool in USD",
			},
		),

		PoolParticipants: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "poolmind_pool_participants",
				Help: "Number of pool participants",
			},
		),

		WithdrawalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "poolmind_withdrawals_total",
				Help: "Withdrawal requests processed, by resulting status",
			},
			[]string{"status"},
		),

		ParticipantDeposits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "poolmind_participant_deposits_total",
				Help: "Accepted participant deposits",
			},
		),
	}

	registry.MustRegister(
		m.CyclesTotal,
		m.CycleDuration,
		m.OpportunitiesDetected,
		m.OpportunitiesExecuted,
		m.RealizedProfitUSD,
		m.FallbackActivations,
		m.ErrorsTotal,
		m.BreakerTripped,
		m.PoolValueUSD,
		m.PoolCashReserveUSD,
		m.PoolParticipants,
		m.WithdrawalsTotal,
		m.ParticipantDeposits,
	)

	return m
}

// ObservePool refreshes the pool gauges after a mark or a ledger mutation.
func (m *Metrics) ObservePool(valueUSD, cashReserveUSD float64, participants int) {
	m.PoolValueUSD.Set(valueUSD)
	m.PoolCashReserveUSD.Set(cashReserveUSD)
	m.PoolParticipants.Set(float64(participants))
}

// Handler serves this registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

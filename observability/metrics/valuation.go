package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// ValuationMetrics tracks the valuation engine's operational counters.
type ValuationMetrics struct {
	valuations       *prometheus.CounterVec
	deposits         *prometheus.CounterVec
	withdrawals      *prometheus.CounterVec
	feedChecks       *prometheus.CounterVec
	feedActive       *prometheus.GaugeVec
	requestRejected  *prometheus.CounterVec
	requestDurations *prometheus.HistogramVec
}

var (
	valuationOnce     sync.Once
	valuationRegistry *ValuationMetrics
)

func Valuation() *ValuationMetrics {
	valuationOnce.Do(func() {
		valuationRegistry = &ValuationMetrics{
			valuations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "valuation_portfolio_total",
				Help: "Count of portfolio valuation requests by result.",
			}, []string{"result"}),
			deposits: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "valuation_deposits_total",
				Help: "Count of processed deposits by result.",
			}, []string{"result"}),
			withdrawals: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "valuation_withdrawals_total",
				Help: "Count of processed withdrawals by result.",
			}, []string{"result"}),
			feedChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "valuation_feed_checks_total",
				Help: "Count of feed health checks by verdict.",
			}, []string{"verdict"}),
			feedActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "valuation_feed_active",
				Help: "Activation flag per feed, 1 when active.",
			}, []string{"feed"}),
			requestRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "valuation_requests_rejected_total",
				Help: "Count of HTTP requests rejected before dispatch by reason.",
			}, []string{"reason"}),
			requestDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "valuation_request_duration_seconds",
				Help:    "HTTP request latency by route.",
				Buckets: prometheus.DefBuckets,
			}, []string{"route"}),
		}
		prometheus.MustRegister(
			valuationRegistry.valuations,
			valuationRegistry.deposits,
			valuationRegistry.withdrawals,
			valuationRegistry.feedChecks,
			valuationRegistry.feedActive,
			valuationRegistry.requestRejected,
			valuationRegistry.requestDurations,
		)
	})
	return valuationRegistry
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *ValuationMetrics) ObserveValuation(err error) {
	if m == nil {
		return
	}
	m.valuations.WithLabelValues(result(err)).Inc()
}

func (m *ValuationMetrics) ObserveDeposit(err error) {
	if m == nil {
		return
	}
	m.deposits.WithLabelValues(result(err)).Inc()
}

func (m *ValuationMetrics) ObserveWithdrawal(err error) {
	if m == nil {
		return
	}
	m.withdrawals.WithLabelValues(result(err)).Inc()
}

func (m *ValuationMetrics) ObserveFeedCheck(feed string, healthy bool) {
	if m == nil {
		return
	}
	verdict := "healthy"
	active := 1.0
	if !healthy {
		verdict = "unhealthy"
		active = 0
	}
	m.feedChecks.WithLabelValues(verdict).Inc()
	if feed != "" {
		m.feedActive.WithLabelValues(feed).Set(active)
	}
}

func (m *ValuationMetrics) IncRejected(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.requestRejected.WithLabelValues(reason).Inc()
}

func (m *ValuationMetrics) ObserveRequestDuration(route string, seconds float64) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	m.requestDurations.WithLabelValues(route).Observe(seconds)
}

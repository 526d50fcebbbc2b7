package observability

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	ledgerMetricsOnce sync.Once
	ledgerRegistry    *LedgerMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record HTTP API
// activity per route group.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "creatorpay",
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Total API requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "creatorpay",
				Subsystem: "api",
				Name:      "errors_total",
				Help:      "Total API errors segmented by module, method, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "creatorpay",
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "creatorpay",
				Subsystem: "api",
				Name:      "throttles_total",
				Help:      "Count of API requests rejected by the rate limiter.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of an API request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason.
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// LedgerMetrics wraps collectors tracking ledger entry points and the custody
// accounting totals.
type LedgerMetrics struct {
	calls          *prometheus.CounterVec
	failures       *prometheus.CounterVec
	latency        *prometheus.HistogramVec
	totals         *prometheus.GaugeVec
	feeRate        prometheus.Gauge
	pauseEngaged   prometheus.Gauge
	solvencyBreach prometheus.Counter
}

// Ledger exposes the metrics registry for the ledger root.
func Ledger() *LedgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			calls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "creatorpay",
				Subsystem: "ledger",
				Name:      "calls_total",
				Help:      "Count of ledger entry point calls segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "creatorpay",
				Subsystem: "ledger",
				Name:      "failures_total",
				Help:      "Count of rolled back ledger calls segmented by operation and reason.",
			}, []string{"operation", "reason"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "creatorpay",
				Subsystem: "ledger",
				Name:      "call_duration_seconds",
				Help:      "Latency distribution for ledger entry points.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			totals: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "creatorpay",
				Subsystem: "ledger",
				Name:      "custody_total",
				Help:      "Funds held in custody in token minor units, by bucket.",
			}, []string{"bucket"}),
			feeRate: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "creatorpay",
				Subsystem: "ledger",
				Name:      "platform_fee_bps",
				Help:      "Platform fee rate currently in effect, in basis points.",
			}),
			pauseEngaged: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "creatorpay",
				Subsystem: "ledger",
				Name:      "pause_engaged",
				Help:      "Indicates whether the ledger pause flag is set (1) or not (0).",
			}),
			solvencyBreach: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "creatorpay",
				Subsystem: "ledger",
				Name:      "solvency_breaches_total",
				Help:      "Count of solvency checks where custody did not cover recorded liabilities.",
			}),
		}
		prometheus.MustRegister(
			ledgerRegistry.calls,
			ledgerRegistry.failures,
			ledgerRegistry.latency,
			ledgerRegistry.totals,
			ledgerRegistry.feeRate,
			ledgerRegistry.pauseEngaged,
			ledgerRegistry.solvencyBreach,
		)
	})
	return ledgerRegistry
}

// Observe records the outcome of a ledger call. Reason should be a stable
// classification of err, not its message.
func (m *LedgerMetrics) Observe(operation string, duration time.Duration, reason string, err error) {
	if m == nil {
		return
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
		if reason = strings.TrimSpace(reason); reason == "" {
			reason = "unspecified"
		}
		m.failures.WithLabelValues(op, reason).Inc()
	}
	m.calls.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordTotals updates the custody bucket gauges.
func (m *LedgerMetrics) RecordTotals(creators, platformFees, escrowHoldings *big.Int) {
	if m == nil {
		return
	}
	m.totals.WithLabelValues("creators").Set(bigToFloat(creators))
	m.totals.WithLabelValues("platform_fees").Set(bigToFloat(platformFees))
	m.totals.WithLabelValues("escrow").Set(bigToFloat(escrowHoldings))
}

// SetFeeRate records the platform fee rate in basis points.
func (m *LedgerMetrics) SetFeeRate(bps uint32) {
	if m == nil {
		return
	}
	m.feeRate.Set(float64(bps))
}

// SetPause toggles the pause_engaged gauge.
func (m *LedgerMetrics) SetPause(engaged bool) {
	if m == nil {
		return
	}
	if engaged {
		m.pauseEngaged.Set(1)
		return
	}
	m.pauseEngaged.Set(0)
}

// RecordSolvencyBreach counts a failed solvency check.
func (m *LedgerMetrics) RecordSolvencyBreach() {
	if m == nil {
		return
	}
	m.solvencyBreach.Inc()
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value).Float64()
	if acc != big.Exact {
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}

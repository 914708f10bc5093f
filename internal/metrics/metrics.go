// Package metrics declares the Prometheus collectors leadbot exports.
// Collectors are registered on the default registry via promauto and served
// by the HTTP surface at /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "leadbot"

var (
	// parseTotal counts parse attempts.
	//
	// Labels:
	//   - result: "ok" or an error kind such as "malformed_output"
	parseTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_total",
			Help:      "Natural-language parse attempts by result.",
		},
		[]string{"result"},
	)

	// confirmationsTotal counts confirm and cancel events.
	//
	// Labels:
	//   - result: "executed", "failed", "expired", "cancelled", "not_found", "already_executed"
	confirmationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "confirmations_total",
			Help:      "Confirmation events by result.",
		},
		[]string{"result"},
	)

	executionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_total",
			Help:      "CRM executions by action and result.",
		},
		[]string{"action", "result"},
	)

	oracleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "duration_seconds",
			Help:      "Duration of language model calls in seconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"provider", "status"},
	)

	crmRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "crm",
			Name:      "request_duration_seconds",
			Help:      "Duration of CRM REST calls in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "status"},
	)

	stagedCommands = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "staged_commands",
			Help:      "Commands currently held awaiting confirmation.",
		},
	)
)

// ObserveParse records the result of one parse attempt.
func ObserveParse(result string) { parseTotal.WithLabelValues(result).Inc() }

// ObserveConfirmation records the result of a confirm or cancel event.
func ObserveConfirmation(result string) { confirmationsTotal.WithLabelValues(result).Inc() }

// ObserveExecution records one CRM execution.
func ObserveExecution(action, result string) {
	executionsTotal.WithLabelValues(action, result).Inc()
}

// ObserveOracle records the latency of one language model call.
func ObserveOracle(provider string, start time.Time, err error) {
	oracleDuration.WithLabelValues(provider, status(err)).Observe(time.Since(start).Seconds())
}

// ObserveCRM records the latency of one CRM request. A zero code means the
// request never produced a response.
func ObserveCRM(method string, code int, start time.Time) {
	label := "error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	crmRequestDuration.WithLabelValues(method, label).Observe(time.Since(start).Seconds())
}

// SetStaged publishes the current number of staged commands.
func SetStaged(n int) { stagedCommands.Set(float64(n)) }

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

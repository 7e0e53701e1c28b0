// v0
// internal/metrics/metrics.go
package metrics

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Drop reason identifiers exported so ingest logic can increment counters without
// stringly-typed constants.
const (
	DropReasonJSONError   = "json_error"
	DropReasonEmptyValues = "empty_values"
	DropReasonTimestamp   = "bad_timestamp"
)

var (
	registry = prometheus.NewRegistry()

	runsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "condenser_runs_total",
		Help: "Evaluation runs completed by origin.",
	}, []string{"source"})
	rowsEvaluated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "condenser_rows_evaluated_total",
		Help: "Evaluated rows by final status.",
	}, []string{"status"})
	solverIterations = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "condenser_solver_iterations",
		Help:    "Energy-balance iterations per row that reached the solver.",
		Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 200, 500},
	})
	runDurations = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "condenser_run_duration_seconds",
		Help:    "Wall time of evaluation runs.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})
	lastHeatDuty = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "condenser_last_heat_duty_watts",
		Help: "Heat duty of the most recent successful row.",
	})
	ingestMessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "condenser_ingest_messages_total",
		Help: "Raw sample messages received by transport.",
	}, []string{"transport"})
	ingestDecodeDrops = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "condenser_ingest_decode_drop_total",
		Help: "Sample payloads dropped because they could not be decoded.",
	}, []string{"reason"})
	publishTotals = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "condenser_results_published_total",
		Help: "Successful result deliveries by sink.",
	}, []string{"sink"})
	publishFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "condenser_results_publish_failures_total",
		Help: "Failed result deliveries by sink.",
	}, []string{"sink"})
	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "condenser_http_requests_total",
		Help: "API requests by response status.",
	}, []string{"status"})
	httpLatencies = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "condenser_http_request_duration_seconds",
		Help:    "Histogram of API request durations.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	})
)

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		runsTotal,
		rowsEvaluated,
		solverIterations,
		runDurations,
		lastHeatDuty,
		ingestMessagesTotal,
		ingestDecodeDrops,
		publishTotals,
		publishFailures,
		httpRequests,
		httpLatencies,
	)
}

// Handler serves the condenser registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// IncRun counts a completed evaluation run by origin (api, kafka, mqtt, cli).
func IncRun(source string) {
	runsTotal.WithLabelValues(orUnknown(source)).Inc()
}

// ObserveRow records the status of one evaluated row and, for rows that
// reached the solver, its iteration count.
func ObserveRow(status string, iterations int) {
	rowsEvaluated.WithLabelValues(status).Inc()
	if iterations > 0 {
		solverIterations.Observe(float64(iterations))
	}
}

// ObserveRun records the wall time of an evaluation run.
func ObserveRun(duration time.Duration) {
	observe(runDurations, duration.Seconds())
}

// SetLastHeatDuty exposes the most recent successful heat duty in W.
func SetLastHeatDuty(w float64) {
	if math.IsNaN(w) || math.IsInf(w, 0) {
		return
	}
	lastHeatDuty.Set(w)
}

// IncIngestMessage counts a raw sample message received from a transport.
func IncIngestMessage(transport string) {
	ingestMessagesTotal.WithLabelValues(transport).Inc()
}

// IncIngestDecodeDrop increments the classified drop counter for sample
// payloads that could not be decoded.
func IncIngestDecodeDrop(reason string) {
	ingestDecodeDrops.WithLabelValues(orUnknown(reason)).Inc()
}

// ObservePublish records one result delivery attempt for a sink.
func ObservePublish(sink string, err error) {
	if err != nil {
		publishFailures.WithLabelValues(sink).Inc()
		return
	}
	publishTotals.WithLabelValues(sink).Inc()
}

// ObserveHTTPRequest stores the status distribution and latency of API calls.
func ObserveHTTPRequest(status int, duration time.Duration) {
	httpRequests.WithLabelValues(strconv.Itoa(status)).Inc()
	observe(httpLatencies, duration.Seconds())
}

// observe drops non-finite values and clamps negative durations to zero.
func observe(h prometheus.Observer, v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	h.Observe(math.Max(v, 0))
}

func orUnknown(label string) string {
	if strings.TrimSpace(label) == "" {
		return "unknown"
	}
	return label
}

// Package metrics exposes Prometheus collectors for the pipeline, bounty,
// payout, and reputation components.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	core "github.com/deep60/nexus-intel/platform/core"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "nexus",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nexus",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "nexus",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "path"},
	)

	analysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nexus",
			Subsystem: "pipeline",
			Name:      "analyses_total",
			Help:      "Total number of analysis traversals grouped by terminal status.",
		},
		[]string{"status"},
	)

	analysisDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "nexus",
			Subsystem: "pipeline",
			Name:      "analysis_duration_seconds",
			Help:      "Duration of one artifact traversal through the analysis pipeline.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"status"},
	)

	analyzerOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nexus",
			Subsystem: "pipeline",
			Name:      "analyzer_outcomes_total",
			Help:      "Per-analyzer outcome counts (produced|skipped|failed).",
		},
		[]string{"analyzer", "outcome"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nexus",
			Subsystem: "pipeline",
			Name:      "result_cache_lookups_total",
			Help:      "Analysis result cache lookups grouped by outcome (hit|miss).",
		},
		[]string{"outcome"},
	)

	bountyAdmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nexus",
			Subsystem: "bounty",
			Name:      "admissions_total",
			Help:      "Submission admission attempts grouped by outcome.",
		},
		[]string{"outcome"},
	)

	bountyParticipants = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "nexus",
			Subsystem: "bounty",
			Name:      "current_participants",
			Help:      "Current admitted participant count per bounty.",
		},
		[]string{"bounty_id"},
	)

	settlementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nexus",
			Subsystem: "payout",
			Name:      "settlements_total",
			Help:      "Settlements emitted grouped by consensus verdict.",
		},
		[]string{"verdict"},
	)

	ledgerEmissionAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nexus",
			Subsystem: "payout",
			Name:      "ledger_emission_attempts_total",
			Help:      "Ledger.Apply attempts grouped by outcome (applied|transient|permanent).",
		},
		[]string{"outcome"},
	)

	reputationUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nexus",
			Subsystem: "reputation",
			Name:      "updates_total",
			Help:      "Reputation score updates grouped by whether the submission was correct.",
		},
		[]string{"correct"},
	)

	reputationScore = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "nexus",
			Subsystem: "reputation",
			Name:      "score",
			Help:      "Current reputation score per engine.",
		},
		[]string{"engine_id"},
	)

	observationCollectors sync.Map
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		analysesTotal,
		analysisDuration,
		analyzerOutcomes,
		cacheLookups,
		bountyAdmissions,
		bountyParticipants,
		settlementsTotal,
		ledgerEmissionAttempts,
		reputationUpdates,
		reputationScore,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, r.URL.Path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, r.URL.Path).Observe(duration.Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// RecordAnalysis records the terminal status and total duration of one
// artifact traversal through the analysis pipeline.
func RecordAnalysis(status string, dur time.Duration) {
	status = normalizeLabel(status)
	analysesTotal.WithLabelValues(status).Inc()
	analysisDuration.WithLabelValues(status).Observe(dur.Seconds())
}

// RecordAnalyzerOutcome records one analyzer's outcome for one artifact.
func RecordAnalyzerOutcome(analyzerID, outcome string) {
	analyzerOutcomes.WithLabelValues(normalizeLabel(analyzerID), normalizeLabel(outcome)).Inc()
}

// RecordCacheLookup records a pipeline result-cache hit or miss.
func RecordCacheLookup(hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	cacheLookups.WithLabelValues(outcome).Inc()
}

// RecordBountyAdmission records the outcome of one submission admission attempt.
func RecordBountyAdmission(outcome string) {
	bountyAdmissions.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// SetBountyParticipants publishes the current admitted-participant gauge for a bounty.
func SetBountyParticipants(bountyID string, count int) {
	bountyParticipants.WithLabelValues(bountyID).Set(float64(count))
}

// RecordSettlement records one emitted Settlement by its consensus verdict.
func RecordSettlement(verdict string) {
	settlementsTotal.WithLabelValues(normalizeLabel(verdict)).Inc()
}

// RecordLedgerEmission records one Ledger.Apply attempt outcome.
func RecordLedgerEmission(outcome string) {
	ledgerEmissionAttempts.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// RecordReputationUpdate records one reputation score update.
func RecordReputationUpdate(correct bool) {
	label := "false"
	if correct {
		label = "true"
	}
	reputationUpdates.WithLabelValues(label).Inc()
}

// SetReputationScore publishes the current score gauge for one engine.
func SetReputationScore(engineID string, score float64) {
	reputationScore.WithLabelValues(engineID).Set(score)
}

func normalizeLabel(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return "unknown"
	}
	return s
}

type observationCollector struct {
	gauge *prometheus.GaugeVec
	hist  *prometheus.HistogramVec
}

// ObservationHooks creates core observation hooks backed by Prometheus metrics,
// lazily registering one gauge/histogram pair per (namespace, subsystem, name).
func ObservationHooks(namespace, subsystem, name string) core.ObservationHooks {
	key := namespace + ":" + subsystem + ":" + name
	var collector observationCollector
	if entry, ok := observationCollectors.Load(key); ok {
		collector = entry.(observationCollector)
	} else {
		collector = createObservationCollector(namespace, subsystem, name)
		observationCollectors.Store(key, collector)
	}
	return core.ObservationHooks{
		OnStart: func(ctx context.Context, meta map[string]string) {
			label := metaLabel(meta)
			collector.gauge.WithLabelValues(label).Inc()
		},
		OnComplete: func(ctx context.Context, meta map[string]string, err error, duration time.Duration) {
			label := metaLabel(meta)
			collector.gauge.WithLabelValues(label).Dec()
			status := "success"
			if err != nil {
				status = "error"
			}
			collector.hist.WithLabelValues(label, status).Observe(duration.Seconds())
		},
	}
}

func metaLabel(meta map[string]string) string {
	if meta == nil {
		return "unknown"
	}
	for _, key := range []string{"bounty_id", "engine_id", "artifact", "analyzer_id", "resource"} {
		if id, ok := meta[key]; ok && id != "" {
			return id
		}
	}
	return "unknown"
}

// PipelineAnalyzeHooks captures per-artifact analysis traversal attempts.
func PipelineAnalyzeHooks() core.ObservationHooks {
	return ObservationHooks("nexus", "pipeline", "analyze")
}

// BountyAdmissionHooks captures submission admission attempts.
func BountyAdmissionHooks() core.ObservationHooks {
	return ObservationHooks("nexus", "bounty", "admission")
}

// SettlementEmissionHooks captures Ledger.Apply emission attempts.
func SettlementEmissionHooks() core.ObservationHooks {
	return ObservationHooks("nexus", "payout", "emission")
}

func createObservationCollector(namespace, subsystem, name string) observationCollector {
	gauge := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name + "_in_flight",
			Help:      "Current operations in flight for " + subsystem,
		},
		[]string{"resource"},
	)
	hist := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name + "_duration_seconds",
			Help:      "Duration of operations for " + subsystem,
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"resource", "status"},
	)
	Registry.MustRegister(gauge, hist)
	return observationCollector{gauge: gauge, hist: hist}
}

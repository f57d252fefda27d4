// Package metrics provides Prometheus metrics collection for the engine's
// HTTP surface, ledger, and numeric policies.
package metrics

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every Prometheus collector the engine exposes. Collectors
// are grouped by the surface they describe, not by type.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	ErrorsTotal *prometheus.CounterVec

	LedgerAppendsTotal   *prometheus.CounterVec
	LedgerAppendDuration *prometheus.HistogramVec
	LedgerLength         *prometheus.GaugeVec
	LedgerVerifyFailures *prometheus.CounterVec

	ConsensusScore      *prometheus.HistogramVec
	WeightedHoursCredit *prometheus.CounterVec
	AccountDecayTotal   *prometheus.CounterVec
	BottleneckSeverity  *prometheus.HistogramVec
	FindingsEmitted     *prometheus.CounterVec

	ServiceUptime prometheus.Gauge
	ServiceInfo   *prometheus.GaugeVec

	collectors []prometheus.Collector
}

// New builds a Metrics registered against the process-wide default
// registry.
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry builds a Metrics registered against registerer, or left
// unregistered if registerer is nil — the shape isolated tests want so
// that building two Metrics in the same process doesn't panic on a
// duplicate collector registration.
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{}

	m.RequestsTotal = m.counter("http_requests_total", "Total number of HTTP requests",
		"service", "method", "path", "status")
	m.RequestDuration = m.histogram("http_request_duration_seconds", "HTTP request duration in seconds",
		prometheus.DefBuckets, "service", "method", "path")
	m.RequestsInFlight = m.gauge("http_requests_in_flight", "Current number of HTTP requests being processed")

	m.ErrorsTotal = m.counter("errors_total", "Total number of errors by taxonomy kind (spec.md §7)",
		"service", "kind", "operation")

	m.LedgerAppendsTotal = m.counter("ledger_appends_total", "Total number of ledger entries appended",
		"node_id", "entry_type")
	m.LedgerAppendDuration = m.histogram("ledger_append_duration_seconds", "Ledger append duration in seconds",
		[]float64{.0001, .0005, .001, .005, .01, .05, .1}, "node_id")
	m.LedgerLength = m.gaugeVec("ledger_length", "Current number of entries in the ledger", "node_id")
	m.LedgerVerifyFailures = m.counter("ledger_verify_failures_total", "Total number of ledger verification failures", "node_id")

	m.ConsensusScore = m.histogram("cds_consensus_score", "Distribution of computed consensus scores C(s)",
		[]float64{-1, -0.5, 0, 0.2, 0.4, 0.6, 0.8, 1}, "node_id")
	m.WeightedHoursCredit = m.counter("itc_weighted_hours_credited_total", "Total weighted hours credited to accounts",
		"node_id", "skill_tier")
	m.AccountDecayTotal = m.counter("itc_account_decay_total", "Total ITC decayed from accounts", "node_id")
	m.BottleneckSeverity = m.histogram("cos_bottleneck_severity", "Distribution of computed bottleneck severities S_k",
		[]float64{0, 0.15, 0.3, 0.5, 0.75, 1}, "node_id")
	m.FindingsEmitted = m.counter("frs_findings_emitted_total", "Total diagnostic findings emitted by type",
		"node_id", "finding_type", "severity")

	m.ServiceUptime = m.gauge("service_uptime_seconds", "Service uptime in seconds")
	m.ServiceInfo = m.gaugeVec("service_info", "Service information", "service", "version", "environment")

	if registerer != nil {
		registerer.MustRegister(m.collectors...)
	}
	m.ServiceInfo.WithLabelValues(serviceName, "1.0.0", currentEnvironment()).Set(1)
	return m
}

// counter/histogram/gauge/gaugeVec build a collector and remember it on m
// so NewWithRegistry's single MustRegister call covers everything defined
// above, without a second hand-maintained list that could drift from the
// struct fields.

func (m *Metrics) counter(name, help string, labels ...string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels)
	m.collectors = append(m.collectors, c)
	return c
}

func (m *Metrics) histogram(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name, Help: help, Buckets: buckets}, labels)
	m.collectors = append(m.collectors, h)
	return h
}

func (m *Metrics) gauge(name, help string) prometheus.Gauge {
	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
	m.collectors = append(m.collectors, g)
	return g
}

func (m *Metrics) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, labels)
	m.collectors = append(m.collectors, g)
	return g
}

func (m *Metrics) RecordHTTPRequest(service, method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(service, method, path, status).Inc()
	m.RequestDuration.WithLabelValues(service, method, path).Observe(duration.Seconds())
}

func (m *Metrics) RecordError(service, kind, operation string) {
	m.ErrorsTotal.WithLabelValues(service, kind, operation).Inc()
}

// RecordLedgerAppend records one append and the ledger's new length,
// spec.md §8's "ledger length" gauge.
func (m *Metrics) RecordLedgerAppend(nodeID, entryType string, length int, duration time.Duration) {
	m.LedgerAppendsTotal.WithLabelValues(nodeID, entryType).Inc()
	m.LedgerAppendDuration.WithLabelValues(nodeID).Observe(duration.Seconds())
	m.LedgerLength.WithLabelValues(nodeID).Set(float64(length))
}

func (m *Metrics) RecordLedgerVerifyFailure(nodeID string) {
	m.LedgerVerifyFailures.WithLabelValues(nodeID).Inc()
}

func (m *Metrics) RecordConsensusScore(nodeID string, score float64) {
	m.ConsensusScore.WithLabelValues(nodeID).Observe(score)
}

func (m *Metrics) RecordWeightedHoursCredit(nodeID, skillTier string, hours float64) {
	m.WeightedHoursCredit.WithLabelValues(nodeID, skillTier).Add(hours)
}

func (m *Metrics) RecordAccountDecay(nodeID string, amount float64) {
	m.AccountDecayTotal.WithLabelValues(nodeID).Add(amount)
}

func (m *Metrics) RecordBottleneckSeverity(nodeID string, severity float64) {
	m.BottleneckSeverity.WithLabelValues(nodeID).Observe(severity)
}

func (m *Metrics) RecordFinding(nodeID, findingType, severity string) {
	m.FindingsEmitted.WithLabelValues(nodeID, findingType, severity).Inc()
}

func (m *Metrics) UpdateUptime(startTime time.Time) {
	m.ServiceUptime.Set(time.Since(startTime).Seconds())
}

func (m *Metrics) IncrementInFlight() { m.RequestsInFlight.Inc() }
func (m *Metrics) DecrementInFlight() { m.RequestsInFlight.Dec() }

func currentEnvironment() string {
	if env := strings.ToLower(strings.TrimSpace(os.Getenv("ENGINE_ENV"))); env != "" {
		return env
	}
	return "development"
}

// Enabled reports whether Prometheus metrics should be exposed. Enabled by
// default; set METRICS_ENABLED to a falsy value to turn collection off.
func Enabled() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("METRICS_ENABLED"))) {
	case "", "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

var (
	globalOnce    sync.Once
	globalMetrics *Metrics
)

// Init builds the process-wide Metrics the first time it's called and
// returns it on every subsequent call, regardless of serviceName.
func Init(serviceName string) *Metrics {
	globalOnce.Do(func() { globalMetrics = New(serviceName) })
	return globalMetrics
}

// Global returns the process-wide Metrics, building one for
// "integral-engine" if Init was never called.
func Global() *Metrics {
	return Init("integral-engine")
}

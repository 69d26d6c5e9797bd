package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for a casefile process.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	StepVisits       *prometheus.CounterVec
	ToolCalls        *prometheus.CounterVec
	GatewayCalls     *prometheus.CounterVec
	GatewayLatency   *prometheus.HistogramVec
	CacheLookups     *prometheus.CounterVec
	ConsentDecisions *prometheus.CounterVec
	SMSWaits         *prometheus.CounterVec
	Rechecks         *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewMetrics creates the collectors and registers them on reg.
// Pass prometheus.NewRegistry() in tests to keep them isolated.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		StepVisits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "casefile_step_visits_total",
				Help: "Total number of step entries, retries included",
			},
			[]string{"step"},
		),
		ToolCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "casefile_tool_calls_total",
				Help: "Tool invocations by tool and result",
			},
			[]string{"tool", "result"},
		),
		GatewayCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "casefile_gateway_calls_total",
				Help: "Validation gateway calls by capability and outcome",
			},
			[]string{"capability", "outcome"},
		),
		GatewayLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "casefile_gateway_duration_seconds",
				Help:    "Duration of validation gateway calls",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"capability"},
		),
		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "casefile_cache_lookups_total",
				Help: "Pre-call enrichment lookups by record source",
			},
			[]string{"source"},
		),
		ConsentDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "casefile_consent_decisions_total",
				Help: "Consent ledger rows by type and decision",
			},
			[]string{"type", "granted"},
		),
		SMSWaits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "casefile_sms_waits_total",
				Help: "SMS form waits by result",
			},
			[]string{"result"},
		),
		Rechecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "casefile_email_rechecks_total",
				Help: "Post-call email re-checks by status",
			},
			[]string{"status"},
		),
		gatherer: reg,
	}
	reg.MustRegister(
		m.StepVisits, m.ToolCalls, m.GatewayCalls, m.GatewayLatency,
		m.CacheLookups, m.ConsentDecisions, m.SMSWaits, m.Rechecks,
	)
	return m
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) StepVisited(step string) {
	if m == nil {
		return
	}
	m.StepVisits.WithLabelValues(step).Inc()
}

func (m *Metrics) ToolCalled(tool, result string) {
	if m == nil {
		return
	}
	m.ToolCalls.WithLabelValues(tool, result).Inc()
}

func (m *Metrics) GatewayCalled(capability, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.GatewayCalls.WithLabelValues(capability, outcome).Inc()
	m.GatewayLatency.WithLabelValues(capability).Observe(d.Seconds())
}

func (m *Metrics) CacheLookup(source string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(source).Inc()
}

func (m *Metrics) ConsentDecision(consentType string, granted bool) {
	if m == nil {
		return
	}
	m.ConsentDecisions.WithLabelValues(consentType, strconv.FormatBool(granted)).Inc()
}

func (m *Metrics) SMSWait(result string) {
	if m == nil {
		return
	}
	m.SMSWaits.WithLabelValues(result).Inc()
}

func (m *Metrics) Recheck(status string) {
	if m == nil {
		return
	}
	m.Rechecks.WithLabelValues(status).Inc()
}

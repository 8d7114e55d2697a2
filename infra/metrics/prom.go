// Package metrics provides the Prometheus and InfluxDB sink adapters.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/fleetops/dutyroster/core/metrics"
)

// PromSink records engine events in Prometheus metrics.
type PromSink struct {
	decisions     *prometheus.CounterVec
	sessionBuilds *prometheus.HistogramVec
	remaining     prometheus.Gauge
	reports       *prometheus.HistogramVec
}

// NewPromSink registers the metrics on the default Prometheus registerer.
// The Prometheus endpoint is served separately on cfg.PrometheusPort.
func NewPromSink(cfg coremetrics.Config) (coremetrics.Sink, error) {
	return NewPromSinkWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers the metrics on the provided registerer.
// A nil registerer defaults to the global one.
func NewPromSinkWithRegistry(cfg coremetrics.Config, reg prometheus.Registerer) (coremetrics.Sink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roster_decisions_total",
		Help: "Total number of assignment decisions by action",
	}, []string{"tenant_id", "action"})
	sessionBuilds := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "roster_session_build_seconds",
		Help:    "Time spent building scheduling sessions",
		Buckets: prometheus.DefBuckets,
	}, []string{"tenant_id", "degraded"})
	remaining := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "roster_session_remaining_blocks",
		Help: "Unassigned blocks in the most recently built session",
	})
	reports := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "roster_compliance_report_seconds",
		Help:    "Time spent producing compliance reports",
		Buckets: prometheus.DefBuckets,
	}, []string{"tenant_id"})

	if err := reg.Register(decisions); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			decisions = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(sessionBuilds); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			sessionBuilds = are.ExistingCollector.(*prometheus.HistogramVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(remaining); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			remaining = are.ExistingCollector.(prometheus.Gauge)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(reports); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			reports = are.ExistingCollector.(*prometheus.HistogramVec)
		} else {
			return nil, err
		}
	}
	return &PromSink{decisions: decisions, sessionBuilds: sessionBuilds, remaining: remaining, reports: reports}, nil
}

// RecordDecision increments the decision counter.
func (s *PromSink) RecordDecision(ev coremetrics.DecisionEvent) error {
	s.decisions.WithLabelValues(ev.TenantID, ev.Action).Inc()
	return nil
}

// RecordSessionBuild observes the build duration and remaining gauge.
func (s *PromSink) RecordSessionBuild(ev coremetrics.SessionBuildEvent) error {
	s.sessionBuilds.WithLabelValues(ev.TenantID, strconv.FormatBool(ev.Degraded)).Observe(ev.Duration.Seconds())
	s.remaining.Set(float64(ev.Remaining))
	return nil
}

// RecordReport observes the report duration.
func (s *PromSink) RecordReport(ev coremetrics.ReportEvent) error {
	s.reports.WithLabelValues(ev.TenantID).Observe(ev.Duration.Seconds())
	return nil
}

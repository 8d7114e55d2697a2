// Package metrics defines the observability sinks fed by the engine.
package metrics

import "time"

// DecisionEvent is one recorded assignment decision.
type DecisionEvent struct {
	TenantID      string
	Action        string // assigned / skipped / failed
	DriverID      string
	BlockID       string
	CombinedScore float64
	Time          time.Time
}

// SessionBuildEvent captures one session construction.
type SessionBuildEvent struct {
	TenantID  string
	WeekStart string
	Blocks    int
	Drivers   int
	Remaining int
	Degraded  bool
	Duration  time.Duration
	Time      time.Time
}

// ReportEvent captures one batch compliance evaluation.
type ReportEvent struct {
	TenantID   string
	Days       int
	Drivers    int
	Violations int
	Warnings   int
	Duration   time.Duration
	Time       time.Time
}

// Sink records engine events for observability purposes.
type Sink interface {
	RecordDecision(ev DecisionEvent) error
	RecordSessionBuild(ev SessionBuildEvent) error
	RecordReport(ev ReportEvent) error
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) RecordDecision(DecisionEvent) error         { return nil }
func (NopSink) RecordSessionBuild(SessionBuildEvent) error { return nil }
func (NopSink) RecordReport(ReportEvent) error             { return nil }

// Config describes the metrics backends.
type Config struct {
	PrometheusEnabled bool   `json:"prometheus_enabled"`
	PrometheusPort    string `json:"prometheus_port"`
	InfluxEnabled     bool   `json:"influx_enabled"`
	InfluxURL         string `json:"influx_url"`
	InfluxToken       string `json:"influx_token"`
	InfluxOrg         string `json:"influx_org"`
	InfluxBucket      string `json:"influx_bucket"`
}

// SetDefaults fills optional fields.
func (c *Config) SetDefaults() {
	if c.PrometheusPort == "" {
		c.PrometheusPort = "9090"
	}
}

package metrics

import coremetrics "github.com/fleetops/dutyroster/core/metrics"

// MultiSink fans events out to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordDecision forwards the event to all sinks, returning the first error encountered.
func (m *MultiSink) RecordDecision(ev coremetrics.DecisionEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordDecision(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordSessionBuild forwards the event to all sinks.
func (m *MultiSink) RecordSessionBuild(ev coremetrics.SessionBuildEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordSessionBuild(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordReport forwards the event to all sinks.
func (m *MultiSink) RecordReport(ev coremetrics.ReportEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordReport(ev); err != nil {
			return err
		}
	}
	return nil
}

// Package metrics provides Prometheus collectors for generation calls, remote
// persistence and pipeline progress.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels shared by the counters.
const (
	OutcomeOK          = "ok"
	OutcomeError       = "error"
	OutcomeUnparseable = "unparseable"
)

// Collectors groups the prospector counters. A nil *Collectors is valid and
// records nothing.
type Collectors struct {
	// GatewayCalls counts generation calls.
	// Labels: operation, outcome (ok, error, unparseable)
	GatewayCalls *prometheus.CounterVec

	// RemoteWrites counts remote-tier writes.
	// Labels: kind (session, business, prompt, website, review, outreach), outcome (ok, error)
	RemoteWrites *prometheus.CounterVec

	// StageTransitions counts forward moves into a stage.
	// Labels: stage
	StageTransitions *prometheus.CounterVec
}

// New creates the collectors and registers them on reg. A nil registerer
// leaves them unregistered.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		GatewayCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "prospector",
				Subsystem: "gateway",
				Name:      "calls_total",
				Help:      "Total number of generation calls by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		RemoteWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "prospector",
				Subsystem: "storage",
				Name:      "remote_writes_total",
				Help:      "Total number of remote-tier writes by record kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		StageTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "prospector",
				Subsystem: "pipeline",
				Name:      "stage_transitions_total",
				Help:      "Total number of forward stage transitions",
			},
			[]string{"stage"},
		),
	}
	if reg != nil {
		reg.MustRegister(c.GatewayCalls, c.RemoteWrites, c.StageTransitions)
	}
	return c
}

// GatewayCall records one generation call.
func (c *Collectors) GatewayCall(operation, outcome string) {
	if c == nil {
		return
	}
	c.GatewayCalls.WithLabelValues(operation, outcome).Inc()
}

// RemoteWrite records one remote write; err decides the outcome.
func (c *Collectors) RemoteWrite(kind string, err error) {
	if c == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	c.RemoteWrites.WithLabelValues(kind, outcome).Inc()
}

// StageTransition records a move into stage.
func (c *Collectors) StageTransition(stage string) {
	if c == nil {
		return
	}
	c.StageTransitions.WithLabelValues(stage).Inc()
}

// Package metrics counts what a testbed session created, deleted and
// harvested. The counters are written as a Prometheus textfile next to the
// flow report once the session ends.
package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

type Collector struct {
	gatherer prometheus.Gatherer

	NodesCreated       *prometheus.CounterVec
	NodesDeleted       *prometheus.CounterVec
	TeardownErrors     prometheus.Counter
	CaptureFiles       prometheus.Counter
	ConversionFailures prometheus.Counter
	ReportRows         prometheus.Gauge
	State              *prometheus.GaugeVec
}

// NewCollector registers the testbed metrics against reg, defaulting to the
// global registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	created, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "testbed_nodes_created_total",
		Help: "Nodes instantiated, labeled by role.",
	}, []string{"role"}), "testbed_nodes_created_total")
	if err != nil {
		return nil, err
	}
	deleted, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "testbed_nodes_deleted_total",
		Help: "Nodes deleted during teardown, labeled by role.",
	}, []string{"role"}), "testbed_nodes_deleted_total")
	if err != nil {
		return nil, err
	}
	teardownErrors, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "testbed_teardown_errors_total",
		Help: "Delete calls that failed during teardown.",
	}), "testbed_teardown_errors_total")
	if err != nil {
		return nil, err
	}
	captures, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "testbed_capture_files_total",
		Help: "Raw capture files found by the harvester.",
	}), "testbed_capture_files_total")
	if err != nil {
		return nil, err
	}
	conversions, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "testbed_conversion_failures_total",
		Help: "Capture files the converter failed on.",
	}), "testbed_conversion_failures_total")
	if err != nil {
		return nil, err
	}
	rows, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "testbed_report_rows",
		Help: "Data rows in the merged flow report.",
	}), "testbed_report_rows")
	if err != nil {
		return nil, err
	}
	state, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "testbed_lifecycle_state",
		Help: "1 for the lifecycle state the session is in, 0 otherwise.",
	}, []string{"state"}), "testbed_lifecycle_state")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:           gatherer,
		NodesCreated:       created,
		NodesDeleted:       deleted,
		TeardownErrors:     teardownErrors,
		CaptureFiles:       captures,
		ConversionFailures: conversions,
		ReportRows:         rows,
		State:              state,
	}, nil
}

// The helpers below accept a nil collector so callers need not guard.

func (c *Collector) NodeCreated(role string) {
	if c == nil {
		return
	}
	c.NodesCreated.WithLabelValues(role).Inc()
}

func (c *Collector) NodeDeleted(role string) {
	if c == nil {
		return
	}
	c.NodesDeleted.WithLabelValues(role).Inc()
}

func (c *Collector) TeardownFailed() {
	if c == nil {
		return
	}
	c.TeardownErrors.Inc()
}

func (c *Collector) CapturesFound(n int) {
	if c == nil {
		return
	}
	c.CaptureFiles.Add(float64(n))
}

func (c *Collector) ConversionFailed() {
	if c == nil {
		return
	}
	c.ConversionFailures.Inc()
}

func (c *Collector) ReportWritten(rows int) {
	if c == nil {
		return
	}
	c.ReportRows.Set(float64(rows))
}

// SetState marks state as current and clears prev.
func (c *Collector) SetState(prev, state string) {
	if c == nil {
		return
	}
	if prev != "" {
		c.State.WithLabelValues(prev).Set(0)
	}
	c.State.WithLabelValues(state).Set(1)
}

// WriteTextfile persists every gathered metric in the text exposition format.
func (c *Collector) WriteTextfile(path string) error {
	if c == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, c.gatherer); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}
	return nil
}

func registerCounter(reg prometheus.Registerer, c prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("register %s: %w", name, err)
	}
	return c, nil
}

func registerCounterVec(reg prometheus.Registerer, c *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("register %s: %w", name, err)
	}
	return c, nil
}

func registerGauge(reg prometheus.Registerer, g prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(g); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("register %s: %w", name, err)
	}
	return g, nil
}

func registerGaugeVec(reg prometheus.Registerer, g *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(g); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("register %s: %w", name, err)
	}
	return g, nil
}

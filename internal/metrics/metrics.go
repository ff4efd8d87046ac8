// Package metrics exports run outcomes in the Prometheus text format so
// node_exporter's textfile collector can pick them up.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/datashades/converge/internal/model"
	"github.com/datashades/converge/internal/resource"
)

const namespace = "converge"

// Recorder collects metrics for a single invocation. It satisfies the
// engine's Observer interface so step counters update as the run goes.
type Recorder struct {
	registry *prometheus.Registry

	steps        *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	runDuration  *prometheus.GaugeVec
	runFailed    *prometheus.GaugeVec
	lastSuccess  *prometheus.GaugeVec
}

// NewRecorder returns a Recorder backed by its own registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		steps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "steps_total",
				Help:      "Steps processed, by outcome and resource kind",
			},
			[]string{"status", "kind"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Duration of individual steps",
				Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 30, 120, 600},
			},
			[]string{"kind"},
		),
		runDuration: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of the most recent run",
			},
			[]string{"recipe"},
		),
		runFailed: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "run_failed",
				Help:      "1 when the most recent run halted on an error",
			},
			[]string{"recipe"},
		),
		lastSuccess: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_success_timestamp_seconds",
				Help:      "Unix time of the last run that finished without error",
			},
			[]string{"recipe"},
		),
	}
	r.registry.MustRegister(r.steps, r.stepDuration, r.runDuration, r.runFailed, r.lastSuccess)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

func (r *Recorder) StepStarted(resource.Descriptor, int, int) {}

func (r *Recorder) StepFinished(result model.StepResult, _, _ int) {
	r.steps.WithLabelValues(result.Status, result.Kind).Inc()
	r.stepDuration.WithLabelValues(result.Kind).Observe(result.Duration.Seconds())
}

// ObserveRun records the run-level gauges from a finished report.
func (r *Recorder) ObserveRun(report *model.RunReport) {
	if report == nil {
		return
	}
	r.runDuration.WithLabelValues(report.Recipe).Set(report.Duration().Seconds())
	if report.ExitCode() != 0 {
		r.runFailed.WithLabelValues(report.Recipe).Set(1)
		return
	}
	r.runFailed.WithLabelValues(report.Recipe).Set(0)
	if !report.DryRun {
		r.lastSuccess.WithLabelValues(report.Recipe).Set(float64(report.Finished.Unix()))
	}
}

// WriteTextfile writes the registry to path atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

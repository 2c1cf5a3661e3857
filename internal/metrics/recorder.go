// Package metrics records Prometheus metrics for evaluation passes.
// A pass is a short-lived process, so metrics are pushed to a Pushgateway
// at the end of the pass instead of being scraped.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"incident-detector/internal/model"
)

const namespace = "incident_detector"

// Recorder owns the collectors for one process. It is safe for concurrent use.
type Recorder struct {
	registry *prometheus.Registry

	EntitiesEvaluated prometheus.Counter
	TelemetryGaps     *prometheus.CounterVec
	Signals           *prometheus.CounterVec
	Suppressed        prometheus.Counter
	Incidents         prometheus.Counter
	StepResults       *prometheus.CounterVec
	StepDuration      *prometheus.HistogramVec
	PassDuration      prometheus.Gauge
	LastPassSuccess   prometheus.Gauge
}

// NewRecorder creates a Recorder backed by its own registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	register := func(c prometheus.Collector) {
		reg.MustRegister(c)
	}

	r := &Recorder{
		registry: reg,
		EntitiesEvaluated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entities_evaluated_total",
			Help:      "Total number of entities evaluated",
		}),
		TelemetryGaps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_gaps_total",
			Help:      "Metric fetches that returned no data or failed",
		}, []string{"metric", "reason"}),
		Signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breach_signals_total",
			Help:      "Threshold breaches observed",
		}, []string{"metric"}),
		Suppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suppressed_total",
			Help:      "Breaching entities suppressed by the cooldown gate",
		}),
		Incidents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "incidents_total",
			Help:      "Incidents emitted",
		}),
		StepResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_results_total",
			Help:      "Side-effecting step results",
		}, []string{"step", "result"}),
		StepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Duration of side-effecting steps",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"step"}),
		PassDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pass_duration_seconds",
			Help:      "Duration of the last evaluation pass",
		}),
		LastPassSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_pass_success_timestamp_seconds",
			Help:      "Unix time of the last pass that completed without a configuration error",
		}),
	}

	register(r.EntitiesEvaluated)
	register(r.TelemetryGaps)
	register(r.Signals)
	register(r.Suppressed)
	register(r.Incidents)
	register(r.StepResults)
	register(r.StepDuration)
	register(r.PassDuration)
	register(r.LastPassSuccess)

	return r
}

// Registry exposes the underlying registry (used by tests and the pusher).
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveStep records the result and duration of a side-effecting step.
func (r *Recorder) ObserveStep(outcome model.StepOutcome, elapsed time.Duration) {
	result := "success"
	if !outcome.OK {
		result = "failure"
	}
	r.StepResults.WithLabelValues(string(outcome.Step), result).Inc()
	r.StepDuration.WithLabelValues(string(outcome.Step)).Observe(elapsed.Seconds())
}

// ObservePass records pass-level gauges.
func (r *Recorder) ObservePass(result *model.PassResult) {
	r.PassDuration.Set(result.Duration().Seconds())
	if result.Error == "" {
		r.LastPassSuccess.Set(float64(result.FinishedAt.Unix()))
	}
}

// Push sends all collected metrics to a Pushgateway under job.
func (r *Recorder) Push(ctx context.Context, url, job string) error {
	if url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(r.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}

// Package service provides the incident evaluation and response pipeline.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"incident-detector/internal/metrics"
	"incident-detector/internal/model"
)

const (
	defaultConcurrency = 4
	defaultStepTimeout = 10 * time.Second
	defaultWindow      = 5 * time.Minute
)

// Dependencies holds the collaborators of the orchestrator.
// Optional capabilities are nil when not configured.
type Dependencies struct {
	Source    MetricSource      // required
	Notifier  Notifier          // nil: messages are dropped
	Cooldown  CooldownStore     // nil: deduplication disabled
	Forensics ForensicsTrigger  // nil: no snapshots
	Playbook  PlaybookTrigger   // nil: no remediation workflow
	Recorder  *metrics.Recorder // nil: no pass metrics
}

// Orchestrator runs evaluation passes over a list of entities.
type Orchestrator struct {
	deps        Dependencies
	classifier  *Classifier
	gate        *CooldownGate
	metrics     []model.TrackedMetric
	cooldown    time.Duration
	window      time.Duration
	concurrency int
	stepTimeout time.Duration
	now         func() time.Time
	logger      zerolog.Logger
}

// OrchestratorOption is a functional option for configuring an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithConcurrency sets the number of entities evaluated in parallel.
func WithConcurrency(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithStepTimeout bounds every external call made during a pass.
func WithStepTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.stepTimeout = d
		}
	}
}

// WithWindow sets the telemetry averaging window.
func WithWindow(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.window = d
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(
	deps Dependencies,
	thresholds model.Thresholds,
	tracked []model.TrackedMetric,
	cooldown time.Duration,
	logger zerolog.Logger,
	opts ...OrchestratorOption,
) (*Orchestrator, error) {
	if deps.Source == nil {
		return nil, errors.New("metric source cannot be nil")
	}
	if len(tracked) == 0 {
		return nil, errors.New("at least one tracked metric is required")
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}

	o := &Orchestrator{
		deps:        deps,
		classifier:  NewClassifier(thresholds, tracked),
		metrics:     tracked,
		cooldown:    cooldown,
		window:      defaultWindow,
		concurrency: defaultConcurrency,
		stepTimeout: defaultStepTimeout,
		now:         time.Now,
		logger:      logger.With().Str("component", "orchestrator").Logger(),
	}

	for _, opt := range opts {
		opt(o)
	}

	o.gate = NewCooldownGate(deps.Cooldown, cooldown, o.stepTimeout, logger)

	return o, nil
}

// entityReport is the per-entity outcome collected by a worker.
type entityReport struct {
	breaching  bool
	suppressed bool
	result     *model.EvaluationResult
}

// Evaluate runs one evaluation pass. Results follow the order of entities.
// An empty entity list notifies the operator and returns a *ConfigurationError
// together with a PassResult carrying the error; no other error is returned.
func (o *Orchestrator) Evaluate(ctx context.Context, entities []string) (*model.PassResult, error) {
	result := model.NewPassResult(o.now())

	if len(entities) == 0 {
		cfgErr := &ConfigurationError{Reason: "no entities configured"}
		o.logger.Error().Msg("no entities configured, skipping evaluation")
		o.notify(ctx, "", noEntitiesMessage, "")
		result.Error = cfgErr.Reason
		result.Finalize(o.now())
		o.observePass(result)
		return result, cfgErr
	}

	o.logger.Info().
		Int("entities", len(entities)).
		Int("metrics", len(o.metrics)).
		Bool("dedup", o.gate.Enabled()).
		Bool("forensics", o.deps.Forensics != nil).
		Bool("playbook", o.deps.Playbook != nil).
		Msg("starting evaluation pass")

	reports := make([]entityReport, len(entities))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)

	for i, entityID := range entities {
		i, entityID := i, entityID
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					o.logger.Error().
						Str("entity", entityID).
						Interface("panic", r).
						Msg("entity evaluation panicked, continuing with others")
				}
			}()
			reports[i] = o.evaluateEntity(gctx, entityID)
			return nil // one entity never aborts the pass
		})
	}
	_ = g.Wait()

	result.Summary.Entities = len(entities)
	for _, r := range reports {
		if r.breaching {
			result.Summary.Breaching++
		}
		if r.suppressed {
			result.Summary.Suppressed++
		}
		if r.result != nil {
			result.Incidents = append(result.Incidents, *r.result)
		}
	}
	result.Finalize(o.now())
	o.observePass(result)

	o.logger.Info().
		Int("entities", result.Summary.Entities).
		Int("breaching", result.Summary.Breaching).
		Int("suppressed", result.Summary.Suppressed).
		Int("incidents", result.Summary.Incidents).
		Int("step_errors", result.Summary.StepErrors).
		Dur("duration", result.Duration()).
		Msg("evaluation pass completed")

	return result, nil
}

// evaluateEntity runs the full pipeline for one entity.
func (o *Orchestrator) evaluateEntity(ctx context.Context, entityID string) entityReport {
	var report entityReport
	if rec := o.deps.Recorder; rec != nil {
		rec.EntitiesEvaluated.Inc()
	}

	readings := o.fetchReadings(ctx, entityID)
	signals := o.classifier.Classify(readings)
	if len(signals) == 0 {
		o.logger.Debug().Str("entity", entityID).Msg("no breach")
		return report
	}
	report.breaching = true
	if rec := o.deps.Recorder; rec != nil {
		for _, s := range signals {
			rec.Signals.WithLabelValues(string(s.Metric)).Inc()
		}
	}

	now := o.now()
	if !o.gate.Allow(ctx, entityID, now) {
		report.suppressed = true
		if rec := o.deps.Recorder; rec != nil {
			rec.Suppressed.Inc()
		}
		return report
	}

	inc := model.NewIncident(entityID, signals, now)
	if rec := o.deps.Recorder; rec != nil {
		rec.Incidents.Inc()
	}
	o.logger.Warn().
		Str("entity", entityID).
		Str("incident_id", inc.ID).
		Strs("signals", model.SignalStrings(signals)).
		Msg("incident detected")

	steps := make([]model.StepOutcome, 0, 5)
	steps = append(steps, o.notify(ctx, entityID, FormatIncidentMessage(inc), "incident"))

	if o.deps.Forensics != nil {
		steps = append(steps, o.captureForensics(ctx, inc)...)
	}

	if o.deps.Playbook != nil {
		steps = append(steps, o.startPlaybook(ctx, inc)...)
	}

	res := model.NewEvaluationResult(inc, steps)
	report.result = &res
	return report
}

// fetchReadings queries every tracked metric. Errors and empty windows become
// absent readings.
func (o *Orchestrator) fetchReadings(ctx context.Context, entityID string) map[model.MetricName]*model.Reading {
	readings := make(map[model.MetricName]*model.Reading, len(o.metrics))

	for _, m := range o.metrics {
		callCtx, cancel := context.WithTimeout(ctx, o.stepTimeout)
		value, ok, err := o.deps.Source.Average(callCtx, m, entityID, o.window)
		cancel()

		switch {
		case err != nil:
			o.recordGap(m.Name, "error")
			o.logger.Warn().
				Err(err).
				Str("entity", entityID).
				Str("metric", string(m.Name)).
				Msg("metric fetch failed, treating as absent")
			readings[m.Name] = nil
		case !ok:
			o.recordGap(m.Name, "no_data")
			o.logger.Debug().
				Str("entity", entityID).
				Str("metric", string(m.Name)).
				Msg("no data in window")
			readings[m.Name] = nil
		default:
			readings[m.Name] = &model.Reading{Metric: m.Name, Average: value, Window: o.window}
		}
	}

	return readings
}

// captureForensics snapshots the entity and reports the result to the operator.
func (o *Orchestrator) captureForensics(ctx context.Context, inc *model.Incident) []model.StepOutcome {
	var snapshots []string
	outcome := o.runStep(ctx, model.StepForensics, inc.EntityID, func(ctx context.Context) (string, error) {
		ids, err := o.deps.Forensics.CaptureAll(ctx, inc.EntityID)
		if err != nil {
			return "", err
		}
		snapshots = ids
		return fmt.Sprintf("%d snapshot(s)", len(ids)), nil
	})

	if !outcome.OK {
		return []model.StepOutcome{
			outcome,
			o.notify(ctx, inc.EntityID, FormatSnapshotErrorMessage(inc.EntityID, outcome.Error), "snapshot error"),
		}
	}

	if snapshots != nil {
		inc.Snapshots = snapshots
	}
	return []model.StepOutcome{
		outcome,
		o.notify(ctx, inc.EntityID, FormatSnapshotMessage(inc.EntityID, inc.Snapshots), "snapshots"),
	}
}

// startPlaybook starts the remediation workflow and reports the result to the operator.
func (o *Orchestrator) startPlaybook(ctx context.Context, inc *model.Incident) []model.StepOutcome {
	payload := model.NewPlaybookPayload(inc)
	outcome := o.runStep(ctx, model.StepPlaybook, inc.EntityID, func(ctx context.Context) (string, error) {
		return "", o.deps.Playbook.Start(ctx, payload)
	})

	if !outcome.OK {
		return []model.StepOutcome{
			outcome,
			o.notify(ctx, inc.EntityID, FormatPlaybookErrorMessage(outcome.Error), "playbook error"),
		}
	}
	return []model.StepOutcome{
		outcome,
		o.notify(ctx, inc.EntityID, FormatPlaybookStartedMessage(inc.ID), "playbook started"),
	}
}

// notify sends text and returns the outcome. Failures are never propagated.
func (o *Orchestrator) notify(ctx context.Context, entityID, text, detail string) model.StepOutcome {
	return o.runStep(ctx, model.StepNotify, entityID, func(ctx context.Context) (string, error) {
		return detail, o.deps.Notifier.Send(ctx, text)
	})
}

// runStep executes fn under the step timeout and converts its result into a
// StepOutcome. A panicking step is reported as a failure.
func (o *Orchestrator) runStep(
	ctx context.Context,
	step model.Step,
	entityID string,
	fn func(ctx context.Context) (string, error),
) (outcome model.StepOutcome) {
	stepCtx, cancel := context.WithTimeout(ctx, o.stepTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			outcome = model.Failed(step, fmt.Errorf("panic: %v", r))
		}
		o.finishStep(outcome, entityID, time.Since(start))
	}()

	detail, err := fn(stepCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !strings.Contains(err.Error(), "timed out") {
			err = fmt.Errorf("timed out after %s: %w", o.stepTimeout, err)
		}
		out := model.Failed(step, err)
		out.Detail = detail
		return out
	}
	return model.Succeeded(step, detail)
}

// finishStep logs and records a completed step.
func (o *Orchestrator) finishStep(outcome model.StepOutcome, entityID string, elapsed time.Duration) {
	if rec := o.deps.Recorder; rec != nil {
		rec.ObserveStep(outcome, elapsed)
	}

	if outcome.OK {
		o.logger.Debug().
			Str("entity", entityID).
			Str("step", string(outcome.Step)).
			Str("detail", outcome.Detail).
			Dur("elapsed", elapsed).
			Msg("step succeeded")
		return
	}

	o.logger.Error().
		Str("entity", entityID).
		Str("step", string(outcome.Step)).
		Str("detail", outcome.Detail).
		Str("error", outcome.Error).
		Dur("elapsed", elapsed).
		Msg("step failed, continuing")
}

func (o *Orchestrator) recordGap(metric model.MetricName, reason string) {
	if rec := o.deps.Recorder; rec != nil {
		rec.TelemetryGaps.WithLabelValues(string(metric), reason).Inc()
	}
}

func (o *Orchestrator) observePass(result *model.PassResult) {
	if rec := o.deps.Recorder; rec != nil {
		rec.ObservePass(result)
	}
}

// Package service provides the incident evaluation and response pipeline.
package service

import (
	"incident-detector/internal/model"
)

// Classifier turns metric readings into breach signals.
type Classifier struct {
	thresholds model.Thresholds
	catalog    map[model.MetricName]model.TrackedMetric
}

// NewClassifier creates a Classifier for the given thresholds. The metric
// catalog supplies display names, units and ordering for catalog-defined metrics.
func NewClassifier(thresholds model.Thresholds, metrics []model.TrackedMetric) *Classifier {
	catalog := make(map[model.MetricName]model.TrackedMetric, len(metrics))
	for _, m := range metrics {
		catalog[m.Name] = m
	}
	return &Classifier{
		thresholds: thresholds,
		catalog:    catalog,
	}
}

// Classify returns one signal per present reading strictly above its threshold,
// in metric priority order. Absent readings and metrics without a threshold
// are skipped.
func (c *Classifier) Classify(readings map[model.MetricName]*model.Reading) []model.BreachSignal {
	names := make([]model.MetricName, 0, len(readings))
	for name, r := range readings {
		if r != nil {
			names = append(names, name)
		}
	}
	model.SortMetricNames(names, c.catalog)

	var signals []model.BreachSignal
	for _, name := range names {
		threshold, ok := c.thresholds[name]
		if !ok {
			continue
		}
		observed := readings[name].Average
		if observed <= threshold {
			continue
		}

		def := c.catalog[name]
		if def.Name == "" {
			def.Name = name
		}
		signals = append(signals, model.BreachSignal{
			Metric:    name,
			Label:     def.Label(),
			Unit:      def.Unit,
			Observed:  observed,
			Threshold: threshold,
		})
	}
	return signals
}

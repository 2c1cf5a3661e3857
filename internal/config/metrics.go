// Package config provides configuration management for the incident detector.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"incident-detector/internal/model"
)

// LoadMetrics reads a tracked-metric catalog from the specified YAML file.
// An empty path returns the built-in catalog for the given telemetry source.
func LoadMetrics(metricsPath, source string) ([]model.TrackedMetric, error) {
	if metricsPath == "" {
		return DefaultMetrics(source), nil
	}

	// Check if file exists
	if _, err := os.Stat(metricsPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("metrics file not found: %s", metricsPath)
	}

	// Read file content
	data, err := os.ReadFile(metricsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read metrics file: %w", err)
	}

	// Parse YAML
	var catalog model.MetricCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse metrics file: %w", err)
	}

	if catalog.Source != "" && catalog.Source != source {
		return nil, fmt.Errorf("metrics file is for source %q, telemetry source is %q", catalog.Source, source)
	}

	// Validate metrics
	if len(catalog.Metrics) == 0 {
		return nil, fmt.Errorf("no metrics defined in file: %s", metricsPath)
	}

	seen := make(map[model.MetricName]bool, len(catalog.Metrics))
	for i, m := range catalog.Metrics {
		if m.Name == "" {
			return nil, fmt.Errorf("metric at index %d has no name", i)
		}
		if m.Metric == "" {
			return nil, fmt.Errorf("metric %q has no backend metric", m.Name)
		}
		if m.Dimension == "" {
			return nil, fmt.Errorf("metric %q has no dimension", m.Name)
		}
		if source == "cloudwatch" && m.Namespace == "" {
			return nil, fmt.Errorf("metric %q has no namespace", m.Name)
		}
		if seen[m.Name] {
			return nil, fmt.Errorf("metric %q defined more than once", m.Name)
		}
		seen[m.Name] = true
	}

	return catalog.Metrics, nil
}

// DefaultMetrics returns the built-in catalog for a telemetry source.
func DefaultMetrics(source string) []model.TrackedMetric {
	if source == "victoriametrics" {
		return model.VictoriaMetricsMetrics()
	}
	return model.CloudWatchMetrics()
}

// UnthresholdedMetrics returns catalog entries that have no configured threshold.
// They are still fetched but can never breach.
func UnthresholdedMetrics(metrics []model.TrackedMetric, thresholds model.Thresholds) []model.MetricName {
	var missing []model.MetricName
	for _, m := range metrics {
		if _, ok := thresholds[m.Name]; !ok {
			missing = append(missing, m.Name)
		}
	}
	return missing
}

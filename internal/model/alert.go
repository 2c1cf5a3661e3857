// Package model provides data models for the incident detector.
package model

import "fmt"

// BreachSignal represents a metric reading strictly above its configured threshold.
type BreachSignal struct {
	Metric    MetricName `json:"metric" yaml:"metric"`       // 指标名称
	Label     string     `json:"label" yaml:"label"`         // 显示名称
	Unit      string     `json:"unit,omitempty" yaml:"unit"` // 单位
	Observed  float64    `json:"observed" yaml:"observed"`   // 观测值
	Threshold float64    `json:"threshold" yaml:"threshold"` // 阈值
}

// String renders the signal the way operators see it, e.g. "CPU 92.0% > 80%".
func (s BreachSignal) String() string {
	label := s.Label
	if label == "" {
		label = string(s.Metric)
	}
	return fmt.Sprintf("%s %.1f%s > %g%s", label, s.Observed, s.Unit, s.Threshold, s.Unit)
}

// SignalStrings renders every signal with String.
func SignalStrings(signals []BreachSignal) []string {
	out := make([]string, 0, len(signals))
	for _, s := range signals {
		out = append(out, s.String())
	}
	return out
}

// Package model provides data models for the incident detector.
package model

import (
	"sort"
	"time"
)

// MetricName identifies a tracked resource-utilization metric.
type MetricName string

const (
	MetricCPU    MetricName = "cpu"    // CPU 利用率
	MetricMemory MetricName = "memory" // 内存利用率
	MetricDisk   MetricName = "disk"   // 磁盘利用率
)

// builtinPriority is the fixed ordering used when rendering signals.
var builtinPriority = map[MetricName]int{
	MetricCPU:    0,
	MetricMemory: 1,
	MetricDisk:   2,
}

// TrackedMetric describes where to read a metric from the telemetry backend.
type TrackedMetric struct {
	Name        MetricName `yaml:"name" json:"name"`                                 // 指标唯一标识
	DisplayName string     `yaml:"display_name" json:"display_name"`                 // 显示名称（CPU、MEM、DISK）
	Namespace   string     `yaml:"namespace,omitempty" json:"namespace,omitempty"`   // CloudWatch 命名空间
	Metric      string     `yaml:"metric" json:"metric"`                             // 后端指标名
	Dimension   string     `yaml:"dimension" json:"dimension"`                       // 实体维度名（InstanceId、ident）
	Unit        string     `yaml:"unit,omitempty" json:"unit,omitempty"`             // 单位
	Priority    int        `yaml:"priority,omitempty" json:"priority,omitempty"`     // 排序优先级（越小越靠前）
}

// Label returns the display name used in operator messages.
func (m TrackedMetric) Label() string {
	if m.DisplayName != "" {
		return m.DisplayName
	}
	return string(m.Name)
}

// MetricCatalog is the root structure of a metric catalog YAML file.
type MetricCatalog struct {
	Source  string          `yaml:"source,omitempty" json:"source,omitempty"` // cloudwatch | victoriametrics
	Metrics []TrackedMetric `yaml:"metrics" json:"metrics"`                   // 指标定义列表
}

// CloudWatchMetrics is the default catalog for the CloudWatch metric source.
// Memory and disk are published by the CloudWatch agent.
func CloudWatchMetrics() []TrackedMetric {
	return []TrackedMetric{
		{Name: MetricCPU, DisplayName: "CPU", Namespace: "AWS/EC2", Metric: "CPUUtilization", Dimension: "InstanceId", Unit: "%"},
		{Name: MetricMemory, DisplayName: "MEM", Namespace: "CWAgent", Metric: "mem_used_percent", Dimension: "InstanceId", Unit: "%"},
		{Name: MetricDisk, DisplayName: "DISK", Namespace: "CWAgent", Metric: "disk_used_percent", Dimension: "InstanceId", Unit: "%"},
	}
}

// VictoriaMetricsMetrics is the default catalog for the VictoriaMetrics source (categraf metric names).
func VictoriaMetricsMetrics() []TrackedMetric {
	return []TrackedMetric{
		{Name: MetricCPU, DisplayName: "CPU", Metric: `cpu_usage_active{cpu="cpu-total"}`, Dimension: "ident", Unit: "%"},
		{Name: MetricMemory, DisplayName: "MEM", Metric: "mem_used_percent", Dimension: "ident", Unit: "%"},
		{Name: MetricDisk, DisplayName: "DISK", Metric: "disk_used_percent", Dimension: "ident", Unit: "%"},
	}
}

// Reading is the windowed average of one metric for one entity.
// A missing reading is represented by a nil *Reading, never by a zero value.
type Reading struct {
	Metric  MetricName    `json:"metric"`  // 指标名称
	Average float64       `json:"average"` // 窗口平均值
	Window  time.Duration `json:"window"`  // 采样窗口
}

// Thresholds maps a metric to its high-water mark.
type Thresholds map[MetricName]float64

// SortMetricNames orders names by the built-in priority (cpu, memory, disk),
// then by the priority recorded in the catalog, then by name.
func SortMetricNames(names []MetricName, catalog map[MetricName]TrackedMetric) {
	rank := func(n MetricName) (int, int) {
		if p, ok := builtinPriority[n]; ok {
			return 0, p
		}
		if m, ok := catalog[n]; ok {
			return 1, m.Priority
		}
		return 2, 0
	}
	sort.SliceStable(names, func(i, j int) bool {
		gi, pi := rank(names[i])
		gj, pj := rank(names[j])
		if gi != gj {
			return gi < gj
		}
		if pi != pj {
			return pi < pj
		}
		return names[i] < names[j]
	})
}

// Package config provides configuration management for the incident detector.
package config

import (
	"time"

	"incident-detector/internal/model"
)

// Config is the root configuration structure for the incident detector.
type Config struct {
	Entities   []string         `mapstructure:"entities" validate:"dive,required"`
	Thresholds ThresholdsConfig `mapstructure:"thresholds"`
	Cooldown   CooldownConfig   `mapstructure:"cooldown"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
	Forensics  ForensicsConfig  `mapstructure:"forensics"`
	Playbook   PlaybookConfig   `mapstructure:"playbook"`
	Notifier   NotifierConfig   `mapstructure:"notifier"`
	AWS        AWSConfig        `mapstructure:"aws"`
	Detector   DetectorConfig   `mapstructure:"detector"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Report     ReportConfig     `mapstructure:"report"`
}

// ThresholdsConfig contains the high-water mark for each tracked metric.
type ThresholdsConfig struct {
	CPU    float64            `mapstructure:"cpu" validate:"gte=0"`
	Memory float64            `mapstructure:"memory" validate:"gte=0"`
	Disk   float64            `mapstructure:"disk" validate:"gte=0"`
	Extra  map[string]float64 `mapstructure:"extra"` // Thresholds for catalog-defined metrics
}

// ToModel converts the configured thresholds into model.Thresholds.
func (t ThresholdsConfig) ToModel() model.Thresholds {
	out := model.Thresholds{
		model.MetricCPU:    t.CPU,
		model.MetricMemory: t.Memory,
		model.MetricDisk:   t.Disk,
	}
	for name, v := range t.Extra {
		out[model.MetricName(name)] = v
	}
	return out
}

// CooldownConfig controls alert deduplication.
type CooldownConfig struct {
	Duration time.Duration `mapstructure:"duration" validate:"gte=0"`
	Store    string        `mapstructure:"store"` // dynamodb://table, redis://..., postgres://..., memory://
}

// Enabled reports whether a backing store is configured.
func (c CooldownConfig) Enabled() bool {
	return c.Store != ""
}

// TelemetryConfig selects and configures the metric source.
type TelemetryConfig struct {
	Source          string                `mapstructure:"source" validate:"oneof=cloudwatch victoriametrics"`
	Window          time.Duration         `mapstructure:"window" validate:"gt=0"`
	Period          time.Duration         `mapstructure:"period" validate:"gt=0"`
	VictoriaMetrics VictoriaMetricsConfig `mapstructure:"victoriametrics"`
}

// VictoriaMetricsConfig contains configuration for VictoriaMetrics API.
type VictoriaMetricsConfig struct {
	Endpoint string        `mapstructure:"endpoint" validate:"omitempty,url"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// ForensicsConfig controls volume snapshot capture on alert.
type ForensicsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// PlaybookConfig points at the remediation workflow.
type PlaybookConfig struct {
	Endpoint string `mapstructure:"endpoint"` // arn:aws:states:... or nats://host:port/subject
}

// Enabled reports whether a playbook endpoint is configured.
func (p PlaybookConfig) Enabled() bool {
	return p.Endpoint != ""
}

// NotifierConfig contains operator channel settings.
type NotifierConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig contains Telegram Bot API settings.
// Without a bot token and chat id, notifications are no-ops.
type TelegramConfig struct {
	Endpoint string        `mapstructure:"endpoint" validate:"omitempty,url"`
	BotToken string        `mapstructure:"bot_token"`
	ChatID   string        `mapstructure:"chat_id"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether both credentials are present.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// AWSConfig contains settings shared by the AWS service clients.
type AWSConfig struct {
	Region string `mapstructure:"region" validate:"required"`
}

// DetectorConfig controls how an evaluation pass runs.
type DetectorConfig struct {
	Concurrency int           `mapstructure:"concurrency" validate:"gte=1,lte=100"`
	StepTimeout time.Duration `mapstructure:"step_timeout" validate:"gt=0"`
	PassTimeout time.Duration `mapstructure:"pass_timeout" validate:"gt=0"`
}

// LoggingConfig contains configurations for logging.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

// HTTPConfig contains HTTP client configurations including retry settings.
type HTTPConfig struct {
	Retry RetryConfig `mapstructure:"retry"`
}

// RetryConfig defines retry behavior for HTTP requests.
type RetryConfig struct {
	MaxRetries int           `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	BaseDelay  time.Duration `mapstructure:"base_delay"`
}

// MetricsConfig controls the Prometheus pass metrics.
type MetricsConfig struct {
	Pushgateway string `mapstructure:"pushgateway" validate:"omitempty,url"`
	Job         string `mapstructure:"job"`
}

// ReportConfig contains configurations for optional pass reports.
type ReportConfig struct {
	OutputDir        string   `mapstructure:"output_dir"`
	Formats          []string `mapstructure:"formats" validate:"dive,oneof=excel html yaml"`
	FilenameTemplate string   `mapstructure:"filename_template"`
	HTMLTemplate     string   `mapstructure:"html_template"`
	Timezone         string   `mapstructure:"timezone" validate:"timezone"`
}

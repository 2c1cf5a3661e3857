// Package config provides configuration management for the incident detector.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// legacyEnv maps configuration keys to the variable names used by the
// legacy Lambda deployment. They are honored after the DETECT_ names.
var legacyEnv = map[string][]string{
	"entities":                    {"INSTANCE_IDS"},
	"thresholds.cpu":              {"CPU_HIGH"},
	"thresholds.memory":           {"MEM_HIGH"},
	"thresholds.disk":             {"DISK_HIGH"},
	"playbook.endpoint":           {"PLAYBOOK_ARN"},
	"aws.region":                  {"REGION", "AWS_REGION"},
	"notifier.telegram.bot_token": {"TELEGRAM_BOT_TOKEN"},
	"notifier.telegram.chat_id":   {"TELEGRAM_CHANNEL_ID"},
}

// Load reads configuration from environment variables and, if configPath is
// not empty, from the specified YAML file. Environment variables take
// precedence over file values.
// Environment variable format: DETECT_<SECTION>_<KEY> (e.g., DETECT_COOLDOWN_STORE)
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults first
	setDefaults(v)

	// Configure environment variable binding
	v.SetEnvPrefix("DETECT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}

		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := applyLegacyConversions(v); err != nil {
		return nil, err
	}

	// Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Entities = NormalizeEntities(cfg.Entities)

	// Validate configuration
	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// bindLegacyEnv binds each key to its DETECT_ variable followed by the legacy names.
func bindLegacyEnv(v *viper.Viper) error {
	for key, names := range legacyEnv {
		input := []string{key, "DETECT_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}
		input = append(input, names...)
		if err := v.BindEnv(input...); err != nil {
			return fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}
	return nil
}

// applyLegacyConversions handles legacy variables whose format differs from
// the native key: COOLDOWN_SEC is plain seconds, STATE_TABLE is a bare
// DynamoDB table name and SNAPSHOT_ON_ALERT is enabled only by "true" in any
// case.
func applyLegacyConversions(v *viper.Viper) error {
	if _, ok := os.LookupEnv("DETECT_COOLDOWN_DURATION"); !ok {
		if raw := strings.TrimSpace(os.Getenv("COOLDOWN_SEC")); raw != "" {
			secs, err := strconv.Atoi(raw)
			if err != nil {
				return fmt.Errorf("invalid COOLDOWN_SEC %q: %w", raw, err)
			}
			v.Set("cooldown.duration", time.Duration(secs)*time.Second)
		}
	}

	if _, ok := os.LookupEnv("DETECT_COOLDOWN_STORE"); !ok {
		if table := strings.TrimSpace(os.Getenv("STATE_TABLE")); table != "" {
			v.Set("cooldown.store", "dynamodb://"+table)
		}
	}

	if _, ok := os.LookupEnv("DETECT_FORENSICS_ENABLED"); !ok {
		if raw, ok := os.LookupEnv("SNAPSHOT_ON_ALERT"); ok {
			v.Set("forensics.enabled", strings.EqualFold(strings.TrimSpace(raw), "true"))
		}
	}

	return nil
}

// NormalizeEntities trims entity ids, splits comma-joined values and drops empties.
func NormalizeEntities(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		for _, id := range strings.Split(item, ",") {
			if id = strings.TrimSpace(id); id != "" {
				out = append(out, id)
			}
		}
	}
	return out
}

// setDefaults sets default values for all configuration options.
func setDefaults(v *viper.Viper) {
	v.SetDefault("entities", []string{})

	// Thresholds defaults
	v.SetDefault("thresholds.cpu", 80.0)
	v.SetDefault("thresholds.memory", 85.0)
	v.SetDefault("thresholds.disk", 85.0)

	// Cooldown defaults
	v.SetDefault("cooldown.duration", 15*time.Minute)
	v.SetDefault("cooldown.store", "")

	// Telemetry defaults
	v.SetDefault("telemetry.source", "cloudwatch")
	v.SetDefault("telemetry.window", 5*time.Minute)
	v.SetDefault("telemetry.period", 1*time.Minute)
	v.SetDefault("telemetry.victoriametrics.endpoint", "")
	v.SetDefault("telemetry.victoriametrics.timeout", 30*time.Second)

	// Side effects
	v.SetDefault("forensics.enabled", false)
	v.SetDefault("playbook.endpoint", "")

	// Notifier defaults
	v.SetDefault("notifier.telegram.endpoint", "https://api.telegram.org")
	v.SetDefault("notifier.telegram.bot_token", "")
	v.SetDefault("notifier.telegram.chat_id", "")
	v.SetDefault("notifier.telegram.timeout", 10*time.Second)

	v.SetDefault("aws.region", "us-east-1")

	// Detector defaults
	v.SetDefault("detector.concurrency", 4)
	v.SetDefault("detector.step_timeout", 10*time.Second)
	v.SetDefault("detector.pass_timeout", 5*time.Minute)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// HTTP retry defaults
	v.SetDefault("http.retry.max_retries", 3)
	v.SetDefault("http.retry.base_delay", 1*time.Second)

	// Metrics defaults
	v.SetDefault("metrics.pushgateway", "")
	v.SetDefault("metrics.job", "incident_detector")

	// Report defaults
	v.SetDefault("report.output_dir", "")
	v.SetDefault("report.formats", []string{})
	v.SetDefault("report.filename_template", "incident_pass_{{.Date}}_{{.Time}}")
	v.SetDefault("report.timezone", "UTC")
}

// Package service provides the incident evaluation and response pipeline.
package service

import (
	"context"
	"fmt"
	"time"

	"incident-detector/internal/model"
)

// MetricSource supplies the windowed average of a metric for one entity.
// ok is false when the window holds no data points; err is reserved for
// transport or authorization failures.
type MetricSource interface {
	Average(ctx context.Context, metric model.TrackedMetric, entityID string, window time.Duration) (value float64, ok bool, err error)
}

// CooldownStore is the persistent backing of the cooldown gate.
// Reserve records now as the entity's last alert time if and only if no alert
// was recorded within cooldown, and reports whether it did. Implementations
// must perform the check and the write as one conditional operation.
type CooldownStore interface {
	Reserve(ctx context.Context, entityID string, now time.Time, cooldown time.Duration) (bool, error)
}

// Notifier delivers a text message to the operator channel.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// ForensicsTrigger captures point-in-time snapshots of an entity's volumes
// and returns the snapshot ids.
type ForensicsTrigger interface {
	CaptureAll(ctx context.Context, entityID string) ([]string, error)
}

// PlaybookTrigger starts the remediation workflow without waiting for it.
type PlaybookTrigger interface {
	Start(ctx context.Context, payload model.PlaybookPayload) error
}

// ConfigurationError reports a misconfiguration that makes a pass impossible.
type ConfigurationError struct {
	Reason string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

// nopNotifier discards messages.
type nopNotifier struct{}

func (nopNotifier) Send(context.Context, string) error { return nil }

// Package yaml writes pass results as YAML documents, suitable for
// archiving next to the Excel report or feeding into other tooling.
package yaml

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	goyaml "gopkg.in/yaml.v3"

	"incident-detector/internal/model"
)

// document is the on-disk layout of a YAML report.
type document struct {
	StartedAt  string                   `yaml:"started_at"`
	FinishedAt string                   `yaml:"finished_at"`
	Duration   string                   `yaml:"duration"`
	Error      string                   `yaml:"error,omitempty"`
	Summary    model.PassSummary        `yaml:"summary"`
	Incidents  []model.EvaluationResult `yaml:"incidents"`
}

// Writer implements report.ReportWriter for YAML format.
type Writer struct {
	timezone *time.Location
}

// NewWriter creates a YAML writer rendering timestamps in timezone (UTC when nil).
func NewWriter(timezone *time.Location) *Writer {
	if timezone == nil {
		timezone = time.UTC
	}
	return &Writer{timezone: timezone}
}

// Format returns the format identifier for this writer.
func (w *Writer) Format() string {
	return "yaml"
}

// Extension returns the file extension written by this writer.
func (w *Writer) Extension() string {
	return ".yaml"
}

// Write serializes result to outputPath.
func (w *Writer) Write(result *model.PassResult, outputPath string) error {
	if result == nil {
		return fmt.Errorf("pass result is nil")
	}

	lower := strings.ToLower(outputPath)
	if !strings.HasSuffix(lower, ".yaml") && !strings.HasSuffix(lower, ".yml") {
		outputPath += ".yaml"
	}

	doc := document{
		StartedAt:  w.formatTime(result.StartedAt),
		FinishedAt: w.formatTime(result.FinishedAt),
		Duration:   result.Duration().String(),
		Error:      result.Error,
		Summary:    result.Summary,
		Incidents:  result.Incidents,
	}
	if doc.Incidents == nil {
		doc.Incidents = []model.EvaluationResult{}
	}

	data, err := goyaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML report: %w", err)
	}

	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write YAML report: %w", err)
	}
	return nil
}

func (w *Writer) formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(w.timezone).Format(time.RFC3339)
}

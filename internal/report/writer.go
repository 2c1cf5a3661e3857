// Package report provides pass report generation for the incident detector.
// It defines the ReportWriter interface and provides implementations for
// Excel and YAML output.
package report

import (
	"incident-detector/internal/model"
)

// ReportWriter defines the interface for generating pass reports.
type ReportWriter interface {
	// Write generates a report from the pass result and saves it to
	// outputPath. The writer appends its extension when it is missing.
	Write(result *model.PassResult, outputPath string) error

	// Format returns the format identifier for this writer.
	Format() string

	// Extension returns the file extension, including the dot.
	Extension() string
}

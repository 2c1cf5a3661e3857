package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"incident-detector/internal/model"
	"incident-detector/internal/report/excel"
	"incident-detector/internal/report/html"
	"incident-detector/internal/report/yaml"
)

// DefaultFilenameTemplate is used when no template is configured.
const DefaultFilenameTemplate = "incident_pass_{{.Date}}_{{.Time}}"

// Registry manages report writers for different formats.
// It provides a centralized way to access report writers by format name.
type Registry struct {
	writers map[string]ReportWriter
}

// NewRegistry creates a new report registry with pre-registered Excel, HTML and YAML writers.
// If timezone is nil, defaults to UTC.
// htmlTemplatePath is optional; the embedded template is used when it is empty.
func NewRegistry(timezone *time.Location, htmlTemplatePath string) *Registry {
	if timezone == nil {
		timezone = time.UTC
	}

	r := &Registry{
		writers: make(map[string]ReportWriter),
	}
	r.Register(excel.NewWriter(timezone))
	r.Register(html.NewWriter(timezone, htmlTemplatePath))
	r.Register(yaml.NewWriter(timezone))

	return r
}

// Register adds w under its Format() name, replacing any previous writer.
func (r *Registry) Register(w ReportWriter) {
	r.writers[strings.ToLower(w.Format())] = w
}

// Get returns a writer for the specified format.
// Format names are case-insensitive (e.g., "Excel", "EXCEL", "excel" all work).
// Returns an error if the format is not supported.
func (r *Registry) Get(format string) (ReportWriter, error) {
	normalizedFormat := strings.ToLower(strings.TrimSpace(format))

	writer, ok := r.writers[normalizedFormat]
	if !ok {
		supported := r.GetAll()
		return nil, fmt.Errorf("unsupported report format %q, supported formats: %s",
			format, strings.Join(supported, ", "))
	}

	return writer, nil
}

// GetAll returns all supported format names in sorted order.
func (r *Registry) GetAll() []string {
	formats := make([]string, 0, len(r.writers))
	for format := range r.writers {
		formats = append(formats, format)
	}
	sort.Strings(formats)
	return formats
}

// Has checks if the specified format is supported.
// Format names are case-insensitive.
func (r *Registry) Has(format string) bool {
	normalizedFormat := strings.ToLower(strings.TrimSpace(format))
	_, ok := r.writers[normalizedFormat]
	return ok
}

// WriteAll writes result once per format into outputDir, naming each file
// filenameBase plus the writer's extension. It keeps going after a failed
// format and returns the paths written along with the joined errors.
func (r *Registry) WriteAll(result *model.PassResult, outputDir, filenameBase string, formats []string) ([]string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	var (
		paths []string
		errs  []error
	)
	for _, format := range formats {
		w, err := r.Get(format)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		path := filepath.Join(outputDir, filenameBase+w.Extension())
		if err := w.Write(result, path); err != nil {
			errs = append(errs, fmt.Errorf("%s report: %w", w.Format(), err))
			continue
		}
		paths = append(paths, path)
	}

	return paths, errors.Join(errs...)
}

// Filename expands the {{.Date}} and {{.Time}} placeholders of template
// using at in the given timezone.
func Filename(template string, at time.Time, tz *time.Location) string {
	if template == "" {
		template = DefaultFilenameTemplate
	}
	if tz == nil {
		tz = time.UTC
	}

	local := at.In(tz)
	dateStr := local.Format("2006-01-02")
	timeStr := local.Format("150405")

	filename := strings.ReplaceAll(template, "{{.Date}}", dateStr)
	filename = strings.ReplaceAll(filename, "{{ .Date }}", dateStr)
	filename = strings.ReplaceAll(filename, "{{.Time}}", timeStr)
	filename = strings.ReplaceAll(filename, "{{ .Time }}", timeStr)

	return filename
}

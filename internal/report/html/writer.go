// Package html provides HTML pass reports for the incident detector.
// It implements the report.ReportWriter interface to generate a single
// self-contained .html page that can be attached to an incident ticket.
package html

import (
	"embed"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"time"

	"incident-detector/internal/model"
)

//go:embed templates/*.html
var embeddedTemplates embed.FS

// Writer implements report.ReportWriter for HTML format.
type Writer struct {
	timezone     *time.Location
	templatePath string // User-defined template path (optional)
}

// TemplateData holds all data passed to the HTML template.
type TemplateData struct {
	Title       string
	PassTime    string
	Duration    string
	Error       string
	Summary     model.PassSummary
	Incidents   []*IncidentData
	GeneratedAt string
}

// IncidentData represents one incident formatted for template rendering.
type IncidentData struct {
	EntityID    string
	IncidentID  string
	Signals     []string
	Snapshots   []string
	Steps       []*StepData
	FailedSteps int
	StatusClass string
}

// StepData represents one step outcome formatted for template rendering.
type StepData struct {
	Step        string
	Result      string
	ResultClass string
	Detail      string
	Error       string
}

// NewWriter creates a new HTML report writer.
// If timezone is nil, it defaults to UTC.
// If templatePath is empty, the embedded default template will be used.
func NewWriter(timezone *time.Location, templatePath string) *Writer {
	if timezone == nil {
		timezone = time.UTC
	}
	return &Writer{
		timezone:     timezone,
		templatePath: templatePath,
	}
}

// Format returns the format identifier for this writer.
func (w *Writer) Format() string {
	return "html"
}

// Extension returns the file extension written by this writer.
func (w *Writer) Extension() string {
	return ".html"
}

// Write generates an HTML report from the pass result.
func (w *Writer) Write(result *model.PassResult, outputPath string) error {
	if result == nil {
		return fmt.Errorf("pass result is nil")
	}

	if !strings.HasSuffix(strings.ToLower(outputPath), ".html") {
		outputPath = outputPath + ".html"
	}

	tmpl, err := w.loadTemplate()
	if err != nil {
		return fmt.Errorf("failed to load template: %w", err)
	}

	data := w.prepareTemplateData(result)

	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	if err := tmpl.Execute(file, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}

	return nil
}

// loadTemplate loads the user-defined template if it exists, otherwise the embedded default.
func (w *Writer) loadTemplate() (*template.Template, error) {
	funcMap := template.FuncMap{
		"join": strings.Join,
	}

	if w.templatePath != "" {
		if _, err := os.Stat(w.templatePath); err == nil {
			tmpl, err := template.New(filepath.Base(w.templatePath)).Funcs(funcMap).ParseFiles(w.templatePath)
			if err != nil {
				return nil, fmt.Errorf("failed to parse user template: %w", err)
			}
			return tmpl, nil
		}
	}

	tmpl, err := template.New("pass.html").Funcs(funcMap).ParseFS(embeddedTemplates, "templates/pass.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse embedded template: %w", err)
	}
	return tmpl, nil
}

// prepareTemplateData converts a PassResult to TemplateData for template rendering.
func (w *Writer) prepareTemplateData(result *model.PassResult) *TemplateData {
	incidents := make([]*IncidentData, 0, len(result.Incidents))
	for _, inc := range result.Incidents {
		incidents = append(incidents, convertIncident(inc))
	}

	return &TemplateData{
		Title:       "事件检测报告",
		PassTime:    result.StartedAt.In(w.timezone).Format("2006-01-02 15:04:05"),
		Duration:    formatDuration(result.Duration()),
		Error:       result.Error,
		Summary:     result.Summary,
		Incidents:   incidents,
		GeneratedAt: time.Now().In(w.timezone).Format("2006-01-02 15:04:05"),
	}
}

func convertIncident(inc model.EvaluationResult) *IncidentData {
	steps := make([]*StepData, 0, len(inc.Steps))
	for _, s := range inc.Steps {
		steps = append(steps, &StepData{
			Step:        string(s.Step),
			Result:      resultText(s.OK),
			ResultClass: resultClass(s.OK),
			Detail:      s.Detail,
			Error:       s.Error,
		})
	}

	failed := len(inc.FailedSteps())
	return &IncidentData{
		EntityID:    inc.EntityID,
		IncidentID:  inc.IncidentID,
		Signals:     model.SignalStrings(inc.Signals),
		Snapshots:   inc.Snapshots,
		Steps:       steps,
		FailedSteps: failed,
		StatusClass: resultClass(failed == 0),
	}
}

// formatDuration formats a duration in a human-readable format.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1f秒", d.Seconds())
	}
	return fmt.Sprintf("%.1f分钟", d.Minutes())
}

func resultText(ok bool) string {
	if ok {
		return "成功"
	}
	return "失败"
}

func resultClass(ok bool) string {
	if ok {
		return "status-normal"
	}
	return "status-critical"
}

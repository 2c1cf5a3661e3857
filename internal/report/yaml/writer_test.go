package yaml

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	goyaml "gopkg.in/yaml.v3"

	"incident-detector/internal/model"
)

func TestWriter_Format(t *testing.T) {
	w := NewWriter(nil)
	if got := w.Format(); got != "yaml" {
		t.Errorf("Format() = %v, want yaml", got)
	}
	if got := w.Extension(); got != ".yaml" {
		t.Errorf("Extension() = %v, want .yaml", got)
	}
}

func TestWriter_Write_NilResult(t *testing.T) {
	if err := NewWriter(nil).Write(nil, "out.yaml"); err == nil {
		t.Error("Write() with nil result should return error")
	}
}

func TestWriter_Write(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	result := model.NewPassResult(start)
	result.Summary.Entities = 2
	result.Summary.Breaching = 1
	result.Incidents = append(result.Incidents, model.EvaluationResult{
		EntityID:   "i-0abc",
		IncidentID: "i-0abc-1709294400",
		Signals: []model.BreachSignal{
			{Metric: model.MetricCPU, Label: "CPU", Unit: "%", Observed: 92, Threshold: 80},
		},
		Snapshots: []string{},
		Steps: []model.StepOutcome{
			model.Succeeded(model.StepNotify, "incident"),
			{Step: model.StepPlaybook, Error: "AccessDenied"},
		},
	})
	result.Finalize(start.Add(2 * time.Second))

	// Nested directories are created on demand.
	outputPath := filepath.Join(t.TempDir(), "reports", "pass")
	w := NewWriter(time.FixedZone("CST", 8*3600))
	if err := w.Write(result, outputPath); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	data, err := os.ReadFile(outputPath + ".yaml")
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}

	var got document
	if err := goyaml.Unmarshal(data, &got); err != nil {
		t.Fatalf("report is not valid YAML: %v", err)
	}

	if got.StartedAt != "2024-03-01T20:00:00+08:00" {
		t.Errorf("started_at = %q", got.StartedAt)
	}
	if got.Duration != "2s" {
		t.Errorf("duration = %q", got.Duration)
	}
	if got.Summary.Incidents != 1 || got.Summary.StepErrors != 1 {
		t.Errorf("summary = %+v", got.Summary)
	}
	if len(got.Incidents) != 1 || got.Incidents[0].IncidentID != "i-0abc-1709294400" {
		t.Fatalf("incidents = %+v", got.Incidents)
	}
	if len(got.Incidents[0].Steps) != 2 || got.Incidents[0].Steps[1].Error != "AccessDenied" {
		t.Errorf("steps = %+v", got.Incidents[0].Steps)
	}
}

func TestWriter_Write_KeepsYmlExtension(t *testing.T) {
	result := model.NewPassResult(time.Now())
	result.Error = "no entities configured"
	result.Finalize(result.StartedAt)

	outputPath := filepath.Join(t.TempDir(), "pass.yml")
	if err := NewWriter(nil).Write(result, outputPath); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if _, err := os.Stat(outputPath); err != nil {
		t.Fatalf("expected %s to exist: %v", outputPath, err)
	}
}

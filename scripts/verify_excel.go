//go:build ignore
// +build ignore

// This script writes sample Excel and YAML pass reports and prints the Excel
// sheets back for manual verification.
// Run with: go run scripts/verify_excel.go
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/xuri/excelize/v2"

	"incident-detector/internal/model"
	"incident-detector/internal/report"
)

func main() {
	result := createSampleData()

	tz, _ := time.LoadLocation("Asia/Shanghai")
	paths, err := report.NewRegistry(tz, "").WriteAll(result, ".", "sample_pass_report", []string{"excel", "yaml"})
	if err != nil {
		fmt.Printf("❌ Failed to generate reports: %v\n", err)
		os.Exit(1)
	}
	for _, p := range paths {
		fmt.Printf("✅ Report generated: %s\n", p)
	}

	f, err := excelize.OpenFile("sample_pass_report.xlsx")
	if err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}
	defer f.Close()

	for _, sheet := range f.GetSheetList() {
		fmt.Println("═══════════════════════════════════════")
		fmt.Println(" ", sheet)
		fmt.Println("═══════════════════════════════════════")
		rows, err := f.GetRows(sheet)
		if err != nil {
			fmt.Println("Error:", err)
			continue
		}
		for _, row := range rows {
			fmt.Println(row)
		}
		fmt.Println()
	}
}

func createSampleData() *model.PassResult {
	start := time.Now().UTC()
	result := model.NewPassResult(start)
	result.Summary.Entities = 4
	result.Summary.Breaching = 3
	result.Summary.Suppressed = 1

	cpu := model.BreachSignal{Metric: model.MetricCPU, Label: "CPU", Unit: "%", Observed: 96.4, Threshold: 80}
	mem := model.BreachSignal{Metric: model.MetricMemory, Label: "MEM", Unit: "%", Observed: 91.2, Threshold: 85}

	result.Incidents = append(result.Incidents,
		model.EvaluationResult{
			EntityID:   "i-0a1b2c3d4e5f60001",
			IncidentID: model.NewIncidentID("i-0a1b2c3d4e5f60001", start),
			Signals:    []model.BreachSignal{cpu, mem},
			Snapshots:  []string{"snap-0aa11bb22cc33dd44", "snap-0ee55ff66aa77bb88"},
			Steps: []model.StepOutcome{
				model.Succeeded(model.StepNotify, "incident"),
				model.Succeeded(model.StepForensics, "2 snapshot(s)"),
				model.Succeeded(model.StepNotify, "snapshots"),
				model.Succeeded(model.StepPlaybook, ""),
				model.Succeeded(model.StepNotify, "playbook started"),
			},
		},
		model.EvaluationResult{
			EntityID:   "i-0a1b2c3d4e5f60002",
			IncidentID: model.NewIncidentID("i-0a1b2c3d4e5f60002", start),
			Signals:    []model.BreachSignal{cpu},
			Snapshots:  []string{},
			Steps: []model.StepOutcome{
				model.Succeeded(model.StepNotify, "incident"),
				{Step: model.StepForensics, Error: "UnauthorizedOperation: not authorized to perform ec2:CreateSnapshot"},
				model.Succeeded(model.StepNotify, "snapshot error"),
			},
		},
	)

	result.Finalize(start.Add(2300 * time.Millisecond))
	return result
}

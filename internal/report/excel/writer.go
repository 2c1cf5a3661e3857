// Package excel provides Excel pass reports for the incident detector.
// It implements the report.ReportWriter interface to generate .xlsx files
// with a pass summary, the emitted incidents and every side-effect step.
package excel

import (
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"incident-detector/internal/model"
)

const (
	// Sheet names
	sheetSummary   = "检测概览"
	sheetIncidents = "事件明细"
	sheetSteps     = "步骤结果"

	// Default sheet to remove
	defaultSheet = "Sheet1"

	// Colors for conditional formatting (RGB without #)
	colorCriticalBg = "FFC7CE" // Red background for failures
	colorCriticalFg = "9C0006" // Dark red text for failures
	colorHeaderBg   = "4472C4" // Blue background for header
	colorHeaderFg   = "FFFFFF" // White text for header
	colorNormalBg   = "C6EFCE" // Green background for success
	colorNormalFg   = "006100" // Dark green text for success

	// Column widths
	defaultColWidth = 15.0
	wideColWidth    = 40.0
	narrowColWidth  = 10.0
)

// Writer implements report.ReportWriter for Excel format.
type Writer struct {
	timezone *time.Location
}

// NewWriter creates a new Excel report writer.
// If timezone is nil, it defaults to UTC.
func NewWriter(timezone *time.Location) *Writer {
	if timezone == nil {
		timezone = time.UTC
	}
	return &Writer{
		timezone: timezone,
	}
}

// Format returns the format identifier for this writer.
func (w *Writer) Format() string {
	return "excel"
}

// Extension returns the file extension written by this writer.
func (w *Writer) Extension() string {
	return ".xlsx"
}

// Write generates an Excel report from the pass result.
func (w *Writer) Write(result *model.PassResult, outputPath string) error {
	if result == nil {
		return fmt.Errorf("pass result is nil")
	}

	if !strings.HasSuffix(strings.ToLower(outputPath), ".xlsx") {
		outputPath = outputPath + ".xlsx"
	}

	f := excelize.NewFile()
	defer f.Close()

	styles, err := newStyles(f)
	if err != nil {
		return fmt.Errorf("failed to create styles: %w", err)
	}

	if err := w.createSummarySheet(f, styles, result); err != nil {
		return fmt.Errorf("failed to create summary sheet: %w", err)
	}

	if err := w.createIncidentsSheet(f, styles, result); err != nil {
		return fmt.Errorf("failed to create incidents sheet: %w", err)
	}

	if err := w.createStepsSheet(f, styles, result); err != nil {
		return fmt.Errorf("failed to create steps sheet: %w", err)
	}

	// Sheet1 may already be gone
	_ = f.DeleteSheet(defaultSheet)

	idx, _ := f.GetSheetIndex(sheetSummary)
	f.SetActiveSheet(idx)

	if err := f.SaveAs(outputPath); err != nil {
		return fmt.Errorf("failed to save Excel file: %w", err)
	}

	return nil
}

// styles holds the style ids shared by all sheets.
type styles struct {
	title   int
	header  int
	value   int
	success int
	failure int
}

func newStyles(f *excelize.File) (*styles, error) {
	center := &excelize.Alignment{Horizontal: "center", Vertical: "center"}

	title, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 18},
		Alignment: center,
	})
	if err != nil {
		return nil, err
	}

	header, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 12, Color: colorHeaderFg},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{colorHeaderBg}, Pattern: 1},
		Alignment: center,
	})
	if err != nil {
		return nil, err
	}

	value, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Size: 11},
		Alignment: &excelize.Alignment{Vertical: "center", WrapText: true},
	})
	if err != nil {
		return nil, err
	}

	success, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Color: colorNormalFg},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{colorNormalBg}, Pattern: 1},
		Alignment: center,
	})
	if err != nil {
		return nil, err
	}

	failure, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: colorCriticalFg},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{colorCriticalBg}, Pattern: 1},
		Alignment: center,
	})
	if err != nil {
		return nil, err
	}

	return &styles{title: title, header: header, value: value, success: success, failure: failure}, nil
}

// createSummarySheet creates the pass summary worksheet.
func (w *Writer) createSummarySheet(f *excelize.File, s *styles, result *model.PassResult) error {
	if _, err := f.NewSheet(sheetSummary); err != nil {
		return err
	}

	f.SetColWidth(sheetSummary, "A", "A", 20)
	f.SetColWidth(sheetSummary, "B", "B", 30)

	f.MergeCell(sheetSummary, "A1", "B1")
	f.SetCellValue(sheetSummary, "A1", "事件检测报告")
	f.SetCellStyle(sheetSummary, "A1", "B1", s.title)
	f.SetRowHeight(sheetSummary, 1, 30)

	status := "正常"
	if result.Error != "" {
		status = "配置错误: " + result.Error
	}

	summaryData := []struct {
		label string
		value interface{}
	}{
		{"检测时间", result.StartedAt.In(w.timezone).Format("2006-01-02 15:04:05")},
		{"检测耗时", formatDuration(result.Duration())},
		{"状态", status},
		{"实体总数", result.Summary.Entities},
		{"越限实体", result.Summary.Breaching},
		{"冷却抑制", result.Summary.Suppressed},
		{"事件数", result.Summary.Incidents},
		{"步骤失败", result.Summary.StepErrors},
	}

	for i, item := range summaryData {
		row := i + 3
		labelCell := fmt.Sprintf("A%d", row)
		valueCell := fmt.Sprintf("B%d", row)
		f.SetCellValue(sheetSummary, labelCell, item.label)
		f.SetCellValue(sheetSummary, valueCell, item.value)
		f.SetCellStyle(sheetSummary, labelCell, labelCell, s.header)
		f.SetCellStyle(sheetSummary, valueCell, valueCell, s.value)
	}

	if result.Error != "" {
		cell := "B5"
		f.SetCellStyle(sheetSummary, cell, cell, s.failure)
	}

	return nil
}

// createIncidentsSheet lists one row per incident.
func (w *Writer) createIncidentsSheet(f *excelize.File, s *styles, result *model.PassResult) error {
	if _, err := f.NewSheet(sheetIncidents); err != nil {
		return err
	}

	headers := []string{"实体", "事件 ID", "越限信号", "快照", "失败步骤"}
	widths := []float64{defaultColWidth + 5, wideColWidth - 10, wideColWidth, wideColWidth - 10, narrowColWidth}
	writeHeader(f, sheetIncidents, headers, widths, s.header)

	if len(result.Incidents) == 0 {
		f.SetCellValue(sheetIncidents, "A2", "本次检测未产生事件")
		return nil
	}

	for i, inc := range result.Incidents {
		row := i + 2
		failed := len(inc.FailedSteps())
		values := []interface{}{
			inc.EntityID,
			inc.IncidentID,
			strings.Join(model.SignalStrings(inc.Signals), "\n"),
			strings.Join(inc.Snapshots, "\n"),
			failed,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			f.SetCellValue(sheetIncidents, cell, v)
			f.SetCellStyle(sheetIncidents, cell, cell, s.value)
		}

		failedCell, _ := excelize.CoordinatesToCellName(len(values), row)
		if failed > 0 {
			f.SetCellStyle(sheetIncidents, failedCell, failedCell, s.failure)
		} else {
			f.SetCellStyle(sheetIncidents, failedCell, failedCell, s.success)
		}
	}

	f.AutoFilter(sheetIncidents, fmt.Sprintf("A1:E%d", len(result.Incidents)+1), nil)
	return nil
}

// createStepsSheet lists every side-effect step of every incident.
func (w *Writer) createStepsSheet(f *excelize.File, s *styles, result *model.PassResult) error {
	if _, err := f.NewSheet(sheetSteps); err != nil {
		return err
	}

	headers := []string{"实体", "事件 ID", "步骤", "结果", "说明", "错误"}
	widths := []float64{defaultColWidth + 5, wideColWidth - 10, narrowColWidth, narrowColWidth, defaultColWidth, wideColWidth}
	writeHeader(f, sheetSteps, headers, widths, s.header)

	row := 2
	for _, inc := range result.Incidents {
		for _, step := range inc.Steps {
			outcome := "成功"
			style := s.success
			if !step.OK {
				outcome = "失败"
				style = s.failure
			}

			values := []interface{}{inc.EntityID, inc.IncidentID, string(step.Step), outcome, step.Detail, step.Error}
			for col, v := range values {
				cell, _ := excelize.CoordinatesToCellName(col+1, row)
				f.SetCellValue(sheetSteps, cell, v)
				f.SetCellStyle(sheetSteps, cell, cell, s.value)
			}
			outcomeCell, _ := excelize.CoordinatesToCellName(4, row)
			f.SetCellStyle(sheetSteps, outcomeCell, outcomeCell, style)
			row++
		}
	}

	return nil
}

func writeHeader(f *excelize.File, sheet string, headers []string, widths []float64, style int) {
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, style)
		f.SetColWidth(sheet, col, col, widths[i])
	}
	f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

// formatDuration renders d the way the summary sheet shows it.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1f秒", d.Seconds())
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%d分%d秒", minutes, seconds)
}

package excel

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/veritas-audit/backend/internal/storage/models"
)

var headerStyle = &excelize.Style{
	Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
	Fill: excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
	Alignment: &excelize.Alignment{
		Horizontal: "center",
		Vertical:   "center",
		WrapText:   true,
	},
}

// WriteFindingsReport exports an application's agent executions as a
// findings workbook.
func WriteFindingsReport(w io.Writer, app *models.Application, executions []models.AgentExecution) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Findings"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{"Question ID", "Tool", "Connector", "Status", "Risk Level", "Compliance Status", "Data Points", "Result"}
	if err := writeHeaderRow(f, sheet, headers); err != nil {
		return err
	}

	for i, exec := range executions {
		row := i + 2
		values := []interface{}{
			exec.QuestionID,
			exec.ToolType,
			exec.ConnectorName,
			exec.Status,
			exec.RiskLevel,
			exec.ComplianceStatus,
			exec.DataPoints,
			exec.Result,
		}
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return fmt.Errorf("failed to build cell name: %w", err)
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return fmt.Errorf("failed to write cell %s: %w", cell, err)
			}
		}
	}

	f.SetColWidth(sheet, "A", "G", 18)
	f.SetColWidth(sheet, "H", "H", 80)

	summarySheet := "Summary"
	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("failed to create summary sheet: %w", err)
	}
	f.SetCellValue(summarySheet, "A1", "Audit Name")
	f.SetCellValue(summarySheet, "B1", app.AuditName)
	f.SetCellValue(summarySheet, "A2", "CI ID")
	f.SetCellValue(summarySheet, "B2", app.CIID)
	f.SetCellValue(summarySheet, "A3", "Audit Period")
	f.SetCellValue(summarySheet, "B3", app.AuditDateFrom+" to "+app.AuditDateTo)
	f.SetCellValue(summarySheet, "A4", "Executions")
	f.SetCellValue(summarySheet, "B4", len(executions))
	f.SetColWidth(summarySheet, "A", "B", 30)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	return nil
}

// SampleQuestion is one row of a generated sample audit sheet.
type SampleQuestion struct {
	ID       string
	Question string
	Category string
	Priority string
	Response string
}

// WriteSampleSheet generates a sample audit question workbook, the shape
// the upload wizard expects.
func WriteSampleSheet(path, sheetName string, questions []SampleQuestion) error {
	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", sheetName)

	headers := []string{"Question ID", "Question", "Category", "Priority", "Expected Response Type"}
	if err := writeHeaderRow(f, sheetName, headers); err != nil {
		return err
	}

	for i, q := range questions {
		row := i + 2
		values := []interface{}{q.ID, q.Question, q.Category, q.Priority, q.Response}
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return fmt.Errorf("failed to build cell name: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return fmt.Errorf("failed to write cell %s: %w", cell, err)
			}
		}
	}

	f.SetColWidth(sheetName, "A", "A", 12)
	f.SetColWidth(sheetName, "B", "B", 80)
	f.SetColWidth(sheetName, "C", "E", 24)

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}

	return nil
}

func writeHeaderRow(f *excelize.File, sheet string, headers []string) error {
	styleID, err := f.NewStyle(headerStyle)
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("failed to build cell name: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return fmt.Errorf("failed to write header %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, styleID); err != nil {
			return fmt.Errorf("failed to style header %s: %w", cell, err)
		}
	}

	return nil
}

package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/veritas-audit/backend/internal/excel"
	"github.com/veritas-audit/backend/pkg/logger"
)

// collectDatabase simulates a database query against the CI's exported
// workbooks: every .xlsx in the tool folder is one table.
func (f *Factory) collectDatabase(ctx context.Context, tool, question string) (*Result, error) {
	folder, err := f.toolFolder(tool)
	if err != nil {
		return nil, err
	}

	files, err := listFiles(folder, func(name string) bool {
		return strings.HasSuffix(name, ".xlsx")
	})
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no workbooks in %s", ErrNoData, folder)
	}

	allData := map[string][]map[string]string{}
	tables := []string{}
	totalRecords := 0

	for _, file := range files {
		tableName := strings.TrimSuffix(file, ".xlsx")
		sheets, err := excel.ReadAllSheets(filepath.Join(folder, file))
		if err != nil {
			logger.Warn("Skipping unreadable workbook",
				zap.String("file", file),
				zap.Error(err),
			)
			continue
		}

		rows := []map[string]string{}
		for _, sheetRows := range sheets {
			rows = append(rows, sheetRows...)
		}

		allData[tableName] = rows
		tables = append(tables, tableName)
		totalRecords += len(rows)
	}
	sort.Strings(tables)

	if len(tables) == 0 {
		return nil, fmt.Errorf("%w: no readable workbooks in %s", ErrNoData, folder)
	}

	description := "SQL Server"
	if tool == ToolOracle {
		description = "Oracle"
	}
	contextDesc := fmt.Sprintf("%s database analysis with %d tables and %d total records", description, len(tables), totalRecords)

	payload, err := json.Marshal(allData)
	if err != nil {
		return nil, fmt.Errorf("failed to encode table data: %w", err)
	}

	analysis, err := f.analyzer.AnalyzeEvidence(ctx, question, contextDesc, string(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to analyze %s data: %w", tool, err)
	}
	analysis.DataPoints = totalRecords

	return &Result{
		Tool:         tool,
		Analysis:     analysis,
		Tables:       tables,
		TotalRecords: totalRecords,
	}, nil
}

// collectSheet reads one fixed workbook (ServiceNow change requests, Jira
// tickets, QTest executions) and analyzes its rows.
func (f *Factory) collectSheet(ctx context.Context, tool, fileName, contextName, question string) (*Result, error) {
	folder, err := f.toolFolder(tool)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(folder, fileName)
	sheets, err := excel.ReadAllSheets(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoData, path)
	}

	rows := []map[string]string{}
	for _, sheetRows := range sheets {
		rows = append(rows, sheetRows...)
	}

	contextDesc := fmt.Sprintf("%s with %d records", contextName, len(rows))

	payload, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to encode records: %w", err)
	}

	analysis, err := f.analyzer.AnalyzeEvidence(ctx, question, contextDesc, string(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to analyze %s data: %w", tool, err)
	}
	analysis.DataPoints = len(rows)

	return &Result{
		Tool:         tool,
		Analysis:     analysis,
		Tables:       []string{strings.TrimSuffix(fileName, ".xlsx")},
		TotalRecords: len(rows),
	}, nil
}

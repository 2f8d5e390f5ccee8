// Package excel reads and writes the audit workbooks: uploaded question
// sheets, answer sheets, and exported findings reports.
package excel

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/veritas-audit/backend/internal/storage/models"
)

// ColumnInfo describes an uploaded workbook so the client can map columns.
type ColumnInfo struct {
	Columns    []string            `json:"columns"`
	SampleData []map[string]string `json:"sampleData"`
	TotalRows  int                 `json:"totalRows"`
}

// DetectColumns reads the first sheet's header row plus up to three
// sample rows.
func DetectColumns(r io.Reader) (*ColumnInfo, error) {
	headers, rows, err := readSheet(r)
	if err != nil {
		return nil, err
	}

	info := &ColumnInfo{
		Columns:    headers,
		SampleData: []map[string]string{},
		TotalRows:  len(rows),
	}

	for i, row := range rows {
		if i >= 3 {
			break
		}
		info.SampleData = append(info.SampleData, row)
	}

	return info, nil
}

// ExtractQuestions pulls questions out of an uploaded workbook using the
// user-supplied column mappings. Rows whose question cell is empty are
// skipped.
func ExtractQuestions(r io.Reader, mappings map[string]string) ([]models.Question, error) {
	_, rows, err := readSheet(r)
	if err != nil {
		return nil, err
	}

	questions := []models.Question{}
	for _, row := range rows {
		q := models.Question{
			Question:       strings.TrimSpace(row[mappings["question"]]),
			Category:       strings.TrimSpace(row[mappings["category"]]),
			Subcategory:    strings.TrimSpace(row[mappings["subcategory"]]),
			QuestionNumber: strings.TrimSpace(row[mappings["questionNumber"]]),
		}
		if q.Question == "" {
			continue
		}
		questions = append(questions, q)
	}

	return questions, nil
}

// AutoDetectMappings guesses the question/answer/number/process columns
// from header names, for answer sheets uploaded without explicit mappings.
func AutoDetectMappings(headers []string) map[string]string {
	patterns := map[string][]string{
		"question":       {"question", "audit_question", "query", "item"},
		"answer":         {"answer", "response", "result", "finding", "evidence"},
		"questionNumber": {"number", "id", "q_num", "question_num", "seq"},
		"category":       {"process", "category", "area", "domain"},
		"subcategory":    {"subprocess", "sub_process", "subcategory", "subarea"},
	}
	// subcategory must match before category ("subprocess" contains
	// "process")
	order := []string{"subcategory", "category", "question", "answer", "questionNumber"}

	mappings := map[string]string{}
	claimed := map[string]bool{}
	for _, field := range order {
		// prefer an exact header match over a substring one, so
		// "Question ID" cannot claim the question column away from
		// "Question"
		for _, exact := range []bool{true, false} {
			if mappings[field] != "" {
				break
			}
			for _, header := range headers {
				if claimed[header] {
					continue
				}
				if headerMatches(header, patterns[field], exact) {
					mappings[field] = header
					claimed[header] = true
					break
				}
			}
		}
	}

	return mappings
}

func headerMatches(header string, candidates []string, exact bool) bool {
	norm := normalizeHeader(header)
	for _, candidate := range candidates {
		c := normalizeHeader(candidate)
		if exact && norm == c {
			return true
		}
		if !exact && strings.Contains(norm, c) {
			return true
		}
	}
	return false
}

// normalizeHeader folds case and drops separators so "Sub Process",
// "sub_process" and "SubProcess" all compare equal.
func normalizeHeader(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "_", "")
	s = strings.ReplaceAll(s, "-", "")
	return s
}

// ReadAllSheets returns every sheet of a workbook as rows keyed by header,
// the shape the connectors hand to the LLM.
func ReadAllSheets(path string) (map[string][]map[string]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := map[string][]map[string]string{}
	for _, name := range f.GetSheetList() {
		raw, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %q: %w", name, err)
		}
		sheets[name] = rowsToRecords(raw)
	}

	return sheets, nil
}

func readSheet(r io.Reader) ([]string, []map[string]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheetList := f.GetSheetList()
	if len(sheetList) == 0 {
		return nil, nil, fmt.Errorf("workbook has no sheets")
	}

	raw, err := f.GetRows(sheetList[0])
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read sheet %q: %w", sheetList[0], err)
	}
	if len(raw) == 0 {
		return nil, nil, fmt.Errorf("workbook sheet %q is empty", sheetList[0])
	}

	return raw[0], rowsToRecords(raw), nil
}

func rowsToRecords(raw [][]string) []map[string]string {
	if len(raw) < 2 {
		return []map[string]string{}
	}

	headers := raw[0]
	records := make([]map[string]string, 0, len(raw)-1)
	for _, row := range raw[1:] {
		record := map[string]string{}
		empty := true
		for i, header := range headers {
			value := ""
			if i < len(row) {
				value = row[i]
			}
			if strings.TrimSpace(value) != "" {
				empty = false
			}
			record[header] = value
		}
		if !empty {
			records = append(records, record)
		}
	}

	return records
}

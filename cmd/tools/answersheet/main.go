// answersheet converts an answer workbook into JSON fixtures, detecting
// its question and answer columns automatically.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/veritas-audit/backend/internal/excel"
)

var (
	inputPath  string
	outputPath string
	format     string
)

type answerRecord struct {
	QuestionID string `json:"questionId,omitempty"`
	Question   string `json:"question"`
	Answer     string `json:"answer,omitempty"`
	Category   string `json:"category,omitempty"`
}

var rootCmd = &cobra.Command{
	Use:   "answersheet",
	Short: "Convert an answer workbook to JSON test data",
	Long:  "answersheet reads a filled-in audit answer workbook and writes its rows as JSON, in either test-fixture or validation format.",
	RunE:  run,
}

func run(cmd *cobra.Command, args []string) error {
	if format != "test" && format != "validation" {
		return fmt.Errorf("unsupported format %q: use test or validation", format)
	}

	f, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	info, err := excel.DetectColumns(f)
	if err != nil {
		return fmt.Errorf("failed to read workbook: %w", err)
	}
	mappings := excel.AutoDetectMappings(info.Columns)
	if mappings["question"] == "" {
		return fmt.Errorf("could not detect a question column among: %v", info.Columns)
	}

	records, err := extractAnswers(inputPath, mappings)
	if err != nil {
		return err
	}

	payload, err := encode(records)
	if err != nil {
		return err
	}

	if err := os.WriteFile(outputPath, payload, 0o644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	fmt.Printf("Wrote %s (%d records, %s format)\n", outputPath, len(records), format)
	return nil
}

func extractAnswers(path string, mappings map[string]string) ([]answerRecord, error) {
	sheets, err := excel.ReadAllSheets(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workbook rows: %w", err)
	}

	var records []answerRecord
	for _, rows := range sheets {
		for _, row := range rows {
			question := row[mappings["question"]]
			if question == "" {
				continue
			}
			records = append(records, answerRecord{
				QuestionID: row[mappings["questionNumber"]],
				Question:   question,
				Answer:     row[mappings["answer"]],
				Category:   row[mappings["category"]],
			})
		}
		break
	}
	return records, nil
}

func encode(records []answerRecord) ([]byte, error) {
	switch format {
	case "validation":
		type validation struct {
			Total   int            `json:"total"`
			Answers []answerRecord `json:"answers"`
		}
		return json.MarshalIndent(validation{Total: len(records), Answers: records}, "", "  ")
	default:
		return json.MarshalIndent(records, "", "  ")
	}
}

func main() {
	rootCmd.Flags().StringVarP(&inputPath, "input", "i", "", "answer workbook to convert (required)")
	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "answers.json", "JSON file to write")
	rootCmd.Flags().StringVarP(&format, "format", "f", "test", "output format: test or validation")
	rootCmd.MarkFlagRequired("input")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

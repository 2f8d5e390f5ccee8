// sheetgen writes sample audit question workbooks in the shape the
// upload wizard expects, for demos and local testing.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/veritas-audit/backend/internal/excel"
)

var (
	outputDir string
	enhanced  bool
)

var primaryQuestions = []excel.SampleQuestion{
	{ID: "Q001", Question: "Who has administrative access to the production database?", Category: "Access Management", Priority: "High", Response: "User list"},
	{ID: "Q002", Question: "Were all emergency change requests approved before implementation?", Category: "Change Management", Priority: "High", Response: "Evidence"},
	{ID: "Q003", Question: "Is there documented evidence of user access reviews in the audit period?", Category: "Access Management", Priority: "Medium", Response: "Evidence"},
	{ID: "Q004", Question: "What is the test execution pass rate for the last release?", Category: "Quality Assurance", Priority: "Medium", Response: "Metric"},
	{ID: "Q005", Question: "Are backup and recovery procedures documented and current?", Category: "Operations", Priority: "High", Response: "Document"},
	{ID: "Q006", Question: "How many open high-severity defects exist against the application?", Category: "Quality Assurance", Priority: "Medium", Response: "Metric"},
	{ID: "Q007", Question: "Were incident tickets resolved within the agreed SLA?", Category: "Incident Management", Priority: "Medium", Response: "Evidence"},
	{ID: "Q008", Question: "Is segregation of duties enforced between developers and approvers?", Category: "Access Management", Priority: "High", Response: "Evidence"},
}

var followupQuestions = []excel.SampleQuestion{
	{ID: "F001", Question: "For users with administrative access, when was each account last reviewed?", Category: "Access Management", Priority: "High", Response: "Evidence"},
	{ID: "F002", Question: "For unapproved emergency changes, what was the business justification?", Category: "Change Management", Priority: "High", Response: "Narrative"},
	{ID: "F003", Question: "For failed test executions, what remediation was performed?", Category: "Quality Assurance", Priority: "Medium", Response: "Evidence"},
	{ID: "F004", Question: "For SLA breaches, what corrective actions were taken?", Category: "Incident Management", Priority: "Medium", Response: "Narrative"},
}

var rootCmd = &cobra.Command{
	Use:   "sheetgen",
	Short: "Generate sample audit question workbooks",
	Long:  "sheetgen writes a primary audit question workbook, and optionally a follow-up workbook, for exercising the upload wizard.",
	RunE:  run,
}

func run(cmd *cobra.Command, args []string) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	primaryPath := filepath.Join(outputDir, "audit_questions.xlsx")
	if err := excel.WriteSampleSheet(primaryPath, "Audit Questions", primaryQuestions); err != nil {
		return err
	}
	fmt.Printf("Wrote %s (%d questions)\n", primaryPath, len(primaryQuestions))

	if enhanced {
		followupPath := filepath.Join(outputDir, "followup_questions.xlsx")
		if err := excel.WriteSampleSheet(followupPath, "Follow-up Questions", followupQuestions); err != nil {
			return err
		}
		fmt.Printf("Wrote %s (%d questions)\n", followupPath, len(followupQuestions))
	}

	return nil
}

func main() {
	rootCmd.Flags().StringVarP(&outputDir, "output", "o", ".", "directory to write workbooks into")
	rootCmd.Flags().BoolVar(&enhanced, "enhanced", false, "also write the follow-up question workbook")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

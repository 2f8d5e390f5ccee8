package excel

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/veritas-audit/backend/internal/storage/models"
)

func TestWriteFindingsReport(t *testing.T) {
	app := &models.Application{
		AuditName:     "Q3 SOX Audit",
		CIID:          "CI12345",
		AuditDateFrom: "2026-01-01",
		AuditDateTo:   "2026-03-31",
	}
	executions := []models.AgentExecution{
		{
			QuestionID:       "1.1",
			ToolType:         "sql_server",
			ConnectorName:    "Prod SQL",
			Status:           "completed",
			RiskLevel:        "High",
			ComplianceStatus: "Non-Compliant",
			DataPoints:       42,
			Result:           `{"executiveSummary":"3 stale admin accounts"}`,
		},
		{
			QuestionID: "1.2",
			ToolType:   "jira",
			Status:     "no_data",
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteFindingsReport(&buf, app, executions))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Findings")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Question ID", rows[0][0])
	assert.Equal(t, "1.1", rows[1][0])
	assert.Equal(t, "sql_server", rows[1][1])
	assert.Equal(t, "Non-Compliant", rows[1][5])
	assert.Equal(t, "no_data", rows[2][3])

	summary, err := f.GetRows("Summary")
	require.NoError(t, err)
	assert.Equal(t, "Q3 SOX Audit", summary[0][1])
	assert.Equal(t, "CI12345", summary[1][1])
	assert.Equal(t, "2026-01-01 to 2026-03-31", summary[2][1])
}

func TestWriteSampleSheet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.xlsx")
	questions := []SampleQuestion{
		{ID: "Q001", Question: "Who has admin access?", Category: "Access Management", Priority: "High", Response: "User list"},
		{ID: "Q002", Question: "Were changes approved?", Category: "Change Management", Priority: "Medium", Response: "Evidence"},
	}

	require.NoError(t, WriteSampleSheet(path, "Audit Questions", questions))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Audit Questions")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Question ID", rows[0][0])
	assert.Equal(t, "Q001", rows[1][0])
	assert.Equal(t, "Were changes approved?", rows[2][1])
}

func TestWriteSampleSheet_Roundtrip(t *testing.T) {
	// a generated sheet must be consumable by the upload path
	path := filepath.Join(t.TempDir(), "sample.xlsx")
	require.NoError(t, WriteSampleSheet(path, "Audit Questions", []SampleQuestion{
		{ID: "Q001", Question: "Who has admin access?", Category: "Access Management"},
	}))

	sheets, err := ReadAllSheets(path)
	require.NoError(t, err)
	require.Len(t, sheets["Audit Questions"], 1)

	mappings := AutoDetectMappings([]string{"Question ID", "Question", "Category", "Priority", "Expected Response Type"})
	assert.Equal(t, "Question", mappings["question"])
	assert.Equal(t, "Category", mappings["category"])
}

package agents

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/veritas-audit/backend/internal/llm"
	"github.com/veritas-audit/backend/internal/storage/models"
	"github.com/veritas-audit/backend/internal/storage/sqlite"
)

type stubAnalyzer struct {
	analysis *llm.EvidenceAnalysis
	err      error
	calls    int
}

func (s *stubAnalyzer) AnalyzeEvidence(ctx context.Context, question, contextDesc, data string) (*llm.EvidenceAnalysis, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.analysis, nil
}

func newTestDB(t *testing.T) *sqlite.Client {
	t.Helper()
	client, err := sqlite.NewClient(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.InitSchema())
	return client
}

func writeToolWorkbook(t *testing.T, path string, rows int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))

	f := excelize.NewFile()
	defer f.Close()
	f.SetCellValue("Sheet1", "A1", "username")
	for i := 0; i < rows; i++ {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		require.NoError(t, err)
		f.SetCellValue("Sheet1", cell, "user")
	}
	require.NoError(t, f.SaveAs(path))
}

func TestExecute_Completed(t *testing.T) {
	db := newTestDB(t)
	toolsDir := t.TempDir()
	writeToolWorkbook(t, filepath.Join(toolsDir, "CI1", "SQL_Server", "users.xlsx"), 3)

	app, err := db.InsertApplication(&models.Application{AuditName: "a", CIID: "CI1"})
	require.NoError(t, err)
	conn, err := db.InsertToolConnector(&models.ToolConnector{CIID: "CI1", Name: "Prod SQL", Type: "sql_server"})
	require.NoError(t, err)

	analyzer := &stubAnalyzer{analysis: &llm.EvidenceAnalysis{
		ExecutiveSummary: "looks fine",
		RiskLevel:        "Low",
		ComplianceStatus: "Compliant",
	}}
	executor := NewExecutor(db, nil, analyzer, toolsDir, time.Minute)

	exec, err := executor.Execute(context.Background(), &ExecuteRequest{
		ApplicationID: app.ID,
		QuestionID:    "1.1",
		Question:      "Who has access?",
		ToolType:      "sql_server",
		ConnectorID:   conn.ID,
	})
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, exec.Status)
	assert.Equal(t, "Low", exec.RiskLevel)
	assert.Equal(t, "Compliant", exec.ComplianceStatus)
	assert.Equal(t, 3, exec.DataPoints)
	assert.Equal(t, "Prod SQL", exec.ConnectorName)
	assert.NotEmpty(t, exec.ID)
	assert.Contains(t, exec.Result, "looks fine")

	history, err := executor.History(app.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, exec.ID, history[0].ID)
}

func TestExecute_NoDataRecorded(t *testing.T) {
	db := newTestDB(t)

	app, err := db.InsertApplication(&models.Application{AuditName: "a", CIID: "CI1"})
	require.NoError(t, err)
	conn, err := db.InsertToolConnector(&models.ToolConnector{CIID: "CI1", Name: "Jira", Type: "jira"})
	require.NoError(t, err)

	executor := NewExecutor(db, nil, &stubAnalyzer{}, t.TempDir(), time.Minute)

	exec, err := executor.Execute(context.Background(), &ExecuteRequest{
		ApplicationID: app.ID,
		QuestionID:    "1.1",
		Question:      "q",
		ConnectorID:   conn.ID,
	})
	require.NoError(t, err)

	assert.Equal(t, StatusNoData, exec.Status)
	assert.Contains(t, exec.Result, "error")

	history, err := executor.History(app.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestExecute_ConnectorNotFound(t *testing.T) {
	db := newTestDB(t)
	executor := NewExecutor(db, nil, &stubAnalyzer{}, t.TempDir(), time.Minute)

	_, err := executor.Execute(context.Background(), &ExecuteRequest{
		ApplicationID: 1,
		ConnectorID:   999,
	})
	assert.ErrorIs(t, err, ErrConnectorNotFound)
}

func TestExecute_ToolTypeDefaultsToConnector(t *testing.T) {
	db := newTestDB(t)
	toolsDir := t.TempDir()
	writeToolWorkbook(t, filepath.Join(toolsDir, "CI1", "SQL_Server", "users.xlsx"), 1)

	app, err := db.InsertApplication(&models.Application{AuditName: "a", CIID: "CI1"})
	require.NoError(t, err)
	conn, err := db.InsertToolConnector(&models.ToolConnector{CIID: "CI1", Name: "SQL", Type: "sql_server"})
	require.NoError(t, err)

	analyzer := &stubAnalyzer{analysis: &llm.EvidenceAnalysis{ExecutiveSummary: "s"}}
	executor := NewExecutor(db, nil, analyzer, toolsDir, time.Minute)

	exec, err := executor.Execute(context.Background(), &ExecuteRequest{
		ApplicationID: app.ID,
		ConnectorID:   conn.ID,
		Question:      "q",
	})
	require.NoError(t, err)
	assert.Equal(t, "sql_server", exec.ToolType)
}

func TestExecuteAll(t *testing.T) {
	db := newTestDB(t)
	toolsDir := t.TempDir()
	writeToolWorkbook(t, filepath.Join(toolsDir, "CI1", "SQL_Server", "users.xlsx"), 2)

	app, err := db.InsertApplication(&models.Application{AuditName: "a", CIID: "CI1"})
	require.NoError(t, err)
	_, err = db.InsertToolConnector(&models.ToolConnector{CIID: "CI1", Name: "SQL", Type: "sql_server"})
	require.NoError(t, err)

	_, err = db.SaveQuestionAnalyses(app.ID, []models.QuestionAnalysis{
		{QuestionID: "1.1", OriginalQuestion: "q1", GeneratedPrompt: "p1", ConnectorToUse: "sql_server"},
		{QuestionID: "1.2", OriginalQuestion: "q2", GeneratedPrompt: "p2", ConnectorToUse: "jira"}, // no jira connector
	})
	require.NoError(t, err)

	analyzer := &stubAnalyzer{analysis: &llm.EvidenceAnalysis{ExecutiveSummary: "s"}}
	executor := NewExecutor(db, nil, analyzer, toolsDir, time.Minute)

	executions, err := executor.ExecuteAll(context.Background(), app.ID, "CI1")
	require.NoError(t, err)

	// the question without a configured connector is skipped
	require.Len(t, executions, 1)
	assert.Equal(t, "1.1", executions[0].QuestionID)
	assert.Equal(t, StatusCompleted, executions[0].Status)
}

func TestExecuteAll_NoAnalyses(t *testing.T) {
	db := newTestDB(t)
	executor := NewExecutor(db, nil, &stubAnalyzer{}, t.TempDir(), time.Minute)

	_, err := executor.ExecuteAll(context.Background(), 42, "CI1")
	assert.Error(t, err)
}

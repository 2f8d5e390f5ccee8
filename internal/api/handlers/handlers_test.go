package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/veritas-audit/backend/internal/analysis"
	"github.com/veritas-audit/backend/internal/llm"
	"github.com/veritas-audit/backend/internal/storage/models"
	"github.com/veritas-audit/backend/internal/storage/sqlite"
)

type stubSuggester struct{}

func (stubSuggester) AnalyzeQuestion(ctx context.Context, question, category, subcategory string) (*llm.QuestionSuggestion, error) {
	return &llm.QuestionSuggestion{
		AIPrompt:        "Pull the relevant tickets",
		ToolSuggestion:  "jira",
		ConnectorReason: "Tracked in the ticketing system",
	}, nil
}

type testEnv struct {
	app *fiber.App
	db  *sqlite.Client
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sqlite.NewClient(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.InitSchema())

	app := fiber.New()
	api := app.Group("/api")

	applicationHandler := NewApplicationHandler(db)
	dataRequestHandler := NewDataRequestHandler(db)
	questionHandler := NewQuestionHandler(db, analysis.NewService(stubSuggester{}))
	connectorHandler := NewConnectorHandler(db)
	documentHandler := NewDocumentHandler(db)
	reportHandler := NewReportHandler(db)
	healthHandler := NewHealthHandler("test")

	app.Get("/health", healthHandler.Handle)
	api.Get("/applications", applicationHandler.List)
	api.Post("/applications", applicationHandler.Create)
	api.Get("/applications/:id", applicationHandler.Get)
	api.Put("/applications/:id", applicationHandler.Update)
	api.Post("/excel/get-columns", dataRequestHandler.GetColumns)
	api.Post("/applications/:id/data-requests", dataRequestHandler.Create)
	api.Get("/applications/:id/data-requests", dataRequestHandler.List)
	api.Post("/applications/:id/documents", documentHandler.Upload)
	api.Get("/applications/:id/documents", documentHandler.List)
	api.Post("/questions/analyze", questionHandler.Analyze)
	api.Post("/questions/analyses/save", questionHandler.Save)
	api.Get("/questions/analyses/:applicationId", questionHandler.ListAnalyses)
	api.Post("/connectors", connectorHandler.Create)
	api.Get("/connectors", connectorHandler.List)
	api.Delete("/connectors/:id", connectorHandler.Delete)
	api.Get("/applications/:id/report", reportHandler.Download)

	return &testEnv{app: app, db: db}
}

func (e *testEnv) request(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}

	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func (e *testEnv) createApplication(t *testing.T) models.Application {
	t.Helper()
	resp := e.request(t, http.MethodPost, "/api/applications", fiber.Map{
		"auditName": "Q3 SOX Audit",
		"ciId":      "CI100",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var app models.Application
	decode(t, resp, &app)
	return app
}

func questionWorkbook(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	f.SetCellValue("Sheet1", "A1", "Question")
	f.SetCellValue("Sheet1", "B1", "Category")
	f.SetCellValue("Sheet1", "A2", "Are jira tickets reviewed before closure?")
	f.SetCellValue("Sheet1", "B2", "Change Management")

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func multipartBody(t *testing.T, filename string, content []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, http.MethodGet, "/health", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	decode(t, resp, &body)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "veritas-backend", body["service"])
	assert.Equal(t, "test", body["version"])
}

func TestApplicationLifecycle(t *testing.T) {
	env := newTestEnv(t)

	created := env.createApplication(t)
	assert.NotZero(t, created.ID)
	assert.Equal(t, "CI100", created.CIID)

	resp := env.request(t, http.MethodGet, fmt.Sprintf("/api/applications/%d", created.ID), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var fetched models.Application
	decode(t, resp, &fetched)
	assert.Equal(t, created.AuditName, fetched.AuditName)

	resp = env.request(t, http.MethodPut, fmt.Sprintf("/api/applications/%d", created.ID), fiber.Map{
		"auditName": "Q3 SOX Audit (revised)",
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var updated models.Application
	decode(t, resp, &updated)
	assert.Equal(t, "Q3 SOX Audit (revised)", updated.AuditName)

	resp = env.request(t, http.MethodGet, "/api/applications", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var list []models.Application
	decode(t, resp, &list)
	assert.Len(t, list, 1)
}

func TestApplicationValidation(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, http.MethodPost, "/api/applications", fiber.Map{"auditName": "no ci"})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = env.request(t, http.MethodGet, "/api/applications/9999", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp = env.request(t, http.MethodPut, "/api/applications/9999", fiber.Map{"auditName": "x"})
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestGetColumns(t *testing.T) {
	env := newTestEnv(t)

	body, contentType := multipartBody(t, "questions.xlsx", questionWorkbook(t), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/excel/get-columns", body)
	req.Header.Set(fiber.HeaderContentType, contentType)

	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var result struct {
		Columns          []string          `json:"columns"`
		TotalRows        int               `json:"totalRows"`
		DetectedMappings map[string]string `json:"detectedMappings"`
	}
	decode(t, resp, &result)
	assert.Equal(t, []string{"Question", "Category"}, result.Columns)
	assert.Equal(t, 1, result.TotalRows)
	assert.Equal(t, "Question", result.DetectedMappings["question"])
}

func TestGetColumns_RejectsNonSpreadsheet(t *testing.T) {
	env := newTestEnv(t)

	body, contentType := multipartBody(t, "notes.csv", []byte("a,b\n1,2\n"), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/excel/get-columns", body)
	req.Header.Set(fiber.HeaderContentType, contentType)

	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	var errBody map[string]string
	decode(t, resp, &errBody)
	assert.Equal(t, msgUnsupportedFile, errBody["error"])
}

func TestValidateSpreadsheet(t *testing.T) {
	assert.Empty(t, validateSpreadsheet("questions.xlsx", 1024))
	assert.Empty(t, validateSpreadsheet("legacy.XLS", 1024))
	assert.Equal(t, msgUnsupportedFile, validateSpreadsheet("questions.csv", 1024))
	assert.Equal(t, msgFileTooLarge, validateSpreadsheet("questions.xlsx", maxUploadBytes+1))
}

func TestDataRequestUploadAndAnalyze(t *testing.T) {
	env := newTestEnv(t)
	app := env.createApplication(t)

	mappings, _ := json.Marshal(map[string]string{"question": "Question", "category": "Category"})
	body, contentType := multipartBody(t, "questions.xlsx", questionWorkbook(t), map[string]string{
		"columnMappings": string(mappings),
	})
	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/applications/%d/data-requests", app.ID), body)
	req.Header.Set(fiber.HeaderContentType, contentType)

	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var dr models.DataRequest
	decode(t, resp, &dr)
	require.Len(t, dr.Questions, 1)
	assert.Equal(t, "primary", dr.FileType)

	resp = env.request(t, http.MethodPost, "/api/questions/analyze", fiber.Map{
		"applicationId": app.ID,
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var analyzed struct {
		Analyses []models.QuestionAnalysis `json:"analyses"`
	}
	decode(t, resp, &analyzed)
	require.Len(t, analyzed.Analyses, 1)
	assert.Equal(t, "jira", analyzed.Analyses[0].ConnectorToUse)
}

func TestAnalyze_NoQuestions(t *testing.T) {
	env := newTestEnv(t)
	app := env.createApplication(t)

	resp := env.request(t, http.MethodPost, "/api/questions/analyze", fiber.Map{
		"applicationId": app.ID,
	})
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestSaveAndListAnalyses(t *testing.T) {
	env := newTestEnv(t)
	app := env.createApplication(t)

	resp := env.request(t, http.MethodPost, "/api/questions/analyses/save", fiber.Map{
		"applicationId": app.ID,
		"analyses": []models.QuestionAnalysis{
			{
				QuestionID:       "Q-1",
				OriginalQuestion: "Were change requests approved?",
				ToolSuggestion:   "servicenow",
				ConnectorToUse:   "servicenow",
			},
		},
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var saved struct {
		Saved int `json:"saved"`
	}
	decode(t, resp, &saved)
	assert.Equal(t, 1, saved.Saved)

	resp = env.request(t, http.MethodGet, fmt.Sprintf("/api/questions/analyses/%d", app.ID), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var list []models.QuestionAnalysis
	decode(t, resp, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "servicenow", list[0].ConnectorToUse)
}

func TestSaveAnalyses_EmptyRejected(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, http.MethodPost, "/api/questions/analyses/save", fiber.Map{
		"applicationId": 1,
		"analyses":      []models.QuestionAnalysis{},
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestConnectorLifecycle(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, http.MethodPost, "/api/connectors", fiber.Map{
		"ciId": "CI100",
		"name": "Prod ServiceNow",
		"type": "service_now", // alias normalizes to the canonical name
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var conn models.ToolConnector
	decode(t, resp, &conn)
	assert.Equal(t, "servicenow", conn.Type)
	assert.Equal(t, "active", conn.Status)

	resp = env.request(t, http.MethodGet, "/api/connectors?ciId=CI100", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var list []models.ToolConnector
	decode(t, resp, &list)
	assert.Len(t, list, 1)

	resp = env.request(t, http.MethodDelete, fmt.Sprintf("/api/connectors/%d", conn.ID), nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestConnectorCreate_UnsupportedType(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, http.MethodPost, "/api/connectors", fiber.Map{
		"ciId": "CI100",
		"name": "Mystery",
		"type": "sharepoint",
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestDocumentUploadAndList(t *testing.T) {
	env := newTestEnv(t)
	app := env.createApplication(t)

	content := []byte("<html><body><p>Backups run nightly at 02:00.</p></body></html>")
	body, contentType := multipartBody(t, "backup_policy.html", content, nil)
	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/applications/%d/documents", app.ID), body)
	req.Header.Set(fiber.HeaderContentType, contentType)

	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var doc models.ContextDocument
	decode(t, resp, &doc)
	assert.Equal(t, "backup_policy.html", doc.FileName)
	assert.Equal(t, "Backups run nightly at 02:00.", doc.Content)
	assert.False(t, strings.Contains(doc.Summary, "<"))

	resp = env.request(t, http.MethodGet, fmt.Sprintf("/api/applications/%d/documents", app.ID), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var docs []models.ContextDocument
	decode(t, resp, &docs)
	assert.Len(t, docs, 1)
}

func TestDocumentUpload_RejectsBinary(t *testing.T) {
	env := newTestEnv(t)
	app := env.createApplication(t)

	body, contentType := multipartBody(t, "report.pdf", []byte("%PDF-1.4"), nil)
	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/applications/%d/documents", app.ID), body)
	req.Header.Set(fiber.HeaderContentType, contentType)

	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestReportDownload(t *testing.T) {
	env := newTestEnv(t)
	app := env.createApplication(t)

	// report before any executions is a 404
	resp := env.request(t, http.MethodGet, fmt.Sprintf("/api/applications/%d/report", app.ID), nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	conn, err := env.db.InsertToolConnector(&models.ToolConnector{
		CIID: "CI100", Name: "Jira", Type: "jira", Status: "active",
	})
	require.NoError(t, err)
	require.NoError(t, env.db.InsertAgentExecution(&models.AgentExecution{
		ID:               "exec-1",
		ApplicationID:    app.ID,
		QuestionID:       "Q-1",
		ToolType:         "jira",
		ConnectorID:      conn.ID,
		Result:           `{"summary":"2 open tickets"}`,
		Status:           "completed",
		DataPoints:       2,
		RiskLevel:        "low",
		ComplianceStatus: "compliant",
	}))

	resp = env.request(t, http.MethodGet, fmt.Sprintf("/api/applications/%d/report", app.ID), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get(fiber.HeaderContentDisposition), "audit_findings_CI100.xlsx")

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	wb, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer wb.Close()
	rows, err := wb.GetRows("Findings")
	require.NoError(t, err)
	assert.Greater(t, len(rows), 1)
}

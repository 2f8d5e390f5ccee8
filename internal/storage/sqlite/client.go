package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/veritas-audit/backend/internal/storage/models"
	"github.com/veritas-audit/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS applications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		audit_name TEXT NOT NULL,
		ci_id TEXT NOT NULL,
		audit_date_from TEXT NOT NULL,
		audit_date_to TEXT NOT NULL,
		enable_followup_questions INTEGER DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_applications_ci ON applications(ci_id);
	CREATE INDEX IF NOT EXISTS idx_applications_created ON applications(created_at);

	CREATE TABLE IF NOT EXISTS data_requests (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		application_id INTEGER NOT NULL,
		file_name TEXT NOT NULL,
		file_type TEXT NOT NULL,
		column_mappings TEXT NOT NULL,
		questions TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (application_id) REFERENCES applications(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_data_requests_app ON data_requests(application_id);

	CREATE TABLE IF NOT EXISTS question_analyses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		application_id INTEGER NOT NULL,
		question_id TEXT,
		original_question TEXT NOT NULL,
		category TEXT,
		subcategory TEXT,
		generated_prompt TEXT,
		tool_suggestion TEXT,
		connector_reason TEXT,
		connector_to_use TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (application_id) REFERENCES applications(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_analyses_app ON question_analyses(application_id);

	CREATE TABLE IF NOT EXISTS tool_connectors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ci_id TEXT NOT NULL,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		config TEXT,
		status TEXT DEFAULT 'pending',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_connectors_ci ON tool_connectors(ci_id);

	CREATE TABLE IF NOT EXISTS agent_executions (
		id TEXT PRIMARY KEY,
		application_id INTEGER NOT NULL,
		question_id TEXT,
		tool_type TEXT NOT NULL,
		connector_id INTEGER,
		prompt TEXT,
		result TEXT,
		status TEXT NOT NULL,
		data_points INTEGER DEFAULT 0,
		risk_level TEXT,
		compliance_status TEXT,
		latency_ms INTEGER,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (application_id) REFERENCES applications(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_executions_app ON agent_executions(application_id);
	CREATE INDEX IF NOT EXISTS idx_executions_created ON agent_executions(created_at);

	CREATE TABLE IF NOT EXISTS context_documents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		application_id INTEGER NOT NULL,
		file_name TEXT NOT NULL,
		content TEXT,
		summary TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (application_id) REFERENCES applications(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_documents_app ON context_documents(application_id);

	CREATE TABLE IF NOT EXISTS chat_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		ci_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		tools_used TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chat_session ON chat_messages(session_id);
	CREATE INDEX IF NOT EXISTS idx_chat_ci ON chat_messages(ci_id);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) InsertApplication(app *models.Application) (*models.Application, error) {
	query := `
		INSERT INTO applications (audit_name, ci_id, audit_date_from, audit_date_to, enable_followup_questions, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	followup := 0
	if app.EnableFollowupQuestions {
		followup = 1
	}
	app.CreatedAt = time.Now()

	res, err := c.db.Exec(query, app.AuditName, app.CIID, app.AuditDateFrom, app.AuditDateTo, followup, app.CreatedAt.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to insert application: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read inserted application id: %w", err)
	}
	app.ID = int(id)

	logger.Info("Application created",
		zap.Int("application_id", app.ID),
		zap.String("audit_name", app.AuditName),
		zap.String("ci_id", app.CIID),
	)

	return app, nil
}

func (c *Client) GetApplication(id int) (*models.Application, error) {
	query := `
		SELECT id, audit_name, ci_id, audit_date_from, audit_date_to, enable_followup_questions, created_at
		FROM applications WHERE id = ?
	`

	var app models.Application
	var followup int
	var createdAt int64

	err := c.db.QueryRow(query, id).Scan(
		&app.ID,
		&app.AuditName,
		&app.CIID,
		&app.AuditDateFrom,
		&app.AuditDateTo,
		&followup,
		&createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get application: %w", err)
	}

	app.EnableFollowupQuestions = followup != 0
	app.CreatedAt = time.Unix(createdAt, 0)

	return &app, nil
}

func (c *Client) ListApplications() ([]models.Application, error) {
	query := `
		SELECT id, audit_name, ci_id, audit_date_from, audit_date_to, enable_followup_questions, created_at
		FROM applications ORDER BY created_at DESC
	`

	rows, err := c.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	defer rows.Close()

	apps := []models.Application{}
	for rows.Next() {
		var app models.Application
		var followup int
		var createdAt int64

		err := rows.Scan(&app.ID, &app.AuditName, &app.CIID, &app.AuditDateFrom, &app.AuditDateTo, &followup, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		app.EnableFollowupQuestions = followup != 0
		app.CreatedAt = time.Unix(createdAt, 0)
		apps = append(apps, app)
	}

	return apps, nil
}

func (c *Client) UpdateApplication(id int, fields map[string]interface{}) (*models.Application, error) {
	columns := map[string]string{
		"auditName":               "audit_name",
		"ciId":                    "ci_id",
		"auditDateFrom":           "audit_date_from",
		"auditDateTo":             "audit_date_to",
		"enableFollowupQuestions": "enable_followup_questions",
	}

	set := ""
	args := []interface{}{}
	for key, value := range fields {
		column, ok := columns[key]
		if !ok {
			continue
		}
		if set != "" {
			set += ", "
		}
		set += column + " = ?"
		if b, isBool := value.(bool); isBool {
			if b {
				value = 1
			} else {
				value = 0
			}
		}
		args = append(args, value)
	}

	if set == "" {
		return c.GetApplication(id)
	}

	args = append(args, id)
	_, err := c.db.Exec("UPDATE applications SET "+set+" WHERE id = ?", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update application: %w", err)
	}

	return c.GetApplication(id)
}

func (c *Client) InsertDataRequest(req *models.DataRequest) (*models.DataRequest, error) {
	mappingsJSON, err := json.Marshal(req.ColumnMappings)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal column mappings: %w", err)
	}
	questionsJSON, err := json.Marshal(req.Questions)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal questions: %w", err)
	}

	req.CreatedAt = time.Now()

	res, err := c.db.Exec(
		`INSERT INTO data_requests (application_id, file_name, file_type, column_mappings, questions, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		req.ApplicationID,
		req.FileName,
		req.FileType,
		string(mappingsJSON),
		string(questionsJSON),
		req.CreatedAt.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert data request: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read inserted data request id: %w", err)
	}
	req.ID = int(id)

	logger.Info("Data request stored",
		zap.Int("data_request_id", req.ID),
		zap.Int("application_id", req.ApplicationID),
		zap.String("file_name", req.FileName),
		zap.Int("questions", len(req.Questions)),
	)

	return req, nil
}

func (c *Client) ListDataRequests(applicationID int) ([]models.DataRequest, error) {
	rows, err := c.db.Query(
		`SELECT id, application_id, file_name, file_type, column_mappings, questions, created_at
		 FROM data_requests WHERE application_id = ? ORDER BY created_at DESC`,
		applicationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list data requests: %w", err)
	}
	defer rows.Close()

	requests := []models.DataRequest{}
	for rows.Next() {
		var req models.DataRequest
		var mappingsJSON, questionsJSON string
		var createdAt int64

		err := rows.Scan(&req.ID, &req.ApplicationID, &req.FileName, &req.FileType, &mappingsJSON, &questionsJSON, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		json.Unmarshal([]byte(mappingsJSON), &req.ColumnMappings)
		json.Unmarshal([]byte(questionsJSON), &req.Questions)
		req.CreatedAt = time.Unix(createdAt, 0)
		requests = append(requests, req)
	}

	return requests, nil
}

// SaveQuestionAnalyses stores a batch in one transaction so a failed row
// does not leave a partial analysis set behind.
func (c *Client) SaveQuestionAnalyses(applicationID int, analyses []models.QuestionAnalysis) ([]models.QuestionAnalysis, error) {
	tx, err := c.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	// a save replaces the application's prior analysis set
	if _, err := tx.Exec(`DELETE FROM question_analyses WHERE application_id = ?`, applicationID); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to clear prior analyses: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO question_analyses
		 (application_id, question_id, original_question, category, subcategory, generated_prompt, tool_suggestion, connector_reason, connector_to_use, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	saved := make([]models.QuestionAnalysis, 0, len(analyses))
	for _, analysis := range analyses {
		analysis.ApplicationID = applicationID
		analysis.CreatedAt = now

		res, err := stmt.Exec(
			applicationID,
			analysis.QuestionID,
			analysis.OriginalQuestion,
			analysis.Category,
			analysis.Subcategory,
			analysis.GeneratedPrompt,
			analysis.ToolSuggestion,
			analysis.ConnectorReason,
			analysis.ConnectorToUse,
			now.Unix(),
		)
		if err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("failed to insert question analysis: %w", err)
		}

		id, err := res.LastInsertId()
		if err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("failed to read inserted analysis id: %w", err)
		}
		analysis.ID = int(id)
		saved = append(saved, analysis)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit analyses: %w", err)
	}

	logger.Info("Question analyses saved",
		zap.Int("application_id", applicationID),
		zap.Int("count", len(saved)),
	)

	return saved, nil
}

func (c *Client) ListQuestionAnalyses(applicationID int) ([]models.QuestionAnalysis, error) {
	rows, err := c.db.Query(
		`SELECT id, application_id, question_id, original_question, category, subcategory, generated_prompt, tool_suggestion, connector_reason, connector_to_use, created_at
		 FROM question_analyses WHERE application_id = ? ORDER BY id`,
		applicationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list question analyses: %w", err)
	}
	defer rows.Close()

	analyses := []models.QuestionAnalysis{}
	for rows.Next() {
		var a models.QuestionAnalysis
		var createdAt int64

		err := rows.Scan(&a.ID, &a.ApplicationID, &a.QuestionID, &a.OriginalQuestion, &a.Category, &a.Subcategory,
			&a.GeneratedPrompt, &a.ToolSuggestion, &a.ConnectorReason, &a.ConnectorToUse, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		a.CreatedAt = time.Unix(createdAt, 0)
		analyses = append(analyses, a)
	}

	return analyses, nil
}

func (c *Client) InsertToolConnector(conn *models.ToolConnector) (*models.ToolConnector, error) {
	configJSON, err := json.Marshal(conn.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal connector config: %w", err)
	}

	if conn.Status == "" {
		conn.Status = "pending"
	}
	conn.CreatedAt = time.Now()

	res, err := c.db.Exec(
		`INSERT INTO tool_connectors (ci_id, name, type, config, status, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		conn.CIID, conn.Name, conn.Type, string(configJSON), conn.Status, conn.CreatedAt.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert tool connector: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read inserted connector id: %w", err)
	}
	conn.ID = int(id)

	return conn, nil
}

func (c *Client) GetToolConnector(id int) (*models.ToolConnector, error) {
	var conn models.ToolConnector
	var configJSON string
	var createdAt int64

	err := c.db.QueryRow(
		`SELECT id, ci_id, name, type, config, status, created_at FROM tool_connectors WHERE id = ?`, id,
	).Scan(&conn.ID, &conn.CIID, &conn.Name, &conn.Type, &configJSON, &conn.Status, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tool connector: %w", err)
	}

	json.Unmarshal([]byte(configJSON), &conn.Config)
	conn.CreatedAt = time.Unix(createdAt, 0)

	return &conn, nil
}

func (c *Client) ListToolConnectors(ciID string) ([]models.ToolConnector, error) {
	query := `SELECT id, ci_id, name, type, config, status, created_at FROM tool_connectors`
	args := []interface{}{}
	if ciID != "" {
		query += ` WHERE ci_id = ?`
		args = append(args, ciID)
	}
	query += ` ORDER BY id`

	rows, err := c.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tool connectors: %w", err)
	}
	defer rows.Close()

	connectors := []models.ToolConnector{}
	for rows.Next() {
		var conn models.ToolConnector
		var configJSON string
		var createdAt int64

		err := rows.Scan(&conn.ID, &conn.CIID, &conn.Name, &conn.Type, &configJSON, &conn.Status, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		json.Unmarshal([]byte(configJSON), &conn.Config)
		conn.CreatedAt = time.Unix(createdAt, 0)
		connectors = append(connectors, conn)
	}

	return connectors, nil
}

func (c *Client) DeleteToolConnector(id int) error {
	_, err := c.db.Exec(`DELETE FROM tool_connectors WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete tool connector: %w", err)
	}
	return nil
}

func (c *Client) InsertAgentExecution(exec *models.AgentExecution) error {
	exec.CreatedAt = time.Now()

	_, err := c.db.Exec(
		`INSERT INTO agent_executions
		 (id, application_id, question_id, tool_type, connector_id, prompt, result, status, data_points, risk_level, compliance_status, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exec.ID,
		exec.ApplicationID,
		exec.QuestionID,
		exec.ToolType,
		exec.ConnectorID,
		exec.Prompt,
		exec.Result,
		exec.Status,
		exec.DataPoints,
		exec.RiskLevel,
		exec.ComplianceStatus,
		exec.LatencyMS,
		exec.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert agent execution: %w", err)
	}

	logger.Info("Agent execution recorded",
		zap.String("execution_id", exec.ID),
		zap.String("tool_type", exec.ToolType),
		zap.String("status", exec.Status),
		zap.Int("data_points", exec.DataPoints),
	)

	return nil
}

func (c *Client) ListAgentExecutions(applicationID int) ([]models.AgentExecution, error) {
	rows, err := c.db.Query(
		`SELECT ae.id, ae.application_id, ae.question_id, ae.tool_type, ae.connector_id, COALESCE(tc.name, ''),
		        ae.prompt, ae.result, ae.status, ae.data_points, ae.risk_level, ae.compliance_status, ae.latency_ms, ae.created_at
		 FROM agent_executions ae
		 LEFT JOIN tool_connectors tc ON ae.connector_id = tc.id
		 WHERE ae.application_id = ?
		 ORDER BY ae.created_at DESC`,
		applicationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list agent executions: %w", err)
	}
	defer rows.Close()

	executions := []models.AgentExecution{}
	for rows.Next() {
		var e models.AgentExecution
		var createdAt int64

		err := rows.Scan(&e.ID, &e.ApplicationID, &e.QuestionID, &e.ToolType, &e.ConnectorID, &e.ConnectorName,
			&e.Prompt, &e.Result, &e.Status, &e.DataPoints, &e.RiskLevel, &e.ComplianceStatus, &e.LatencyMS, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		e.CreatedAt = time.Unix(createdAt, 0)
		executions = append(executions, e)
	}

	return executions, nil
}

func (c *Client) InsertContextDocument(doc *models.ContextDocument) (*models.ContextDocument, error) {
	doc.CreatedAt = time.Now()

	res, err := c.db.Exec(
		`INSERT INTO context_documents (application_id, file_name, content, summary, created_at) VALUES (?, ?, ?, ?, ?)`,
		doc.ApplicationID, doc.FileName, doc.Content, doc.Summary, doc.CreatedAt.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert context document: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read inserted document id: %w", err)
	}
	doc.ID = int(id)

	return doc, nil
}

func (c *Client) ListContextDocuments(applicationID int) ([]models.ContextDocument, error) {
	rows, err := c.db.Query(
		`SELECT id, application_id, file_name, content, summary, created_at
		 FROM context_documents WHERE application_id = ? ORDER BY created_at DESC`,
		applicationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list context documents: %w", err)
	}
	defer rows.Close()

	docs := []models.ContextDocument{}
	for rows.Next() {
		var d models.ContextDocument
		var createdAt int64

		err := rows.Scan(&d.ID, &d.ApplicationID, &d.FileName, &d.Content, &d.Summary, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		d.CreatedAt = time.Unix(createdAt, 0)
		docs = append(docs, d)
	}

	return docs, nil
}

func (c *Client) InsertChatMessage(msg *models.ChatMessage) error {
	toolsJSON, _ := json.Marshal(msg.ToolsUsed)
	msg.CreatedAt = time.Now()

	_, err := c.db.Exec(
		`INSERT INTO chat_messages (session_id, ci_id, role, content, tools_used, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		msg.SessionID, msg.CIID, msg.Role, msg.Content, string(toolsJSON), msg.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert chat message: %w", err)
	}

	return nil
}

func (c *Client) ListChatMessages(sessionID string, limit int) ([]models.ChatMessage, error) {
	rows, err := c.db.Query(
		`SELECT id, session_id, ci_id, role, content, tools_used, created_at
		 FROM chat_messages WHERE session_id = ? ORDER BY id DESC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat messages: %w", err)
	}
	defer rows.Close()

	messages := []models.ChatMessage{}
	for rows.Next() {
		var m models.ChatMessage
		var toolsJSON string
		var createdAt int64

		err := rows.Scan(&m.ID, &m.SessionID, &m.CIID, &m.Role, &m.Content, &toolsJSON, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		json.Unmarshal([]byte(toolsJSON), &m.ToolsUsed)
		m.CreatedAt = time.Unix(createdAt, 0)
		messages = append(messages, m)
	}

	// rows come back newest first; callers want chronological order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

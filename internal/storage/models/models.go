package models

import "time"

// Application is an audit engagement bound to a CI (configuration item).
type Application struct {
	ID                      int       `json:"id"`
	AuditName               string    `json:"auditName"`
	CIID                    string    `json:"ciId"`
	AuditDateFrom           string    `json:"auditDateFrom"`
	AuditDateTo             string    `json:"auditDateTo"`
	EnableFollowupQuestions bool      `json:"enableFollowupQuestions"`
	CreatedAt               time.Time `json:"createdAt"`
}

// Question is one extracted row of an uploaded question sheet.
type Question struct {
	Question       string `json:"question"`
	Category       string `json:"category"`
	Subcategory    string `json:"subcategory"`
	QuestionNumber string `json:"questionNumber"`
}

// DataRequest records one uploaded question workbook and the questions
// extracted from it through the user-supplied column mappings.
type DataRequest struct {
	ID             int               `json:"id"`
	ApplicationID  int               `json:"applicationId"`
	FileName       string            `json:"fileName"`
	FileType       string            `json:"fileType"`
	ColumnMappings map[string]string `json:"columnMappings"`
	Questions      []Question        `json:"questions"`
	CreatedAt      time.Time         `json:"createdAt"`
}

// QuestionAnalysis pairs an audit question with the LLM-suggested tool and
// generated collection prompt.
type QuestionAnalysis struct {
	ID               int       `json:"id"`
	ApplicationID    int       `json:"applicationId"`
	QuestionID       string    `json:"questionId"`
	OriginalQuestion string    `json:"originalQuestion"`
	Category         string    `json:"category"`
	Subcategory      string    `json:"subcategory"`
	GeneratedPrompt  string    `json:"generatedPrompt"`
	ToolSuggestion   string    `json:"toolSuggestion"`
	ConnectorReason  string    `json:"connectorReason"`
	ConnectorToUse   string    `json:"connectorToUse"`
	CreatedAt        time.Time `json:"createdAt"`
}

type ToolConnector struct {
	ID            int               `json:"id"`
	CIID          string            `json:"ciId"`
	Name          string            `json:"name"`
	Type          string            `json:"type"`
	Config        map[string]string `json:"config"`
	Status        string            `json:"status"`
	CreatedAt     time.Time         `json:"createdAt"`
}

// AgentExecution is one data-collection run for an analyzed question.
type AgentExecution struct {
	ID               string    `json:"id"`
	ApplicationID    int       `json:"applicationId"`
	QuestionID       string    `json:"questionId"`
	ToolType         string    `json:"toolType"`
	ConnectorID      int       `json:"connectorId"`
	ConnectorName    string    `json:"connectorName,omitempty"`
	Prompt           string    `json:"prompt"`
	Result           string    `json:"result"`
	Status           string    `json:"status"`
	DataPoints       int       `json:"dataPoints"`
	RiskLevel        string    `json:"riskLevel"`
	ComplianceStatus string    `json:"complianceStatus"`
	LatencyMS        int       `json:"latencyMs"`
	CreatedAt        time.Time `json:"createdAt"`
}

type ContextDocument struct {
	ID            int       `json:"id"`
	ApplicationID int       `json:"applicationId"`
	FileName      string    `json:"fileName"`
	Content       string    `json:"content"`
	Summary       string    `json:"summary"`
	CreatedAt     time.Time `json:"createdAt"`
}

// ChatMessage is one side of a Veritas GPT conversation turn.
type ChatMessage struct {
	ID        int       `json:"id"`
	SessionID string    `json:"sessionId"`
	CIID      string    `json:"ciId"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	ToolsUsed []string  `json:"toolsUsed,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

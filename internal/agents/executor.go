package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/veritas-audit/backend/internal/cache/redis"
	"github.com/veritas-audit/backend/internal/connectors"
	"github.com/veritas-audit/backend/internal/metrics"
	"github.com/veritas-audit/backend/internal/storage/models"
	"github.com/veritas-audit/backend/internal/storage/sqlite"
	"github.com/veritas-audit/backend/pkg/logger"
	"github.com/veritas-audit/backend/pkg/utils"
)

const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusNoData    = "no_data"
)

// ErrConnectorNotFound reports an execute request against a connector
// id that does not exist.
var ErrConnectorNotFound = errors.New("connector not found")

// ExecuteRequest is one agent run: collect data for a question through
// a connector and persist its analysis as an execution record.
type ExecuteRequest struct {
	ApplicationID int    `json:"applicationId"`
	QuestionID    string `json:"questionId"`
	Question      string `json:"question"`
	Prompt        string `json:"prompt"`
	ToolType      string `json:"toolType"`
	ConnectorID   int    `json:"connectorId"`
}

// Executor runs data-collection agents against per-CI tool folders.
type Executor struct {
	db       *sqlite.Client
	cache    *redis.Client
	analyzer connectors.Analyzer
	toolsDir string
	cacheTTL time.Duration
}

func NewExecutor(db *sqlite.Client, cache *redis.Client, analyzer connectors.Analyzer, toolsDir string, cacheTTL time.Duration) *Executor {
	return &Executor{
		db:       db,
		cache:    cache,
		analyzer: analyzer,
		toolsDir: toolsDir,
		cacheTTL: cacheTTL,
	}
}

// Execute runs one agent and records the outcome. A missing tool folder
// is recorded as a no_data execution rather than an error; only invalid
// requests fail the call itself.
func (e *Executor) Execute(ctx context.Context, req *ExecuteRequest) (*models.AgentExecution, error) {
	conn, err := e.db.GetToolConnector(req.ConnectorID)
	if err != nil {
		return nil, fmt.Errorf("connector %d: %w", req.ConnectorID, err)
	}
	if conn == nil {
		return nil, fmt.Errorf("%w: %d", ErrConnectorNotFound, req.ConnectorID)
	}

	tool := req.ToolType
	if tool == "" {
		tool = conn.Type
	}
	canonical, ok := connectors.Normalize(tool)
	if !ok {
		return nil, fmt.Errorf("unsupported tool type: %s", tool)
	}

	question := req.Question
	if req.Prompt != "" {
		question = req.Prompt
	}

	exec := &models.AgentExecution{
		ID:            uuid.New().String(),
		ApplicationID: req.ApplicationID,
		QuestionID:    req.QuestionID,
		ToolType:      canonical,
		ConnectorID:   conn.ID,
		Prompt:        question,
		CreatedAt:     time.Now().UTC(),
	}

	logger.Info("Executing agent",
		zap.String("execution_id", exec.ID),
		zap.String("ci_id", conn.CIID),
		zap.String("tool", canonical),
	)

	start := time.Now()
	result, err := e.collect(ctx, conn.CIID, canonical, question)
	exec.LatencyMS = int(time.Since(start).Milliseconds())

	switch {
	case err == nil:
		exec.Status = StatusCompleted
		exec.DataPoints = result.TotalRecords
		if result.Analysis != nil {
			exec.RiskLevel = result.Analysis.RiskLevel
			exec.ComplianceStatus = result.Analysis.ComplianceStatus
			if result.Analysis.DataPoints > exec.DataPoints {
				exec.DataPoints = result.Analysis.DataPoints
			}
		}
		payload, merr := json.Marshal(result)
		if merr != nil {
			return nil, fmt.Errorf("failed to encode agent result: %w", merr)
		}
		exec.Result = string(payload)
	case errors.Is(err, connectors.ErrNoData):
		exec.Status = StatusNoData
		exec.Result = fmt.Sprintf(`{"error":%q}`, err.Error())
		logger.Warn("Agent found no data",
			zap.String("execution_id", exec.ID),
			zap.String("tool", canonical),
		)
	default:
		exec.Status = StatusFailed
		exec.Result = fmt.Sprintf(`{"error":%q}`, err.Error())
		logger.Error("Agent execution failed",
			zap.String("execution_id", exec.ID),
			zap.String("tool", canonical),
			zap.Error(err),
		)
	}

	metrics.AgentExecutions.WithLabelValues(canonical, exec.Status).Inc()
	metrics.AgentDuration.WithLabelValues(canonical).Observe(time.Since(start).Seconds())

	if err := e.db.InsertAgentExecution(exec); err != nil {
		return nil, fmt.Errorf("failed to record execution: %w", err)
	}

	exec.ConnectorName = conn.Name
	return exec, nil
}

// ExecuteAll runs an agent for every saved question analysis of an
// application, routing each through the connector matching its tool.
// Failed executions are recorded and skipped, not fatal to the batch.
func (e *Executor) ExecuteAll(ctx context.Context, applicationID int, ciID string) ([]models.AgentExecution, error) {
	analyses, err := e.db.ListQuestionAnalyses(applicationID)
	if err != nil {
		return nil, err
	}
	if len(analyses) == 0 {
		return nil, fmt.Errorf("no saved analyses for application %d", applicationID)
	}

	conns, err := e.db.ListToolConnectors(ciID)
	if err != nil {
		return nil, err
	}
	byType := make(map[string]*models.ToolConnector, len(conns))
	for i := range conns {
		byType[conns[i].Type] = &conns[i]
	}

	executions := make([]models.AgentExecution, 0, len(analyses))
	for _, analysis := range analyses {
		if err := ctx.Err(); err != nil {
			return executions, err
		}

		tool, _ := connectors.Normalize(analysis.ConnectorToUse)
		if tool == "" {
			tool = connectors.ToolSQLServer
		}
		conn, ok := byType[tool]
		if !ok {
			logger.Warn("No connector configured for tool",
				zap.String("ci_id", ciID),
				zap.String("tool", tool),
				zap.String("question_id", analysis.QuestionID),
			)
			continue
		}

		exec, err := e.Execute(ctx, &ExecuteRequest{
			ApplicationID: applicationID,
			QuestionID:    analysis.QuestionID,
			Question:      analysis.OriginalQuestion,
			Prompt:        analysis.GeneratedPrompt,
			ToolType:      tool,
			ConnectorID:   conn.ID,
		})
		if err != nil {
			logger.Error("Skipping failed execution",
				zap.String("question_id", analysis.QuestionID),
				zap.Error(err),
			)
			continue
		}
		executions = append(executions, *exec)
	}

	return executions, nil
}

// History returns the recorded executions for an application.
func (e *Executor) History(applicationID int) ([]models.AgentExecution, error) {
	return e.db.ListAgentExecutions(applicationID)
}

// collect runs the connector, consulting the cache first so repeated
// runs of the same question against unchanged data skip the LLM.
func (e *Executor) collect(ctx context.Context, ciID, tool, question string) (*connectors.Result, error) {
	// keys are CI-prefixed so InvalidateCI can match them
	key := ciID + ":" + utils.CacheKey(tool, question)

	var cached connectors.Result
	hit, err := e.cache.GetAnalysis(ctx, key, &cached)
	if err != nil {
		logger.Warn("Cache lookup failed", zap.Error(err))
	}
	if hit {
		metrics.CacheHits.WithLabelValues("agent_result").Inc()
		return &cached, nil
	}
	metrics.CacheMisses.WithLabelValues("agent_result").Inc()

	factory := connectors.NewFactory(e.toolsDir, ciID, e.analyzer)
	result, err := factory.Collect(ctx, tool, question)
	if err != nil {
		return nil, err
	}

	if err := e.cache.SetAnalysis(ctx, key, result, e.cacheTTL); err != nil {
		logger.Warn("Cache store failed", zap.Error(err))
	}

	return result, nil
}

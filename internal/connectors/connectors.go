// Package connectors locates per-CI tool data under the tools directory
// and turns it into audit evidence. Layout:
//
//	<toolsDir>/<ciID>/SQL_Server/*.xlsx   one workbook per "table"
//	<toolsDir>/<ciID>/Oracle/*.xlsx
//	<toolsDir>/<ciID>/ServiceNow/change_requests.xlsx
//	<toolsDir>/<ciID>/Jira/jira_tickets.xlsx
//	<toolsDir>/<ciID>/QTest/test_executions.xlsx
//	<toolsDir>/<ciID>/Gnosis/*.txt|*.md|*.html
package connectors

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/veritas-audit/backend/internal/llm"
	"github.com/veritas-audit/backend/pkg/logger"
)

const (
	ToolSQLServer  = "sql_server"
	ToolOracle     = "oracle"
	ToolServiceNow = "servicenow"
	ToolJira       = "jira"
	ToolQTest      = "qtest"
	ToolGnosis     = "gnosis"
)

// ErrNoData marks a missing tool folder or an empty one; agent runs
// record it as a failed collection rather than an internal error.
var ErrNoData = errors.New("no tool data available")

var toolFolders = map[string]string{
	ToolSQLServer:  "SQL_Server",
	ToolOracle:     "Oracle",
	ToolServiceNow: "ServiceNow",
	ToolJira:       "Jira",
	ToolQTest:      "QTest",
	ToolGnosis:     "Gnosis",
}

var aliases = map[string]string{
	"service_now": ToolServiceNow,
	"oracle_db":   ToolOracle,
	"gnosis_path": ToolGnosis,
}

// Tools lists the canonical tool identifiers.
func Tools() []string {
	return []string{ToolSQLServer, ToolOracle, ToolServiceNow, ToolJira, ToolQTest, ToolGnosis}
}

// Normalize maps a tool identifier (including legacy aliases) to its
// canonical form.
func Normalize(tool string) (string, bool) {
	if _, ok := toolFolders[tool]; ok {
		return tool, true
	}
	if canonical, ok := aliases[tool]; ok {
		return canonical, true
	}
	return "", false
}

// Folder returns the on-disk folder name for a canonical tool.
func Folder(tool string) string {
	return toolFolders[tool]
}

// Analyzer is the slice of the LLM client the connectors need.
type Analyzer interface {
	AnalyzeEvidence(ctx context.Context, question, contextDesc, data string) (*llm.EvidenceAnalysis, error)
}

// Result is the outcome of one collection run against a tool.
type Result struct {
	Tool         string                `json:"tool"`
	Analysis     *llm.EvidenceAnalysis `json:"analysis"`
	Tables       []string              `json:"tablesAnalyzed,omitempty"`
	Documents    []string              `json:"documents,omitempty"`
	TotalRecords int                   `json:"totalRecords"`
}

// Factory builds collection runs for one CI.
type Factory struct {
	toolsDir string
	ciID     string
	analyzer Analyzer
}

func NewFactory(toolsDir, ciID string, analyzer Analyzer) *Factory {
	return &Factory{
		toolsDir: toolsDir,
		ciID:     ciID,
		analyzer: analyzer,
	}
}

// CIFolder is the root of this CI's tool data.
func (f *Factory) CIFolder() string {
	return filepath.Join(f.toolsDir, f.ciID)
}

// Collect runs the connector matching the tool type against a question.
func (f *Factory) Collect(ctx context.Context, tool, question string) (*Result, error) {
	canonical, ok := Normalize(tool)
	if !ok {
		return nil, fmt.Errorf("unsupported tool type: %s", tool)
	}

	logger.Debug("Collecting tool data",
		zap.String("ci_id", f.ciID),
		zap.String("tool", canonical),
	)

	switch canonical {
	case ToolSQLServer, ToolOracle:
		return f.collectDatabase(ctx, canonical, question)
	case ToolServiceNow:
		return f.collectSheet(ctx, canonical, "change_requests.xlsx", "ServiceNow change request analysis", question)
	case ToolJira:
		return f.collectSheet(ctx, canonical, "jira_tickets.xlsx", "Jira ticket analysis", question)
	case ToolQTest:
		return f.collectSheet(ctx, canonical, "test_executions.xlsx", "QTest execution analysis", question)
	case ToolGnosis:
		return f.collectDocuments(ctx, question)
	default:
		return nil, fmt.Errorf("no collection method for tool type: %s", canonical)
	}
}

func (f *Factory) toolFolder(tool string) (string, error) {
	folder := filepath.Join(f.CIFolder(), toolFolders[tool])
	info, err := os.Stat(folder)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: folder %s", ErrNoData, folder)
	}
	return folder, nil
}

func listFiles(folder string, match func(name string) bool) ([]string, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, fmt.Errorf("failed to read tool folder: %w", err)
	}

	files := []string{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if match(entry.Name()) {
			files = append(files, entry.Name())
		}
	}

	return files, nil
}

package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/veritas-audit/backend/internal/connectors"
)

func TestSuggestTool(t *testing.T) {
	tests := []struct {
		name     string
		question string
		expected string
	}{
		{"change management", "Were all emergency change requests approved?", connectors.ToolServiceNow},
		{"incidents", "Were incident tickets resolved within SLA?", connectors.ToolServiceNow},
		{"jira defects", "How many open defect tickets exist in Jira?", connectors.ToolJira},
		{"testing", "What is the test execution pass rate?", connectors.ToolQTest},
		{"documentation", "Is there a documented backup procedure?", connectors.ToolGnosis},
		{"oracle", "List privileged accounts in the Oracle schema", connectors.ToolOracle},
		{"access", "Which user accounts have admin permission?", connectors.ToolSQLServer},
		{"no keywords", "Summarize the overall posture", connectors.ToolSQLServer},
		{"empty", "", connectors.ToolSQLServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tool, reason := SuggestTool(tt.question)
			assert.Equal(t, tt.expected, tool)
			assert.NotEmpty(t, reason)
		})
	}
}

func TestSuggestTool_CaseInsensitive(t *testing.T) {
	tool, _ := SuggestTool("WERE ALL CHANGE REQUESTS APPROVED?")
	assert.Equal(t, connectors.ToolServiceNow, tool)
}

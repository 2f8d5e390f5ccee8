package llm

import (
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veritas-audit/backend/internal/metrics"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected string
	}{
		{
			name:     "bare object",
			content:  `{"a":1}`,
			expected: `{"a":1}`,
		},
		{
			name:     "fenced json",
			content:  "```json\n{\"a\":1}\n```",
			expected: `{"a":1}`,
		},
		{
			name:     "fenced without language",
			content:  "```\n{\"a\":1}\n```",
			expected: `{"a":1}`,
		},
		{
			name:     "prose around object",
			content:  `Here is the result: {"a":1} hope that helps`,
			expected: `{"a":1}`,
		},
		{
			name:     "nested braces",
			content:  `{"a":{"b":2},"c":3}`,
			expected: `{"a":{"b":2},"c":3}`,
		},
		{
			name:     "brace inside string",
			content:  `{"a":"}{","b":1} trailing`,
			expected: `{"a":"}{","b":1}`,
		},
		{
			name:     "escaped quote inside string",
			content:  `{"a":"say \"}\"","b":1}`,
			expected: `{"a":"say \"}\"","b":1}`,
		},
		{
			name:     "array",
			content:  `[{"a":1},{"a":2}] extra`,
			expected: `[{"a":1},{"a":2}]`,
		},
		{
			name:     "unterminated object returned as-is",
			content:  `{"a":1`,
			expected: `{"a":1`,
		},
		{
			name:     "no json at all",
			content:  "plain prose",
			expected: "plain prose",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractJSON(tt.content))
		})
	}
}

func TestParseQuestionSuggestion(t *testing.T) {
	content := "```json\n{\"aiPrompt\":\"Pull user access\",\"toolSuggestion\":\"sql_server\",\"connectorReason\":\"access data\"}\n```"

	suggestion, err := ParseQuestionSuggestion(content)
	require.NoError(t, err)
	assert.Equal(t, "Pull user access", suggestion.AIPrompt)
	assert.Equal(t, "sql_server", suggestion.ToolSuggestion)
	assert.Equal(t, "access data", suggestion.ConnectorReason)
}

func TestParseQuestionSuggestion_MissingFields(t *testing.T) {
	_, err := ParseQuestionSuggestion(`{"connectorReason":"only reason"}`)
	assert.Error(t, err)
}

func TestParseQuestionSuggestion_NotJSON(t *testing.T) {
	_, err := ParseQuestionSuggestion("I recommend checking the database")
	assert.Error(t, err)
}

func TestParseEvidenceAnalysis(t *testing.T) {
	content := `{"executiveSummary":"3 stale accounts","findings":["f1"],"riskLevel":"High","complianceStatus":"Non-Compliant","dataPoints":12}`

	analysis, err := ParseEvidenceAnalysis(content)
	require.NoError(t, err)
	assert.Equal(t, "3 stale accounts", analysis.ExecutiveSummary)
	assert.Equal(t, "High", analysis.RiskLevel)
	assert.Equal(t, 12, analysis.DataPoints)
}

func TestParseEvidenceAnalysis_MissingSummary(t *testing.T) {
	_, err := ParseEvidenceAnalysis(`{"riskLevel":"Low"}`)
	assert.Error(t, err)
}

func TestFallbackEvidenceAnalysis(t *testing.T) {
	analysis := FallbackEvidenceAnalysis("  The data looks fine overall.  ")
	assert.Equal(t, "The data looks fine overall.", analysis.ExecutiveSummary)
	assert.Equal(t, "Low", analysis.RiskLevel)
	assert.Equal(t, "Compliant", analysis.ComplianceStatus)
	assert.NotEmpty(t, analysis.Findings)
}

func TestFallbackEvidenceAnalysis_LongContentTruncated(t *testing.T) {
	analysis := FallbackEvidenceAnalysis(strings.Repeat("x", 600))
	assert.Len(t, analysis.ExecutiveSummary, 503)
	assert.True(t, strings.HasSuffix(analysis.ExecutiveSummary, "..."))
}

func TestFallbackEvidenceAnalysis_Empty(t *testing.T) {
	analysis := FallbackEvidenceAnalysis("")
	assert.Equal(t, "Data analysis completed.", analysis.ExecutiveSummary)
}

func TestObserveCompletion(t *testing.T) {
	success := metrics.LLMRequests.WithLabelValues("success")
	failure := metrics.LLMRequests.WithLabelValues("error")
	prompt := metrics.LLMTokensUsed.WithLabelValues("gpt-4o", "prompt")
	completion := metrics.LLMTokensUsed.WithLabelValues("gpt-4o", "completion")

	successBefore := testutil.ToFloat64(success)
	promptBefore := testutil.ToFloat64(prompt)
	completionBefore := testutil.ToFloat64(completion)

	observeCompletion("gpt-4o", &CompletionResponse{
		Content: "ok",
		Usage:   Usage{PromptTokens: 120, CompletionTokens: 40, TotalTokens: 160},
	}, nil)

	assert.Equal(t, successBefore+1, testutil.ToFloat64(success))
	assert.Equal(t, promptBefore+120, testutil.ToFloat64(prompt))
	assert.Equal(t, completionBefore+40, testutil.ToFloat64(completion))

	failureBefore := testutil.ToFloat64(failure)
	observeCompletion("gpt-4o", nil, errors.New("rate limited"))

	assert.Equal(t, failureBefore+1, testutil.ToFloat64(failure))
	// a failed request spends no tokens
	assert.Equal(t, promptBefore+120, testutil.ToFloat64(prompt))
}

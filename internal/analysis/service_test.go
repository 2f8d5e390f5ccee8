package analysis

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/veritas-audit/backend/internal/connectors"
	"github.com/veritas-audit/backend/internal/llm"
	"github.com/veritas-audit/backend/internal/metrics"
	"github.com/veritas-audit/backend/internal/storage/models"
)

type stubSuggester struct {
	suggestion *llm.QuestionSuggestion
	err        error
	calls      int
}

func (s *stubSuggester) AnalyzeQuestion(ctx context.Context, question, category, subcategory string) (*llm.QuestionSuggestion, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.suggestion, nil
}

func TestAnalyzeQuestion_LLMSuggestion(t *testing.T) {
	svc := NewService(&stubSuggester{
		suggestion: &llm.QuestionSuggestion{
			AIPrompt:        "Pull the jira tickets for the audit period",
			ToolSuggestion:  "jira",
			ConnectorReason: "Ticket data lives in Jira",
		},
	})

	result := svc.AnalyzeQuestion(context.Background(), models.Question{
		Question:       "How many open tickets exist?",
		Category:       "Quality",
		QuestionNumber: "3.1",
	})

	assert.Equal(t, "3.1", result.QuestionID)
	assert.Equal(t, connectors.ToolJira, result.ToolSuggestion)
	assert.Equal(t, connectors.ToolJira, result.ConnectorToUse)
	assert.Equal(t, "Pull the jira tickets for the audit period", result.GeneratedPrompt)
	assert.Equal(t, "Ticket data lives in Jira", result.ConnectorReason)
}

func TestAnalyzeQuestion_AliasNormalized(t *testing.T) {
	svc := NewService(&stubSuggester{
		suggestion: &llm.QuestionSuggestion{
			AIPrompt:       "prompt",
			ToolSuggestion: "service_now",
		},
	})

	result := svc.AnalyzeQuestion(context.Background(), models.Question{Question: "q"})
	assert.Equal(t, connectors.ToolServiceNow, result.ToolSuggestion)
}

func TestAnalyzeQuestion_UnknownToolFallsBack(t *testing.T) {
	svc := NewService(&stubSuggester{
		suggestion: &llm.QuestionSuggestion{
			AIPrompt:       "prompt",
			ToolSuggestion: "sharepoint",
		},
	})

	result := svc.AnalyzeQuestion(context.Background(), models.Question{Question: "q"})
	assert.Equal(t, connectors.ToolSQLServer, result.ToolSuggestion)
}

func TestAnalyzeQuestion_LLMErrorUsesKeywordRouting(t *testing.T) {
	svc := NewService(&stubSuggester{err: errors.New("rate limited")})

	result := svc.AnalyzeQuestion(context.Background(), models.Question{
		Question: "Is there a documented backup procedure?",
	})

	assert.Equal(t, connectors.ToolGnosis, result.ToolSuggestion)
	assert.Equal(t, connectors.ToolGnosis, result.ConnectorToUse)
	assert.Contains(t, result.GeneratedPrompt, "Is there a documented backup procedure?")
	assert.NotEmpty(t, result.ConnectorReason)
}

func TestAnalyzeBatch(t *testing.T) {
	stub := &stubSuggester{
		suggestion: &llm.QuestionSuggestion{AIPrompt: "p", ToolSuggestion: "qtest"},
	}
	svc := NewService(stub)

	questions := []models.Question{
		{Question: "q1", QuestionNumber: "1"},
		{Question: "q2", QuestionNumber: "2"},
	}

	analyses := svc.AnalyzeBatch(context.Background(), questions)

	assert.Len(t, analyses, 2)
	assert.Equal(t, 2, stub.calls)
	assert.Equal(t, "1", analyses[0].QuestionID)
	assert.Equal(t, "2", analyses[1].QuestionID)
}

func TestAnalyzeBatch_CancelledContext(t *testing.T) {
	stub := &stubSuggester{
		suggestion: &llm.QuestionSuggestion{AIPrompt: "p", ToolSuggestion: "qtest"},
	}
	svc := NewService(stub)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	analyses := svc.AnalyzeBatch(ctx, []models.Question{{Question: "q1"}})
	assert.Empty(t, analyses)
	assert.Zero(t, stub.calls)
}

func TestAnalyzeQuestion_CountsBySource(t *testing.T) {
	llmCounter := metrics.QuestionsAnalyzed.WithLabelValues("llm")
	heuristicCounter := metrics.QuestionsAnalyzed.WithLabelValues("heuristic")
	llmBefore := testutil.ToFloat64(llmCounter)
	heuristicBefore := testutil.ToFloat64(heuristicCounter)

	svc := NewService(&stubSuggester{
		suggestion: &llm.QuestionSuggestion{AIPrompt: "p", ToolSuggestion: "jira"},
	})
	svc.AnalyzeQuestion(context.Background(), models.Question{Question: "q"})
	assert.Equal(t, llmBefore+1, testutil.ToFloat64(llmCounter))

	svc = NewService(&stubSuggester{err: errors.New("llm down")})
	svc.AnalyzeQuestion(context.Background(), models.Question{Question: "q"})
	assert.Equal(t, heuristicBefore+1, testutil.ToFloat64(heuristicCounter))
}

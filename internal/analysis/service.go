// Package analysis turns uploaded audit questions into collection prompts
// and tool suggestions.
package analysis

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/veritas-audit/backend/internal/connectors"
	"github.com/veritas-audit/backend/internal/llm"
	"github.com/veritas-audit/backend/internal/metrics"
	"github.com/veritas-audit/backend/internal/storage/models"
	"github.com/veritas-audit/backend/pkg/logger"
)

// Suggester is the slice of the LLM client the service needs.
type Suggester interface {
	AnalyzeQuestion(ctx context.Context, question, category, subcategory string) (*llm.QuestionSuggestion, error)
}

type Service struct {
	llm Suggester
}

func NewService(suggester Suggester) *Service {
	return &Service{llm: suggester}
}

// AnalyzeQuestion produces an analysis for one question. An LLM failure
// or an off-vocabulary suggestion degrades to the keyword router rather
// than failing the batch.
func (s *Service) AnalyzeQuestion(ctx context.Context, q models.Question) models.QuestionAnalysis {
	result := models.QuestionAnalysis{
		QuestionID:       q.QuestionNumber,
		OriginalQuestion: q.Question,
		Category:         q.Category,
		Subcategory:      q.Subcategory,
	}

	suggestion, err := s.llm.AnalyzeQuestion(ctx, q.Question, q.Category, q.Subcategory)
	if err != nil {
		logger.Warn("LLM question analysis failed, using keyword routing",
			zap.String("question_id", q.QuestionNumber),
			zap.Error(err),
		)
		tool, reason := SuggestTool(q.Question)
		result.GeneratedPrompt = fmt.Sprintf("Analyze and provide data to answer: %s", q.Question)
		result.ToolSuggestion = tool
		result.ConnectorReason = reason
		result.ConnectorToUse = tool
		metrics.QuestionsAnalyzed.WithLabelValues("heuristic").Inc()
		return result
	}

	tool, ok := connectors.Normalize(suggestion.ToolSuggestion)
	if !ok {
		// unknown suggestion falls back to sql_server, the most common
		// evidence source for audit extractions
		tool = connectors.ToolSQLServer
	}

	result.GeneratedPrompt = suggestion.AIPrompt
	result.ToolSuggestion = tool
	result.ConnectorReason = suggestion.ConnectorReason
	result.ConnectorToUse = tool
	metrics.QuestionsAnalyzed.WithLabelValues("llm").Inc()

	return result
}

// AnalyzeBatch analyzes every question in order.
func (s *Service) AnalyzeBatch(ctx context.Context, questions []models.Question) []models.QuestionAnalysis {
	analyses := make([]models.QuestionAnalysis, 0, len(questions))
	for _, q := range questions {
		if err := ctx.Err(); err != nil {
			break
		}
		analyses = append(analyses, s.AnalyzeQuestion(ctx, q))
	}

	logger.Info("Question batch analyzed", zap.Int("count", len(analyses)))

	return analyses
}

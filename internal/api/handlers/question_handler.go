package handlers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/veritas-audit/backend/internal/analysis"
	"github.com/veritas-audit/backend/internal/metrics"
	"github.com/veritas-audit/backend/internal/storage/models"
	"github.com/veritas-audit/backend/internal/storage/sqlite"
	"github.com/veritas-audit/backend/pkg/logger"
)

type QuestionHandler struct {
	db       *sqlite.Client
	analyzer *analysis.Service
}

func NewQuestionHandler(db *sqlite.Client, analyzer *analysis.Service) *QuestionHandler {
	return &QuestionHandler{db: db, analyzer: analyzer}
}

// Analyze runs tool suggestion over every question uploaded for an
// application. Results are returned for review; they are not stored
// until the client calls Save.
func (h *QuestionHandler) Analyze(c *fiber.Ctx) error {
	var req struct {
		ApplicationID int `json:"applicationId"`
	}
	if err := c.BodyParser(&req); err != nil || req.ApplicationID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "applicationId is required",
		})
	}

	requests, err := h.db.ListDataRequests(req.ApplicationID)
	if err != nil {
		logger.Error("Failed to load data requests", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load data requests",
		})
	}

	var questions []models.Question
	for _, dr := range requests {
		questions = append(questions, dr.Questions...)
	}
	if len(questions) == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No questions found for this application",
		})
	}

	start := time.Now()
	analyses := h.analyzer.AnalyzeBatch(c.Context(), questions)
	metrics.AnalysisDuration.WithLabelValues("batch").Observe(time.Since(start).Seconds())

	logger.Info("Questions analyzed",
		zap.Int("application_id", req.ApplicationID),
		zap.Int("count", len(analyses)),
		zap.Duration("elapsed", time.Since(start)),
	)

	return c.JSON(fiber.Map{
		"applicationId": req.ApplicationID,
		"analyses":      analyses,
	})
}

// Save persists reviewed analyses, replacing any prior set for the
// application.
func (h *QuestionHandler) Save(c *fiber.Ctx) error {
	var req struct {
		ApplicationID int                      `json:"applicationId"`
		Analyses      []models.QuestionAnalysis `json:"analyses"`
	}
	if err := c.BodyParser(&req); err != nil || req.ApplicationID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "applicationId is required",
		})
	}
	if len(req.Analyses) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "analyses must not be empty",
		})
	}

	saved, err := h.db.SaveQuestionAnalyses(req.ApplicationID, req.Analyses)
	if err != nil {
		logger.Error("Failed to save analyses", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to save analyses",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"applicationId": req.ApplicationID,
		"saved":         len(saved),
		"analyses":      saved,
	})
}

func (h *QuestionHandler) ListAnalyses(c *fiber.Ctx) error {
	applicationID, err := strconv.Atoi(c.Params("applicationId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid application id",
		})
	}

	analyses, err := h.db.ListQuestionAnalyses(applicationID)
	if err != nil {
		logger.Error("Failed to list analyses", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list analyses",
		})
	}

	return c.JSON(analyses)
}

package handlers

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/veritas-audit/backend/internal/excel"
	"github.com/veritas-audit/backend/internal/metrics"
	"github.com/veritas-audit/backend/internal/storage/sqlite"
	"github.com/veritas-audit/backend/pkg/logger"
)

type ReportHandler struct {
	db *sqlite.Client
}

func NewReportHandler(db *sqlite.Client) *ReportHandler {
	return &ReportHandler{db: db}
}

// Download assembles the findings workbook for an application from its
// recorded agent executions and streams it as an attachment.
func (h *ReportHandler) Download(c *fiber.Ctx) error {
	applicationID, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid application id",
		})
	}

	app, err := h.db.GetApplication(applicationID)
	if err != nil {
		logger.Error("Failed to load application", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to build report",
		})
	}
	if app == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Application not found",
		})
	}

	executions, err := h.db.ListAgentExecutions(applicationID)
	if err != nil {
		logger.Error("Failed to load executions for report", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to build report",
		})
	}
	if len(executions) == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No agent executions recorded for this application",
		})
	}

	var buf bytes.Buffer
	if err := excel.WriteFindingsReport(&buf, app, executions); err != nil {
		logger.Error("Failed to write findings report", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to build report",
		})
	}

	metrics.ReportsGenerated.Inc()
	logger.Info("Findings report generated",
		zap.Int("application_id", applicationID),
		zap.Int("executions", len(executions)),
	)

	filename := fmt.Sprintf("audit_findings_%s.xlsx", app.CIID)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename=%q`, filename))
	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	return c.Send(buf.Bytes())
}

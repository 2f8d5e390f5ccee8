package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/veritas-audit/backend/internal/agents"
	"github.com/veritas-audit/backend/pkg/logger"
)

type AgentHandler struct {
	executor *agents.Executor
}

func NewAgentHandler(executor *agents.Executor) *AgentHandler {
	return &AgentHandler{executor: executor}
}

// Execute runs a single agent when questionId/connectorId are given,
// or the full batch for the application when ciId is given instead.
func (h *AgentHandler) Execute(c *fiber.Ctx) error {
	var req struct {
		ApplicationID int    `json:"applicationId"`
		QuestionID    string `json:"questionId"`
		Question      string `json:"question"`
		Prompt        string `json:"prompt"`
		ToolType      string `json:"toolType"`
		ConnectorID   int    `json:"connectorId"`
		CIID          string `json:"ciId"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.ApplicationID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "applicationId is required",
		})
	}

	if req.ConnectorID == 0 {
		if req.CIID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "connectorId or ciId is required",
			})
		}
		executions, err := h.executor.ExecuteAll(c.Context(), req.ApplicationID, req.CIID)
		if err != nil {
			logger.Error("Batch agent execution failed", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Agent execution failed",
			})
		}
		return c.JSON(fiber.Map{
			"applicationId": req.ApplicationID,
			"executions":    executions,
		})
	}

	exec, err := h.executor.Execute(c.Context(), &agents.ExecuteRequest{
		ApplicationID: req.ApplicationID,
		QuestionID:    req.QuestionID,
		Question:      req.Question,
		Prompt:        req.Prompt,
		ToolType:      req.ToolType,
		ConnectorID:   req.ConnectorID,
	})
	if err != nil {
		if errors.Is(err, agents.ErrConnectorNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Connector not found",
			})
		}
		logger.Error("Agent execution failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Agent execution failed",
		})
	}

	return c.JSON(exec)
}

func (h *AgentHandler) Executions(c *fiber.Ctx) error {
	applicationID, err := strconv.Atoi(c.Params("applicationId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid application id",
		})
	}

	executions, err := h.executor.History(applicationID)
	if err != nil {
		logger.Error("Failed to list executions", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list executions",
		})
	}

	return c.JSON(executions)
}

package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/veritas-audit/backend/internal/chat"
	"github.com/veritas-audit/backend/internal/metrics"
	"github.com/veritas-audit/backend/pkg/logger"
)

type ChatHandler struct {
	svc *chat.Service
}

func NewChatHandler(svc *chat.Service) *ChatHandler {
	return &ChatHandler{svc: svc}
}

func (h *ChatHandler) HandleChat(c *fiber.Ctx) error {
	var req chat.Request
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Message == "" || req.CIID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "ciId and message are required",
		})
	}

	resp, err := h.svc.Respond(c.Context(), &req, nil)
	if err != nil {
		if errors.Is(err, chat.ErrNoTools) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "No tool data available for this CI",
			})
		}
		logger.Error("Chat response failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to generate response",
		})
	}

	metrics.ChatMessages.WithLabelValues("rest").Inc()
	return c.JSON(resp)
}

func (h *ChatHandler) History(c *fiber.Ctx) error {
	sessionID := c.Params("sessionId")
	if sessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "sessionId is required",
		})
	}

	messages, err := h.svc.History(sessionID, 50)
	if err != nil {
		logger.Error("Failed to load chat history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load chat history",
		})
	}

	return c.JSON(messages)
}

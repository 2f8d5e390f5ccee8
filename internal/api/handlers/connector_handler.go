package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/veritas-audit/backend/internal/connectors"
	"github.com/veritas-audit/backend/internal/storage/models"
	"github.com/veritas-audit/backend/internal/storage/sqlite"
	"github.com/veritas-audit/backend/pkg/logger"
)

type ConnectorHandler struct {
	db *sqlite.Client
}

func NewConnectorHandler(db *sqlite.Client) *ConnectorHandler {
	return &ConnectorHandler{db: db}
}

func (h *ConnectorHandler) Create(c *fiber.Ctx) error {
	var req struct {
		CIID   string            `json:"ciId"`
		Name   string            `json:"name"`
		Type   string            `json:"type"`
		Config map[string]string `json:"config"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.CIID == "" || req.Name == "" || req.Type == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "ciId, name, and type are required",
		})
	}

	canonical, ok := connectors.Normalize(req.Type)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unsupported connector type",
		})
	}

	conn, err := h.db.InsertToolConnector(&models.ToolConnector{
		CIID:   req.CIID,
		Name:   req.Name,
		Type:   canonical,
		Config: req.Config,
		Status: "active",
	})
	if err != nil {
		logger.Error("Failed to create connector", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create connector",
		})
	}

	logger.Info("Connector created",
		zap.Int("connector_id", conn.ID),
		zap.String("ci_id", conn.CIID),
		zap.String("type", conn.Type),
	)

	return c.Status(fiber.StatusCreated).JSON(conn)
}

func (h *ConnectorHandler) List(c *fiber.Ctx) error {
	ciID := c.Query("ciId")

	conns, err := h.db.ListToolConnectors(ciID)
	if err != nil {
		logger.Error("Failed to list connectors", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list connectors",
		})
	}

	return c.JSON(conns)
}

func (h *ConnectorHandler) Delete(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid connector id",
		})
	}

	if err := h.db.DeleteToolConnector(id); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Connector not found",
		})
	}

	return c.JSON(fiber.Map{"deleted": id})
}

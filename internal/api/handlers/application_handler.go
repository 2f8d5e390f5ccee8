package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/veritas-audit/backend/internal/storage/models"
	"github.com/veritas-audit/backend/internal/storage/sqlite"
	"github.com/veritas-audit/backend/pkg/logger"
)

type ApplicationHandler struct {
	db *sqlite.Client
}

func NewApplicationHandler(db *sqlite.Client) *ApplicationHandler {
	return &ApplicationHandler{db: db}
}

func (h *ApplicationHandler) Create(c *fiber.Ctx) error {
	var req struct {
		AuditName               string `json:"auditName"`
		CIID                    string `json:"ciId"`
		AuditDateFrom           string `json:"auditDateFrom"`
		AuditDateTo             string `json:"auditDateTo"`
		EnableFollowupQuestions bool   `json:"enableFollowupQuestions"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse application body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.AuditName == "" || req.CIID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "auditName and ciId are required",
		})
	}

	app, err := h.db.InsertApplication(&models.Application{
		AuditName:               req.AuditName,
		CIID:                    req.CIID,
		AuditDateFrom:           req.AuditDateFrom,
		AuditDateTo:             req.AuditDateTo,
		EnableFollowupQuestions: req.EnableFollowupQuestions,
	})
	if err != nil {
		logger.Error("Failed to create application", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create application",
		})
	}

	logger.Info("Application created",
		zap.Int("application_id", app.ID),
		zap.String("ci_id", app.CIID),
	)

	return c.Status(fiber.StatusCreated).JSON(app)
}

func (h *ApplicationHandler) List(c *fiber.Ctx) error {
	apps, err := h.db.ListApplications()
	if err != nil {
		logger.Error("Failed to list applications", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list applications",
		})
	}

	return c.JSON(apps)
}

func (h *ApplicationHandler) Get(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid application id",
		})
	}

	app, err := h.db.GetApplication(id)
	if err != nil {
		logger.Error("Failed to load application", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load application",
		})
	}
	if app == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Application not found",
		})
	}

	return c.JSON(app)
}

func (h *ApplicationHandler) Update(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid application id",
		})
	}

	var fields map[string]interface{}
	if err := c.BodyParser(&fields); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if len(fields) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No fields to update",
		})
	}

	app, err := h.db.UpdateApplication(id, fields)
	if err != nil {
		logger.Error("Failed to update application",
			zap.Int("application_id", id),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update application",
		})
	}
	if app == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Application not found",
		})
	}

	return c.JSON(app)
}

package handlers

import (
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/veritas-audit/backend/internal/connectors"
	"github.com/veritas-audit/backend/internal/storage/models"
	"github.com/veritas-audit/backend/internal/storage/sqlite"
	"github.com/veritas-audit/backend/pkg/logger"
)

const summaryChars = 300

// DocumentHandler manages supplementary context documents that auditors
// attach to an application alongside its question spreadsheets.
type DocumentHandler struct {
	db *sqlite.Client
}

func NewDocumentHandler(db *sqlite.Client) *DocumentHandler {
	return &DocumentHandler{db: db}
}

// Upload stores a text document (.txt, .md, .html) against an
// application. HTML is stripped to plain text before storage.
func (h *DocumentHandler) Upload(c *fiber.Ctx) error {
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
			"error": "Failed to load application",
		})
	}
	if app == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Application not found",
		})
	}

	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "File is required",
		})
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if ext != ".txt" && ext != ".md" && ext != ".html" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Only .txt, .md and .html documents are supported",
		})
	}
	if file.Size > maxUploadBytes {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": msgFileTooLarge,
		})
	}

	f, err := file.Open()
	if err != nil {
		logger.Error("Failed to open upload", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to read uploaded file",
		})
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		logger.Error("Failed to read upload", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to read uploaded file",
		})
	}

	content := string(data)
	if ext == ".html" {
		if stripped, err := connectors.StripHTML(content); err == nil {
			content = stripped
		}
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Document is empty",
		})
	}

	doc, err := h.db.InsertContextDocument(&models.ContextDocument{
		ApplicationID: applicationID,
		FileName:      file.Filename,
		Content:       content,
		Summary:       summarize(content),
	})
	if err != nil {
		logger.Error("Failed to store context document", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to store document",
		})
	}

	logger.Info("Context document uploaded",
		zap.Int("application_id", applicationID),
		zap.String("file", file.Filename),
	)

	return c.Status(fiber.StatusCreated).JSON(doc)
}

func (h *DocumentHandler) List(c *fiber.Ctx) error {
	applicationID, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid application id",
		})
	}

	docs, err := h.db.ListContextDocuments(applicationID)
	if err != nil {
		logger.Error("Failed to list context documents", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list documents",
		})
	}

	return c.JSON(docs)
}

// summarize keeps the first sentence-ish slice of a document for list
// views, without loading the full content client-side.
func summarize(content string) string {
	flat := strings.Join(strings.Fields(content), " ")
	if len(flat) <= summaryChars {
		return flat
	}
	cut := flat[:summaryChars]
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	return cut + "..."
}

package handlers

import (
	"encoding/json"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/veritas-audit/backend/internal/excel"
	"github.com/veritas-audit/backend/internal/metrics"
	"github.com/veritas-audit/backend/internal/storage/models"
	"github.com/veritas-audit/backend/internal/storage/sqlite"
	"github.com/veritas-audit/backend/pkg/logger"
)

const maxUploadBytes = 10 * 1024 * 1024

type DataRequestHandler struct {
	db *sqlite.Client
}

func NewDataRequestHandler(db *sqlite.Client) *DataRequestHandler {
	return &DataRequestHandler{db: db}
}

// GetColumns inspects an uploaded spreadsheet and returns its headers
// with a few sample rows, plus auto-detected column mappings.
func (h *DataRequestHandler) GetColumns(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "File is required",
		})
	}
	if msg := validateSpreadsheet(file.Filename, file.Size); msg != "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": msg,
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

	info, err := excel.DetectColumns(f)
	if err != nil {
		logger.Error("Failed to detect columns",
			zap.String("file", file.Filename),
			zap.Error(err),
		)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Failed to parse spreadsheet",
		})
	}

	return c.JSON(fiber.Map{
		"columns":          info.Columns,
		"sampleData":       info.SampleData,
		"totalRows":        info.TotalRows,
		"detectedMappings": excel.AutoDetectMappings(info.Columns),
	})
}

// Create uploads a question spreadsheet for an application, extracts
// its questions through the provided column mappings, and stores the
// data request.
func (h *DataRequestHandler) Create(c *fiber.Ctx) error {
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
	if msg := validateSpreadsheet(file.Filename, file.Size); msg != "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": msg,
		})
	}

	fileType := c.FormValue("fileType")
	if fileType == "" {
		fileType = "primary"
	}

	mappings := map[string]string{}
	if raw := c.FormValue("columnMappings"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &mappings); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid columnMappings JSON",
			})
		}
	}

	f, err := file.Open()
	if err != nil {
		logger.Error("Failed to open upload", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to read uploaded file",
		})
	}
	defer f.Close()

	questions, err := excel.ExtractQuestions(f, mappings)
	if err != nil {
		logger.Error("Failed to extract questions",
			zap.String("file", file.Filename),
			zap.Error(err),
		)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Failed to parse spreadsheet",
		})
	}

	req, err := h.db.InsertDataRequest(&models.DataRequest{
		ApplicationID:  applicationID,
		FileName:       file.Filename,
		FileType:       fileType,
		ColumnMappings: mappings,
		Questions:      questions,
	})
	if err != nil {
		logger.Error("Failed to store data request", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to store data request",
		})
	}

	metrics.SpreadsheetsUploaded.Inc()
	logger.Info("Data request created",
		zap.Int("application_id", applicationID),
		zap.String("file", file.Filename),
		zap.Int("questions", len(questions)),
	)

	return c.Status(fiber.StatusCreated).JSON(req)
}

func (h *DataRequestHandler) List(c *fiber.Ctx) error {
	applicationID, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid application id",
		})
	}

	requests, err := h.db.ListDataRequests(applicationID)
	if err != nil {
		logger.Error("Failed to list data requests", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list data requests",
		})
	}

	return c.JSON(requests)
}

// validateSpreadsheet returns a client-facing message when the upload
// is not an acceptable workbook, empty otherwise.
func validateSpreadsheet(filename string, size int64) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext != ".xlsx" && ext != ".xls" {
		return msgUnsupportedFile
	}
	if size > maxUploadBytes {
		return msgFileTooLarge
	}
	return ""
}

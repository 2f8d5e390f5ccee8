package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/veritas-audit/backend/internal/agents"
	"github.com/veritas-audit/backend/internal/analysis"
	"github.com/veritas-audit/backend/internal/api/handlers"
	"github.com/veritas-audit/backend/internal/cache/redis"
	"github.com/veritas-audit/backend/internal/chat"
	"github.com/veritas-audit/backend/internal/llm"
	"github.com/veritas-audit/backend/internal/metrics"
	"github.com/veritas-audit/backend/internal/middleware/ratelimit"
	"github.com/veritas-audit/backend/internal/middleware/security"
	"github.com/veritas-audit/backend/internal/middleware/validation"
	"github.com/veritas-audit/backend/internal/storage/sqlite"
	"github.com/veritas-audit/backend/pkg/config"
	appLogger "github.com/veritas-audit/backend/pkg/logger"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting Veritas audit backend")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	var cacheClient *redis.Client
	if cfg.Redis.Enabled {
		cacheClient, err = redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Warn("Redis unavailable, running without cache", zap.Error(err))
		} else {
			defer cacheClient.Close()
		}
	}
	cacheTTL := time.Duration(cfg.Redis.TTLSec) * time.Second

	llmClient := llm.NewClient(
		cfg.LLM.APIKey,
		cfg.LLM.Model,
		cfg.LLM.Temperature,
		cfg.LLM.MaxTokens,
		cfg.LLM.TimeoutSec,
	)

	analysisService := analysis.NewService(llmClient)
	executor := agents.NewExecutor(sqliteClient, cacheClient, llmClient, cfg.Tools.Dir, cacheTTL)
	chatService := chat.NewService(sqliteClient, cacheClient, llmClient, cfg.Tools.Dir, cacheTTL)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		IsDevelopment: cfg.Logging.Level == "debug",
	}))

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: 120,
		Logger:               appLogger.GetLogger(),
	})
	defer limiter.Stop()
	app.Use(limiter.Middleware())

	app.Use(validation.Middleware(validation.Config{
		Logger: appLogger.GetLogger(),
	}))

	applicationHandler := handlers.NewApplicationHandler(sqliteClient)
	dataRequestHandler := handlers.NewDataRequestHandler(sqliteClient)
	questionHandler := handlers.NewQuestionHandler(sqliteClient, analysisService)
	connectorHandler := handlers.NewConnectorHandler(sqliteClient)
	agentHandler := handlers.NewAgentHandler(executor)
	documentHandler := handlers.NewDocumentHandler(sqliteClient)
	reportHandler := handlers.NewReportHandler(sqliteClient)
	chatHandler := handlers.NewChatHandler(chatService)
	wsHandler := handlers.NewWebSocketHandler(chatService)
	healthHandler := handlers.NewHealthHandler(version)

	app.Get("/health", healthHandler.Handle)
	app.Get("/metrics", metrics.MetricsHandler())

	api := app.Group("/api")
	api.Get("/health", healthHandler.Handle)

	api.Get("/applications", applicationHandler.List)
	api.Post("/applications", applicationHandler.Create)
	api.Get("/applications/:id", applicationHandler.Get)
	api.Put("/applications/:id", applicationHandler.Update)

	api.Post("/excel/get-columns", dataRequestHandler.GetColumns)
	api.Post("/applications/:id/data-requests", dataRequestHandler.Create)
	api.Get("/applications/:id/data-requests", dataRequestHandler.List)

	api.Post("/applications/:id/documents", documentHandler.Upload)
	api.Get("/applications/:id/documents", documentHandler.List)

	api.Post("/questions/analyze", questionHandler.Analyze)
	api.Post("/questions/analyses/save", questionHandler.Save)
	api.Get("/questions/analyses/:applicationId", questionHandler.ListAnalyses)

	api.Post("/connectors", connectorHandler.Create)
	api.Get("/connectors", connectorHandler.List)
	api.Delete("/connectors/:id", connectorHandler.Delete)

	api.Post("/agents/execute", agentHandler.Execute)
	api.Get("/agents/executions/:applicationId", agentHandler.Executions)

	api.Get("/applications/:id/report", reportHandler.Download)

	api.Post("/chat", chatHandler.HandleChat)
	api.Get("/chat/history/:sessionId", chatHandler.History)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/chat", websocket.New(wsHandler.HandleConnection))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/the-outlaw-004/medai-backend/internal/analyze"
	"github.com/the-outlaw-004/medai-backend/internal/client"
	"github.com/the-outlaw-004/medai-backend/internal/config"
	"github.com/the-outlaw-004/medai-backend/internal/extract"
	"github.com/the-outlaw-004/medai-backend/internal/handler"
	"github.com/the-outlaw-004/medai-backend/internal/middleware"
	"github.com/the-outlaw-004/medai-backend/internal/repository"
	"github.com/the-outlaw-004/medai-backend/internal/service"
	"github.com/the-outlaw-004/medai-backend/internal/worker"
	ws "github.com/the-outlaw-004/medai-backend/internal/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()

	// Initialize Redis client (rate limiting; asynq holds its own connection)
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	// Initialize Postgres pool
	pool, err := repository.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		log.Fatalf("Failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	// Initialize Asynq client (producer side)
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Repositories
	reportRepo := repository.NewReportRepository(pool)
	userRepo := repository.NewUserRepository(pool)
	refreshRepo := repository.NewRefreshTokenRepository(pool)

	// Pipeline stages. The analyzer is selected once here: mock when
	// configured (or when no API key is present), network-backed otherwise.
	extractor := extract.NewExtractor(cfg.OCR)
	var analyzer analyze.Analyzer
	aiClient := client.NewOpenAIClient(&cfg.AI)
	if cfg.AI.UseMock || !aiClient.IsConfigured() {
		log.Println("Info: AI mock mode enabled")
		analyzer = analyze.NewMockAnalyzer(time.Duration(cfg.AI.MockDelayMs) * time.Millisecond)
	} else {
		analyzer = analyze.NewAIAnalyzer(aiClient)
	}

	// Services
	reportService := service.NewReportService(reportRepo, asynqClient, cfg.Upload, cfg.Worker)
	authService := service.NewAuthService(userRepo, refreshRepo, cfg.JWT)

	// Handlers
	reportHandler := handler.NewReportHandler(reportService, cfg.Upload.MaxSize)
	authHandler := handler.NewAuthHandler(authService, validate)

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.AccessSecret)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    int(cfg.Upload.MaxSize) + 1024*1024,
	})

	// Global middleware
	app.Use(recover.New())
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${reqHeaders}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"ok":   true,
			"time": time.Now().UTC().Format(time.RFC3339),
		})
	})

	// Health checks
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"redis": redisClient.Ping(c.Context()).Err() == nil,
				"ai":    aiClient.IsConfigured() && !cfg.AI.UseMock,
			},
		})
	})
	app.Get("/health/db", func(c *fiber.Ctx) error {
		if err := pool.Ping(c.Context()); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "db error", "detail": err.Error(),
			})
		}
		return c.JSON(fiber.Map{"ok": true})
	})

	// Auth routes (public)
	authGroup := app.Group("/auth")
	authGroup.Post("/signup", authHandler.Signup)
	authGroup.Post("/login", authHandler.Login)
	authGroup.Post("/refresh", authHandler.Refresh)
	authGroup.Post("/logout", authHandler.Logout)

	// Report routes (protected)
	report := app.Group("/report", authMiddleware.Authenticate())
	report.Post("/upload", rateLimiter.UploadLimit(cfg.RateLimit.UploadPerHour), reportHandler.Upload)
	report.Get("/", reportHandler.List)
	report.Get("/:id", reportHandler.Get)
	report.Post("/:id/reprocess", reportHandler.Reprocess)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/reports/:id", websocket.New(func(c *websocket.Conn) {
		reportID := c.Params("id")
		hub.HandleConnection(c, reportID)
	}))

	// Start Asynq worker server
	go startWorkerServer(cfg, pool, extractor, analyzer, hub)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func startWorkerServer(
	cfg *config.Config,
	pool *pgxpool.Pool,
	extractor *extract.Extractor,
	analyzer analyze.Analyzer,
	hub *ws.Hub,
) {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: cfg.Worker.Concurrency,
			Queues: map[string]int{
				service.QueueReports: 10,
			},
			LogLevel: asynqLogLevel,
		},
	)

	reportWorker := worker.NewReportWorker(
		repository.NewReportRepository(pool),
		extractor,
		analyzer,
		hub,
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeReportProcess, reportWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}

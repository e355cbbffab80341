package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"tuitionflow/config"
	"tuitionflow/database"
	"tuitionflow/handlers"
	"tuitionflow/middleware"
	"tuitionflow/routes"
	"tuitionflow/services"
	"tuitionflow/services/websocket"
	"tuitionflow/storage"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"
)

const version = "1.0.0"

func main() {
	cfg := config.LoadConfig()
	setupLogging(cfg)

	ctx := context.Background()

	// State persistence
	backend, closeBackend, err := database.OpenStateBackend(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to open state backend")
	}
	defer closeBackend()

	store := services.NewStateStore(backend)
	if err := store.Load(ctx, cfg.SeedDemo); err != nil {
		logrus.WithError(err).Fatal("Failed to load state")
	}

	// Dashboards refetch whichever record changed
	wsHub := websocket.NewHub()
	go wsHub.Run()
	store.Subscribe(wsHub.StateChanged)

	var gen services.TextGenerator = services.UnavailableGenerator{}
	if g, err := services.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel); err != nil {
		logrus.WithError(err).Warn("Gemini disabled: drafting and commands will fail until GEMINI_API_KEY is set")
	} else {
		gen = g
	}

	sheets := services.NewSheetsClient(store, cfg.GoogleClientSecret, cfg.GoogleRedirectURL, cfg.SheetRange)

	line, err := services.NewLineMessagingService(cfg.LineChannelSecret, cfg.LineChannelToken)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to create LINE client")
	}

	dashboard := services.NewDashboard(store, gen, sheets, cfg.Timezone, services.WithLine(line))
	if _, err := dashboard.RefreshStatuses(ctx); err != nil {
		logrus.WithError(err).Error("Startup status refresh failed")
	}

	deps := routes.Dependencies{
		Config:    cfg,
		Dashboard: dashboard,
		Hub:       wsHub,
	}

	backup, err := services.NewBackupService(ctx, store, cfg.AWSRegion, cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, cfg.S3BucketName)
	switch {
	case errors.Is(err, services.ErrBackupDisabled):
		logrus.Info("S3 backups disabled: S3_BUCKET_NAME not set")
	case err != nil:
		logrus.WithError(err).Warn("S3 backups disabled")
	default:
		deps.Backup = backup
	}

	if cfg.S3BucketName != "" {
		archive, err := storage.NewStorageService(cfg.AWSRegion, cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, cfg.S3BucketName)
		if err != nil {
			logrus.WithError(err).Warn("Export archive disabled")
		} else {
			deps.Archive = archive
		}
	}

	if line.Enabled() {
		deps.Line = handlers.NewLineWebhookHandler(cfg.LineChannelSecret, dashboard, line)
		logrus.Info("LINE webhook enabled at /webhook/line")
	}

	deps.Health = services.NewHealthService("", version, cfg.AppEnv, backend, map[string]bool{
		"gemini": cfg.GeminiAPIKey != "",
		"sheets": cfg.GoogleClientSecret != "",
		"line":   line.Enabled(),
		"backup": deps.Backup != nil,
	})

	scheduler, err := services.NewScheduler(cfg.Timezone, dashboard, deps.Backup, cfg.StatusRefreshCron, cfg.BackupCron)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to configure scheduler")
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    int(cfg.MaxFileSize) + 1<<20,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(helmet.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,HEAD,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Custom middleware
	app.Use(middleware.LoggerMiddleware())
	app.Use(middleware.LogActivityMiddleware())

	routes.SetupRoutes(app, deps)

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":  "Route not found",
			"path":   c.Path(),
			"method": c.Method(),
		})
	})

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		logrus.Info("Shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logrus.WithError(err).Error("Server shutdown failed")
		}
	}()

	logrus.WithFields(logrus.Fields{
		"port":        cfg.Port,
		"version":     version,
		"environment": cfg.AppEnv,
		"backend":     backend.Name(),
	}).Info("TuitionFlow API starting")

	if err := app.Listen(":" + cfg.Port); err != nil {
		logrus.WithError(err).Error("Server stopped")
	}
}

// setupLogging configures the logging system
func setupLogging(cfg *config.Config) {
	logrus.SetFormatter(&logrus.JSONFormatter{})

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if !cfg.IsProduction() {
		logrus.SetOutput(os.Stdout)
		return
	}

	// In production, log to file
	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0755); err != nil {
		log.Printf("Warning: Could not create logs directory: %v", err)
		return
	}
	file, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err == nil {
		logrus.SetOutput(file)
	}
}

// customErrorHandler handles application errors
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	// Check if it's a Fiber error
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	}

	// Log the error
	logrus.WithFields(logrus.Fields{
		"error":  err.Error(),
		"path":   c.Path(),
		"method": c.Method(),
		"ip":     c.IP(),
		"status": code,
	}).Error("Request error")

	return c.Status(code).JSON(fiber.Map{
		"error":  message,
		"code":   code,
		"path":   c.Path(),
		"method": c.Method(),
	})
}

package routes

import (
	"tuitionflow/config"
	"tuitionflow/controllers"
	"tuitionflow/handlers"
	"tuitionflow/middleware"
	"tuitionflow/services"
	"tuitionflow/services/websocket"

	"github.com/gofiber/fiber/v2"
)

// Dependencies are the long-lived services the routes hand to controllers.
// Backup, Archive and Line are optional.
type Dependencies struct {
	Config    *config.Config
	Dashboard *services.Dashboard
	Hub       *websocket.Hub
	Health    *services.HealthService
	Backup    *services.BackupService
	Archive   controllers.ExportArchiver
	Line      *handlers.LineWebhookHandler
}

// SetupRoutes configures all application routes
func SetupRoutes(app *fiber.App, deps Dependencies) {
	cfg := deps.Config

	// Initialize controllers
	authController := controllers.NewAuthController(cfg.JWTSecret, cfg.JWTExpiresIn, cfg.OwnerPasswordHash, cfg.OwnerPassword)
	studentController := controllers.NewStudentController(deps.Dashboard, cfg.MaxFileSize)
	commandController := controllers.NewCommandController(deps.Dashboard)
	reminderController := controllers.NewReminderController(deps.Dashboard)
	transactionController := controllers.NewTransactionController(deps.Dashboard, deps.Archive)
	settingsController := controllers.NewSettingsController(deps.Dashboard)
	backupController := controllers.NewBackupController(deps.Backup)
	healthController := controllers.NewHealthController(deps.Health)
	wsController := controllers.NewWebSocketController(deps.Hub, cfg.JWTSecret)

	app.Get("/health", healthController.GetHealthStatus)

	// WebSocket: token is checked before the upgrade
	app.Get("/ws", wsController.RequireUpgrade, wsController.WebSocketHandler())

	// LINE webhook for parents linking their account
	if deps.Line != nil {
		app.Post("/webhook/line", deps.Line.Handle)
	}

	// API group
	api := app.Group("/api")

	// Authentication routes (no middleware)
	auth := api.Group("/auth")
	auth.Post("/login", authController.Login)
	auth.Get("/profile", middleware.JWTMiddleware(cfg.JWTSecret), authController.GetProfile)

	// Google redirects the browser here without our token
	api.Get("/settings/sheets/callback", settingsController.SheetsCallback)

	// Protected routes (require authentication)
	protected := api.Group("/", middleware.JWTMiddleware(cfg.JWTSecret))

	students := protected.Group("/students")
	students.Get("/", studentController.GetStudents)
	students.Post("/", studentController.CreateStudent)
	students.Post("/refresh", studentController.RefreshStatuses)
	students.Post("/import", studentController.ImportStudents)
	students.Get("/:id", studentController.GetStudent)
	students.Put("/:id", studentController.UpdateStudent)

	protected.Get("/stats", studentController.GetStats)
	protected.Post("/commands", commandController.RunCommand)

	reminders := protected.Group("/reminders")
	reminders.Get("/", reminderController.GetQueue)
	reminders.Post("/start", reminderController.StartBatch)
	reminders.Post("/draft/:id", reminderController.DraftForStudent)
	reminders.Post("/send", reminderController.Send)
	reminders.Post("/skip", reminderController.Skip)
	reminders.Post("/cancel", reminderController.Cancel)

	transactions := protected.Group("/transactions")
	transactions.Get("/", transactionController.GetTransactions)
	transactions.Get("/export.csv", transactionController.ExportCSV)
	transactions.Get("/export.xlsx", transactionController.ExportXLSX)
	transactions.Post("/export/archive", transactionController.ArchiveExport)
	transactions.Post("/:id/sync", transactionController.RetrySync)

	sheets := protected.Group("/settings/sheets")
	sheets.Get("/setup", settingsController.GetSheetsSetup)
	sheets.Put("/", settingsController.UpdateSheets)
	sheets.Get("/auth-url", settingsController.GetSheetsAuthURL)
	sheets.Post("/disconnect", settingsController.DisconnectSheets)

	protected.Post("/backups", backupController.CreateBackup)
	protected.Get("/ws/stats", wsController.GetWebSocketStats)
}

package routes

import (
	"log"
	"os"

	controller "reachloop/controllers"
	"reachloop/middleware"
	"reachloop/monitor"
	"reachloop/store"
	"reachloop/worker"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"gorm.io/gorm"
)

func SetupAuthRoutes(app *fiber.App, db *gorm.DB) {
	// Initialize logger
	authLogger := log.New(os.Stdout, "AUTH: ", log.Ldate|log.Ltime|log.Lshortfile)

	// Auth routes group with logging middleware
	auth := app.Group("/auth", logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Public auth endpoints (no authentication required)
	auth.Post("/register", controller.Register)
	auth.Post("/login", controller.Login)
	auth.Post("/refresh", controller.RefreshToken)

	// Protected auth endpoints (require valid JWT)
	protectedAuth := auth.Group("", middleware.Protected())
	protectedAuth.Post("/logout", controller.Logout)
	protectedAuth.Post("/change-password", controller.ChangePassword)
	protectedAuth.Get("/me", controller.GetCurrentUser)

	// Payment routes (protected)
	payment := app.Group("/payment", middleware.Protected())
	payment.Get("/packages", controller.ListCreditPackages)
	payment.Get("/balance", controller.GetCreditBalance)
	payment.Post("/create-intent", controller.CreatePaymentIntent)

	// Stripe calls this endpoint directly; it authenticates with the
	// webhook signature instead of a JWT
	app.Post("/payment/webhook", controller.HandlePaymentWebhook)

	// Log initialization
	authLogger.Println("Authentication routes initialized successfully")
}

func SetupAPIRoutes(app *fiber.App, db *gorm.DB, st *store.StepStore, scheduler *worker.SchedulerWorker) {
	// Initialize controllers with their respective loggers
	campaignController := controller.NewCampaignController(db, st, log.New(os.Stdout, "CAMPAIGN: ", log.LstdFlags))
	contactController := controller.NewContactController(db, log.New(os.Stdout, "CONTACT: ", log.LstdFlags))
	stepController := controller.NewStepController(db, st, scheduler, log.New(os.Stdout, "STEP: ", log.LstdFlags))

	monitorLogger := log.New(os.Stdout, "MONITOR: ", log.LstdFlags)
	monitorController := controller.NewMonitorController(db, monitor.NewEngine(st, monitorLogger), monitorLogger)
	dashboardController := controller.NewDashboardController(db, log.New(os.Stdout, "DASHBOARD: ", log.LstdFlags))

	// API group with versioning and protection
	api := app.Group("/api/v1", middleware.Protected(), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Sender account routes with rate limiting
	accounts := api.Group("/accounts", middleware.APIRateLimiter())
	accounts.Post("/", controller.CreateSenderAccount)
	accounts.Get("/", controller.GetSenderAccounts)
	accounts.Get("/:id", controller.GetSenderAccount)
	accounts.Put("/:id", controller.UpdateSenderAccount)
	accounts.Delete("/:id", controller.DeleteSenderAccount)
	accounts.Post("/:id/test", controller.TestSenderAccount)
	accounts.Get("/:id/warmup", controller.GetWarmupStatus)

	// Contact routes
	contacts := api.Group("/contacts")
	contacts.Post("/", contactController.CreateContact)
	contacts.Get("/", contactController.GetContacts)
	contacts.Post("/import", contactController.ImportContacts)
	contacts.Get("/export", contactController.ExportContacts)
	contacts.Get("/:id", contactController.GetContact)
	contacts.Put("/:id", contactController.UpdateContact)
	contacts.Delete("/:id", contactController.DeleteContact)
	contacts.Post("/:id/verify", contactController.VerifyContact)
	contacts.Post("/:id/do-not-contact", contactController.MarkDoNotContact)

	// Campaign routes
	campaigns := api.Group("/campaigns")
	campaigns.Post("/", campaignController.CreateCampaign)
	campaigns.Get("/", campaignController.GetCampaigns)
	campaigns.Get("/:id", campaignController.GetCampaign)
	campaigns.Put("/:id", campaignController.UpdateCampaign)
	campaigns.Delete("/:id", campaignController.DeleteCampaign)
	campaigns.Post("/:id/contacts", campaignController.AddContacts)
	campaigns.Post("/:id/accounts", campaignController.AddAccounts)
	campaigns.Post("/:id/schedule", campaignController.ScheduleCampaign)
	campaigns.Post("/:id/pause", campaignController.PauseCampaign)
	campaigns.Post("/:id/resume", campaignController.ResumeCampaign)
	campaigns.Get("/:id/progress", campaignController.GetCampaignProgress)

	// Step inspection and review
	campaigns.Get("/:id/steps", stepController.ListSteps)
	campaigns.Post("/:id/reset-failed", stepController.ResetFailedSteps)
	api.Post("/steps/:id/approve", stepController.ApproveStep)
	api.Post("/steps/:id/reject", stepController.RejectStep)

	// Health monitoring
	campaigns.Get("/:id/health", monitorController.GetCampaignHealth)
	campaigns.Get("/:id/insights", monitorController.GetCampaignInsights)
	campaigns.Get("/:id/failures", monitorController.GetFailureSummary)

	// Workspace dashboard aggregates
	dashboard := api.Group("/dashboard")
	dashboard.Get("/stats", dashboardController.GetDashboardStats)
	dashboard.Get("/volume", dashboardController.GetSendVolumeOverTime)
	dashboard.Get("/breakdown", dashboardController.GetStepStatusBreakdown)
	dashboard.Get("/recent-campaigns", dashboardController.GetRecentCampaigns)

	// Operator trigger for an immediate scheduler pass
	api.Post("/scheduler/run", stepController.TriggerReschedule)

	// WebSocket route for campaign progress
	app.Get("/api/v1/campaigns/progress", middleware.Protected(), websocket.New(campaignController.HandleCampaignProgressWS))

	// Public engagement endpoints; tracked recipients hit these without
	// credentials
	app.Get("/track/open/:messageID/:token", campaignController.HandleOpenTracking)
	app.Get("/track/click/:messageID/:token", campaignController.HandleClickTracking)
	app.Get("/unsubscribe/:messageID/:token", campaignController.HandleUnsubscribe)
	app.Post("/webhooks/engagement", campaignController.HandleEngagementWebhook)

	// Log initialization
	log.Println("API routes initialized successfully")
}

func SetupRoutes(app *fiber.App, db *gorm.DB, st *store.StepStore, scheduler *worker.SchedulerWorker) {
	// Initialize Stripe
	controller.InitStripe()

	// Setup health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Setup auth routes
	SetupAuthRoutes(app, db)

	// Setup API routes
	SetupAPIRoutes(app, db, st, scheduler)

	// Setup 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "The requested resource was not found",
		})
	})
}

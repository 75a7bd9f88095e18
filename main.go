package main

import (
	"context"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"reachloop/adapter"
	"reachloop/config"
	"reachloop/middleware"
	"reachloop/models"
	"reachloop/routes"
	"reachloop/store"
	"reachloop/warmup"
	"reachloop/worker"
)

func main() {
	// Initialize logger
	logger := log.New(os.Stdout, "REACHLOOP: ", log.Ldate|log.Ltime|log.Lshortfile)

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Error reporting
	if config.AppConfig.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.AppConfig.SentryDSN,
			Environment: config.AppConfig.Environment,
		}); err != nil {
			logger.Printf("Sentry initialization failed: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Create Fiber app
	app := fiber.New()

	// Add CORS middleware
	app.Use(middleware.CORS())

	st := store.NewStepStore(config.DB)

	// Execution adapters, one per channel. Both LinkedIn channels share a
	// bridge connection and both task channels share the task creator.
	linkedInAdapter := adapter.NewLinkedInAdapter(config.AppConfig.LinkedInBridgeURL, log.New(os.Stdout, "LINKEDIN: ", log.LstdFlags))
	taskAdapter := adapter.NewTaskAdapter(log.New(os.Stdout, "TASK: ", log.LstdFlags))
	adapters := map[models.Channel]adapter.ExecutionAdapter{
		models.ChannelEmail:              adapter.NewEmailAdapter(config.AppConfig.AppBaseURL, log.New(os.Stdout, "EMAIL: ", log.LstdFlags)),
		models.ChannelLinkedInConnection: linkedInAdapter,
		models.ChannelLinkedInMessage:    linkedInAdapter,
		models.ChannelSMS:                adapter.NewSMSAdapter(config.AppConfig.SMSGatewayURL, log.New(os.Stdout, "SMS: ", log.LstdFlags)),
		models.ChannelPhone:              taskAdapter,
		models.ChannelVoicemail:          taskAdapter,
	}

	limiter := warmup.NewLimiter(st, rand.New(rand.NewSource(time.Now().UnixNano())))

	// Initialize and start background workers
	schedulerWorker := worker.NewSchedulerWorker(st, limiter, adapters, &config.AppConfig, log.New(os.Stdout, "SCHEDULER: ", log.LstdFlags))
	replyWorker := worker.NewReplyWorker(st, &config.AppConfig, log.New(os.Stdout, "REPLY: ", log.LstdFlags))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go schedulerWorker.Start(ctx)
	go replyWorker.Start(ctx)

	// Setup routes
	routes.SetupRoutes(app, config.DB, st, schedulerWorker)

	// Health check endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "running",
			"version": "1.0.0",
		})
	})

	// Stop workers and drain connections on shutdown signals
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		logger.Println("Shutting down...")
		cancel()
		if err := app.Shutdown(); err != nil {
			logger.Printf("Server shutdown: %v", err)
		}
	}()

	// Start server
	logger.Printf("🚀 Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}

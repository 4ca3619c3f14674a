package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"

	"sellerdesk/config"
	"sellerdesk/middleware"
	"sellerdesk/routes"
	"sellerdesk/utils"
	"sellerdesk/worker"
)

func main() {
	// Initialize logger
	logger := log.New(os.Stdout, "SEQUENCE: ", log.Ldate|log.Ltime|log.Lshortfile)

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	if config.AppConfig.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.AppConfig.SentryDSN,
			Environment: config.AppConfig.Environment,
		}); err != nil {
			logger.Printf("Sentry init failed: %v", err)
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

	// Engine components
	slots := utils.NewSlotScheduler(utils.DefaultSendSlots, config.AppConfig.SlotOffsetHours)
	sequences := utils.NewSequenceStore(config.DB, slots)
	chats := utils.NewChatStore(config.DB)
	templates := utils.NewTemplateProvider(config.DB, logger)
	sender := utils.NewWBChatClient(config.AppConfig.ChatAPIBaseURL, config.AppConfig.SendTimeout)

	var lock worker.SweepLock = worker.NoopSweepLock{}
	if config.AppConfig.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     config.AppConfig.Redis.Address,
			Password: config.AppConfig.Redis.Password,
			DB:       config.AppConfig.Redis.DB,
		})
		lock = worker.NewRedisSweepLock(client, 10*time.Minute)
	}

	// Initialize and start sequence worker
	sequenceWorker := worker.NewSequenceWorker(config.DB, sequences, chats, sender, lock,
		log.New(os.Stdout, "SWEEP: ", log.LstdFlags),
		worker.Config{
			SweepInterval:  config.AppConfig.SweepInterval,
			SendInterval:   config.AppConfig.SendInterval,
			SendTimeout:    config.AppConfig.SendTimeout,
			BatchLimit:     config.AppConfig.SweepBatchLimit,
			FailureCeiling: config.AppConfig.FailureCeiling,
		})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sequenceWorker.Start(ctx)

	// Setup routes
	routes.SetupRoutes(app, config.DB, sequences, templates, sequenceWorker)

	// Health check endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "running",
			"version": "1.0.0",
		})
	})

	// Start server
	logger.Printf("🚀 Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}

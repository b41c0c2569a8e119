package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/kinnevo/fastinnovation-api/api"
	"github.com/kinnevo/fastinnovation-api/config"
	"github.com/kinnevo/fastinnovation-api/database"
	"github.com/kinnevo/fastinnovation-api/router"
	"github.com/kinnevo/fastinnovation-api/services"
	"github.com/kinnevo/fastinnovation-api/services/cron"
	"github.com/kinnevo/fastinnovation-api/services/filc"
	"github.com/kinnevo/fastinnovation-api/utils/cache"
)

func SetupAndRunServer() error {

	// Load ENV
	if err := config.LoadENV(); err != nil {
		log.Println("No .env file loaded:", err)
	}

	getEnv, err := config.Get()
	if err != nil {
		return err
	}

	// One shared store per process, connected through the manager.
	dbManager := database.NewManager(getEnv)
	store, err := dbManager.Get()
	if err != nil {
		print("Check whether the Postgres is running or not\n")
		return err
	}

	// Agent client
	agent := filc.NewClient(filc.Config{
		BaseURL: getEnv.FILC_API_URL,
		APIKey:  getEnv.FILC_API_KEY,
		RetryConfig: &filc.RetryConfig{
			MaxRetries:     getEnv.FILC_MAX_RETRIES,
			InitialBackoff: filc.DefaultRetryConfig().InitialBackoff,
			MaxBackoff:     filc.DefaultRetryConfig().MaxBackoff,
		},
		HistorySource: func(ctx context.Context, sessionID string, limit int) ([]filc.HistoryEntry, error) {
			rows, err := store.GetRecentMessages(ctx, sessionID, limit)
			if err != nil {
				return nil, err
			}
			entries := make([]filc.HistoryEntry, 0, len(rows))
			for _, row := range rows {
				entries = append(entries, filc.HistoryEntry{Role: row.Role, Content: row.Content})
			}
			return entries, nil
		},
	})

	// Redis session-list cache (optional)
	var redisCache *cache.RedisCache
	if getEnv.REDIS_URL != "" {
		redisCache, err = cache.NewRedisCache(getEnv.REDIS_URL)
		if err != nil {
			log.Printf("Warning: Failed to connect to Redis: %v. Session caching disabled.", err)
			redisCache = nil
		}
	}

	// Core services
	registry := services.NewStreamRegistry()
	messageRouter := services.NewMessageRouter(store, agent, registry)

	var analyzer *services.Analyzer
	if getEnv.OPENAI_API_KEY != "" {
		analyzer = services.NewAnalyzer(getEnv.OPENAI_API_KEY, getEnv.OPENAI_MODEL, store)
	}
	summaryService := services.NewSummaryService(store, agent, analyzer)

	var exporter *services.ReportExporter
	if getEnv.SPACES_BUCKET != "" {
		exporter, err = services.NewReportExporter(services.SpacesConfig{
			AccessKey: getEnv.SPACES_ACCESS_KEY,
			SecretKey: getEnv.SPACES_SECRET_KEY,
			Bucket:    getEnv.SPACES_BUCKET,
			Region:    getEnv.SPACES_REGION,
			Endpoint:  getEnv.SPACES_ENDPOINT,
		}, store)
		if err != nil {
			log.Printf("Warning: Failed to configure report exports: %v", err)
			exporter = nil
		}
	}

	// Cron jobs (enabled unless CRON_ENABLED=false)
	var cronManager *cron.CronManager
	if os.Getenv("CRON_ENABLED") != "false" {
		cronManager = cron.NewCronManager(store, agent, summaryService, getEnv)
		if err := cronManager.Start(); err != nil {
			log.Printf("Warning: Failed to start cron jobs: %v", err)
		}
	}

	defer func() {
		if cronManager != nil {
			cronManager.Stop()
		}
		registry.CancelAll()
		if redisCache != nil {
			redisCache.Close()
		}
		dbManager.Reset()
	}()

	// Init API
	server := api.NewAPIServer(fmt.Sprintf(":%d", getEnv.PORT))
	app := server.GetEngine()

	// Attach Middleware
	app.Use(logger.New())
	app.Use(recover.New())

	// Setup Routes
	router.SetupRoutes(app, router.Dependencies{
		Env:           getEnv,
		Store:         store,
		Agent:         agent,
		MessageRouter: messageRouter,
		Summary:       summaryService,
		Exporter:      exporter,
		Cache:         redisCache,
	})

	// Shut down cleanly on SIGINT/SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-stop
		log.Println("Shutdown signal received, draining requests...")
		if err := server.Shutdown(); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	return server.Run()
}

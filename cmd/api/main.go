package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pawel/toolgate/internal/api"
	"github.com/pawel/toolgate/internal/cache"
	"github.com/pawel/toolgate/internal/chat"
	"github.com/pawel/toolgate/internal/config"
	"github.com/pawel/toolgate/internal/job"
	"github.com/pawel/toolgate/internal/logger"
	"github.com/pawel/toolgate/internal/queue"
	"github.com/pawel/toolgate/internal/secrets"
	"github.com/pawel/toolgate/internal/shortener"
	"github.com/pawel/toolgate/internal/store"
	"github.com/pawel/toolgate/internal/worklog"
)

func main() {
	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	appLogger := logger.NewFromEnv("toolgate-api")
	logger.SetDefault(appLogger)

	// Initialize store
	st, err := store.New(&cfg.Store)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize store")
	}

	// Initialize work queue and its dead-letter queue
	workQueue, deadQueue, err := queue.New(&cfg.Queue)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize queue")
	}

	// Initialize secrets provider
	secretProvider, err := secrets.New(&cfg.Secrets)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize secrets provider")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Resolve the chat upstream API key once at startup
	chatAPIKey, err := secretProvider.Get(ctx, cfg.Chat.APIKeySecret)
	if err != nil {
		appLogger.WithError(err).Warn("Chat API key not available, chat proxy will reject requests")
	}

	// Initialize services
	statusCache := cache.New(&cfg.Cache)
	worklogClient := worklog.NewClient(&cfg.Jira)
	admission := job.NewAdmission(st, workQueue, &cfg.Jira, &cfg.Jobs)
	statusReader := job.NewStatusReader(st, statusCache, cfg.Cache.TTL)
	chatService := chat.NewService(&cfg.Chat, chatAPIKey)
	shortenerService := shortener.NewService(st, &cfg.Shortener)

	// With the in-memory queue the processor must live in this process,
	// otherwise nothing would ever drain it.
	if cfg.Queue.Driver == "" || cfg.Queue.Driver == "memory" {
		processor := job.NewProcessor(st, worklogClient, cfg.Jobs.ItemDelay)
		reconciler := job.NewReconciler(st)
		sweeper := job.NewSweeper(st, cfg.Jobs.Staleness, cfg.Jobs.SweepInterval)

		go func() {
			if err := workQueue.Consume(ctx, processor.HandleBatch); err != nil && ctx.Err() == nil {
				appLogger.WithError(err).Error("Work queue consumer stopped")
			}
		}()
		go func() {
			if err := deadQueue.Consume(ctx, reconciler.HandleBatch); err != nil && ctx.Err() == nil {
				appLogger.WithError(err).Error("Dead-letter consumer stopped")
			}
		}()
		go sweeper.Run(ctx)

		appLogger.Info("In-process worker started (memory queue driver)")
	}

	// Setup router
	router := api.SetupRouter(admission, statusReader, worklogClient, chatService, shortenerService, cfg)

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")
	stop()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Fatal("Server forced to shutdown")
	}

	appLogger.Info("Server exited")
}

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/pawel/toolgate/internal/config"
	"github.com/pawel/toolgate/internal/job"
	"github.com/pawel/toolgate/internal/logger"
	"github.com/pawel/toolgate/internal/queue"
	"github.com/pawel/toolgate/internal/store"
	"github.com/pawel/toolgate/internal/worklog"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger := logger.NewFromEnv("toolgate-worker")
	logger.SetDefault(appLogger)

	st, err := store.New(&cfg.Store)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize store")
	}

	workQueue, deadQueue, err := queue.New(&cfg.Queue)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize queue")
	}

	worklogClient := worklog.NewClient(&cfg.Jira)
	processor := job.NewProcessor(st, worklogClient, cfg.Jobs.ItemDelay)
	reconciler := job.NewReconciler(st)
	sweeper := job.NewSweeper(st, cfg.Jobs.Staleness, cfg.Jobs.SweepInterval)

	ctx, stop := context.WithCancel(context.Background())

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		appLogger.Info("Work item processor started")
		if err := workQueue.Consume(ctx, processor.HandleBatch); err != nil && ctx.Err() == nil {
			appLogger.WithError(err).Error("Work queue consumer stopped")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		appLogger.Info("Dead-letter reconciler started")
		if err := deadQueue.Consume(ctx, reconciler.HandleBatch); err != nil && ctx.Err() == nil {
			appLogger.WithError(err).Error("Dead-letter consumer stopped")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Run(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down worker...")
	stop()
	wg.Wait()
	appLogger.Info("Worker exited")
}

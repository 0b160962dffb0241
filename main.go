package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"gexpipe/api"
	"gexpipe/audit"
	"gexpipe/cache"
	"gexpipe/compactor"
	"gexpipe/config"
	"gexpipe/db"
	"gexpipe/fetcher"
	"gexpipe/ingest"
	"gexpipe/logger"
	"gexpipe/market"
	"gexpipe/notify"
	"gexpipe/queue"
	"gexpipe/scheduler"
	"gexpipe/summary"
	"gexpipe/utils"
)

func main() {
	log := logger.GetLogger()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.GetConfig()

	database := db.GetTimescaleDB()
	defer database.Close()

	if err := database.InitSchema(ctx); err != nil {
		log.Fatal("Failed to initialize schema", map[string]interface{}{
			"error": err.Error(),
		})
	}

	asynqQueue := queue.InitAsynqQueue(&cfg.Asynq)
	defer asynqQueue.Close()

	var expiryCache fetcher.ExpiryCache
	if redisCache, err := cache.GetRedisCache(); err != nil {
		log.Warn("Redis cache unavailable, expiry caching disabled", map[string]interface{}{
			"error": err.Error(),
		})
	} else {
		expiryCache = redisCache
	}

	cal := market.NewCalendar(cfg.Holidays)
	fetch := fetcher.NewFetcher(&cfg.Dhan, asynqQueue, expiryCache, cfg.Pipeline.GetFetchPause())
	ingestor := ingest.NewIngestor(database, asynqQueue, cfg.Pipeline.StrikeWindow)
	aggregator := summary.NewAggregator(database)
	notifier := notify.NewTelegramNotifier(&cfg.Telegram)
	comp := compactor.NewCompactor(database, notifier, cfg.Pipeline.BucketMinutes)
	auditor := audit.NewAuditor(database, fetch, fetch, cal, cfg.Pipeline.BucketMinutes)

	asynqQueue.HandleFunc(queue.TypeIngestSnapshot, ingestor.HandleTask)
	asynqQueue.HandleFunc(queue.TypeComputeSummary, aggregator.HandleTask)

	go func() {
		if err := asynqQueue.Start(); err != nil {
			log.Fatal("Worker server failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	scheduler.InitializeFetchPolling(fetch, cal, cfg.Pipeline.GetFetchInterval())
	scheduler.InitializeHistoricalCompaction(comp, cal, cfg.Pipeline.GetCompactionInterval())
	scheduler.InitializeClosingAudit(auditor, cfg.Pipeline.GetAuditInterval())

	sched := scheduler.GetScheduler()
	sched.Start(ctx)

	apiServer := api.NewServer(database, cfg.APIPort)
	go func() {
		if err := apiServer.Start(ctx); err != nil {
			log.Error("API server stopped", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	log.Info("Received shutdown signal", map[string]interface{}{
		"signal": sig.String(),
	})

	cancel()
	sched.Stop()
	log.Info("Shutdown complete", map[string]interface{}{
		"time": utils.NowIST().Format("15:04:05"),
	})
}

/**
 * PhotoTranslate Worker - Main Entry Point
 *
 * Go worker for camera-photo translation.
 *
 * Architecture:
 * - Asynq consumer for the Redis-backed job queue
 * - Mode arbiter choosing cloud or on-device engines per photo
 * - Cloud OCR with on-device Tesseract fallback (and the reverse offline)
 * - Geometry correction and overlay layout for the client's display
 * - PostgreSQL persistence for job rows and results
 * - Redis pub/sub for job, mode and language pack events
 */

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adverant/nexus/phototranslate-worker/internal/app"
	"github.com/adverant/nexus/phototranslate-worker/internal/config"
	"github.com/adverant/nexus/phototranslate-worker/internal/logging"
	"github.com/adverant/nexus/phototranslate-worker/internal/queue"
	"github.com/joho/godotenv"
)

const shutdownTimeout = 30 * time.Second

func main() {
	envErr := godotenv.Load(".env.phototranslate")

	cfg, err := config.Load("")
	if err != nil {
		bootstrapFatal("Failed to load configuration", err)
	}

	if _, err := logging.Setup(cfg.Env); err != nil {
		bootstrapFatal("Failed to initialize logging", err)
	}
	defer logging.Sync()
	log := logging.NewLogger("worker")

	if envErr != nil {
		log.Warn(".env.phototranslate not found, using system environment variables")
	}

	log.Info("PhotoTranslate Worker starting",
		"env", cfg.Env,
		"registryStore", cfg.RegistryStore,
		"queue", cfg.QueueName,
		"workers", cfg.WorkerConcurrency,
		"cloud", cfg.CloudEnabled())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	core, err := app.Build(ctx, cfg, app.Options{Events: true})
	if err != nil {
		log.Error("Failed to initialize translation core", "error", err)
		os.Exit(1)
	}
	defer core.Close()

	core.Run(ctx)

	consumer, err := queue.NewConsumer(&queue.ConsumerConfig{
		RedisURL:          cfg.RedisURL,
		QueueName:         cfg.QueueName,
		Concurrency:       cfg.WorkerConcurrency,
		Processor:         core.Processor,
		Packs:             core.Registry,
		ProcessingTimeout: cfg.ProcessingTimeout,
		Logger:            logging.NewLogger("queue"),
	})
	if err != nil {
		log.Error("Failed to initialize queue consumer", "error", err)
		os.Exit(1)
	}
	if err := consumer.Start(ctx); err != nil {
		log.Error("Failed to start queue consumer", "error", err)
		os.Exit(1)
	}

	st := core.Arbiter.State()
	log.Info("PhotoTranslate Worker is READY",
		"preference", st.Preference,
		"online", st.IsOnline,
		"mode", st.Resolved,
		"installed", core.Registry.InstalledSet(),
		"timeout", cfg.ProcessingTimeout.String())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	log.Info("Received signal, initiating graceful shutdown", "signal", sig.String())

	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()
	if err := consumer.Stop(stopCtx); err != nil {
		log.Error("Error stopping queue consumer", "error", err)
	}
	cancel()

	if stats, err := core.Storage.GetStats(stopCtx); err == nil {
		log.Info("Storage statistics", "stats", stats)
	}
	if core.Events != nil {
		if stats, err := core.Events.GetStats(stopCtx); err == nil {
			log.Info("Job statistics", "stats", stats)
		}
	}

	log.Info("Shutdown complete")
}

// bootstrapFatal reports errors that happen before logging is configured.
func bootstrapFatal(msg string, err error) {
	l, _ := logging.Setup("development")
	if l != nil {
		l.Sugar().Fatalw(msg, "error", err)
	}
	os.Exit(1)
}

/**
 * Queue Consumer for the PhotoTranslate Worker
 *
 * Consumes translate-photo and install-language tasks through asynq.
 * Every task runs under a processing timeout; job status is recorded
 * before and after each task.
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/adverant/nexus/phototranslate-worker/internal/errors"
	"github.com/adverant/nexus/phototranslate-worker/internal/langid"
	"github.com/adverant/nexus/phototranslate-worker/internal/logging"
	"github.com/adverant/nexus/phototranslate-worker/internal/processor"
	"github.com/hibiken/asynq"
)

const (
	defaultProcessingTimeout = 5 * time.Minute
	maxRetryDelay            = 60 * time.Second
)

// PackInstaller installs a language pack
type PackInstaller interface {
	Install(ctx context.Context, id langid.ID) error
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	Processor         processor.PhotoProcessorInterface
	Packs             PackInstaller
	ProcessingTimeout time.Duration
	Logger            *logging.Logger
}

// Consumer handles task consumption from the Redis queue
type Consumer struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	handlers *Handlers
	config   *ConsumerConfig
	logger   *logging.Logger
}

// NewConsumer creates a new queue consumer
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}
	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}
	if cfg.Packs == nil {
		return nil, fmt.Errorf("Packs is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("queue")
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10,
				"default":     1,
			},
			RetryDelayFunc: RetryDelay,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				logger.Warn("Task processing error",
					"type", task.Type(),
					"retry", retried,
					"error", err)
			}),
			Logger: asynqLogger{l: logger},
		},
	)

	handlers := NewHandlers(cfg.Processor, cfg.Packs, cfg.ProcessingTimeout, logger)
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeTranslatePhoto, handlers.HandleTranslatePhoto)
	mux.HandleFunc(TypeInstallLanguage, handlers.HandleInstallLanguage)

	return &Consumer{
		server:   server,
		mux:      mux,
		handlers: handlers,
		config:   cfg,
		logger:   logger,
	}, nil
}

// RetryDelay backs off exponentially from 5s, capped at one minute.
func RetryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	if n > 4 {
		return maxRetryDelay
	}
	delay := time.Duration(5*(1<<uint(n))) * time.Second
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay
}

// Start starts the queue consumer
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("Starting queue consumer",
		"concurrency", c.config.Concurrency,
		"queue", c.config.QueueName)
	return c.server.Start(c.mux)
}

// Stop stops the queue consumer gracefully
func (c *Consumer) Stop(ctx context.Context) error {
	c.logger.Info("Stopping queue consumer")
	c.server.Shutdown()
	c.logger.Info("Queue consumer stopped")
	return nil
}

// GetStatistics returns consumer statistics
func (c *Consumer) GetStatistics() map[string]interface{} {
	return map[string]interface{}{
		"concurrency": c.config.Concurrency,
		"queue":       c.config.QueueName,
		"timeout":     c.handlers.timeout.String(),
	}
}

// Handlers runs queue tasks against the processor and the pack registry
type Handlers struct {
	processor processor.PhotoProcessorInterface
	packs     PackInstaller
	timeout   time.Duration
	logger    *logging.Logger
}

// NewHandlers creates task handlers. A zero timeout means five minutes.
func NewHandlers(p processor.PhotoProcessorInterface, packs PackInstaller, timeout time.Duration, logger *logging.Logger) *Handlers {
	if timeout <= 0 {
		timeout = defaultProcessingTimeout
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handlers{processor: p, packs: packs, timeout: timeout, logger: logger}
}

// HandleTranslatePhoto processes one translate-photo task
func (h *Handlers) HandleTranslatePhoto(ctx context.Context, task *asynq.Task) error {
	startTime := time.Now()

	var payload PhotoTaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal photo task: %v: %w", err, asynq.SkipRetry)
	}
	if payload.JobID == "" {
		if id, ok := asynq.GetTaskID(ctx); ok {
			payload.JobID = id
		}
	}
	log := h.logger.With("jobId", payload.JobID)

	log.Info("Processing photo",
		"source", payload.SourceLanguage,
		"target", payload.TargetLanguage,
		"bytes", len(payload.Image),
		"hasURL", payload.ImageURL != "")

	if err := h.processor.UpdateJobStatus(ctx, payload.JobID, processor.StatusProcessing, nil, map[string]interface{}{
		"sourceLanguage": payload.SourceLanguage,
		"targetLanguage": payload.TargetLanguage,
	}); err != nil {
		log.Warn("Failed to update status to processing", "error", err)
	}

	processCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	result, err := h.processor.Process(processCtx, payload.Request())
	duration := time.Since(startTime)

	if err != nil {
		if processCtx.Err() == context.DeadlineExceeded {
			log.Error("Processing timed out", "duration", duration.String(), "timeout", h.timeout.String())

			timeoutErr := errors.NewProcessingTimeoutError(payload.JobID, h.timeout, err)
			if updateErr := h.processor.UpdateJobStatus(ctx, payload.JobID, processor.StatusFailed, nil, timeoutErr.ToMap()); updateErr != nil {
				log.Warn("Failed to update status to failed", "error", updateErr)
			}
			return fmt.Errorf("processing timeout: %w", timeoutErr)
		}

		// Busy means another photo holds the pipeline; let asynq redeliver
		// without recording a failure.
		if errors.IsCode(err, errors.ErrorPipelineBusy) {
			log.Debug("Pipeline busy, task will be redelivered")
			return err
		}

		log.Error("Processing failed", "duration", duration.String(), "error", err)

		details := map[string]interface{}{"error": err.Error()}
		if ce, ok := errors.As(err); ok {
			details = ce.ToMap()
		}
		details["processingTime"] = duration.Milliseconds()
		if updateErr := h.processor.UpdateJobStatus(ctx, payload.JobID, processor.StatusFailed, nil, details); updateErr != nil {
			log.Warn("Failed to update status to failed", "error", updateErr)
		}

		if !retryable(err) {
			return fmt.Errorf("photo processing failed: %v: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("photo processing failed: %w", err)
	}

	log.Info("Processing completed",
		"duration", duration.String(),
		"mode", result.Mode,
		"ocrEngine", result.OCREngine,
		"boxes", len(result.Boxes),
		"degraded", result.Degraded)

	if err := h.processor.UpdateJobStatus(ctx, payload.JobID, processor.StatusCompleted, result, nil); err != nil {
		log.Warn("Failed to update status to completed", "error", err)
	}
	return nil
}

// HandleInstallLanguage installs one language pack
func (h *Handlers) HandleInstallLanguage(ctx context.Context, task *asynq.Task) error {
	var payload LanguageTaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal language task: %v: %w", err, asynq.SkipRetry)
	}

	id, err := langid.Canonicalize(payload.Language)
	if err != nil {
		return fmt.Errorf("invalid language %q: %v: %w", payload.Language, err, asynq.SkipRetry)
	}

	installCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	if err := h.packs.Install(installCtx, id); err != nil {
		if installCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("install timeout: %w", errors.NewProcessingTimeoutError(payload.JobID, h.timeout, err))
		}
		h.logger.Error("Language install failed", "language", id, "error", err)
		return err
	}

	h.logger.Info("Language installed", "language", id)
	return nil
}

// retryable reports whether running the same task again could succeed.
func retryable(err error) bool {
	ce, ok := errors.As(err)
	if !ok {
		return true
	}
	switch ce.Code {
	case errors.ErrorInvalidRequest, errors.ErrorCapabilityDenied:
		return false
	case errors.ErrorOCRFailed:
		// the same image decodes and reads the same way every time
		return ce.OCR != errors.OCRNoText && ce.OCR != errors.OCRDecode
	}
	return true
}

// asynqLogger routes asynq's internal logging through the component logger
type asynqLogger struct {
	l *logging.Logger
}

func (a asynqLogger) Debug(args ...interface{}) { a.l.Debug(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...interface{})  { a.l.Info(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...interface{})  { a.l.Warn(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...interface{}) { a.l.Error(fmt.Sprint(args...)) }

func (a asynqLogger) Fatal(args ...interface{}) {
	a.l.Error(fmt.Sprint(args...))
	logging.Sync()
	os.Exit(1)
}

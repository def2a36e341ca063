package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const defaultMaxRetry = 3

// Enqueuer submits tasks for the worker
type Enqueuer struct {
	client  *asynq.Client
	queue   string
	timeout time.Duration
}

// NewEnqueuer connects an asynq client to redisURL. Tasks go to queueName
// and carry timeout as their asynq deadline.
func NewEnqueuer(redisURL, queueName string, timeout time.Duration) (*Enqueuer, error) {
	if queueName == "" {
		return nil, fmt.Errorf("queueName is required")
	}
	redisOpt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if timeout <= 0 {
		timeout = defaultProcessingTimeout
	}
	return &Enqueuer{client: asynq.NewClient(redisOpt), queue: queueName, timeout: timeout}, nil
}

// EnqueuePhoto submits a translate-photo task and returns its job id. A
// payload without a job id gets a fresh one.
func (e *Enqueuer) EnqueuePhoto(ctx context.Context, payload *PhotoTaskPayload) (string, error) {
	if payload.JobID == "" {
		payload.JobID = uuid.New().String()
	}
	task, err := NewPhotoTask(payload)
	if err != nil {
		return "", err
	}
	if _, err := e.client.EnqueueContext(ctx, task, e.options(payload.JobID)...); err != nil {
		return "", fmt.Errorf("failed to enqueue photo %s: %w", payload.JobID, err)
	}
	return payload.JobID, nil
}

// EnqueueInstall submits an install-language task.
func (e *Enqueuer) EnqueueInstall(ctx context.Context, language string) (string, error) {
	payload := &LanguageTaskPayload{JobID: uuid.New().String(), Language: language}
	task, err := NewLanguageTask(payload)
	if err != nil {
		return "", err
	}
	if _, err := e.client.EnqueueContext(ctx, task, e.options(payload.JobID)...); err != nil {
		return "", fmt.Errorf("failed to enqueue install of %s: %w", language, err)
	}
	return payload.JobID, nil
}

func (e *Enqueuer) options(jobID string) []asynq.Option {
	return []asynq.Option{
		asynq.Queue(e.queue),
		asynq.TaskID(jobID),
		asynq.MaxRetry(defaultMaxRetry),
		asynq.Timeout(e.timeout),
	}
}

// Close releases the client connection
func (e *Enqueuer) Close() error {
	return e.client.Close()
}

// NewPhotoTask builds a translate-photo task.
func NewPhotoTask(payload *PhotoTaskPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal photo task: %w", err)
	}
	return asynq.NewTask(TypeTranslatePhoto, data), nil
}

// NewLanguageTask builds an install-language task.
func NewLanguageTask(payload *LanguageTaskPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal language task: %w", err)
	}
	return asynq.NewTask(TypeInstallLanguage, data), nil
}

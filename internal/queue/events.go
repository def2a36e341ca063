/**
 * Redis job tracking and event stream for the PhotoTranslate Worker
 *
 * Mirrors job progress into Redis for dashboards and WebSocket relays:
 *   <queue>:processing|completed|failed  sets of job ids
 *   <queue>:results / <queue>:errors     hashes of JSON bodies
 *   <queue>:events                       pub/sub channel
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/adverant/nexus/phototranslate-worker/internal/logging"
	"github.com/adverant/nexus/phototranslate-worker/internal/mode"
	"github.com/adverant/nexus/phototranslate-worker/internal/packs"
	"github.com/adverant/nexus/phototranslate-worker/internal/processor"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
)

const observerPublishTimeout = 2 * time.Second

// RedisCommands is the subset of *redis.Client the publisher needs
type RedisCommands interface {
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SCard(ctx context.Context, key string) *redis.IntCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// EventPublisher records job status in Redis and streams events
type EventPublisher struct {
	client RedisCommands
	queue  string
	logger *logging.Logger
	now    func() time.Time
}

// NewEventPublisher creates a publisher keyed under queue
func NewEventPublisher(client RedisCommands, queue string, logger *logging.Logger) *EventPublisher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &EventPublisher{client: client, queue: queue, logger: logger, now: time.Now}
}

func (p *EventPublisher) key(suffix string) string {
	return fmt.Sprintf("%s:%s", p.queue, suffix)
}

// Channel is the pub/sub channel events are published on.
func (p *EventPublisher) Channel() string { return p.key("events") }

// PublishJobStatus moves jobID between the status sets, stores the payload
// for terminal states, and publishes a job:<status> event.
func (p *EventPublisher) PublishJobStatus(ctx context.Context, jobID string, status string, payload interface{}) error {
	var err error

	switch status {
	case processor.StatusProcessing:
		err = multierr.Append(err, p.client.SAdd(ctx, p.key("processing"), jobID).Err())
	case processor.StatusCompleted, processor.StatusFailed:
		err = multierr.Append(err, p.client.SRem(ctx, p.key("processing"), jobID).Err())
		err = multierr.Append(err, p.client.SAdd(ctx, p.key(status), jobID).Err())
		if payload != nil {
			hash := "results"
			if status == processor.StatusFailed {
				hash = "errors"
			}
			data, mErr := json.Marshal(payload)
			if mErr != nil {
				err = multierr.Append(err, fmt.Errorf("failed to marshal %s payload: %w", status, mErr))
			} else {
				err = multierr.Append(err, p.client.HSet(ctx, p.key(hash), jobID, data).Err())
			}
		}
	default:
		return fmt.Errorf("unknown job status %q", status)
	}

	err = multierr.Append(err, p.publish(ctx, map[string]interface{}{
		"event": "job:" + status,
		"jobId": jobID,
	}))
	return err
}

func (p *EventPublisher) publish(ctx context.Context, event map[string]interface{}) error {
	event["timestamp"] = p.now().UTC().Format(time.RFC3339)
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return p.client.Publish(ctx, p.Channel(), data).Err()
}

// ModeObserver publishes a mode:changed event for every arbiter state change.
func (p *EventPublisher) ModeObserver() mode.Observer {
	return func(st mode.State) {
		ctx, cancel := context.WithTimeout(context.Background(), observerPublishTimeout)
		defer cancel()
		if err := p.publish(ctx, map[string]interface{}{
			"event":      "mode:changed",
			"preference": st.Preference,
			"isOnline":   st.IsOnline,
			"resolved":   st.Resolved,
		}); err != nil {
			p.logger.Warn("Failed to publish mode change", "error", err)
		}
	}
}

// PacksObserver publishes a packs:changed event for every registry commit.
func (p *EventPublisher) PacksObserver() func(packs.ChangeEvent) {
	return func(ev packs.ChangeEvent) {
		ctx, cancel := context.WithTimeout(context.Background(), observerPublishTimeout)
		defer cancel()
		if err := p.publish(ctx, map[string]interface{}{
			"event":     "packs:changed",
			"kind":      ev.Kind,
			"language":  ev.Language,
			"installed": ev.Installed,
		}); err != nil {
			p.logger.Warn("Failed to publish pack change", "error", err)
		}
	}
}

// GetStats returns the size of each status set
func (p *EventPublisher) GetStats(ctx context.Context) (map[string]int64, error) {
	stats := make(map[string]int64, 3)
	var err error
	for _, status := range []string{processor.StatusProcessing, processor.StatusCompleted, processor.StatusFailed} {
		n, cErr := p.client.SCard(ctx, p.key(status)).Result()
		if cErr != nil {
			err = multierr.Append(err, cErr)
			continue
		}
		stats[status] = n
	}
	return stats, err
}

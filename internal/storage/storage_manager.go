/**
 * Storage Manager for the PhotoTranslate Worker
 *
 * Coordinates the relational store (jobs, results) with the key/value store
 * the language pack registry persists into. The registry store is selected
 * by configuration: redis, postgres or memory.
 */

package storage

import (
	"context"
	"fmt"
	"regexp"

	"github.com/adverant/nexus/phototranslate-worker/internal/packs"
	"github.com/redis/go-redis/v9"
)

// Registry store backends.
const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Options selects and addresses the backends.
type Options struct {
	DatabaseURL   string
	RedisURL      string
	RegistryStore string
	KeyPrefix     string
}

// StorageManager owns the database and Redis connections of the worker.
type StorageManager struct {
	postgres *PostgresClient
	redis    *redis.Client
	registry packs.Store
}

// NewStorageManager connects the backends named by opts. Each backend is
// optional unless it backs the registry; an empty DatabaseURL leaves job
// persistence disabled.
func NewStorageManager(ctx context.Context, opts Options) (*StorageManager, error) {
	sm := &StorageManager{}

	if opts.DatabaseURL != "" {
		pg, err := NewPostgresClient(opts.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL client: %w", err)
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		sm.postgres = pg
	}

	if opts.RedisURL != "" {
		redisOpt, err := redis.ParseURL(opts.RedisURL)
		if err != nil {
			sm.Close()
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		client := redis.NewClient(redisOpt)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			sm.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		sm.redis = client
	}

	switch opts.RegistryStore {
	case BackendRedis:
		if sm.redis == nil {
			sm.Close()
			return nil, fmt.Errorf("registry store %q needs a Redis URL", opts.RegistryStore)
		}
		sm.registry = NewRedisStore(sm.redis, opts.KeyPrefix)
	case BackendPostgres:
		if sm.postgres == nil {
			sm.Close()
			return nil, fmt.Errorf("registry store %q needs a database URL", opts.RegistryStore)
		}
		sm.registry = sm.postgres
	case BackendMemory, "":
		sm.registry = packs.NewMemoryStore()
	default:
		sm.Close()
		return nil, fmt.Errorf("unknown registry store %q", opts.RegistryStore)
	}

	return sm, nil
}

// RegistryStore returns the key/value store chosen for the registry.
func (sm *StorageManager) RegistryStore() packs.Store {
	return sm.registry
}

// Redis returns the shared Redis client, or nil when none is configured.
func (sm *StorageManager) Redis() *redis.Client {
	return sm.redis
}

// Postgres returns the relational client, or nil when none is configured.
func (sm *StorageManager) Postgres() *PostgresClient {
	return sm.postgres
}

// UpdateJobStatus updates job status in PostgreSQL. Without a database the
// update is dropped.
func (sm *StorageManager) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	if sm.postgres == nil {
		return validateUpdate(update)
	}
	return sm.postgres.UpdateJobStatus(ctx, update)
}

// StoreResult persists the result of a finished job.
func (sm *StorageManager) StoreResult(ctx context.Context, result *JobResult) error {
	if sm.postgres == nil {
		return nil
	}
	return sm.postgres.StoreResult(ctx, result)
}

// GetJobByID retrieves job by ID
func (sm *StorageManager) GetJobByID(ctx context.Context, jobID string) (map[string]interface{}, error) {
	if sm.postgres == nil {
		return nil, fmt.Errorf("job persistence is not configured")
	}
	return sm.postgres.GetJobByID(ctx, jobID)
}

// GetStats returns connection statistics of the configured backends.
func (sm *StorageManager) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := map[string]interface{}{}

	if sm.postgres != nil {
		pgStats := sm.postgres.GetStats()
		stats["postgres"] = map[string]interface{}{
			"max_open_connections": pgStats.MaxOpenConnections,
			"open_connections":     pgStats.OpenConnections,
			"in_use":               pgStats.InUse,
			"idle":                 pgStats.Idle,
			"wait_count":           pgStats.WaitCount,
			"wait_duration":        pgStats.WaitDuration.String(),
		}
	}

	if sm.redis != nil {
		if err := sm.redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to reach Redis: %w", err)
		}
		poolStats := sm.redis.PoolStats()
		stats["redis"] = map[string]interface{}{
			"hits":        poolStats.Hits,
			"misses":      poolStats.Misses,
			"timeouts":    poolStats.Timeouts,
			"total_conns": poolStats.TotalConns,
			"idle_conns":  poolStats.IdleConns,
		}
	}

	return stats, nil
}

// Close closes all connections
func (sm *StorageManager) Close() error {
	var pgErr, redisErr error

	if sm.postgres != nil {
		pgErr = sm.postgres.Close()
	}

	if sm.redis != nil {
		redisErr = sm.redis.Close()
	}

	if pgErr != nil {
		return fmt.Errorf("failed to close PostgreSQL: %w", pgErr)
	}

	if redisErr != nil {
		return fmt.Errorf("failed to close Redis: %w", redisErr)
	}

	return nil
}

var (
	nullEscape    = regexp.MustCompile(`\\u0000`)
	controlEscape = regexp.MustCompile(`\\u00[01][0-9a-fA-F]`)
)

// sanitizeJSONForPostgres strips the \u0000 escape JSONB rejects and turns
// other control character escapes into spaces. OCR output occasionally
// contains both.
func sanitizeJSONForPostgres(jsonBytes []byte) []byte {
	if len(jsonBytes) == 0 {
		return jsonBytes
	}
	result := nullEscape.ReplaceAll(jsonBytes, []byte{})
	return controlEscape.ReplaceAll(result, []byte(" "))
}

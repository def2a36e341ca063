/**
 * PostgreSQL Client for the PhotoTranslate Worker
 *
 * Handles job persistence, translated photo results and the key/value table
 * the language pack registry can persist its installed set into.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresClient handles database operations
type PostgresClient struct {
	db *sql.DB
}

// JobUpdate represents a job status update
type JobUpdate struct {
	JobID            string
	Status           string
	SourceLanguage   string
	TargetLanguage   string
	Mode             string
	OCREngine        string
	Confidence       float64
	ProcessingTimeMs int64
	DegradedBoxes    []int64
	ErrorCode        string
	ErrorMessage     string
	Metadata         map[string]interface{}
}

// JobResult is the rendered outcome of a photo job.
type JobResult struct {
	JobID   string
	Boxes   interface{}
	Overlay interface{}
}

const schemaDDL = `
	CREATE SCHEMA IF NOT EXISTS phototranslate;

	CREATE TABLE IF NOT EXISTS phototranslate.jobs (
		id                 uuid PRIMARY KEY,
		status             text NOT NULL,
		source_language    text,
		target_language    text,
		mode               text,
		ocr_engine         text,
		confidence         NUMERIC(5,4),
		processing_time_ms bigint,
		degraded_boxes     integer[],
		error_code         text,
		error_message      text,
		metadata           jsonb NOT NULL DEFAULT '{}'::jsonb,
		created_at         timestamptz NOT NULL DEFAULT NOW(),
		updated_at         timestamptz NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS phototranslate.job_results (
		job_id     uuid PRIMARY KEY REFERENCES phototranslate.jobs(id) ON DELETE CASCADE,
		boxes      jsonb NOT NULL,
		overlay    jsonb,
		created_at timestamptz NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS phototranslate.kv_store (
		key        text PRIMARY KEY,
		value      bytea NOT NULL,
		updated_at timestamptz NOT NULL DEFAULT NOW()
	);
`

// sanitizeConfidence clamps confidence to [0,1] and rounds it to the four
// decimals NUMERIC(5,4) can hold.
func sanitizeConfidence(confidence float64) float64 {
	if confidence < 0.0 {
		return 0.0
	}
	if confidence > 1.0 {
		return 1.0
	}
	return float64(int(confidence*10000+0.5)) / 10000
}

// NewPostgresClient creates a new PostgreSQL client
func NewPostgresClient(databaseURL string) (*PostgresClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{db: db}, nil
}

// EnsureSchema creates the worker's tables when they do not exist yet.
func (p *PostgresClient) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func validateUpdate(update *JobUpdate) error {
	if update == nil || update.JobID == "" {
		return fmt.Errorf("job ID is required")
	}
	if update.Status == "" {
		return fmt.Errorf("status is required")
	}
	return nil
}

// UpdateJobStatus upserts the job row. Empty fields keep their stored value.
func (p *PostgresClient) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	if err := validateUpdate(update); err != nil {
		return err
	}

	metadataJSON, err := json.Marshal(update.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	var degraded interface{}
	if update.DegradedBoxes != nil {
		degraded = pq.Array(update.DegradedBoxes)
	}

	query := `
		INSERT INTO phototranslate.jobs (
			id, status, source_language, target_language, mode, ocr_engine,
			confidence, processing_time_ms, degraded_boxes,
			error_code, error_message, metadata, created_at, updated_at
		) VALUES (
			$1::uuid, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''),
			NULLIF($7::NUMERIC(5,4), 0), NULLIF($8, 0), $9::integer[],
			NULLIF($10, ''), NULLIF($11, ''), COALESCE($12::jsonb, '{}'::jsonb),
			NOW(), NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			source_language = COALESCE(EXCLUDED.source_language, phototranslate.jobs.source_language),
			target_language = COALESCE(EXCLUDED.target_language, phototranslate.jobs.target_language),
			mode = COALESCE(EXCLUDED.mode, phototranslate.jobs.mode),
			ocr_engine = COALESCE(EXCLUDED.ocr_engine, phototranslate.jobs.ocr_engine),
			confidence = COALESCE(EXCLUDED.confidence, phototranslate.jobs.confidence),
			processing_time_ms = COALESCE(EXCLUDED.processing_time_ms, phototranslate.jobs.processing_time_ms),
			degraded_boxes = COALESCE(EXCLUDED.degraded_boxes, phototranslate.jobs.degraded_boxes),
			error_code = EXCLUDED.error_code,
			error_message = EXCLUDED.error_message,
			metadata = phototranslate.jobs.metadata || EXCLUDED.metadata,
			updated_at = NOW()
		RETURNING id
	`

	var returnedID string
	err = p.db.QueryRowContext(
		ctx,
		query,
		update.JobID,                          // $1
		update.Status,                         // $2
		update.SourceLanguage,                 // $3
		update.TargetLanguage,                 // $4
		update.Mode,                           // $5
		update.OCREngine,                      // $6
		sanitizeConfidence(update.Confidence), // $7
		update.ProcessingTimeMs,               // $8
		degraded,                              // $9
		update.ErrorCode,                      // $10
		update.ErrorMessage,                   // $11
		metadataJSON,                          // $12
	).Scan(&returnedID)

	if err == sql.ErrNoRows {
		return fmt.Errorf("job not found: %s", update.JobID)
	}
	if err != nil {
		return fmt.Errorf("failed to update job status (job=%s, status=%s): %w",
			update.JobID, update.Status, err)
	}

	return nil
}

// StoreResult writes the translated boxes and overlay of a finished job.
func (p *PostgresClient) StoreResult(ctx context.Context, result *JobResult) error {
	if result == nil || result.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	boxesJSON, err := json.Marshal(result.Boxes)
	if err != nil {
		return fmt.Errorf("failed to marshal boxes: %w", err)
	}

	var overlayJSON []byte
	if result.Overlay != nil {
		if overlayJSON, err = json.Marshal(result.Overlay); err != nil {
			return fmt.Errorf("failed to marshal overlay: %w", err)
		}
	}

	query := `
		INSERT INTO phototranslate.job_results (job_id, boxes, overlay, created_at)
		VALUES ($1::uuid, $2::jsonb, $3::jsonb, NOW())
		ON CONFLICT (job_id) DO UPDATE SET
			boxes = EXCLUDED.boxes,
			overlay = EXCLUDED.overlay,
			created_at = NOW()
	`
	boxesJSON = sanitizeJSONForPostgres(boxesJSON)
	overlayJSON = sanitizeJSONForPostgres(overlayJSON)

	if _, err := p.db.ExecContext(ctx, query, result.JobID, boxesJSON, nullableJSON(overlayJSON)); err != nil {
		return fmt.Errorf("failed to store result for job %s: %w", result.JobID, err)
	}
	return nil
}

func nullableJSON(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}

// GetJobByID retrieves a job by ID
func (p *PostgresClient) GetJobByID(ctx context.Context, jobID string) (map[string]interface{}, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}

	query := `
		SELECT
			j.id,
			j.status,
			j.source_language,
			j.target_language,
			j.mode,
			j.ocr_engine,
			j.confidence,
			j.processing_time_ms,
			j.degraded_boxes,
			j.error_code,
			j.error_message,
			j.metadata,
			r.boxes,
			r.overlay,
			j.created_at,
			j.updated_at
		FROM phototranslate.jobs j
		LEFT JOIN phototranslate.job_results r ON r.job_id = j.id
		WHERE j.id = $1::uuid
	`

	var (
		id, status                           string
		sourceLanguage, targetLanguage       sql.NullString
		mode, ocrEngine                      sql.NullString
		confidence                           sql.NullFloat64
		processingTimeMs                     sql.NullInt64
		degraded                             pq.Int64Array
		errorCode, errorMessage              sql.NullString
		metadataJSON, boxesJSON, overlayJSON []byte
		createdAt, updatedAt                 time.Time
	)

	err := p.db.QueryRowContext(ctx, query, jobID).Scan(
		&id, &status, &sourceLanguage, &targetLanguage, &mode, &ocrEngine,
		&confidence, &processingTimeMs, &degraded,
		&errorCode, &errorMessage, &metadataJSON, &boxesJSON, &overlayJSON,
		&createdAt, &updatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	var metadata map[string]interface{}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	result := map[string]interface{}{
		"id":        id,
		"status":    status,
		"createdAt": createdAt,
		"updatedAt": updatedAt,
		"metadata":  metadata,
	}

	if sourceLanguage.Valid {
		result["sourceLanguage"] = sourceLanguage.String
	}
	if targetLanguage.Valid {
		result["targetLanguage"] = targetLanguage.String
	}
	if mode.Valid {
		result["mode"] = mode.String
	}
	if ocrEngine.Valid {
		result["ocrEngine"] = ocrEngine.String
	}
	if confidence.Valid {
		result["confidence"] = confidence.Float64
	}
	if processingTimeMs.Valid {
		result["processingTimeMs"] = processingTimeMs.Int64
	}
	if len(degraded) > 0 {
		result["degradedBoxes"] = []int64(degraded)
	}
	if errorCode.Valid {
		result["errorCode"] = errorCode.String
	}
	if errorMessage.Valid {
		result["errorMessage"] = errorMessage.String
	}
	if len(boxesJSON) > 0 {
		result["boxes"] = json.RawMessage(boxesJSON)
	}
	if len(overlayJSON) > 0 {
		result["overlay"] = json.RawMessage(overlayJSON)
	}

	return result, nil
}

// Get reads a value from the key/value table.
func (p *PostgresClient) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := p.db.QueryRowContext(ctx,
		`SELECT value FROM phototranslate.kv_store WHERE key = $1`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read key %s: %w", key, err)
	}
	return value, true, nil
}

// Set writes a value to the key/value table.
func (p *PostgresClient) Set(ctx context.Context, key string, value []byte) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO phototranslate.kv_store (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	return nil
}

// Ping checks database connectivity
func (p *PostgresClient) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection
func (p *PostgresClient) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// GetStats returns connection pool statistics
func (p *PostgresClient) GetStats() sql.DBStats {
	return p.db.Stats()
}

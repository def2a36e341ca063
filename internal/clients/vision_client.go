/**
 * Cloud Vision Client - text detection with bounding boxes
 *
 * Talks to the cloud OCR endpoint. The endpoint answers synchronously with
 * detected blocks, or with 202 Accepted and a task id that is polled until
 * it completes. Either way the caller receives the same VisionOCRData,
 * including the size of the image the service actually analyzed.
 */

package clients

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/adverant/nexus/phototranslate-worker/internal/logging"
)

const (
	sourceHeader        = "phototranslate-worker"
	defaultPollInterval = 500 * time.Millisecond
)

// VisionClient handles communication with the cloud vision service
type VisionClient struct {
	baseURL      string
	apiKey       string
	httpClient   *http.Client
	pollInterval time.Duration
	logger       *logging.Logger
}

// VisionOCRRequest represents a request to detect text in an image
type VisionOCRRequest struct {
	Image     string                 `json:"image"`               // Base64 encoded image
	Format    string                 `json:"format"`              // "base64" or "url"
	Languages []string               `json:"languages,omitempty"` // hints, canonical codes
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	JobID     string                 `json:"jobId,omitempty"`
	Async     bool                   `json:"async,omitempty"`
}

// VisionOCRResponse represents a synchronous response from the vision endpoint
type VisionOCRResponse struct {
	Success bool                   `json:"success"`
	Data    VisionOCRData          `json:"data"`
	Message string                 `json:"message"`
	Meta    map[string]interface{} `json:"meta"`
}

// VisionOCRAsyncResponse represents an async (202 Accepted) response with taskId
type VisionOCRAsyncResponse struct {
	Success bool              `json:"success"`
	Data    VisionOCRTaskData `json:"data"`
	Message string            `json:"message"`
	Meta    AsyncMeta         `json:"meta"`
}

// VisionOCRTaskData contains task ID and polling information
type VisionOCRTaskData struct {
	TaskID string `json:"taskId"`
}

// AsyncMeta contains metadata about async task
type AsyncMeta struct {
	PollURL           string `json:"pollUrl"`
	EstimatedDuration string `json:"estimatedDuration"`
}

// TaskStatusResponse represents the response from polling /api/tasks/:taskId
type TaskStatusResponse struct {
	Success bool           `json:"success"`
	Data    TaskStatusData `json:"data"`
	Message string         `json:"message"`
}

// TaskStatusData contains task status and result
type TaskStatusData struct {
	Task TaskInfo `json:"task"`
}

// TaskInfo contains detailed task information
type TaskInfo struct {
	ID       string         `json:"id"`
	Status   string         `json:"status"`   // "pending", "processing", "completed", "failed"
	Progress int            `json:"progress"` // 0-100
	Result   *VisionOCRData `json:"result,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// VisionOCRData contains detected text blocks and the analyzed image size
type VisionOCRData struct {
	Blocks         []VisionBlock `json:"blocks"`
	ImageWidth     int           `json:"imageWidth"`
	ImageHeight    int           `json:"imageHeight"`
	ModelUsed      string        `json:"modelUsed"`
	ProcessingTime int64         `json:"processingTime"` // milliseconds
}

// VisionBlock is one detected text region. The service reports either a
// polygon of vertices or an axis-aligned rectangle.
type VisionBlock struct {
	Text        string         `json:"text"`
	Confidence  float64        `json:"confidence"`
	Vertices    []Vertex       `json:"vertices,omitempty"`
	BoundingBox *RectangleSpec `json:"boundingBox,omitempty"`
}

// Vertex is one polygon point
type Vertex struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// RectangleSpec is an x/y/width/height rectangle
type RectangleSpec struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// NewVisionClient creates a new vision client
func NewVisionClient(baseURL, apiKey string) *VisionClient {
	return &VisionClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		pollInterval: defaultPollInterval,
		logger:       logging.NewLogger("VisionClient"),
	}
}

// DetectText detects text in an image. An async acceptance is polled to
// completion within ctx.
func (c *VisionClient) DetectText(ctx context.Context, req *VisionOCRRequest) (*VisionOCRData, error) {
	c.logger.Info("Requesting text detection",
		"languages", req.Languages,
		"imageSize", len(req.Image),
		"jobId", req.JobID)

	endpoint := fmt.Sprintf("%s/api/vision/detect-text", c.baseURL)

	status, body, err := c.post(ctx, endpoint, req)
	if err != nil {
		return nil, err
	}

	switch status {
	case http.StatusOK:
		var ocrResp VisionOCRResponse
		if err := json.Unmarshal(body, &ocrResp); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		if !ocrResp.Success {
			return nil, fmt.Errorf("vision operation failed: %s", ocrResp.Message)
		}
		c.logger.Info("Text detection complete",
			"modelUsed", ocrResp.Data.ModelUsed,
			"blocks", len(ocrResp.Data.Blocks),
			"processingTime", ocrResp.Data.ProcessingTime)
		return &ocrResp.Data, nil

	case http.StatusAccepted:
		var asyncResp VisionOCRAsyncResponse
		if err := json.Unmarshal(body, &asyncResp); err != nil {
			return nil, fmt.Errorf("failed to parse async response: %w", err)
		}
		if !asyncResp.Success || asyncResp.Data.TaskID == "" {
			return nil, fmt.Errorf("vision async operation failed: %s", asyncResp.Message)
		}
		c.logger.Info("Async text detection task created",
			"taskId", asyncResp.Data.TaskID,
			"estimatedDuration", asyncResp.Meta.EstimatedDuration)
		return c.WaitForTaskCompletion(ctx, asyncResp.Data.TaskID, c.pollInterval)

	default:
		return nil, &StatusError{Service: "vision", StatusCode: status, Body: string(body)}
	}
}

// DetectTextFromBytes is a convenience method that handles base64 encoding
func (c *VisionClient) DetectTextFromBytes(ctx context.Context, imageData []byte, languages []string, jobID string) (*VisionOCRData, error) {
	req := &VisionOCRRequest{
		Image:     base64.StdEncoding.EncodeToString(imageData),
		Format:    "base64",
		Languages: languages,
		JobID:     jobID,
		Metadata: map[string]interface{}{
			"source":    sourceHeader,
			"timestamp": time.Now().Unix(),
		},
	}
	return c.DetectText(ctx, req)
}

// GetTaskStatus polls for the status of an async task
func (c *VisionClient) GetTaskStatus(ctx context.Context, taskID string) (*TaskStatusResponse, error) {
	endpoint := fmt.Sprintf("%s/api/tasks/%s", c.baseURL, taskID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create status request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read status response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Service: "vision", StatusCode: resp.StatusCode, Body: string(body)}
	}

	var statusResp TaskStatusResponse
	if err := json.Unmarshal(body, &statusResp); err != nil {
		return nil, fmt.Errorf("failed to parse status response: %w", err)
	}

	return &statusResp, nil
}

// WaitForTaskCompletion polls the task status until completion or ctx ends
func (c *VisionClient) WaitForTaskCompletion(ctx context.Context, taskID string, pollInterval time.Duration) (*VisionOCRData, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled while waiting for task: %w", ctx.Err())

		case <-ticker.C:
			status, err := c.GetTaskStatus(ctx, taskID)
			if err != nil {
				c.logger.Warn("Failed to get task status", "taskId", taskID, "error", err)
				continue
			}

			c.logger.Debug("Task status update",
				"taskId", taskID,
				"status", status.Data.Task.Status,
				"progress", status.Data.Task.Progress)

			switch status.Data.Task.Status {
			case "completed":
				if status.Data.Task.Result == nil {
					return nil, fmt.Errorf("task %s completed without result", taskID)
				}
				return status.Data.Task.Result, nil

			case "failed":
				return nil, fmt.Errorf("task failed: %s", status.Data.Task.Error)

			case "pending", "processing":
				continue

			default:
				c.logger.Warn("Unknown task status", "status", status.Data.Task.Status)
			}
		}
	}
}

// HealthCheck verifies the vision service is available
func (c *VisionClient) HealthCheck(ctx context.Context) error {
	return healthCheck(ctx, c.httpClient, c.baseURL)
}

func (c *VisionClient) post(ctx context.Context, endpoint string, payload interface{}) (int, []byte, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-ID", fmt.Sprintf("ocr-%d", time.Now().UnixNano()))
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, fmt.Errorf("request to vision service failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return resp.StatusCode, body, nil
}

func (c *VisionClient) setHeaders(req *http.Request) {
	req.Header.Set("X-Source", sourceHeader)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

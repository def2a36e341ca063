/**
 * Model Runtime Client - local on-device translation runtime
 *
 * The runtime is a sidecar process that owns the translation models. It
 * translates only between installed models and exposes model lifecycle calls
 * so language packs stay in sync with the OCR data files.
 */

package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/adverant/nexus/phototranslate-worker/internal/logging"
)

// RuntimeClient calls the local model runtime
type RuntimeClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// RuntimeTranslateRequest is the body of POST /v1/translate
type RuntimeTranslateRequest struct {
	Text   string `json:"text"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// RuntimeTranslateResponse is the reply of POST /v1/translate
type RuntimeTranslateResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// NewRuntimeClient creates a new runtime client
func NewRuntimeClient(baseURL string) *RuntimeClient {
	return &RuntimeClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			// model downloads can be large
			Timeout: 5 * time.Minute,
		},
		logger: logging.NewLogger("RuntimeClient"),
	}
}

// Translate runs a local translation
func (c *RuntimeClient) Translate(ctx context.Context, text, source, target string) (string, error) {
	body, err := json.Marshal(RuntimeTranslateRequest{Text: text, Source: source, Target: target})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	respBody, err := c.do(ctx, http.MethodPost, "/v1/translate", body)
	if err != nil {
		return "", err
	}

	var out RuntimeTranslateResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("runtime translation failed: %s", out.Error)
	}
	return out.Text, nil
}

// DownloadModel asks the runtime to fetch the model for a language
func (c *RuntimeClient) DownloadModel(ctx context.Context, language string) error {
	c.logger.Info("Requesting model download", "language", language)
	_, err := c.do(ctx, http.MethodPut, "/v1/models/"+url.PathEscape(language), nil)
	return err
}

// HasModel reports whether the runtime holds the model for a language
func (c *RuntimeClient) HasModel(ctx context.Context, language string) (bool, error) {
	_, err := c.do(ctx, http.MethodGet, "/v1/models/"+url.PathEscape(language), nil)
	if se, ok := err.(*StatusError); ok && se.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// DeleteModel removes a language model. Unknown models are not an error.
func (c *RuntimeClient) DeleteModel(ctx context.Context, language string) error {
	_, err := c.do(ctx, http.MethodDelete, "/v1/models/"+url.PathEscape(language), nil)
	if se, ok := err.(*StatusError); ok && se.StatusCode == http.StatusNotFound {
		return nil
	}
	return err
}

// HealthCheck verifies the runtime is available
func (c *RuntimeClient) HealthCheck(ctx context.Context) error {
	return healthCheck(ctx, c.httpClient, c.baseURL)
}

func (c *RuntimeClient) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Source", sourceHeader)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to model runtime failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Service: "model runtime", StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return respBody, nil
}

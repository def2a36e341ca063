/**
 * Cloud Translate Client - MyMemory-compatible translation API
 *
 * GET <base>/get?q=<text>&langpair=<src>|<dst>. A responseStatus other than
 * 200 inside a 200 HTTP response is still a failure.
 */

package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/adverant/nexus/phototranslate-worker/internal/logging"
)

// TranslateClient calls the cloud translation endpoint
type TranslateClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logging.Logger
}

// TranslateResponse mirrors the MyMemory response envelope
type TranslateResponse struct {
	ResponseData struct {
		TranslatedText string  `json:"translatedText"`
		Match          float64 `json:"match"`
	} `json:"responseData"`
	ResponseStatus  interface{} `json:"responseStatus"`
	ResponseDetails string      `json:"responseDetails"`
	Matches         []struct {
		Translation string `json:"translation"`
	} `json:"matches"`
}

// TranslateResult is the normalized translation outcome
type TranslateResult struct {
	Text         string
	Match        float64
	Reliable     bool
	Alternatives []string
}

// NewTranslateClient creates a new translation client
func NewTranslateClient(baseURL, apiKey string) *TranslateClient {
	return &TranslateClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logging.NewLogger("TranslateClient"),
	}
}

// Translate translates text from source to target (canonical codes)
func (c *TranslateClient) Translate(ctx context.Context, text, source, target string) (*TranslateResult, error) {
	q := url.Values{}
	q.Set("q", text)
	q.Set("langpair", source+"|"+target)
	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}
	endpoint := fmt.Sprintf("%s/get?%s", c.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Source", sourceHeader)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to translation service failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Service: "translate", StatusCode: resp.StatusCode, Body: string(body)}
	}

	var data TranslateResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	// the API reports responseStatus as a number or a numeric string
	if status := fmt.Sprint(data.ResponseStatus); status != "200" {
		return nil, fmt.Errorf("translation failed with status %s: %s", status, data.ResponseDetails)
	}

	var alternatives []string
	for _, m := range data.Matches {
		if m.Translation != data.ResponseData.TranslatedText {
			alternatives = append(alternatives, m.Translation)
		}
	}

	c.logger.Debug("Translation complete",
		"langpair", source+"|"+target,
		"match", data.ResponseData.Match,
		"textLength", len(text))

	return &TranslateResult{
		Text:         data.ResponseData.TranslatedText,
		Match:        data.ResponseData.Match,
		Reliable:     data.ResponseData.Match >= 0.8,
		Alternatives: alternatives,
	}, nil
}

// HealthCheck verifies the translation service is available
func (c *TranslateClient) HealthCheck(ctx context.Context) error {
	return healthCheck(ctx, c.httpClient, c.baseURL)
}

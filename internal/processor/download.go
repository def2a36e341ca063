package processor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	coreerrors "github.com/adverant/nexus/phototranslate-worker/internal/errors"
)

const (
	downloadAttempts   = 4
	initialBackoff     = 500 * time.Millisecond
	maxBackoff         = 8 * time.Second
	defaultMaxImageLen = 25 << 20
)

// loadImage returns the request's image bytes, downloading them when only a
// URL was given.
func (p *PhotoProcessor) loadImage(ctx context.Context, req *PhotoRequest) ([]byte, error) {
	if len(req.Image) > 0 {
		return req.Image, nil
	}
	if req.ImageURL == "" {
		return nil, coreerrors.NewInvalidRequestError("no image source provided (bytes or URL)")
	}
	return p.downloadImage(ctx, req.JobID, req.ImageURL)
}

// downloadImage fetches url with exponential backoff. Client errors (4xx)
// are not retried.
func (p *PhotoProcessor) downloadImage(ctx context.Context, jobID, url string) ([]byte, error) {
	var lastErr error
	backoff := initialBackoff

	for attempt := 1; attempt <= downloadAttempts; attempt++ {
		data, retry, err := p.fetchOnce(ctx, url)
		if err == nil {
			p.logger.Debug("Image downloaded", "jobId", jobID, "attempt", attempt, "bytes", len(data))
			return data, nil
		}
		lastErr = err
		if !retry || attempt == downloadAttempts {
			break
		}

		p.logger.Warn("Image download failed, retrying",
			"jobId", jobID,
			"attempt", attempt,
			"backoff", backoff.String(),
			"error", err)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled during retry backoff: %w", ctx.Err())
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}

	return nil, fmt.Errorf("failed to download image: %w", lastErr)
}

func (p *PhotoProcessor) fetchOnce(ctx context.Context, url string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, coreerrors.NewInvalidRequestError(fmt.Sprintf("invalid image URL: %v", err))
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		retry := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return nil, retry, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	if resp.ContentLength > p.maxImageBytes {
		return nil, false, fmt.Errorf("image size exceeds maximum: %d > %d bytes",
			resp.ContentLength, p.maxImageBytes)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, p.maxImageBytes+1))
	if err != nil {
		return nil, true, err
	}
	if int64(len(data)) > p.maxImageBytes {
		return nil, false, fmt.Errorf("image size exceeds maximum of %d bytes", p.maxImageBytes)
	}
	return data, false, nil
}

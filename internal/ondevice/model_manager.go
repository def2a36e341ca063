/**
 * On-device model manager
 *
 * A language pack on this host is two things: the tessdata file the
 * on-device recognizer reads, and the translation model held by the local
 * runtime. Installs fetch the tessdata file into a temp file and rename it
 * into place, so a half-written file is never visible to the recognizer.
 */

package ondevice

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adverant/nexus/phototranslate-worker/internal/langid"
	"github.com/adverant/nexus/phototranslate-worker/internal/logging"
)

const traineddataExt = ".traineddata"

// Runtime manages translation models in the local runtime
type Runtime interface {
	HasModel(ctx context.Context, language string) (bool, error)
	DownloadModel(ctx context.Context, language string) error
	DeleteModel(ctx context.Context, language string) error
}

// ModelManager installs and removes on-device language models
type ModelManager struct {
	dir        string
	baseURL    string
	runtime    Runtime
	httpClient *http.Client
	logger     *logging.Logger
}

// Option customizes a ModelManager
type Option func(*ModelManager)

// WithRuntime keeps runtime models in step with tessdata files.
func WithRuntime(r Runtime) Option {
	return func(m *ModelManager) { m.runtime = r }
}

// WithHTTPClient replaces the download client.
func WithHTTPClient(c *http.Client) Option {
	return func(m *ModelManager) { m.httpClient = c }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *ModelManager) { m.logger = l }
}

// NewModelManager manages tessdata files under dir, downloading from baseURL
func NewModelManager(dir, baseURL string, opts ...Option) (*ModelManager, error) {
	if dir == "" {
		return nil, fmt.Errorf("tessdata directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create tessdata directory: %w", err)
	}
	m := &ModelManager{
		dir:        dir,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Minute},
		logger:     logging.NewLogger("ModelManager"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Dir is the tessdata directory.
func (m *ModelManager) Dir() string { return m.dir }

func (m *ModelManager) path(id langid.ID) string {
	return filepath.Join(m.dir, id.Tesseract()+traineddataExt)
}

// IsLanguageInstalled reports whether both the tessdata file and the runtime
// model for id are present
func (m *ModelManager) IsLanguageInstalled(ctx context.Context, id langid.ID) (bool, error) {
	present, err := m.hasTessdata(id)
	if err != nil || !present {
		return false, err
	}
	if m.runtime == nil {
		return true, nil
	}
	has, err := m.runtime.HasModel(ctx, id.String())
	if err != nil {
		return false, fmt.Errorf("runtime model query failed: %w", err)
	}
	return has, nil
}

func (m *ModelManager) hasTessdata(id langid.ID) (bool, error) {
	info, err := os.Stat(m.path(id))
	if err == nil {
		return info.Mode().IsRegular() && info.Size() > 0, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// DownloadLanguage installs the tessdata file for id, unless one is already
// present, and then the runtime model. A runtime failure removes a freshly
// written file again; a file that was there before is left alone.
func (m *ModelManager) DownloadLanguage(ctx context.Context, id langid.ID) error {
	present, err := m.hasTessdata(id)
	if err != nil {
		return fmt.Errorf("failed to inspect tessdata file: %w", err)
	}

	if present {
		m.logger.Debug("Tessdata already present", "language", id)
	} else {
		if m.baseURL == "" {
			return fmt.Errorf("no model download URL configured")
		}
		url := m.baseURL + "/" + id.Tesseract() + traineddataExt

		start := time.Now()
		n, err := m.fetch(ctx, url, m.path(id))
		if err != nil {
			return err
		}
		m.logger.Info("Tessdata installed",
			"language", id,
			"bytes", n,
			"duration", time.Since(start).String())
	}

	if m.runtime != nil {
		if err := m.runtime.DownloadModel(ctx, id.String()); err != nil {
			if !present {
				if rmErr := os.Remove(m.path(id)); rmErr != nil && !os.IsNotExist(rmErr) {
					m.logger.Warn("Failed to roll back tessdata file", "language", id, "error", rmErr)
				}
			}
			return fmt.Errorf("runtime model download failed: %w", err)
		}
	}
	return nil
}

func (m *ModelManager) fetch(ctx context.Context, url, dest string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("download failed: HTTP %d from %s", resp.StatusCode, url)
	}

	tmp, err := os.CreateTemp(m.dir, ".download-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	n, err := io.Copy(tmp, resp.Body)
	if err != nil {
		tmp.Close()
		return 0, fmt.Errorf("failed to write model: %w", err)
	}
	if n == 0 {
		tmp.Close()
		return 0, fmt.Errorf("empty model file from %s", url)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("failed to sync model: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("failed to close model: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return 0, fmt.Errorf("failed to move model into place: %w", err)
	}
	return n, nil
}

// RemoveLanguage deletes the tessdata file and the runtime model. Removing
// a language that is not present succeeds.
func (m *ModelManager) RemoveLanguage(ctx context.Context, id langid.ID) error {
	if m.runtime != nil {
		if err := m.runtime.DeleteModel(ctx, id.String()); err != nil {
			return fmt.Errorf("runtime model delete failed: %w", err)
		}
	}
	if err := os.Remove(m.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete tessdata file: %w", err)
	}
	m.logger.Info("Tessdata removed", "language", id)
	return nil
}

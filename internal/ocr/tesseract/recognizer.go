/**
 * Tesseract OCR - on-device recognizer
 *
 * Free, offline OCR using Tesseract through gosseract. Images are normalized
 * to a maximum dimension first, and the normalized size is what gets
 * reported as the processed size. Language data comes from the tessdata
 * directory managed by the language pack registry.
 */

package tesseract

import (
	"context"
	"fmt"
	"strings"
	"time"

	coreerrors "github.com/adverant/nexus/phototranslate-worker/internal/errors"
	"github.com/adverant/nexus/phototranslate-worker/internal/geometry"
	"github.com/adverant/nexus/phototranslate-worker/internal/logging"
	"github.com/adverant/nexus/phototranslate-worker/internal/ocr"
	"github.com/otiai10/gosseract/v2"
)

const defaultLanguage = "eng"

// Config holds Tesseract configuration
type Config struct {
	TessdataDir   string
	MaxDimension  int
	MinConfidence float64
}

// Recognizer handles OCR using Tesseract
type Recognizer struct {
	cfg           Config
	clientFactory func() *gosseract.Client
	logger        *logging.Logger
}

// NewRecognizer creates a new Tesseract recognizer
func NewRecognizer(cfg Config, logger *logging.Logger) *Recognizer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Recognizer{
		cfg:           cfg,
		clientFactory: gosseract.NewClient,
		logger:        logger,
	}
}

func (t *Recognizer) Name() string { return "tesseract" }

func (t *Recognizer) Source() coreerrors.EngineSource { return coreerrors.EngineOnDevice }

// Recognize performs line-level OCR
func (t *Recognizer) Recognize(ctx context.Context, img ocr.Image) (*ocr.Result, error) {
	startTime := time.Now()

	select {
	case <-ctx.Done():
		return nil, coreerrors.NewOCRFailedError(coreerrors.EngineOnDevice, coreerrors.OCRUnavailable, ctx.Err())
	default:
	}

	data, size, err := ocr.Normalize(img.Data, t.cfg.MaxDimension)
	if err != nil {
		return nil, coreerrors.NewOCRFailedError(coreerrors.EngineOnDevice, coreerrors.OCRDecode, err)
	}

	client := t.clientFactory()
	defer client.Close()

	if t.cfg.TessdataDir != "" {
		if err := client.SetTessdataPrefix(t.cfg.TessdataDir); err != nil {
			return nil, coreerrors.NewOCRFailedError(coreerrors.EngineOnDevice, coreerrors.OCRUnavailable,
				fmt.Errorf("set tessdata prefix: %w", err))
		}
	}
	if err := client.SetLanguage(languages(img)...); err != nil {
		return nil, coreerrors.NewOCRFailedError(coreerrors.EngineOnDevice, coreerrors.OCRUnavailable,
			fmt.Errorf("set languages: %w", err))
	}
	if err := client.SetImageFromBytes(data); err != nil {
		return nil, coreerrors.NewOCRFailedError(coreerrors.EngineOnDevice, coreerrors.OCRDecode,
			fmt.Errorf("set image: %w", err))
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, coreerrors.NewOCRFailedError(coreerrors.EngineOnDevice, coreerrors.OCRUnavailable,
			fmt.Errorf("tesseract OCR failed: %w", err))
	}

	texts := make([]ocr.Text, 0, len(boxes))
	dropped := 0
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		conf := b.Confidence / 100.0
		if text == "" {
			continue
		}
		if conf < t.cfg.MinConfidence {
			dropped++
			continue
		}
		texts = append(texts, ocr.Text{
			Text:       text,
			Confidence: conf,
			Box: geometry.Box{
				X0: float64(b.Box.Min.X),
				Y0: float64(b.Box.Min.Y),
				X1: float64(b.Box.Max.X),
				Y1: float64(b.Box.Max.Y),
			},
		})
	}

	t.logger.Debug("Tesseract recognition finished",
		"lines", len(texts),
		"droppedLowConfidence", dropped,
		"processedSize", size.String(),
		"duration", time.Since(startTime))

	if len(texts) == 0 {
		return nil, coreerrors.NewOCRFailedError(coreerrors.EngineOnDevice, coreerrors.OCRNoText, nil)
	}

	return &ocr.Result{
		Texts:         texts,
		ProcessedSize: size,
		Engine:        t.Name(),
		Source:        coreerrors.EngineOnDevice,
		Duration:      time.Since(startTime),
	}, nil
}

func languages(img ocr.Image) []string {
	if len(img.Languages) == 0 {
		return []string{defaultLanguage}
	}
	out := make([]string, 0, len(img.Languages))
	seen := make(map[string]bool, len(img.Languages))
	for _, l := range img.Languages {
		code := l.Tesseract()
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		out = append(out, code)
	}
	if len(out) == 0 {
		return []string{defaultLanguage}
	}
	return out
}

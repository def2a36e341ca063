package ocr

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/adverant/nexus/phototranslate-worker/internal/clients"
	coreerrors "github.com/adverant/nexus/phototranslate-worker/internal/errors"
	"github.com/adverant/nexus/phototranslate-worker/internal/geometry"
	"github.com/adverant/nexus/phototranslate-worker/internal/logging"
)

// VisionDetector is the cloud OCR call the recognizer depends on.
type VisionDetector interface {
	DetectTextFromBytes(ctx context.Context, imageData []byte, languages []string, jobID string) (*clients.VisionOCRData, error)
}

// CloudRecognizer normalizes cloud vision responses into Results.
type CloudRecognizer struct {
	client       VisionDetector
	maxDimension int
	logger       *logging.Logger
}

// NewCloudRecognizer creates a cloud recognizer. Images larger than
// maxDimension are downscaled before upload.
func NewCloudRecognizer(client VisionDetector, maxDimension int, logger *logging.Logger) *CloudRecognizer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &CloudRecognizer{client: client, maxDimension: maxDimension, logger: logger}
}

func (c *CloudRecognizer) Name() string { return "cloud-vision" }

func (c *CloudRecognizer) Source() coreerrors.EngineSource { return coreerrors.EngineCloud }

// Recognize uploads the image and converts the detected blocks. When the
// service does not echo the analyzed size, the size of the uploaded image
// is used, since that is what the service received.
func (c *CloudRecognizer) Recognize(ctx context.Context, img Image) (*Result, error) {
	start := time.Now()

	data, sent, err := Normalize(img.Data, c.maxDimension)
	if err != nil {
		return nil, coreerrors.NewOCRFailedError(coreerrors.EngineCloud, coreerrors.OCRDecode, err)
	}

	langs := make([]string, 0, len(img.Languages))
	for _, l := range img.Languages {
		langs = append(langs, string(l))
	}

	resp, err := c.client.DetectTextFromBytes(ctx, data, langs, img.JobID)
	if err != nil {
		return nil, coreerrors.NewOCRFailedError(coreerrors.EngineCloud, coreerrors.OCRNetwork, err)
	}

	size := geometry.NewSize(resp.ImageWidth, resp.ImageHeight)
	if !size.Valid() {
		c.logger.Debug("Cloud response without image size, using uploaded size", "size", sent.String())
		size = sent
	}

	texts := make([]Text, 0, len(resp.Blocks))
	for _, b := range resp.Blocks {
		text := strings.TrimSpace(b.Text)
		if text == "" {
			continue
		}
		box, ok := blockBox(b)
		if !ok {
			continue
		}
		texts = append(texts, Text{Text: text, Confidence: b.Confidence, Box: box})
	}

	if len(texts) == 0 {
		return nil, coreerrors.NewOCRFailedError(coreerrors.EngineCloud, coreerrors.OCRNoText, nil)
	}

	res := &Result{
		Texts:         texts,
		ProcessedSize: size,
		Engine:        c.Name(),
		Source:        coreerrors.EngineCloud,
		Duration:      time.Since(start),
	}
	if resp.ModelUsed != "" {
		res.Engine = c.Name() + "/" + resp.ModelUsed
	}
	return res, nil
}

// blockBox accepts either polygon vertices or an x/y/w/h rectangle.
func blockBox(b clients.VisionBlock) (geometry.Box, bool) {
	if len(b.Vertices) > 0 {
		minX, minY := math.Inf(1), math.Inf(1)
		maxX, maxY := math.Inf(-1), math.Inf(-1)
		for _, v := range b.Vertices {
			minX = math.Min(minX, v.X)
			minY = math.Min(minY, v.Y)
			maxX = math.Max(maxX, v.X)
			maxY = math.Max(maxY, v.Y)
		}
		return geometry.Box{X0: minX, Y0: minY, X1: maxX, Y1: maxY}, true
	}
	if r := b.BoundingBox; r != nil {
		return geometry.Box{X0: r.X, Y0: r.Y, X1: r.X + r.Width, Y1: r.Y + r.Height}.Normalize(), true
	}
	return geometry.Box{}, false
}

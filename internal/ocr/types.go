/**
 * OCR Types - the uniform recognizer boundary
 *
 * On-device and cloud recognizers produce the same Result shape. The size of
 * the image a recognizer actually analyzed is mandatory: box coordinates are
 * meaningless without it.
 */

package ocr

import (
	"context"
	"fmt"
	"time"

	coreerrors "github.com/adverant/nexus/phototranslate-worker/internal/errors"
	"github.com/adverant/nexus/phototranslate-worker/internal/geometry"
	"github.com/adverant/nexus/phototranslate-worker/internal/langid"
)

// Image is the input to a recognizer.
type Image struct {
	Data      []byte
	Languages []langid.ID
	JobID     string
}

// Text is one recognized region, in ProcessedSize coordinates.
type Text struct {
	Text         string       `json:"text"`
	Confidence   float64      `json:"confidence"`
	Box          geometry.Box `json:"box"`
	FontSizeHint float64      `json:"font_size_hint,omitempty"`
}

// Result represents the result of one recognition
type Result struct {
	Texts         []Text                  `json:"texts"`
	ProcessedSize geometry.Size           `json:"processed_size"`
	Engine        string                  `json:"engine"`
	Source        coreerrors.EngineSource `json:"source"`
	Duration      time.Duration           `json:"duration"`
}

// Recognizer detects text in an image.
type Recognizer interface {
	Name() string
	Source() coreerrors.EngineSource
	Recognize(ctx context.Context, img Image) (*Result, error)
}

// Validate enforces the mandatory processed size.
func (r *Result) Validate() error {
	if r == nil {
		return coreerrors.NewOCRFailedError("", coreerrors.OCRUnavailable, fmt.Errorf("nil result"))
	}
	if !r.ProcessedSize.Valid() {
		return coreerrors.NewOCRFailedError(r.Source, coreerrors.OCRDecode,
			fmt.Errorf("%s reported no processed image size (%s)", r.Engine, r.ProcessedSize))
	}
	return nil
}

// DetectedBoxes converts texts into uncorrected boxes tied to ProcessedSize.
func (r *Result) DetectedBoxes() []geometry.DetectedBox {
	out := make([]geometry.DetectedBox, 0, len(r.Texts))
	for _, t := range r.Texts {
		out = append(out, geometry.NewDetectedBox(t.Text, t.Confidence, t.Box, r.ProcessedSize, t.FontSizeHint))
	}
	return out
}

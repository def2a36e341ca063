/**
 * Photo Types - request and result of one photo translation
 *
 * Boxes in a result keep their OCR origin, so a result can be re-corrected
 * for a refined display size and re-laid out for another viewport without
 * running OCR or translation again.
 */

package processor

import (
	"github.com/adverant/nexus/phototranslate-worker/internal/geometry"
	"github.com/adverant/nexus/phototranslate-worker/internal/langid"
	"github.com/adverant/nexus/phototranslate-worker/internal/mode"
	"github.com/adverant/nexus/phototranslate-worker/internal/overlay"
)

// PhotoRequest represents a photo translation request
type PhotoRequest struct {
	JobID string

	// Image bytes, or a URL to fetch them from.
	Image    []byte
	ImageURL string

	// Raw language codes as the client sent them.
	SourceLanguage string
	TargetLanguage string

	// DisplaySize is the pixel size of the photo as shown. Zero defers
	// geometry correction to a later Recorrect.
	DisplaySize geometry.Size

	// Viewport, when set, asks for an overlay layout.
	Viewport *overlay.Viewport
	ShowAll  bool
}

// PhotoResult represents the processing result
type PhotoResult struct {
	JobID         string                 `json:"job_id"`
	Pair          langid.Pair            `json:"pair"`
	Mode          mode.Mode              `json:"mode"`
	OCREngine     string                 `json:"ocr_engine"`
	ProcessedSize geometry.Size          `json:"processed_size"`
	DisplaySize   geometry.Size          `json:"display_size"`
	Boxes         []geometry.DetectedBox `json:"boxes"`
	Overlay       *overlay.Layout        `json:"overlay,omitempty"`

	Translated int `json:"translated"`
	FellBack   int `json:"fell_back"`
	Degraded   int `json:"degraded"`

	GeometryWarning  string `json:"geometry_warning,omitempty"`
	ProcessingTimeMs int64  `json:"processing_time_ms"`
}

// Confidence is the mean OCR confidence over all boxes.
func (r *PhotoResult) Confidence() float64 {
	if len(r.Boxes) == 0 {
		return 0
	}
	var sum float64
	for _, b := range r.Boxes {
		sum += b.Confidence
	}
	return sum / float64(len(r.Boxes))
}

// DegradedIndices lists the boxes whose translation fell back to the
// recognized text.
func (r *PhotoResult) DegradedIndices() []int64 {
	out := make([]int64, 0, r.Degraded)
	for i, b := range r.Boxes {
		if b.TranslateError != "" {
			out = append(out, int64(i))
		}
	}
	return out
}

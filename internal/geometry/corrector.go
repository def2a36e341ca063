package geometry

import (
	coreerrors "github.com/adverant/nexus/phototranslate-worker/internal/errors"
	"github.com/adverant/nexus/phototranslate-worker/internal/logging"
)

// Corrector re-expresses OCR boxes in display space. It holds no per-photo
// state and is safe for concurrent and repeated use.
type Corrector struct {
	logger *logging.Logger
}

// NewCorrector creates a corrector.
func NewCorrector(logger *logging.Logger) *Corrector {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Corrector{logger: logger}
}

// Correct returns a corrected copy of boxes for the given display size.
//
// A zero display size means the size is not known yet and the boxes come back
// untouched. Boxes already corrected for display are passed through, and
// boxes corrected for another size are re-derived from their Origin. Boxes
// whose sizes are degenerate are returned unmodified together with a
// GEOMETRY_UNCORRECTABLE error; the slice is still usable.
func (c *Corrector) Correct(boxes []DetectedBox, display Size) ([]DetectedBox, error) {
	out := make([]DetectedBox, len(boxes))
	copy(out, boxes)

	if display.IsZero() {
		return out, nil
	}

	var firstErr error
	for i := range out {
		b := &out[i]
		if b.Correction.IsCorrectedFor(display) {
			continue
		}

		if !b.Origin.Size.Valid() || !display.Valid() {
			c.logger.Warn("Box geometry uncorrectable, keeping OCR placement",
				"text", b.Text,
				"ocrSize", b.Origin.Size.String(),
				"displaySize", display.String())
			if firstErr == nil {
				firstErr = coreerrors.NewGeometryUncorrectableError(
					b.Origin.Size.W, b.Origin.Size.H, display.W, display.H)
			}
			continue
		}

		*b = CorrectBox(*b, display)
	}

	return out, firstErr
}

// CorrectBox maps a single box with valid sizes onto display.
func CorrectBox(b DetectedBox, display Size) DetectedBox {
	plan := PlanFor(b.Origin.Size, display)

	b.Box = plan.Transform.ApplyBox(b.Origin.Box)
	b.FontSizeHint = b.Origin.FontSizeHint * plan.ScaleY
	b.Correction = CorrectedFor(display)
	return b
}

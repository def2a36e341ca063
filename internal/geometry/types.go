// Package geometry maps OCR bounding boxes from the coordinate space of the
// image a recognizer analyzed onto the pixels of the photo actually shown.
package geometry

import (
	"fmt"
	"math"
)

// Size is a pixel extent.
type Size struct {
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// NewSize builds a Size from integer pixel dimensions.
func NewSize(w, h int) Size { return Size{W: float64(w), H: float64(h)} }

// IsZero reports whether the size is unknown.
func (s Size) IsZero() bool { return s.W == 0 && s.H == 0 }

// Valid reports whether both dimensions are finite and positive.
func (s Size) Valid() bool {
	return s.W > 0 && s.H > 0 && !math.IsInf(s.W, 0) && !math.IsInf(s.H, 0)
}

// Landscape reports whether the size is wider than tall.
func (s Size) Landscape() bool { return s.W > s.H }

func (s Size) String() string { return fmt.Sprintf("%gx%g", s.W, s.H) }

// Box is an axis-aligned rectangle given by its top-left and bottom-right corners.
type Box struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// Width of the box.
func (b Box) Width() float64 { return b.X1 - b.X0 }

// Height of the box.
func (b Box) Height() float64 { return b.Y1 - b.Y0 }

// Area of the box; zero for inverted boxes.
func (b Box) Area() float64 {
	w, h := b.Width(), b.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Normalize orders the corners so X0<=X1 and Y0<=Y1.
func (b Box) Normalize() Box {
	return Box{
		X0: math.Min(b.X0, b.X1),
		Y0: math.Min(b.Y0, b.Y1),
		X1: math.Max(b.X0, b.X1),
		Y1: math.Max(b.Y0, b.Y1),
	}
}

// Within reports whether the box lies inside a frame of the given size.
func (b Box) Within(s Size) bool {
	return b.X0 >= 0 && b.Y0 >= 0 && b.X1 <= s.W && b.Y1 <= s.H
}

// Correction is the tagged correction state of a box: either Uncorrected or
// CorrectedFor a specific display size.
type Correction struct {
	corrected bool
	display   Size
}

// Uncorrected is the state of a box still expressed in OCR space.
func Uncorrected() Correction { return Correction{} }

// CorrectedFor is the state of a box expressed in the given display space.
func CorrectedFor(display Size) Correction {
	return Correction{corrected: true, display: display}
}

// IsCorrected reports whether the box has been mapped to any display size.
func (c Correction) IsCorrected() bool { return c.corrected }

// IsCorrectedFor reports whether the box was corrected against exactly display.
func (c Correction) IsCorrectedFor(display Size) bool {
	return c.corrected && c.display == display
}

// Display returns the size the box was corrected against.
func (c Correction) Display() (Size, bool) { return c.display, c.corrected }

func (c Correction) String() string {
	if !c.corrected {
		return "uncorrected"
	}
	return "corrected_for(" + c.display.String() + ")"
}

// Origin is what the recognizer reported, kept so a box can always be
// re-derived for a refined display size without compounding transforms.
type Origin struct {
	Box          Box     `json:"box"`
	Size         Size    `json:"size"`
	FontSizeHint float64 `json:"font_size_hint,omitempty"`
}

// DetectedBox is one recognized text region and its translation.
type DetectedBox struct {
	Text           string     `json:"text"`
	Confidence     float64    `json:"confidence"`
	Box            Box        `json:"box"`
	FontSizeHint   float64    `json:"font_size_hint,omitempty"`
	TranslatedText string     `json:"translated_text,omitempty"`
	TranslateError string     `json:"translate_error,omitempty"`
	Origin         Origin     `json:"origin"`
	Correction     Correction `json:"-"`
}

// NewDetectedBox creates an uncorrected box in OCR space.
func NewDetectedBox(text string, confidence float64, box Box, ocrSize Size, fontSizeHint float64) DetectedBox {
	box = box.Normalize()
	return DetectedBox{
		Text:         text,
		Confidence:   confidence,
		Box:          box,
		FontSizeHint: fontSizeHint,
		Origin:       Origin{Box: box, Size: ocrSize, FontSizeHint: fontSizeHint},
		Correction:   Uncorrected(),
	}
}

// DisplayText is the translation when present, the recognized text otherwise.
func (d DetectedBox) DisplayText() string {
	if d.TranslatedText != "" {
		return d.TranslatedText
	}
	return d.Text
}

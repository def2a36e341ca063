package overlay

import (
	"fmt"
	"strings"
	"testing"

	"github.com/adverant/nexus/phototranslate-worker/internal/geometry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func corrected(text string, b geometry.Box, display geometry.Size) geometry.DetectedBox {
	d := geometry.NewDetectedBox(text, 1, b, display, 0)
	return geometry.CorrectBox(d, display)
}

func TestFit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		display       geometry.Size
		vp            Viewport
		scale, ox, oy float64
	}{
		{name: "tall photo in wide viewport", display: geometry.Size{W: 1000, H: 2000}, vp: Viewport{W: 1000, H: 1000}, scale: 0.5, ox: 250, oy: 0},
		{name: "wide photo in tall viewport", display: geometry.Size{W: 2000, H: 1000}, vp: Viewport{W: 400, H: 800}, scale: 0.2, ox: 0, oy: 300},
		{name: "exact fit", display: geometry.Size{W: 300, H: 600}, vp: Viewport{W: 300, H: 600}, scale: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, ox, oy := Fit(tt.display, tt.vp)
			assert.InDelta(t, tt.scale, s, 1e-9)
			assert.InDelta(t, tt.ox, ox, 1e-9)
			assert.InDelta(t, tt.oy, oy, 1e-9)
		})
	}
}

func TestLayout_ProjectsRects(t *testing.T) {
	t.Parallel()

	display := geometry.Size{W: 1000, H: 2000}
	box := corrected("Hello", geometry.Box{X0: 100, Y0: 200, X1: 500, Y1: 300}, display)
	box.TranslatedText = "Hallo"

	l := NewEngine().Layout([]geometry.DetectedBox{box}, display, Viewport{W: 1000, H: 1000}, false)
	require.Len(t, l.Primary, 1)
	r := l.Primary[0]

	assert.InDelta(t, 100*0.5+250, r.Left, 1e-9)
	assert.InDelta(t, 200*0.5, r.Top, 1e-9)
	assert.InDelta(t, 200, r.Width, 1e-9)
	assert.InDelta(t, 50, r.Height, 1e-9)
	assert.Equal(t, "Hallo", r.Text)
	assert.Equal(t, "Hello", r.Original)
	assert.Nil(t, l.More)
}

func TestLayout_FontSize(t *testing.T) {
	t.Parallel()

	display := geometry.Size{W: 1000, H: 1000}
	vp := Viewport{W: 1000, H: 1000}
	e := NewEngine()

	t.Run("hint scaled by display scale", func(t *testing.T) {
		b := corrected("abc", geometry.Box{X0: 0, Y0: 0, X1: 100, Y1: 40}, display)
		b.FontSizeHint = 30
		l := e.Layout([]geometry.DetectedBox{b}, display, Viewport{W: 500, H: 500}, false)
		assert.InDelta(t, 15, l.Primary[0].FontSize, 1e-9)
	})

	t.Run("height fraction for short text", func(t *testing.T) {
		b := corrected("ab", geometry.Box{X0: 0, Y0: 0, X1: 400, Y1: 40}, display)
		l := e.Layout([]geometry.DetectedBox{b}, display, vp, false)
		assert.InDelta(t, 40*DefaultHeightRatio, l.Primary[0].FontSize, 1e-9)
	})

	t.Run("long translation shrinks font", func(t *testing.T) {
		b := corrected("ab", geometry.Box{X0: 0, Y0: 0, X1: 200, Y1: 40}, display)
		b.TranslatedText = strings.Repeat("x", 20)
		l := e.Layout([]geometry.DetectedBox{b}, display, vp, false)
		assert.InDelta(t, 200*DefaultWidthFactor/20, l.Primary[0].FontSize, 1e-9)
	})

	t.Run("floored at minimum legible size", func(t *testing.T) {
		b := corrected("ab", geometry.Box{X0: 0, Y0: 0, X1: 50, Y1: 40}, display)
		b.TranslatedText = strings.Repeat("x", 100)
		l := e.Layout([]geometry.DetectedBox{b}, display, vp, false)
		assert.InDelta(t, DefaultMinFontSize, l.Primary[0].FontSize, 1e-9)
	})
}

func TestLayout_DensityCap(t *testing.T) {
	t.Parallel()

	display := geometry.Size{W: 1000, H: 5000}
	boxes := make([]geometry.DetectedBox, 50)
	for i := range boxes {
		y := float64(i * 100)
		// later boxes are wider, so more salient
		boxes[i] = corrected(fmt.Sprintf("line %02d", i), geometry.Box{X0: 0, Y0: y, X1: float64(10 + i*10), Y1: y + 50}, display)
	}

	e := NewEngine()
	e.MaxPrimary = 8
	l := e.Layout(boxes, display, Viewport{W: 1000, H: 5000}, false)

	require.Len(t, l.Primary, 8)
	require.NotNil(t, l.More)
	assert.Equal(t, 42, l.More.Remaining)
	assert.Len(t, l.More.Indices, 42)
	assert.Len(t, l.Hidden, 42)
	for i, r := range l.Primary {
		assert.Equal(t, 42+i, r.Index)
	}

	all := l.ShowMore()
	assert.Len(t, all.Primary, 50)
	assert.Nil(t, all.More)

	again := e.Layout(boxes, display, Viewport{W: 1000, H: 5000}, true)
	assert.Len(t, again.Primary, 50)
	assert.Nil(t, again.More)
}

func TestLayout_Idempotent(t *testing.T) {
	t.Parallel()

	display := geometry.Size{W: 800, H: 600}
	boxes := []geometry.DetectedBox{
		corrected("one", geometry.Box{X0: 10, Y0: 10, X1: 90, Y1: 40}, display),
		corrected("two", geometry.Box{X0: 100, Y0: 100, X1: 300, Y1: 140}, display),
	}
	e := NewEngine()
	vp := Viewport{W: 400, H: 400}
	assert.Equal(t, e.Layout(boxes, display, vp, false), e.Layout(boxes, display, vp, false))
}

func TestLayout_InvalidInputs(t *testing.T) {
	t.Parallel()

	e := NewEngine()
	assert.Empty(t, e.Layout(nil, geometry.Size{}, Viewport{W: 10, H: 10}, false).Primary)
	assert.Empty(t, e.Layout(nil, geometry.Size{W: 10, H: 10}, Viewport{}, false).Primary)
}

// Package overlay projects corrected text boxes onto a viewport for rendering.
// Everything here is a pure function of its inputs and is meant to be re-run
// on every render, rotation and zoom.
package overlay

import (
	"math"
	"sort"
	"unicode/utf8"

	"github.com/adverant/nexus/phototranslate-worker/internal/geometry"
)

const (
	DefaultMaxPrimary  = 8
	DefaultMinFontSize = 10
	DefaultHeightRatio = 0.75
	DefaultWidthFactor = 1.8
)

// Viewport is the on-screen area the photo is fitted into.
type Viewport struct {
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Rect is one overlay ready to render.
type Rect struct {
	Index    int     `json:"index"`
	Left     float64 `json:"left"`
	Top      float64 `json:"top"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	FontSize float64 `json:"font_size"`
	Text     string  `json:"text"`
	Original string  `json:"original"`
	Salience float64 `json:"salience"`
}

// MoreIndicator is the "show more" affordance for overlays held back by
// density control.
type MoreIndicator struct {
	Remaining int   `json:"remaining"`
	Indices   []int `json:"indices"`
}

// Layout is the result of one layout pass.
type Layout struct {
	Scale   float64        `json:"scale"`
	OffsetX float64        `json:"offset_x"`
	OffsetY float64        `json:"offset_y"`
	Primary []Rect         `json:"primary"`
	Hidden  []Rect         `json:"hidden,omitempty"`
	More    *MoreIndicator `json:"more,omitempty"`
}

// Engine holds the layout tuning.
type Engine struct {
	// MaxPrimary caps overlays shown at once; <= 0 disables the cap.
	MaxPrimary  int
	MinFontSize float64
	// HeightRatio is the share of the rect height used as font size.
	HeightRatio float64
	// WidthFactor scales width/len(text) into a font size ceiling.
	WidthFactor float64
}

// NewEngine returns an engine with default tuning.
func NewEngine() *Engine {
	return &Engine{
		MaxPrimary:  DefaultMaxPrimary,
		MinFontSize: DefaultMinFontSize,
		HeightRatio: DefaultHeightRatio,
		WidthFactor: DefaultWidthFactor,
	}
}

// Fit computes the uniform contain scale and centering offsets.
func Fit(display geometry.Size, vp Viewport) (scale, offsetX, offsetY float64) {
	scale = math.Min(vp.W/display.W, vp.H/display.H)
	offsetX = (vp.W - display.W*scale) / 2
	offsetY = (vp.H - display.H*scale) / 2
	return scale, offsetX, offsetY
}

// Layout projects boxes expressed in display space onto the viewport. With
// showAll false and more boxes than MaxPrimary, only the most salient boxes
// are primary and the rest are listed behind a MoreIndicator.
func (e *Engine) Layout(boxes []geometry.DetectedBox, display geometry.Size, vp Viewport, showAll bool) Layout {
	if !display.Valid() || vp.W <= 0 || vp.H <= 0 {
		return Layout{}
	}

	scale, ox, oy := Fit(display, vp)
	rects := make([]Rect, 0, len(boxes))
	for i, b := range boxes {
		r := Rect{
			Index:    i,
			Left:     b.Box.X0*scale + ox,
			Top:      b.Box.Y0*scale + oy,
			Width:    b.Box.Width() * scale,
			Height:   b.Box.Height() * scale,
			Text:     b.DisplayText(),
			Original: b.Text,
		}
		r.FontSize = e.fontSize(b, r, scale)
		r.Salience = float64(utf8.RuneCountInString(r.Text)) * r.Width * r.Height
		rects = append(rects, r)
	}

	out := Layout{Scale: scale, OffsetX: ox, OffsetY: oy}
	if showAll || e.MaxPrimary <= 0 || len(rects) <= e.MaxPrimary {
		out.Primary = rects
		return out
	}

	ranked := make([]Rect, len(rects))
	copy(ranked, rects)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Salience > ranked[j].Salience })

	primary := ranked[:e.MaxPrimary]
	hidden := ranked[e.MaxPrimary:]
	sortByIndex(primary)
	sortByIndex(hidden)

	indices := make([]int, len(hidden))
	for i, r := range hidden {
		indices[i] = r.Index
	}

	out.Primary = primary
	out.Hidden = hidden
	out.More = &MoreIndicator{Remaining: len(hidden), Indices: indices}
	return out
}

// ShowMore expands a capped layout so every overlay is primary.
func (l Layout) ShowMore() Layout {
	if l.More == nil {
		return l
	}
	all := make([]Rect, 0, len(l.Primary)+len(l.Hidden))
	all = append(all, l.Primary...)
	all = append(all, l.Hidden...)
	sortByIndex(all)
	return Layout{Scale: l.Scale, OffsetX: l.OffsetX, OffsetY: l.OffsetY, Primary: all}
}

func (e *Engine) fontSize(b geometry.DetectedBox, r Rect, scale float64) float64 {
	var size float64
	if b.FontSizeHint > 0 {
		size = b.FontSizeHint * scale
	} else {
		size = r.Height * e.HeightRatio
		if n := utf8.RuneCountInString(r.Text); n > 0 && e.WidthFactor > 0 {
			size = math.Min(size, r.Width*e.WidthFactor/float64(n))
		}
	}
	return math.Max(size, e.MinFontSize)
}

func sortByIndex(rs []Rect) {
	sort.Slice(rs, func(i, j int) bool { return rs[i].Index < rs[j].Index })
}

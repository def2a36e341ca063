package ocr

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"

	"github.com/adverant/nexus/phototranslate-worker/internal/geometry"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Normalize decodes data and, when its longest side exceeds maxDimension,
// downscales it with Catmull-Rom and re-encodes it as PNG. It returns the
// bytes to analyze and their pixel size. maxDimension <= 0 disables scaling.
func Normalize(data []byte, maxDimension int) ([]byte, geometry.Size, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, geometry.Size{}, fmt.Errorf("decode image config: %w", err)
	}

	w, h := cfg.Width, cfg.Height
	longest := w
	if h > longest {
		longest = h
	}
	if maxDimension <= 0 || longest <= maxDimension {
		return data, geometry.NewSize(w, h), nil
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, geometry.Size{}, fmt.Errorf("decode image: %w", err)
	}

	ratio := float64(maxDimension) / float64(longest)
	tw := max(1, int(float64(w)*ratio+0.5))
	th := max(1, int(float64(h)*ratio+0.5))

	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, geometry.Size{}, fmt.Errorf("encode scaled image: %w", err)
	}
	return buf.Bytes(), geometry.NewSize(tw, th), nil
}

package geometry

import (
	"gonum.org/v1/gonum/mat"
)

// Transform is a 2D affine transform in homogeneous coordinates.
type Transform struct {
	m *mat.Dense
}

// Identity returns the identity transform.
func Identity() Transform {
	return Transform{m: mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	})}
}

// Scale returns an independent per-axis scale.
func Scale(sx, sy float64) Transform {
	return Transform{m: mat.NewDense(3, 3, []float64{
		sx, 0, 0,
		0, sy, 0,
		0, 0, 1,
	})}
}

// RotateClockwise90 maps (x, y) in a frame of height h to (h - y, x).
func RotateClockwise90(h float64) Transform {
	return Transform{m: mat.NewDense(3, 3, []float64{
		0, -1, h,
		1, 0, 0,
		0, 0, 1,
	})}
}

// Then returns the transform that applies t first and next second.
func (t Transform) Then(next Transform) Transform {
	var out mat.Dense
	out.Mul(next.m, t.m)
	return Transform{m: &out}
}

// Apply maps a single point.
func (t Transform) Apply(x, y float64) (float64, float64) {
	var out mat.VecDense
	out.MulVec(t.m, mat.NewVecDense(3, []float64{x, y, 1}))
	return out.AtVec(0), out.AtVec(1)
}

// ApplyBox maps both corners and re-normalizes the result.
func (t Transform) ApplyBox(b Box) Box {
	x0, y0 := t.Apply(b.X0, b.Y0)
	x1, y1 := t.Apply(b.X1, b.Y1)
	return Box{X0: x0, Y0: y0, X1: x1, Y1: y1}.Normalize()
}

// Plan is the transform between two image spaces plus the vertical scale used
// for font hints.
type Plan struct {
	Transform           Transform
	ScaleX              float64
	ScaleY              float64
	OrientationMismatch bool
	NoOp                bool
}

// PlanFor computes the mapping from ocr space onto display space. Both sizes
// must be Valid.
func PlanFor(ocr, display Size) Plan {
	if ocr == display {
		return Plan{Transform: Identity(), ScaleX: 1, ScaleY: 1, NoOp: true}
	}

	if ocr.Landscape() != display.Landscape() {
		sx := display.W / ocr.H
		sy := display.H / ocr.W
		return Plan{
			Transform:           RotateClockwise90(ocr.H).Then(Scale(sx, sy)),
			ScaleX:              sx,
			ScaleY:              sy,
			OrientationMismatch: true,
		}
	}

	sx := display.W / ocr.W
	sy := display.H / ocr.H
	return Plan{Transform: Scale(sx, sy), ScaleX: sx, ScaleY: sy}
}

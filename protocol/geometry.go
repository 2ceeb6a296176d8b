package protocol

import (
	"fmt"
	"math"
)

// Point is a location on the tile plane.
type Point struct {
	X float64 `cbor:"1,keyasint"`
	Y float64 `cbor:"2,keyasint"`
}

// Rect is an axis-aligned rectangle of the tile plane.
type Rect struct {
	MinX float64 `cbor:"1,keyasint"`
	MinY float64 `cbor:"2,keyasint"`
	MaxX float64 `cbor:"3,keyasint"`
	MaxY float64 `cbor:"4,keyasint"`
}

// Validate returns an error if the Rect is not well-formed.
func (r Rect) Validate() error {
	for _, v := range []float64{r.MinX, r.MinY, r.MaxX, r.MaxY} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return NewError(NumericalError, "non-finite coordinate (%v)", r)
		}
	}
	if r.MinX > r.MaxX || r.MinY > r.MaxY {
		return NewError(InvalidDimension, "expected Min <= Max (have %v)", r)
	}
	return nil
}

// Corners returns the four corners of the Rect, counter-clockwise from (MinX, MinY).
func (r Rect) Corners() [4]Point {
	return [4]Point{
		{r.MinX, r.MinY},
		{r.MaxX, r.MinY},
		{r.MaxX, r.MaxY},
		{r.MinX, r.MaxY},
	}
}

// Width of the Rect.
func (r Rect) Width() float64 { return r.MaxX - r.MinX }

// Height of the Rect.
func (r Rect) Height() float64 { return r.MaxY - r.MinY }

// String returns a debugging representation of the Rect.
func (r Rect) String() string {
	return fmt.Sprintf("[(%g, %g), (%g, %g)]", r.MinX, r.MinY, r.MaxX, r.MaxY)
}

// BoundingRect returns the smallest Rect containing all |pts|.
func BoundingRect(pts ...Point) Rect {
	if len(pts) == 0 {
		return Rect{}
	}
	var r = Rect{MinX: pts[0].X, MinY: pts[0].Y, MaxX: pts[0].X, MaxY: pts[0].Y}
	for _, p := range pts[1:] {
		r.MinX = math.Min(r.MinX, p.X)
		r.MinY = math.Min(r.MinY, p.Y)
		r.MaxX = math.Max(r.MaxX, p.X)
		r.MaxY = math.Max(r.MaxY, p.Y)
	}
	return r
}

// TransformParams is a composed scale, rotation (radians, about the
// origin), and translation of the tile plane. Transforms apply in the
// order scale, then rotate, then translate.
type TransformParams struct {
	ScaleX     float64 `cbor:"1,keyasint"`
	ScaleY     float64 `cbor:"2,keyasint"`
	Rotation   float64 `cbor:"3,keyasint"`
	TranslateX float64 `cbor:"4,keyasint"`
	TranslateY float64 `cbor:"5,keyasint"`
}

// IdentityTransform returns TransformParams which leave every Point unchanged.
func IdentityTransform() TransformParams { return TransformParams{ScaleX: 1, ScaleY: 1} }

// Validate returns an error if the TransformParams are not well-formed.
func (t TransformParams) Validate() error {
	for _, v := range []float64{t.ScaleX, t.ScaleY, t.Rotation, t.TranslateX, t.TranslateY} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return NewError(NumericalError, "non-finite transform parameter (%+v)", t)
		}
	}
	if t.ScaleX == 0 || t.ScaleY == 0 {
		return NewError(MatrixError, "singular scale (%g, %g)", t.ScaleX, t.ScaleY)
	}
	return nil
}

// Apply transforms the Point: scale, then rotate, then translate.
func (t TransformParams) Apply(p Point) Point {
	var x, y = p.X * t.ScaleX, p.Y * t.ScaleY
	var sin, cos = math.Sincos(t.Rotation)

	return Point{
		X: x*cos - y*sin + t.TranslateX,
		Y: x*sin + y*cos + t.TranslateY,
	}
}

// ApplyRect transforms each corner of |r|, and returns the axis-aligned
// bounding Rect of the transformed corners.
func (t TransformParams) ApplyRect(r Rect) Rect {
	var c = r.Corners()
	for i := range c {
		c[i] = t.Apply(c[i])
	}
	return BoundingRect(c[:]...)
}

// Compose returns the accumulation of |next| onto |t|: scale factors
// multiply, rotations add modulo 2π, and translations add.
func (t TransformParams) Compose(next TransformParams) TransformParams {
	return TransformParams{
		ScaleX:     t.ScaleX * next.ScaleX,
		ScaleY:     t.ScaleY * next.ScaleY,
		Rotation:   NormalizeAngle(t.Rotation + next.Rotation),
		TranslateX: t.TranslateX + next.TranslateX,
		TranslateY: t.TranslateY + next.TranslateY,
	}
}

// NormalizeAngle maps |a| into [0, 2π).
func NormalizeAngle(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a
}

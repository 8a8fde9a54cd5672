// Package images - Image geometry and decoding utilities.
package images

import (
	"fmt"

	"github.com/chewxy/math32"
)

// Rect is an axis-aligned bounding box in pixel coordinates.
//
// (X1, Y1) is the top-left corner and (X2, Y2) the bottom-right corner. Boxes coming
// out of a detector are not guaranteed to be well formed, so a Rect with X2 <= X1 or
// Y2 <= Y1 is legal and simply has zero area.
type Rect struct {
	X1, Y1, X2, Y2 float32
}

// Width returns the horizontal extent of the box, or 0 for a degenerate box.
func (r Rect) Width() float32 {
	return math32.Max(0, r.X2-r.X1)
}

// Height returns the vertical extent of the box, or 0 for a degenerate box.
func (r Rect) Height() float32 {
	return math32.Max(0, r.Y2-r.Y1)
}

// Area returns the area of the box, or 0 for a degenerate box.
func (r Rect) Area() float32 {
	return r.Width() * r.Height()
}

// Scale divides every coordinate by factor, mapping a box from network space back
// into the coordinate space of the original image.
func (r Rect) Scale(factor float32) Rect {
	return Rect{X1: r.X1 / factor, Y1: r.Y1 / factor, X2: r.X2 / factor, Y2: r.Y2 / factor}
}

// Clip clamps the box into [0, width-1] x [0, height-1].
func (r Rect) Clip(width, height int) Rect {
	maxX := float32(width - 1)
	maxY := float32(height - 1)
	return Rect{
		X1: math32.Max(0, math32.Min(r.X1, maxX)),
		Y1: math32.Max(0, math32.Min(r.Y1, maxY)),
		X2: math32.Max(0, math32.Min(r.X2, maxX)),
		Y2: math32.Max(0, math32.Min(r.Y2, maxY)),
	}
}

// String formats the box as (x1, y1)-(x2, y2).
func (r Rect) String() string {
	return fmt.Sprintf("(%.1f, %.1f)-(%.1f, %.1f)", r.X1, r.Y1, r.X2, r.Y2)
}

// CalculateIoU measures how much two boxes coincide (Intersection over Union).
//
// See also:
//   - http://ronny.rest/tutorials/module/localization_001/iou
//
// IoU is defined as:
//
//	IoU = Area of Intersection / Area of Union
//
//	- 1.0 means the boxes are identical.
//	- 0.0 means the boxes don't overlap at all.
//
// **1. Intersection**
//
//	The top-left corner of the overlap is the maximum of the two top-left corners and
//	the bottom-right corner is the minimum of the two bottom-right corners. When the
//	resulting width or height is zero or negative the boxes do not overlap and 0 is
//	returned immediately.
//
// **2. Union**
//
//	Area(Union) = Area(A) + Area(B) - Area(Intersection)
//
// **3. Degenerate boxes**
//
//	A zero-area box has no meaningful overlap with anything. Either box being
//	degenerate yields 0, which also keeps the division away from a zero union.
//
// Arguments:
//   - r: The first box.
//   - o: The other box to compare against.
//
// Returns:
//   - float32: A value between 0.0 and 1.0 representing the IoU score.
//
// Example Usage:
// ```go
//
//	a := Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}
//	b := Rect{X1: 5, Y1: 5, X2: 15, Y2: 15}
//
//	fmt.Printf("%f\n", CalculateIoU(a, b)) // intersection 25, union 175: 0.142857
//
// ```
func CalculateIoU(r, o Rect) float32 {
	areaR := r.Area()
	areaO := o.Area()
	if areaR <= 0 || areaO <= 0 {
		return 0
	}

	interW := math32.Min(r.X2, o.X2) - math32.Max(r.X1, o.X1)
	interH := math32.Min(r.Y2, o.Y2) - math32.Max(r.Y1, o.Y1)
	if interW <= 0 || interH <= 0 {
		return 0
	}
	interArea := interW * interH

	unionArea := areaR + areaO - interArea
	if unionArea <= 0 {
		return 0
	}

	return interArea / unionArea
}

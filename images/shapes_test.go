package images

import (
	"image"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestIoU_Correctness validates the IoU implementation against known test cases.
func TestIoU_Correctness(t *testing.T) {
	tests := []struct {
		name     string
		r1       Rect
		r2       Rect
		expected float32
		epsilon  float32
	}{
		{
			name:     "Identical rectangles",
			r1:       Rect{0, 0, 100, 100},
			r2:       Rect{0, 0, 100, 100},
			expected: 1.0,
			epsilon:  0.0001,
		},
		{
			name:     "No overlap",
			r1:       Rect{0, 0, 100, 100},
			r2:       Rect{200, 200, 300, 300},
			expected: 0.0,
			epsilon:  0.0001,
		},
		{
			name:     "Touching edges",
			r1:       Rect{0, 0, 100, 100},
			r2:       Rect{100, 0, 200, 100},
			expected: 0.0,
			epsilon:  0.0001,
		},
		{
			name:     "Quarter overlap",
			r1:       Rect{0, 0, 10, 10},
			r2:       Rect{5, 5, 15, 15},
			expected: 25.0 / 175.0, // intersection=25, union=100+100-25=175
			epsilon:  0.0001,
		},
		{
			name:     "Small overlap",
			r1:       Rect{0, 0, 100, 100},
			r2:       Rect{90, 90, 190, 190},
			expected: 100.0 / 19900.0,
			epsilon:  0.0001,
		},
		{
			name:     "One inside other",
			r1:       Rect{0, 0, 100, 100},
			r2:       Rect{25, 25, 75, 75},
			expected: 0.25,
			epsilon:  0.0001,
		},
		{
			name:     "Fractional coordinates",
			r1:       Rect{0.5, 0.5, 2.5, 2.5},
			r2:       Rect{1.5, 1.5, 3.5, 3.5},
			expected: 1.0 / 7.0,
			epsilon:  0.0001,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CalculateIoU(tt.r1, tt.r2)
			assert.InDelta(t, tt.expected, result, float64(tt.epsilon))

			// IoU(A, B) must equal IoU(B, A).
			assert.InDelta(t, result, CalculateIoU(tt.r2, tt.r1), float64(tt.epsilon))
		})
	}
}

// TestIoU_vs_ImageRectangle compares integral boxes against image.Rectangle.
func TestIoU_vs_ImageRectangle(t *testing.T) {
	testCases := []struct {
		name string
		r1   image.Rectangle
		r2   image.Rectangle
	}{
		{"No overlap", image.Rect(0, 0, 100, 100), image.Rect(200, 200, 300, 300)},
		{"Partial overlap", image.Rect(0, 0, 100, 100), image.Rect(50, 50, 150, 150)},
		{"Full overlap", image.Rect(50, 50, 150, 150), image.Rect(50, 50, 150, 150)},
		{"One inside other", image.Rect(0, 0, 100, 100), image.Rect(25, 25, 75, 75)},
		{"Large boxes", image.Rect(0, 0, 1920, 1080), image.Rect(960, 540, 1920, 1080)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			custom := CalculateIoU(fromRectangle(tc.r1), fromRectangle(tc.r2))
			assert.InDelta(t, imageRectangleIoU(tc.r1, tc.r2), custom, 0.0001)
		})
	}
}

func fromRectangle(r image.Rectangle) Rect {
	return Rect{X1: float32(r.Min.X), Y1: float32(r.Min.Y), X2: float32(r.Max.X), Y2: float32(r.Max.Y)}
}

// imageRectangleIoU implements IoU using the standard library image.Rectangle.
func imageRectangleIoU(r1, r2 image.Rectangle) float32 {
	intersect := r1.Intersect(r2)
	if intersect.Empty() {
		return 0.0
	}

	intersectArea := intersect.Dx() * intersect.Dy()
	union := r1.Dx()*r1.Dy() + r2.Dx()*r2.Dy() - intersectArea

	return float32(intersectArea) / float32(union)
}

// TestIoU_EdgeCases tests degenerate and boundary boxes.
func TestIoU_EdgeCases(t *testing.T) {
	tests := []struct {
		name     string
		r1       Rect
		r2       Rect
		expected float32
	}{
		{"Zero area rectangle 1", Rect{0, 0, 0, 0}, Rect{0, 0, 100, 100}, 0},
		{"Zero area rectangle 2", Rect{0, 0, 100, 100}, Rect{50, 50, 50, 50}, 0},
		{"Both zero area and identical", Rect{10, 10, 10, 10}, Rect{10, 10, 10, 10}, 0},
		{"Inverted box", Rect{100, 100, 0, 0}, Rect{0, 0, 100, 100}, 0},
		{"Negative coordinates", Rect{-100, -100, 0, 0}, Rect{-50, -50, 50, 50}, 2500.0 / 17500.0},
		{"Single pixel", Rect{0, 0, 1, 1}, Rect{0, 0, 1, 1}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CalculateIoU(tt.r1, tt.r2)
			assert.False(t, math.IsNaN(float64(result)))
			assert.InDelta(t, tt.expected, result, 0.0001)
			assert.InDelta(t, tt.expected, CalculateIoU(tt.r2, tt.r1), 0.0001)
		})
	}
}

func TestRect_ScaleAndClip(t *testing.T) {
	r := Rect{X1: -10, Y1: 20, X2: 700, Y2: 300}

	clipped := r.Clip(600, 400)
	assert.Equal(t, Rect{X1: 0, Y1: 20, X2: 599, Y2: 300}, clipped)

	scaled := Rect{X1: 10, Y1: 20, X2: 30, Y2: 40}.Scale(2)
	assert.Equal(t, Rect{X1: 5, Y1: 10, X2: 15, Y2: 20}, scaled)

	assert.Equal(t, float32(0), Rect{X1: 5, Y1: 5, X2: 1, Y2: 9}.Area())
	assert.Equal(t, float32(200), Rect{X1: 0, Y1: 0, X2: 10, Y2: 20}.Area())
}

// BenchmarkIoU_PartialOverlap exercises the full calculation path.
func BenchmarkIoU_PartialOverlap(b *testing.B) {
	rect1 := Rect{X1: 0, Y1: 0, X2: 100, Y2: 100}
	rect2 := Rect{X1: 50, Y1: 50, X2: 150, Y2: 150}

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = CalculateIoU(rect1, rect2)
	}
}

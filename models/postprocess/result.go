// Package postprocess - Postprocessing of raw detector outputs.
package postprocess

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/nvr-ai/go-batchdet/errdefs"
	"github.com/nvr-ai/go-batchdet/images"
	"github.com/pkg/errors"
)

// Detection represents a single detection result.
type Detection struct {
	// The bounding box of the detection, in original image coordinates.
	Box images.Rect `json:"box"`
	// The confidence score of the detection.
	Score float32 `json:"score"`
	// The class index of the detection. 0 is the background class.
	Class int `json:"class"`
}

// String formats the detection for logs.
func (d Detection) String() string {
	return fmt.Sprintf("class=%d score=%.3f box=%s", d.Class, d.Score, d.Box)
}

// RawDetectionSet is the raw score/box output of the detector for one image.
//
// Scores is row-major [NumBoxes][NumClasses]. Boxes is row-major [NumBoxes][BoxWidth]
// where BoxWidth is 4*NumClasses for per-class regression, or 4 (one shared box) or
// 8 (background + foreground box) for class-agnostic regression.
type RawDetectionSet struct {
	NumBoxes   int
	NumClasses int
	BoxWidth   int
	Scores     []float32
	Boxes      []float32
}

// Validate checks that the flat arrays match the declared dimensions and hold only
// finite values.
func (r RawDetectionSet) Validate() error {
	if r.NumBoxes < 0 || r.NumClasses < 1 {
		return errors.Wrapf(errdefs.ErrInvalidInput, "raw detections: %d boxes, %d classes", r.NumBoxes, r.NumClasses)
	}
	if r.BoxWidth != 4 && r.BoxWidth != 8 && r.BoxWidth != 4*r.NumClasses {
		return errors.Wrapf(errdefs.ErrInvalidInput, "raw detections: box width %d for %d classes", r.BoxWidth, r.NumClasses)
	}
	if len(r.Scores) != r.NumBoxes*r.NumClasses {
		return errors.Wrapf(errdefs.ErrInvalidInput, "raw detections: %d scores, want %d", len(r.Scores), r.NumBoxes*r.NumClasses)
	}
	if len(r.Boxes) != r.NumBoxes*r.BoxWidth {
		return errors.Wrapf(errdefs.ErrInvalidInput, "raw detections: %d box values, want %d", len(r.Boxes), r.NumBoxes*r.BoxWidth)
	}
	if i, ok := firstNonFinite(r.Scores); ok {
		return errors.Wrapf(errdefs.ErrInvalidInput, "raw detections: score %v for box %d class %d",
			r.Scores[i], i/r.NumClasses, i%r.NumClasses)
	}
	if i, ok := firstNonFinite(r.Boxes); ok {
		return errors.Wrapf(errdefs.ErrInvalidInput, "raw detections: box value %v in row %d", r.Boxes[i], i/r.BoxWidth)
	}
	return nil
}

func firstNonFinite(values []float32) (int, bool) {
	for i, v := range values {
		if math32.IsNaN(v) || math32.IsInf(v, 0) {
			return i, true
		}
	}
	return 0, false
}

// Score returns the score of box i for class j.
func (r RawDetectionSet) Score(i, j int) float32 {
	return r.Scores[i*r.NumClasses+j]
}

// Box returns the 4 coordinates starting at column offset of box i.
func (r RawDetectionSet) Box(i, offset int) images.Rect {
	row := r.Boxes[i*r.BoxWidth+offset : i*r.BoxWidth+offset+4]
	return images.Rect{X1: row[0], Y1: row[1], X2: row[2], Y2: row[3]}
}

// agnosticOffset is the column of the shared box in class-agnostic mode. With
// background + foreground regression the foreground box is the second one.
func (r RawDetectionSet) agnosticOffset() int {
	if r.BoxWidth == 8 {
		return 4
	}
	return 0
}

// boxOffset returns the column offset of class j's box.
func (r RawDetectionSet) boxOffset(class int, classAgnostic bool) (int, error) {
	if classAgnostic {
		if r.BoxWidth != 4 && r.BoxWidth != 8 {
			return 0, errors.Wrapf(errdefs.ErrInvalidInput, "class-agnostic mode needs 4 or 8 box columns, got %d", r.BoxWidth)
		}
		return r.agnosticOffset(), nil
	}
	if r.BoxWidth != 4*r.NumClasses {
		return 0, errors.Wrapf(errdefs.ErrInvalidInput, "per-class mode needs %d box columns, got %d", 4*r.NumClasses, r.BoxWidth)
	}
	return 4 * class, nil
}

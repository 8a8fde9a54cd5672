// Package postprocess - provides Non-Maximum Suppression for detection results.
package postprocess

import (
	"sort"

	"github.com/chewxy/math32"
	"github.com/nvr-ai/go-batchdet/errdefs"
	"github.com/nvr-ai/go-batchdet/images"
	"github.com/pkg/errors"
)

// NMSConfig defines parameters for per-class Non-Maximum Suppression.
type NMSConfig struct {
	// ClassCount is the number of classes including background. Classes
	// 1..ClassCount-1 are processed. 0 means every class in the raw set.
	ClassCount int `json:"class_count" yaml:"class_count"`
	// ClassAgnostic selects the shared box for every class instead of the
	// per-class box slice.
	ClassAgnostic bool `json:"class_agnostic" yaml:"class_agnostic"`
	// IoUThreshold suppresses boxes whose overlap with a kept box is greater than this.
	IoUThreshold float32 `json:"iou_threshold" yaml:"iou_threshold"`
	// ScoreThreshold keeps only survivors scoring strictly above this.
	ScoreThreshold float32 `json:"score_threshold" yaml:"score_threshold"`
}

// Validate checks that both thresholds lie in [0, 1].
//
// Returns:
//   - error: errdefs.ErrInvalidConfig for an out-of-range (or NaN) threshold.
func (c NMSConfig) Validate() error {
	if !inUnitRange(c.IoUThreshold) {
		return errors.Wrapf(errdefs.ErrInvalidConfig, "iou threshold %v outside [0, 1]", c.IoUThreshold)
	}
	if !inUnitRange(c.ScoreThreshold) {
		return errors.Wrapf(errdefs.ErrInvalidConfig, "score threshold %v outside [0, 1]", c.ScoreThreshold)
	}
	if c.ClassCount < 0 {
		return errors.Wrapf(errdefs.ErrInvalidConfig, "class count %d is negative", c.ClassCount)
	}
	return nil
}

func inUnitRange(v float32) bool {
	return v >= 0 && v <= 1
}

// Postprocess turns one image's raw scores and boxes into a de-duplicated detection list.
//
// For every foreground class (index 0 is background and skipped) the candidates are
// ordered by descending score, greedily suppressed, and then filtered by the score
// threshold. Survivors are concatenated class by class in ascending class order.
//
// Arguments:
//   - raw: The raw detector output for one image.
//   - config: Class selection and thresholds.
//
// Returns:
//   - []Detection: The surviving detections. Empty (non-nil) when nothing survives.
//   - error: errdefs.ErrInvalidConfig for bad thresholds, errdefs.ErrInvalidInput for a
//     malformed raw set or a class count larger than the raw set provides.
//
// @example
//
//	dets, err := Postprocess(raw, NMSConfig{ClassCount: 31, ClassAgnostic: true, IoUThreshold: 0.3, ScoreThreshold: 0.7})
func Postprocess(raw RawDetectionSet, config NMSConfig) ([]Detection, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if err := raw.Validate(); err != nil {
		return nil, err
	}

	classCount := config.ClassCount
	if classCount == 0 {
		classCount = raw.NumClasses
	}
	if classCount > raw.NumClasses {
		return nil, errors.Wrapf(errdefs.ErrInvalidInput,
			"class count %d exceeds the %d classes in the raw output", classCount, raw.NumClasses)
	}

	out := make([]Detection, 0)
	candidates := make([]Detection, 0, raw.NumBoxes)
	for class := 1; class < classCount; class++ {
		offset, err := raw.boxOffset(class, config.ClassAgnostic)
		if err != nil {
			return nil, err
		}

		candidates = candidates[:0]
		for i := 0; i < raw.NumBoxes; i++ {
			candidates = append(candidates, Detection{
				Box:   raw.Box(i, offset),
				Score: raw.Score(i, class),
				Class: class,
			})
		}

		SortByScore(candidates)
		for _, d := range ApplyGreedyNMS(candidates, config.IoUThreshold) {
			if d.Score > config.ScoreThreshold {
				out = append(out, d)
			}
		}
	}

	return out, nil
}

// PostprocessBatch applies Postprocess to every image of a batch.
//
// Arguments:
//   - raws: One raw set per image, in batch order.
//   - config: Class selection and thresholds.
//
// Returns:
//   - [][]Detection: One detection list per image, in the same order.
//   - error: The first error encountered.
func PostprocessBatch(raws []RawDetectionSet, config NMSConfig) ([][]Detection, error) {
	out := make([][]Detection, len(raws))
	for i, raw := range raws {
		dets, err := Postprocess(raw, config)
		if err != nil {
			return nil, errors.Wrapf(err, "image %d", i)
		}
		out[i] = dets
	}
	return out, nil
}

// SortByScore orders detections by descending score in place. Equal scores keep their
// original relative order, so the first-seen box wins ties during suppression. NaN
// scores sort last.
func SortByScore(detections []Detection) {
	sort.SliceStable(detections, func(i, j int) bool {
		a, b := detections[i].Score, detections[j].Score
		if math32.IsNaN(b) {
			return !math32.IsNaN(a)
		}
		return a > b
	})
}

// ApplyGreedyNMS performs standard greedy Non-Maximum Suppression.
//
// The highest-scoring remaining detection is kept and every remaining detection whose
// IoU with it is greater than iouThreshold is discarded, until no candidates remain.
// Class is not considered; callers group by class first.
//
// Arguments:
//   - detections: Slice of detections sorted by descending confidence.
//   - iouThreshold: IoU threshold above which overlapping boxes are suppressed.
//
// Returns:
//   - Filtered slice of detections in emission order.
func ApplyGreedyNMS(detections []Detection, iouThreshold float32) []Detection {
	n := len(detections)
	if n == 0 {
		return nil
	}

	filtered := make([]Detection, 0, n)
	used := make([]bool, n)

	for i := 0; i < n; i++ {
		if used[i] {
			continue
		}

		anchor := detections[i]
		filtered = append(filtered, anchor)
		used[i] = true

		for j := i + 1; j < n; j++ {
			if used[j] {
				continue
			}
			if images.CalculateIoU(anchor.Box, detections[j].Box) > iouThreshold {
				used[j] = true
			}
		}
	}

	return filtered
}

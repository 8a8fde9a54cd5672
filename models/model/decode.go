package model

import (
	"github.com/nvr-ai/go-batchdet/errdefs"
	"github.com/nvr-ai/go-batchdet/images"
	"github.com/nvr-ai/go-batchdet/models/postprocess"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// DecodeOutputs splits (N, R, C) scores and (N, R, W) boxes into one RawDetectionSet
// per image.
//
// Boxes are expected in the coordinate space of the padded network input. Each box is
// clipped to its image's geometry and divided by the image's scale, so the returned
// sets carry boxes in original image coordinates. A rank-2 output is accepted for a
// single-image batch.
//
// Arguments:
//   - scores: The class score output.
//   - boxes: The box output.
//   - geometry: One geometry record per image of the batch.
//
// Returns:
//   - []postprocess.RawDetectionSet: One raw set per image, in batch order.
//   - error: errdefs.ErrInvalidInput when the outputs disagree with each other or with
//     the batch size.
func DecodeOutputs(scores, boxes *tensor.Dense, geometry []images.Geometry) ([]postprocess.RawDetectionSet, error) {
	n := len(geometry)
	scoreData, scoreShape, err := flatOutput("scores", scores, n)
	if err != nil {
		return nil, err
	}
	boxData, boxShape, err := flatOutput("boxes", boxes, n)
	if err != nil {
		return nil, err
	}
	if scoreShape[1] != boxShape[1] {
		return nil, errors.Wrapf(errdefs.ErrInvalidInput,
			"scores have %d proposals per image, boxes have %d", scoreShape[1], boxShape[1])
	}

	numBoxes, numClasses, boxWidth := scoreShape[1], scoreShape[2], boxShape[2]
	if boxWidth%4 != 0 {
		return nil, errors.Wrapf(errdefs.ErrInvalidInput, "box output width %d is not a multiple of 4", boxWidth)
	}

	out := make([]postprocess.RawDetectionSet, n)
	for i, g := range geometry {
		if err := g.Validate(); err != nil {
			return nil, errors.Wrapf(err, "image %d", i)
		}

		raw := postprocess.RawDetectionSet{
			NumBoxes:   numBoxes,
			NumClasses: numClasses,
			BoxWidth:   boxWidth,
			Scores:     make([]float32, numBoxes*numClasses),
			Boxes:      make([]float32, numBoxes*boxWidth),
		}
		copy(raw.Scores, scoreData[i*numBoxes*numClasses:])

		src := boxData[i*numBoxes*boxWidth : (i+1)*numBoxes*boxWidth]
		for k := 0; k+4 <= len(src); k += 4 {
			r := images.Rect{X1: src[k], Y1: src[k+1], X2: src[k+2], Y2: src[k+3]}
			r = r.Clip(g.Width, g.Height).Scale(g.Scale)
			raw.Boxes[k], raw.Boxes[k+1], raw.Boxes[k+2], raw.Boxes[k+3] = r.X1, r.Y1, r.X2, r.Y2
		}

		if err := raw.Validate(); err != nil {
			return nil, errors.Wrapf(err, "image %d", i)
		}
		out[i] = raw
	}
	return out, nil
}

// flatOutput returns the float32 backing of t and its shape normalized to (n, R, K).
func flatOutput(name string, t *tensor.Dense, n int) ([]float32, [3]int, error) {
	var shape [3]int
	if t == nil {
		return nil, shape, errors.Wrapf(errdefs.ErrInvalidInput, "%s output is missing", name)
	}
	if t.Dtype() != tensor.Float32 {
		return nil, shape, errors.Wrapf(errdefs.ErrInvalidInput, "%s output dtype %v, want float32", name, t.Dtype())
	}

	dims := t.Shape()
	switch {
	case len(dims) == 3:
		shape = [3]int{dims[0], dims[1], dims[2]}
	case len(dims) == 2 && n == 1:
		shape = [3]int{1, dims[0], dims[1]}
	default:
		return nil, shape, errors.Wrapf(errdefs.ErrInvalidInput, "%s output shape %v for a batch of %d", name, dims, n)
	}
	if shape[0] != n {
		return nil, shape, errors.Wrapf(errdefs.ErrInvalidInput, "%s output holds %d images, batch has %d", name, shape[0], n)
	}

	data, ok := t.Data().([]float32)
	if !ok || len(data) != shape[0]*shape[1]*shape[2] {
		return nil, shape, errors.Wrapf(errdefs.ErrInvalidInput, "%s output backing does not match shape %v", name, dims)
	}
	return data, shape, nil
}

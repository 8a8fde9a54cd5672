// Package inference - Runs batches through a detector and times the call.
package inference

import (
	"context"

	"github.com/nvr-ai/go-batchdet/images"
	"github.com/nvr-ai/go-batchdet/models/postprocess"
	"gorgonia.org/tensor"
)

const (
	// InputData keys the stacked (N, C, H, W) image tensor.
	InputData = "data"
	// InputImageInfo keys the (N, 3) [height, width, scale] tensor.
	InputImageInfo = "im_info"
)

// Inputs are the named tensors and per-image metadata of one batch.
type Inputs struct {
	// Tensors keyed by InputData and InputImageInfo.
	Tensors map[string]*tensor.Dense
	// Scales holds one resize factor per image.
	Scales []float32
	// Geometry holds one geometry record per image.
	Geometry []images.Geometry
}

// Len returns the number of images described by the inputs.
func (in Inputs) Len() int {
	return len(in.Geometry)
}

// Predictor runs a detector on a batch and returns one raw detection set per image.
//
// Implementations are opaque: the pipeline never looks inside the network. A single
// Predict call covers the whole batch.
type Predictor interface {
	Predict(ctx context.Context, inputs Inputs) ([]postprocess.RawDetectionSet, error)
	// MaxBatch is the largest batch Predict accepts. 0 means unbounded.
	MaxBatch() int
	Close() error
}

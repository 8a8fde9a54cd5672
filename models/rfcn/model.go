// Package rfcn - R-FCN video object detector (ImageNet VID).
package rfcn

import (
	"github.com/nvr-ai/go-batchdet/images"
	"github.com/nvr-ai/go-batchdet/models/model"
	"github.com/nvr-ai/go-batchdet/models/model/preprocess"
	"github.com/nvr-ai/go-batchdet/models/postprocess"
	"gorgonia.org/tensor"
)

const (
	// InputData is the name of the stacked image input.
	InputData = "data"
	// InputImageInfo is the name of the (N, 3) [height, width, scale] input.
	InputImageInfo = "im_info"
	// OutputScores is the name of the per-proposal class probability output.
	OutputScores = "cls_prob"
	// OutputBoxes is the name of the regressed box output.
	OutputBoxes = "bbox_pred"

	// DefaultMaxBatch matches the batch size the VID export was traced with.
	DefaultMaxBatch = 10
)

// RFCN is the instance of the R-FCN model.
//
// The exported graph emits softmax probabilities over 31 classes and class-agnostic
// box regression with background and foreground columns (8 values per proposal).
type RFCN struct {
	options model.Options
}

// NewModel creates a new model.
//
// Arguments:
//   - args: The arguments for creating a new model.
//
// Returns:
//   - The model.
func NewModel(args model.NewModelArgs) (*RFCN, error) {
	maxBatch := args.MaxBatch
	if maxBatch == 0 {
		maxBatch = DefaultMaxBatch
	}
	return &RFCN{
		options: model.Options{
			Name:          model.ModelNameRFCN,
			Family:        model.ModelFamilyVID,
			Path:          args.Path,
			Inputs:        []string{InputData, InputImageInfo},
			Outputs:       []string{OutputScores, OutputBoxes},
			NumClasses:    model.VIDClasses.Len(),
			ClassAgnostic: true,
			MaxBatch:      maxBatch,
			Activation:    model.ActivationNone,
			Preprocess:    preprocess.GetRFCNConfig(),
		},
	}, nil
}

// Options returns the options for the R-FCN model.
func (m *RFCN) Options() model.Options {
	return m.options
}

// Classes returns the VID label set.
func (m *RFCN) Classes() *model.ClassSet {
	return model.VIDClasses
}

// Decode splits the batched outputs into per-image raw detection sets.
func (m *RFCN) Decode(scores, boxes *tensor.Dense, geometry []images.Geometry) ([]postprocess.RawDetectionSet, error) {
	return model.DecodeOutputs(scores, boxes, geometry)
}

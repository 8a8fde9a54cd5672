// Package fasterrcnn - Faster R-CNN detector (Pascal VOC).
package fasterrcnn

import (
	"github.com/nvr-ai/go-batchdet/images"
	"github.com/nvr-ai/go-batchdet/models/model"
	"github.com/nvr-ai/go-batchdet/models/model/preprocess"
	"github.com/nvr-ai/go-batchdet/models/postprocess"
	"gorgonia.org/tensor"
)

// FasterRCNN is the instance of the Faster R-CNN model.
//
// The export emits raw class logits ("cls_score") and per-class boxes, 4 values per
// class per proposal.
type FasterRCNN struct {
	options model.Options
}

// NewModel creates a new model.
//
// Arguments:
//   - args: The arguments for creating a new model.
//
// Returns:
//   - The model.
func NewModel(args model.NewModelArgs) (*FasterRCNN, error) {
	return &FasterRCNN{
		options: model.Options{
			Name:          model.ModelNameFasterRCNN,
			Family:        model.ModelFamilyVOC,
			Path:          args.Path,
			Inputs:        []string{"data", "im_info"},
			Outputs:       []string{"cls_score", "bbox_pred"},
			NumClasses:    model.PascalVOCClasses.Len(),
			ClassAgnostic: false,
			MaxBatch:      args.MaxBatch,
			Activation:    model.ActivationSoftmax,
			Preprocess:    preprocess.GetFasterRCNNConfig(),
		},
	}, nil
}

// Options returns the options for the Faster R-CNN model.
func (m *FasterRCNN) Options() model.Options {
	return m.options
}

// Classes returns the Pascal VOC label set.
func (m *FasterRCNN) Classes() *model.ClassSet {
	return model.PascalVOCClasses
}

// Decode splits the batched outputs into per-image raw detection sets.
func (m *FasterRCNN) Decode(scores, boxes *tensor.Dense, geometry []images.Geometry) ([]postprocess.RawDetectionSet, error) {
	return model.DecodeOutputs(scores, boxes, geometry)
}

// Package model - Model descriptors and raw-output decoding shared by detector families.
package model

import (
	"github.com/nvr-ai/go-batchdet/images"
	"github.com/nvr-ai/go-batchdet/models/model/preprocess"
	"github.com/nvr-ai/go-batchdet/models/postprocess"
	"gorgonia.org/tensor"
)

// Family is the dataset family whose label set a model predicts.
type Family string

const (
	// ModelFamilyVID is the ImageNet VID family (30 classes + background).
	ModelFamilyVID Family = "vid"
	// ModelFamilyVOC is the Pascal VOC model family (20 classes + background).
	ModelFamilyVOC Family = "voc"
)

// Name is the unique identifier of a model.
type Name string

const (
	// ModelNameRFCN is the name of the R-FCN video detector.
	ModelNameRFCN Name = "rfcn"
	// ModelNameFasterRCNN is the name of the Faster R-CNN detector.
	ModelNameFasterRCNN Name = "fasterrcnn"
)

// ScoreActivation is applied to the score output before decoding.
type ScoreActivation string

const (
	// ActivationNone means the model already emits probabilities.
	ActivationNone ScoreActivation = "none"
	// ActivationSoftmax normalizes raw class logits per box.
	ActivationSoftmax ScoreActivation = "softmax"
)

// Options describes a model's input/output contract.
type Options struct {
	Name   Name   `json:"name" yaml:"name"`
	Family Family `json:"family" yaml:"family"`
	Path   string `json:"path" yaml:"path"`
	// Inputs are the graph input names: the image batch first, then the image info.
	Inputs []string `json:"inputs" yaml:"inputs"`
	// Outputs are the graph output names: scores first, then boxes.
	Outputs []string `json:"outputs" yaml:"outputs"`
	// NumClasses counts every class including background.
	NumClasses int `json:"num_classes" yaml:"num_classes"`
	// ClassAgnostic is true when the model regresses one box per proposal.
	ClassAgnostic bool `json:"class_agnostic" yaml:"class_agnostic"`
	// MaxBatch is the largest batch the exported graph accepts. 0 means unbounded.
	MaxBatch   int                     `json:"max_batch" yaml:"max_batch"`
	Activation ScoreActivation         `json:"activation" yaml:"activation"`
	Preprocess *preprocess.ModelConfig `json:"preprocess" yaml:"preprocess"`
}

// Model is a detector family that knows its I/O contract and how to decode its outputs.
type Model interface {
	Options() Options
	Classes() *ClassSet
	// Decode splits batched score and box outputs into one raw set per image, with
	// boxes mapped back to original image coordinates.
	Decode(scores, boxes *tensor.Dense, geometry []images.Geometry) ([]postprocess.RawDetectionSet, error)
}

// NewModelArgs is the arguments for creating a new model.
type NewModelArgs struct {
	Name     Name   `json:"name" yaml:"name"`
	Path     string `json:"path" yaml:"path"`
	MaxBatch int    `json:"max_batch" yaml:"max_batch"`
}

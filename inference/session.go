package inference

import (
	"context"

	"github.com/nvr-ai/go-batchdet/errdefs"
	"github.com/nvr-ai/go-batchdet/inference/providers"
	"github.com/nvr-ai/go-batchdet/models/model"
	"github.com/nvr-ai/go-batchdet/models/postprocess"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/multierr"
	"gorgonia.org/tensor"
)

// Session is a Predictor backed by an onnxruntime session.
//
// The session is created with dynamic input shapes, so every batch may have its own
// padded height and width. Output tensors are allocated by the runtime per call and
// released before Predict returns.
type Session struct {
	session *ort.DynamicAdvancedSession
	model   model.Model
}

// NewSession loads the model's graph into a new onnxruntime session.
//
// The runtime environment must already be initialized (see
// providers.InitializeEnvironment).
//
// Arguments:
//   - m: The model whose path, input names and output names are used.
//   - config: The execution provider configuration.
//
// Returns:
//   - *Session: The session.
//   - error: errdefs.ErrInvalidConfig for a model without two inputs and two outputs,
//     errdefs.ErrMissingResource for an empty model path, or the native error.
func NewSession(m model.Model, config providers.Config) (*Session, error) {
	opts := m.Options()
	if len(opts.Inputs) != 2 || len(opts.Outputs) != 2 {
		return nil, errors.Wrapf(errdefs.ErrInvalidConfig,
			"model %s: want 2 inputs and 2 outputs, got %v -> %v", opts.Name, opts.Inputs, opts.Outputs)
	}
	if opts.Path == "" {
		return nil, errors.Wrapf(errdefs.ErrMissingResource, "model %s: no model path", opts.Name)
	}

	options, err := providers.NewSessionOptions(config)
	if err != nil {
		return nil, err
	}
	defer options.Destroy()

	session, err := ort.NewDynamicAdvancedSession(opts.Path, opts.Inputs, opts.Outputs, options)
	if err != nil {
		return nil, errors.Wrapf(err, "create onnxruntime session for %s", opts.Path)
	}

	return &Session{session: session, model: m}, nil
}

// MaxBatch returns the model's declared maximum batch size.
func (s *Session) MaxBatch() int {
	return s.model.Options().MaxBatch
}

// Predict runs the graph once for the whole batch.
func (s *Session) Predict(_ context.Context, inputs Inputs) (results []postprocess.RawDetectionSet, err error) {
	data, err := toOrtTensor(inputs.Tensors[InputData])
	if err != nil {
		return nil, errors.Wrap(err, InputData)
	}
	defer data.Destroy()

	info, err := toOrtTensor(inputs.Tensors[InputImageInfo])
	if err != nil {
		return nil, errors.Wrap(err, InputImageInfo)
	}
	defer info.Destroy()

	outputs := []ort.Value{nil, nil}
	defer func() {
		for _, out := range outputs {
			if out != nil {
				err = multierr.Append(err, out.Destroy())
			}
		}
	}()

	if err := s.session.Run([]ort.Value{data, info}, outputs); err != nil {
		return nil, errors.Wrap(err, "run session")
	}

	scores, err := fromOrtValue(outputs[0])
	if err != nil {
		return nil, errors.Wrap(err, "scores")
	}
	boxes, err := fromOrtValue(outputs[1])
	if err != nil {
		return nil, errors.Wrap(err, "boxes")
	}

	if s.model.Options().Activation == model.ActivationSoftmax {
		if scores, err = Softmax(scores); err != nil {
			return nil, err
		}
	}

	return s.model.Decode(scores, boxes, inputs.Geometry)
}

// Close releases the native session.
func (s *Session) Close() error {
	if s.session == nil {
		return nil
	}
	err := s.session.Destroy()
	s.session = nil
	if err != nil {
		return errors.Wrap(err, "destroy onnxruntime session")
	}
	return nil
}

// toOrtTensor copies a float32 Dense tensor into a new native tensor.
func toOrtTensor(t *tensor.Dense) (*ort.Tensor[float32], error) {
	if t == nil {
		return nil, errors.Wrap(errdefs.ErrInvalidInput, "input tensor is missing")
	}
	data, ok := t.Data().([]float32)
	if !ok {
		return nil, errors.Wrapf(errdefs.ErrInvalidInput, "input tensor dtype %v, want float32", t.Dtype())
	}

	dims := t.Shape()
	shape := make(ort.Shape, len(dims))
	for i, d := range dims {
		shape[i] = int64(d)
	}

	backing := make([]float32, len(data))
	copy(backing, data)
	return ort.NewTensor(shape, backing)
}

// fromOrtValue copies a native float32 output into a Dense tensor.
func fromOrtValue(v ort.Value) (*tensor.Dense, error) {
	t, ok := v.(*ort.Tensor[float32])
	if !ok {
		return nil, errors.Wrapf(errdefs.ErrInvalidInput, "output is %T, want float32 tensor", v)
	}

	dims := t.GetShape()
	shape := make([]int, len(dims))
	for i, d := range dims {
		shape[i] = int(d)
	}

	data := make([]float32, len(t.GetData()))
	copy(data, t.GetData())
	return tensor.New(tensor.WithShape(shape...), tensor.Of(tensor.Float32), tensor.WithBacking(data)), nil
}

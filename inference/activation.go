package inference

import (
	"github.com/nvr-ai/go-batchdet/errdefs"
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Softmax normalizes the last axis of logits into probabilities.
//
// The input is viewed as a (rows, classes) matrix, run through a softmax graph and
// reshaped back, so (N, R, C) class logits become per-proposal class probabilities.
// The input tensor is not modified.
//
// Arguments:
//   - logits: A float32 tensor of rank 2 or more.
//
// Returns:
//   - *tensor.Dense: The probabilities, same shape as logits.
//   - error: errdefs.ErrInvalidInput for an unsupported tensor, or the graph error.
func Softmax(logits *tensor.Dense) (*tensor.Dense, error) {
	if logits == nil || logits.Dtype() != tensor.Float32 {
		return nil, errors.Wrap(errdefs.ErrInvalidInput, "softmax needs a float32 tensor")
	}
	shape := logits.Shape().Clone()
	if len(shape) < 2 || shape.TotalSize() == 0 {
		return nil, errors.Wrapf(errdefs.ErrInvalidInput, "softmax needs a non-empty tensor of rank >= 2, got %v", shape)
	}
	classes := shape[len(shape)-1]
	rows := shape.TotalSize() / classes

	x := logits.Clone().(*tensor.Dense)
	if err := x.Reshape(rows, classes); err != nil {
		return nil, errors.Wrap(err, "reshape logits")
	}

	g := G.NewGraph()
	input := G.NewMatrix(g, tensor.Float32, G.WithShape(rows, classes), G.WithName("logits"))
	output, err := G.SoftMax(input, 1)
	if err != nil {
		return nil, errors.Wrap(err, "build softmax graph")
	}
	if err := G.Let(input, x); err != nil {
		return nil, errors.Wrap(err, "bind logits")
	}

	tm := G.NewTapeMachine(g)
	defer tm.Close()
	if err := tm.RunAll(); err != nil {
		return nil, errors.Wrap(err, "run softmax graph")
	}

	probs, ok := output.Value().(*tensor.Dense)
	if !ok {
		return nil, errors.Errorf("softmax produced %T", output.Value())
	}
	probs = probs.Clone().(*tensor.Dense)
	if err := probs.Reshape(shape...); err != nil {
		return nil, errors.Wrap(err, "reshape probabilities")
	}
	return probs, nil
}

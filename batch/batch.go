// Package batch - Assembles ordered image streams into fixed-capacity batches.
package batch

import (
	"iter"

	"github.com/nvr-ai/go-batchdet/errdefs"
	"github.com/nvr-ai/go-batchdet/images"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Item is one preprocessed image waiting to be batched.
type Item struct {
	// ID identifies the image, typically its path.
	ID string
	// Tensor is the (channels, height, width) float32 image tensor.
	Tensor *tensor.Dense
	// Geometry is the scale and shape record of the tensor.
	Geometry images.Geometry
}

// Validate checks that the item's tensor and geometry are consistent.
func (it Item) Validate() error {
	if err := it.Geometry.Validate(); err != nil {
		return errors.Wrapf(err, "image %s", it.ID)
	}
	if it.Tensor == nil {
		return errors.Wrapf(errdefs.ErrInvalidInput, "image %s: tensor is nil", it.ID)
	}
	if it.Tensor.Dtype() != tensor.Float32 {
		return errors.Wrapf(errdefs.ErrInvalidInput, "image %s: tensor dtype %v, want float32", it.ID, it.Tensor.Dtype())
	}
	shape := it.Tensor.Shape()
	if len(shape) != 3 {
		return errors.Wrapf(errdefs.ErrInvalidInput, "image %s: tensor shape %v, want (C, H, W)", it.ID, shape)
	}
	if shape[1] > it.Geometry.Height || shape[2] > it.Geometry.Width {
		return errors.Wrapf(errdefs.ErrInvalidInput, "image %s: tensor %v exceeds geometry %dx%d",
			it.ID, shape, it.Geometry.Width, it.Geometry.Height)
	}
	return nil
}

// Batch is a group of images processed together in one inference call.
//
// Tensors, Geometry and ImageIDs share the same length and ordering.
type Batch struct {
	// Index is the zero-based position of the batch in the stream.
	Index int
	// Tensors holds one (C, H, W) tensor per image.
	Tensors []*tensor.Dense
	// Geometry holds one geometry record per image.
	Geometry []images.Geometry
	// ImageIDs holds the image identifiers in stream order.
	ImageIDs []string
}

// Len returns the number of images in the batch.
func (b *Batch) Len() int {
	return len(b.ImageIDs)
}

// Scales returns the per-image resize factors.
func (b *Batch) Scales() []float32 {
	scales := make([]float32, len(b.Geometry))
	for i, g := range b.Geometry {
		scales[i] = g.Scale
	}
	return scales
}

// Info returns the (N, 3) image-info tensor with rows [height, width, scale].
func (b *Batch) Info() *tensor.Dense {
	data := make([]float32, 0, 3*len(b.Geometry))
	for _, g := range b.Geometry {
		data = append(data, float32(g.Height), float32(g.Width), g.Scale)
	}
	return tensor.New(
		tensor.WithShape(len(b.Geometry), 3),
		tensor.Of(tensor.Float32),
		tensor.WithBacking(data),
	)
}

// Data stacks the image tensors into a single (N, C, H, W) tensor.
//
// H and W are the largest geometry dimensions in the batch. Smaller images are placed
// at the top-left corner and the remainder is zero filled.
//
// Returns:
//   - *tensor.Dense: The stacked tensor.
//   - error: errdefs.ErrInvalidInput for an empty batch or mismatched channel counts.
func (b *Batch) Data() (*tensor.Dense, error) {
	if b.Len() == 0 {
		return nil, errors.Wrap(errdefs.ErrInvalidInput, "cannot stack an empty batch")
	}

	channels := b.Tensors[0].Shape()[0]
	var height, width int
	for _, g := range b.Geometry {
		height = max(height, g.Height)
		width = max(width, g.Width)
	}

	plane := height * width
	stacked := make([]float32, b.Len()*channels*plane)
	for n, t := range b.Tensors {
		shape := t.Shape()
		if shape[0] != channels {
			return nil, errors.Wrapf(errdefs.ErrInvalidInput,
				"image %s has %d channels, batch has %d", b.ImageIDs[n], shape[0], channels)
		}
		src := t.Data().([]float32)
		h, w := shape[1], shape[2]
		for c := 0; c < channels; c++ {
			dst := stacked[(n*channels+c)*plane:]
			for y := 0; y < h; y++ {
				copy(dst[y*width:y*width+w], src[(c*h+y)*w:(c*h+y+1)*w])
			}
		}
	}

	return tensor.New(
		tensor.WithShape(b.Len(), channels, height, width),
		tensor.Of(tensor.Float32),
		tensor.WithBacking(stacked),
	), nil
}

// Assemble groups a stream of items into batches of at most capacity items.
//
// The stream is consumed lazily and in order. A batch is emitted as soon as it holds
// capacity items; whatever remains when the stream ends forms a final, shorter batch.
// Stream errors (for example errdefs.ErrMissingResource from the image loader) are
// yielded unchanged and end the sequence; items accumulated before the error are
// dropped rather than emitted as an incomplete batch.
//
// Arguments:
//   - stream: The ordered input items.
//   - capacity: The maximum number of items per batch.
//
// Returns:
//   - iter.Seq2[*Batch, error]: The lazy batch sequence.
//   - error: errdefs.ErrInvalidInput when capacity < 1.
//
// @example
//
//	batches, err := batch.Assemble(items, 10)
//	if err != nil {
//	    return err
//	}
//	for b, err := range batches {
//	    if err != nil {
//	        return err
//	    }
//	    // b.Len() <= 10
//	}
func Assemble(stream iter.Seq2[Item, error], capacity int) (iter.Seq2[*Batch, error], error) {
	if capacity < 1 {
		return nil, errors.Wrapf(errdefs.ErrInvalidInput, "batch capacity must be at least 1, got %d", capacity)
	}

	return func(yield func(*Batch, error) bool) {
		index := 0
		current := newBatch(index, capacity)

		for item, err := range stream {
			if err != nil {
				yield(nil, err)
				return
			}
			if err := item.Validate(); err != nil {
				yield(nil, err)
				return
			}

			current.Tensors = append(current.Tensors, item.Tensor)
			current.Geometry = append(current.Geometry, item.Geometry)
			current.ImageIDs = append(current.ImageIDs, item.ID)

			if current.Len() == capacity {
				if !yield(current, nil) {
					return
				}
				index++
				current = newBatch(index, capacity)
			}
		}

		if current.Len() > 0 {
			yield(current, nil)
		}
	}, nil
}

func newBatch(index, capacity int) *Batch {
	return &Batch{
		Index:    index,
		Tensors:  make([]*tensor.Dense, 0, capacity),
		Geometry: make([]images.Geometry, 0, capacity),
		ImageIDs: make([]string, 0, capacity),
	}
}

// Collect drains a batch sequence into a slice, stopping at the first error.
func Collect(batches iter.Seq2[*Batch, error]) ([]*Batch, error) {
	var out []*Batch
	for b, err := range batches {
		if err != nil {
			return out, err
		}
		out = append(out, b)
	}
	return out, nil
}

// FromSlice adapts a slice of items into a stream.
func FromSlice(items []Item) iter.Seq2[Item, error] {
	return func(yield func(Item, error) bool) {
		for _, it := range items {
			if !yield(it, nil) {
				return
			}
		}
	}
}

// Package preprocess - Resize and normalize images into network tensors.
//
// This is the collaborator that produces the per-image tensor and geometry record
// consumed by the batch assembler. It mirrors the two-stage scheme used by region
// based detectors: scale the shorter side to a target size without letting the
// longer side exceed a cap, optionally pad up to a stride multiple, then subtract
// per-channel pixel means into a CHW float32 tensor.
package preprocess

import (
	"image"
	"math"

	"github.com/nfnt/resize"
	"github.com/nvr-ai/go-batchdet/errdefs"
	"github.com/nvr-ai/go-batchdet/images"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// ColorMode defines the channel order written into the tensor.
type ColorMode int

const (
	// ColorModeRGB writes channels as R, G, B.
	ColorModeRGB ColorMode = iota
	// ColorModeBGR writes channels as B, G, R (common for Caffe/MXNet exports).
	ColorModeBGR
)

// ModelConfig defines preprocessing configuration for a specific model.
type ModelConfig struct {
	// Name of the model for debugging purposes.
	Name string `json:"name" yaml:"name"`
	// TargetSize is the length the shorter image side is scaled to.
	TargetSize int `json:"target_size" yaml:"target_size"`
	// MaxSize caps the longer image side after scaling.
	MaxSize int `json:"max_size" yaml:"max_size"`
	// Stride pads the scaled image up to a multiple of this value. 0 disables padding.
	Stride int `json:"stride" yaml:"stride"`
	// PixelMeans are subtracted per channel, in the order given by ColorMode.
	PixelMeans []float32 `json:"pixel_means" yaml:"pixel_means"`
	// ColorMode defines the channel order.
	ColorMode ColorMode `json:"color_mode" yaml:"color_mode"`
}

// Validate checks that the configuration can produce a tensor.
func (c *ModelConfig) Validate() error {
	if c.TargetSize <= 0 || c.MaxSize <= 0 {
		return errors.Wrapf(errdefs.ErrInvalidConfig, "preprocess %q: target_size and max_size must be positive", c.Name)
	}
	if c.Stride < 0 {
		return errors.Wrapf(errdefs.ErrInvalidConfig, "preprocess %q: stride must not be negative", c.Name)
	}
	if len(c.PixelMeans) != 0 && len(c.PixelMeans) != 3 {
		return errors.Wrapf(errdefs.ErrInvalidConfig, "preprocess %q: expected 3 pixel means, got %d", c.Name, len(c.PixelMeans))
	}
	return nil
}

// Result contains the preprocessed tensor and its geometry.
type Result struct {
	// Tensor is the (3, height, width) float32 tensor.
	Tensor *tensor.Dense
	// Geometry records the padded tensor size and the applied scale.
	Geometry images.Geometry
	// OriginalWidth is the image width before preprocessing.
	OriginalWidth int
	// OriginalHeight is the image height before preprocessing.
	OriginalHeight int
}

// Preprocessor handles image preprocessing for a model.
type Preprocessor struct {
	config *ModelConfig
}

// NewPreprocessor creates a new preprocessor with the given configuration.
//
// Arguments:
//   - config: The model-specific preprocessing configuration.
//
// Returns:
//   - *Preprocessor: A configured Preprocessor instance.
//   - error: errdefs.ErrInvalidConfig if the configuration is unusable.
//
// @example
//
//	preprocessor, err := NewPreprocessor(GetRFCNConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
func NewPreprocessor(config *ModelConfig) (*Preprocessor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Preprocessor{config: config}, nil
}

// Config returns the preprocessing configuration.
func (p *Preprocessor) Config() ModelConfig {
	return *p.config
}

// Preprocess scales, pads and normalizes img.
//
// Arguments:
//   - img: The decoded input image.
//
// Returns:
//   - *Result: The tensor and its geometry record.
//   - error: errdefs.ErrInvalidInput for an empty image.
func (p *Preprocessor) Preprocess(img image.Image) (*Result, error) {
	if img == nil {
		return nil, errors.Wrap(errdefs.ErrInvalidInput, "image is nil")
	}
	bounds := img.Bounds()
	srcWidth, srcHeight := bounds.Dx(), bounds.Dy()
	if srcWidth <= 0 || srcHeight <= 0 {
		return nil, errors.Wrapf(errdefs.ErrInvalidInput, "invalid image dimensions: %dx%d", srcWidth, srcHeight)
	}

	scale := ComputeScale(srcWidth, srcHeight, p.config.TargetSize, p.config.MaxSize)
	newWidth := max(1, int(math.Round(float64(srcWidth)*scale)))
	newHeight := max(1, int(math.Round(float64(srcHeight)*scale)))

	resized := img
	if newWidth != srcWidth || newHeight != srcHeight {
		resized = resize.Resize(uint(newWidth), uint(newHeight), img, resize.Bilinear)
	}

	padWidth, padHeight := padTo(newWidth, p.config.Stride), padTo(newHeight, p.config.Stride)
	data := p.imageToTensor(resized, padWidth, padHeight)

	return &Result{
		Tensor: tensor.New(
			tensor.WithShape(3, padHeight, padWidth),
			tensor.Of(tensor.Float32),
			tensor.WithBacking(data),
		),
		Geometry: images.Geometry{
			Height: padHeight,
			Width:  padWidth,
			Scale:  float32(scale),
		},
		OriginalWidth:  srcWidth,
		OriginalHeight: srcHeight,
	}, nil
}

// ComputeScale returns the factor that brings the shorter side to target while
// keeping the longer side within maxSize.
//
// Arguments:
//   - width: Source width.
//   - height: Source height.
//   - target: Desired length of the shorter side.
//   - maxSize: Cap for the longer side.
//
// Returns:
//   - float64: The scale factor.
func ComputeScale(width, height, target, maxSize int) float64 {
	shorter := float64(min(width, height))
	longer := float64(max(width, height))

	scale := float64(target) / shorter
	if math.Round(scale*longer) > float64(maxSize) {
		scale = float64(maxSize) / longer
	}
	return scale
}

func padTo(n, stride int) int {
	if stride <= 0 {
		return n
	}
	return (n + stride - 1) / stride * stride
}

// imageToTensor writes img into a zero-padded CHW buffer of padWidth x padHeight and
// subtracts the pixel means. Padding is treated as black pixels, so it also has the
// means subtracted.
func (p *Preprocessor) imageToTensor(img image.Image, padWidth, padHeight int) []float32 {
	plane := padWidth * padHeight
	data := make([]float32, 3*plane)

	bounds := img.Bounds()
	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < bounds.Dx(); x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			ch0, ch1, ch2 := float32(r>>8), float32(g>>8), float32(b>>8)
			if p.config.ColorMode == ColorModeBGR {
				ch0, ch2 = ch2, ch0
			}
			idx := y*padWidth + x
			data[idx] = ch0
			data[plane+idx] = ch1
			data[2*plane+idx] = ch2
		}
	}

	if len(p.config.PixelMeans) == 3 {
		for c := 0; c < 3; c++ {
			mean := p.config.PixelMeans[c]
			channel := data[c*plane : (c+1)*plane]
			for i := range channel {
				channel[i] -= mean
			}
		}
	}

	return data
}

// GetRFCNConfig returns the configuration used by the R-FCN video detector: shorter
// side 600, longer side at most 1000, ImageNet means in RGB order.
//
// @example
//
//	preprocessor, err := NewPreprocessor(GetRFCNConfig())
func GetRFCNConfig() *ModelConfig {
	return &ModelConfig{
		Name:       "rfcn",
		TargetSize: 600,
		MaxSize:    1000,
		Stride:     0,
		PixelMeans: []float32{123.15, 115.90, 103.06},
		ColorMode:  ColorModeRGB,
	}
}

// GetFasterRCNNConfig returns a standard configuration for Faster R-CNN (VGG/ResNet
// Caffe exports): BGR input padded to a stride of 32.
func GetFasterRCNNConfig() *ModelConfig {
	return &ModelConfig{
		Name:       "fasterrcnn",
		TargetSize: 600,
		MaxSize:    1000,
		Stride:     32,
		PixelMeans: []float32{102.9801, 115.9465, 122.7717},
		ColorMode:  ColorModeBGR,
	}
}

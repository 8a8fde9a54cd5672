// Package images - Image definition and decoding for the detection pipeline.
package images

import (
	"bufio"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/nvr-ai/go-batchdet/errdefs"
	"github.com/pkg/errors"
)

// ImageFormat represents supported image formats.
type ImageFormat string

// ImageFormat constants.
const (
	// FormatJPEG is the JPEG image format.
	FormatJPEG ImageFormat = "jpeg"
	// FormatPNG is the PNG image format.
	FormatPNG ImageFormat = "png"
	// FormatBMP is the BMP image format.
	FormatBMP ImageFormat = "bmp"
	// FormatWebP is the WebP image format.
	FormatWebP ImageFormat = "webp"
)

var extensionFormats = map[string]ImageFormat{
	".jpg":  FormatJPEG,
	".jpeg": FormatJPEG,
	".png":  FormatPNG,
	".bmp":  FormatBMP,
	".webp": FormatWebP,
}

// FormatFromPath resolves the image format from a file extension (case-insensitive).
//
// Arguments:
//   - path: The file path to inspect.
//
// Returns:
//   - ImageFormat: The detected format.
//   - bool: False when the extension is not a supported image type.
func FormatFromPath(path string) (ImageFormat, bool) {
	format, ok := extensionFormats[strings.ToLower(filepath.Ext(path))]
	return format, ok
}

// Geometry is the per-image scale and shape record produced by the resize step.
//
// Height and Width are the dimensions of the (possibly padded) network tensor and
// Scale is the factor that was applied to the original image, so a box in network
// space divided by Scale lands in original image coordinates.
type Geometry struct {
	Height int     `json:"height" yaml:"height"`
	Width  int     `json:"width"  yaml:"width"`
	Scale  float32 `json:"scale"  yaml:"scale"`
}

// Validate checks the geometry invariants.
//
// Returns:
//   - error: errdefs.ErrInvalidInput when a dimension or the scale is not positive.
func (g Geometry) Validate() error {
	if g.Height <= 0 || g.Width <= 0 {
		return errors.Wrapf(errdefs.ErrInvalidInput, "geometry dimensions must be positive, got %dx%d", g.Width, g.Height)
	}
	// Written as a negation so NaN is rejected as well.
	if !(g.Scale > 0) {
		return errors.Wrapf(errdefs.ErrInvalidInput, "geometry scale must be positive, got %f", g.Scale)
	}
	return nil
}

// Load opens and decodes the image at path.
//
// EXIF orientation is ignored: detections are reported in the stored pixel layout so
// they line up with the file the renderer re-reads.
//
// Arguments:
//   - path: Path of the image file.
//
// Returns:
//   - image.Image: The decoded image.
//   - error: errdefs.ErrMissingResource if the file does not exist, errdefs.ErrInvalidInput
//     if the extension is unsupported or the data cannot be decoded.
func Load(path string) (image.Image, error) {
	format, ok := FormatFromPath(path)
	if !ok {
		return nil, errors.Wrapf(errdefs.ErrInvalidInput, "unsupported image extension %q", filepath.Ext(path))
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(errdefs.ErrMissingResource, "%s does not exist", path)
		}
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	var img image.Image
	switch format {
	case FormatWebP:
		img, err = webp.Decode(bufio.NewReader(f))
	default:
		img, err = imaging.Decode(f, imaging.AutoOrientation(false))
	}
	if err != nil {
		return nil, errors.Wrapf(errdefs.ErrInvalidInput, "failed to decode %s: %v", path, err)
	}

	return img, nil
}

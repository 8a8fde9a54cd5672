// Package render - Draws detections onto the source image and writes the result.
package render

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"path/filepath"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/nvr-ai/go-batchdet/errdefs"
	"github.com/nvr-ai/go-batchdet/images"
	"github.com/nvr-ai/go-batchdet/models/model"
	"github.com/nvr-ai/go-batchdet/models/postprocess"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Renderer writes one annotated copy of every input image into an output directory,
// under the input's base name.
type Renderer struct {
	outputDir string
	classes   *model.ClassSet
	thickness int
	fontScale float64
}

// NewRenderer creates a renderer that labels boxes with names from classes.
//
// Arguments:
//   - outputDir: Directory receiving the annotated images. It must exist.
//   - classes: Label set used for box captions. nil captions boxes with the class index.
//
// Returns:
//   - *Renderer: The renderer.
func NewRenderer(outputDir string, classes *model.ClassSet) *Renderer {
	return &Renderer{
		outputDir: outputDir,
		classes:   classes,
		thickness: 2,
		fontScale: 0.8,
	}
}

// OutputPath returns where the annotated copy of src is written. Inputs with the same
// base name map to the same output; util.ListImageFiles rejects such input sets.
func (r *Renderer) OutputPath(src string) string {
	return filepath.Join(r.outputDir, filepath.Base(src))
}

// Render draws dets onto the image at src and writes it to OutputPath(src).
//
// Arguments:
//   - src: Path of the original image.
//   - dets: Detections in original image coordinates.
//
// Returns:
//   - error: errdefs.ErrMissingResource when src cannot be read, or an error when the
//     annotated image cannot be written.
func (r *Renderer) Render(src string, dets []postprocess.Detection) error {
	img := gocv.IMRead(src, gocv.IMReadColor|gocv.IMReadIgnoreOrientation)
	if img.Empty() {
		img.Close()
		return errors.Wrapf(errdefs.ErrMissingResource, "read image %s", src)
	}
	defer img.Close()

	for _, d := range dets {
		c := ClassColor(d.Class)
		box := ToRectangle(d.Box)
		gocv.Rectangle(&img, box, c, r.thickness)
		gocv.PutText(&img, r.Label(d), labelOrigin(box), gocv.FontHersheyPlain, r.fontScale, c, r.thickness)
	}

	dst := r.OutputPath(src)
	if !gocv.IMWrite(dst, img) {
		return errors.Errorf("write annotated image %s", dst)
	}
	return nil
}

// Label returns the caption of d: class name and score.
func (r *Renderer) Label(d postprocess.Detection) string {
	name := fmt.Sprintf("class_%d", d.Class)
	if r.classes != nil {
		name = r.classes.Name(d.Class)
	}
	return fmt.Sprintf("%s %.3f", name, d.Score)
}

// ToRectangle rounds a box to integer pixel coordinates.
func ToRectangle(r images.Rect) image.Rectangle {
	return image.Rect(
		int(math.Round(float64(r.X1))),
		int(math.Round(float64(r.Y1))),
		int(math.Round(float64(r.X2))),
		int(math.Round(float64(r.Y2))),
	)
}

// labelOrigin places the caption just above the box, or inside it at the top edge.
func labelOrigin(box image.Rectangle) image.Point {
	y := box.Min.Y - 2
	if y < 10 {
		y = box.Min.Y + 12
	}
	return image.Pt(box.Min.X, y)
}

// ClassColor returns a stable color for a class index, spreading hues by the golden
// angle so neighbouring classes differ.
func ClassColor(class int) color.RGBA {
	hue := math.Mod(float64(class)*137.508, 360)
	r, g, b := colorful.Hsv(hue, 0.85, 0.95).RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

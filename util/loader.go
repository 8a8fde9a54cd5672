// Package util - Input enumeration helpers.
package util

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/nvr-ai/go-batchdet/errdefs"
	"github.com/nvr-ai/go-batchdet/images"
	"github.com/pkg/errors"
)

// ImageFile represents an input image discovered on disk.
type ImageFile struct {
	// Path is the path to the image file.
	Path string
	// Name is the base name, reused for the annotated output file.
	Name string
	// Format is the format inferred from the extension.
	Format images.ImageFormat
}

// ListImageFiles enumerates the image files matching a glob pattern.
//
// Filesystem listing order differs between platforms, so matches are sorted
// lexicographically by path to make batch composition reproducible. Directories and
// files with unsupported extensions are skipped. Annotated outputs are written under
// the input's base name, so two matches sharing a base name (e.g. "a/1.jpg" and
// "b/1.jpg" from "*/*.jpg") are rejected.
//
// Arguments:
//   - pattern: Glob pattern, e.g. "demo/ILSVRC2015_val_00007010/*.JPEG".
//
// Returns:
//   - []ImageFile: The matching image files in lexicographic order.
//   - error: errdefs.ErrInvalidConfig for a malformed pattern or duplicate base names.
func ListImageFiles(pattern string) ([]ImageFile, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, errors.Wrapf(errdefs.ErrInvalidConfig, "bad input glob %q: %v", pattern, err)
	}

	sort.Strings(matches)

	files := make([]ImageFile, 0, len(matches))
	seen := make(map[string]string, len(matches))
	for _, path := range matches {
		format, ok := images.FormatFromPath(path)
		if !ok {
			continue
		}
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		name := filepath.Base(path)
		if prev, ok := seen[name]; ok {
			return nil, errors.Wrapf(errdefs.ErrInvalidConfig,
				"%s and %s share the output name %s", prev, path, name)
		}
		seen[name] = path
		files = append(files, ImageFile{
			Path:   path,
			Name:   name,
			Format: format,
		})
	}

	return files, nil
}

package providers

import (
	"os"
	"runtime"

	"github.com/nvr-ai/go-batchdet/errdefs"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// SharedLibPath returns the default path to the onnxruntime shared library for the
// current platform.
//
// Returns:
//   - string: The path to the shared library.
//   - error: errdefs.ErrInvalidConfig when the platform has no bundled library.
func SharedLibPath() (string, error) {
	switch runtime.GOOS {
	case "windows":
		if runtime.GOARCH == "amd64" {
			return "./third_party/onnxruntime.dll", nil
		}
	case "darwin":
		return "./third_party/libonnxruntime.1.21.0.dylib", nil
	case "linux":
		if runtime.GOARCH == "arm64" {
			return "./third_party/onnxruntime_arm64.so", nil
		}
		return "./third_party/onnxruntime.so", nil
	}
	return "", errors.Wrapf(errdefs.ErrInvalidConfig,
		"no onnxruntime library for %s/%s, set library_path", runtime.GOOS, runtime.GOARCH)
}

// ResolveLibraryPath returns config.LibraryPath, or the platform default when empty.
func ResolveLibraryPath(config Config) (string, error) {
	if config.LibraryPath != "" {
		return config.LibraryPath, nil
	}
	return SharedLibPath()
}

// ExportEnvironment sets every config.Environment entry in the process environment.
func ExportEnvironment(config Config) error {
	for key, value := range config.Environment {
		if err := os.Setenv(key, value); err != nil {
			return errors.Wrapf(errdefs.ErrInvalidConfig, "set %s: %v", key, err)
		}
	}
	return nil
}

// InitializeEnvironment prepares the onnxruntime native layer.
//
// Order of operations:
//  1. Environment export: backend flags must be visible before the library loads.
//  2. Library path check: ensures the native runtime is accessible.
//  3. Environment setup: loads the library and prepares runtime internals. This
//     happens once per process; later calls are no-ops.
//
// Arguments:
//   - config: The provider configuration.
//
// Returns:
//   - error: errdefs.ErrMissingResource when the shared library does not exist, or the
//     native initialization error.
func InitializeEnvironment(config Config) error {
	if err := ExportEnvironment(config); err != nil {
		return err
	}
	if ort.IsInitialized() {
		return nil
	}

	libPath, err := ResolveLibraryPath(config)
	if err != nil {
		return err
	}
	if _, err := os.Stat(libPath); os.IsNotExist(err) {
		return errors.Wrapf(errdefs.ErrMissingResource, "onnxruntime library not found at %s", libPath)
	}

	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrap(err, "initialize onnxruntime environment")
	}
	return nil
}

// DestroyEnvironment releases the onnxruntime native layer if it was initialized.
func DestroyEnvironment() error {
	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}

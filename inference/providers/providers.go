// Package providers - ONNX Runtime execution providers and session options.
package providers

import (
	"github.com/nvr-ai/go-batchdet/errdefs"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// ProviderBackend represents different ONNX Runtime execution providers.
type ProviderBackend string

const (
	// CPUProviderBackend uses the default CPU execution provider.
	CPUProviderBackend ProviderBackend = "cpu"
	// CUDAProviderBackend uses NVIDIA CUDA for inference optimization.
	CUDAProviderBackend ProviderBackend = "cuda"
	// CoreMLProviderBackend uses Apple CoreML for macOS/iOS acceleration.
	CoreMLProviderBackend ProviderBackend = "coreml"
	// OpenVINOProviderBackend uses Intel OpenVINO for inference optimization.
	OpenVINOProviderBackend ProviderBackend = "openvino"
)

// Backends lists every supported backend.
var Backends = []ProviderBackend{
	CPUProviderBackend,
	CUDAProviderBackend,
	CoreMLProviderBackend,
	OpenVINOProviderBackend,
}

// appendFunc attaches a backend's execution provider to the session options.
type appendFunc func(options *ort.SessionOptions, settings map[string]string) error

var appenders = map[ProviderBackend]appendFunc{
	CPUProviderBackend:      appendCPU,
	CUDAProviderBackend:     appendCUDA,
	CoreMLProviderBackend:   appendCoreML,
	OpenVINOProviderBackend: appendOpenVINO,
}

// NewSessionOptions creates session options for config.
//
// The caller owns the returned options and must Destroy them once the session is
// created.
//
// Arguments:
//   - config: The provider configuration.
//
// Returns:
//   - *ort.SessionOptions: The native session options.
//   - error: errdefs.ErrInvalidConfig for an invalid configuration, or the native error
//     when the execution provider cannot be enabled.
func NewSessionOptions(config Config) (*ort.SessionOptions, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "create session options")
	}

	if err := configure(options, config); err != nil {
		options.Destroy()
		return nil, err
	}
	return options, nil
}

func configure(options *ort.SessionOptions, config Config) error {
	// Intra-op threads parallelize work inside a node, inter-op threads run
	// independent nodes concurrently. 0 lets the runtime decide.
	if err := options.SetIntraOpNumThreads(config.IntraOpThreads); err != nil {
		return errors.Wrap(err, "set intra-op threads")
	}
	if err := options.SetInterOpNumThreads(config.InterOpThreads); err != nil {
		return errors.Wrap(err, "set inter-op threads")
	}

	level, _ := config.Optimization.level()
	if err := options.SetGraphOptimizationLevel(level); err != nil {
		return errors.Wrap(err, "set graph optimization level")
	}

	if err := appenders[config.Backend](options, config.Options); err != nil {
		return errors.Wrapf(err, "enable %s execution provider", config.Backend)
	}
	return nil
}

func isKnownBackend(backend ProviderBackend) bool {
	_, ok := appenders[backend]
	return ok
}

func unknownBackend(backend ProviderBackend) error {
	return errors.Wrapf(errdefs.ErrInvalidConfig, "no matching provider backend registered: %q", backend)
}

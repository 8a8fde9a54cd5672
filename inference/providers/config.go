package providers

import (
	"github.com/nvr-ai/go-batchdet/errdefs"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// OptimizationLevel selects how aggressively the runtime rewrites the graph.
type OptimizationLevel string

const (
	OptimizationDisabled OptimizationLevel = "disabled"
	OptimizationBasic    OptimizationLevel = "basic"
	OptimizationExtended OptimizationLevel = "extended"
	OptimizationAll      OptimizationLevel = "all"
)

func (l OptimizationLevel) level() (ort.GraphOptimizationLevel, bool) {
	switch l {
	case OptimizationDisabled:
		return ort.GraphOptimizationLevelDisableAll, true
	case OptimizationBasic:
		return ort.GraphOptimizationLevelEnableBasic, true
	case OptimizationExtended, "":
		return ort.GraphOptimizationLevelEnableExtended, true
	case OptimizationAll:
		return ort.GraphOptimizationLevelEnableAll, true
	default:
		return ort.GraphOptimizationLevelEnableExtended, false
	}
}

// Config selects the execution provider and the runtime environment.
//
// Options and Environment are opaque to the pipeline: Options is forwarded to the
// execution provider as-is, Environment is exported into the process before the
// runtime is initialized (backend tuning flags such as cuDNN autotuning switches).
type Config struct {
	// Backend specifies the backend to use.
	Backend ProviderBackend `json:"backend" yaml:"backend"`
	// LibraryPath points at the onnxruntime shared library. Empty selects the
	// platform default.
	LibraryPath string `json:"library_path" yaml:"library_path"`
	// Options contains provider-specific configuration options.
	Options map[string]string `json:"options" yaml:"options"`
	// Environment variables exported before the runtime loads.
	Environment map[string]string `json:"environment" yaml:"environment"`
	// IntraOpThreads sets threads for parallelizing ops. 0 is the runtime default.
	IntraOpThreads int `json:"intra_op_threads" yaml:"intra_op_threads"`
	// InterOpThreads sets threads for parallelizing independent ops.
	InterOpThreads int `json:"inter_op_threads" yaml:"inter_op_threads"`
	// Optimization controls graph rewrites at load time.
	Optimization OptimizationLevel `json:"optimization" yaml:"optimization"`
}

// DefaultConfig returns a CPU configuration with extended graph optimizations.
//
// @example
//
//	config := DefaultConfig()
//	config.Backend = CUDAProviderBackend
//	config.Options = map[string]string{"device_id": "0"}
func DefaultConfig() Config {
	return Config{
		Backend:      CPUProviderBackend,
		Options:      map[string]string{},
		Environment:  map[string]string{},
		Optimization: OptimizationExtended,
	}
}

// Validate checks the backend, thread counts and optimization level.
//
// Returns:
//   - error: errdefs.ErrInvalidConfig describing the first problem found.
func (c Config) Validate() error {
	if !isKnownBackend(c.Backend) {
		return unknownBackend(c.Backend)
	}
	if c.IntraOpThreads < 0 || c.InterOpThreads < 0 {
		return errors.Wrapf(errdefs.ErrInvalidConfig,
			"thread counts must not be negative (intra=%d, inter=%d)", c.IntraOpThreads, c.InterOpThreads)
	}
	if _, ok := c.Optimization.level(); !ok {
		return errors.Wrapf(errdefs.ErrInvalidConfig, "unknown optimization level %q", c.Optimization)
	}
	for key := range c.Environment {
		if key == "" {
			return errors.Wrap(errdefs.ErrInvalidConfig, "environment variable name is empty")
		}
	}
	return nil
}

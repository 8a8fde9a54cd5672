// Package config - Run configuration for the batch detector.
package config

import (
	"os"

	"github.com/nvr-ai/go-batchdet/errdefs"
	"github.com/nvr-ai/go-batchdet/inference/providers"
	"github.com/nvr-ai/go-batchdet/models/model"
	"github.com/nvr-ai/go-batchdet/models/model/preprocess"
	"github.com/nvr-ai/go-batchdet/models/postprocess"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the complete configuration of one batch detection run.
type Config struct {
	// Model selects the registered detector.
	Model model.Name `json:"model" yaml:"model"`
	// ModelPath is the ONNX graph to load.
	ModelPath string `json:"model_path" yaml:"model_path"`
	// InputGlob enumerates the input images.
	InputGlob string `json:"input_glob" yaml:"input_glob"`
	// OutputDir receives one annotated image per input.
	OutputDir string `json:"output_dir" yaml:"output_dir"`
	// BatchCapacity is the maximum number of images per inference call.
	BatchCapacity int `json:"batch_capacity" yaml:"batch_capacity"`
	// IoUThreshold is the NMS overlap threshold.
	IoUThreshold float32 `json:"iou_threshold" yaml:"iou_threshold"`
	// ScoreThreshold keeps detections scoring strictly above it.
	ScoreThreshold float32 `json:"score_threshold" yaml:"score_threshold"`
	// ClassAgnostic selects the shared box instead of per-class boxes. nil takes the
	// model's layout (see ForModel), or class-agnostic when no model is known.
	ClassAgnostic *bool `json:"class_agnostic,omitempty" yaml:"class_agnostic,omitempty"`
	// ClassCount includes background. 0 uses every class the model emits.
	ClassCount int `json:"class_count" yaml:"class_count"`
	// WarmupRuns is the number of untimed inference calls on the first batch.
	WarmupRuns int `json:"warmup_runs" yaml:"warmup_runs"`
	// SkipInvalidImages logs and skips images that cannot be decoded.
	SkipInvalidImages bool `json:"skip_invalid_images" yaml:"skip_invalid_images"`
	// ReportPath, when set, receives a JSON summary of the run.
	ReportPath string `json:"report_path" yaml:"report_path"`
	// Preprocess overrides the model's default preprocessing.
	Preprocess *preprocess.ModelConfig `json:"preprocess,omitempty" yaml:"preprocess,omitempty"`
	// Provider selects the execution provider.
	Provider providers.Config `json:"provider" yaml:"provider"`
}

// Default returns the configuration of the R-FCN video demo: batches of 10, NMS at
// 0.3, detections above 0.7. Box layout and class count are left to the model, which
// for R-FCN means class-agnostic boxes over the 31 VID classes.
func Default() Config {
	return Config{
		Model:          model.ModelNameRFCN,
		ModelPath:      "./model/rfcn_vid.onnx",
		InputGlob:      "./demo/ILSVRC2015_val_00007010/*.JPEG",
		OutputDir:      "./demo/rfcn_batch",
		BatchCapacity:  10,
		IoUThreshold:   0.3,
		ScoreThreshold: 0.7,
		WarmupRuns:     1,
		Provider:       providers.DefaultConfig(),
	}
}

// Load reads a YAML file on top of Default. Keys missing from the file keep their
// default values.
//
// Arguments:
//   - path: Path of the YAML file.
//
// Returns:
//   - Config: The merged configuration. It is not validated.
//   - error: errdefs.ErrMissingResource when the file does not exist,
//     errdefs.ErrInvalidConfig when it cannot be parsed.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, errors.Wrapf(errdefs.ErrMissingResource, "config file %s", path)
		}
		return cfg, errors.Wrapf(err, "read config file %s", path)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(errdefs.ErrInvalidConfig, "parse %s: %v", path, err)
	}
	return cfg, nil
}

// Bool returns a pointer to v, for optional fields such as ClassAgnostic.
func Bool(v bool) *bool {
	return &v
}

// ForModel fills the class count and box layout from the model when they are unset
// and checks that explicit values agree with what the model emits.
//
// Arguments:
//   - opts: The selected model's descriptor.
//
// Returns:
//   - Config: The resolved copy. ClassAgnostic is never nil.
//   - error: errdefs.ErrInvalidConfig when the box layout differs from the model's or
//     the class count exceeds the model's classes.
func (c Config) ForModel(opts model.Options) (Config, error) {
	if c.ClassAgnostic == nil {
		c.ClassAgnostic = Bool(opts.ClassAgnostic)
	} else if *c.ClassAgnostic != opts.ClassAgnostic {
		return c, errors.Wrapf(errdefs.ErrInvalidConfig,
			"class_agnostic is %t but model %s emits %s boxes",
			*c.ClassAgnostic, opts.Name, boxLayout(opts.ClassAgnostic))
	}

	if opts.NumClasses > 0 {
		switch {
		case c.ClassCount == 0:
			c.ClassCount = opts.NumClasses
		case c.ClassCount > opts.NumClasses:
			return c, errors.Wrapf(errdefs.ErrInvalidConfig,
				"class_count %d exceeds the %d classes of model %s", c.ClassCount, opts.NumClasses, opts.Name)
		}
	}
	return c, nil
}

func boxLayout(agnostic bool) string {
	if agnostic {
		return "class-agnostic"
	}
	return "per-class"
}

// NMS returns the post-processing parameters.
func (c Config) NMS() postprocess.NMSConfig {
	return postprocess.NMSConfig{
		ClassCount:     c.ClassCount,
		ClassAgnostic:  c.ClassAgnostic == nil || *c.ClassAgnostic,
		IoUThreshold:   c.IoUThreshold,
		ScoreThreshold: c.ScoreThreshold,
	}
}

// Validate checks every field that can be checked without touching the filesystem.
//
// Returns:
//   - error: errdefs.ErrInvalidConfig describing the first problem found.
func (c Config) Validate() error {
	if c.Model == "" {
		return errors.Wrap(errdefs.ErrInvalidConfig, "model is required")
	}
	if c.InputGlob == "" {
		return errors.Wrap(errdefs.ErrInvalidConfig, "input_glob is required")
	}
	if c.OutputDir == "" {
		return errors.Wrap(errdefs.ErrInvalidConfig, "output_dir is required")
	}
	if c.BatchCapacity < 1 {
		return errors.Wrapf(errdefs.ErrInvalidConfig, "batch_capacity must be at least 1, got %d", c.BatchCapacity)
	}
	if c.WarmupRuns < 0 {
		return errors.Wrapf(errdefs.ErrInvalidConfig, "warmup_runs must not be negative, got %d", c.WarmupRuns)
	}
	if err := c.NMS().Validate(); err != nil {
		return err
	}
	if c.Preprocess != nil {
		if err := c.Preprocess.Validate(); err != nil {
			return err
		}
	}
	return c.Provider.Validate()
}

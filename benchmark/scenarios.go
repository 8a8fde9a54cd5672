package benchmark

import (
	"fmt"
	"os"

	"github.com/nvr-ai/go-batchdet/errdefs"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Resolution represents padded tensor dimensions for benchmarking.
type Resolution struct {
	Width  int    `json:"width"  yaml:"width"`
	Height int    `json:"height" yaml:"height"`
	Name   string `json:"name"   yaml:"name"`
}

// CommonResolutions are padded input sizes produced by the detector preprocessors.
var CommonResolutions = []Resolution{
	{Width: 600, Height: 338, Name: "600x338"},
	{Width: 1000, Height: 563, Name: "1000x563"},
	{Width: 1000, Height: 600, Name: "1000x600"},
}

// Scenario defines a specific benchmark configuration.
type Scenario struct {
	Name       string     `json:"name"        yaml:"name"`
	Resolution Resolution `json:"resolution"  yaml:"resolution"`
	BatchSize  int        `json:"batch_size"  yaml:"batch_size"`
	Iterations int        `json:"iterations"  yaml:"iterations"`
	WarmupRuns int        `json:"warmup_runs" yaml:"warmup_runs"`
}

// Validate checks that the scenario can run.
func (s Scenario) Validate() error {
	if s.BatchSize < 1 {
		return errors.Wrapf(errdefs.ErrInvalidConfig, "scenario %q: batch size must be at least 1", s.Name)
	}
	if s.Iterations < 1 {
		return errors.Wrapf(errdefs.ErrInvalidConfig, "scenario %q: iterations must be at least 1", s.Name)
	}
	if s.WarmupRuns < 0 {
		return errors.Wrapf(errdefs.ErrInvalidConfig, "scenario %q: warmup runs must not be negative", s.Name)
	}
	if s.Resolution.Width <= 0 || s.Resolution.Height <= 0 {
		return errors.Wrapf(errdefs.ErrInvalidConfig, "scenario %q: resolution %dx%d", s.Name,
			s.Resolution.Width, s.Resolution.Height)
	}
	return nil
}

// ScenarioBuilder helps build scenarios with a fluent API.
type ScenarioBuilder struct {
	scenario Scenario
}

// NewScenarioBuilder creates a new scenario builder.
func NewScenarioBuilder(name string) *ScenarioBuilder {
	return &ScenarioBuilder{
		scenario: Scenario{
			Name:       name,
			Resolution: CommonResolutions[0],
			BatchSize:  1,
			Iterations: 20,
			WarmupRuns: 1,
		},
	}
}

// WithResolution sets the padded tensor size.
func (sb *ScenarioBuilder) WithResolution(width, height int) *ScenarioBuilder {
	sb.scenario.Resolution = Resolution{
		Width:  width,
		Height: height,
		Name:   fmt.Sprintf("%dx%d", width, height),
	}
	return sb
}

// WithBatchSize sets the number of images per inference call.
func (sb *ScenarioBuilder) WithBatchSize(batchSize int) *ScenarioBuilder {
	sb.scenario.BatchSize = batchSize
	return sb
}

// WithIterations sets the number of timed calls.
func (sb *ScenarioBuilder) WithIterations(iterations int) *ScenarioBuilder {
	sb.scenario.Iterations = iterations
	return sb
}

// WithWarmupRuns sets the number of untimed calls.
func (sb *ScenarioBuilder) WithWarmupRuns(warmups int) *ScenarioBuilder {
	sb.scenario.WarmupRuns = warmups
	return sb
}

// Build returns the configured scenario.
func (sb *ScenarioBuilder) Build() Scenario {
	return sb.scenario
}

// BatchSweep returns one scenario per batch size at a fixed resolution.
func BatchSweep(resolution Resolution, iterations int, sizes ...int) []Scenario {
	out := make([]Scenario, 0, len(sizes))
	for _, size := range sizes {
		out = append(out, NewScenarioBuilder(fmt.Sprintf("batch_%d_%s", size, resolution.Name)).
			WithResolution(resolution.Width, resolution.Height).
			WithBatchSize(size).
			WithIterations(iterations).
			Build())
	}
	return out
}

// LoadScenarios reads a YAML list of scenarios.
func LoadScenarios(path string) ([]Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(errdefs.ErrMissingResource, "scenario file %s does not exist", path)
		}
		return nil, errors.Wrapf(err, "read scenario file %s", path)
	}

	var scenarios []Scenario
	if err := yaml.Unmarshal(data, &scenarios); err != nil {
		return nil, errors.Wrapf(errdefs.ErrInvalidConfig, "parse scenario file %s: %v", path, err)
	}
	for _, s := range scenarios {
		if err := s.Validate(); err != nil {
			return nil, err
		}
	}
	return scenarios, nil
}

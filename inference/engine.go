package inference

import (
	"context"
	"fmt"
	"time"

	"github.com/nvr-ai/go-batchdet/batch"
	"github.com/nvr-ai/go-batchdet/errdefs"
	"github.com/nvr-ai/go-batchdet/inference/providers"
	"github.com/nvr-ai/go-batchdet/models"
	"github.com/nvr-ai/go-batchdet/models/model"
	"github.com/nvr-ai/go-batchdet/models/postprocess"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorgonia.org/tensor"
)

// Engine turns batches into raw per-image detections with one predictor call each.
//
// The engine holds no state between calls, so running the same batch twice yields the
// same detections. Batches are never split: a batch larger than the predictor accepts
// is rejected.
type Engine struct {
	predictor Predictor
	model     model.Model
	logger    *zap.Logger
	// ownsRuntime is set when Close must also tear down the onnxruntime environment.
	ownsRuntime bool
}

// NewEngine wraps an existing predictor.
//
// Arguments:
//   - predictor: The detector to call.
//   - logger: Optional logger. nil disables logging.
//
// Returns:
//   - *Engine: The engine.
func NewEngine(predictor Predictor, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{predictor: predictor, logger: logger}
}

// Model returns the model the engine was built with, or nil for a bare predictor.
func (e *Engine) Model() model.Model {
	return e.model
}

// Detect runs one batch through the predictor.
//
// Arguments:
//   - ctx: Passed to the predictor. An in-flight call is not interrupted by the engine.
//   - b: The batch to run.
//
// Returns:
//   - []postprocess.RawDetectionSet: One raw set per image, in batch order.
//   - time.Duration: Wall-clock time spent in the predictor.
//   - error: errdefs.ErrInvalidInput for an empty or oversized batch,
//     errdefs.ErrInference when the predictor fails or returns the wrong number of
//     results.
func (e *Engine) Detect(ctx context.Context, b *batch.Batch) ([]postprocess.RawDetectionSet, time.Duration, error) {
	if b == nil || b.Len() == 0 {
		return nil, 0, errors.Wrap(errdefs.ErrInvalidInput, "empty batch")
	}
	if limit := e.predictor.MaxBatch(); limit > 0 && b.Len() > limit {
		return nil, 0, errors.Wrapf(errdefs.ErrInvalidInput,
			"batch %d holds %d images, predictor accepts at most %d", b.Index, b.Len(), limit)
	}

	data, err := b.Data()
	if err != nil {
		return nil, 0, errors.Wrapf(err, "batch %d", b.Index)
	}
	inputs := Inputs{
		Tensors: map[string]*tensor.Dense{
			InputData:      data,
			InputImageInfo: b.Info(),
		},
		Scales:   b.Scales(),
		Geometry: b.Geometry,
	}

	start := time.Now()
	results, err := e.predictor.Predict(ctx, inputs)
	elapsed := time.Since(start)
	if err != nil {
		return nil, elapsed, fmt.Errorf("batch %d: %w: %w", b.Index, errdefs.ErrInference, err)
	}
	if len(results) != b.Len() {
		return nil, elapsed, errors.Wrapf(errdefs.ErrInference,
			"batch %d: predictor returned %d results for %d images", b.Index, len(results), b.Len())
	}

	e.logger.Debug("batch detected",
		zap.Int("batch", b.Index),
		zap.Int("images", b.Len()),
		zap.Duration("elapsed", elapsed),
	)
	return results, elapsed, nil
}

// Close releases the predictor and, when the engine initialized it, the runtime.
func (e *Engine) Close() error {
	err := e.predictor.Close()
	if e.ownsRuntime {
		err = multierr.Append(err, providers.DestroyEnvironment())
	}
	return err
}

// EngineBuilder builds an Engine with a fluent API.
type EngineBuilder struct {
	provider  *providers.Config
	args      *model.NewModelArgs
	registry  *models.Registry
	predictor Predictor
	logger    *zap.Logger
	err       error
}

// NewEngineBuilder creates a new engine builder.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func NewEngineBuilder() *EngineBuilder {
	return &EngineBuilder{registry: models.DefaultRegistry(), logger: zap.NewNop()}
}

// WithProvider sets the execution provider for the engine.
//
// Arguments:
//   - config: The provider configuration.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func (b *EngineBuilder) WithProvider(config providers.Config) *EngineBuilder {
	if b.HasError() {
		return b
	}
	if err := config.Validate(); err != nil {
		b.err = err
		return b
	}
	b.provider = &config
	return b
}

// WithModel sets the model for the engine.
//
// Arguments:
//   - args: The model arguments.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func (b *EngineBuilder) WithModel(args model.NewModelArgs) *EngineBuilder {
	if b.HasError() {
		return b
	}
	b.args = &args
	return b
}

// WithRegistry replaces the registry used to resolve model names.
func (b *EngineBuilder) WithRegistry(registry *models.Registry) *EngineBuilder {
	b.registry = registry
	return b
}

// WithPredictor uses predictor instead of opening an onnxruntime session.
func (b *EngineBuilder) WithPredictor(predictor Predictor) *EngineBuilder {
	b.predictor = predictor
	return b
}

// WithLogger sets the engine logger.
func (b *EngineBuilder) WithLogger(logger *zap.Logger) *EngineBuilder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// HasError checks if the engine builder has errors.
//
// Returns:
//   - bool: True if there are errors, false otherwise.
func (b *EngineBuilder) HasError() bool {
	return b.err != nil
}

// MustBuild builds the engine and panics if there is an error.
//
// Returns:
//   - *Engine: The engine.
func (b *EngineBuilder) MustBuild() *Engine {
	e, err := b.Build()
	if err != nil {
		panic(err)
	}
	return e
}

// Build builds the engine.
//
// With a model but no explicit predictor, Build initializes the onnxruntime
// environment and opens a session for the model.
//
// Returns:
//   - *Engine: The engine.
//   - error: The first error recorded by the builder, or the session error.
func (b *EngineBuilder) Build() (*Engine, error) {
	if b.HasError() {
		return nil, b.err
	}

	var m model.Model
	if b.args != nil {
		var err error
		if m, err = b.registry.NewModel(*b.args); err != nil {
			return nil, err
		}
	}

	if b.predictor != nil {
		e := NewEngine(b.predictor, b.logger)
		e.model = m
		return e, nil
	}

	if m == nil {
		return nil, errors.Wrap(errdefs.ErrInvalidConfig, "model not configured")
	}
	if b.provider == nil {
		return nil, errors.Wrap(errdefs.ErrInvalidConfig, "provider not configured")
	}

	if err := providers.InitializeEnvironment(*b.provider); err != nil {
		return nil, err
	}
	session, err := NewSession(m, *b.provider)
	if err != nil {
		return nil, multierr.Append(err, providers.DestroyEnvironment())
	}

	b.logger.Info("onnxruntime session ready",
		zap.String("model", string(m.Options().Name)),
		zap.String("path", m.Options().Path),
		zap.String("backend", string(b.provider.Backend)),
	)

	e := NewEngine(session, b.logger)
	e.model = m
	e.ownsRuntime = true
	return e, nil
}

// Package pipeline - Runs a directory of images through batched detection.
package pipeline

import (
	"context"
	"image"
	"iter"
	"os"
	"time"

	"github.com/nvr-ai/go-batchdet/batch"
	"github.com/nvr-ai/go-batchdet/config"
	"github.com/nvr-ai/go-batchdet/errdefs"
	"github.com/nvr-ai/go-batchdet/images"
	"github.com/nvr-ai/go-batchdet/models/model"
	"github.com/nvr-ai/go-batchdet/models/model/preprocess"
	"github.com/nvr-ai/go-batchdet/models/postprocess"
	"github.com/nvr-ai/go-batchdet/profiler"
	"github.com/nvr-ai/go-batchdet/util"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Detector runs one batch and reports how long the inference call took.
type Detector interface {
	Detect(ctx context.Context, b *batch.Batch) ([]postprocess.RawDetectionSet, time.Duration, error)
}

// Renderer writes the annotated output for one input image.
type Renderer interface {
	Render(path string, dets []postprocess.Detection) error
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the run logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithClasses sets the label set used for per-class counts in the summary.
func WithClasses(classes *model.ClassSet) Option {
	return func(r *Runner) { r.classes = classes }
}

// WithPreprocess sets the preprocessing used when the config has no override.
func WithPreprocess(cfg *preprocess.ModelConfig) Option {
	return func(r *Runner) { r.preprocess = cfg }
}

// WithModel checks the class count and box layout against the model the detector
// runs, filling them in when the config leaves them unset.
func WithModel(opts model.Options) Option {
	return func(r *Runner) { r.model = &opts }
}

// WithImageLoader replaces the image decoder.
func WithImageLoader(load func(path string) (image.Image, error)) Option {
	return func(r *Runner) { r.load = load }
}

// Runner drives enumerate -> preprocess -> batch -> detect -> suppress -> render.
//
// Everything happens on the calling goroutine, one batch at a time.
type Runner struct {
	cfg        config.Config
	detector   Detector
	renderer   Renderer
	classes    *model.ClassSet
	model      *model.Options
	preprocess *preprocess.ModelConfig
	load       func(path string) (image.Image, error)
	logger     *zap.Logger
}

// NewRunner creates a runner.
//
// Arguments:
//   - cfg: The run configuration. It is validated here.
//   - detector: The detection engine.
//   - renderer: Receives every processed image.
//   - opts: Optional settings.
//
// Returns:
//   - *Runner: The runner.
//   - error: errdefs.ErrInvalidConfig for an invalid configuration, a configuration
//     that contradicts the model given with WithModel, or a missing collaborator.
func NewRunner(cfg config.Config, detector Detector, renderer Renderer, opts ...Option) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if detector == nil {
		return nil, errors.Wrap(errdefs.ErrInvalidConfig, "detector is required")
	}
	if renderer == nil {
		return nil, errors.Wrap(errdefs.ErrInvalidConfig, "renderer is required")
	}

	r := &Runner{
		cfg:        cfg,
		detector:   detector,
		renderer:   renderer,
		preprocess: preprocess.GetRFCNConfig(),
		load:       images.Load,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.model != nil {
		resolved, err := cfg.ForModel(*r.model)
		if err != nil {
			return nil, err
		}
		r.cfg = resolved
	}
	if cfg.Preprocess != nil {
		r.preprocess = cfg.Preprocess
	}
	return r, nil
}

// Run processes every input image.
//
// The first batch is run WarmupRuns extra times before timing starts; those results
// are discarded. Any error aborts the run and is returned as is. Outputs already
// written stay on disk.
//
// Arguments:
//   - ctx: Checked between batches.
//
// Returns:
//   - *Summary: Counts, per-image results and latency of the run. On error it holds
//     what was completed so far.
//   - error: The first failure.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	summary := newSummary()

	files, err := util.ListImageFiles(r.cfg.InputGlob)
	if err != nil {
		return summary, err
	}
	r.logger.Info("inputs enumerated", zap.Int("images", len(files)), zap.String("glob", r.cfg.InputGlob))

	if err := os.MkdirAll(r.cfg.OutputDir, 0o755); err != nil {
		return summary, errors.Wrapf(err, "create output directory %s", r.cfg.OutputDir)
	}

	preprocessor, err := preprocess.NewPreprocessor(r.preprocess)
	if err != nil {
		return summary, err
	}

	throughput := profiler.NewThroughput()
	stages := profiler.NewStages()

	batches, err := batch.Assemble(r.items(files, preprocessor, stages, summary), r.cfg.BatchCapacity)
	if err != nil {
		return summary, err
	}

	nms := r.cfg.NMS()
	warmedUp := false

	for b, err := range batches {
		if err != nil {
			return r.finish(summary, throughput, stages), err
		}
		if err := ctx.Err(); err != nil {
			return r.finish(summary, throughput, stages), err
		}

		if !warmedUp {
			if err := r.warmup(ctx, b); err != nil {
				return r.finish(summary, throughput, stages), err
			}
			warmedUp = true
		}

		raws, elapsed, err := r.detector.Detect(ctx, b)
		if err != nil {
			return r.finish(summary, throughput, stages), err
		}
		throughput.Record(elapsed, b.Len())
		stages.Record(profiler.StageInference, elapsed)

		r.logger.Info("testing",
			zap.String("image", b.ImageIDs[0]),
			zap.Float64("average_latency", throughput.AverageLatency()),
			zap.Int("images", b.Len()),
		)

		for i, raw := range raws {
			done := stages.StartOperation(profiler.StagePostprocess)
			dets, err := postprocess.Postprocess(raw, nms)
			done()
			if err != nil {
				return r.finish(summary, throughput, stages), errors.Wrapf(err, "image %s", b.ImageIDs[i])
			}

			done = stages.StartOperation(profiler.StageRender)
			err = r.renderer.Render(b.ImageIDs[i], dets)
			done()
			if err != nil {
				return r.finish(summary, throughput, stages), errors.Wrapf(err, "render %s", b.ImageIDs[i])
			}

			summary.add(b.ImageIDs[i], dets, r.classes)
		}
		summary.Batches++
	}

	r.finish(summary, throughput, stages)
	stages.Log(r.logger)
	r.logger.Info("done",
		zap.Int("images", summary.Images),
		zap.Int("batches", summary.Batches),
		zap.Int("detections", summary.Detections),
		zap.Float64("average_latency", summary.AverageLatency),
	)

	if r.cfg.ReportPath != "" {
		if err := summary.WriteReport(r.cfg.ReportPath); err != nil {
			return summary, err
		}
	}
	return summary, nil
}

func (r *Runner) warmup(ctx context.Context, b *batch.Batch) error {
	for i := 0; i < r.cfg.WarmupRuns; i++ {
		if _, _, err := r.detector.Detect(ctx, b); err != nil {
			return errors.Wrap(err, "warmup")
		}
	}
	if r.cfg.WarmupRuns > 0 {
		r.logger.Info("warmup done", zap.Int("runs", r.cfg.WarmupRuns), zap.Int("images", b.Len()))
	}
	return nil
}

func (r *Runner) finish(s *Summary, t *profiler.Throughput, stages *profiler.Stages) *Summary {
	s.AverageLatency = t.AverageLatency()
	s.ImagesPerSecond = t.ImagesPerSecond()
	s.InferenceTime = t.Total()
	s.Stages = stages.All()
	return s
}

// items lazily loads and preprocesses files into batch items.
func (r *Runner) items(
	files []util.ImageFile,
	preprocessor *preprocess.Preprocessor,
	stages *profiler.Stages,
	summary *Summary,
) iter.Seq2[batch.Item, error] {
	return func(yield func(batch.Item, error) bool) {
		for _, file := range files {
			done := stages.StartOperation(profiler.StageLoad)
			item, err := r.item(file, preprocessor)
			done()

			if err != nil {
				if r.cfg.SkipInvalidImages && errdefs.IsInvalidInput(err) {
					r.logger.Warn("skipping image", zap.String("image", file.Path), zap.Error(err))
					summary.Skipped = append(summary.Skipped, file.Path)
					continue
				}
				yield(batch.Item{}, err)
				return
			}
			if !yield(item, nil) {
				return
			}
		}
	}
}

func (r *Runner) item(file util.ImageFile, preprocessor *preprocess.Preprocessor) (batch.Item, error) {
	img, err := r.load(file.Path)
	if err != nil {
		return batch.Item{}, err
	}
	res, err := preprocessor.Preprocess(img)
	if err != nil {
		return batch.Item{}, errors.Wrapf(err, "preprocess %s", file.Path)
	}
	return batch.Item{ID: file.Path, Tensor: res.Tensor, Geometry: res.Geometry}, nil
}

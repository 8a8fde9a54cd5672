// Package main is the batch detection command.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-batchdet/benchmark"
	"github.com/nvr-ai/go-batchdet/config"
	"github.com/nvr-ai/go-batchdet/inference"
	"github.com/nvr-ai/go-batchdet/inference/providers"
	"github.com/nvr-ai/go-batchdet/models"
	"github.com/nvr-ai/go-batchdet/models/model"
	"github.com/nvr-ai/go-batchdet/pipeline"
	"github.com/nvr-ai/go-batchdet/render"
)

const (
	// Flags.
	flagConfig        = "config"
	flagModel         = "model"
	flagModelPath     = "model-path"
	flagInput         = "input"
	flagOutput        = "output"
	flagBatch         = "batch"
	flagIoU           = "iou"
	flagScore         = "score"
	flagClassAgnostic = "class-agnostic"
	flagClassCount    = "class-count"
	flagWarmup        = "warmup"
	flagSkipInvalid   = "skip-invalid"
	flagReport        = "report"
	flagProvider      = "provider"
	flagLibrary       = "onnxruntime-lib"
	flagDebug         = "debug"

	benchFlagSizes      = "batch-sizes"
	benchFlagIterations = "iterations"
	benchFlagWidth      = "width"
	benchFlagHeight     = "height"
	benchFlagScenarios  = "scenarios"
	benchFlagOutput     = "results"
)

func main() {
	app := &cli.App{
		Name:  "batchdet",
		Usage: "run batched object detection over a directory of images",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: flagConfig, Aliases: []string{"c"}, Usage: "YAML run configuration"},
			&cli.StringFlag{Name: flagModel, Usage: "registered model name (rfcn, fasterrcnn)"},
			&cli.StringFlag{Name: flagModelPath, Usage: "ONNX model file"},
			&cli.StringFlag{Name: flagInput, Aliases: []string{"i"}, Usage: "glob matching the input images"},
			&cli.StringFlag{Name: flagOutput, Aliases: []string{"o"}, Usage: "directory for annotated images"},
			&cli.IntFlag{Name: flagBatch, Usage: "images per inference call"},
			&cli.Float64Flag{Name: flagIoU, Usage: "NMS IoU threshold"},
			&cli.Float64Flag{Name: flagScore, Usage: "minimum detection score"},
			&cli.BoolFlag{Name: flagClassAgnostic, Usage: "use the shared box for every class"},
			&cli.IntFlag{Name: flagClassCount, Usage: "classes to consider, including background (0 for all)"},
			&cli.IntFlag{Name: flagWarmup, Usage: "untimed inference runs on the first batch"},
			&cli.BoolFlag{Name: flagSkipInvalid, Usage: "skip images that cannot be decoded"},
			&cli.StringFlag{Name: flagReport, Usage: "write a JSON run summary to this path"},
			&cli.StringFlag{Name: flagProvider, Usage: "execution provider (cpu, cuda, coreml, openvino)"},
			&cli.StringFlag{Name: flagLibrary, Usage: "path to the onnxruntime shared library"},
			&cli.BoolFlag{Name: flagDebug, Usage: "enable debug logging"},
		},
		Action: run,
		Commands: []*cli.Command{
			{
				Name:  "benchmark",
				Usage: "measure engine throughput over synthetic batches",
				Flags: []cli.Flag{
					&cli.IntSliceFlag{Name: benchFlagSizes, Value: cli.NewIntSlice(1, 5, 10), Usage: "batch sizes to sweep"},
					&cli.IntFlag{Name: benchFlagIterations, Value: 20, Usage: "timed calls per scenario"},
					&cli.IntFlag{Name: benchFlagWidth, Value: benchmark.CommonResolutions[0].Width, Usage: "padded tensor width"},
					&cli.IntFlag{Name: benchFlagHeight, Value: benchmark.CommonResolutions[0].Height, Usage: "padded tensor height"},
					&cli.StringFlag{Name: benchFlagScenarios, Usage: "YAML scenario list, replaces the batch sweep"},
					&cli.StringFlag{Name: benchFlagOutput, Value: "benchmark_results", Usage: "directory for JSON and CSV results"},
				},
				Action: runBenchmark,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	logger, err := newLogger(c.Bool(flagDebug))
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	if cfg, err = forModel(cfg); err != nil {
		return err
	}

	engine, err := newEngine(cfg, cfg.BatchCapacity, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			logger.Warn("failed to close engine", zap.Error(err))
		}
	}()

	m := engine.Model()
	runner, err := pipeline.NewRunner(cfg, engine, render.NewRenderer(cfg.OutputDir, m.Classes()),
		pipeline.WithLogger(logger),
		pipeline.WithClasses(m.Classes()),
		pipeline.WithModel(m.Options()),
		pipeline.WithPreprocess(m.Options().Preprocess),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := runner.Run(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("interrupted", zap.Int("images", summary.Images))
		}
		return err
	}

	fmt.Fprintf(c.App.Writer, "%d images, %d detections, %.4fs per image\n",
		summary.Images, summary.Detections, summary.AverageLatency)
	return nil
}

func runBenchmark(c *cli.Context) error {
	logger, err := newLogger(c.Bool(flagDebug))
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	var scenarios []benchmark.Scenario
	if path := c.String(benchFlagScenarios); path != "" {
		if scenarios, err = benchmark.LoadScenarios(path); err != nil {
			return err
		}
	} else {
		w, h := c.Int(benchFlagWidth), c.Int(benchFlagHeight)
		resolution := benchmark.Resolution{Width: w, Height: h, Name: fmt.Sprintf("%dx%d", w, h)}
		scenarios = benchmark.BatchSweep(resolution, c.Int(benchFlagIterations), c.IntSlice(benchFlagSizes)...)
	}

	maxBatch := 0
	for _, s := range scenarios {
		maxBatch = max(maxBatch, s.BatchSize)
	}

	if cfg, err = forModel(cfg); err != nil {
		return err
	}

	engine, err := newEngine(cfg, maxBatch, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			logger.Warn("failed to close engine", zap.Error(err))
		}
	}()

	suite := benchmark.NewSuite(engine, cfg.NMS(), logger)
	if err := suite.RunAll(c.Context, scenarios); err != nil {
		return err
	}
	return suite.SaveResults(c.String(benchFlagOutput))
}

// forModel resolves the class settings against the selected model before any
// runtime is loaded, so a mismatch fails without touching onnxruntime.
func forModel(cfg config.Config) (config.Config, error) {
	m, err := models.DefaultRegistry().NewModel(model.NewModelArgs{Name: cfg.Model, Path: cfg.ModelPath})
	if err != nil {
		return cfg, err
	}
	return cfg.ForModel(m.Options())
}

func newEngine(cfg config.Config, maxBatch int, logger *zap.Logger) (*inference.Engine, error) {
	return inference.NewEngineBuilder().
		WithLogger(logger).
		WithProvider(cfg.Provider).
		WithModel(model.NewModelArgs{
			Name:     cfg.Model,
			Path:     cfg.ModelPath,
			MaxBatch: maxBatch,
		}).
		Build()
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// loadConfig layers explicitly set flags over the config file, or over the defaults
// when no file is given.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Default()
	if path := c.String(flagConfig); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return cfg, err
		}
	}

	if c.IsSet(flagModel) {
		cfg.Model = model.Name(c.String(flagModel))
	}
	if c.IsSet(flagModelPath) {
		cfg.ModelPath = c.String(flagModelPath)
	}
	if c.IsSet(flagInput) {
		cfg.InputGlob = c.String(flagInput)
	}
	if c.IsSet(flagOutput) {
		cfg.OutputDir = c.String(flagOutput)
	}
	if c.IsSet(flagBatch) {
		cfg.BatchCapacity = c.Int(flagBatch)
	}
	if c.IsSet(flagIoU) {
		cfg.IoUThreshold = float32(c.Float64(flagIoU))
	}
	if c.IsSet(flagScore) {
		cfg.ScoreThreshold = float32(c.Float64(flagScore))
	}
	if c.IsSet(flagClassAgnostic) {
		cfg.ClassAgnostic = config.Bool(c.Bool(flagClassAgnostic))
	}
	if c.IsSet(flagClassCount) {
		cfg.ClassCount = c.Int(flagClassCount)
	}
	if c.IsSet(flagWarmup) {
		cfg.WarmupRuns = c.Int(flagWarmup)
	}
	if c.IsSet(flagSkipInvalid) {
		cfg.SkipInvalidImages = c.Bool(flagSkipInvalid)
	}
	if c.IsSet(flagReport) {
		cfg.ReportPath = c.String(flagReport)
	}
	if c.IsSet(flagProvider) {
		cfg.Provider.Backend = providers.ProviderBackend(c.String(flagProvider))
	}
	if c.IsSet(flagLibrary) {
		cfg.Provider.LibraryPath = c.String(flagLibrary)
	}

	return cfg, cfg.Validate()
}

package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nvr-ai/go-batchdet/batch"
	"github.com/nvr-ai/go-batchdet/config"
	"github.com/nvr-ai/go-batchdet/errdefs"
	"github.com/nvr-ai/go-batchdet/images"
	"github.com/nvr-ai/go-batchdet/models/model"
	"github.com/nvr-ai/go-batchdet/models/model/preprocess"
	"github.com/nvr-ai/go-batchdet/models/postprocess"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// fakeDetector emits two overlapping class-1 boxes per image (scores 0.95 and 0.80)
// and one class-2 box below the score threshold.
type fakeDetector struct {
	sizes []int
	err   error
	after int
}

func (f *fakeDetector) Detect(_ context.Context, b *batch.Batch) ([]postprocess.RawDetectionSet, time.Duration, error) {
	f.sizes = append(f.sizes, b.Len())
	if f.err != nil && len(f.sizes) > f.after {
		return nil, 0, f.err
	}
	out := make([]postprocess.RawDetectionSet, b.Len())
	for i := range out {
		out[i] = postprocess.RawDetectionSet{
			NumBoxes:   2,
			NumClasses: 3,
			BoxWidth:   8,
			Scores: []float32{
				0.05, 0.95, 0.5,
				0.2, 0.80, 0.1,
			},
			Boxes: []float32{
				0, 0, 0, 0, 0, 0, 100, 100,
				0, 0, 0, 0, 0, 0, 100, 90,
			},
		}
	}
	return out, 10 * time.Millisecond * time.Duration(b.Len()), nil
}

type recordingRenderer struct {
	paths []string
	dets  [][]postprocess.Detection
	err   error
}

func (r *recordingRenderer) Render(path string, dets []postprocess.Detection) error {
	if r.err != nil {
		return r.err
	}
	r.paths = append(r.paths, path)
	r.dets = append(r.dets, dets)
	return nil
}

func writeImages(t *testing.T, dir string, n int) []string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 20, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 20; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 10), G: uint8(y * 20), B: 128, A: 255})
		}
	}

	paths := make([]string, n)
	for i := range paths {
		paths[i] = filepath.Join(dir, fmt.Sprintf("%06d.png", i))
		f, err := os.Create(paths[i])
		require.NoError(t, err)
		require.NoError(t, png.Encode(f, img))
		require.NoError(t, f.Close())
	}
	return paths
}

func testConfig(dir string) config.Config {
	cfg := config.Default()
	cfg.InputGlob = filepath.Join(dir, "*.png")
	cfg.OutputDir = filepath.Join(dir, "out")
	cfg.ClassCount = 3
	cfg.IoUThreshold = 0.5
	cfg.ScoreThreshold = 0.7
	return cfg
}

func smallPreprocess() *preprocess.ModelConfig {
	return &preprocess.ModelConfig{
		Name:       "test",
		TargetSize: 8,
		MaxSize:    16,
		PixelMeans: []float32{123.15, 115.90, 103.06},
	}
}

func TestRunner_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	paths := writeImages(t, dir, 23)
	cfg := testConfig(dir)
	cfg.ReportPath = filepath.Join(dir, "report.json")

	detector := &fakeDetector{}
	renderer := &recordingRenderer{}
	core, logs := observer.New(zap.InfoLevel)

	runner, err := NewRunner(cfg, detector, renderer,
		WithPreprocess(smallPreprocess()),
		WithClasses(model.VIDClasses),
		WithLogger(zap.New(core)),
	)
	require.NoError(t, err)

	summary, err := runner.Run(context.Background())
	require.NoError(t, err)

	// One warm-up call on the first batch, then 10, 10, 3.
	assert.Equal(t, []int{10, 10, 10, 3}, detector.sizes)
	assert.Equal(t, paths, renderer.paths, "every image rendered once, in order")

	for _, dets := range renderer.dets {
		require.Len(t, dets, 1)
		assert.Equal(t, 1, dets[0].Class)
		assert.Equal(t, float32(0.95), dets[0].Score)
	}

	assert.Equal(t, 23, summary.Images)
	assert.Equal(t, 3, summary.Batches)
	assert.Equal(t, 23, summary.Detections)
	assert.Equal(t, map[string]int{"airplane": 23}, summary.DetectionsPerClass)
	assert.InDelta(t, 0.01, summary.AverageLatency, 1e-9)
	assert.Len(t, summary.Results, 23)

	info, err := os.Stat(cfg.OutputDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	data, err := os.ReadFile(cfg.ReportPath)
	require.NoError(t, err)
	var report Summary
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, 23, report.Images)

	assert.Equal(t, 3, logs.FilterMessage("testing").Len())
	assert.Equal(t, 1, logs.FilterMessage("warmup done").Len())
}

func TestRunner_NoWarmup(t *testing.T) {
	dir := t.TempDir()
	writeImages(t, dir, 4)
	cfg := testConfig(dir)
	cfg.WarmupRuns = 0
	cfg.BatchCapacity = 3

	detector := &fakeDetector{}
	runner, err := NewRunner(cfg, detector, &recordingRenderer{}, WithPreprocess(smallPreprocess()))
	require.NoError(t, err)

	_, err = runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{3, 1}, detector.sizes)
}

func TestRunner_EmptyInput(t *testing.T) {
	dir := t.TempDir()
	detector := &fakeDetector{}
	runner, err := NewRunner(testConfig(dir), detector, &recordingRenderer{}, WithPreprocess(smallPreprocess()))
	require.NoError(t, err)

	summary, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Images)
	assert.Empty(t, detector.sizes)
	assert.Zero(t, summary.AverageLatency)
}

func TestRunner_MissingImageAborts(t *testing.T) {
	dir := t.TempDir()
	paths := writeImages(t, dir, 12)
	cfg := testConfig(dir)

	load := func(path string) (image.Image, error) {
		if path == paths[11] {
			return nil, fmt.Errorf("open %s: %w", path, errdefs.ErrMissingResource)
		}
		return images.Load(path)
	}

	renderer := &recordingRenderer{}
	runner, err := NewRunner(cfg, &fakeDetector{}, renderer,
		WithPreprocess(smallPreprocess()), WithImageLoader(load))
	require.NoError(t, err)

	summary, err := runner.Run(context.Background())
	assert.True(t, errors.Is(err, errdefs.ErrMissingResource), "got %v", err)
	// The first full batch completed before the failure.
	assert.Equal(t, 10, summary.Images)
	assert.Len(t, renderer.paths, 10)
}

func TestRunner_InvalidImage(t *testing.T) {
	dir := t.TempDir()
	writeImages(t, dir, 3)
	corrupt := filepath.Join(dir, "000001a.png")
	require.NoError(t, os.WriteFile(corrupt, []byte("not a png"), 0o600))

	t.Run("abort", func(t *testing.T) {
		runner, err := NewRunner(testConfig(dir), &fakeDetector{}, &recordingRenderer{}, WithPreprocess(smallPreprocess()))
		require.NoError(t, err)
		_, err = runner.Run(context.Background())
		assert.True(t, errors.Is(err, errdefs.ErrInvalidInput), "got %v", err)
	})

	t.Run("skip", func(t *testing.T) {
		cfg := testConfig(dir)
		cfg.SkipInvalidImages = true
		renderer := &recordingRenderer{}
		runner, err := NewRunner(cfg, &fakeDetector{}, renderer, WithPreprocess(smallPreprocess()))
		require.NoError(t, err)

		summary, err := runner.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 3, summary.Images)
		assert.Equal(t, []string{corrupt}, summary.Skipped)
		assert.NotContains(t, renderer.paths, corrupt)
	})
}

func TestRunner_DetectorFailure(t *testing.T) {
	dir := t.TempDir()
	writeImages(t, dir, 15)
	cfg := testConfig(dir)
	cfg.WarmupRuns = 0

	boom := fmt.Errorf("%w: device lost", errdefs.ErrInference)
	detector := &fakeDetector{err: boom, after: 1}
	renderer := &recordingRenderer{}
	runner, err := NewRunner(cfg, detector, renderer, WithPreprocess(smallPreprocess()))
	require.NoError(t, err)

	summary, err := runner.Run(context.Background())
	assert.True(t, errors.Is(err, errdefs.ErrInference))
	assert.Equal(t, 10, summary.Images)
	assert.Len(t, renderer.paths, 10)
}

func TestRunner_RendererFailure(t *testing.T) {
	dir := t.TempDir()
	writeImages(t, dir, 2)
	boom := errors.New("disk full")

	runner, err := NewRunner(testConfig(dir), &fakeDetector{}, &recordingRenderer{err: boom}, WithPreprocess(smallPreprocess()))
	require.NoError(t, err)

	_, err = runner.Run(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestRunner_ContextCancelled(t *testing.T) {
	dir := t.TempDir()
	writeImages(t, dir, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	detector := &fakeDetector{}
	runner, err := NewRunner(testConfig(dir), detector, &recordingRenderer{}, WithPreprocess(smallPreprocess()))
	require.NoError(t, err)

	_, err = runner.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, detector.sizes)
}

func TestNewRunner_Validation(t *testing.T) {
	cfg := testConfig(t.TempDir())

	_, err := NewRunner(cfg, nil, &recordingRenderer{})
	assert.True(t, errors.Is(err, errdefs.ErrInvalidConfig))

	_, err = NewRunner(cfg, &fakeDetector{}, nil)
	assert.True(t, errors.Is(err, errdefs.ErrInvalidConfig))

	cfg.BatchCapacity = 0
	_, err = NewRunner(cfg, &fakeDetector{}, &recordingRenderer{})
	assert.True(t, errors.Is(err, errdefs.ErrInvalidConfig))
}

func TestNewRunner_ModelClassSettings(t *testing.T) {
	frcnn := model.Options{Name: model.ModelNameFasterRCNN, NumClasses: 21, ClassAgnostic: false}

	t.Run("unset values follow the model", func(t *testing.T) {
		cfg := config.Default()
		cfg.Model = model.ModelNameFasterRCNN
		runner, err := NewRunner(cfg, &fakeDetector{}, &recordingRenderer{}, WithModel(frcnn))
		require.NoError(t, err)

		nms := runner.cfg.NMS()
		assert.Equal(t, 21, nms.ClassCount)
		assert.False(t, nms.ClassAgnostic)
	})

	t.Run("contradicting values fail before inference", func(t *testing.T) {
		dir := t.TempDir()
		writeImages(t, dir, 2)
		cfg := testConfig(dir)
		cfg.ClassCount = 31

		detector := &fakeDetector{}
		_, err := NewRunner(cfg, detector, &recordingRenderer{}, WithModel(frcnn))
		assert.True(t, errors.Is(err, errdefs.ErrInvalidConfig), "got %v", err)

		cfg.ClassCount = 0
		cfg.ClassAgnostic = config.Bool(true)
		_, err = NewRunner(cfg, detector, &recordingRenderer{}, WithModel(frcnn))
		assert.True(t, errors.Is(err, errdefs.ErrInvalidConfig), "got %v", err)
		assert.Empty(t, detector.sizes)
	})
}

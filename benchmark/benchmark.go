package benchmark

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/nvr-ai/go-batchdet/batch"
	"github.com/nvr-ai/go-batchdet/images"
	"github.com/nvr-ai/go-batchdet/models/postprocess"
	"github.com/nvr-ai/go-batchdet/profiler"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorgonia.org/tensor"
)

// Detector runs one batch and reports how long the inference call took.
type Detector interface {
	Detect(ctx context.Context, b *batch.Batch) ([]postprocess.RawDetectionSet, time.Duration, error)
}

// Suite runs scenarios against a detector and keeps their metrics.
//
// A suite is driven from one goroutine.
type Suite struct {
	detector Detector
	nms      postprocess.NMSConfig
	logger   *zap.Logger
	results  []PerformanceMetrics
}

// NewSuite creates a benchmark suite.
//
// Arguments:
//   - detector: The engine under test.
//   - nms: Suppression settings applied to every result, so post-processing cost is
//     part of the measurement.
//   - logger: Receives one line per scenario. Nil discards.
func NewSuite(detector Detector, nms postprocess.NMSConfig, logger *zap.Logger) *Suite {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Suite{detector: detector, nms: nms, logger: logger}
}

// RunScenario executes one scenario over a synthetic batch of mid-gray images.
//
// Failed iterations are counted in ErrorRate rather than aborting the scenario;
// context cancellation aborts.
func (s *Suite) RunScenario(ctx context.Context, scenario Scenario) (*PerformanceMetrics, error) {
	if err := scenario.Validate(); err != nil {
		return nil, err
	}

	b, err := SyntheticBatch(scenario.BatchSize, scenario.Resolution)
	if err != nil {
		return nil, err
	}

	for i := 0; i < scenario.WarmupRuns; i++ {
		if _, _, err := s.detector.Detect(ctx, b); err != nil {
			s.logger.Debug("warmup failed", zap.String("scenario", scenario.Name), zap.Error(err))
		}
	}

	metrics := &PerformanceMetrics{
		Scenario:  scenario,
		Timestamp: time.Now(),
		NumCPU:    runtime.NumCPU(),
	}
	throughput := profiler.NewThroughput()
	startMem := readMemStats()
	start := time.Now()
	failures := 0

	for i := 0; i < scenario.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		raws, elapsed, err := s.detector.Detect(ctx, b)
		if err != nil {
			failures++
			continue
		}
		throughput.Record(elapsed, b.Len())

		postStart := time.Now()
		dets, err := postprocess.PostprocessBatch(raws, s.nms)
		metrics.PostProcessDuration += time.Since(postStart)
		if err != nil {
			failures++
			continue
		}
		for _, d := range dets {
			metrics.DetectionCount += len(d)
		}
	}

	metrics.TotalDuration = time.Since(start)
	metrics.MemoryStats = memoryDelta(startMem, readMemStats())
	metrics.InferenceDuration = throughput.Total()
	metrics.AverageLatency = throughput.AverageLatency()
	metrics.ImagesPerSecond = throughput.ImagesPerSecond()
	metrics.ErrorRate = float64(failures) / float64(scenario.Iterations)

	return metrics, nil
}

// RunAll executes every scenario in order. A scenario that fails validation is
// logged and skipped.
func (s *Suite) RunAll(ctx context.Context, scenarios []Scenario) error {
	for _, scenario := range scenarios {
		metrics, err := s.RunScenario(ctx, scenario)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			s.logger.Warn("scenario failed", zap.String("scenario", scenario.Name), zap.Error(err))
			continue
		}
		s.results = append(s.results, *metrics)
		s.logger.Info("scenario completed",
			zap.String("scenario", scenario.Name),
			zap.Int("batch_size", scenario.BatchSize),
			zap.Float64("images_per_second", metrics.ImagesPerSecond),
			zap.Float64("average_latency", metrics.AverageLatency),
			zap.Float64("error_rate", metrics.ErrorRate),
		)
	}
	return nil
}

// Results returns the metrics collected so far.
func (s *Suite) Results() []PerformanceMetrics {
	out := make([]PerformanceMetrics, len(s.results))
	copy(out, s.results)
	return out
}

// SaveResults writes benchmark_results.json and benchmark_summary.csv into dir.
func (s *Suite) SaveResults(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create output directory %s", dir)
	}

	data, err := json.MarshalIndent(s.results, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal results")
	}
	if err := os.WriteFile(filepath.Join(dir, "benchmark_results.json"), data, 0o644); err != nil {
		return errors.Wrap(err, "write results file")
	}

	return s.saveSummaryCSV(filepath.Join(dir, "benchmark_summary.csv"))
}

func (s *Suite) saveSummaryCSV(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create summary file")
	}
	defer file.Close()

	w := csv.NewWriter(file)
	rows := [][]string{{"scenario", "resolution", "batch_size", "images_per_second",
		"average_latency_s", "total_duration_ms", "alloc_mb", "detections", "error_rate"}}
	for _, r := range s.results {
		rows = append(rows, []string{
			r.Scenario.Name,
			r.Scenario.Resolution.Name,
			strconv.Itoa(r.Scenario.BatchSize),
			fmt.Sprintf("%.2f", r.ImagesPerSecond),
			fmt.Sprintf("%.4f", r.AverageLatency),
			fmt.Sprintf("%.2f", float64(r.TotalDuration.Nanoseconds())/1e6),
			fmt.Sprintf("%.2f", float64(r.MemoryStats.AllocBytes)/(1024*1024)),
			strconv.Itoa(r.DetectionCount),
			fmt.Sprintf("%.4f", r.ErrorRate),
		})
	}
	if err := w.WriteAll(rows); err != nil {
		return errors.Wrap(err, "write summary file")
	}
	return nil
}

// SyntheticBatch builds a batch of size identical zero-mean images at resolution,
// as a mean-subtracted mid-gray frame would produce.
func SyntheticBatch(size int, resolution Resolution) (*batch.Batch, error) {
	items := make([]batch.Item, size)
	for i := range items {
		items[i] = batch.Item{
			ID: fmt.Sprintf("synthetic_%03d", i),
			Tensor: tensor.New(
				tensor.WithShape(3, resolution.Height, resolution.Width),
				tensor.Of(tensor.Float32),
			),
			Geometry: images.Geometry{Height: resolution.Height, Width: resolution.Width, Scale: 1},
		}
	}

	batches, err := batch.Assemble(batch.FromSlice(items), size)
	if err != nil {
		return nil, err
	}
	out, err := batch.Collect(batches)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

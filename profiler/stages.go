package profiler

import (
	"sort"
	"time"

	"go.uber.org/zap"
)

// Stage names used by the pipeline.
const (
	StageLoad        = "load"
	StageInference   = "inference"
	StagePostprocess = "postprocess"
	StageRender      = "render"
)

// StageStats is a snapshot of one stage's timing statistics.
type StageStats struct {
	Name    string        `json:"name"`
	Count   int64         `json:"count"`
	Total   time.Duration `json:"total"`
	Min     time.Duration `json:"min"`
	Max     time.Duration `json:"max"`
	Average time.Duration `json:"average"`
}

// timeTracker tracks operation timing statistics.
type timeTracker struct {
	totalTime time.Duration
	minTime   time.Duration
	maxTime   time.Duration
	count     int64
}

// Stages tracks timing per named pipeline stage. Like Throughput it belongs to the
// processing loop and takes no locks.
type Stages struct {
	trackers map[string]*timeTracker
	now      func() time.Time
}

// NewStages returns an empty stage timer.
func NewStages() *Stages {
	return &Stages{trackers: make(map[string]*timeTracker), now: time.Now}
}

// StartOperation begins timing an operation.
//
// Arguments:
//   - name: The name of the stage to track.
//
// Returns:
//   - A function to call when the operation completes.
func (s *Stages) StartOperation(name string) func() {
	start := s.now()
	return func() {
		s.Record(name, s.now().Sub(start))
	}
}

// Record adds one completed operation of duration d to stage name.
func (s *Stages) Record(name string, d time.Duration) {
	tracker, exists := s.trackers[name]
	if !exists {
		tracker = &timeTracker{minTime: d, maxTime: d}
		s.trackers[name] = tracker
	}

	tracker.totalTime += d
	tracker.count++

	if d < tracker.minTime {
		tracker.minTime = d
	}
	if d > tracker.maxTime {
		tracker.maxTime = d
	}
}

// Stats returns the statistics of stage name and whether it has been recorded.
func (s *Stages) Stats(name string) (StageStats, bool) {
	tracker, ok := s.trackers[name]
	if !ok {
		return StageStats{Name: name}, false
	}
	return StageStats{
		Name:    name,
		Count:   tracker.count,
		Total:   tracker.totalTime,
		Min:     tracker.minTime,
		Max:     tracker.maxTime,
		Average: tracker.totalTime / time.Duration(tracker.count),
	}, true
}

// All returns the statistics of every recorded stage, sorted by name.
func (s *Stages) All() []StageStats {
	names := make([]string, 0, len(s.trackers))
	for name := range s.trackers {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]StageStats, 0, len(names))
	for _, name := range names {
		stats, _ := s.Stats(name)
		out = append(out, stats)
	}
	return out
}

// Log writes one line per stage.
func (s *Stages) Log(logger *zap.Logger) {
	for _, stats := range s.All() {
		logger.Info("stage timing",
			zap.String("stage", stats.Name),
			zap.Int64("count", stats.Count),
			zap.Duration("avg", stats.Average.Truncate(time.Microsecond)),
			zap.Duration("min", stats.Min.Truncate(time.Microsecond)),
			zap.Duration("max", stats.Max.Truncate(time.Microsecond)),
		)
	}
}

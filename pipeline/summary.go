package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/nvr-ai/go-batchdet/models/model"
	"github.com/nvr-ai/go-batchdet/models/postprocess"
	"github.com/nvr-ai/go-batchdet/profiler"
	"github.com/pkg/errors"
)

// ImageResult is the outcome for one input image.
type ImageResult struct {
	Image      string                  `json:"image"`
	Detections []postprocess.Detection `json:"detections"`
}

// Summary describes a finished (or aborted) run.
type Summary struct {
	Images             int                   `json:"images"`
	Batches            int                   `json:"batches"`
	Detections         int                   `json:"detections"`
	DetectionsPerClass map[string]int        `json:"detections_per_class"`
	Skipped            []string              `json:"skipped,omitempty"`
	AverageLatency     float64               `json:"average_latency_seconds"`
	ImagesPerSecond    float64               `json:"images_per_second"`
	InferenceTime      time.Duration         `json:"inference_time_ns"`
	Stages             []profiler.StageStats `json:"stages"`
	Results            []ImageResult         `json:"results"`
}

func newSummary() *Summary {
	return &Summary{DetectionsPerClass: map[string]int{}}
}

func (s *Summary) add(image string, dets []postprocess.Detection, classes *model.ClassSet) {
	s.Images++
	s.Detections += len(dets)
	for _, d := range dets {
		name := fmt.Sprintf("class_%d", d.Class)
		if classes != nil {
			name = classes.Name(d.Class)
		}
		s.DetectionsPerClass[name]++
	}
	s.Results = append(s.Results, ImageResult{Image: image, Detections: dets})
}

// WriteReport writes the summary as indented JSON.
func (s *Summary) WriteReport(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode report")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "write report %s", path)
	}
	return nil
}

// Package profiler - Throughput and per-stage timing for the detection loop.
package profiler

import "time"

// Throughput accumulates inference time and image counts across batches.
//
// Totals only grow; nothing is ever reset. The tracker is owned by the single
// processing loop and is not safe for concurrent use.
type Throughput struct {
	total   time.Duration
	images  int
	batches int
}

// NewThroughput returns an empty tracker.
func NewThroughput() *Throughput {
	return &Throughput{}
}

// Record adds one batch's elapsed inference time and image count.
//
// Arguments:
//   - elapsed: Wall-clock time of the inference call.
//   - images: Number of images in the batch.
func (t *Throughput) Record(elapsed time.Duration, images int) {
	t.total += elapsed
	t.images += images
	t.batches++
}

// AverageLatency returns the mean inference time per image in seconds, or 0 before
// any image has been recorded.
func (t *Throughput) AverageLatency() float64 {
	if t.images == 0 {
		return 0
	}
	return t.total.Seconds() / float64(t.images)
}

// Images returns the number of images recorded.
func (t *Throughput) Images() int {
	return t.images
}

// Batches returns the number of Record calls.
func (t *Throughput) Batches() int {
	return t.batches
}

// Total returns the accumulated inference time.
func (t *Throughput) Total() time.Duration {
	return t.total
}

// ImagesPerSecond returns the processing rate, or 0 when no time has been recorded.
func (t *Throughput) ImagesPerSecond() float64 {
	if t.total <= 0 {
		return 0
	}
	return float64(t.images) / t.total.Seconds()
}

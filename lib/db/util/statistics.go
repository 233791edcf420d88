// Package util provides the monitoring helpers used by engine implementations.
// This file implements a rolling latency window, a size histogram for tracking
// value size distributions and a small descriptive statistics helper.
package util

import (
	"math"
	"sync"
	"time"
)

// ----------------------------------------------------------------------------
// Helper functions
// ----------------------------------------------------------------------------

type Stats struct {
	StdDeviation float64 `json:"std_deviation"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Mean         float64 `json:"mean"`
	MinMaxRatio  float64 `json:"min_max_ratio"`
}

// NewStats computes the standard deviation, minimum, and maximum values
// from an array of float64 values.
func NewStats(values []float64) Stats {
	if len(values) == 0 {
		return Stats{}
	}

	// initialize min and max with the first value
	min := values[0]
	max := values[0]

	// calculate sum for mean
	var sum float64
	for _, v := range values {
		sum += v

		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	mean := sum / float64(len(values))

	// calculate sum of squared differences from mean
	var sumSquaredDiffs float64
	for _, v := range values {
		diff := v - mean
		sumSquaredDiffs += diff * diff
	}

	// population standard deviation
	stdDev := math.Sqrt(sumSquaredDiffs / float64(len(values)))

	var minMaxRatio float64 = 1.0
	if max > 0 {
		minMaxRatio = min / max
	}

	return Stats{
		StdDeviation: stdDev,
		Min:          min,
		Max:          max,
		Mean:         mean,
		MinMaxRatio:  minMaxRatio,
	}
}

// ----------------------------------------------------------------------------
// LatencyWindow
// ----------------------------------------------------------------------------

// LatencySample is one observed operation latency
type LatencySample struct {
	At      time.Time     `json:"at"`
	Latency time.Duration `json:"latency"`
}

// LatencyWindow keeps the last N latency samples in a ring buffer
//
// Thread-safe: All methods are safe for concurrent use
type LatencyWindow struct {
	mutex   sync.Mutex
	samples []LatencySample
	next    int  // position of the next write
	full    bool // whether the ring has wrapped at least once
}

// NewLatencyWindow creates a window holding at most size samples (default 100)
func NewLatencyWindow(size int) *LatencyWindow {
	if size <= 0 {
		size = 100
	}
	return &LatencyWindow{samples: make([]LatencySample, size)}
}

// Add records a sample, overwriting the oldest one if the window is full
func (w *LatencyWindow) Add(at time.Time, latency time.Duration) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	w.samples[w.next] = LatencySample{At: at, Latency: latency}
	w.next = (w.next + 1) % len(w.samples)
	if w.next == 0 {
		w.full = true
	}
}

// Samples returns a copy of the samples, oldest first
func (w *LatencyWindow) Samples() []LatencySample {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if !w.full {
		out := make([]LatencySample, w.next)
		copy(out, w.samples[:w.next])
		return out
	}

	out := make([]LatencySample, 0, len(w.samples))
	out = append(out, w.samples[w.next:]...)
	return append(out, w.samples[:w.next]...)
}

// Average returns the mean latency of the given samples
func Average(samples []LatencySample) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	var sum time.Duration
	for _, s := range samples {
		sum += s.Latency
	}
	return sum / time.Duration(len(samples))
}

// Throughput returns the number of operations per second across the time span of the samples.
// Fewer than two samples or samples with the same timestamp yield 0.
func Throughput(samples []LatencySample) float64 {
	if len(samples) < 2 {
		return 0
	}
	span := samples[len(samples)-1].At.Sub(samples[0].At)
	if span <= 0 {
		return 0
	}
	return float64(len(samples)) / span.Seconds()
}

// LatencyStats computes descriptive statistics over the sample latencies in microseconds
func LatencyStats(samples []LatencySample) Stats {
	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = float64(s.Latency) / float64(time.Microsecond)
	}
	return NewStats(values)
}

// ----------------------------------------------------------------------------
// SizeHistogram
// ----------------------------------------------------------------------------

// SizeHistogram tracks the distribution of data sizes
// It organizes sizes into buckets for efficient memory usage
// while still providing usable size estimations.
type SizeHistogram struct {
	mutex      sync.RWMutex
	boundaries []int   // Bucket boundaries covering byte to GB range
	buckets    []int64 // Count of items in each bucket
	count      int64   // Total number of samples
	sum        int64   // Sum of all sampled sizes
}

// NewSizeHistogram creates a new size histogram with default bucket boundaries
func NewSizeHistogram() *SizeHistogram {
	// Using exponential bucket sizes to cover a wide range efficiently
	return &SizeHistogram{
		boundaries: []int{
			16, 64, 256, 1024, 4096, // Bytes: 16B to 4KB
			16384, 65536, 262144, 1048576, // KB range: 16KB to 1MB
			4194304, 16777216, 67108864, // MB range: 4MB to 64MB
			268435456, 1073741824, 4294967296, // Above 256MB to 4GB
		},
		buckets: make([]int64, 16), // 15 boundaries + 1 for larger values
	}
}

// AddSample adds a size sample to the histogram
//
// Thread-safe: This method is safe for concurrent use
func (h *SizeHistogram) AddSample(size int) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	bucketIndex := len(h.boundaries) // Last bucket for all larger values
	for i, boundary := range h.boundaries {
		if size <= boundary {
			bucketIndex = i
			break
		}
	}

	h.buckets[bucketIndex]++
	h.count++
	h.sum += int64(size)
}

// GetCount returns the total number of samples
func (h *SizeHistogram) GetCount() int64 {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.count
}

// Sum returns the sum of all samples
func (h *SizeHistogram) Sum() int64 {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.sum
}

// AverageSize returns the average size across all samples
func (h *SizeHistogram) AverageSize() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if h.count == 0 {
		return 0
	}
	return int(h.sum / h.count)
}

// GetPercentileEstimate returns an estimate for the given percentile (0-100)
//
// Thread-safe: This method is safe for concurrent use
func (h *SizeHistogram) GetPercentileEstimate(percentile int) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if h.count == 0 || percentile < 0 || percentile > 100 {
		return 0
	}

	targetCount := int64(math.Ceil(float64(h.count) * float64(percentile) / 100.0))
	cumulativeCount := int64(0)

	for i, count := range h.buckets {
		cumulativeCount += count
		if cumulativeCount >= targetCount {
			if i == 0 {
				// first bucket: half of the boundary
				return h.boundaries[0] / 2
			} else if i < len(h.boundaries) {
				// middle buckets: average of the boundaries
				return (h.boundaries[i-1] + h.boundaries[i]) / 2
			}
			// last bucket: 2x the last boundary
			return h.boundaries[len(h.boundaries)-1] * 2
		}
	}

	// Should never reach here
	return int(h.sum / h.count)
}

// MedianEstimate estimates the median size based on the histogram
func (h *SizeHistogram) MedianEstimate() int {
	return h.GetPercentileEstimate(50)
}

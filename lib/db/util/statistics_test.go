package util

import (
	"math"
	"testing"
	"time"
)

func TestLatencyWindow(t *testing.T) {
	w := NewLatencyWindow(3)
	base := time.Unix(0, 0)

	for i := 1; i <= 5; i++ {
		w.Add(base.Add(time.Duration(i)*time.Second), time.Duration(i)*time.Millisecond)
	}

	samples := w.Samples()
	if len(samples) != 3 {
		t.Fatalf("len = %d, want 3", len(samples))
	}
	for i, want := range []time.Duration{3, 4, 5} {
		if samples[i].Latency != want*time.Millisecond {
			t.Errorf("sample %d = %v, want %v", i, samples[i].Latency, want*time.Millisecond)
		}
	}

	if avg := Average(samples); avg != 4*time.Millisecond {
		t.Errorf("Average = %v, want 4ms", avg)
	}
	// 3 samples across 2 seconds
	if tp := Throughput(samples); tp != 1.5 {
		t.Errorf("Throughput = %v, want 1.5", tp)
	}

	if Average(nil) != 0 || Throughput(nil) != 0 {
		t.Error("empty samples should yield zero")
	}
}

func TestLatencyStats(t *testing.T) {
	samples := []LatencySample{
		{Latency: 2 * time.Microsecond},
		{Latency: 4 * time.Microsecond},
	}
	stats := LatencyStats(samples)
	if stats.Min != 2 || stats.Max != 4 || stats.Mean != 3 || stats.MinMaxRatio != 0.5 {
		t.Errorf("stats = %+v", stats)
	}
	if math.Abs(stats.StdDeviation-1) > 1e-9 {
		t.Errorf("StdDeviation = %v, want 1", stats.StdDeviation)
	}
}

func TestSizeHistogram(t *testing.T) {
	h := NewSizeHistogram()
	if h.MedianEstimate() != 0 || h.AverageSize() != 0 {
		t.Error("empty histogram should estimate zero")
	}

	for _, size := range []int{10, 10, 100, 2000} {
		h.AddSample(size)
	}

	if h.GetCount() != 4 || h.Sum() != 2120 {
		t.Errorf("count = %d, sum = %d", h.GetCount(), h.Sum())
	}
	if h.AverageSize() != 530 {
		t.Errorf("AverageSize = %d, want 530", h.AverageSize())
	}
	// two of four samples are in the first bucket
	if h.MedianEstimate() != 8 {
		t.Errorf("MedianEstimate = %d, want 8", h.MedianEstimate())
	}
	if p := h.GetPercentileEstimate(100); p != (1024+4096)/2 {
		t.Errorf("p100 = %d", p)
	}
	if h.GetPercentileEstimate(101) != 0 {
		t.Error("invalid percentile should yield zero")
	}
}

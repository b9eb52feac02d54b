package util

import (
	"math"
	"sort"
	"sync"
)

// ----------------------------------------------------------------------------
// Summary statistics
// ----------------------------------------------------------------------------

// Stats summarizes a set of samples.
type Stats struct {
	Count        int     `json:"count"`
	StdDeviation float64 `json:"std_deviation"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Mean         float64 `json:"mean"`
	MinMaxRatio  float64 `json:"min_max_ratio"`
}

// NewStats computes count, mean, population standard deviation, min and max
// of values. An empty input yields the zero Stats.
func NewStats(values []float64) Stats {
	if len(values) == 0 {
		return Stats{}
	}

	s := Stats{Count: len(values), Min: values[0], Max: values[0]}

	// welford's online mean and variance
	var m2 float64
	for i, v := range values {
		delta := v - s.Mean
		s.Mean += delta / float64(i+1)
		m2 += delta * (v - s.Mean)

		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
	}
	s.StdDeviation = math.Sqrt(m2 / float64(len(values)))

	s.MinMaxRatio = 1.0
	if s.Max > 0 {
		s.MinMaxRatio = s.Min / s.Max
	}
	return s
}

// DistributionStats describes how evenly records are spread over namespaces.
type DistributionStats struct {
	Stats
	// DistributionQuality is 1 for a perfectly even spread and approaches 0
	// when a single namespace holds everything
	DistributionQuality float64 `json:"distribution_quality"`
}

// NewDistributionStats computes the distribution quality of the given sizes
func NewDistributionStats(sizes []float64) DistributionStats {
	stats := NewStats(sizes)

	// coefficient of variation, capped at 1
	var cv float64
	if stats.Mean > 0 {
		cv = math.Min(1.0, stats.StdDeviation/stats.Mean)
	}

	return DistributionStats{
		Stats:               stats,
		DistributionQuality: (1.0-cv)*0.5 + stats.MinMaxRatio*0.5,
	}
}

// ----------------------------------------------------------------------------
// SizeHistogram
// ----------------------------------------------------------------------------

// sizeBoundaries are the upper bounds (inclusive) of the histogram buckets,
// growing by a factor of four from 16 bytes to 4 GiB
var sizeBoundaries = func() []int64 {
	var b []int64
	for size := int64(16); size <= 4<<30; size *= 4 {
		b = append(b, size)
	}
	return b
}()

// SizeHistogram counts payload sizes in exponential buckets. The last bucket
// collects everything above the largest boundary.
//
// Thread-safety:
//
//	All methods are safe for concurrent use.
type SizeHistogram struct {
	mu      sync.RWMutex
	buckets []int64
	count   int64
	sum     int64
}

// NewSizeHistogram creates an empty histogram
func NewSizeHistogram() *SizeHistogram {
	return &SizeHistogram{buckets: make([]int64, len(sizeBoundaries)+1)}
}

// AddSample records one size
func (h *SizeHistogram) AddSample(size int64) {
	i := sort.Search(len(sizeBoundaries), func(i int) bool { return size <= sizeBoundaries[i] })

	h.mu.Lock()
	defer h.mu.Unlock()
	h.buckets[i]++
	h.count++
	h.sum += size
}

// Count returns the number of samples
func (h *SizeHistogram) Count() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Sum returns the sum of all samples
func (h *SizeHistogram) Sum() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sum
}

// Mean returns the exact mean size, 0 without samples
func (h *SizeHistogram) Mean() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.count == 0 {
		return 0
	}
	return h.sum / h.count
}

// Percentile estimates the given percentile (0-100) as the midpoint of the
// bucket that contains it. Out of range percentiles and an empty histogram
// yield 0.
func (h *SizeHistogram) Percentile(p float64) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.count == 0 || p < 0 || p > 100 {
		return 0
	}

	target := max(int64(math.Ceil(float64(h.count)*p/100.0)), 1)
	var cumulative int64
	for i, n := range h.buckets {
		cumulative += n
		if cumulative >= target {
			return bucketMidpoint(i)
		}
	}
	return h.sum / h.count
}

// Buckets returns the bucket boundaries and the share of samples (in percent)
// per bucket. The share slice has one more element than the boundaries.
func (h *SizeHistogram) Buckets() ([]int64, []float64) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	shares := make([]float64, len(h.buckets))
	if h.count > 0 {
		for i, n := range h.buckets {
			shares[i] = float64(n) * 100.0 / float64(h.count)
		}
	}
	return append([]int64(nil), sizeBoundaries...), shares
}

func bucketMidpoint(i int) int64 {
	switch {
	case i == 0:
		return sizeBoundaries[0] / 2
	case i < len(sizeBoundaries):
		return (sizeBoundaries[i-1] + sizeBoundaries[i]) / 2
	default:
		return sizeBoundaries[len(sizeBoundaries)-1] * 2
	}
}

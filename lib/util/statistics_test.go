package util

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewStats(t *testing.T) {
	assert.Equal(t, Stats{}, NewStats(nil))

	s := NewStats([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	assert.Equal(t, 8, s.Count)
	assert.InDelta(t, 5.0, s.Mean, 1e-9)
	assert.InDelta(t, 2.0, s.StdDeviation, 1e-9)
	assert.Equal(t, 2.0, s.Min)
	assert.Equal(t, 9.0, s.Max)
	assert.InDelta(t, 2.0/9.0, s.MinMaxRatio, 1e-9)
}

func TestNewDistributionStats(t *testing.T) {
	even := NewDistributionStats([]float64{10, 10, 10, 10})
	assert.InDelta(t, 1.0, even.DistributionQuality, 1e-9)

	skewed := NewDistributionStats([]float64{100, 0, 0, 0})
	assert.Less(t, skewed.DistributionQuality, 0.5)

	empty := NewDistributionStats(nil)
	assert.False(t, math.IsNaN(empty.DistributionQuality))
}

func TestSizeHistogram(t *testing.T) {
	h := NewSizeHistogram()
	assert.Equal(t, int64(0), h.Percentile(50))
	assert.Equal(t, int64(0), h.Mean())

	for i := 0; i < 90; i++ {
		h.AddSample(10) // first bucket
	}
	for i := 0; i < 10; i++ {
		h.AddSample(2000) // (1024, 4096]
	}

	assert.Equal(t, int64(100), h.Count())
	assert.Equal(t, int64(90*10+10*2000), h.Sum())
	assert.Equal(t, int64(209), h.Mean())
	assert.Equal(t, int64(8), h.Percentile(50))
	assert.Equal(t, int64((1024+4096)/2), h.Percentile(95))
	assert.Equal(t, int64(0), h.Percentile(101))

	boundaries, shares := h.Buckets()
	assert.Len(t, shares, len(boundaries)+1)
	assert.InDelta(t, 90.0, shares[0], 1e-9)

	h.AddSample(8 << 30)
	assert.Equal(t, int64(8<<30), h.Percentile(100))
}

func TestSizeHistogramConcurrent(t *testing.T) {
	h := NewSizeHistogram()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				h.AddSample(int64(i))
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(8000), h.Count())
}

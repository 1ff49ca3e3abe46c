package profiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMean(t *testing.T) {
	assert.Equal(t, 0.0, mean(nil))
	assert.Equal(t, 2.0, mean([]float64{1, 2, 3}))
}

func TestPopulationStdDev(t *testing.T) {
	// Population stddev of {2,4,4,4,5,5,7,9} is exactly 2.
	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	mu := mean(values)
	assert.Equal(t, 5.0, mu)
	assert.Equal(t, 2.0, populationStdDev(values, mu))

	assert.Equal(t, 0.0, populationStdDev([]float64{3, 3, 3}, 3))
}

func TestPercentile_LinearInterpolation(t *testing.T) {
	sorted := []float64{10, 20, 30, 40}

	assert.Equal(t, 25.0, percentile(sorted, 50))
	assert.Equal(t, 17.5, percentile(sorted, 25))
	assert.Equal(t, 10.0, percentile(sorted, 0))
	assert.Equal(t, 40.0, percentile(sorted, 100))
	assert.Equal(t, 5.0, percentile([]float64{5}, 90))
	assert.Equal(t, 0.0, percentile(nil, 50))
}

func TestBuildHistogram(t *testing.T) {
	sorted := []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 10}
	buckets := buildHistogram(sorted, 5)
	require.Len(t, buckets, 5)

	var total int64
	for _, b := range buckets {
		total += b.Count
	}
	assert.Equal(t, int64(len(sorted)), total)
	assert.Equal(t, 0.0, buckets[0].LowerBound)
	assert.Equal(t, 10.0, buckets[4].UpperBound)
}

func TestBuildHistogram_DegenerateRange(t *testing.T) {
	buckets := buildHistogram([]float64{7, 7, 7}, 5)
	require.Len(t, buckets, 1)
	assert.Equal(t, int64(3), buckets[0].Count)
}

func TestIsOutlier_ThreeSigmaRule(t *testing.T) {
	// mean=100, stddev=10: 135 is an outlier (|135-100|>30), 125 is not.
	assert.True(t, isOutlier(135, 100, 10))
	assert.False(t, isOutlier(125, 100, 10))
	assert.False(t, isOutlier(130, 100, 10)) // boundary is exclusive
	assert.True(t, isOutlier(65, 100, 10))
	assert.False(t, isOutlier(1e9, 100, 0)) // zero stddev never flags
}

func TestUniformityScore(t *testing.T) {
	assert.Equal(t, 1.0, uniformityScore(nil))
	assert.Equal(t, 1.0, uniformityScore([]int64{5}))
	assert.Equal(t, 1.0, uniformityScore([]int64{4, 4, 4, 4}))

	skewed := uniformityScore([]int64{100, 1, 1, 1})
	assert.Less(t, skewed, 0.5)
	assert.GreaterOrEqual(t, skewed, 0.0)
}

package profiler

import (
	"math"
	"sort"

	"github.com/dataforge-io/profiler-engine/pkg/models"
)

// mean returns the arithmetic mean of values, 0 for an empty slice.
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// populationStdDev returns the population standard deviation (divisor N).
func populationStdDev(values []float64, mu float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sumSq float64
	for _, v := range values {
		d := v - mu
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)))
}

// percentile computes the p-th percentile (0-100) of sorted values using
// linear interpolation between order statistics.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(n-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	frac := rank - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// buildHistogram distributes values into bucketCount fixed-width buckets
// spanning [min, max]. A degenerate range collapses to a single bucket.
func buildHistogram(sorted []float64, bucketCount int) []models.HistogramBucket {
	if len(sorted) == 0 || bucketCount <= 0 {
		return nil
	}
	lo, hi := sorted[0], sorted[len(sorted)-1]
	if lo == hi {
		return []models.HistogramBucket{{LowerBound: lo, UpperBound: hi, Count: int64(len(sorted))}}
	}

	width := (hi - lo) / float64(bucketCount)
	buckets := make([]models.HistogramBucket, bucketCount)
	for i := range buckets {
		buckets[i].LowerBound = lo + float64(i)*width
		buckets[i].UpperBound = lo + float64(i+1)*width
	}
	buckets[bucketCount-1].UpperBound = hi

	for _, v := range sorted {
		idx := int((v - lo) / width)
		if idx >= bucketCount {
			idx = bucketCount - 1
		}
		buckets[idx].Count++
	}
	return buckets
}

// isOutlier applies the 3-sigma rule. A zero stddev means every value equals
// the mean, so nothing is an outlier.
func isOutlier(x, mu, sigma float64) bool {
	if sigma == 0 {
		return false
	}
	return math.Abs(x-mu) > 3*sigma
}

// uniformityScore measures how evenly counts are spread:
// 1 - (stddev of counts / mean count), clamped to [0,1]. An empty or
// single-bucket input is perfectly uniform.
func uniformityScore(counts []int64) float64 {
	if len(counts) <= 1 {
		return 1.0
	}
	values := make([]float64, len(counts))
	for i, c := range counts {
		values[i] = float64(c)
	}
	mu := mean(values)
	if mu == 0 {
		return 1.0
	}
	score := 1.0 - populationStdDev(values, mu)/mu
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// sortedCopy returns an ascending copy without mutating the input.
func sortedCopy(values []float64) []float64 {
	out := make([]float64, len(values))
	copy(out, values)
	sort.Float64s(out)
	return out
}

// Package profiler computes per-column statistical profiles: completeness,
// cardinality, a typed stats branch selected by column classification, top
// values, layered anomaly detection and distribution insights. Profiling is
// pure computation over already-fetched samples and aggregates; the package
// never talks to the database itself.
package profiler

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dataforge-io/profiler-engine/pkg/adapters/datasource"
	"github.com/dataforge-io/profiler-engine/pkg/models"
)

// Options tunes the profiler's thresholds and bounds.
type Options struct {
	// TopValueCount bounds the top-values list.
	TopValueCount int
	// HistogramBuckets is the fixed bucket count for numeric histograms
	// and temporal timelines.
	HistogramBuckets int
	// FrequencyMultiple flags a value as suspicious when its frequency
	// exceeds this multiple of the expected uniform frequency.
	FrequencyMultiple float64
	// PatternMatchThreshold is the minimum match rate for pattern-validated
	// text subtypes before a violation anomaly is raised.
	PatternMatchThreshold float64
	// DateGapDays is the minimum run of inactive days reported as a gap.
	DateGapDays int
	// AnomalySampleLimit bounds the offending-value samples kept per anomaly.
	AnomalySampleLimit int
}

// DefaultOptions returns the standard thresholds.
func DefaultOptions() Options {
	return Options{
		TopValueCount:         10,
		HistogramBuckets:      10,
		FrequencyMultiple:     10,
		PatternMatchThreshold: 0.9,
		DateGapDays:           7,
		AnomalySampleLimit:    10,
	}
}

// Profiler computes column profiles. Safe for concurrent use; each Profile
// call is independent.
type Profiler struct {
	opts   Options
	logger *zap.Logger
}

// NewProfiler creates a column profiler.
func NewProfiler(opts Options, logger *zap.Logger) *Profiler {
	if opts.TopValueCount <= 0 {
		opts.TopValueCount = 10
	}
	if opts.HistogramBuckets <= 0 {
		opts.HistogramBuckets = 10
	}
	if opts.AnomalySampleLimit <= 0 {
		opts.AnomalySampleLimit = 10
	}
	return &Profiler{opts: opts, logger: logger.Named("column-profiler")}
}

// Profile computes the full profile for one column from its sampled values
// and server-side aggregates. Columns whose type is unsupported for deep
// stats still get completeness, cardinality and top values; Profile never
// fails.
func (p *Profiler) Profile(col models.ColumnMetadata, samples []*string, aggs *datasource.ColumnAggregates) *models.ColumnProfile {
	class := col.Classify()
	profile := &models.ColumnProfile{
		SchemaName: col.SchemaName,
		TableName:  col.TableName,
		ColumnName: col.ColumnName,
		Class:      class,
	}

	profile.Completeness = completeness(samples, aggs)
	profile.Cardinality = cardinality(aggs)

	nonNull := nonNullValues(samples)
	profile.TopValues = p.topValues(nonNull)

	switch class {
	case models.ColumnClassNumeric:
		profile.NumericStats = p.numericStats(nonNull)
	case models.ColumnClassTemporal:
		profile.DateStats = p.dateStats(nonNull)
	case models.ColumnClassText:
		profile.TextStats = textStats(nonNull)
	case models.ColumnClassBoolean:
		profile.BooleanStats = booleanStats(samples)
	default:
		// Identifier, UUID, JSON and unclassified columns get no deep
		// stats branch.
	}

	p.detectAnomalies(col, nonNull, profile)
	p.buildInsights(profile)

	return profile
}

func completeness(samples []*string, aggs *datasource.ColumnAggregates) models.Completeness {
	c := models.Completeness{}
	if aggs != nil {
		c.TotalCount = aggs.TotalCount
		c.NullCount = aggs.TotalCount - aggs.NonNullCount
		if aggs.TotalCount > 0 {
			c.CompletenessRate = float64(aggs.NonNullCount) / float64(aggs.TotalCount)
		} else {
			c.CompletenessRate = 1.0
		}
	}
	// Empty strings are only visible in the sample, not in server-side
	// aggregates.
	for _, v := range samples {
		if v != nil && strings.TrimSpace(*v) == "" {
			c.EmptyCount++
		}
	}
	return c
}

func cardinality(aggs *datasource.ColumnAggregates) models.Cardinality {
	if aggs == nil || aggs.TotalCount == 0 {
		return models.Cardinality{}
	}
	return models.Cardinality{
		UniqueCount:     aggs.DistinctCount,
		CardinalityRate: float64(aggs.DistinctCount) / float64(aggs.TotalCount),
	}
}

func nonNullValues(samples []*string) []string {
	out := make([]string, 0, len(samples))
	for _, v := range samples {
		if v != nil {
			out = append(out, *v)
		}
	}
	return out
}

// topValues counts sampled value frequencies and keeps the most frequent,
// ties broken by value so output is deterministic.
func (p *Profiler) topValues(values []string) []models.ValueFrequency {
	if len(values) == 0 {
		return nil
	}
	counts := make(map[string]int64, len(values))
	for _, v := range values {
		counts[v]++
	}
	freqs := make([]models.ValueFrequency, 0, len(counts))
	for v, c := range counts {
		freqs = append(freqs, models.ValueFrequency{Value: v, Count: c})
	}
	sort.Slice(freqs, func(i, j int) bool {
		if freqs[i].Count != freqs[j].Count {
			return freqs[i].Count > freqs[j].Count
		}
		return freqs[i].Value < freqs[j].Value
	})
	if len(freqs) > p.opts.TopValueCount {
		freqs = freqs[:p.opts.TopValueCount]
	}
	return freqs
}

func (p *Profiler) numericStats(values []string) *models.NumericStats {
	parsed := make([]float64, 0, len(values))
	for _, v := range values {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			continue
		}
		parsed = append(parsed, f)
	}
	if len(parsed) == 0 {
		return nil
	}

	sorted := sortedCopy(parsed)
	mu := mean(sorted)
	sigma := populationStdDev(sorted, mu)

	stats := &models.NumericStats{
		Min:       sorted[0],
		Max:       sorted[len(sorted)-1],
		Mean:      mu,
		Median:    percentile(sorted, 50),
		StdDev:    sigma,
		P25:       percentile(sorted, 25),
		P75:       percentile(sorted, 75),
		P90:       percentile(sorted, 90),
		P95:       percentile(sorted, 95),
		Histogram: buildHistogram(sorted, p.opts.HistogramBuckets),
	}

	for _, v := range parsed {
		if isOutlier(v, mu, sigma) {
			stats.OutlierCount++
			if len(stats.OutlierSample) < p.opts.AnomalySampleLimit {
				stats.OutlierSample = append(stats.OutlierSample, v)
			}
		}
	}

	return stats
}

// dateLayouts covers the textual forms the adapters emit for temporal
// columns.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTimestamp(v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func (p *Profiler) dateStats(values []string) *models.DateStats {
	parsed := make([]time.Time, 0, len(values))
	for _, v := range values {
		if t, ok := parseTimestamp(v); ok {
			parsed = append(parsed, t)
		}
	}
	if len(parsed) == 0 {
		return nil
	}

	sort.Slice(parsed, func(i, j int) bool { return parsed[i].Before(parsed[j]) })

	stats := &models.DateStats{
		Min:                   parsed[0],
		Max:                   parsed[len(parsed)-1],
		DayOfWeekDistribution: make(map[string]int64),
		MonthDistribution:     make(map[string]int64),
		HourDistribution:      make(map[int]int64),
	}
	for _, t := range parsed {
		stats.DayOfWeekDistribution[t.Weekday().String()]++
		stats.MonthDistribution[t.Month().String()]++
		stats.HourDistribution[t.Hour()]++
	}

	stats.Gaps, stats.GapTotalDays = p.detectDateGaps(parsed)
	stats.Timeline = p.buildTimeline(parsed)
	return stats
}

// detectDateGaps finds runs of inactive days between consecutive observed
// dates, at day granularity. Only runs of at least DateGapDays are reported.
func (p *Profiler) detectDateGaps(sorted []time.Time) ([]models.DateGap, int) {
	if len(sorted) < 2 || p.opts.DateGapDays <= 0 {
		return nil, 0
	}

	// Collapse to unique observed days.
	seen := make(map[string]bool)
	var days []time.Time
	for _, t := range sorted {
		day := t.Truncate(24 * time.Hour)
		key := day.Format("2006-01-02")
		if !seen[key] {
			seen[key] = true
			days = append(days, day)
		}
	}

	var gaps []models.DateGap
	total := 0
	for i := 1; i < len(days); i++ {
		inactive := int(days[i].Sub(days[i-1]).Hours()/24) - 1
		if inactive >= p.opts.DateGapDays {
			gaps = append(gaps, models.DateGap{
				Start: days[i-1].AddDate(0, 0, 1),
				End:   days[i].AddDate(0, 0, -1),
				Days:  inactive,
			})
			total += inactive
		}
	}
	return gaps, total
}

// buildTimeline slices the observed time range into fixed buckets.
func (p *Profiler) buildTimeline(sorted []time.Time) []models.TimelineBucket {
	lo, hi := sorted[0], sorted[len(sorted)-1]
	if !hi.After(lo) {
		return []models.TimelineBucket{{Start: lo, End: hi, Count: int64(len(sorted))}}
	}

	n := p.opts.HistogramBuckets
	span := hi.Sub(lo)
	width := span / time.Duration(n)
	if width <= 0 {
		width = time.Nanosecond
	}

	buckets := make([]models.TimelineBucket, n)
	for i := range buckets {
		buckets[i].Start = lo.Add(time.Duration(i) * width)
		buckets[i].End = lo.Add(time.Duration(i+1) * width)
	}
	buckets[n-1].End = hi

	for _, t := range sorted {
		idx := int(t.Sub(lo) / width)
		if idx >= n {
			idx = n - 1
		}
		buckets[idx].Count++
	}
	return buckets
}

func textStats(values []string) *models.TextStats {
	if len(values) == 0 {
		return nil
	}
	stats := &models.TextStats{MinLength: len(values[0])}
	var totalLen int
	for _, v := range values {
		l := len(v)
		if l < stats.MinLength {
			stats.MinLength = l
		}
		if l > stats.MaxLength {
			stats.MaxLength = l
		}
		totalLen += l
	}
	stats.AvgLength = float64(totalLen) / float64(len(values))
	return stats
}

func booleanStats(samples []*string) *models.BooleanStats {
	stats := &models.BooleanStats{}
	for _, v := range samples {
		if v == nil {
			stats.NullCount++
			continue
		}
		switch strings.ToLower(strings.TrimSpace(*v)) {
		case "true", "t", "1", "yes":
			stats.TrueCount++
		case "false", "f", "0", "no":
			stats.FalseCount++
		}
	}

	known := stats.TrueCount + stats.FalseCount
	if known > 0 {
		stats.TruePct = float64(stats.TrueCount) / float64(known) * 100
		stats.FalsePct = float64(stats.FalseCount) / float64(known) * 100
	}

	diff := stats.TruePct - stats.FalsePct
	if diff < 0 {
		diff = -diff
	}
	stats.IsBalanced = diff <= 20

	return stats
}

package profiler

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dataforge-io/profiler-engine/pkg/adapters/datasource"
	"github.com/dataforge-io/profiler-engine/pkg/models"
)

func strPtrs(values ...string) []*string {
	out := make([]*string, len(values))
	for i := range values {
		out[i] = &values[i]
	}
	return out
}

func newTestProfiler(t *testing.T) *Profiler {
	return NewProfiler(DefaultOptions(), zaptest.NewLogger(t))
}

func TestProfile_NumericColumn(t *testing.T) {
	p := newTestProfiler(t)

	col := models.ColumnMetadata{SchemaName: "public", TableName: "orders", ColumnName: "total", DataType: "numeric"}
	samples := strPtrs("10", "20", "30", "40", "50")
	aggs := &datasource.ColumnAggregates{TotalCount: 5, NonNullCount: 5, DistinctCount: 5}

	profile := p.Profile(col, samples, aggs)

	assert.Equal(t, models.ColumnClassNumeric, profile.Class)
	require.NotNil(t, profile.NumericStats)
	assert.Equal(t, 10.0, profile.NumericStats.Min)
	assert.Equal(t, 50.0, profile.NumericStats.Max)
	assert.Equal(t, 30.0, profile.NumericStats.Mean)
	assert.Equal(t, 30.0, profile.NumericStats.Median)
	assert.Equal(t, int64(0), profile.NumericStats.OutlierCount)
	assert.Nil(t, profile.DateStats)
	assert.Nil(t, profile.TextStats)
	assert.Nil(t, profile.BooleanStats)
	assert.Equal(t, 1.0, profile.Completeness.CompletenessRate)
}

func TestProfile_NumericOutlierDetection(t *testing.T) {
	p := newTestProfiler(t)

	// Tight cluster around 100 plus one extreme value keeps the stddev
	// small enough that 900 is beyond three sigma.
	values := make([]string, 0, 101)
	for i := 0; i < 100; i++ {
		values = append(values, fmt.Sprintf("%d", 95+i%10))
	}
	values = append(values, "900")

	col := models.ColumnMetadata{ColumnName: "amount", DataType: "integer"}
	profile := p.Profile(col, strPtrs(values...), &datasource.ColumnAggregates{TotalCount: 101, NonNullCount: 101, DistinctCount: 11})

	require.NotNil(t, profile.NumericStats)
	assert.Equal(t, int64(1), profile.NumericStats.OutlierCount)
	assert.Equal(t, []float64{900}, profile.NumericStats.OutlierSample)

	require.NotEmpty(t, profile.Anomalies)
	var found bool
	for _, a := range profile.Anomalies {
		if a.Type == models.AnomalyTypeOutlier {
			found = true
			assert.Equal(t, int64(1), a.Count)
		}
	}
	assert.True(t, found)
	assert.True(t, profile.Insights.HasOutliers)
}

func TestProfile_BooleanBalance(t *testing.T) {
	p := newTestProfiler(t)
	col := models.ColumnMetadata{ColumnName: "active", DataType: "boolean"}

	// 60/40: diff is exactly 20, still balanced.
	values := make([]string, 0, 100)
	for i := 0; i < 60; i++ {
		values = append(values, "true")
	}
	for i := 0; i < 40; i++ {
		values = append(values, "false")
	}
	profile := p.Profile(col, strPtrs(values...), &datasource.ColumnAggregates{TotalCount: 100, NonNullCount: 100, DistinctCount: 2})

	require.NotNil(t, profile.BooleanStats)
	assert.Equal(t, int64(60), profile.BooleanStats.TrueCount)
	assert.Equal(t, int64(40), profile.BooleanStats.FalseCount)
	assert.Equal(t, 60.0, profile.BooleanStats.TruePct)
	assert.Equal(t, 40.0, profile.BooleanStats.FalsePct)
	assert.True(t, profile.BooleanStats.IsBalanced)

	// 65/35: diff 30 is out of balance.
	values = values[:0]
	for i := 0; i < 65; i++ {
		values = append(values, "t")
	}
	for i := 0; i < 35; i++ {
		values = append(values, "f")
	}
	profile = p.Profile(col, strPtrs(values...), &datasource.ColumnAggregates{TotalCount: 100, NonNullCount: 100, DistinctCount: 2})
	require.NotNil(t, profile.BooleanStats)
	assert.False(t, profile.BooleanStats.IsBalanced)
}

func TestProfile_TextLengths(t *testing.T) {
	p := newTestProfiler(t)
	col := models.ColumnMetadata{ColumnName: "name", DataType: "varchar(255)"}

	profile := p.Profile(col, strPtrs("ab", "abcd", "abcdef"), &datasource.ColumnAggregates{TotalCount: 3, NonNullCount: 3, DistinctCount: 3})

	require.NotNil(t, profile.TextStats)
	assert.Equal(t, 2, profile.TextStats.MinLength)
	assert.Equal(t, 6, profile.TextStats.MaxLength)
	assert.Equal(t, 4.0, profile.TextStats.AvgLength)
}

func TestProfile_EmailPatternViolation(t *testing.T) {
	p := newTestProfiler(t)
	col := models.ColumnMetadata{ColumnName: "email", DataType: "varchar(255)"}

	// Half the sampled values are not email-shaped: far below the 90%
	// match threshold.
	samples := strPtrs("a@example.com", "b@example.com", "not-an-email", "also wrong")
	profile := p.Profile(col, samples, &datasource.ColumnAggregates{TotalCount: 4, NonNullCount: 4, DistinctCount: 4})

	require.Len(t, profile.Anomalies, 1)
	a := profile.Anomalies[0]
	assert.Equal(t, models.AnomalyTypePatternViolation, a.Type)
	assert.Equal(t, int64(2), a.Count)
	assert.Len(t, a.SampleRows, 2)
	assert.True(t, profile.Insights.HasPatternViolations)
	assert.Equal(t, "tighten validity rule", profile.Insights.RecommendedAction)
}

func TestProfile_EmailPatternAboveThresholdNoAnomaly(t *testing.T) {
	p := newTestProfiler(t)
	col := models.ColumnMetadata{ColumnName: "email", DataType: "text"}

	values := make([]string, 0, 100)
	for i := 0; i < 95; i++ {
		values = append(values, fmt.Sprintf("user%d@example.com", i))
	}
	for i := 0; i < 5; i++ {
		values = append(values, "broken")
	}
	profile := p.Profile(col, strPtrs(values...), &datasource.ColumnAggregates{TotalCount: 100, NonNullCount: 100, DistinctCount: 96})

	for _, a := range profile.Anomalies {
		assert.NotEqual(t, models.AnomalyTypePatternViolation, a.Type)
	}
}

func TestProfile_SuspiciousFrequency(t *testing.T) {
	p := newTestProfiler(t)
	col := models.ColumnMetadata{ColumnName: "status", DataType: "varchar(20)"}

	// 96 repeats of one value across 100 rows with 5 distinct values:
	// expected uniform frequency is 20, threshold is 200... use a sharper
	// skew: 991 of 1000 with 10 distinct -> expected 100, threshold 1000.
	values := make([]string, 0, 1000)
	for i := 0; i < 991; i++ {
		values = append(values, "unknown")
	}
	for i := 0; i < 9; i++ {
		values = append(values, fmt.Sprintf("state_%d", i))
	}

	opts := DefaultOptions()
	opts.FrequencyMultiple = 5
	p = NewProfiler(opts, zaptest.NewLogger(t))
	profile := p.Profile(col, strPtrs(values...), &datasource.ColumnAggregates{TotalCount: 1000, NonNullCount: 1000, DistinctCount: 10})

	require.Len(t, profile.Anomalies, 1)
	a := profile.Anomalies[0]
	assert.Equal(t, models.AnomalyTypeSuspiciousFrequency, a.Type)
	assert.Equal(t, "unknown", a.Value)
	assert.Equal(t, int64(991), a.Count)
	assert.True(t, profile.Insights.HasSuspiciousFrequency)
	assert.Equal(t, "inspect repeated default or placeholder values", profile.Insights.RecommendedAction)
}

func TestProfile_UnsupportedTypeOnlyCompleteness(t *testing.T) {
	p := newTestProfiler(t)
	col := models.ColumnMetadata{ColumnName: "payload", DataType: "bytea"}

	profile := p.Profile(col, strPtrs("\\x00ff", "\\x01aa"), &datasource.ColumnAggregates{TotalCount: 10, NonNullCount: 8, DistinctCount: 8})

	assert.Equal(t, models.ColumnClassOther, profile.Class)
	assert.Nil(t, profile.NumericStats)
	assert.Nil(t, profile.DateStats)
	assert.Nil(t, profile.TextStats)
	assert.Nil(t, profile.BooleanStats)
	assert.Equal(t, int64(10), profile.Completeness.TotalCount)
	assert.Equal(t, int64(2), profile.Completeness.NullCount)
	assert.Equal(t, 0.8, profile.Completeness.CompletenessRate)
	assert.Equal(t, int64(8), profile.Cardinality.UniqueCount)
}

func TestProfile_NullsAndEmpties(t *testing.T) {
	p := newTestProfiler(t)
	col := models.ColumnMetadata{ColumnName: "note", DataType: "text"}

	v1, v3 := "hello", ""
	samples := []*string{&v1, nil, &v3}
	profile := p.Profile(col, samples, &datasource.ColumnAggregates{TotalCount: 3, NonNullCount: 2, DistinctCount: 2})

	assert.Equal(t, int64(1), profile.Completeness.NullCount)
	assert.Equal(t, int64(1), profile.Completeness.EmptyCount)
}

func TestProfile_DateGaps(t *testing.T) {
	opts := DefaultOptions()
	opts.DateGapDays = 7
	p := NewProfiler(opts, zaptest.NewLogger(t))
	col := models.ColumnMetadata{ColumnName: "created_at", DataType: "timestamp"}

	samples := strPtrs(
		"2026-01-01 09:00:00",
		"2026-01-02 10:00:00",
		"2026-01-03 11:00:00",
		// nine inactive days
		"2026-01-13 08:00:00",
		"2026-01-14 09:30:00",
	)
	profile := p.Profile(col, samples, &datasource.ColumnAggregates{TotalCount: 5, NonNullCount: 5, DistinctCount: 5})

	require.NotNil(t, profile.DateStats)
	require.Len(t, profile.DateStats.Gaps, 1)
	assert.Equal(t, 9, profile.DateStats.Gaps[0].Days)
	assert.Equal(t, 9, profile.DateStats.GapTotalDays)
	assert.NotEmpty(t, profile.DateStats.DayOfWeekDistribution)
	assert.NotEmpty(t, profile.DateStats.Timeline)
}

func TestProfile_TopValuesBoundedAndDeterministic(t *testing.T) {
	opts := DefaultOptions()
	opts.TopValueCount = 3
	p := NewProfiler(opts, zaptest.NewLogger(t))
	col := models.ColumnMetadata{ColumnName: "status", DataType: "varchar(20)"}

	samples := strPtrs("a", "a", "a", "b", "b", "c", "c", "d", "e")
	profile := p.Profile(col, samples, &datasource.ColumnAggregates{TotalCount: 9, NonNullCount: 9, DistinctCount: 5})

	require.Len(t, profile.TopValues, 3)
	assert.Equal(t, models.ValueFrequency{Value: "a", Count: 3}, profile.TopValues[0])
	// b and c tie at 2; lexicographic order breaks the tie.
	assert.Equal(t, models.ValueFrequency{Value: "b", Count: 2}, profile.TopValues[1])
	assert.Equal(t, models.ValueFrequency{Value: "c", Count: 2}, profile.TopValues[2])
}

func TestProfile_NoAnomaliesNoActionNeeded(t *testing.T) {
	p := newTestProfiler(t)
	col := models.ColumnMetadata{ColumnName: "name", DataType: "text"}

	profile := p.Profile(col, strPtrs("x", "y", "z"), &datasource.ColumnAggregates{TotalCount: 3, NonNullCount: 3, DistinctCount: 3})

	assert.Empty(t, profile.Anomalies)
	assert.Equal(t, "no action needed", profile.Insights.RecommendedAction)
	assert.Equal(t, 1.0, profile.Insights.UniformityScore)
}

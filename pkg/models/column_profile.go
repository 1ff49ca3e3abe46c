package models

import "time"

// ColumnProfile is the full statistical profile of a single column. The
// completeness and cardinality sections are always populated; exactly one of
// the typed stats branches is set, keyed by the column classification.
// Columns whose type is unsupported for deep stats carry only completeness
// and cardinality.
type ColumnProfile struct {
	SchemaName string      `json:"schema_name"`
	TableName  string      `json:"table_name"`
	ColumnName string      `json:"column_name"`
	Class      ColumnClass `json:"class"`

	Completeness Completeness `json:"completeness"`
	Cardinality  Cardinality  `json:"cardinality"`

	// Tagged union: at most one branch is non-nil, selected by Class.
	NumericStats *NumericStats `json:"numeric_stats,omitempty"`
	DateStats    *DateStats    `json:"date_stats,omitempty"`
	TextStats    *TextStats    `json:"text_stats,omitempty"`
	BooleanStats *BooleanStats `json:"boolean_stats,omitempty"`

	TopValues []ValueFrequency     `json:"top_values,omitempty"`
	Anomalies []DataQualityAnomaly `json:"anomalies,omitempty"`
	Insights  DistributionInsights `json:"insights"`
}

// Completeness counts nulls and empties against the total row count.
type Completeness struct {
	TotalCount       int64   `json:"total_count"`
	NullCount        int64   `json:"null_count"`
	EmptyCount       int64   `json:"empty_count"`
	CompletenessRate float64 `json:"completeness_rate"` // 0.0-1.0
}

// Cardinality measures distinctness of the column's values.
type Cardinality struct {
	UniqueCount     int64   `json:"unique_count"`
	CardinalityRate float64 `json:"cardinality_rate"` // unique/total, 0.0-1.0
}

// ValueFrequency is one entry of a bounded top-values list.
type ValueFrequency struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// HistogramBucket is a fixed-width bucket of a numeric distribution.
type HistogramBucket struct {
	LowerBound float64 `json:"lower_bound"`
	UpperBound float64 `json:"upper_bound"`
	Count      int64   `json:"count"`
}

// NumericStats holds distributional statistics for numeric columns.
// Stddev is the population standard deviation; percentiles use linear
// interpolation between order statistics.
type NumericStats struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"std_dev"`
	P25    float64 `json:"p25"`
	P75    float64 `json:"p75"`
	P90    float64 `json:"p90"`
	P95    float64 `json:"p95"`

	Histogram []HistogramBucket `json:"histogram,omitempty"`

	OutlierCount  int64     `json:"outlier_count"`
	OutlierSample []float64 `json:"outlier_sample,omitempty"` // bounded
}

// DateGap is a run of consecutive dates with no activity.
type DateGap struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Days  int       `json:"days"`
}

// TimelineBucket counts values falling into one slice of the observed range.
type TimelineBucket struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Count int64     `json:"count"`
}

// DateStats holds distributional statistics for temporal columns.
type DateStats struct {
	Min time.Time `json:"min"`
	Max time.Time `json:"max"`

	DayOfWeekDistribution map[string]int64 `json:"day_of_week_distribution"`
	MonthDistribution     map[string]int64 `json:"month_distribution"`
	HourDistribution      map[int]int64    `json:"hour_distribution"`

	Gaps         []DateGap        `json:"gaps,omitempty"`
	GapTotalDays int              `json:"gap_total_days"`
	Timeline     []TimelineBucket `json:"timeline,omitempty"`
}

// TextStats holds length statistics for text columns.
type TextStats struct {
	MinLength int     `json:"min_length"`
	MaxLength int     `json:"max_length"`
	AvgLength float64 `json:"avg_length"`
}

// BooleanStats holds true/false/null counts and balance for boolean columns.
type BooleanStats struct {
	TrueCount  int64   `json:"true_count"`
	FalseCount int64   `json:"false_count"`
	NullCount  int64   `json:"null_count"`
	TruePct    float64 `json:"true_pct"`
	FalsePct   float64 `json:"false_pct"`
	IsBalanced bool    `json:"is_balanced"` // |truePct-falsePct| <= 20
}

// ============================================================================
// Anomalies and insights
// ============================================================================

// AnomalyType classifies a detected data-quality anomaly.
type AnomalyType string

const (
	AnomalyTypeSuspiciousFrequency AnomalyType = "suspicious_frequency"
	AnomalyTypePatternViolation    AnomalyType = "pattern_violation"
	AnomalyTypeOutlier             AnomalyType = "outlier"
)

// DataQualityAnomaly is one detected anomaly on a column. A column may raise
// multiple anomaly types; the layered checks are independent.
type DataQualityAnomaly struct {
	Type        AnomalyType `json:"type"`
	Description string      `json:"description"`
	Value       string      `json:"value"`
	Count       int64       `json:"count"`
	Severity    float64     `json:"severity"` // 0.0-1.0
	SampleRows  []string    `json:"sample_rows,omitempty"`
}

// DistributionInsights aggregates anomaly flags into an actionable summary.
type DistributionInsights struct {
	HasSuspiciousFrequency bool    `json:"has_suspicious_frequency"`
	HasPatternViolations   bool    `json:"has_pattern_violations"`
	HasOutliers            bool    `json:"has_outliers"`
	UniformityScore        float64 `json:"uniformity_score"` // 0.0-1.0
	RecommendedAction      string  `json:"recommended_action"`
}

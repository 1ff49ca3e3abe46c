package profiler

import (
	"fmt"
	"regexp"
	"strconv"

	"go.uber.org/zap"

	"github.com/dataforge-io/profiler-engine/pkg/models"
)

// Value-validation patterns for text subtypes. Deliberately permissive:
// these measure gross pattern conformance, not strict format validity.
var (
	emailValuePattern    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	phoneValuePattern    = regexp.MustCompile(`^\+?[\d\s().-]{7,20}$`)
	documentValuePattern = regexp.MustCompile(`^[\d.\-/]{7,20}$`)
	postalValuePattern   = regexp.MustCompile(`^[\dA-Za-z][\dA-Za-z\s-]{2,11}$`)
)

var subtypePatterns = map[models.TextSubtype]*regexp.Regexp{
	models.TextSubtypeEmail:      emailValuePattern,
	models.TextSubtypePhone:      phoneValuePattern,
	models.TextSubtypeDocument:   documentValuePattern,
	models.TextSubtypePostalCode: postalValuePattern,
}

// detectAnomalies runs the layered checks in order: suspicious frequency,
// pattern violation, outliers. Each check is independent; a column may raise
// several anomaly types.
func (p *Profiler) detectAnomalies(col models.ColumnMetadata, values []string, profile *models.ColumnProfile) {
	if a := p.checkSuspiciousFrequency(values); a != nil {
		profile.Anomalies = append(profile.Anomalies, *a)
	}
	if a := p.checkPatternViolations(col, values); a != nil {
		profile.Anomalies = append(profile.Anomalies, *a)
	}
	if a := p.checkOutliers(profile.NumericStats); a != nil {
		profile.Anomalies = append(profile.Anomalies, *a)
	}

	if len(profile.Anomalies) > 0 {
		p.logger.Debug("column anomalies detected",
			zap.String("column", col.ColumnName),
			zap.Int("count", len(profile.Anomalies)))
	}
}

// checkSuspiciousFrequency flags the most frequent value when it exceeds the
// configured multiple of the expected uniform frequency total/distinct.
func (p *Profiler) checkSuspiciousFrequency(values []string) *models.DataQualityAnomaly {
	if len(values) == 0 || p.opts.FrequencyMultiple <= 0 {
		return nil
	}

	counts := make(map[string]int64, len(values))
	var topValue string
	var topCount int64
	for _, v := range values {
		counts[v]++
		if counts[v] > topCount || (counts[v] == topCount && v < topValue) {
			topValue, topCount = v, counts[v]
		}
	}

	distinct := int64(len(counts))
	if distinct <= 1 {
		return nil
	}
	expected := float64(len(values)) / float64(distinct)
	if float64(topCount) <= p.opts.FrequencyMultiple*expected {
		return nil
	}

	severity := float64(topCount) / float64(len(values))
	return &models.DataQualityAnomaly{
		Type: models.AnomalyTypeSuspiciousFrequency,
		Description: fmt.Sprintf("value appears %d times, expected uniform frequency is %.1f",
			topCount, expected),
		Value:    topValue,
		Count:    topCount,
		Severity: severity,
	}
}

// checkPatternViolations validates sampled values of pattern-validated text
// subtypes and raises an anomaly when the match rate falls below threshold.
func (p *Profiler) checkPatternViolations(col models.ColumnMetadata, values []string) *models.DataQualityAnomaly {
	subtype := col.TextSubtype()
	pattern, ok := subtypePatterns[subtype]
	if !ok || len(values) == 0 {
		return nil
	}

	var matched int64
	var violations []string
	for _, v := range values {
		if pattern.MatchString(v) {
			matched++
			continue
		}
		if len(violations) < p.opts.AnomalySampleLimit {
			violations = append(violations, v)
		}
	}

	matchRate := float64(matched) / float64(len(values))
	if matchRate >= p.opts.PatternMatchThreshold {
		return nil
	}

	violationCount := int64(len(values)) - matched
	return &models.DataQualityAnomaly{
		Type: models.AnomalyTypePatternViolation,
		Description: fmt.Sprintf("%s pattern match rate %.1f%% below threshold %.1f%%",
			subtype, matchRate*100, p.opts.PatternMatchThreshold*100),
		Count:      violationCount,
		Severity:   1 - matchRate,
		SampleRows: violations,
	}
}

// checkOutliers surfaces the 3-sigma outliers already counted by the numeric
// branch as an anomaly record.
func (p *Profiler) checkOutliers(stats *models.NumericStats) *models.DataQualityAnomaly {
	if stats == nil || stats.OutlierCount == 0 {
		return nil
	}

	sample := make([]string, 0, len(stats.OutlierSample))
	for _, v := range stats.OutlierSample {
		sample = append(sample, strconv.FormatFloat(v, 'g', -1, 64))
	}

	return &models.DataQualityAnomaly{
		Type: models.AnomalyTypeOutlier,
		Description: fmt.Sprintf("%d values beyond 3 standard deviations of mean %.2f",
			stats.OutlierCount, stats.Mean),
		Count:      stats.OutlierCount,
		Severity:   0.5,
		SampleRows: sample,
	}
}

// buildInsights aggregates anomaly flags and the uniformity score into a
// recommended action selected by a fixed decision table.
func (p *Profiler) buildInsights(profile *models.ColumnProfile) {
	insights := models.DistributionInsights{}
	for _, a := range profile.Anomalies {
		switch a.Type {
		case models.AnomalyTypeSuspiciousFrequency:
			insights.HasSuspiciousFrequency = true
		case models.AnomalyTypePatternViolation:
			insights.HasPatternViolations = true
		case models.AnomalyTypeOutlier:
			insights.HasOutliers = true
		}
	}

	insights.UniformityScore = p.profileUniformity(profile)
	insights.RecommendedAction = recommendedAction(insights)
	profile.Insights = insights
}

// profileUniformity uses histogram bucket counts for numeric columns and
// top-value frequencies otherwise.
func (p *Profiler) profileUniformity(profile *models.ColumnProfile) float64 {
	if profile.NumericStats != nil && len(profile.NumericStats.Histogram) > 0 {
		counts := make([]int64, len(profile.NumericStats.Histogram))
		for i, b := range profile.NumericStats.Histogram {
			counts[i] = b.Count
		}
		return uniformityScore(counts)
	}

	counts := make([]int64, len(profile.TopValues))
	for i, v := range profile.TopValues {
		counts[i] = v.Count
	}
	return uniformityScore(counts)
}

// recommendedAction is the decision table over the anomaly flags. Pattern
// violations dominate because they indicate a fixable validity rule.
func recommendedAction(insights models.DistributionInsights) string {
	switch {
	case insights.HasPatternViolations:
		return "tighten validity rule"
	case insights.HasOutliers:
		return "review outlier thresholds"
	case insights.HasSuspiciousFrequency:
		return "inspect repeated default or placeholder values"
	default:
		return "no action needed"
	}
}

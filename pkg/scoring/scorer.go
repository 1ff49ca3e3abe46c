// Package scoring converts table and column profiles into a bounded 0-100
// data-quality score with an inspectable per-factor breakdown. Scoring is a
// pure function over already-computed inputs: no I/O, no randomness, and
// identical inputs always yield a bit-for-bit identical breakdown.
package scoring

import (
	"math"

	"github.com/dataforge-io/profiler-engine/pkg/models"
)

// Score computes the weighted quality score for one table.
//
// Factors: primary key presence (0 or 30), average null fraction (up to 20),
// statistics coverage (up to 20), foreign key presence (0 or 15), data type
// appropriateness (up to 15). The total is clamped to [0,100].
func Score(
	table models.TableMetadata,
	columns []models.ColumnMetadata,
	profiles []*models.ColumnProfile,
	relations []models.RelevantRelation,
) models.DataQualityScore {
	score := models.DataQualityScore{
		SchemaName: table.SchemaName,
		TableName:  table.TableName,
	}

	if table.HasPrimaryKey {
		score.PrimaryKeyScore = models.MaxPrimaryKeyScore
	}
	if hasForeignKey(table, columns, relations) {
		score.ForeignKeyScore = models.MaxForeignKeyScore
	}

	total := len(columns)
	if total > 0 {
		score.NullScore = roundScore((1 - avgNullFraction(profiles)) * float64(models.MaxNullScore))
		score.StatisticsScore = roundScore(float64(columnsWithDistinctStats(profiles)) / float64(total) * float64(models.MaxStatisticsScore))
		score.DataTypeScore = roundScore(float64(appropriateTypeColumns(columns)) / float64(total) * float64(models.MaxDataTypeScore))
	}

	score.Total = clampTotal(score.Sum())
	return score
}

func hasForeignKey(table models.TableMetadata, columns []models.ColumnMetadata, relations []models.RelevantRelation) bool {
	for _, c := range columns {
		if c.IsForeignKey {
			return true
		}
	}
	// Declared relations discovered at constraint level count even when the
	// column metadata did not resolve the FK flag.
	fullName := table.FullName()
	for _, r := range relations {
		if r.RelationType == models.RelationTypeDeclared && r.SourceTable == fullName {
			return true
		}
	}
	return false
}

func avgNullFraction(profiles []*models.ColumnProfile) float64 {
	if len(profiles) == 0 {
		return 0
	}
	var sum float64
	for _, p := range profiles {
		if p == nil || p.Completeness.TotalCount == 0 {
			continue
		}
		sum += float64(p.Completeness.NullCount) / float64(p.Completeness.TotalCount)
	}
	return sum / float64(len(profiles))
}

func columnsWithDistinctStats(profiles []*models.ColumnProfile) int {
	count := 0
	for _, p := range profiles {
		if p != nil && p.Cardinality.UniqueCount > 0 {
			count++
		}
	}
	return count
}

// appropriateTypeColumns counts columns whose declared type maps to a known
// classification. Unclassifiable types suggest schema smells (serialized
// blobs, catch-all varchars for structured data).
func appropriateTypeColumns(columns []models.ColumnMetadata) int {
	count := 0
	for _, c := range columns {
		if c.Classify() != models.ColumnClassOther {
			count++
		}
	}
	return count
}

func roundScore(v float64) int {
	return int(math.Round(v))
}

func clampTotal(total int) int {
	if total < 0 {
		return 0
	}
	if total > 100 {
		return 100
	}
	return total
}

package relationships

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/dataforge-io/profiler-engine/pkg/models"
)

// Importance scoring constants.
const (
	baseImportance            = 5
	declaredBonus             = 3
	highConfidenceBonus       = 2
	highConfidenceThreshold   = 0.8
	joinPatternBonusPerMatch  = 1
	joinPatternBonusCap       = 2
	minImportance             = 1
	maxImportance             = 10
)

// validationOpportunities maps each relation type to the checks it enables.
var validationOpportunities = map[models.RelationType][]string{
	models.RelationTypeDeclared: {
		"referential integrity check",
		"orphaned row detection",
	},
	models.RelationTypeNamingPattern: {
		"inclusion dependency check",
		"naming convention audit",
	},
	models.RelationTypeStatistical: {
		"inclusion dependency check",
		"value domain comparison",
	},
	models.RelationTypeImplicit: {
		"inclusion dependency check",
	},
}

// Merger folds relationship evidence from all collectors into a ranked,
// deduplicated relation list. Pure data transformation: no I/O, no AI calls,
// deterministic for fixed inputs.
type Merger struct {
	logger *zap.Logger
}

// NewMerger creates a relationship merger.
func NewMerger(logger *zap.Logger) *Merger {
	return &Merger{logger: logger.Named("relationship-merger")}
}

// candidate is one normalized piece of evidence during merging.
type candidate struct {
	sourceTable  string
	sourceColumn string
	targetTable  string
	targetColumn string
	relationType models.RelationType
	confidence   float64
}

func (c *candidate) joinCondition() string {
	return fmt.Sprintf("%s.%s = %s.%s", c.sourceTable, c.sourceColumn, c.targetTable, c.targetColumn)
}

// pairKey returns the unordered table pair key.
func pairKey(a, b string) string {
	if a <= b {
		return a + "|" + b
	}
	return b + "|" + a
}

// columnPairKey identifies duplicate evidence of the same type: unordered
// table pair plus the column pair, oriented with the lexically smaller table
// first so A.x=B.y and B.y=A.x collapse.
func (c *candidate) columnPairKey() string {
	if c.sourceTable <= c.targetTable {
		return c.sourceTable + "." + c.sourceColumn + "|" + c.targetTable + "." + c.targetColumn
	}
	return c.targetTable + "." + c.targetColumn + "|" + c.sourceTable + "." + c.sourceColumn
}

// Merge combines all evidence into ranked RelevantRelations. Evidence from
// different sources for the same table pair is kept as separate typed
// records; duplicate evidence of the same type and column pair collapses to
// the highest-confidence record. Malformed evidence (missing table names) is
// dropped with a warning, never fatal.
func (m *Merger) Merge(
	declared []models.DeclaredRelation,
	implicit []models.ImplicitRelation,
	statistical []models.StatisticalRelation,
	joins []models.JoinPattern,
) []models.RelevantRelation {
	var candidates []candidate
	dropped := 0

	for _, r := range declared {
		c := candidate{
			sourceTable: r.SourceTable, sourceColumn: r.SourceColumn,
			targetTable: r.TargetTable, targetColumn: r.TargetColumn,
			relationType: models.RelationTypeDeclared, confidence: r.Confidence(),
		}
		if !m.valid(&c) {
			dropped++
			continue
		}
		candidates = append(candidates, c)
	}

	for _, r := range implicit {
		c := candidate{
			sourceTable: r.SourceTable, sourceColumn: r.SourceColumn,
			targetTable: r.TargetTable, targetColumn: r.TargetColumn,
			relationType: implicitRelationType(r.DetectionMethod), confidence: r.Confidence,
		}
		if !m.valid(&c) {
			dropped++
			continue
		}
		candidates = append(candidates, c)
	}

	for _, r := range statistical {
		c := candidate{
			sourceTable: r.SourceTable, sourceColumn: r.SourceColumn,
			targetTable: r.TargetTable, targetColumn: r.TargetColumn,
			relationType: models.RelationTypeStatistical, confidence: r.Confidence,
		}
		if !m.valid(&c) {
			dropped++
			continue
		}
		candidates = append(candidates, c)
	}

	if dropped > 0 {
		m.logger.Warn("dropped malformed relationship evidence", zap.Int("count", dropped))
	}

	// Collapse duplicates of the same type and column pair, keeping the
	// highest confidence, then reduce each (table pair, type) group to its
	// best surviving candidate.
	byColumnPair := make(map[string]candidate)
	for _, c := range candidates {
		key := string(c.relationType) + "|" + c.columnPairKey()
		if existing, ok := byColumnPair[key]; !ok || c.confidence > existing.confidence {
			byColumnPair[key] = c
		}
	}

	byPairType := make(map[string]candidate)
	for _, c := range byColumnPair {
		key := string(c.relationType) + "|" + pairKey(c.sourceTable, c.targetTable)
		if existing, ok := byPairType[key]; !ok || c.confidence > existing.confidence {
			byPairType[key] = c
		}
	}

	// Count observed join patterns per unordered table pair.
	joinCounts := make(map[string]int)
	for _, j := range joins {
		if j.LeftTable == "" || j.RightTable == "" {
			continue
		}
		joinCounts[pairKey(j.LeftTable, j.RightTable)]++
	}

	relations := make([]models.RelevantRelation, 0, len(byPairType))
	for _, c := range byPairType {
		relations = append(relations, models.RelevantRelation{
			SourceTable:             c.sourceTable,
			TargetTable:             c.targetTable,
			JoinCondition:           c.joinCondition(),
			RelationType:            c.relationType,
			ImportanceScore:         importanceScore(&c, joinCounts[pairKey(c.sourceTable, c.targetTable)]),
			ConfidenceLevel:         c.confidence,
			ValidationOpportunities: validationOpportunities[c.relationType],
		})
	}

	// Total order: descending importance, descending confidence, then
	// lexicographic (sourceTable, targetTable, relationType) so reruns are
	// byte-identical.
	sort.Slice(relations, func(i, j int) bool {
		a, b := relations[i], relations[j]
		if a.ImportanceScore != b.ImportanceScore {
			return a.ImportanceScore > b.ImportanceScore
		}
		if a.ConfidenceLevel != b.ConfidenceLevel {
			return a.ConfidenceLevel > b.ConfidenceLevel
		}
		if a.SourceTable != b.SourceTable {
			return a.SourceTable < b.SourceTable
		}
		if a.TargetTable != b.TargetTable {
			return a.TargetTable < b.TargetTable
		}
		return a.RelationType < b.RelationType
	})

	return relations
}

func (m *Merger) valid(c *candidate) bool {
	if c.sourceTable == "" || c.targetTable == "" {
		m.logger.Warn("malformed evidence record missing table name",
			zap.String("source", c.sourceTable),
			zap.String("target", c.targetTable),
			zap.String("type", string(c.relationType)))
		return false
	}
	return true
}

func implicitRelationType(method models.DetectionMethod) models.RelationType {
	switch method {
	case models.DetectionMethodNamingPattern:
		return models.RelationTypeNamingPattern
	case models.DetectionMethodStatistical:
		return models.RelationTypeStatistical
	default:
		return models.RelationTypeImplicit
	}
}

func importanceScore(c *candidate, joinPatternCount int) int {
	score := baseImportance
	if c.relationType == models.RelationTypeDeclared {
		score += declaredBonus
	}
	if c.confidence >= highConfidenceThreshold {
		score += highConfidenceBonus
	}
	joinBonus := joinPatternCount * joinPatternBonusPerMatch
	if joinBonus > joinPatternBonusCap {
		joinBonus = joinPatternBonusCap
	}
	score += joinBonus

	if score < minImportance {
		score = minImportance
	}
	if score > maxImportance {
		score = maxImportance
	}
	return score
}

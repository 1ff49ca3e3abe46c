package models

import "time"

// ============================================================================
// Detection Methods
// ============================================================================

// DetectionMethod records how an implicit relation was detected.
type DetectionMethod string

const (
	DetectionMethodNamingPattern DetectionMethod = "naming_pattern"
	DetectionMethodStatistical   DetectionMethod = "statistical"
	DetectionMethodAISemantic    DetectionMethod = "ai_semantic"
)

// ValidDetectionMethods contains all valid detection method values.
var ValidDetectionMethods = []DetectionMethod{
	DetectionMethodNamingPattern,
	DetectionMethodStatistical,
	DetectionMethodAISemantic,
}

// IsValidDetectionMethod checks if the given method is valid.
func IsValidDetectionMethod(m DetectionMethod) bool {
	for _, v := range ValidDetectionMethods {
		if v == m {
			return true
		}
	}
	return false
}

// ============================================================================
// Relation evidence records
// ============================================================================

// DeclaredRelation is a foreign key constraint read from schema metadata.
// Ground truth: confidence is always 1.0.
type DeclaredRelation struct {
	SourceTable    string `json:"source_table"`
	SourceColumn   string `json:"source_column"`
	TargetTable    string `json:"target_table"`
	TargetColumn   string `json:"target_column"`
	ConstraintName string `json:"constraint_name"`
}

// Confidence returns the fixed confidence of declared constraints.
func (r *DeclaredRelation) Confidence() float64 { return 1.0 }

// ImplicitRelation is a relation inferred from weak signals such as column
// naming conventions.
type ImplicitRelation struct {
	SourceTable     string          `json:"source_table"`
	SourceColumn    string          `json:"source_column"`
	TargetTable     string          `json:"target_table"`
	TargetColumn    string          `json:"target_column"`
	Confidence      float64         `json:"confidence"` // 0.0-1.0
	DetectionMethod DetectionMethod `json:"detection_method"`
	Evidence        string          `json:"evidence"`
}

// StatisticalRelation is a relation inferred from observed value overlap
// between two columns' sampled data.
type StatisticalRelation struct {
	ImplicitRelation

	ValueOverlapCount   int64   `json:"value_overlap_count"`
	OverlapPercentage   float64 `json:"overlap_percentage"` // capped at 1.0
	ReferenceSampleSize int64   `json:"reference_sample_size"`
}

// CapOverlapPercentage computes the overlap percentage for a matched count
// against a reference sample size, capped at 1.0. A non-positive sample size
// yields 0 rather than a division fault. The raw matched count stays on the
// record so the scaling can be recalibrated later.
func CapOverlapPercentage(matched, referenceSampleSize int64) float64 {
	if referenceSampleSize <= 0 {
		return 0
	}
	pct := float64(matched) / float64(referenceSampleSize)
	if pct > 1.0 {
		return 1.0
	}
	return pct
}

// JoinPattern is an empirically observed join between two tables.
type JoinPattern struct {
	LeftTable      string    `json:"left_table"`
	RightTable     string    `json:"right_table"`
	JoinCondition  string    `json:"join_condition"`
	JoinType       string    `json:"join_type"`
	FrequencyCount int64     `json:"frequency_count"`
	FrequencyScore float64   `json:"frequency_score"` // 0.0-1.0
	LastUsed       time.Time `json:"last_used"`
}

// ============================================================================
// Merged output
// ============================================================================

// RelationType tags a merged relation with the evidence source that produced it.
type RelationType string

const (
	RelationTypeDeclared      RelationType = "declared"
	RelationTypeImplicit      RelationType = "implicit"
	RelationTypeNamingPattern RelationType = "naming_pattern"
	RelationTypeStatistical   RelationType = "statistical"
)

// ValidRelationTypes contains all valid relation type values.
var ValidRelationTypes = []RelationType{
	RelationTypeDeclared,
	RelationTypeImplicit,
	RelationTypeNamingPattern,
	RelationTypeStatistical,
}

// IsValidRelationType checks if the given relation type is valid.
func IsValidRelationType(t RelationType) bool {
	for _, v := range ValidRelationTypes {
		if v == t {
			return true
		}
	}
	return false
}

// RelevantRelation is the final, ranked, deduplicated relation record produced
// by merging all evidence sources. At most one exists per unordered table pair
// per relation type.
type RelevantRelation struct {
	SourceTable             string       `json:"source_table"`
	TargetTable             string       `json:"target_table"`
	JoinCondition           string       `json:"join_condition"`
	RelationType            RelationType `json:"relation_type"`
	ImportanceScore         int          `json:"importance_score"` // 1-10
	ConfidenceLevel         float64      `json:"confidence_level"` // 0.0-1.0
	ValidationOpportunities []string     `json:"validation_opportunities"`
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Rule dimensions and severities
// ============================================================================

// RuleDimension is the data-quality dimension a rule asserts.
type RuleDimension string

const (
	DimensionCompleteness RuleDimension = "completeness"
	DimensionUniqueness   RuleDimension = "uniqueness"
	DimensionValidity     RuleDimension = "validity"
	DimensionConsistency  RuleDimension = "consistency"
	DimensionAccuracy     RuleDimension = "accuracy"
	DimensionTimeliness   RuleDimension = "timeliness"
)

// ValidRuleDimensions contains all valid rule dimension values.
var ValidRuleDimensions = []RuleDimension{
	DimensionCompleteness,
	DimensionUniqueness,
	DimensionValidity,
	DimensionConsistency,
	DimensionAccuracy,
	DimensionTimeliness,
}

// IsValidRuleDimension checks if the given dimension is valid.
func IsValidRuleDimension(d RuleDimension) bool {
	for _, v := range ValidRuleDimensions {
		if v == d {
			return true
		}
	}
	return false
}

// RuleSeverity grades how serious a rule violation is.
type RuleSeverity string

const (
	SeverityLow      RuleSeverity = "low"
	SeverityMedium   RuleSeverity = "medium"
	SeverityHigh     RuleSeverity = "high"
	SeverityCritical RuleSeverity = "critical"
)

// ValidRuleSeverities contains all valid rule severity values.
var ValidRuleSeverities = []RuleSeverity{
	SeverityLow,
	SeverityMedium,
	SeverityHigh,
	SeverityCritical,
}

// IsValidRuleSeverity checks if the given severity is valid.
func IsValidRuleSeverity(s RuleSeverity) bool {
	for _, v := range ValidRuleSeverities {
		if v == s {
			return true
		}
	}
	return false
}

// ============================================================================
// Rule candidate
// ============================================================================

// DefaultExpectedPassRate is the pass-rate threshold applied when a candidate
// does not specify its own.
const DefaultExpectedPassRate = 95.0

// RuleCandidate is a proposed boolean SQL predicate expressing a data-quality
// expectation. The condition is expected to be true for valid rows.
type RuleCandidate struct {
	ID               uuid.UUID     `json:"id"`
	ProfileID        uuid.UUID     `json:"profile_id"`
	Dimension        RuleDimension `json:"dimension"`
	SchemaName       string        `json:"schema_name"`
	TableName        string        `json:"table_name"`
	ColumnName       *string       `json:"column_name,omitempty"`
	RuleName         string        `json:"rule_name"`
	Condition        string        `json:"condition"` // SQL boolean predicate
	Description      string        `json:"description"`
	Severity         RuleSeverity  `json:"severity"`
	ExpectedPassRate float64       `json:"expected_pass_rate"`
	AutoGenerated    bool          `json:"auto_generated"`
	ApprovedByUser   bool          `json:"approved_by_user"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// ============================================================================
// Custom rule versions
// ============================================================================

// RuleSource records where a versioned custom rule came from.
type RuleSource string

const (
	RuleSourceAI       RuleSource = "ai"
	RuleSourceCustom   RuleSource = "custom"
	RuleSourceTemplate RuleSource = "template"
)

// ValidRuleSources contains all valid rule source values.
var ValidRuleSources = []RuleSource{
	RuleSourceAI,
	RuleSourceCustom,
	RuleSourceTemplate,
}

// IsValidRuleSource checks if the given source is valid.
func IsValidRuleSource(s RuleSource) bool {
	for _, v := range ValidRuleSources {
		if v == s {
			return true
		}
	}
	return false
}

// CustomRuleVersion is one immutable version of a user-authored rule. For a
// given (owner, profile, schema, table, ruleId) key exactly one version has
// IsLatestVersion=true at any time; the store enforces the flip atomically.
type CustomRuleVersion struct {
	ID              uuid.UUID     `json:"id"`
	OwnerID         uuid.UUID     `json:"owner_id"`
	ProfileID       uuid.UUID     `json:"profile_id"`
	SchemaName      string        `json:"schema_name"`
	TableName       string        `json:"table_name"`
	ColumnName      *string       `json:"column_name,omitempty"`
	RuleID          string        `json:"rule_id"` // stable user-facing key
	Version         int           `json:"version"` // monotonic, starts at 1
	IsLatestVersion bool          `json:"is_latest_version"`
	Dimension       RuleDimension `json:"dimension"`
	Condition       string        `json:"condition"`
	Description     string        `json:"description"`
	Severity        RuleSeverity  `json:"severity"`
	ChangeReason    string        `json:"change_reason"`
	Notes           string        `json:"notes"`
	Source          RuleSource    `json:"source"`
	IsActive        bool          `json:"is_active"`
	CreatedAt       time.Time     `json:"created_at"`
}

// VersionKey identifies the rule lineage a CustomRuleVersion belongs to.
type VersionKey struct {
	OwnerID    uuid.UUID
	ProfileID  uuid.UUID
	SchemaName string
	TableName  string
	RuleID     string
}

// Key returns the lineage key of this version.
func (v *CustomRuleVersion) Key() VersionKey {
	return VersionKey{
		OwnerID:    v.OwnerID,
		ProfileID:  v.ProfileID,
		SchemaName: v.SchemaName,
		TableName:  v.TableName,
		RuleID:     v.RuleID,
	}
}

// ============================================================================
// Rule execution
// ============================================================================

// ExecutionStatus is the outcome of one rule execution.
type ExecutionStatus string

const (
	ExecutionStatusPass  ExecutionStatus = "pass"
	ExecutionStatusFail  ExecutionStatus = "fail"
	ExecutionStatusError ExecutionStatus = "error"
)

// ExecutionSeverity grades an execution outcome for reporting.
type ExecutionSeverity string

const (
	ExecutionSeverityError   ExecutionSeverity = "error"
	ExecutionSeverityWarning ExecutionSeverity = "warning"
	ExecutionSeverityInfo    ExecutionSeverity = "info"
)

// RuleExecutionResult records one evaluation of a rule condition against the
// target table. ValidRecords+InvalidRecords always equals TotalRecords, and
// ActualPassRate is 0 when TotalRecords is 0.
type RuleExecutionResult struct {
	ID              uuid.UUID         `json:"id"`
	RuleCandidateID uuid.UUID         `json:"rule_candidate_id"`
	TotalRecords    int64             `json:"total_records"`
	ValidRecords    int64             `json:"valid_records"`
	InvalidRecords  int64             `json:"invalid_records"`
	ActualPassRate  float64           `json:"actual_pass_rate"` // 0-100
	Status          ExecutionStatus   `json:"status"`
	Severity        ExecutionSeverity `json:"severity"`
	ErrorMessage    *string           `json:"error_message,omitempty"`
	Sampled         bool              `json:"sampled"` // set when row ceiling forced sampling
	SampleSize      int64             `json:"sample_size,omitempty"`
	ExecutionTimeMs int64             `json:"execution_time_ms"`
	ExecutedAt      time.Time         `json:"executed_at"`
}

// PassRate computes 100*valid/total, returning 0 for an empty table.
func PassRate(valid, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return 100 * float64(valid) / float64(total)
}

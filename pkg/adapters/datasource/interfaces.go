// Package datasource defines the capability contracts the profiler core uses
// to read metadata and sampled data from a target database. The core treats
// these as capabilities, not implementations; concrete adapters live in
// subpackages and register themselves at init time.
package datasource

import (
	"context"

	"github.com/dataforge-io/profiler-engine/pkg/models"
)

// MetadataReader yields table/column metadata and sampled rows from the
// target database. Implementations own their connection and must be closed
// when done. Failures distinguish connectivity problems (retryable, whole
// run affected) from missing schemas (affected table only) via the
// apperrors taxonomy.
type MetadataReader interface {
	// ListTables returns all user tables and views, excluding system schemas.
	ListTables(ctx context.Context) ([]models.TableMetadata, error)

	// ListColumns returns columns for a specific table, including declared
	// FK targets, distinct counts and null fractions.
	ListColumns(ctx context.Context, schemaName, tableName string) ([]models.ColumnMetadata, error)

	// SampleColumnValues returns up to limit values from a column, in
	// physical order. A nil entry is a NULL.
	SampleColumnValues(ctx context.Context, schemaName, tableName, columnName string, limit int) ([]*string, error)

	// ColumnAggregates computes server-side aggregates for one column.
	ColumnAggregates(ctx context.Context, schemaName, tableName, columnName string) (*ColumnAggregates, error)

	// DiscoverForeignKeys returns all declared foreign key constraints.
	DiscoverForeignKeys(ctx context.Context) ([]models.DeclaredRelation, error)

	// CheckValueOverlap measures distinct-value overlap between two columns,
	// each sampled up to sampleLimit distinct values.
	CheckValueOverlap(ctx context.Context, source, target ColumnRef, sampleLimit int) (*ValueOverlapResult, error)

	// CountRows returns the exact row count of a table.
	CountRows(ctx context.Context, schemaName, tableName string) (int64, error)

	// Close releases the database connection.
	Close() error
}

// ConditionEvaluator evaluates a boolean SQL predicate over a table's rows.
// Used by rule execution; adapters implement it alongside MetadataReader.
type ConditionEvaluator interface {
	// EvaluateCondition counts total rows and rows satisfying condition.
	// When sampleRows > 0 the evaluation runs over a bounded random sample
	// of roughly that many rows instead of the full table.
	EvaluateCondition(ctx context.Context, schemaName, tableName, condition string, sampleRows int64) (*ConditionCounts, error)
}

// ColumnRef identifies one column of one table.
type ColumnRef struct {
	SchemaName string
	TableName  string
	ColumnName string
}

// ColumnAggregates holds server-side aggregates for a single column.
type ColumnAggregates struct {
	TotalCount    int64
	NonNullCount  int64
	DistinctCount int64
	NullFraction  float64 // 0.0-1.0
	Min           *string // textual form, nil when table is empty
	Max           *string
}

// ValueOverlapResult holds the outcome of a value-overlap check.
type ValueOverlapResult struct {
	SourceDistinct int64
	TargetDistinct int64
	MatchedCount   int64
	MatchRate      float64 // matched/sourceDistinct, 0 when source is empty
}

// ConditionCounts holds the outcome of one condition evaluation.
type ConditionCounts struct {
	TotalRows   int64
	MatchedRows int64
	Sampled     bool
	SampleSize  int64
}

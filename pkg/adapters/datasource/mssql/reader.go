package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	mssqldb "github.com/microsoft/go-mssqldb"
	"go.uber.org/zap"

	"github.com/dataforge-io/profiler-engine/pkg/adapters/datasource"
	"github.com/dataforge-io/profiler-engine/pkg/apperrors"
	"github.com/dataforge-io/profiler-engine/pkg/logging"
	"github.com/dataforge-io/profiler-engine/pkg/models"
)

// quoteName bracket-quotes a SQL Server identifier.
func quoteName(identifier string) string {
	return "[" + strings.ReplaceAll(identifier, "]", "]]") + "]"
}

func qualifiedTableName(schemaName, tableName string) string {
	if schemaName == "" {
		return quoteName(tableName)
	}
	return quoteName(schemaName) + "." + quoteName(tableName)
}

// Reader is the SQL Server metadata reader and condition evaluator.
type Reader struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewReader opens a connection against the target database.
func NewReader(ctx context.Context, cfg *Config, logger *zap.Logger) (*Reader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlserver", buildConnectionString(cfg))
	if err != nil {
		return nil, &apperrors.ConnectivityError{Cause: err}
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		logger.Warn("target database unreachable",
			zap.String("host", cfg.Host),
			zap.String("error", logging.SanitizeError(err)))
		return nil, &apperrors.ConnectivityError{Cause: err}
	}

	return &Reader{db: db, logger: logger.Named("mssql-reader")}, nil
}

// Close releases the database connection.
func (r *Reader) Close() error {
	return r.db.Close()
}

// mapError converts driver errors to the profiler error taxonomy.
func mapError(err error, schemaName, tableName string) error {
	var sqlErr mssqldb.Error
	if errors.As(err, &sqlErr) {
		switch sqlErr.Number {
		case 208, 2812: // invalid object name, could not find stored procedure
			return &apperrors.SchemaNotFoundError{SchemaName: schemaName, TableName: tableName}
		}
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "unable to open tcp connection") {
		return &apperrors.ConnectivityError{Cause: err}
	}
	return err
}

// ListTables returns all user tables and views, excluding system objects.
func (r *Reader) ListTables(ctx context.Context) ([]models.TableMetadata, error) {
	const query = `
	SET NOCOUNT ON;
	SELECT
	    SCHEMA_NAME(o.schema_id) AS table_schema,
	    o.name AS table_name,
	    CASE WHEN o.type = 'V' THEN 'view' ELSE 'base' END AS table_type,
	    (SELECT COUNT(*) FROM sys.columns c WHERE c.object_id = o.object_id) AS column_count,
	    COALESCE(SUM(p.rows), 0) AS estimated_rows,
	    CASE WHEN EXISTS (
	        SELECT 1 FROM sys.indexes i
	        WHERE i.object_id = o.object_id AND i.is_primary_key = 1
	    ) THEN 1 ELSE 0 END AS has_primary_key
	FROM sys.objects o
	LEFT JOIN sys.partitions p ON o.object_id = p.object_id AND p.index_id IN (0, 1)
	WHERE o.type IN ('U', 'V')
	  AND o.is_ms_shipped = 0
	GROUP BY o.schema_id, o.name, o.type, o.object_id
	ORDER BY table_schema, table_name
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", mapError(err, "", ""))
	}
	defer rows.Close()

	var tables []models.TableMetadata
	for rows.Next() {
		var t models.TableMetadata
		var hasPK int
		if err := rows.Scan(&t.SchemaName, &t.TableName, &t.TableType, &t.ColumnCount, &t.EstimatedRows, &hasPK); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		t.HasPrimaryKey = hasPK == 1
		tables = append(tables, t)
	}

	return tables, rows.Err()
}

// ListColumns returns columns for a specific table, including declared FK
// targets. Distinct counts and null fractions come from a follow-up
// aggregate query per column when the profiler needs them.
func (r *Reader) ListColumns(ctx context.Context, schemaName, tableName string) ([]models.ColumnMetadata, error) {
	const query = `
	SET NOCOUNT ON;
	SELECT
	    c.name AS column_name,
	    ty.name AS data_type,
	    c.is_nullable,
	    c.column_id AS ordinal_position,
	    CASE WHEN pk.column_id IS NOT NULL THEN 1 ELSE 0 END AS is_primary_key,
	    SCHEMA_NAME(rt.schema_id) + '.' + rt.name AS target_table,
	    rc.name AS target_column
	FROM sys.columns c
	JOIN sys.objects o ON o.object_id = c.object_id
	JOIN sys.types ty ON ty.user_type_id = c.user_type_id
	LEFT JOIN (
	    SELECT ic.object_id, ic.column_id
	    FROM sys.index_columns ic
	    JOIN sys.indexes i ON i.object_id = ic.object_id AND i.index_id = ic.index_id
	    WHERE i.is_primary_key = 1
	) pk ON pk.object_id = c.object_id AND pk.column_id = c.column_id
	LEFT JOIN sys.foreign_key_columns fkc
	    ON fkc.parent_object_id = c.object_id AND fkc.parent_column_id = c.column_id
	LEFT JOIN sys.objects rt ON rt.object_id = fkc.referenced_object_id
	LEFT JOIN sys.columns rc
	    ON rc.object_id = fkc.referenced_object_id AND rc.column_id = fkc.referenced_column_id
	WHERE SCHEMA_NAME(o.schema_id) = @p1 AND o.name = @p2
	ORDER BY c.column_id
	`

	rows, err := r.db.QueryContext(ctx, query, schemaName, tableName)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", mapError(err, schemaName, tableName))
	}
	defer rows.Close()

	var columns []models.ColumnMetadata
	for rows.Next() {
		var c models.ColumnMetadata
		var isPK int
		if err := rows.Scan(&c.ColumnName, &c.DataType, &c.IsNullable, &c.OrdinalPosition, &isPK, &c.ForeignTable, &c.ForeignColumn); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		c.SchemaName = schemaName
		c.TableName = tableName
		c.IsPrimaryKey = isPK == 1
		c.IsForeignKey = c.ForeignTable != nil
		columns = append(columns, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	if len(columns) == 0 {
		return nil, &apperrors.SchemaNotFoundError{SchemaName: schemaName, TableName: tableName}
	}

	return columns, nil
}

// SampleColumnValues returns up to limit values from a column.
func (r *Reader) SampleColumnValues(ctx context.Context, schemaName, tableName, columnName string, limit int) ([]*string, error) {
	query := fmt.Sprintf(`SELECT TOP (%d) CAST(%s AS NVARCHAR(MAX)) FROM %s`,
		limit, quoteName(columnName), qualifiedTableName(schemaName, tableName))

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sample column values: %w", mapError(err, schemaName, tableName))
	}
	defer rows.Close()

	var values []*string
	for rows.Next() {
		var v *string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan sample value: %w", err)
		}
		values = append(values, v)
	}

	return values, rows.Err()
}

// ColumnAggregates computes server-side aggregates for one column.
func (r *Reader) ColumnAggregates(ctx context.Context, schemaName, tableName, columnName string) (*datasource.ColumnAggregates, error) {
	col := quoteName(columnName)
	tableRef := qualifiedTableName(schemaName, tableName)

	query := fmt.Sprintf(`
	SELECT
	    COUNT_BIG(*) AS total_count,
	    COUNT_BIG(%s) AS non_null_count,
	    COUNT_BIG(DISTINCT %s) AS distinct_count,
	    CAST(MIN(%s) AS NVARCHAR(MAX)) AS min_value,
	    CAST(MAX(%s) AS NVARCHAR(MAX)) AS max_value
	FROM %s
	`, col, col, col, col, tableRef)

	agg := &datasource.ColumnAggregates{}
	row := r.db.QueryRowContext(ctx, query)
	if err := row.Scan(&agg.TotalCount, &agg.NonNullCount, &agg.DistinctCount, &agg.Min, &agg.Max); err != nil {
		fallback := fmt.Sprintf(`
		SELECT COUNT_BIG(*), COUNT_BIG(%s), COUNT_BIG(DISTINCT %s) FROM %s
		`, col, col, tableRef)
		if retryErr := r.db.QueryRowContext(ctx, fallback).Scan(&agg.TotalCount, &agg.NonNullCount, &agg.DistinctCount); retryErr != nil {
			return nil, fmt.Errorf("column aggregates: %w", mapError(retryErr, schemaName, tableName))
		}
	}

	if agg.TotalCount > 0 {
		agg.NullFraction = float64(agg.TotalCount-agg.NonNullCount) / float64(agg.TotalCount)
	}

	return agg, nil
}

// DiscoverForeignKeys returns all declared foreign key constraints.
func (r *Reader) DiscoverForeignKeys(ctx context.Context) ([]models.DeclaredRelation, error) {
	const query = `
	SET NOCOUNT ON;
	SELECT
	    fk.name AS constraint_name,
	    SCHEMA_NAME(po.schema_id) + '.' + po.name AS source_table,
	    pc.name AS source_column,
	    SCHEMA_NAME(ro.schema_id) + '.' + ro.name AS target_table,
	    rc.name AS target_column
	FROM sys.foreign_keys fk
	JOIN sys.foreign_key_columns fkc ON fkc.constraint_object_id = fk.object_id
	JOIN sys.objects po ON po.object_id = fkc.parent_object_id
	JOIN sys.columns pc ON pc.object_id = fkc.parent_object_id AND pc.column_id = fkc.parent_column_id
	JOIN sys.objects ro ON ro.object_id = fkc.referenced_object_id
	JOIN sys.columns rc ON rc.object_id = fkc.referenced_object_id AND rc.column_id = fkc.referenced_column_id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query foreign keys: %w", mapError(err, "", ""))
	}
	defer rows.Close()

	var relations []models.DeclaredRelation
	for rows.Next() {
		var rel models.DeclaredRelation
		if err := rows.Scan(&rel.ConstraintName, &rel.SourceTable, &rel.SourceColumn, &rel.TargetTable, &rel.TargetColumn); err != nil {
			return nil, fmt.Errorf("scan foreign key: %w", err)
		}
		relations = append(relations, rel)
	}

	return relations, rows.Err()
}

// CheckValueOverlap measures distinct-value overlap between two columns.
func (r *Reader) CheckValueOverlap(ctx context.Context, source, target datasource.ColumnRef, sampleLimit int) (*datasource.ValueOverlapResult, error) {
	srcCol := quoteName(source.ColumnName)
	tgtCol := quoteName(target.ColumnName)
	srcTableRef := qualifiedTableName(source.SchemaName, source.TableName)
	tgtTableRef := qualifiedTableName(target.SchemaName, target.TableName)

	query := fmt.Sprintf(`
	WITH source_vals AS (
	    SELECT DISTINCT TOP (%d) CAST(%s AS NVARCHAR(MAX)) AS val
	    FROM %s WHERE %s IS NOT NULL
	),
	target_vals AS (
	    SELECT DISTINCT TOP (%d) CAST(%s AS NVARCHAR(MAX)) AS val
	    FROM %s WHERE %s IS NOT NULL
	)
	SELECT
	    (SELECT COUNT_BIG(*) FROM source_vals) AS source_distinct,
	    (SELECT COUNT_BIG(*) FROM target_vals) AS target_distinct,
	    (SELECT COUNT_BIG(*) FROM source_vals s JOIN target_vals t ON s.val = t.val) AS matched_count
	`, sampleLimit, srcCol, srcTableRef, srcCol,
		sampleLimit, tgtCol, tgtTableRef, tgtCol)

	var result datasource.ValueOverlapResult
	row := r.db.QueryRowContext(ctx, query)
	if err := row.Scan(&result.SourceDistinct, &result.TargetDistinct, &result.MatchedCount); err != nil {
		return nil, fmt.Errorf("check value overlap: %w", mapError(err, source.SchemaName, source.TableName))
	}

	if result.SourceDistinct > 0 {
		result.MatchRate = float64(result.MatchedCount) / float64(result.SourceDistinct)
	}

	return &result, nil
}

// CountRows returns the exact row count of a table.
func (r *Reader) CountRows(ctx context.Context, schemaName, tableName string) (int64, error) {
	query := fmt.Sprintf(`SELECT COUNT_BIG(*) FROM %s`, qualifiedTableName(schemaName, tableName))

	var count int64
	if err := r.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count rows: %w", mapError(err, schemaName, tableName))
	}
	return count, nil
}

// EvaluateCondition counts total rows and rows satisfying the condition.
// When sampleRows > 0 the evaluation runs over TABLESAMPLE with an explicit
// row bound.
func (r *Reader) EvaluateCondition(ctx context.Context, schemaName, tableName, condition string, sampleRows int64) (*datasource.ConditionCounts, error) {
	tableRef := qualifiedTableName(schemaName, tableName)

	counts := &datasource.ConditionCounts{}
	fromClause := tableRef
	if sampleRows > 0 {
		fromClause = fmt.Sprintf("%s TABLESAMPLE (%d ROWS)", tableRef, sampleRows)
		counts.Sampled = true
	}

	query := fmt.Sprintf(`
	SELECT
	    COUNT_BIG(*) AS total,
	    COALESCE(SUM(CASE WHEN %s THEN 1 ELSE 0 END), 0) AS matched
	FROM %s
	`, condition, fromClause)

	row := r.db.QueryRowContext(ctx, query)
	if err := row.Scan(&counts.TotalRows, &counts.MatchedRows); err != nil {
		mapped := mapError(err, schemaName, tableName)
		if apperrors.IsSchemaNotFound(mapped) || apperrors.IsConnectivity(mapped) {
			return nil, mapped
		}
		return nil, &apperrors.SQLFault{Condition: condition, Cause: err}
	}
	if counts.Sampled {
		counts.SampleSize = counts.TotalRows
	}

	return counts, nil
}

var _ datasource.Reader = (*Reader)(nil)

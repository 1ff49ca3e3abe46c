package postgres

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/dataforge-io/profiler-engine/pkg/adapters/datasource"
	"github.com/dataforge-io/profiler-engine/pkg/apperrors"
	"github.com/dataforge-io/profiler-engine/pkg/logging"
	"github.com/dataforge-io/profiler-engine/pkg/models"
)

// qualifiedTableName returns a properly quoted "schema"."table" reference.
func qualifiedTableName(schemaName, tableName string) string {
	quotedTable := pgx.Identifier{tableName}.Sanitize()
	if schemaName == "" {
		return quotedTable
	}
	return pgx.Identifier{schemaName}.Sanitize() + "." + quotedTable
}

// Reader is the PostgreSQL metadata reader and condition evaluator.
type Reader struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewReader opens a connection pool against the target database. The pool is
// owned by the reader and released by Close.
func NewReader(ctx context.Context, cfg *Config, logger *zap.Logger) (*Reader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	pool, err := pgxpool.New(ctx, buildConnectionString(cfg))
	if err != nil {
		return nil, &apperrors.ConnectivityError{Cause: err}
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		logger.Warn("target database unreachable",
			zap.String("host", cfg.Host),
			zap.String("error", logging.SanitizeError(err)))
		return nil, &apperrors.ConnectivityError{Cause: err}
	}

	return &Reader{pool: pool, logger: logger.Named("postgres-reader")}, nil
}

// Close releases the connection pool.
func (r *Reader) Close() error {
	r.pool.Close()
	return nil
}

// mapError converts driver errors to the profiler error taxonomy. Missing
// relations affect one table; connection-class failures affect the run.
func mapError(err error, schemaName, tableName string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "42P01", "3F000": // undefined_table, invalid_schema_name
			return &apperrors.SchemaNotFoundError{SchemaName: schemaName, TableName: tableName}
		}
		if len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08" { // connection exception class
			return &apperrors.ConnectivityError{Cause: err}
		}
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &apperrors.ConnectivityError{Cause: err}
	}
	return err
}

// ListTables returns all user tables and views, excluding system schemas.
func (r *Reader) ListTables(ctx context.Context) ([]models.TableMetadata, error) {
	const query = `
		SELECT
			t.table_schema,
			t.table_name,
			CASE WHEN t.table_type = 'VIEW' THEN 'view' ELSE 'base' END as table_type,
			(SELECT COUNT(*) FROM information_schema.columns c
			 WHERE c.table_schema = t.table_schema AND c.table_name = t.table_name) as column_count,
			COALESCE(cl.reltuples::bigint, 0) as estimated_rows,
			EXISTS (
				SELECT 1 FROM information_schema.table_constraints tc
				WHERE tc.table_schema = t.table_schema
				  AND tc.table_name = t.table_name
				  AND tc.constraint_type = 'PRIMARY KEY'
			) as has_primary_key
		FROM information_schema.tables t
		LEFT JOIN pg_class cl ON cl.relname = t.table_name
		LEFT JOIN pg_namespace n ON n.oid = cl.relnamespace AND n.nspname = t.table_schema
		WHERE t.table_schema NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
		ORDER BY t.table_schema, t.table_name
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", mapError(err, "", ""))
	}
	defer rows.Close()

	var tables []models.TableMetadata
	for rows.Next() {
		var t models.TableMetadata
		var rowEstimate int64
		if err := rows.Scan(&t.SchemaName, &t.TableName, &t.TableType, &t.ColumnCount, &rowEstimate, &t.HasPrimaryKey); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		// reltuples is -1 for never-analyzed tables
		if rowEstimate > 0 {
			t.EstimatedRows = rowEstimate
		}
		tables = append(tables, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}

	return tables, nil
}

// ListColumns returns columns for a specific table, including declared FK
// targets and planner statistics (distinct count, null fraction).
func (r *Reader) ListColumns(ctx context.Context, schemaName, tableName string) ([]models.ColumnMetadata, error) {
	const query = `
		SELECT
			c.column_name,
			c.data_type,
			c.is_nullable = 'YES' as is_nullable,
			c.ordinal_position,
			COALESCE(pk.is_pk, false) as is_primary_key,
			fk.target_table,
			fk.target_column,
			COALESCE(st.n_distinct, 0) as n_distinct,
			COALESCE(st.null_frac, 0) as null_frac,
			COALESCE(cl.reltuples::bigint, 0) as estimated_rows
		FROM information_schema.columns c
		LEFT JOIN (
			SELECT a.attname as column_name, true as is_pk
			FROM pg_index ix
			JOIN pg_class t ON t.oid = ix.indrelid
			JOIN pg_namespace n ON n.oid = t.relnamespace
			JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
			WHERE ix.indisprimary = true AND n.nspname = $1 AND t.relname = $2
		) pk ON c.column_name = pk.column_name
		LEFT JOIN (
			SELECT
				kcu.column_name,
				ccu.table_schema || '.' || ccu.table_name as target_table,
				ccu.column_name as target_column
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
				ON tc.constraint_name = kcu.constraint_name
				AND tc.table_schema = kcu.table_schema
			JOIN information_schema.constraint_column_usage ccu
				ON tc.constraint_name = ccu.constraint_name
				AND tc.table_schema = ccu.table_schema
			WHERE tc.constraint_type = 'FOREIGN KEY'
			  AND tc.table_schema = $1 AND tc.table_name = $2
		) fk ON c.column_name = fk.column_name
		LEFT JOIN pg_stats st
			ON st.schemaname = $1 AND st.tablename = $2 AND st.attname = c.column_name
		LEFT JOIN pg_class cl ON cl.relname = $2
		LEFT JOIN pg_namespace ns ON ns.oid = cl.relnamespace AND ns.nspname = $1
		WHERE c.table_schema = $1 AND c.table_name = $2
		ORDER BY c.ordinal_position
	`

	rows, err := r.pool.Query(ctx, query, schemaName, tableName)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", mapError(err, schemaName, tableName))
	}
	defer rows.Close()

	var columns []models.ColumnMetadata
	for rows.Next() {
		var c models.ColumnMetadata
		var nDistinct, nullFrac float64
		var rowEstimate int64
		if err := rows.Scan(&c.ColumnName, &c.DataType, &c.IsNullable, &c.OrdinalPosition,
			&c.IsPrimaryKey, &c.ForeignTable, &c.ForeignColumn, &nDistinct, &nullFrac, &rowEstimate); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		c.SchemaName = schemaName
		c.TableName = tableName
		c.IsForeignKey = c.ForeignTable != nil
		c.NullFraction = nullFrac
		// pg_stats encodes ratios as negative n_distinct
		if nDistinct < 0 {
			c.DistinctCount = int64(math.Round(-nDistinct * float64(rowEstimate)))
		} else {
			c.DistinctCount = int64(nDistinct)
		}
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

// SampleColumnValues returns up to limit values from a column in physical
// order. NULLs are preserved as nil entries so the profiler can count them.
func (r *Reader) SampleColumnValues(ctx context.Context, schemaName, tableName, columnName string, limit int) ([]*string, error) {
	quotedCol := pgx.Identifier{columnName}.Sanitize()
	tableRef := qualifiedTableName(schemaName, tableName)

	query := fmt.Sprintf(`SELECT %s::text FROM %s LIMIT $1`, quotedCol, tableRef)

	rows, err := r.pool.Query(ctx, query, limit)
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

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sample values: %w", err)
	}

	return values, nil
}

// ColumnAggregates computes server-side aggregates for one column. Min/max
// are cast to text so the caller stays dialect-agnostic; types without an
// ordering (json, xml) fall back to counts only.
func (r *Reader) ColumnAggregates(ctx context.Context, schemaName, tableName, columnName string) (*datasource.ColumnAggregates, error) {
	quotedCol := pgx.Identifier{columnName}.Sanitize()
	tableRef := qualifiedTableName(schemaName, tableName)

	query := fmt.Sprintf(`
		SELECT
			COUNT(*) as total_count,
			COUNT(%s) as non_null_count,
			COUNT(DISTINCT %s) as distinct_count,
			MIN(%s)::text as min_value,
			MAX(%s)::text as max_value
		FROM %s
	`, quotedCol, quotedCol, quotedCol, quotedCol, tableRef)

	agg := &datasource.ColumnAggregates{}
	row := r.pool.QueryRow(ctx, query)
	if err := row.Scan(&agg.TotalCount, &agg.NonNullCount, &agg.DistinctCount, &agg.Min, &agg.Max); err != nil {
		// Retry without min/max for types with no ordering operator.
		fallback := fmt.Sprintf(`
			SELECT COUNT(*), COUNT(%s), COUNT(DISTINCT %s) FROM %s
		`, quotedCol, quotedCol, tableRef)
		if retryErr := r.pool.QueryRow(ctx, fallback).Scan(&agg.TotalCount, &agg.NonNullCount, &agg.DistinctCount); retryErr != nil {
			return nil, fmt.Errorf("column aggregates: %w", mapError(retryErr, schemaName, tableName))
		}
		r.logger.Debug("min/max unsupported for column, counts only",
			zap.String("table", schemaName+"."+tableName),
			zap.String("column", columnName))
	}

	if agg.TotalCount > 0 {
		agg.NullFraction = float64(agg.TotalCount-agg.NonNullCount) / float64(agg.TotalCount)
	}

	return agg, nil
}

// DiscoverForeignKeys returns all declared foreign key constraints.
func (r *Reader) DiscoverForeignKeys(ctx context.Context) ([]models.DeclaredRelation, error) {
	const query = `
		SELECT
			tc.constraint_name,
			kcu.table_schema || '.' || kcu.table_name as source_table,
			kcu.column_name as source_column,
			ccu.table_schema || '.' || ccu.table_name as target_table,
			ccu.column_name as target_column
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON tc.constraint_name = ccu.constraint_name
			AND tc.table_schema = ccu.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
		  AND tc.table_schema NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
	`

	rows, err := r.pool.Query(ctx, query)
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

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate foreign keys: %w", err)
	}

	return relations, nil
}

// CheckValueOverlap measures distinct-value overlap between two columns.
// Values are compared as text to handle cross-type joins (text vs bigint).
func (r *Reader) CheckValueOverlap(ctx context.Context, source, target datasource.ColumnRef, sampleLimit int) (*datasource.ValueOverlapResult, error) {
	srcTableRef := qualifiedTableName(source.SchemaName, source.TableName)
	tgtTableRef := qualifiedTableName(target.SchemaName, target.TableName)
	srcCol := pgx.Identifier{source.ColumnName}.Sanitize()
	tgtCol := pgx.Identifier{target.ColumnName}.Sanitize()

	query := fmt.Sprintf(`
		WITH source_vals AS (
			SELECT DISTINCT %s::text as val
			FROM %s
			WHERE %s IS NOT NULL
			LIMIT $1
		),
		target_vals AS (
			SELECT DISTINCT %s::text as val
			FROM %s
			WHERE %s IS NOT NULL
			LIMIT $1
		)
		SELECT
			(SELECT COUNT(*) FROM source_vals) as source_distinct,
			(SELECT COUNT(*) FROM target_vals) as target_distinct,
			(SELECT COUNT(*) FROM source_vals s JOIN target_vals t ON s.val = t.val) as matched_count
	`, srcCol, srcTableRef, srcCol, tgtCol, tgtTableRef, tgtCol)

	var result datasource.ValueOverlapResult
	row := r.pool.QueryRow(ctx, query, sampleLimit)
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
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, qualifiedTableName(schemaName, tableName))

	var count int64
	if err := r.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count rows: %w", mapError(err, schemaName, tableName))
	}
	return count, nil
}

// EvaluateCondition counts total rows and rows satisfying the condition. The
// condition text comes from the rule pipeline and has already passed the
// read-only and injection checks in pkg/sql; it is still executed only as a
// filter inside an aggregate query. When sampleRows > 0 the scan runs over a
// TABLESAMPLE sized from the planner's row estimate.
func (r *Reader) EvaluateCondition(ctx context.Context, schemaName, tableName, condition string, sampleRows int64) (*datasource.ConditionCounts, error) {
	tableRef := qualifiedTableName(schemaName, tableName)

	fromClause := tableRef
	counts := &datasource.ConditionCounts{}
	if sampleRows > 0 {
		pct, err := r.samplePercent(ctx, schemaName, tableName, sampleRows)
		if err != nil {
			return nil, err
		}
		fromClause = fmt.Sprintf("%s TABLESAMPLE SYSTEM (%.4f)", tableRef, pct)
		counts.Sampled = true
	}

	query := fmt.Sprintf(`
		SELECT COUNT(*) as total, COUNT(*) FILTER (WHERE %s) as matched
		FROM %s
	`, condition, fromClause)

	row := r.pool.QueryRow(ctx, query)
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

// samplePercent converts a target sample row count into a TABLESAMPLE
// percentage using the planner's row estimate, clamped to (0, 100].
func (r *Reader) samplePercent(ctx context.Context, schemaName, tableName string, sampleRows int64) (float64, error) {
	const query = `
		SELECT COALESCE(c.reltuples::bigint, 0)
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1 AND c.relname = $2
	`

	var estimate int64
	if err := r.pool.QueryRow(ctx, query, schemaName, tableName).Scan(&estimate); err != nil {
		return 0, fmt.Errorf("row estimate: %w", mapError(err, schemaName, tableName))
	}
	if estimate <= sampleRows {
		return 100, nil
	}

	pct := 100 * float64(sampleRows) / float64(estimate)
	if pct < 0.0001 {
		pct = 0.0001
	}
	return pct, nil
}

var _ datasource.Reader = (*Reader)(nil)

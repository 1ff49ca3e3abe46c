// Package relationships infers table relationships from multiple weak
// signals: declared foreign keys, naming conventions, and statistical value
// overlap. Three independent collectors produce typed evidence; the Merger
// folds all evidence into a single ranked, deduplicated relation list.
package relationships

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/dataforge-io/profiler-engine/pkg/adapters/datasource"
	"github.com/dataforge-io/profiler-engine/pkg/logging"
	"github.com/dataforge-io/profiler-engine/pkg/models"
)

// boundQuery applies the per-query timeout when one is configured.
func boundQuery(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// DeclaredFKCollector reads foreign key constraints from schema metadata.
type DeclaredFKCollector struct {
	reader       datasource.MetadataReader
	queryTimeout time.Duration
	logger       *zap.Logger
}

// NewDeclaredFKCollector creates a declared-FK evidence collector. Each
// metadata query is bounded by queryTimeout; 0 disables the bound.
func NewDeclaredFKCollector(reader datasource.MetadataReader, queryTimeout time.Duration, logger *zap.Logger) *DeclaredFKCollector {
	return &DeclaredFKCollector{reader: reader, queryTimeout: queryTimeout, logger: logger.Named("fk-collector")}
}

// Collect returns all declared foreign key relations.
func (c *DeclaredFKCollector) Collect(ctx context.Context) ([]models.DeclaredRelation, error) {
	queryCtx, cancel := boundQuery(ctx, c.queryTimeout)
	defer cancel()
	relations, err := c.reader.DiscoverForeignKeys(queryCtx)
	if err != nil {
		return nil, fmt.Errorf("discover foreign keys: %w", err)
	}
	c.logger.Info("collected declared FK evidence", zap.Int("count", len(relations)))
	return relations, nil
}

// NamingPatternCollector infers relations from column naming conventions:
// a column named customer_id in orders likely references customers.id.
// Pure metadata transformation; no database access.
type NamingPatternCollector struct {
	logger *zap.Logger
}

// NewNamingPatternCollector creates a naming-pattern evidence collector.
func NewNamingPatternCollector(logger *zap.Logger) *NamingPatternCollector {
	return &NamingPatternCollector{logger: logger.Named("naming-collector")}
}

// idSuffixes are stripped from a column name to recover the referenced
// entity name.
var idSuffixes = []string{"_id", "_fk", "_key", "_code"}

// Collect matches identifier-shaped column names against the table list.
// Both the singular and plural forms of the recovered entity name are tried,
// so order_id matches both "order" and "orders" tables.
func (c *NamingPatternCollector) Collect(ctx context.Context, tables []models.TableMetadata, columnsByTable map[string][]models.ColumnMetadata) ([]models.ImplicitRelation, error) {
	// Index tables by bare name for O(1) candidate lookup.
	tablesByName := make(map[string]*models.TableMetadata, len(tables))
	for i := range tables {
		tablesByName[strings.ToLower(tables[i].TableName)] = &tables[i]
	}

	var relations []models.ImplicitRelation
	for tableFullName, columns := range columnsByTable {
		for _, col := range columns {
			// Declared FKs are ground truth handled by the FK collector.
			if col.IsForeignKey || col.IsPrimaryKey {
				continue
			}

			base, ok := stripIDSuffix(col.ColumnName)
			if !ok {
				continue
			}

			target := c.resolveTarget(base, tableFullName, tablesByName)
			if target == nil {
				continue
			}

			confidence := 0.6
			if target.HasPrimaryKey {
				confidence = 0.75
			}

			relations = append(relations, models.ImplicitRelation{
				SourceTable:     tableFullName,
				SourceColumn:    col.ColumnName,
				TargetTable:     target.FullName(),
				TargetColumn:    "id",
				Confidence:      confidence,
				DetectionMethod: models.DetectionMethodNamingPattern,
				Evidence: fmt.Sprintf("column %q matches table %q by naming convention",
					col.ColumnName, target.TableName),
			})
		}
	}

	c.logger.Info("collected naming-pattern evidence", zap.Int("count", len(relations)))
	return relations, nil
}

func (c *NamingPatternCollector) resolveTarget(base, sourceTable string, tablesByName map[string]*models.TableMetadata) *models.TableMetadata {
	candidates := []string{base, inflection.Plural(base), inflection.Singular(base)}
	for _, name := range candidates {
		if t, ok := tablesByName[name]; ok && t.FullName() != sourceTable {
			return t
		}
	}
	return nil
}

// stripIDSuffix recovers the referenced entity name from an identifier-shaped
// column name. Returns false for bare "id" columns and non-identifier names.
func stripIDSuffix(columnName string) (string, bool) {
	name := strings.ToLower(columnName)
	for _, suffix := range idSuffixes {
		if strings.HasSuffix(name, suffix) && len(name) > len(suffix) {
			return name[:len(name)-len(suffix)], true
		}
	}
	return "", false
}

// StatisticalOverlapCollector detects relations by measuring distinct-value
// overlap between identifier columns and primary key columns of other tables.
type StatisticalOverlapCollector struct {
	reader           datasource.MetadataReader
	sampleLimit      int
	overlapThreshold float64
	queryTimeout     time.Duration
	logger           *zap.Logger
}

// NewStatisticalOverlapCollector creates a value-overlap evidence collector.
// sampleLimit bounds the distinct values compared per column; relations below
// overlapThreshold are not emitted. Each pairwise overlap query is bounded by
// queryTimeout; 0 disables the bound.
func NewStatisticalOverlapCollector(reader datasource.MetadataReader, sampleLimit int, overlapThreshold float64, queryTimeout time.Duration, logger *zap.Logger) *StatisticalOverlapCollector {
	return &StatisticalOverlapCollector{
		reader:           reader,
		sampleLimit:      sampleLimit,
		overlapThreshold: overlapThreshold,
		queryTimeout:     queryTimeout,
		logger:           logger.Named("overlap-collector"),
	}
}

// Collect runs pairwise overlap checks between candidate source columns
// (identifier-class, non-PK) and primary key columns of other tables. A
// failing pair is skipped, never fatal for the rest.
func (c *StatisticalOverlapCollector) Collect(ctx context.Context, columnsByTable map[string][]models.ColumnMetadata) ([]models.StatisticalRelation, error) {
	// Primary key columns are the overlap targets.
	type pkTarget struct {
		table  string
		column models.ColumnMetadata
	}
	var targets []pkTarget
	for table, columns := range columnsByTable {
		for _, col := range columns {
			if col.IsPrimaryKey {
				targets = append(targets, pkTarget{table: table, column: col})
			}
		}
	}

	var relations []models.StatisticalRelation
	for table, columns := range columnsByTable {
		for _, col := range columns {
			if col.IsPrimaryKey || col.IsForeignKey || col.Classify() != models.ColumnClassIdentifier {
				continue
			}

			for _, target := range targets {
				if target.table == table {
					continue
				}

				queryCtx, cancel := boundQuery(ctx, c.queryTimeout)
				result, err := c.reader.CheckValueOverlap(queryCtx,
					columnRef(table, col.ColumnName),
					columnRef(target.table, target.column.ColumnName),
					c.sampleLimit)
				cancel()
				if err != nil {
					c.logger.Warn("value overlap check failed, skipping pair",
						zap.String("source", table+"."+col.ColumnName),
						zap.String("target", target.table+"."+target.column.ColumnName),
						zap.String("error", logging.SanitizeError(err)))
					continue
				}

				overlapPct := models.CapOverlapPercentage(result.MatchedCount, result.SourceDistinct)
				if overlapPct < c.overlapThreshold {
					continue
				}

				relations = append(relations, models.StatisticalRelation{
					ImplicitRelation: models.ImplicitRelation{
						SourceTable:     table,
						SourceColumn:    col.ColumnName,
						TargetTable:     target.table,
						TargetColumn:    target.column.ColumnName,
						Confidence:      overlapPct,
						DetectionMethod: models.DetectionMethodStatistical,
						Evidence: fmt.Sprintf("%d of %d sampled values match %s.%s",
							result.MatchedCount, result.SourceDistinct,
							target.table, target.column.ColumnName),
					},
					ValueOverlapCount:   result.MatchedCount,
					OverlapPercentage:   overlapPct,
					ReferenceSampleSize: result.SourceDistinct,
				})
			}
		}
	}

	c.logger.Info("collected statistical overlap evidence", zap.Int("count", len(relations)))
	return relations, nil
}

func columnRef(tableFullName, columnName string) datasource.ColumnRef {
	schema, table := splitFullName(tableFullName)
	return datasource.ColumnRef{SchemaName: schema, TableName: table, ColumnName: columnName}
}

func splitFullName(fullName string) (schema, table string) {
	if idx := strings.IndexByte(fullName, '.'); idx >= 0 {
		return fullName[:idx], fullName[idx+1:]
	}
	return "", fullName
}

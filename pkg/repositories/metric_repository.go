package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dataforge-io/profiler-engine/pkg/database"
	"github.com/dataforge-io/profiler-engine/pkg/models"
)

// MetricRepository stores profiling metric facts. Facts are append-only:
// every profiling run adds new time-stamped rows, so metric history is
// queryable across runs.
type MetricRepository interface {
	// AppendFacts bulk-inserts metric facts from one profiling run.
	AppendFacts(ctx context.Context, facts []models.MetricFact) error

	// GetSeries retrieves the history of one metric for a table or column,
	// oldest first. columnName is empty for table-level metrics.
	GetSeries(ctx context.Context, schemaName, tableName, columnName, metricName string) ([]models.MetricFact, error)
}

type metricRepository struct {
	db *database.DB
}

// NewMetricRepository creates a new metric repository.
func NewMetricRepository(db *database.DB) MetricRepository {
	return &metricRepository{db: db}
}

func (r *metricRepository) AppendFacts(ctx context.Context, facts []models.MetricFact) error {
	if len(facts) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(facts))
	for _, f := range facts {
		rows = append(rows, []any{
			f.SchemaName, f.TableName, f.ColumnName, f.MetricName, f.MetricValue, f.CollectedAt,
		})
	}

	_, err := r.db.CopyFrom(ctx,
		pgx.Identifier{"metric_facts"},
		[]string{"schema_name", "table_name", "column_name", "metric_name", "metric_value", "collected_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to append metric facts: %w", err)
	}
	return nil
}

func (r *metricRepository) GetSeries(ctx context.Context, schemaName, tableName, columnName, metricName string) ([]models.MetricFact, error) {
	rows, err := r.db.Query(ctx, `
		SELECT schema_name, table_name, column_name, metric_name, metric_value, collected_at
		FROM metric_facts
		WHERE schema_name = $1 AND table_name = $2 AND column_name = $3 AND metric_name = $4
		ORDER BY collected_at`,
		schemaName, tableName, columnName, metricName)
	if err != nil {
		return nil, fmt.Errorf("failed to query metric series: %w", err)
	}
	defer rows.Close()

	var facts []models.MetricFact
	for rows.Next() {
		var f models.MetricFact
		err := rows.Scan(&f.SchemaName, &f.TableName, &f.ColumnName, &f.MetricName, &f.MetricValue, &f.CollectedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan metric fact: %w", err)
		}
		facts = append(facts, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate metric facts: %w", err)
	}
	return facts, nil
}

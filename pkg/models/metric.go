package models

import "time"

// MetricFact is one time-stamped, append-only measurement row. Table-level
// facts have an empty ColumnName. Facts are keyed by
// (schema, table[, column], metric name, collected-at) and never updated in
// place, preserving history across profiling runs.
type MetricFact struct {
	SchemaName  string    `json:"schema_name"`
	TableName   string    `json:"table_name"`
	ColumnName  string    `json:"column_name,omitempty"`
	MetricName  string    `json:"metric_name"`
	MetricValue float64   `json:"metric_value"`
	CollectedAt time.Time `json:"collected_at"`
}

package models

// TableType distinguishes base tables from views.
type TableType string

const (
	TableTypeBase TableType = "base"
	TableTypeView TableType = "view"
)

// TableMetadata describes a discovered table in the target database.
type TableMetadata struct {
	SchemaName    string    `json:"schema_name"`
	TableName     string    `json:"table_name"`
	TableType     TableType `json:"table_type"`
	ColumnCount   int       `json:"column_count"`
	EstimatedRows int64     `json:"estimated_rows"`
	HasPrimaryKey bool      `json:"has_primary_key"`
}

// FullName returns the stable "schema.table" identity key used everywhere
// a table is referenced by other records.
func (t *TableMetadata) FullName() string {
	return t.SchemaName + "." + t.TableName
}

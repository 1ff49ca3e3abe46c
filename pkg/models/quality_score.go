package models

// Maximum contribution of each quality score factor.
const (
	MaxPrimaryKeyScore = 30
	MaxNullScore       = 20
	MaxStatisticsScore = 20
	MaxForeignKeyScore = 15
	MaxDataTypeScore   = 15
)

// DataQualityScore is a 0-100 composite metric summarizing a table's
// structural and statistical health. Each factor remains individually
// inspectable; Total is the clamped sum of the five.
type DataQualityScore struct {
	SchemaName string `json:"schema_name"`
	TableName  string `json:"table_name"`

	PrimaryKeyScore int `json:"primary_key_score"` // 0 or 30
	NullScore       int `json:"null_score"`        // 0-20
	StatisticsScore int `json:"statistics_score"`  // 0-20
	ForeignKeyScore int `json:"foreign_key_score"` // 0 or 15
	DataTypeScore   int `json:"data_type_score"`   // 0-15

	Total int `json:"total"` // clamped to 0-100
}

// Sum returns the unclamped sum of the five factors.
func (s *DataQualityScore) Sum() int {
	return s.PrimaryKeyScore + s.NullScore + s.StatisticsScore + s.ForeignKeyScore + s.DataTypeScore
}

package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dataforge-io/profiler-engine/pkg/adapters/datasource"
	"github.com/dataforge-io/profiler-engine/pkg/apperrors"
	"github.com/dataforge-io/profiler-engine/pkg/config"
	"github.com/dataforge-io/profiler-engine/pkg/models"
)

// mockReader implements datasource.Reader with configurable responses.
type mockReader struct {
	tables         []models.TableMetadata
	tablesErr      error
	columnsByTable map[string][]models.ColumnMetadata
	columnsErr     map[string]error
	samples        map[string][]*string
	aggregates     map[string]*datasource.ColumnAggregates
	declared       []models.DeclaredRelation
	declaredErr    error
	rowCounts      map[string]int64
	evaluate       func(condition string, sampleRows int64) (*datasource.ConditionCounts, error)
	evaluateCalls  []string

	// mu guards the deadline captures; sampling runs on pool workers.
	mu                    sync.Mutex
	listTablesHadDeadline bool
	sampleHadDeadline     bool
}

func (m *mockReader) ListTables(ctx context.Context) ([]models.TableMetadata, error) {
	_, m.listTablesHadDeadline = ctx.Deadline()
	return m.tables, m.tablesErr
}

func (m *mockReader) ListColumns(ctx context.Context, schemaName, tableName string) ([]models.ColumnMetadata, error) {
	key := schemaName + "." + tableName
	if err := m.columnsErr[key]; err != nil {
		return nil, err
	}
	return m.columnsByTable[key], nil
}

func (m *mockReader) SampleColumnValues(ctx context.Context, schemaName, tableName, columnName string, limit int) ([]*string, error) {
	m.mu.Lock()
	_, m.sampleHadDeadline = ctx.Deadline()
	m.mu.Unlock()
	return m.samples[schemaName+"."+tableName+"."+columnName], nil
}

func (m *mockReader) ColumnAggregates(ctx context.Context, schemaName, tableName, columnName string) (*datasource.ColumnAggregates, error) {
	if aggs, ok := m.aggregates[schemaName+"."+tableName+"."+columnName]; ok {
		return aggs, nil
	}
	return &datasource.ColumnAggregates{}, nil
}

func (m *mockReader) DiscoverForeignKeys(ctx context.Context) ([]models.DeclaredRelation, error) {
	return m.declared, m.declaredErr
}

func (m *mockReader) CheckValueOverlap(ctx context.Context, source, target datasource.ColumnRef, sampleLimit int) (*datasource.ValueOverlapResult, error) {
	return &datasource.ValueOverlapResult{}, nil
}

func (m *mockReader) CountRows(ctx context.Context, schemaName, tableName string) (int64, error) {
	return m.rowCounts[schemaName+"."+tableName], nil
}

func (m *mockReader) EvaluateCondition(ctx context.Context, schemaName, tableName, condition string, sampleRows int64) (*datasource.ConditionCounts, error) {
	m.evaluateCalls = append(m.evaluateCalls, condition)
	if m.evaluate != nil {
		return m.evaluate(condition, sampleRows)
	}
	return &datasource.ConditionCounts{TotalRows: 100, MatchedRows: 100}, nil
}

func (m *mockReader) Close() error { return nil }

var _ datasource.Reader = (*mockReader)(nil)

// mockMetricRepo captures appended facts.
type mockMetricRepo struct {
	facts     []models.MetricFact
	appendErr error
}

func (m *mockMetricRepo) AppendFacts(ctx context.Context, facts []models.MetricFact) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.facts = append(m.facts, facts...)
	return nil
}

func (m *mockMetricRepo) GetSeries(ctx context.Context, schemaName, tableName, columnName, metricName string) ([]models.MetricFact, error) {
	return nil, nil
}

func strPtr(s string) *string { return &s }

func testProfilerConfig() config.ProfilerConfig {
	return config.ProfilerConfig{
		WorkerConcurrency:     2,
		SampleSize:            100,
		TopValueCount:         10,
		HistogramBuckets:      10,
		FrequencyMultiple:     10,
		PatternMatchThreshold: 0.9,
		DateGapDays:           7,
		OverlapSampleSize:     100,
		OverlapThreshold:      0.8,
		MaxRefineAttempts:     3,
	}
}

func ordersSchema() *mockReader {
	return &mockReader{
		tables: []models.TableMetadata{
			{SchemaName: "public", TableName: "customers", TableType: models.TableTypeBase, EstimatedRows: 3, HasPrimaryKey: true},
			{SchemaName: "public", TableName: "orders", TableType: models.TableTypeBase, EstimatedRows: 3, HasPrimaryKey: true},
		},
		columnsByTable: map[string][]models.ColumnMetadata{
			"public.customers": {
				{SchemaName: "public", TableName: "customers", ColumnName: "id", DataType: "integer", IsPrimaryKey: true, DistinctCount: 3},
			},
			"public.orders": {
				{SchemaName: "public", TableName: "orders", ColumnName: "id", DataType: "integer", IsPrimaryKey: true, DistinctCount: 3},
				{SchemaName: "public", TableName: "orders", ColumnName: "customer_id", DataType: "integer", DistinctCount: 3},
				{SchemaName: "public", TableName: "orders", ColumnName: "total", DataType: "numeric", DistinctCount: 3},
			},
		},
		samples: map[string][]*string{
			"public.customers.id":      {strPtr("1"), strPtr("2"), strPtr("3")},
			"public.orders.id":         {strPtr("1"), strPtr("2"), strPtr("3")},
			"public.orders.customer_id": {strPtr("1"), strPtr("2"), strPtr("3")},
			"public.orders.total":      {strPtr("10.50"), strPtr("99.99"), strPtr("42.00")},
		},
		aggregates: map[string]*datasource.ColumnAggregates{
			"public.orders.total": {TotalCount: 3, NonNullCount: 3, DistinctCount: 3},
		},
		declared: []models.DeclaredRelation{
			{SourceTable: "public.orders", SourceColumn: "customer_id", TargetTable: "public.customers", TargetColumn: "id", ConstraintName: "orders_customer_id_fkey"},
		},
	}
}

func TestProfileRunService_ProfilesAllTables(t *testing.T) {
	reader := ordersSchema()
	metrics := &mockMetricRepo{}
	svc := NewProfileRunService(reader, metrics, testProfilerConfig(), zaptest.NewLogger(t))

	result, err := svc.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, result.Tables, 2)
	assert.Empty(t, result.SkippedTables)

	// Declared FK evidence outranks the naming-pattern evidence covering the
	// same column pair.
	require.NotEmpty(t, result.Relations)
	assert.Equal(t, models.RelationTypeDeclared, result.Relations[0].RelationType)
	assert.Equal(t, "public.orders", result.Relations[0].SourceTable)
	assert.Equal(t, 10, result.Relations[0].ImportanceScore)

	for _, report := range result.Tables {
		assert.Len(t, report.Profiles, len(report.Columns))
		assert.Greater(t, report.Score.Total, 0)
	}

	// Each table contributed a quality_score fact.
	scoreFacts := 0
	for _, f := range metrics.facts {
		if f.MetricName == "quality_score" {
			scoreFacts++
			assert.Empty(t, f.ColumnName)
		}
	}
	assert.Equal(t, 2, scoreFacts)
}

func TestProfileRunService_QueryTimeoutBoundsReaderQueries(t *testing.T) {
	reader := ordersSchema()
	cfg := testProfilerConfig()
	cfg.QueryTimeoutSecs = 30
	svc := NewProfileRunService(reader, &mockMetricRepo{}, cfg, zaptest.NewLogger(t))

	// The run context itself carries no deadline; each reader query must
	// still get one.
	_, err := svc.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, reader.listTablesHadDeadline)
	assert.True(t, reader.sampleHadDeadline)
}

func TestProfileRunService_SkipsVanishedTable(t *testing.T) {
	reader := ordersSchema()
	reader.columnsErr = map[string]error{
		"public.customers": &apperrors.SchemaNotFoundError{SchemaName: "public", TableName: "customers"},
	}
	svc := NewProfileRunService(reader, &mockMetricRepo{}, testProfilerConfig(), zaptest.NewLogger(t))

	result, err := svc.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, result.Tables, 1)
	assert.Equal(t, []string{"public.customers"}, result.SkippedTables)
	assert.Equal(t, "public.orders", result.Tables[0].Table.FullName())
}

func TestProfileRunService_ConnectivityFailureAbortsRun(t *testing.T) {
	reader := ordersSchema()
	reader.tablesErr = &apperrors.ConnectivityError{Cause: errors.New("connection refused")}
	svc := NewProfileRunService(reader, &mockMetricRepo{}, testProfilerConfig(), zaptest.NewLogger(t))

	_, err := svc.Run(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsConnectivity(err))
}

func TestProfileRunService_CollectorFailureDoesNotAbort(t *testing.T) {
	reader := ordersSchema()
	reader.declaredErr = errors.New("pg_constraint query failed")
	svc := NewProfileRunService(reader, &mockMetricRepo{}, testProfilerConfig(), zaptest.NewLogger(t))

	result, err := svc.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, result.Tables, 2)

	// The declared evidence is gone, but the naming-pattern collector still
	// links orders.customer_id to public.customers.
	require.NotEmpty(t, result.Relations)
	for _, rel := range result.Relations {
		assert.NotEqual(t, models.RelationTypeDeclared, rel.RelationType)
	}
}

func TestProfileRunService_JoinPatternsRaiseImportance(t *testing.T) {
	// Drop the declared evidence so the surviving naming-pattern relation
	// has headroom below the importance cap.
	reader := ordersSchema()
	reader.declaredErr = errors.New("pg_constraint query failed")
	metrics := &mockMetricRepo{}
	svc := NewProfileRunService(reader, metrics, testProfilerConfig(), zaptest.NewLogger(t))

	baseline, err := svc.Run(context.Background(), nil)
	require.NoError(t, err)

	joins := []models.JoinPattern{
		{LeftTable: "public.orders", RightTable: "public.customers", JoinCondition: "orders.customer_id = customers.id", FrequencyCount: 40},
		{LeftTable: "public.customers", RightTable: "public.orders", JoinCondition: "customers.id = orders.customer_id", FrequencyCount: 12},
	}
	boosted, err := svc.Run(context.Background(), joins)
	require.NoError(t, err)

	require.NotEmpty(t, baseline.Relations)
	require.NotEmpty(t, boosted.Relations)
	assert.Greater(t, boosted.Relations[0].ImportanceScore, baseline.Relations[0].ImportanceScore)
}

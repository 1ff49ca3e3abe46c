package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dataforge-io/profiler-engine/pkg/adapters/datasource"
	"github.com/dataforge-io/profiler-engine/pkg/apperrors"
	"github.com/dataforge-io/profiler-engine/pkg/config"
	"github.com/dataforge-io/profiler-engine/pkg/logging"
	"github.com/dataforge-io/profiler-engine/pkg/models"
	"github.com/dataforge-io/profiler-engine/pkg/profiler"
	"github.com/dataforge-io/profiler-engine/pkg/relationships"
	"github.com/dataforge-io/profiler-engine/pkg/repositories"
	"github.com/dataforge-io/profiler-engine/pkg/scoring"
)

// TableReport is the per-table output of one profiling run.
type TableReport struct {
	Table    models.TableMetadata     `json:"table"`
	Columns  []models.ColumnMetadata  `json:"columns"`
	Profiles []*models.ColumnProfile  `json:"profiles"`
	Score    models.DataQualityScore  `json:"score"`
}

// ProfileRunResult summarizes one full profiling run.
type ProfileRunResult struct {
	Tables        []*TableReport            `json:"tables"`
	SkippedTables []string                  `json:"skipped_tables,omitempty"`
	Relations     []models.RelevantRelation `json:"relations"`
	DurationMs    int64                     `json:"duration_ms"`
}

// ProfileRunService orchestrates one profiling run against a target database:
// relationship inference, per-column profiling, quality scoring, and metric
// fact persistence.
type ProfileRunService interface {
	// Run profiles every discoverable table. Join patterns come from the
	// caller (query-log mining is out of scope here) and only influence
	// relationship importance. A table whose schema disappears mid-run is
	// skipped and reported; a connectivity failure aborts the whole run.
	Run(ctx context.Context, joins []models.JoinPattern) (*ProfileRunResult, error)
}

type profileRunService struct {
	reader       datasource.Reader
	metricRepo   repositories.MetricRepository
	cfg          config.ProfilerConfig
	queryTimeout time.Duration
	prof         *profiler.Profiler
	pool         *profiler.Pool
	merger       *relationships.Merger
	declared     *relationships.DeclaredFKCollector
	naming       *relationships.NamingPatternCollector
	overlap      *relationships.StatisticalOverlapCollector
	logger       *zap.Logger
}

// NewProfileRunService creates a new profile run service.
func NewProfileRunService(
	reader datasource.Reader,
	metricRepo repositories.MetricRepository,
	cfg config.ProfilerConfig,
	logger *zap.Logger,
) ProfileRunService {
	opts := profiler.DefaultOptions()
	opts.TopValueCount = cfg.TopValueCount
	opts.HistogramBuckets = cfg.HistogramBuckets
	opts.FrequencyMultiple = cfg.FrequencyMultiple
	opts.PatternMatchThreshold = cfg.PatternMatchThreshold
	opts.DateGapDays = cfg.DateGapDays

	queryTimeout := time.Duration(cfg.QueryTimeoutSecs) * time.Second

	return &profileRunService{
		reader:       reader,
		metricRepo:   metricRepo,
		cfg:          cfg,
		queryTimeout: queryTimeout,
		prof:         profiler.NewProfiler(opts, logger),
		pool:         profiler.NewPool(cfg.EffectiveWorkerConcurrency(), logger),
		merger:       relationships.NewMerger(logger),
		declared:     relationships.NewDeclaredFKCollector(reader, queryTimeout, logger),
		naming:       relationships.NewNamingPatternCollector(logger),
		overlap:      relationships.NewStatisticalOverlapCollector(reader, cfg.OverlapSampleSize, cfg.OverlapThreshold, queryTimeout, logger),
		logger:       logger.Named("profile-run"),
	}
}

var _ ProfileRunService = (*profileRunService)(nil)

func (s *profileRunService) Run(ctx context.Context, joins []models.JoinPattern) (*ProfileRunResult, error) {
	start := time.Now()
	result := &ProfileRunResult{}

	tables, err := s.listTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	columnsByTable := make(map[string][]models.ColumnMetadata, len(tables))
	var profiled []models.TableMetadata
	for _, table := range tables {
		columns, err := s.listColumns(ctx, table.SchemaName, table.TableName)
		if err != nil {
			if apperrors.IsSchemaNotFound(err) {
				s.logger.Warn("table disappeared during run, skipping",
					zap.String("table", table.FullName()))
				result.SkippedTables = append(result.SkippedTables, table.FullName())
				continue
			}
			return nil, fmt.Errorf("failed to list columns for %s: %w", table.FullName(), err)
		}
		columnsByTable[table.FullName()] = columns
		profiled = append(profiled, table)
	}

	result.Relations = s.inferRelations(ctx, profiled, columnsByTable, joins)

	collectedAt := time.Now().UTC()
	var facts []models.MetricFact
	for i := range profiled {
		table := profiled[i]
		columns := columnsByTable[table.FullName()]

		profiles := s.profileColumns(ctx, table, columns)
		score := scoring.Score(table, columns, profiles, result.Relations)

		result.Tables = append(result.Tables, &TableReport{
			Table:    table,
			Columns:  columns,
			Profiles: profiles,
			Score:    score,
		})
		facts = append(facts, tableFacts(table, profiles, score, collectedAt)...)
	}

	if err := s.metricRepo.AppendFacts(ctx, facts); err != nil {
		return nil, fmt.Errorf("failed to persist metric facts: %w", err)
	}

	result.DurationMs = time.Since(start).Milliseconds()
	s.logger.Info("profiling run complete",
		zap.Int("tables", len(result.Tables)),
		zap.Int("skipped", len(result.SkippedTables)),
		zap.Int("relations", len(result.Relations)),
		zap.Int64("duration_ms", result.DurationMs))
	return result, nil
}

// queryCtx bounds a single target-database query so one slow statement
// cannot stall the run or pin a pool worker indefinitely.
func (s *profileRunService) queryCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.queryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.queryTimeout)
}

func (s *profileRunService) listTables(ctx context.Context) ([]models.TableMetadata, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	return s.reader.ListTables(qctx)
}

func (s *profileRunService) listColumns(ctx context.Context, schemaName, tableName string) ([]models.ColumnMetadata, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	return s.reader.ListColumns(qctx, schemaName, tableName)
}

// inferRelations runs the three evidence collectors concurrently and merges
// their output. A failed collector contributes no evidence but never fails
// the run; the barrier waits for all three before merging.
func (s *profileRunService) inferRelations(
	ctx context.Context,
	tables []models.TableMetadata,
	columnsByTable map[string][]models.ColumnMetadata,
	joins []models.JoinPattern,
) []models.RelevantRelation {
	var (
		wg          sync.WaitGroup
		declared    []models.DeclaredRelation
		implicit    []models.ImplicitRelation
		statistical []models.StatisticalRelation
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		var err error
		declared, err = s.declared.Collect(ctx)
		if err != nil {
			s.logger.Warn("declared FK collection failed",
				zap.String("error", logging.SanitizeError(err)))
		}
	}()
	go func() {
		defer wg.Done()
		var err error
		implicit, err = s.naming.Collect(ctx, tables, columnsByTable)
		if err != nil {
			s.logger.Warn("naming pattern collection failed",
				zap.String("error", logging.SanitizeError(err)))
		}
	}()
	go func() {
		defer wg.Done()
		var err error
		statistical, err = s.overlap.Collect(ctx, columnsByTable)
		if err != nil {
			s.logger.Warn("value overlap collection failed",
				zap.String("error", logging.SanitizeError(err)))
		}
	}()
	wg.Wait()

	return s.merger.Merge(declared, implicit, statistical, joins)
}

// profileColumns fans the table's columns across the worker pool. A column
// whose sampling fails still yields a minimal profile so the table report
// stays complete.
func (s *profileRunService) profileColumns(
	ctx context.Context,
	table models.TableMetadata,
	columns []models.ColumnMetadata,
) []*models.ColumnProfile {
	tasks := make([]profiler.Task[*models.ColumnProfile], 0, len(columns))
	for i := range columns {
		col := columns[i]
		tasks = append(tasks, profiler.Task[*models.ColumnProfile]{
			ID: col.ColumnName,
			Execute: func(ctx context.Context) (*models.ColumnProfile, error) {
				sampleCtx, cancelSample := s.queryCtx(ctx)
				samples, err := s.reader.SampleColumnValues(sampleCtx, col.SchemaName, col.TableName, col.ColumnName, s.cfg.SampleSize)
				cancelSample()
				if err != nil {
					return nil, fmt.Errorf("failed to sample %s.%s: %w", col.TableFullName(), col.ColumnName, err)
				}
				aggCtx, cancelAgg := s.queryCtx(ctx)
				aggs, err := s.reader.ColumnAggregates(aggCtx, col.SchemaName, col.TableName, col.ColumnName)
				cancelAgg()
				if err != nil {
					return nil, fmt.Errorf("failed to aggregate %s.%s: %w", col.TableFullName(), col.ColumnName, err)
				}
				return s.prof.Profile(col, samples, aggs), nil
			},
		})
	}

	results := profiler.Run(ctx, s.pool, tasks, nil)

	byColumn := make(map[string]*models.ColumnProfile, len(results))
	for _, res := range results {
		if res.Err != nil {
			s.logger.Warn("column profiling failed",
				zap.String("table", table.FullName()),
				zap.String("column", res.ID),
				zap.String("error", logging.SanitizeError(res.Err)))
			continue
		}
		byColumn[res.ID] = res.Result
	}

	// Reassemble in declared column order; failed columns get a bare profile.
	profiles := make([]*models.ColumnProfile, 0, len(columns))
	for _, col := range columns {
		if p, ok := byColumn[col.ColumnName]; ok {
			profiles = append(profiles, p)
			continue
		}
		profiles = append(profiles, &models.ColumnProfile{
			SchemaName: col.SchemaName,
			TableName:  col.TableName,
			ColumnName: col.ColumnName,
			Class:      col.Classify(),
		})
	}
	return profiles
}

// tableFacts flattens one table report into append-only metric facts.
func tableFacts(table models.TableMetadata, profiles []*models.ColumnProfile, score models.DataQualityScore, collectedAt time.Time) []models.MetricFact {
	facts := []models.MetricFact{
		{
			SchemaName: table.SchemaName, TableName: table.TableName,
			MetricName: "quality_score", MetricValue: float64(score.Total), CollectedAt: collectedAt,
		},
		{
			SchemaName: table.SchemaName, TableName: table.TableName,
			MetricName: "estimated_rows", MetricValue: float64(table.EstimatedRows), CollectedAt: collectedAt,
		},
	}

	for _, p := range profiles {
		total := p.Completeness.TotalCount
		nullFraction := 0.0
		if total > 0 {
			nullFraction = float64(p.Completeness.NullCount) / float64(total)
		}
		facts = append(facts,
			models.MetricFact{
				SchemaName: p.SchemaName, TableName: p.TableName, ColumnName: p.ColumnName,
				MetricName: "null_fraction", MetricValue: nullFraction, CollectedAt: collectedAt,
			},
			models.MetricFact{
				SchemaName: p.SchemaName, TableName: p.TableName, ColumnName: p.ColumnName,
				MetricName: "distinct_count", MetricValue: float64(p.Cardinality.UniqueCount), CollectedAt: collectedAt,
			},
			models.MetricFact{
				SchemaName: p.SchemaName, TableName: p.TableName, ColumnName: p.ColumnName,
				MetricName: "completeness_rate", MetricValue: p.Completeness.CompletenessRate, CollectedAt: collectedAt,
			},
			models.MetricFact{
				SchemaName: p.SchemaName, TableName: p.TableName, ColumnName: p.ColumnName,
				MetricName: "anomaly_count", MetricValue: float64(len(p.Anomalies)), CollectedAt: collectedAt,
			},
		)
	}
	return facts
}

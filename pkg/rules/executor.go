// Package rules owns the rule candidate lifecycle: validation and execution
// of rule conditions against live data, and the bounded AI-assisted repair
// loop for conditions that fail to execute.
package rules

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dataforge-io/profiler-engine/pkg/adapters/datasource"
	"github.com/dataforge-io/profiler-engine/pkg/apperrors"
	"github.com/dataforge-io/profiler-engine/pkg/logging"
	"github.com/dataforge-io/profiler-engine/pkg/models"
	enginesql "github.com/dataforge-io/profiler-engine/pkg/sql"
)

// ExecutorConfig tunes rule execution.
type ExecutorConfig struct {
	// RowCeiling downgrades execution to a bounded random sample when the
	// table exceeds this row count. 0 disables sampling.
	RowCeiling int64
	// SampleSize is the approximate sample size used above the ceiling.
	SampleSize int64
	// QueryTimeout bounds each evaluation query.
	QueryTimeout time.Duration
}

// Executor evaluates rule conditions as boolean predicates over the target
// table. Counts are exact unless the table exceeds the configured row
// ceiling, in which case the result carries an explicit Sampled flag.
type Executor struct {
	reader datasource.Reader
	config ExecutorConfig
	logger *zap.Logger
}

// NewExecutor creates a rule executor.
func NewExecutor(reader datasource.Reader, config ExecutorConfig, logger *zap.Logger) *Executor {
	if config.QueryTimeout <= 0 {
		config.QueryTimeout = 30 * time.Second
	}
	return &Executor{
		reader: reader,
		config: config,
		logger: logger.Named("rule-executor"),
	}
}

// Execute runs one rule candidate's condition against its target table.
// Structural validation failures and database-side condition faults both
// surface as a SQLFault, making the candidate eligible for refinement.
// Connectivity and missing-schema errors pass through untranslated.
func (e *Executor) Execute(ctx context.Context, candidate *models.RuleCandidate) (*models.RuleExecutionResult, error) {
	validation := enginesql.ValidateCondition(candidate.Condition)
	if validation.Error != nil {
		return nil, &apperrors.SQLFault{Condition: candidate.Condition, Cause: validation.Error}
	}

	start := time.Now()

	queryCtx, cancel := context.WithTimeout(ctx, e.config.QueryTimeout)
	defer cancel()

	sampleRows := int64(0)
	if e.config.RowCeiling > 0 {
		rowCount, err := e.reader.CountRows(queryCtx, candidate.SchemaName, candidate.TableName)
		if err != nil {
			return nil, err
		}
		if rowCount > e.config.RowCeiling {
			sampleRows = e.config.SampleSize
			e.logger.Info("table above row ceiling, sampling",
				zap.String("table", candidate.SchemaName+"."+candidate.TableName),
				zap.Int64("row_count", rowCount),
				zap.Int64("sample_rows", sampleRows))
		}
	}

	counts, err := e.reader.EvaluateCondition(queryCtx,
		candidate.SchemaName, candidate.TableName, validation.NormalizedCondition, sampleRows)
	if err != nil {
		e.logger.Warn("rule condition failed to execute",
			zap.String("rule", candidate.RuleName),
			zap.String("condition", logging.SanitizeCondition(candidate.Condition)),
			zap.String("error", logging.SanitizeError(err)))
		return nil, err
	}

	result := &models.RuleExecutionResult{
		ID:              uuid.New(),
		RuleCandidateID: candidate.ID,
		TotalRecords:    counts.TotalRows,
		ValidRecords:    counts.MatchedRows,
		InvalidRecords:  counts.TotalRows - counts.MatchedRows,
		ActualPassRate:  models.PassRate(counts.MatchedRows, counts.TotalRows),
		Sampled:         counts.Sampled,
		SampleSize:      counts.SampleSize,
		ExecutionTimeMs: time.Since(start).Milliseconds(),
		ExecutedAt:      time.Now().UTC(),
	}

	if result.ActualPassRate >= candidate.ExpectedPassRate {
		result.Status = models.ExecutionStatusPass
		result.Severity = models.ExecutionSeverityInfo
	} else {
		result.Status = models.ExecutionStatusFail
		result.Severity = failureSeverity(candidate.Severity)
	}

	return result, nil
}

// failureSeverity maps a rule's declared severity onto the execution
// severity grading.
func failureSeverity(s models.RuleSeverity) models.ExecutionSeverity {
	switch s {
	case models.SeverityCritical, models.SeverityHigh:
		return models.ExecutionSeverityError
	case models.SeverityMedium:
		return models.ExecutionSeverityWarning
	default:
		return models.ExecutionSeverityInfo
	}
}

// ErrorResult builds the execution record for a candidate whose condition
// never ran successfully.
func ErrorResult(candidate *models.RuleCandidate, execErr error, elapsed time.Duration) *models.RuleExecutionResult {
	msg := execErr.Error()
	return &models.RuleExecutionResult{
		ID:              uuid.New(),
		RuleCandidateID: candidate.ID,
		Status:          models.ExecutionStatusError,
		Severity:        models.ExecutionSeverityError,
		ErrorMessage:    &msg,
		ExecutionTimeMs: elapsed.Milliseconds(),
		ExecutedAt:      time.Now().UTC(),
	}
}

package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dataforge-io/profiler-engine/pkg/database"
	"github.com/dataforge-io/profiler-engine/pkg/models"
)

// ExecutionRepository records rule execution outcomes. The history is
// append-only; results are inserted in completion order and never rewritten.
type ExecutionRepository interface {
	// RecordExecution appends one execution result.
	RecordExecution(ctx context.Context, result *models.RuleExecutionResult) error

	// ListByCandidate retrieves the execution history of a candidate,
	// newest first, bounded by limit (0 means no bound).
	ListByCandidate(ctx context.Context, candidateID uuid.UUID, limit int) ([]*models.RuleExecutionResult, error)
}

type executionRepository struct {
	db *database.DB
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *database.DB) ExecutionRepository {
	return &executionRepository{db: db}
}

func (r *executionRepository) RecordExecution(ctx context.Context, result *models.RuleExecutionResult) error {
	if result.ID == uuid.Nil {
		result.ID = uuid.New()
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO rule_execution_results (id, rule_candidate_id, total_records, valid_records,
			invalid_records, actual_pass_rate, status, severity, error_message,
			sampled, sample_size, execution_time_ms, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		result.ID,
		result.RuleCandidateID,
		result.TotalRecords,
		result.ValidRecords,
		result.InvalidRecords,
		result.ActualPassRate,
		result.Status,
		result.Severity,
		result.ErrorMessage,
		result.Sampled,
		result.SampleSize,
		result.ExecutionTimeMs,
		result.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record execution result: %w", err)
	}
	return nil
}

func (r *executionRepository) ListByCandidate(ctx context.Context, candidateID uuid.UUID, limit int) ([]*models.RuleExecutionResult, error) {
	query := `
		SELECT id, rule_candidate_id, total_records, valid_records, invalid_records,
			actual_pass_rate, status, severity, error_message, sampled, sample_size,
			execution_time_ms, executed_at
		FROM rule_execution_results
		WHERE rule_candidate_id = $1
		ORDER BY executed_at DESC`
	args := []any{candidateID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list execution results: %w", err)
	}
	defer rows.Close()

	var results []*models.RuleExecutionResult
	for rows.Next() {
		var res models.RuleExecutionResult
		err := rows.Scan(
			&res.ID,
			&res.RuleCandidateID,
			&res.TotalRecords,
			&res.ValidRecords,
			&res.InvalidRecords,
			&res.ActualPassRate,
			&res.Status,
			&res.Severity,
			&res.ErrorMessage,
			&res.Sampled,
			&res.SampleSize,
			&res.ExecutionTimeMs,
			&res.ExecutedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution result: %w", err)
		}
		results = append(results, &res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate execution results: %w", err)
	}
	return results, nil
}

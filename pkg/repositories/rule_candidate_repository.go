package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dataforge-io/profiler-engine/pkg/apperrors"
	"github.com/dataforge-io/profiler-engine/pkg/database"
	"github.com/dataforge-io/profiler-engine/pkg/models"
)

// RuleCandidateRepository defines data access for rule candidates.
type RuleCandidateRepository interface {
	// Upsert inserts a candidate, or updates the existing row when a
	// candidate with the same (profile, schema, table, rule name) already
	// exists. The candidate's ID and timestamps are filled in on return.
	Upsert(ctx context.Context, candidate *models.RuleCandidate) error

	// GetByID retrieves a candidate by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*models.RuleCandidate, error)

	// ListByTable retrieves all candidates for a table within a profile,
	// ordered by rule name.
	ListByTable(ctx context.Context, profileID uuid.UUID, schemaName, tableName string) ([]*models.RuleCandidate, error)

	// SetApproval flips the user-approval flag on a candidate.
	SetApproval(ctx context.Context, id uuid.UUID, approved bool) error

	// Delete removes a candidate by ID.
	Delete(ctx context.Context, id uuid.UUID) error
}

type ruleCandidateRepository struct {
	db *database.DB
}

// NewRuleCandidateRepository creates a new rule candidate repository.
func NewRuleCandidateRepository(db *database.DB) RuleCandidateRepository {
	return &ruleCandidateRepository{db: db}
}

const ruleCandidateColumns = `id, profile_id, dimension, schema_name, table_name, column_name,
	rule_name, condition, description, severity, expected_pass_rate,
	auto_generated, approved_by_user, created_at, updated_at`

func (r *ruleCandidateRepository) Upsert(ctx context.Context, candidate *models.RuleCandidate) error {
	now := time.Now()
	if candidate.ID == uuid.Nil {
		candidate.ID = uuid.New()
	}
	if candidate.CreatedAt.IsZero() {
		candidate.CreatedAt = now
	}
	candidate.UpdatedAt = now

	query := `
		INSERT INTO rule_candidates (id, profile_id, dimension, schema_name, table_name, column_name,
			rule_name, condition, description, severity, expected_pass_rate,
			auto_generated, approved_by_user, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (profile_id, schema_name, table_name, rule_name) DO UPDATE SET
			dimension = EXCLUDED.dimension,
			column_name = EXCLUDED.column_name,
			condition = EXCLUDED.condition,
			description = EXCLUDED.description,
			severity = EXCLUDED.severity,
			expected_pass_rate = EXCLUDED.expected_pass_rate,
			auto_generated = EXCLUDED.auto_generated,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at`

	err := r.db.QueryRow(ctx, query,
		candidate.ID,
		candidate.ProfileID,
		candidate.Dimension,
		candidate.SchemaName,
		candidate.TableName,
		candidate.ColumnName,
		candidate.RuleName,
		candidate.Condition,
		candidate.Description,
		candidate.Severity,
		candidate.ExpectedPassRate,
		candidate.AutoGenerated,
		candidate.ApprovedByUser,
		candidate.CreatedAt,
		candidate.UpdatedAt,
	).Scan(&candidate.ID, &candidate.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert rule candidate: %w", err)
	}
	return nil
}

func (r *ruleCandidateRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.RuleCandidate, error) {
	query := `SELECT ` + ruleCandidateColumns + ` FROM rule_candidates WHERE id = $1`

	candidate, err := scanRuleCandidate(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get rule candidate: %w", err)
	}
	return candidate, nil
}

func (r *ruleCandidateRepository) ListByTable(ctx context.Context, profileID uuid.UUID, schemaName, tableName string) ([]*models.RuleCandidate, error) {
	query := `SELECT ` + ruleCandidateColumns + `
		FROM rule_candidates
		WHERE profile_id = $1 AND schema_name = $2 AND table_name = $3
		ORDER BY rule_name`

	rows, err := r.db.Query(ctx, query, profileID, schemaName, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to list rule candidates: %w", err)
	}
	defer rows.Close()

	var candidates []*models.RuleCandidate
	for rows.Next() {
		candidate, err := scanRuleCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule candidate: %w", err)
		}
		candidates = append(candidates, candidate)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rule candidates: %w", err)
	}
	return candidates, nil
}

func (r *ruleCandidateRepository) SetApproval(ctx context.Context, id uuid.UUID, approved bool) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE rule_candidates SET approved_by_user = $2, updated_at = $3 WHERE id = $1`,
		id, approved, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update rule candidate approval: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *ruleCandidateRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM rule_candidates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule candidate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func scanRuleCandidate(row pgx.Row) (*models.RuleCandidate, error) {
	var c models.RuleCandidate
	err := row.Scan(
		&c.ID,
		&c.ProfileID,
		&c.Dimension,
		&c.SchemaName,
		&c.TableName,
		&c.ColumnName,
		&c.RuleName,
		&c.Condition,
		&c.Description,
		&c.Severity,
		&c.ExpectedPassRate,
		&c.AutoGenerated,
		&c.ApprovedByUser,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

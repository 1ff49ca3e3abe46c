package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dataforge-io/profiler-engine/pkg/apperrors"
	"github.com/dataforge-io/profiler-engine/pkg/database"
	"github.com/dataforge-io/profiler-engine/pkg/models"
)

// uniqueViolation is the PostgreSQL error code for unique constraint violations.
const uniqueViolation = "23505"

// CustomRuleVersionRepository defines data access for versioned custom rules.
// Versions within a lineage (owner, profile, schema, table, ruleId) are
// immutable; an edit appends a new version and atomically moves the
// latest-version marker.
type CustomRuleVersionRepository interface {
	// CreateVersion appends a new version for the rule lineage identified by
	// the version's key. The version number and IsLatestVersion are assigned
	// by the store: the previous latest (if any) is flipped to false and the
	// new row becomes latest, in one transaction. A concurrent writer racing
	// on the same lineage is retried once internally; a second clash surfaces
	// as a VersionConflictError.
	CreateVersion(ctx context.Context, version *models.CustomRuleVersion) error

	// GetLatest retrieves the single latest version of a rule lineage.
	GetLatest(ctx context.Context, key models.VersionKey) (*models.CustomRuleVersion, error)

	// ListLatest retrieves the latest version of every active rule lineage
	// for an owner and profile, ordered by schema, table, rule id.
	ListLatest(ctx context.Context, ownerID, profileID uuid.UUID) ([]*models.CustomRuleVersion, error)

	// ListHistory retrieves all versions of a rule lineage, newest first.
	ListHistory(ctx context.Context, key models.VersionKey) ([]*models.CustomRuleVersion, error)

	// Deactivate marks the latest version of a lineage inactive without
	// touching its history.
	Deactivate(ctx context.Context, key models.VersionKey) error
}

type customRuleVersionRepository struct {
	db *database.DB
}

// NewCustomRuleVersionRepository creates a new custom rule version repository.
func NewCustomRuleVersionRepository(db *database.DB) CustomRuleVersionRepository {
	return &customRuleVersionRepository{db: db}
}

const customRuleVersionColumns = `id, owner_id, profile_id, schema_name, table_name, column_name,
	rule_id, version, is_latest_version, dimension, condition, description,
	severity, change_reason, notes, source, is_active, created_at`

func (r *customRuleVersionRepository) CreateVersion(ctx context.Context, version *models.CustomRuleVersion) error {
	err := r.tryCreateVersion(ctx, version)
	if err == nil {
		return nil
	}

	// A unique violation means another writer claimed the same version
	// number between our read and our insert. Recompute once and retry.
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return err
	}

	err = r.tryCreateVersion(ctx, version)
	if err == nil {
		return nil
	}
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return &apperrors.VersionConflictError{
			RuleID:           version.RuleID,
			AttemptedVersion: version.Version,
		}
	}
	return err
}

func (r *customRuleVersionRepository) tryCreateVersion(ctx context.Context, version *models.CustomRuleVersion) error {
	key := version.Key()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	var maxVersion int
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(version), 0) FROM custom_rule_versions
		WHERE owner_id = $1 AND profile_id = $2 AND schema_name = $3 AND table_name = $4 AND rule_id = $5`,
		key.OwnerID, key.ProfileID, key.SchemaName, key.TableName, key.RuleID,
	).Scan(&maxVersion)
	if err != nil {
		return fmt.Errorf("failed to read current version: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE custom_rule_versions SET is_latest_version = false
		WHERE owner_id = $1 AND profile_id = $2 AND schema_name = $3 AND table_name = $4 AND rule_id = $5
		  AND is_latest_version`,
		key.OwnerID, key.ProfileID, key.SchemaName, key.TableName, key.RuleID)
	if err != nil {
		return fmt.Errorf("failed to clear previous latest version: %w", err)
	}

	version.Version = maxVersion + 1
	version.IsLatestVersion = true
	if version.ID == uuid.Nil {
		version.ID = uuid.New()
	}
	if version.CreatedAt.IsZero() {
		version.CreatedAt = time.Now()
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO custom_rule_versions (id, owner_id, profile_id, schema_name, table_name, column_name,
			rule_id, version, is_latest_version, dimension, condition, description,
			severity, change_reason, notes, source, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		version.ID,
		version.OwnerID,
		version.ProfileID,
		version.SchemaName,
		version.TableName,
		version.ColumnName,
		version.RuleID,
		version.Version,
		version.IsLatestVersion,
		version.Dimension,
		version.Condition,
		version.Description,
		version.Severity,
		version.ChangeReason,
		version.Notes,
		version.Source,
		version.IsActive,
		version.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert rule version: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit rule version: %w", err)
	}
	return nil
}

func (r *customRuleVersionRepository) GetLatest(ctx context.Context, key models.VersionKey) (*models.CustomRuleVersion, error) {
	query := `SELECT ` + customRuleVersionColumns + `
		FROM custom_rule_versions
		WHERE owner_id = $1 AND profile_id = $2 AND schema_name = $3 AND table_name = $4 AND rule_id = $5
		  AND is_latest_version`

	version, err := scanCustomRuleVersion(r.db.QueryRow(ctx, query,
		key.OwnerID, key.ProfileID, key.SchemaName, key.TableName, key.RuleID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get latest rule version: %w", err)
	}
	return version, nil
}

func (r *customRuleVersionRepository) ListLatest(ctx context.Context, ownerID, profileID uuid.UUID) ([]*models.CustomRuleVersion, error) {
	query := `SELECT ` + customRuleVersionColumns + `
		FROM custom_rule_versions
		WHERE owner_id = $1 AND profile_id = $2 AND is_latest_version AND is_active
		ORDER BY schema_name, table_name, rule_id`

	return r.queryVersions(ctx, query, ownerID, profileID)
}

func (r *customRuleVersionRepository) ListHistory(ctx context.Context, key models.VersionKey) ([]*models.CustomRuleVersion, error) {
	query := `SELECT ` + customRuleVersionColumns + `
		FROM custom_rule_versions
		WHERE owner_id = $1 AND profile_id = $2 AND schema_name = $3 AND table_name = $4 AND rule_id = $5
		ORDER BY version DESC`

	return r.queryVersions(ctx, query,
		key.OwnerID, key.ProfileID, key.SchemaName, key.TableName, key.RuleID)
}

func (r *customRuleVersionRepository) Deactivate(ctx context.Context, key models.VersionKey) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE custom_rule_versions SET is_active = false
		WHERE owner_id = $1 AND profile_id = $2 AND schema_name = $3 AND table_name = $4 AND rule_id = $5
		  AND is_latest_version`,
		key.OwnerID, key.ProfileID, key.SchemaName, key.TableName, key.RuleID)
	if err != nil {
		return fmt.Errorf("failed to deactivate rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *customRuleVersionRepository) queryVersions(ctx context.Context, query string, args ...any) ([]*models.CustomRuleVersion, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rule versions: %w", err)
	}
	defer rows.Close()

	var versions []*models.CustomRuleVersion
	for rows.Next() {
		version, err := scanCustomRuleVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule version: %w", err)
		}
		versions = append(versions, version)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rule versions: %w", err)
	}
	return versions, nil
}

func scanCustomRuleVersion(row pgx.Row) (*models.CustomRuleVersion, error) {
	var v models.CustomRuleVersion
	err := row.Scan(
		&v.ID,
		&v.OwnerID,
		&v.ProfileID,
		&v.SchemaName,
		&v.TableName,
		&v.ColumnName,
		&v.RuleID,
		&v.Version,
		&v.IsLatestVersion,
		&v.Dimension,
		&v.Condition,
		&v.Description,
		&v.Severity,
		&v.ChangeReason,
		&v.Notes,
		&v.Source,
		&v.IsActive,
		&v.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

//go:build integration

package repositories

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataforge-io/profiler-engine/pkg/apperrors"
	"github.com/dataforge-io/profiler-engine/pkg/models"
	"github.com/dataforge-io/profiler-engine/pkg/testhelpers"
)

func newCandidate(profileID uuid.UUID, ruleName string) *models.RuleCandidate {
	return &models.RuleCandidate{
		ProfileID:        profileID,
		Dimension:        models.DimensionValidity,
		SchemaName:       "public",
		TableName:        "orders",
		RuleName:         ruleName,
		Condition:        "total >= 0",
		Description:      "order totals are never negative",
		Severity:         models.SeverityHigh,
		ExpectedPassRate: 95.0,
		AutoGenerated:    true,
	}
}

func TestRuleCandidateRepository_UpsertInsertsThenUpdates(t *testing.T) {
	engineDB := testhelpers.GetEngineDB(t)
	repo := NewRuleCandidateRepository(engineDB.DB)
	ctx := context.Background()
	profileID := uuid.New()

	candidate := newCandidate(profileID, "orders_total_non_negative")
	require.NoError(t, repo.Upsert(ctx, candidate))
	require.NotEqual(t, uuid.Nil, candidate.ID)
	originalID := candidate.ID
	originalCreated := candidate.CreatedAt

	// Same (profile, schema, table, rule name) updates in place.
	updated := newCandidate(profileID, "orders_total_non_negative")
	updated.Condition = "total > 0"
	updated.Severity = models.SeverityCritical
	require.NoError(t, repo.Upsert(ctx, updated))

	assert.Equal(t, originalID, updated.ID)
	assert.WithinDuration(t, originalCreated, updated.CreatedAt, 0)

	got, err := repo.GetByID(ctx, originalID)
	require.NoError(t, err)
	assert.Equal(t, "total > 0", got.Condition)
	assert.Equal(t, models.SeverityCritical, got.Severity)
}

func TestRuleCandidateRepository_GetByIDNotFound(t *testing.T) {
	engineDB := testhelpers.GetEngineDB(t)
	repo := NewRuleCandidateRepository(engineDB.DB)

	_, err := repo.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRuleCandidateRepository_ListByTableOrdersByName(t *testing.T) {
	engineDB := testhelpers.GetEngineDB(t)
	repo := NewRuleCandidateRepository(engineDB.DB)
	ctx := context.Background()
	profileID := uuid.New()

	for _, name := range []string{"zeta_rule", "alpha_rule", "mid_rule"} {
		require.NoError(t, repo.Upsert(ctx, newCandidate(profileID, name)))
	}

	candidates, err := repo.ListByTable(ctx, profileID, "public", "orders")
	require.NoError(t, err)
	require.Len(t, candidates, 3)
	assert.Equal(t, "alpha_rule", candidates[0].RuleName)
	assert.Equal(t, "mid_rule", candidates[1].RuleName)
	assert.Equal(t, "zeta_rule", candidates[2].RuleName)
}

func TestRuleCandidateRepository_SetApprovalAndDelete(t *testing.T) {
	engineDB := testhelpers.GetEngineDB(t)
	repo := NewRuleCandidateRepository(engineDB.DB)
	ctx := context.Background()

	candidate := newCandidate(uuid.New(), "orders_total_non_negative")
	require.NoError(t, repo.Upsert(ctx, candidate))

	require.NoError(t, repo.SetApproval(ctx, candidate.ID, true))
	got, err := repo.GetByID(ctx, candidate.ID)
	require.NoError(t, err)
	assert.True(t, got.ApprovedByUser)

	require.NoError(t, repo.Delete(ctx, candidate.ID))
	_, err = repo.GetByID(ctx, candidate.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	assert.ErrorIs(t, repo.Delete(ctx, candidate.ID), apperrors.ErrNotFound)
	assert.ErrorIs(t, repo.SetApproval(ctx, candidate.ID, false), apperrors.ErrNotFound)
}

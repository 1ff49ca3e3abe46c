//go:build integration

package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataforge-io/profiler-engine/pkg/models"
	"github.com/dataforge-io/profiler-engine/pkg/testhelpers"
)

func TestExecutionRepository_RecordAndList(t *testing.T) {
	engineDB := testhelpers.GetEngineDB(t)
	repo := NewExecutionRepository(engineDB.DB)
	ctx := context.Background()
	candidateID := uuid.New()

	base := time.Now().UTC().Truncate(time.Millisecond)
	for i := 0; i < 3; i++ {
		result := &models.RuleExecutionResult{
			RuleCandidateID: candidateID,
			TotalRecords:    1000,
			ValidRecords:    990 - int64(i),
			InvalidRecords:  10 + int64(i),
			ActualPassRate:  models.PassRate(990-int64(i), 1000),
			Status:          models.ExecutionStatusPass,
			Severity:        models.ExecutionSeverityInfo,
			ExecutionTimeMs: 42,
			ExecutedAt:      base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, repo.RecordExecution(ctx, result))
		require.NotEqual(t, uuid.Nil, result.ID)
	}

	results, err := repo.ListByCandidate(ctx, candidateID, 0)
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Newest first.
	assert.Equal(t, int64(988), results[0].ValidRecords)
	assert.Equal(t, int64(990), results[2].ValidRecords)

	limited, err := repo.ListByCandidate(ctx, candidateID, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestExecutionRepository_ErrorResultRoundTrips(t *testing.T) {
	engineDB := testhelpers.GetEngineDB(t)
	repo := NewExecutionRepository(engineDB.DB)
	ctx := context.Background()
	candidateID := uuid.New()

	msg := "rule condition failed to execute: column does not exist"
	result := &models.RuleExecutionResult{
		RuleCandidateID: candidateID,
		Status:          models.ExecutionStatusError,
		Severity:        models.ExecutionSeverityError,
		ErrorMessage:    &msg,
		ExecutedAt:      time.Now().UTC(),
	}
	require.NoError(t, repo.RecordExecution(ctx, result))

	results, err := repo.ListByCandidate(ctx, candidateID, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NotNil(t, results[0].ErrorMessage)
	assert.Equal(t, msg, *results[0].ErrorMessage)
	assert.Equal(t, models.ExecutionStatusError, results[0].Status)
	assert.Zero(t, results[0].TotalRecords)
}

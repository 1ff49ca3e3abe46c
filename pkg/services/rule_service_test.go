package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dataforge-io/profiler-engine/pkg/apperrors"
	"github.com/dataforge-io/profiler-engine/pkg/adapters/datasource"
	"github.com/dataforge-io/profiler-engine/pkg/llm"
	"github.com/dataforge-io/profiler-engine/pkg/models"
	"github.com/dataforge-io/profiler-engine/pkg/rules"
)

// mockCandidateRepo is an in-memory RuleCandidateRepository.
type mockCandidateRepo struct {
	byID       map[uuid.UUID]*models.RuleCandidate
	upsertErr  error
	upsertCnt  int
	approvals  map[uuid.UUID]bool
}

func newMockCandidateRepo() *mockCandidateRepo {
	return &mockCandidateRepo{
		byID:      make(map[uuid.UUID]*models.RuleCandidate),
		approvals: make(map[uuid.UUID]bool),
	}
}

func (m *mockCandidateRepo) Upsert(ctx context.Context, candidate *models.RuleCandidate) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.upsertCnt++
	cp := *candidate
	m.byID[candidate.ID] = &cp
	return nil
}

func (m *mockCandidateRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.RuleCandidate, error) {
	c, ok := m.byID[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockCandidateRepo) ListByTable(ctx context.Context, profileID uuid.UUID, schemaName, tableName string) ([]*models.RuleCandidate, error) {
	var out []*models.RuleCandidate
	for _, c := range m.byID {
		if c.ProfileID == profileID && c.SchemaName == schemaName && c.TableName == tableName {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockCandidateRepo) SetApproval(ctx context.Context, id uuid.UUID, approved bool) error {
	c, ok := m.byID[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	c.ApprovedByUser = approved
	m.approvals[id] = approved
	return nil
}

func (m *mockCandidateRepo) Delete(ctx context.Context, id uuid.UUID) error {
	delete(m.byID, id)
	return nil
}

// mockVersionRepo records CreateVersion calls.
type mockVersionRepo struct {
	versions  []*models.CustomRuleVersion
	createErr error
}

func (m *mockVersionRepo) CreateVersion(ctx context.Context, version *models.CustomRuleVersion) error {
	if m.createErr != nil {
		return m.createErr
	}
	version.Version = 1
	for _, v := range m.versions {
		if v.Key() == version.Key() {
			v.IsLatestVersion = false
			version.Version = v.Version + 1
		}
	}
	version.IsLatestVersion = true
	m.versions = append(m.versions, version)
	return nil
}

func (m *mockVersionRepo) GetLatest(ctx context.Context, key models.VersionKey) (*models.CustomRuleVersion, error) {
	for _, v := range m.versions {
		if v.Key() == key && v.IsLatestVersion {
			return v, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockVersionRepo) ListLatest(ctx context.Context, ownerID, profileID uuid.UUID) ([]*models.CustomRuleVersion, error) {
	return nil, nil
}

func (m *mockVersionRepo) ListHistory(ctx context.Context, key models.VersionKey) ([]*models.CustomRuleVersion, error) {
	return nil, nil
}

func (m *mockVersionRepo) Deactivate(ctx context.Context, key models.VersionKey) error {
	return nil
}

// mockExecutionRepo records executions in call order.
type mockExecutionRepo struct {
	recorded []*models.RuleExecutionResult
}

func (m *mockExecutionRepo) RecordExecution(ctx context.Context, result *models.RuleExecutionResult) error {
	m.recorded = append(m.recorded, result)
	return nil
}

func (m *mockExecutionRepo) ListByCandidate(ctx context.Context, candidateID uuid.UUID, limit int) ([]*models.RuleExecutionResult, error) {
	return nil, nil
}

func testProvider() llm.ProviderConfig {
	return llm.ProviderConfig{Provider: llm.ProviderOpenAI, Model: "gpt-4o-mini", APIKey: "test"}
}

func generateProposals(candidates ...models.RuleCandidate) *llm.MockAdvisor {
	return &llm.MockAdvisor{
		GenerateFunc: func(ctx context.Context, cfg llm.ProviderConfig, table models.TableMetadata, columns []models.ColumnMetadata, sampleRows []map[string]string) (*llm.GenerateResult, error) {
			return &llm.GenerateResult{Candidates: candidates}, nil
		},
	}
}

func generatedCandidate(name, condition string) models.RuleCandidate {
	return models.RuleCandidate{
		ID:               uuid.New(),
		RuleName:         name,
		Condition:        condition,
		Dimension:        models.DimensionValidity,
		Severity:         models.SeverityHigh,
		ExpectedPassRate: 95,
		AutoGenerated:    true,
	}
}

func TestRuleService_GenerateCandidatesStoresValidatedRules(t *testing.T) {
	reader := ordersSchema()
	advisor := generateProposals(
		generatedCandidate("orders_total_non_negative", "total >= 0"),
		generatedCandidate("orders_escape_hatch", "total >= 0; DROP TABLE orders"),
	)
	candidateRepo := newMockCandidateRepo()
	svc := NewRuleService(reader, advisor, candidateRepo, &mockVersionRepo{}, &mockExecutionRepo{},
		testProvider(), testProfilerConfig(), zaptest.NewLogger(t))

	result, err := svc.GenerateCandidates(context.Background(), uuid.New(), "public", "orders")
	require.NoError(t, err)

	// The multi-statement condition never reaches storage.
	require.Len(t, result.Candidates, 1)
	assert.Equal(t, "orders_total_non_negative", result.Candidates[0].RuleName)
	assert.Equal(t, 1, result.Dropped)
	assert.Equal(t, 1, candidateRepo.upsertCnt)
	assert.Equal(t, "public", result.Candidates[0].SchemaName)
	assert.Equal(t, "orders", result.Candidates[0].TableName)
}

func TestRuleService_GenerateCandidatesPropagatesAdvisorFailure(t *testing.T) {
	reader := ordersSchema()
	advisor := &llm.MockAdvisor{
		GenerateFunc: func(ctx context.Context, cfg llm.ProviderConfig, table models.TableMetadata, columns []models.ColumnMetadata, sampleRows []map[string]string) (*llm.GenerateResult, error) {
			return nil, &apperrors.MalformedAIResponseError{Reason: "no JSON found"}
		},
	}
	svc := NewRuleService(reader, advisor, newMockCandidateRepo(), &mockVersionRepo{}, &mockExecutionRepo{},
		testProvider(), testProfilerConfig(), zaptest.NewLogger(t))

	_, err := svc.GenerateCandidates(context.Background(), uuid.New(), "public", "orders")
	require.Error(t, err)
	assert.True(t, apperrors.IsMalformedAIResponse(err))
}

func TestRuleService_ApproveCandidateRecordsVersionOne(t *testing.T) {
	reader := ordersSchema()
	candidateRepo := newMockCandidateRepo()
	versionRepo := &mockVersionRepo{}
	svc := NewRuleService(reader, &llm.MockAdvisor{}, candidateRepo, versionRepo, &mockExecutionRepo{},
		testProvider(), testProfilerConfig(), zaptest.NewLogger(t))

	candidate := generatedCandidate("orders_total_non_negative", "total >= 0")
	candidate.ProfileID = uuid.New()
	candidate.SchemaName = "public"
	candidate.TableName = "orders"
	require.NoError(t, candidateRepo.Upsert(context.Background(), &candidate))

	ownerID := uuid.New()
	version, err := svc.ApproveCandidate(context.Background(), candidate.ID, ownerID)
	require.NoError(t, err)

	assert.True(t, candidateRepo.approvals[candidate.ID])
	assert.Equal(t, 1, version.Version)
	assert.Equal(t, ownerID, version.OwnerID)
	assert.Equal(t, candidate.RuleName, version.RuleID)
	assert.Equal(t, models.RuleSourceAI, version.Source)
	assert.Equal(t, "total >= 0", version.Condition)
}

func TestRuleService_ReapprovalDoesNotGrowLineage(t *testing.T) {
	reader := ordersSchema()
	candidateRepo := newMockCandidateRepo()
	versionRepo := &mockVersionRepo{}
	svc := NewRuleService(reader, &llm.MockAdvisor{}, candidateRepo, versionRepo, &mockExecutionRepo{},
		testProvider(), testProfilerConfig(), zaptest.NewLogger(t))

	candidate := generatedCandidate("orders_total_non_negative", "total >= 0")
	candidate.ProfileID = uuid.New()
	candidate.SchemaName = "public"
	candidate.TableName = "orders"
	require.NoError(t, candidateRepo.Upsert(context.Background(), &candidate))

	ownerID := uuid.New()
	first, err := svc.ApproveCandidate(context.Background(), candidate.ID, ownerID)
	require.NoError(t, err)
	second, err := svc.ApproveCandidate(context.Background(), candidate.ID, ownerID)
	require.NoError(t, err)

	assert.Equal(t, 1, first.Version)
	assert.Equal(t, 1, second.Version)
	assert.Len(t, versionRepo.versions, 1)
}

func TestRuleService_ApproveCandidateUnknownID(t *testing.T) {
	svc := NewRuleService(ordersSchema(), &llm.MockAdvisor{}, newMockCandidateRepo(), &mockVersionRepo{}, &mockExecutionRepo{},
		testProvider(), testProfilerConfig(), zaptest.NewLogger(t))

	_, err := svc.ApproveCandidate(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRuleService_UpdateRuleRejectsUnsafeCondition(t *testing.T) {
	versionRepo := &mockVersionRepo{}
	svc := NewRuleService(ordersSchema(), &llm.MockAdvisor{}, newMockCandidateRepo(), versionRepo, &mockExecutionRepo{},
		testProvider(), testProfilerConfig(), zaptest.NewLogger(t))

	version := &models.CustomRuleVersion{
		OwnerID: uuid.New(), ProfileID: uuid.New(),
		SchemaName: "public", TableName: "orders", RuleID: "orders_total",
		Dimension: models.DimensionValidity, Severity: models.SeverityHigh,
		Condition: "total >= 0 -- sneaky comment",
		Source:    models.RuleSourceCustom,
	}
	err := svc.UpdateRule(context.Background(), version)
	require.Error(t, err)
	assert.Empty(t, versionRepo.versions)

	version.Condition = "total >= 0"
	require.NoError(t, svc.UpdateRule(context.Background(), version))
	require.Len(t, versionRepo.versions, 1)
}

func TestRuleService_ExecuteApprovedRunsOnlyApproved(t *testing.T) {
	reader := ordersSchema()
	reader.evaluate = func(condition string, sampleRows int64) (*datasource.ConditionCounts, error) {
		return &datasource.ConditionCounts{TotalRows: 1000, MatchedRows: 990}, nil
	}
	candidateRepo := newMockCandidateRepo()
	executionRepo := &mockExecutionRepo{}
	svc := NewRuleService(reader, &llm.MockAdvisor{}, candidateRepo, &mockVersionRepo{}, executionRepo,
		testProvider(), testProfilerConfig(), zaptest.NewLogger(t))

	profileID := uuid.New()
	approved := generatedCandidate("orders_total_non_negative", "total >= 0")
	approved.ProfileID = profileID
	approved.SchemaName = "public"
	approved.TableName = "orders"
	approved.ApprovedByUser = true
	require.NoError(t, candidateRepo.Upsert(context.Background(), &approved))

	pending := generatedCandidate("orders_total_bounded", "total < 1000000")
	pending.ProfileID = profileID
	pending.SchemaName = "public"
	pending.TableName = "orders"
	require.NoError(t, candidateRepo.Upsert(context.Background(), &pending))

	outcomes, err := svc.ExecuteApproved(context.Background(), profileID, "public", "orders")
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "orders_total_non_negative", outcomes[0].Candidate.RuleName)
	assert.Equal(t, rules.StatePassed, outcomes[0].State)

	// The execution result was persisted.
	require.Len(t, executionRepo.recorded, 1)
	assert.Equal(t, models.ExecutionStatusPass, executionRepo.recorded[0].Status)
}

func TestRuleService_ExecuteApprovedWithNoneIsNoop(t *testing.T) {
	svc := NewRuleService(ordersSchema(), &llm.MockAdvisor{}, newMockCandidateRepo(), &mockVersionRepo{}, &mockExecutionRepo{},
		testProvider(), testProfilerConfig(), zaptest.NewLogger(t))

	outcomes, err := svc.ExecuteApproved(context.Background(), uuid.New(), "public", "orders")
	require.NoError(t, err)
	assert.Empty(t, outcomes)
}

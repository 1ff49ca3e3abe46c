package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dataforge-io/profiler-engine/pkg/adapters/datasource"
	"github.com/dataforge-io/profiler-engine/pkg/apperrors"
	"github.com/dataforge-io/profiler-engine/pkg/audit"
	"github.com/dataforge-io/profiler-engine/pkg/config"
	"github.com/dataforge-io/profiler-engine/pkg/llm"
	"github.com/dataforge-io/profiler-engine/pkg/logging"
	"github.com/dataforge-io/profiler-engine/pkg/models"
	"github.com/dataforge-io/profiler-engine/pkg/repositories"
	"github.com/dataforge-io/profiler-engine/pkg/rules"
	enginesql "github.com/dataforge-io/profiler-engine/pkg/sql"
)

// GenerateCandidatesResult summarizes an AI rule-generation pass over one table.
type GenerateCandidatesResult struct {
	Candidates []*models.RuleCandidate `json:"candidates"`
	// Dropped counts proposals rejected before storage: malformed fields or
	// conditions that failed validation.
	Dropped int `json:"dropped"`
}

// RuleService manages the rule candidate lifecycle: AI-assisted generation,
// user approval with versioned storage, and execution with bounded repair.
type RuleService interface {
	// GenerateCandidates asks the AI collaborator for rule proposals over one
	// table and stores the ones that survive validation. Every stored
	// condition has already passed the read-only and injection checks.
	GenerateCandidates(ctx context.Context, profileID uuid.UUID, schemaName, tableName string) (*GenerateCandidatesResult, error)

	// ApproveCandidate marks a candidate approved and records version 1 of
	// its rule lineage for the owner. Approval is idempotent: if the lineage
	// already exists its current latest version is returned and nothing is
	// appended.
	ApproveCandidate(ctx context.Context, candidateID, ownerID uuid.UUID) (*models.CustomRuleVersion, error)

	// UpdateRule appends a new version of an existing rule lineage after
	// validating the new condition. The store atomically moves the
	// latest-version marker.
	UpdateRule(ctx context.Context, version *models.CustomRuleVersion) error

	// ExecuteApproved runs all approved candidates for a table to a terminal
	// state, recording every execution result in completion order. Errored
	// candidates are returned alongside passed and failed ones.
	ExecuteApproved(ctx context.Context, profileID uuid.UUID, schemaName, tableName string) ([]*rules.CandidateOutcome, error)
}

type ruleService struct {
	reader        datasource.Reader
	advisor       llm.RuleAdvisor
	auditor       *audit.SecurityAuditor
	candidateRepo repositories.RuleCandidateRepository
	versionRepo   repositories.CustomRuleVersionRepository
	executionRepo repositories.ExecutionRepository
	provider      llm.ProviderConfig
	cfg           config.ProfilerConfig
	manager       *rules.Manager
	logger        *zap.Logger
}

// NewRuleService creates a new rule service.
func NewRuleService(
	reader datasource.Reader,
	advisor llm.RuleAdvisor,
	candidateRepo repositories.RuleCandidateRepository,
	versionRepo repositories.CustomRuleVersionRepository,
	executionRepo repositories.ExecutionRepository,
	provider llm.ProviderConfig,
	cfg config.ProfilerConfig,
	logger *zap.Logger,
) RuleService {
	executor := rules.NewExecutor(reader, rules.ExecutorConfig{
		RowCeiling:   cfg.ExecutionRowCeiling,
		SampleSize:   cfg.ExecutionSampleSize,
		QueryTimeout: time.Duration(cfg.QueryTimeoutSecs) * time.Second,
	}, logger)
	manager := rules.NewManager(executor, advisor, reader, rules.ManagerConfig{
		MaxRefineAttempts: cfg.MaxRefineAttempts,
		Provider:          provider,
		Concurrency:       cfg.EffectiveWorkerConcurrency(),
		QueryTimeout:      time.Duration(cfg.QueryTimeoutSecs) * time.Second,
	}, logger)

	return &ruleService{
		reader:        reader,
		advisor:       advisor,
		auditor:       audit.NewSecurityAuditor(logger),
		candidateRepo: candidateRepo,
		versionRepo:   versionRepo,
		executionRepo: executionRepo,
		provider:      provider,
		cfg:           cfg,
		manager:       manager,
		logger:        logger.Named("rule-service"),
	}
}

var _ RuleService = (*ruleService)(nil)

func (s *ruleService) GenerateCandidates(ctx context.Context, profileID uuid.UUID, schemaName, tableName string) (*GenerateCandidatesResult, error) {
	columns, err := s.reader.ListColumns(ctx, schemaName, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to list columns for %s.%s: %w", schemaName, tableName, err)
	}

	table := models.TableMetadata{SchemaName: schemaName, TableName: tableName}
	sampleRows := s.collectSampleRows(ctx, columns)

	generated, err := s.advisor.GenerateRuleCandidates(ctx, s.provider, table, columns, sampleRows)
	if err != nil {
		return nil, fmt.Errorf("rule generation failed: %w", err)
	}

	result := &GenerateCandidatesResult{Dropped: generated.Dropped}
	for i := range generated.Candidates {
		candidate := generated.Candidates[i]
		candidate.ProfileID = profileID
		candidate.SchemaName = schemaName
		candidate.TableName = tableName

		// Generated conditions are untrusted until they pass the read-only
		// and injection checks.
		validation := enginesql.ValidateCondition(candidate.Condition)
		if validation.Error != nil {
			details := audit.ConditionRejectionDetails{
				Condition: candidate.Condition,
				Reason:    validation.Error.Error(),
			}
			if validation.Injection != nil {
				details.Fingerprint = validation.Injection.Fingerprint
				s.auditor.LogInjectionAttempt(profileID, candidate.RuleName, schemaName+"."+tableName, details)
			} else {
				s.auditor.LogUnsafeCondition(profileID, candidate.RuleName, schemaName+"."+tableName, details)
			}
			result.Dropped++
			continue
		}
		candidate.Condition = validation.NormalizedCondition

		if err := s.candidateRepo.Upsert(ctx, &candidate); err != nil {
			return nil, fmt.Errorf("failed to store rule candidate %q: %w", candidate.RuleName, err)
		}
		result.Candidates = append(result.Candidates, &candidate)
	}

	s.logger.Info("rule candidates generated",
		zap.String("table", schemaName+"."+tableName),
		zap.Int("stored", len(result.Candidates)),
		zap.Int("dropped", result.Dropped))
	return result, nil
}

// collectSampleRows assembles a small row sample for the generation prompt by
// zipping per-column samples. Sampling failures degrade to fewer columns
// rather than failing generation.
func (s *ruleService) collectSampleRows(ctx context.Context, columns []models.ColumnMetadata) []map[string]string {
	const maxRows = 5

	rows := make([]map[string]string, 0, maxRows)
	for _, col := range columns {
		samples, err := s.reader.SampleColumnValues(ctx, col.SchemaName, col.TableName, col.ColumnName, maxRows)
		if err != nil {
			s.logger.Debug("sample collection failed for prompt",
				zap.String("column", col.ColumnName),
				zap.String("error", logging.SanitizeError(err)))
			continue
		}
		for i, v := range samples {
			if i >= maxRows {
				break
			}
			if len(rows) <= i {
				rows = append(rows, make(map[string]string))
			}
			if v != nil {
				rows[i][col.ColumnName] = *v
			} else {
				rows[i][col.ColumnName] = "NULL"
			}
		}
	}
	return rows
}

func (s *ruleService) ApproveCandidate(ctx context.Context, candidateID, ownerID uuid.UUID) (*models.CustomRuleVersion, error) {
	candidate, err := s.candidateRepo.GetByID(ctx, candidateID)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidate: %w", err)
	}

	if err := s.candidateRepo.SetApproval(ctx, candidateID, true); err != nil {
		return nil, fmt.Errorf("failed to approve candidate: %w", err)
	}

	// Re-approving an already-approved candidate must not grow the lineage.
	key := models.VersionKey{
		OwnerID:    ownerID,
		ProfileID:  candidate.ProfileID,
		SchemaName: candidate.SchemaName,
		TableName:  candidate.TableName,
		RuleID:     candidate.RuleName,
	}
	existing, err := s.versionRepo.GetLatest(ctx, key)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("failed to check rule lineage: %w", err)
	}

	version := &models.CustomRuleVersion{
		OwnerID:      ownerID,
		ProfileID:    candidate.ProfileID,
		SchemaName:   candidate.SchemaName,
		TableName:    candidate.TableName,
		ColumnName:   candidate.ColumnName,
		RuleID:       candidate.RuleName,
		Dimension:    candidate.Dimension,
		Condition:    candidate.Condition,
		Description:  candidate.Description,
		Severity:     candidate.Severity,
		ChangeReason: "approved generated rule",
		Source:       models.RuleSourceAI,
		IsActive:     true,
	}
	if err := s.versionRepo.CreateVersion(ctx, version); err != nil {
		return nil, fmt.Errorf("failed to record rule version: %w", err)
	}
	return version, nil
}

func (s *ruleService) UpdateRule(ctx context.Context, version *models.CustomRuleVersion) error {
	validation := enginesql.ValidateCondition(version.Condition)
	if validation.Error != nil {
		return fmt.Errorf("invalid rule condition: %w", validation.Error)
	}
	version.Condition = validation.NormalizedCondition

	if err := s.versionRepo.CreateVersion(ctx, version); err != nil {
		return fmt.Errorf("failed to record rule version: %w", err)
	}
	return nil
}

func (s *ruleService) ExecuteApproved(ctx context.Context, profileID uuid.UUID, schemaName, tableName string) ([]*rules.CandidateOutcome, error) {
	candidates, err := s.candidateRepo.ListByTable(ctx, profileID, schemaName, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}

	approved := make([]*models.RuleCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.ApprovedByUser {
			approved = append(approved, c)
		}
	}
	if len(approved) == 0 {
		return nil, nil
	}

	outcomes := s.manager.ProcessCandidates(ctx, approved)

	// Record results in completion order. A persistence failure surfaces
	// after the loop so later outcomes still get recorded.
	var recordErr error
	for _, outcome := range outcomes {
		if outcome.Result == nil {
			continue
		}
		if err := s.executionRepo.RecordExecution(ctx, outcome.Result); err != nil {
			s.logger.Error("failed to record execution result",
				zap.String("rule", outcome.Candidate.RuleName),
				zap.Error(err))
			recordErr = err
		}
	}
	if recordErr != nil {
		return outcomes, fmt.Errorf("failed to record execution results: %w", recordErr)
	}
	return outcomes, nil
}

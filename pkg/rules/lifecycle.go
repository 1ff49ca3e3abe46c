package rules

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/dataforge-io/profiler-engine/pkg/apperrors"
	"github.com/dataforge-io/profiler-engine/pkg/llm"
	"github.com/dataforge-io/profiler-engine/pkg/logging"
	"github.com/dataforge-io/profiler-engine/pkg/models"
	"github.com/dataforge-io/profiler-engine/pkg/profiler"
	enginesql "github.com/dataforge-io/profiler-engine/pkg/sql"
)

// LifecycleState tracks a candidate through one processing attempt.
type LifecycleState string

const (
	StateProposed   LifecycleState = "proposed"
	StateValidating LifecycleState = "validating"
	StatePassed     LifecycleState = "passed"
	StateFailed     LifecycleState = "failed"
	StateErrored    LifecycleState = "errored"
)

// CandidateOutcome is the terminal record of processing one rule candidate.
// An Errored candidate carries the reason and the offending condition,
// surfaced for human review, never silently dropped.
type CandidateOutcome struct {
	Candidate      *models.RuleCandidate
	State          LifecycleState
	Result         *models.RuleExecutionResult
	RefineAttempts int
	FinalCondition string
	FailureReason  string
}

// ManagerConfig tunes the lifecycle manager.
type ManagerConfig struct {
	// MaxRefineAttempts bounds the AI repair loop per candidate. 0 disables
	// refinement entirely.
	MaxRefineAttempts int
	// Provider is the per-call AI configuration handed to the advisor.
	Provider llm.ProviderConfig
	// Concurrency bounds parallel candidate processing.
	Concurrency int
	// QueryTimeout bounds the schema lookup made per repair request.
	// 0 disables the bound.
	QueryTimeout time.Duration
}

// Manager drives rule candidates through
// Proposed -> Validating -> {Passed, Failed, Errored}. Only a SQL fault
// (a condition that cannot execute) enters the refinement loop; a rule that
// ran correctly but flagged too many invalid rows is a data-quality failure
// and is never retried automatically.
type Manager struct {
	executor *Executor
	advisor  llm.RuleAdvisor
	columns  ColumnLister
	config   ManagerConfig
	logger   *zap.Logger
}

// ColumnLister supplies the table schema sent with repair requests.
type ColumnLister interface {
	ListColumns(ctx context.Context, schemaName, tableName string) ([]models.ColumnMetadata, error)
}

// NewManager creates a rule lifecycle manager.
func NewManager(executor *Executor, advisor llm.RuleAdvisor, columns ColumnLister, config ManagerConfig, logger *zap.Logger) *Manager {
	if config.Concurrency < 1 {
		config.Concurrency = 4
	}
	return &Manager{
		executor: executor,
		advisor:  advisor,
		columns:  columns,
		config:   config,
		logger:   logger.Named("rule-lifecycle"),
	}
}

// ProcessCandidate runs one candidate to a terminal state. The refinement
// sub-loop is sequential: each repair attempt depends on the previous
// attempt's error.
func (m *Manager) ProcessCandidate(ctx context.Context, candidate *models.RuleCandidate) *CandidateOutcome {
	outcome := &CandidateOutcome{
		Candidate:      candidate,
		State:          StateValidating,
		FinalCondition: candidate.Condition,
	}

	start := time.Now()
	result, err := m.executor.Execute(ctx, candidate)
	if err == nil {
		m.finish(outcome, result)
		return outcome
	}
	if !apperrors.IsSQLFault(err) {
		// Connectivity or missing schema: not repairable by rewriting SQL.
		outcome.State = StateErrored
		outcome.FailureReason = err.Error()
		outcome.Result = ErrorResult(candidate, err, time.Since(start))
		return outcome
	}

	m.refine(ctx, candidate, err, outcome, start)
	return outcome
}

// refine drives the bounded repair loop after a SQL fault.
func (m *Manager) refine(ctx context.Context, candidate *models.RuleCandidate, execErr error, outcome *CandidateOutcome, start time.Time) {
	lastErr := execErr
	condition := candidate.Condition

	for attempt := 1; attempt <= m.config.MaxRefineAttempts; attempt++ {
		outcome.RefineAttempts = attempt

		refined, err := m.requestRepair(ctx, candidate, condition, lastErr)
		if err != nil {
			if apperrors.IsConnectivity(err) || apperrors.IsSchemaNotFound(err) {
				// An unreachable target or vanished table cannot be fixed by
				// rewriting SQL; asking the collaborator again only burns
				// budget.
				outcome.State = StateErrored
				outcome.FailureReason = err.Error()
				outcome.Result = ErrorResult(candidate, err, time.Since(start))
				return
			}
			// Malformed responses and provider failures count against the
			// attempt budget.
			m.logger.Warn("refinement attempt failed",
				zap.String("rule", candidate.RuleName),
				zap.Int("attempt", attempt),
				zap.String("error", logging.SanitizeError(err)))
			lastErr = err
			continue
		}
		if !refined.Success {
			outcome.State = StateErrored
			outcome.FailureReason = fmt.Sprintf("collaborator declined repair: %s", refined.Reason)
			outcome.Result = ErrorResult(candidate, lastErr, time.Since(start))
			return
		}

		// Re-validate before retrying: AI-suggested SQL is untrusted.
		validation := enginesql.ValidateCondition(refined.RefinedCondition)
		if validation.Error != nil {
			lastErr = &apperrors.SQLFault{Condition: refined.RefinedCondition, Cause: validation.Error}
			condition = refined.RefinedCondition
			continue
		}

		retry := *candidate
		retry.Condition = validation.NormalizedCondition
		result, err := m.executor.Execute(ctx, &retry)
		if err == nil {
			outcome.FinalCondition = validation.NormalizedCondition
			m.finish(outcome, result)
			m.logger.Info("rule condition repaired",
				zap.String("rule", candidate.RuleName),
				zap.Int("attempts", attempt),
				zap.Float64("confidence", refined.Confidence))
			return
		}
		if !apperrors.IsSQLFault(err) {
			outcome.State = StateErrored
			outcome.FailureReason = err.Error()
			outcome.Result = ErrorResult(candidate, err, time.Since(start))
			return
		}

		lastErr = err
		condition = validation.NormalizedCondition
	}

	// Budget exhausted: terminal error, surfaced for human review.
	outcome.State = StateErrored
	outcome.FailureReason = fmt.Sprintf("refinement budget of %d attempts exhausted: %v",
		m.config.MaxRefineAttempts, lastErr)
	outcome.Result = ErrorResult(candidate, lastErr, time.Since(start))
	m.logger.Warn("rule candidate errored terminally",
		zap.String("rule", candidate.RuleName),
		zap.Int("attempts", outcome.RefineAttempts),
		zap.String("condition", logging.SanitizeCondition(outcome.FinalCondition)))
}

func (m *Manager) requestRepair(ctx context.Context, candidate *models.RuleCandidate, condition string, execErr error) (*llm.RefineResult, error) {
	columnsCtx := ctx
	if m.config.QueryTimeout > 0 {
		var cancel context.CancelFunc
		columnsCtx, cancel = context.WithTimeout(ctx, m.config.QueryTimeout)
		defer cancel()
	}
	columns, err := m.columns.ListColumns(columnsCtx, candidate.SchemaName, candidate.TableName)
	if err != nil {
		return nil, err
	}
	return m.advisor.RefineCondition(ctx, m.config.Provider, llm.RefineRequest{
		SchemaName:        candidate.SchemaName,
		TableName:         candidate.TableName,
		OriginalCondition: condition,
		ErrorMessage:      execErr.Error(),
		Columns:           columns,
	})
}

func (m *Manager) finish(outcome *CandidateOutcome, result *models.RuleExecutionResult) {
	outcome.Result = result
	switch result.Status {
	case models.ExecutionStatusPass:
		outcome.State = StatePassed
	default:
		outcome.State = StateFailed
		outcome.FailureReason = (&apperrors.DataQualityFailure{
			RuleName:       outcome.Candidate.RuleName,
			ActualPassRate: result.ActualPassRate,
			ExpectedRate:   outcome.Candidate.ExpectedPassRate,
		}).Error()
	}
}

// ProcessCandidates processes independent candidates concurrently and
// returns outcomes in completion order.
func (m *Manager) ProcessCandidates(ctx context.Context, candidates []*models.RuleCandidate) []*CandidateOutcome {
	pool := profiler.NewPool(m.config.Concurrency, m.logger)

	byID := make(map[string]*models.RuleCandidate, len(candidates))
	tasks := make([]profiler.Task[*CandidateOutcome], len(candidates))
	for i, candidate := range candidates {
		c := candidate
		id := strconv.Itoa(i)
		byID[id] = c
		tasks[i] = profiler.Task[*CandidateOutcome]{
			ID:      id,
			Execute: func(ctx context.Context) (*CandidateOutcome, error) { return m.ProcessCandidate(ctx, c), nil },
		}
	}

	results := profiler.Run(ctx, pool, tasks, nil)
	outcomes := make([]*CandidateOutcome, 0, len(results))
	for _, r := range results {
		if r.Result != nil {
			outcomes = append(outcomes, r.Result)
			continue
		}
		// A candidate cut off before running still gets a terminal record.
		c := byID[r.ID]
		outcomes = append(outcomes, &CandidateOutcome{
			Candidate:      c,
			State:          StateErrored,
			FailureReason:  r.Err.Error(),
			FinalCondition: c.Condition,
		})
	}
	return outcomes
}

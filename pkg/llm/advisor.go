package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dataforge-io/profiler-engine/pkg/apperrors"
	"github.com/dataforge-io/profiler-engine/pkg/jsonutil"
	"github.com/dataforge-io/profiler-engine/pkg/models"
)

// Advisor implements RuleAdvisor against the configured provider. It holds
// no provider client state: every call builds a fresh client from the given
// ProviderConfig.
type Advisor struct {
	logger *zap.Logger
}

// NewAdvisor creates the AI collaborator.
func NewAdvisor(logger *zap.Logger) *Advisor {
	return &Advisor{logger: logger.Named("rule-advisor")}
}

var _ RuleAdvisor = (*Advisor)(nil)

// ruleCandidateResponse is the wire shape expected from the provider. The
// pass rate is decoded tolerantly: models return it as a number, a quoted
// number, or "95%" depending on mood.
type ruleCandidateResponse struct {
	RuleName         string          `json:"rule_name"`
	Dimension        string          `json:"dimension"`
	ColumnName       string          `json:"column_name,omitempty"`
	Condition        string          `json:"condition"`
	Description      string          `json:"description"`
	Severity         string          `json:"severity"`
	ExpectedPassRate json.RawMessage `json:"expected_pass_rate"`
}

// GenerateRuleCandidates implements RuleAdvisor. Response items that fail
// strict validation are dropped with a surfaced count, never silently
// ignored; a response with no parseable items at all is malformed.
func (a *Advisor) GenerateRuleCandidates(ctx context.Context, cfg ProviderConfig, table models.TableMetadata, columns []models.ColumnMetadata, sampleRows []map[string]string) (*GenerateResult, error) {
	prompt := buildGeneratePrompt(table, columns, sampleRows)

	raw, err := a.complete(ctx, cfg, generateSystemMessage, prompt)
	if err != nil {
		return nil, err
	}

	items, err := ParseJSONResponse[[]ruleCandidateResponse](raw)
	if err != nil {
		return nil, &apperrors.MalformedAIResponseError{Reason: err.Error(), Raw: raw}
	}

	result := &GenerateResult{}
	now := time.Now().UTC()
	for _, item := range items {
		candidate, ok := a.toCandidate(item, table, now)
		if !ok {
			result.Dropped++
			continue
		}
		result.Candidates = append(result.Candidates, candidate)
	}

	if len(result.Candidates) == 0 && len(items) > 0 {
		return nil, &apperrors.MalformedAIResponseError{
			Reason: fmt.Sprintf("all %d proposed rules failed validation", len(items)),
			Raw:    raw,
		}
	}

	a.logger.Info("generated rule candidates",
		zap.String("table", table.FullName()),
		zap.Int("accepted", len(result.Candidates)),
		zap.Int("dropped", result.Dropped))
	return result, nil
}

func (a *Advisor) toCandidate(item ruleCandidateResponse, table models.TableMetadata, now time.Time) (models.RuleCandidate, bool) {
	dimension := models.RuleDimension(strings.ToLower(strings.TrimSpace(item.Dimension)))
	severity := models.RuleSeverity(strings.ToLower(strings.TrimSpace(item.Severity)))
	condition := strings.TrimSpace(item.Condition)
	name := strings.TrimSpace(item.RuleName)

	if name == "" || condition == "" ||
		!models.IsValidRuleDimension(dimension) || !models.IsValidRuleSeverity(severity) {
		a.logger.Warn("dropping unparseable rule proposal",
			zap.String("rule_name", item.RuleName),
			zap.String("dimension", item.Dimension),
			zap.String("severity", item.Severity))
		return models.RuleCandidate{}, false
	}

	passRate, ok := jsonutil.FlexibleFloatValue(item.ExpectedPassRate)
	if !ok || passRate <= 0 || passRate > 100 {
		passRate = models.DefaultExpectedPassRate
	}

	candidate := models.RuleCandidate{
		ID:               uuid.New(),
		Dimension:        dimension,
		SchemaName:       table.SchemaName,
		TableName:        table.TableName,
		RuleName:         name,
		Condition:        condition,
		Description:      strings.TrimSpace(item.Description),
		Severity:         severity,
		ExpectedPassRate: passRate,
		AutoGenerated:    true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if col := strings.TrimSpace(item.ColumnName); col != "" {
		candidate.ColumnName = &col
	}
	return candidate, true
}

// RefineCondition implements RuleAdvisor.
func (a *Advisor) RefineCondition(ctx context.Context, cfg ProviderConfig, req RefineRequest) (*RefineResult, error) {
	prompt := buildRefinePrompt(req)

	raw, err := a.complete(ctx, cfg, refineSystemMessage, prompt)
	if err != nil {
		return nil, err
	}

	result, err := ParseJSONResponse[RefineResult](raw)
	if err != nil {
		return nil, &apperrors.MalformedAIResponseError{Reason: err.Error(), Raw: raw}
	}

	if result.Success && strings.TrimSpace(result.RefinedCondition) == "" {
		return nil, &apperrors.MalformedAIResponseError{
			Reason: "success response without refined_condition",
			Raw:    raw,
		}
	}
	if !result.Success && strings.TrimSpace(result.Reason) == "" {
		result.Reason = "collaborator declined without a reason"
	}

	return &result, nil
}

// requestContext bounds one provider request by the configured timeout. A
// zero timeout leaves the caller's context untouched.
func requestContext(ctx context.Context, cfg ProviderConfig) (context.Context, context.CancelFunc) {
	if cfg.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, cfg.Timeout)
}

// complete dispatches one completion request to the configured provider.
func (a *Advisor) complete(ctx context.Context, cfg ProviderConfig, systemMessage, prompt string) (string, error) {
	if cfg.Model == "" {
		return "", NewError(ErrorTypeModel, "model is required", false, nil)
	}

	ctx, cancel := requestContext(ctx, cfg)
	defer cancel()

	start := time.Now()
	var (
		content string
		err     error
	)
	switch cfg.Provider {
	case ProviderOpenAI:
		content, err = completeOpenAI(ctx, cfg, systemMessage, prompt)
	case ProviderAnthropic:
		content, err = completeAnthropic(ctx, cfg, systemMessage, prompt)
	default:
		return "", NewError(ErrorTypeEndpoint, fmt.Sprintf("unknown provider %q", cfg.Provider), false, nil)
	}
	if err != nil {
		a.logger.Error("AI request failed",
			zap.String("provider", cfg.Provider),
			zap.String("model", cfg.Model),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return "", ClassifyError(err)
	}

	a.logger.Debug("AI request completed",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
		zap.Int("response_len", len(content)),
		zap.Duration("elapsed", time.Since(start)))
	return content, nil
}

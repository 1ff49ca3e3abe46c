package llm

import (
	"context"

	"github.com/dataforge-io/profiler-engine/pkg/models"
)

// MockAdvisor is a configurable mock for testing AI-dependent flows. Set the
// function fields to control behavior.
type MockAdvisor struct {
	// GenerateFunc is called by GenerateRuleCandidates. If nil, returns an
	// empty result.
	GenerateFunc func(ctx context.Context, cfg ProviderConfig, table models.TableMetadata, columns []models.ColumnMetadata, sampleRows []map[string]string) (*GenerateResult, error)

	// RefineFunc is called by RefineCondition. If nil, declines the repair.
	RefineFunc func(ctx context.Context, cfg ProviderConfig, req RefineRequest) (*RefineResult, error)

	// Call tracking for verification.
	GenerateCalls int
	RefineCalls   int
	RefineInputs  []RefineRequest
}

var _ RuleAdvisor = (*MockAdvisor)(nil)

// GenerateRuleCandidates implements RuleAdvisor.
func (m *MockAdvisor) GenerateRuleCandidates(ctx context.Context, cfg ProviderConfig, table models.TableMetadata, columns []models.ColumnMetadata, sampleRows []map[string]string) (*GenerateResult, error) {
	m.GenerateCalls++
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, cfg, table, columns, sampleRows)
	}
	return &GenerateResult{}, nil
}

// RefineCondition implements RuleAdvisor.
func (m *MockAdvisor) RefineCondition(ctx context.Context, cfg ProviderConfig, req RefineRequest) (*RefineResult, error) {
	m.RefineCalls++
	m.RefineInputs = append(m.RefineInputs, req)
	if m.RefineFunc != nil {
		return m.RefineFunc(ctx, cfg, req)
	}
	return &RefineResult{Success: false, Reason: "mock declined"}, nil
}

// Package llm provides the AI collaborator used for rule candidate
// generation and SQL condition repair. Provider clients are built per call
// from an explicit ProviderConfig; no shared mutable client state exists, so
// concurrent refinements against different providers cannot race.
package llm

import (
	"context"
	"time"

	"github.com/dataforge-io/profiler-engine/pkg/models"
)

// Provider identifiers accepted in ProviderConfig.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// ProviderConfig is the complete per-call configuration for one AI request.
type ProviderConfig struct {
	Provider    string  // "openai" or "anthropic"
	Endpoint    string  // optional base URL override for OpenAI-compatible servers
	Model       string  // model name
	APIKey      string  // never logged
	Temperature float64       // 0.0-1.0
	MaxTokens   int           // response budget, provider default when 0
	Timeout     time.Duration // per-request deadline, unbounded when 0
}

// RefineRequest carries everything the collaborator needs to repair a broken
// rule condition.
type RefineRequest struct {
	SchemaName        string
	TableName         string
	OriginalCondition string
	ErrorMessage      string
	Columns           []models.ColumnMetadata
}

// RefineResult is the collaborator's verdict on a repair attempt.
type RefineResult struct {
	Success          bool    `json:"success"`
	RefinedCondition string  `json:"refined_condition,omitempty"`
	Confidence       float64 `json:"confidence,omitempty"` // 0.0-1.0
	Reason           string  `json:"reason,omitempty"`     // set when Success is false
}

// GenerateResult carries parsed rule candidates plus a count of response
// items that failed strict parsing and were dropped.
type GenerateResult struct {
	Candidates []models.RuleCandidate
	Dropped    int
}

// RuleAdvisor is the contract to the AI collaborator. Output is untrusted
// text: implementations must parse strictly and return a
// MalformedAIResponseError rather than guess on parse failure.
type RuleAdvisor interface {
	// GenerateRuleCandidates proposes data-quality rules for one table from
	// its metadata and a bounded row sample.
	GenerateRuleCandidates(ctx context.Context, cfg ProviderConfig, table models.TableMetadata, columns []models.ColumnMetadata, sampleRows []map[string]string) (*GenerateResult, error)

	// RefineCondition asks the collaborator to repair a condition that
	// failed to execute.
	RefineCondition(ctx context.Context, cfg ProviderConfig, req RefineRequest) (*RefineResult, error)
}

// assess-rule-advisor exercises the rule generation path against one or more
// model endpoints. It sends the same table schema and sample rows to each
// model and checks that the response parses into usable, safe rule candidates.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dataforge-io/profiler-engine/pkg/llm"
	"github.com/dataforge-io/profiler-engine/pkg/models"
	enginesql "github.com/dataforge-io/profiler-engine/pkg/sql"
)

// Model defines a model endpoint to assess.
type Model struct {
	Name     string
	Provider string
	Endpoint string
	Model    string
	APIKey   string
}

var defaultModels = []Model{
	{
		Name:     "gpt-4o-mini",
		Provider: llm.ProviderOpenAI,
		Model:    "gpt-4o-mini",
		APIKey:   os.Getenv("OPENAI_API_KEY"),
	},
	{
		Name:     "claude-3-5-haiku",
		Provider: llm.ProviderAnthropic,
		Model:    "claude-3-5-haiku-latest",
		APIKey:   os.Getenv("ANTHROPIC_API_KEY"),
	},
}

func sampleTable() (models.TableMetadata, []models.ColumnMetadata, []map[string]string) {
	table := models.TableMetadata{
		SchemaName:    "public",
		TableName:     "orders",
		TableType:     models.TableTypeBase,
		ColumnCount:   5,
		EstimatedRows: 10000,
		HasPrimaryKey: true,
	}
	foreignTable := "customers"
	foreignColumn := "id"
	columns := []models.ColumnMetadata{
		{SchemaName: "public", TableName: "orders", ColumnName: "id", DataType: "bigint", IsPrimaryKey: true, OrdinalPosition: 1},
		{SchemaName: "public", TableName: "orders", ColumnName: "customer_id", DataType: "bigint", IsForeignKey: true, ForeignTable: &foreignTable, ForeignColumn: &foreignColumn, OrdinalPosition: 2},
		{SchemaName: "public", TableName: "orders", ColumnName: "status", DataType: "text", OrdinalPosition: 3},
		{SchemaName: "public", TableName: "orders", ColumnName: "total_amount", DataType: "numeric", IsNullable: true, OrdinalPosition: 4},
		{SchemaName: "public", TableName: "orders", ColumnName: "created_at", DataType: "timestamp with time zone", OrdinalPosition: 5},
	}
	sampleRows := []map[string]string{
		{"id": "1", "customer_id": "42", "status": "shipped", "total_amount": "19.99", "created_at": "2026-08-01T10:00:00Z"},
		{"id": "2", "customer_id": "7", "status": "pending", "total_amount": "240.00", "created_at": "2026-08-02T14:30:00Z"},
		{"id": "3", "customer_id": "42", "status": "cancelled", "total_amount": "NULL", "created_at": "2026-08-03T09:15:00Z"},
	}
	return table, columns, sampleRows
}

func main() {
	timeout := flag.Duration("timeout", 120*time.Second, "Timeout for each model call")
	temperature := flag.Float64("temperature", 0.0, "Sampling temperature")
	flag.Parse()

	logConfig := zap.NewDevelopmentConfig()
	logConfig.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	logger, _ := logConfig.Build()
	defer logger.Sync() //nolint:errcheck

	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("Rule Advisor Assessment")
	fmt.Println("Testing rule candidate generation across models")
	fmt.Println(strings.Repeat("=", 80))

	ctx := context.Background()
	advisor := llm.NewAdvisor(logger)

	results := make(map[string]TestResult)
	for _, model := range defaultModels {
		if model.APIKey == "" {
			fmt.Printf("\nSkipping %s: no API key in environment\n", model.Name)
			continue
		}
		fmt.Printf("\n%s\n", strings.Repeat("-", 80))
		fmt.Printf("Testing: %s (%s)\n", model.Name, model.Provider)
		fmt.Printf("%s\n\n", strings.Repeat("-", 80))

		result := testModel(ctx, advisor, model, *temperature, *timeout)
		results[model.Name] = result
		printResult(result)
	}

	fmt.Printf("\n%s\n", strings.Repeat("=", 80))
	fmt.Println("SUMMARY")
	fmt.Printf("%s\n\n", strings.Repeat("=", 80))

	allPassed := true
	tested := 0
	for name, result := range results {
		tested++
		status := "PASS"
		if !result.Success {
			status = "FAIL"
			allPassed = false
		}
		fmt.Printf("%s: %s\n", status, name)
		if result.Error != "" {
			fmt.Printf("  Error: %s\n", result.Error)
		}
	}

	if tested == 0 {
		fmt.Println("No models tested. Set OPENAI_API_KEY or ANTHROPIC_API_KEY.")
		os.Exit(1)
	}
	if allPassed {
		fmt.Println("\nAll models passed.")
		os.Exit(0)
	}
	fmt.Println("\nSome models failed.")
	os.Exit(1)
}

// TestResult captures the outcome of one model assessment.
type TestResult struct {
	Success    bool
	Error      string
	Candidates int
	Dropped    int
	Unsafe     int
	DurationMs int64
}

func testModel(ctx context.Context, advisor *llm.Advisor, model Model, temperature float64, timeout time.Duration) TestResult {
	result := TestResult{}
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cfg := llm.ProviderConfig{
		Provider:    model.Provider,
		Endpoint:    model.Endpoint,
		Model:       model.Model,
		APIKey:      model.APIKey,
		Temperature: temperature,
	}

	table, columns, sampleRows := sampleTable()

	fmt.Println("Requesting rule candidates...")
	generated, err := advisor.GenerateRuleCandidates(ctx, cfg, table, columns, sampleRows)
	if err != nil {
		result.Error = fmt.Sprintf("generation failed: %v", err)
		return result
	}

	result.DurationMs = time.Since(start).Milliseconds()
	result.Candidates = len(generated.Candidates)
	result.Dropped = generated.Dropped

	fmt.Printf("\nCandidates: %d parsed, %d dropped, %dms\n", result.Candidates, result.Dropped, result.DurationMs)

	for _, candidate := range generated.Candidates {
		validation := enginesql.ValidateCondition(candidate.Condition)
		if validation.Error != nil {
			result.Unsafe++
			fmt.Printf("  UNSAFE %s: %v\n", candidate.RuleName, validation.Error)
			continue
		}
		column := "(table)"
		if candidate.ColumnName != nil {
			column = *candidate.ColumnName
		}
		fmt.Printf("  OK %s [%s/%s] %s: %s\n",
			candidate.RuleName, candidate.Dimension, candidate.Severity, column, validation.NormalizedCondition)
	}

	result.Success = result.Candidates > 0 && result.Unsafe == 0
	return result
}

func printResult(result TestResult) {
	fmt.Println("\n--- Result ---")
	if result.Success {
		fmt.Println("Status: PASS")
		return
	}
	fmt.Println("Status: FAIL")
	if result.Error != "" {
		fmt.Printf("Error: %s\n", result.Error)
	}
	if result.Unsafe > 0 {
		fmt.Printf("Unsafe conditions: %d\n", result.Unsafe)
	}
}

package llm

import (
	"fmt"
	"strings"

	"github.com/dataforge-io/profiler-engine/pkg/models"
)

const generateSystemMessage = `You are a data-quality engineer. You propose SQL data-quality rules for relational tables. Respond with a JSON array only, no prose. Each element must have the fields: rule_name, dimension (one of completeness, uniqueness, validity, consistency, accuracy, timeliness), column_name (optional), condition (a single SQL boolean expression true for VALID rows), description, severity (one of low, medium, high, critical), expected_pass_rate (number 0-100).`

const refineSystemMessage = `You are a SQL repair assistant. You are given a boolean SQL condition that failed to execute, the database error, and the table schema. Respond with a JSON object only, no prose: {"success": true, "refined_condition": "...", "confidence": 0.0-1.0} when you can repair it, or {"success": false, "reason": "..."} when you cannot. The refined condition must be a single boolean expression, no statements.`

func buildGeneratePrompt(table models.TableMetadata, columns []models.ColumnMetadata, sampleRows []map[string]string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Table: %s (%d columns, ~%d rows)\n\nColumns:\n", table.FullName(), table.ColumnCount, table.EstimatedRows)
	for _, c := range columns {
		flags := make([]string, 0, 3)
		if c.IsPrimaryKey {
			flags = append(flags, "PK")
		}
		if c.IsForeignKey {
			flags = append(flags, "FK")
		}
		if !c.IsNullable {
			flags = append(flags, "NOT NULL")
		}
		fmt.Fprintf(&b, "- %s %s", c.ColumnName, c.DataType)
		if len(flags) > 0 {
			fmt.Fprintf(&b, " [%s]", strings.Join(flags, ", "))
		}
		b.WriteByte('\n')
	}

	if len(sampleRows) > 0 {
		b.WriteString("\nSample rows:\n")
		for i, row := range sampleRows {
			if i >= 5 {
				break
			}
			pairs := make([]string, 0, len(row))
			for _, c := range columns {
				if v, ok := row[c.ColumnName]; ok {
					pairs = append(pairs, fmt.Sprintf("%s=%s", c.ColumnName, v))
				}
			}
			fmt.Fprintf(&b, "  {%s}\n", strings.Join(pairs, ", "))
		}
	}

	b.WriteString("\nPropose data-quality rules for this table as a JSON array.")
	return b.String()
}

func buildRefinePrompt(req RefineRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Table: %s.%s\n\nFailed condition:\n%s\n\nDatabase error:\n%s\n\nSchema:\n",
		req.SchemaName, req.TableName, req.OriginalCondition, req.ErrorMessage)
	for _, c := range req.Columns {
		fmt.Fprintf(&b, "- %s %s\n", c.ColumnName, c.DataType)
	}

	b.WriteString("\nRepair the condition and respond with the JSON object.")
	return b.String()
}

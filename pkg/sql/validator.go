// Package sql validates rule conditions before they are interpolated into
// evaluation queries. A condition is a single boolean SQL expression; it must
// never smuggle in additional statements or data-modifying keywords.
package sql

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyCondition indicates a blank or whitespace-only condition.
	ErrEmptyCondition = errors.New("condition is empty")

	// ErrMultipleStatements indicates the condition contains statement
	// separators; only a single boolean expression is permitted.
	ErrMultipleStatements = errors.New("multiple SQL statements not allowed; condition must be a single boolean expression")

	// ErrCommentInCondition indicates the condition contains SQL comments,
	// a common injection vector in generated SQL.
	ErrCommentInCondition = errors.New("SQL comments not allowed in condition")
)

// forbiddenKeywords are statement-level keywords that have no business inside
// a boolean predicate. Checked as whole words outside string literals.
var forbiddenKeywords = []string{
	"insert", "update", "delete", "drop", "alter", "truncate",
	"create", "grant", "revoke", "exec", "execute", "merge",
}

// ValidationResult contains the normalized condition and any validation error.
// Injection is set alongside Error when the rejection came from a libinjection
// fingerprint, so callers can audit the detected pattern.
type ValidationResult struct {
	NormalizedCondition string
	Error               error
	Injection           *InjectionCheckResult
}

// ValidateCondition checks a rule condition for structural safety and strips
// a trailing semicolon. Validation order: normalize, reject remaining
// semicolons, reject comments, reject statement-level keywords, reject
// injection fingerprints.
func ValidateCondition(condition string) ValidationResult {
	condition = strings.TrimSpace(condition)
	if condition == "" {
		return ValidationResult{Error: ErrEmptyCondition}
	}

	normalized := stripTrailingSemicolon(condition)
	if normalized == "" {
		return ValidationResult{Error: ErrEmptyCondition}
	}

	masked := maskStringLiterals(normalized)

	if strings.ContainsRune(masked, ';') {
		return ValidationResult{Error: ErrMultipleStatements}
	}
	if strings.Contains(masked, "--") || strings.Contains(masked, "/*") {
		return ValidationResult{Error: ErrCommentInCondition}
	}
	if kw := findForbiddenKeyword(masked); kw != "" {
		return ValidationResult{Error: fmt.Errorf("statement keyword %q not allowed in condition", kw)}
	}
	if result := CheckConditionForInjection(normalized); result != nil {
		return ValidationResult{
			Error:     fmt.Errorf("condition matches SQL injection fingerprint %q", result.Fingerprint),
			Injection: result,
		}
	}

	return ValidationResult{NormalizedCondition: normalized}
}

// maskStringLiterals replaces the contents of single-quoted string literals
// with spaces so structural checks never fire on quoted data. Handles SQL
// doubled quotes and backslash escapes.
func maskStringLiterals(condition string) string {
	const (
		stateNormal = iota
		stateSingleQuote
		stateDoubleQuote
	)

	out := []rune(condition)
	state := stateNormal
	prevChar := rune(0)

	for i, char := range out {
		switch state {
		case stateNormal:
			switch char {
			case '\'':
				state = stateSingleQuote
			case '"':
				state = stateDoubleQuote
			}
		case stateSingleQuote:
			if char == '\'' && prevChar != '\\' {
				state = stateNormal
			} else {
				out[i] = ' '
			}
		case stateDoubleQuote:
			// Double-quoted identifiers stay visible to keyword checks;
			// only exit tracking matters.
			if char == '"' && prevChar != '\\' {
				state = stateNormal
			}
		}
		prevChar = char
	}
	return string(out)
}

// findForbiddenKeyword returns the first statement-level keyword present as a
// whole word, or "" when the condition is clean.
func findForbiddenKeyword(masked string) string {
	words := strings.FieldsFunc(strings.ToLower(masked), func(r rune) bool {
		return !(r == '_' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	for _, w := range words {
		for _, kw := range forbiddenKeywords {
			if w == kw {
				return kw
			}
		}
	}
	return ""
}

func stripTrailingSemicolon(condition string) string {
	condition = strings.TrimRight(condition, " \t\n\r")
	condition = strings.TrimSuffix(condition, ";")
	return strings.TrimRight(condition, " \t\n\r")
}

package sql

import (
	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult contains the result of an injection check on a
// string literal embedded in a rule condition.
type InjectionCheckResult struct {
	IsSQLi      bool   // True if SQL injection pattern detected
	Fingerprint string // libinjection fingerprint of the detected pattern
	Literal     string // The literal content that failed the check
}

// CheckConditionForInjection runs libinjection over every string literal
// embedded in the condition. The expression structure itself is screened by
// ValidateCondition; this layer catches injection payloads hiding inside
// quoted values, where AI-generated conditions are most easily poisoned.
//
// Returns nil when all literals are clean, or the first detected pattern.
//
// Example:
//
//	// Clean literal
//	CheckConditionForInjection("status = 'paid'")  // nil
//
//	// Payload inside the literal
//	CheckConditionForInjection("name = ''; DROP TABLE users--'")
//	// result.IsSQLi == true
func CheckConditionForInjection(condition string) *InjectionCheckResult {
	for _, literal := range extractStringLiterals(condition) {
		if literal == "" {
			continue
		}
		isSQLi, fingerprint := libinjection.IsSQLi(literal)
		if isSQLi {
			return &InjectionCheckResult{
				IsSQLi:      true,
				Fingerprint: string(fingerprint),
				Literal:     literal,
			}
		}
	}
	return nil
}

// extractStringLiterals returns the contents of single-quoted literals, with
// the same escape handling as maskStringLiterals.
func extractStringLiterals(condition string) []string {
	var literals []string
	var current []rune
	inLiteral := false
	prevChar := rune(0)

	for _, char := range condition {
		if !inLiteral {
			if char == '\'' {
				inLiteral = true
				current = current[:0]
			}
			prevChar = char
			continue
		}
		if char == '\'' && prevChar != '\\' {
			inLiteral = false
			literals = append(literals, string(current))
		} else {
			current = append(current, char)
		}
		prevChar = char
	}
	return literals
}

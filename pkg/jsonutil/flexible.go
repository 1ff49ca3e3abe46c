// Package jsonutil tolerantly decodes JSON fields whose type drifts between
// responses. AI collaborators routinely return numbers as strings, strings as
// numbers, and omit fields entirely; these helpers normalize raw messages
// without failing the whole document.
package jsonutil

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FlexibleStringValue converts a json.RawMessage to a string, handling cases
// where the model returned a number or boolean instead of a string. Returns
// empty string for null/empty.
func FlexibleStringValue(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	// Try string first
	var strVal string
	if err := json.Unmarshal(raw, &strVal); err == nil {
		return strVal
	}

	// Try number
	var numVal float64
	if err := json.Unmarshal(raw, &numVal); err == nil {
		if numVal == float64(int64(numVal)) {
			return fmt.Sprintf("%d", int64(numVal))
		}
		return fmt.Sprintf("%g", numVal)
	}

	// Try boolean
	var boolVal bool
	if err := json.Unmarshal(raw, &boolVal); err == nil {
		return fmt.Sprintf("%t", boolVal)
	}

	// Fallback: return raw string representation
	return string(raw)
}

// FlexibleFloatValue converts a json.RawMessage to a float64, accepting
// either a bare number or a number quoted as a string ("95", "95%"). The
// second return is false when no numeric value could be extracted.
func FlexibleFloatValue(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}

	var numVal float64
	if err := json.Unmarshal(raw, &numVal); err == nil {
		return numVal, true
	}

	var strVal string
	if err := json.Unmarshal(raw, &strVal); err == nil {
		strVal = strings.TrimSuffix(strings.TrimSpace(strVal), "%")
		if parsed, err := strconv.ParseFloat(strVal, 64); err == nil {
			return parsed, true
		}
	}

	return 0, false
}

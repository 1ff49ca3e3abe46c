package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCondition_CleanConditions(t *testing.T) {
	tests := []struct {
		name      string
		condition string
		want      string
	}{
		{"simple comparison", "total > 0", "total > 0"},
		{"trailing semicolon stripped", "total > 0;", "total > 0"},
		{"string literal", "status = 'paid'", "status = 'paid'"},
		{"null check", "email IS NOT NULL", "email IS NOT NULL"},
		{"compound", "amount >= 0 AND amount <= 1000000", "amount >= 0 AND amount <= 1000000"},
		{"like pattern", "email LIKE '%@%.%'", "email LIKE '%@%.%'"},
		{"semicolon inside literal", "note = 'a;b'", "note = 'a;b'"},
		{"function call", "length(trim(name)) > 0", "length(trim(name)) > 0"},
		{"case keyword allowed", "CASE WHEN qty > 0 THEN true ELSE false END", "CASE WHEN qty > 0 THEN true ELSE false END"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateCondition(tt.condition)
			require.NoError(t, result.Error)
			assert.Equal(t, tt.want, result.NormalizedCondition)
		})
	}
}

func TestValidateCondition_Rejections(t *testing.T) {
	tests := []struct {
		name      string
		condition string
	}{
		{"empty", ""},
		{"whitespace only", "   \n\t"},
		{"bare semicolon", ";"},
		{"multiple statements", "total > 0; SELECT 1"},
		{"line comment", "total > 0 -- bypass"},
		{"block comment", "total > 0 /* hidden */"},
		{"drop statement", "total > 0 OR drop table users"},
		{"delete keyword", "delete from orders"},
		{"update keyword", "UPDATE orders SET total = 0"},
		{"truncate keyword", "truncate orders"},
		{"exec keyword", "exec sp_who"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateCondition(tt.condition)
			assert.Error(t, result.Error)
		})
	}
}

func TestValidateCondition_KeywordInsideLiteralAllowed(t *testing.T) {
	// Statement keywords inside string data are legitimate values.
	result := ValidateCondition("action = 'delete'")
	require.NoError(t, result.Error)
	assert.Equal(t, "action = 'delete'", result.NormalizedCondition)
}

func TestValidateCondition_ColumnNamesContainingKeywords(t *testing.T) {
	// created_at contains no forbidden whole word; updated_by contains
	// "update" only as a prefix.
	result := ValidateCondition("created_at IS NOT NULL AND updated_by IS NOT NULL")
	assert.NoError(t, result.Error)
}

func TestExtractStringLiterals(t *testing.T) {
	literals := extractStringLiterals("a = 'x' AND b = 'y;z'")
	assert.Equal(t, []string{"x", "y;z"}, literals)

	assert.Empty(t, extractStringLiterals("a > 1"))
}

func TestCheckConditionForInjection_PayloadInLiteral(t *testing.T) {
	result := CheckConditionForInjection(`name = '1'' OR ''1''=''1'`)
	if result != nil {
		assert.True(t, result.IsSQLi)
		assert.NotEmpty(t, result.Fingerprint)
	}

	assert.Nil(t, CheckConditionForInjection("status = 'paid'"))
}

package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestColumnMetadata_Classify(t *testing.T) {
	tests := []struct {
		name     string
		column   ColumnMetadata
		expected ColumnClass
	}{
		{
			name:     "uuid type",
			column:   ColumnMetadata{ColumnName: "id", DataType: "uuid"},
			expected: ColumnClassUUID,
		},
		{
			name:     "uniqueidentifier type",
			column:   ColumnMetadata{ColumnName: "row_guid", DataType: "uniqueidentifier"},
			expected: ColumnClassUUID,
		},
		{
			name:     "primary key integer is identifier",
			column:   ColumnMetadata{ColumnName: "id", DataType: "integer", IsPrimaryKey: true},
			expected: ColumnClassIdentifier,
		},
		{
			name:     "id-suffixed column is identifier",
			column:   ColumnMetadata{ColumnName: "customer_id", DataType: "bigint"},
			expected: ColumnClassIdentifier,
		},
		{
			name:     "declared fk is identifier",
			column:   ColumnMetadata{ColumnName: "owner", DataType: "integer", IsForeignKey: true},
			expected: ColumnClassIdentifier,
		},
		{
			name:     "plain numeric",
			column:   ColumnMetadata{ColumnName: "amount", DataType: "numeric(12,2)"},
			expected: ColumnClassNumeric,
		},
		{
			name:     "timestamp",
			column:   ColumnMetadata{ColumnName: "created_at", DataType: "timestamp with time zone"},
			expected: ColumnClassTemporal,
		},
		{
			name:     "boolean",
			column:   ColumnMetadata{ColumnName: "is_active", DataType: "boolean"},
			expected: ColumnClassBoolean,
		},
		{
			name:     "jsonb",
			column:   ColumnMetadata{ColumnName: "payload", DataType: "jsonb"},
			expected: ColumnClassJSON,
		},
		{
			name:     "varchar with length",
			column:   ColumnMetadata{ColumnName: "description", DataType: "varchar(255)"},
			expected: ColumnClassText,
		},
		{
			name:     "binary blob falls through to other",
			column:   ColumnMetadata{ColumnName: "avatar", DataType: "bytea"},
			expected: ColumnClassOther,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.column.Classify())
		})
	}
}

func TestColumnMetadata_TextSubtype(t *testing.T) {
	tests := []struct {
		name     string
		column   ColumnMetadata
		expected TextSubtype
	}{
		{"email", ColumnMetadata{ColumnName: "email", DataType: "varchar(255)"}, TextSubtypeEmail},
		{"email prefixed", ColumnMetadata{ColumnName: "contact_email", DataType: "text"}, TextSubtypeEmail},
		{"phone", ColumnMetadata{ColumnName: "phone_number", DataType: "varchar(32)"}, TextSubtypePhone},
		{"document", ColumnMetadata{ColumnName: "cpf", DataType: "char(11)"}, TextSubtypeDocument},
		{"postal", ColumnMetadata{ColumnName: "zip_code", DataType: "varchar(10)"}, TextSubtypePostalCode},
		{"plain text", ColumnMetadata{ColumnName: "notes", DataType: "text"}, TextSubtypeNone},
		{"non-text column", ColumnMetadata{ColumnName: "email_count", DataType: "integer"}, TextSubtypeNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.column.TextSubtype())
		})
	}
}

func TestTableMetadata_FullName(t *testing.T) {
	table := TableMetadata{SchemaName: "public", TableName: "orders"}
	assert.Equal(t, "public.orders", table.FullName())
}

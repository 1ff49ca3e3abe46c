package models

import (
	"regexp"
	"strings"
)

// ColumnClass is the derived classification of a column. It is computed from
// the declared type plus the column name, never stored.
type ColumnClass string

const (
	ColumnClassIdentifier ColumnClass = "identifier"
	ColumnClassTemporal   ColumnClass = "temporal"
	ColumnClassNumeric    ColumnClass = "numeric"
	ColumnClassText       ColumnClass = "text"
	ColumnClassBoolean    ColumnClass = "boolean"
	ColumnClassJSON       ColumnClass = "json"
	ColumnClassUUID       ColumnClass = "uuid"
	ColumnClassOther      ColumnClass = "other"
)

// TextSubtype refines ColumnClassText for pattern-validated content.
type TextSubtype string

const (
	TextSubtypeNone       TextSubtype = ""
	TextSubtypeEmail      TextSubtype = "email"
	TextSubtypeDocument   TextSubtype = "document"
	TextSubtypePhone      TextSubtype = "phone"
	TextSubtypePostalCode TextSubtype = "postal_code"
)

// ColumnMetadata describes a discovered column in the target database.
type ColumnMetadata struct {
	SchemaName      string  `json:"schema_name"`
	TableName       string  `json:"table_name"`
	ColumnName      string  `json:"column_name"`
	DataType        string  `json:"data_type"`
	IsNullable      bool    `json:"is_nullable"`
	OrdinalPosition int     `json:"ordinal_position"`
	IsPrimaryKey    bool    `json:"is_primary_key"`
	IsForeignKey    bool    `json:"is_foreign_key"`
	ForeignTable    *string `json:"foreign_table,omitempty"`
	ForeignColumn   *string `json:"foreign_column,omitempty"`
	DistinctCount   int64   `json:"distinct_count"`
	NullFraction    float64 `json:"null_fraction"` // 0.0-1.0
}

// TableFullName returns the "schema.table" key of the owning table.
func (c *ColumnMetadata) TableFullName() string {
	return c.SchemaName + "." + c.TableName
}

var (
	numericTypes = map[string]bool{
		"smallint": true, "integer": true, "int": true, "int2": true,
		"int4": true, "int8": true, "bigint": true, "decimal": true,
		"numeric": true, "real": true, "float": true, "float4": true,
		"float8": true, "double precision": true, "money": true,
		"tinyint": true, "smallmoney": true,
	}
	temporalTypes = map[string]bool{
		"date": true, "time": true, "timestamp": true, "timestamptz": true,
		"timestamp without time zone": true, "timestamp with time zone": true,
		"datetime": true, "datetime2": true, "smalldatetime": true,
		"datetimeoffset": true, "interval": true,
	}
	booleanTypes = map[string]bool{
		"boolean": true, "bool": true, "bit": true,
	}
	jsonTypes = map[string]bool{
		"json": true, "jsonb": true,
	}

	emailNamePattern    = regexp.MustCompile(`(?i)(^|_)(e?mail)($|_)`)
	phoneNamePattern    = regexp.MustCompile(`(?i)(^|_)(phone|mobile|celular|telefone|tel)($|_)`)
	documentNamePattern = regexp.MustCompile(`(?i)(^|_)(cpf|cnpj|document|documento|ssn|tax_id)($|_)`)
	postalNamePattern   = regexp.MustCompile(`(?i)(^|_)(zip|postal|cep)(_?code)?($|_)`)
	identifierPattern   = regexp.MustCompile(`(?i)(^id$|_id$|^code$|_code$|_key$)`)
)

// Classify derives the column classification from declared type and name.
// Identifier takes precedence for key-shaped columns so numeric surrogate
// keys are not profiled as measures.
func (c *ColumnMetadata) Classify() ColumnClass {
	dt := normalizeType(c.DataType)

	if dt == "uuid" || dt == "uniqueidentifier" {
		return ColumnClassUUID
	}
	if c.IsPrimaryKey || c.IsForeignKey || identifierPattern.MatchString(c.ColumnName) {
		return ColumnClassIdentifier
	}
	switch {
	case booleanTypes[dt]:
		return ColumnClassBoolean
	case temporalTypes[dt]:
		return ColumnClassTemporal
	case numericTypes[dt]:
		return ColumnClassNumeric
	case jsonTypes[dt]:
		return ColumnClassJSON
	case isTextType(dt):
		return ColumnClassText
	default:
		return ColumnClassOther
	}
}

// TextSubtype derives the pattern-validated subtype for text columns.
// Returns TextSubtypeNone for anything that is not a recognized text column.
func (c *ColumnMetadata) TextSubtype() TextSubtype {
	if c.Classify() != ColumnClassText {
		return TextSubtypeNone
	}
	name := c.ColumnName
	switch {
	case emailNamePattern.MatchString(name):
		return TextSubtypeEmail
	case documentNamePattern.MatchString(name):
		return TextSubtypeDocument
	case phoneNamePattern.MatchString(name):
		return TextSubtypePhone
	case postalNamePattern.MatchString(name):
		return TextSubtypePostalCode
	default:
		return TextSubtypeNone
	}
}

func normalizeType(dataType string) string {
	dt := strings.ToLower(strings.TrimSpace(dataType))
	// Strip length/precision qualifiers: varchar(255) -> varchar
	if idx := strings.IndexByte(dt, '('); idx > 0 {
		dt = strings.TrimSpace(dt[:idx])
	}
	return dt
}

func isTextType(dt string) bool {
	switch dt {
	case "text", "varchar", "character varying", "char", "character",
		"nvarchar", "nchar", "ntext", "citext", "string":
		return true
	}
	return false
}

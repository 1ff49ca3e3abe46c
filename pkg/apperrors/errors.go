package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// ConnectivityError indicates the target database was unreachable. Transient;
// callers may retry.
type ConnectivityError struct {
	Cause error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("database unreachable: %v", e.Cause)
}

func (e *ConnectivityError) Unwrap() error { return e.Cause }

// IsRetryable implements the retry.RetryableError interface.
func (e *ConnectivityError) IsRetryable() bool { return true }

// SchemaNotFoundError indicates a schema or table was missing. Fatal for the
// affected table only; discovery skips it and continues with the rest.
type SchemaNotFoundError struct {
	SchemaName string
	TableName  string
}

func (e *SchemaNotFoundError) Error() string {
	if e.TableName == "" {
		return fmt.Sprintf("schema %q not found", e.SchemaName)
	}
	return fmt.Sprintf("table %q not found in schema %q", e.TableName, e.SchemaName)
}

// MalformedAIResponseError indicates the AI collaborator returned text that
// could not be strictly parsed. Non-fatal; the attempt fails and counts
// against the bounded retry budget. The raw response is carried for review.
type MalformedAIResponseError struct {
	Reason string
	Raw    string
}

func (e *MalformedAIResponseError) Error() string {
	return fmt.Sprintf("malformed AI response: %s", e.Reason)
}

// SQLFault indicates a rule condition failed syntactically or semantically
// when executed. Eligible for the refinement loop; distinct from a rule that
// ran correctly and flagged invalid rows.
type SQLFault struct {
	Condition string
	Cause     error
}

func (e *SQLFault) Error() string {
	return fmt.Sprintf("rule condition failed to execute: %v", e.Cause)
}

func (e *SQLFault) Unwrap() error { return e.Cause }

// DataQualityFailure indicates a rule executed correctly but its pass rate
// fell below the expected threshold. Terminal; never retried automatically.
type DataQualityFailure struct {
	RuleName       string
	ActualPassRate float64
	ExpectedRate   float64
}

func (e *DataQualityFailure) Error() string {
	return fmt.Sprintf("rule %q pass rate %.2f%% below expected %.2f%%",
		e.RuleName, e.ActualPassRate, e.ExpectedRate)
}

// VersionConflictError indicates an optimistic-concurrency clash when writing
// a rule version. Retried once internally, then surfaced.
type VersionConflictError struct {
	RuleID          string
	AttemptedVersion int
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict creating version %d of rule %q",
		e.AttemptedVersion, e.RuleID)
}

// IsConnectivity reports whether err is a ConnectivityError.
func IsConnectivity(err error) bool {
	var target *ConnectivityError
	return errors.As(err, &target)
}

// IsSchemaNotFound reports whether err is a SchemaNotFoundError.
func IsSchemaNotFound(err error) bool {
	var target *SchemaNotFoundError
	return errors.As(err, &target)
}

// IsSQLFault reports whether err is a SQLFault.
func IsSQLFault(err error) bool {
	var target *SQLFault
	return errors.As(err, &target)
}

// IsMalformedAIResponse reports whether err is a MalformedAIResponseError.
func IsMalformedAIResponse(err error) bool {
	var target *MalformedAIResponseError
	return errors.As(err, &target)
}

// IsVersionConflict reports whether err is a VersionConflictError.
func IsVersionConflict(err error) bool {
	var target *VersionConflictError
	return errors.As(err, &target)
}

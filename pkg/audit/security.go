// Package audit provides security audit logging for SIEM consumption.
// It logs security-relevant events in structured JSON format for easy parsing
// and integration with security information and event management systems.
package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dataforge-io/profiler-engine/pkg/logging"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventInjectionInCondition is logged when libinjection flags a pattern
	// inside an AI-generated rule condition.
	EventInjectionInCondition SecurityEventType = "injection_in_condition"
	// EventUnsafeCondition is logged when a generated condition fails the
	// structural checks (comments, multiple statements, statement keywords).
	EventUnsafeCondition SecurityEventType = "unsafe_condition"
)

// SecurityEvent represents an auditable security event with all relevant
// context for SIEM ingestion and analysis.
type SecurityEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType SecurityEventType `json:"event_type"`
	ProfileID uuid.UUID         `json:"profile_id"`
	RuleName  string            `json:"rule_name"`
	Table     string            `json:"table"`
	Details   any               `json:"details"`
	Severity  string            `json:"severity"` // warning, critical
}

// ConditionRejectionDetails contains specifics of a rejected rule condition.
// The condition text is sanitized before it reaches the event.
type ConditionRejectionDetails struct {
	Condition   string `json:"condition"`
	Reason      string `json:"reason"`
	Fingerprint string `json:"fingerprint,omitempty"` // libinjection fingerprint for pattern analysis
}

// SecurityAuditor logs security events for SIEM consumption.
// Events are logged in structured JSON format with appropriate severity levels.
type SecurityAuditor struct {
	logger *zap.Logger
}

// NewSecurityAuditor creates a new security auditor with a dedicated logger
// namespace for easy filtering in SIEM systems.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{logger: logger.Named("security_audit")}
}

// LogInjectionAttempt records a libinjection detection inside a generated
// rule condition. Logged at ERROR level with "critical" severity for
// immediate alerting: a poisoned condition means the AI collaborator
// produced output that would have attacked the target database.
func (a *SecurityAuditor) LogInjectionAttempt(profileID uuid.UUID, ruleName, table string, details ConditionRejectionDetails) {
	details.Condition = logging.SanitizeCondition(details.Condition)
	event := SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: EventInjectionInCondition,
		ProfileID: profileID,
		RuleName:  ruleName,
		Table:     table,
		Details:   details,
		Severity:  "critical",
	}

	// Ignoring error as marshaling known types should never fail
	eventJSON, _ := json.Marshal(event)

	a.logger.Error("SQL injection pattern in generated rule condition",
		zap.String("event_json", string(eventJSON)),
		zap.String("profile_id", profileID.String()),
		zap.String("rule_name", ruleName),
		zap.String("table", table),
		zap.String("fingerprint", details.Fingerprint),
		zap.String("severity", "critical"),
	)
}

// LogUnsafeCondition records a structural rejection of a generated condition.
// Logged at WARN level; these are usually model sloppiness rather than
// hostile output, but the pattern is still worth tracking.
func (a *SecurityAuditor) LogUnsafeCondition(profileID uuid.UUID, ruleName, table string, details ConditionRejectionDetails) {
	details.Condition = logging.SanitizeCondition(details.Condition)
	event := SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: EventUnsafeCondition,
		ProfileID: profileID,
		RuleName:  ruleName,
		Table:     table,
		Details:   details,
		Severity:  "warning",
	}

	eventJSON, _ := json.Marshal(event)

	a.logger.Warn("unsafe generated rule condition rejected",
		zap.String("event_json", string(eventJSON)),
		zap.String("profile_id", profileID.String()),
		zap.String("rule_name", ruleName),
		zap.String("table", table),
		zap.String("severity", "warning"),
	)
}

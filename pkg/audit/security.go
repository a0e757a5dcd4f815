// Package audit provides security audit logging for SIEM consumption.
// Events are written as structured JSON under the "security_audit" logger
// so they can be filtered from ordinary agent logs.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbagent/pkg/llm"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/logging"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventSQLInjectionAttempt is logged when libinjection flags a question as a SQL payload.
	EventSQLInjectionAttempt SecurityEventType = "sql_injection_attempt"
	// EventStatementRejected is logged when the read-only guard refuses a generated statement.
	EventStatementRejected SecurityEventType = "statement_rejected"
	// EventUnknownTable is logged when generated SQL names tables outside the snapshot.
	EventUnknownTable SecurityEventType = "unknown_table_reference"
	// EventQueryExecution is logged for every executed statement (high volume, debug level).
	EventQueryExecution SecurityEventType = "query_execution"
)

// Severity levels carried on every event.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// SecurityEvent is one auditable event.
type SecurityEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType SecurityEventType `json:"event_type"`
	RequestID string            `json:"request_id,omitempty"`
	Details   any               `json:"details"`
	Severity  string            `json:"severity"`
}

// SQLInjectionDetails describes a question rejected by the injection screen.
type SQLInjectionDetails struct {
	Question    string `json:"question"`
	Fingerprint string `json:"fingerprint"` // libinjection fingerprint for pattern analysis
}

// StatementRejectedDetails describes a statement refused before execution.
type StatementRejectedDetails struct {
	SQL    string `json:"sql"`
	Reason string `json:"reason"`
}

// UnknownTableDetails describes generated SQL that referenced tables the
// agent never showed the model.
type UnknownTableDetails struct {
	SQL    string   `json:"sql"`
	Tables []string `json:"tables"`
}

// QueryExecutionDetails summarizes an executed statement.
type QueryExecutionDetails struct {
	SQL       string `json:"sql"`
	Rows      int    `json:"rows"`
	Truncated bool   `json:"truncated"`
}

// SecurityAuditor logs security events. A nil *SecurityAuditor is valid and
// discards everything.
type SecurityAuditor struct {
	logger *zap.Logger
}

// NewSecurityAuditor creates an auditor under the "security_audit" logger namespace.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{logger: logger.Named("security_audit")}
}

// LogInjectionAttempt records a question that looks like an injection payload.
// Logged at ERROR with critical severity for immediate alerting.
func (a *SecurityAuditor) LogInjectionAttempt(ctx context.Context, question, fingerprint string) {
	if a == nil {
		return
	}
	details := SQLInjectionDetails{
		Question:    logging.SanitizeQuestion(question),
		Fingerprint: fingerprint,
	}
	requestID, eventJSON := a.encode(ctx, EventSQLInjectionAttempt, details, SeverityCritical)

	a.logger.Error("SQL injection attempt detected",
		zap.String("event_json", eventJSON),
		zap.String("request_id", requestID),
		zap.String("fingerprint", fingerprint),
		zap.String("severity", SeverityCritical),
	)
}

// LogStatementRejected records a generated statement refused by the read-only guard.
func (a *SecurityAuditor) LogStatementRejected(ctx context.Context, sqlText, reason string) {
	if a == nil {
		return
	}
	details := StatementRejectedDetails{
		SQL:    logging.SanitizeQuery(sqlText),
		Reason: reason,
	}
	requestID, eventJSON := a.encode(ctx, EventStatementRejected, details, SeverityWarning)

	a.logger.Warn("Statement rejected by read-only guard",
		zap.String("event_json", eventJSON),
		zap.String("request_id", requestID),
		zap.String("reason", reason),
		zap.String("severity", SeverityWarning),
	)
}

// LogUnknownTables records generated SQL that referenced unknown tables.
func (a *SecurityAuditor) LogUnknownTables(ctx context.Context, sqlText string, tables []string) {
	if a == nil {
		return
	}
	details := UnknownTableDetails{
		SQL:    logging.SanitizeQuery(sqlText),
		Tables: tables,
	}
	requestID, eventJSON := a.encode(ctx, EventUnknownTable, details, SeverityWarning)

	a.logger.Warn("Generated SQL references unknown tables",
		zap.String("event_json", eventJSON),
		zap.String("request_id", requestID),
		zap.Strings("tables", tables),
		zap.String("severity", SeverityWarning),
	)
}

// LogQueryExecution records an executed statement. Logged at DEBUG since it
// fires once per answered question.
func (a *SecurityAuditor) LogQueryExecution(ctx context.Context, sqlText string, rows int, truncated bool) {
	if a == nil || !a.logger.Core().Enabled(zap.DebugLevel) {
		return
	}
	details := QueryExecutionDetails{
		SQL:       logging.SanitizeQuery(sqlText),
		Rows:      rows,
		Truncated: truncated,
	}
	requestID, eventJSON := a.encode(ctx, EventQueryExecution, details, SeverityInfo)

	a.logger.Debug("Query executed",
		zap.String("event_json", eventJSON),
		zap.String("request_id", requestID),
		zap.Int("rows", rows),
		zap.String("severity", SeverityInfo),
	)
}

func (a *SecurityAuditor) encode(ctx context.Context, eventType SecurityEventType, details any, severity string) (string, string) {
	requestID := llm.RequestIDFromContext(ctx)
	event := SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		RequestID: requestID,
		Details:   details,
		Severity:  severity,
	}
	// Marshaling these known types cannot fail.
	eventJSON, _ := json.Marshal(event)
	return requestID, string(eventJSON)
}

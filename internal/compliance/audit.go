// Package compliance provides the immutable audit trail healthcare
// regulations require for access to patient data.
package compliance

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditEventType represents the type of compliance event.
type AuditEventType string

const (
	// EventPromptBlocked is logged when a guard stage vetoes a chat message.
	EventPromptBlocked AuditEventType = "security.prompt_blocked"
	// EventLoginAttempt is logged for every authentication attempt.
	EventLoginAttempt AuditEventType = "auth.login_attempt"
	// EventQueryGate is logged for every model-authored query the gate sees.
	EventQueryGate AuditEventType = "chat.query_gate"
)

// AuditEvent represents an immutable compliance audit record.
type AuditEvent struct {
	ID        string          `json:"id"`
	EventType AuditEventType  `json:"event_type"`
	PatientID int             `json:"patient_id"`
	Subject   string          `json:"subject,omitempty"`
	Outcome   string          `json:"outcome"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// AuditDetails contains event-specific details.
type AuditDetails struct {
	// For blocked prompts
	Stage  string `json:"stage,omitempty"`
	Reason string `json:"reason,omitempty"`

	// For login attempts
	Username string `json:"username,omitempty"`

	// For query gate dispositions
	Query string `json:"query,omitempty"`
}

// AuditService handles compliance audit logging.
type AuditService struct {
	db *sql.DB
}

// NewAuditService creates a new audit service.
func NewAuditService(db *sql.DB) *AuditService {
	return &AuditService{db: db}
}

// LogEvent records a compliance audit event.
func (s *AuditService) LogEvent(ctx context.Context, event AuditEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO portal_audit_events (
			id, event_type, patient_id, subject, outcome, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.EventType,
		event.PatientID,
		nullString(event.Subject),
		event.Outcome,
		event.Details,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("compliance: failed to log audit event: %w", err)
	}

	return nil
}

// LogPromptBlocked records a guard veto. The payload itself is not stored.
func (s *AuditService) LogPromptBlocked(ctx context.Context, patientID int, stage, detail string) error {
	details, _ := json.Marshal(AuditDetails{Stage: stage, Reason: detail})

	return s.LogEvent(ctx, AuditEvent{
		EventType: EventPromptBlocked,
		PatientID: patientID,
		Subject:   "[BLOCKED]",
		Outcome:   "blocked",
		Details:   details,
	})
}

// LogLoginAttempt records an authentication attempt, successful or not.
func (s *AuditService) LogLoginAttempt(ctx context.Context, username string, patientID int, success bool) error {
	details, _ := json.Marshal(AuditDetails{Username: username})

	outcome := "failure"
	if success {
		outcome = "success"
	}
	return s.LogEvent(ctx, AuditEvent{
		EventType: EventLoginAttempt,
		PatientID: patientID,
		Outcome:   outcome,
		Details:   details,
	})
}

// LogQueryGate records how the gate disposed of one model-authored query.
// The query text is retained: it is the evidence of what the model tried to
// read.
func (s *AuditService) LogQueryGate(ctx context.Context, patientID int, query, outcome string) error {
	details, _ := json.Marshal(AuditDetails{Query: query})

	return s.LogEvent(ctx, AuditEvent{
		EventType: EventQueryGate,
		PatientID: patientID,
		Outcome:   outcome,
		Details:   details,
	})
}

// QueryEvents retrieves audit events with filters.
func (s *AuditService) QueryEvents(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	query := `
		SELECT id, event_type, patient_id, subject, outcome, details, created_at
		FROM portal_audit_events
		WHERE 1=1
	`
	var args []interface{}
	argIdx := 1

	if filter.PatientID > 0 {
		query += fmt.Sprintf(" AND patient_id = $%d", argIdx)
		args = append(args, filter.PatientID)
		argIdx++
	}
	if filter.EventType != "" {
		query += fmt.Sprintf(" AND event_type = $%d", argIdx)
		args = append(args, filter.EventType)
		argIdx++
	}
	if !filter.StartTime.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, filter.StartTime)
		argIdx++
	}
	if !filter.EndTime.IsZero() {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, filter.EndTime)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("compliance: failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		var e AuditEvent
		var subject sql.NullString
		err := rows.Scan(&e.ID, &e.EventType, &e.PatientID, &subject, &e.Outcome, &e.Details, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("compliance: failed to scan audit event: %w", err)
		}
		e.Subject = subject.String
		events = append(events, e)
	}

	return events, rows.Err()
}

// AuditFilter specifies criteria for querying audit events.
type AuditFilter struct {
	PatientID int
	EventType AuditEventType
	StartTime time.Time
	EndTime   time.Time
	Limit     int
	Offset    int
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

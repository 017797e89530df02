package models

import (
	"encoding/json"
	"time"
)

// AuditAction constants name every mutating action the engine records.
const (
	AuditActionCreate             = "CREATE"
	AuditActionOverride           = "OVERRIDE"
	AuditActionLock               = "LOCK"
	AuditActionUnlock             = "UNLOCK"
	AuditActionCorrectionSubmit   = "CORRECTION_SUBMIT"
	AuditActionCorrectionApproved = "CORRECTION_APPROVED"
	AuditActionCorrectionRejected = "CORRECTION_REJECTED"
	AuditActionTimetableUpload    = "TIMETABLE_UPLOAD"
	AuditActionSubstituteAssign   = "SUBSTITUTE_ASSIGN"
	AuditActionSubstituteUpdate   = "SUBSTITUTE_UPDATE"
)

// Audit entity types.
const (
	AuditEntityAttendanceSession = "attendance_session"
	AuditEntityTimetable         = "timetable"
	AuditEntityCorrection        = "correction_request"
	AuditEntitySubstitute        = "substitute_assignment"
)

// AuditContext snapshots the scheduling coordinates of the mutated entity.
type AuditContext struct {
	Section   string `json:"section,omitempty"`
	Subject   string `json:"subject,omitempty"`
	Date      string `json:"date,omitempty"`
	TimeLabel string `json:"time_label,omitempty"`
	StudentID string `json:"student_id,omitempty"`
}

// AuditEntry is an immutable, append-only trail record. Entries are never
// updated or deleted.
type AuditEntry struct {
	ID         string          `db:"id" json:"id"`
	EntityType string          `db:"entity_type" json:"entity_type"`
	EntityID   string          `db:"entity_id" json:"entity_id"`
	Action     string          `db:"action" json:"action"`
	ActorID    string          `db:"actor_id" json:"actor_id"`
	ActorRole  Role            `db:"actor_role" json:"actor_role"`
	ActorName  string          `db:"actor_name" json:"actor_name"`
	Context    json.RawMessage `db:"context" json:"context,omitempty"`
	Before     json.RawMessage `db:"before_state" json:"before,omitempty"`
	After      json.RawMessage `db:"after_state" json:"after,omitempty"`
	Reason     string          `db:"reason" json:"reason,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

// AuditFilter scopes trail queries.
type AuditFilter struct {
	EntityType string
	EntityID   string
	ActorID    string
	Section    string
	DateFrom   *time.Time
	DateTo     *time.Time
	Limit      int
}

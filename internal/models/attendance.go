package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// MarkStatus is the outcome recorded for one student in one session.
type MarkStatus string

const (
	MarkPresent MarkStatus = "present"
	MarkAbsent  MarkStatus = "absent"
	MarkLate    MarkStatus = "late"
)

// Valid returns true when the status is a supported value.
func (s MarkStatus) Valid() bool {
	switch s {
	case MarkPresent, MarkAbsent, MarkLate:
		return true
	default:
		return false
	}
}

// StudentMark records one student's status within a session.
type StudentMark struct {
	StudentID string     `json:"student_id"`
	Status    MarkStatus `json:"status"`
	MarkedAt  time.Time  `json:"marked_at"`
}

// StudentMarks is the ordered per-student list kept on a session record.
type StudentMarks []StudentMark

// Value implements driver.Valuer for JSONB storage.
func (m StudentMarks) Value() (driver.Value, error) {
	if m == nil {
		return json.Marshal(StudentMarks{})
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner for JSONB columns.
func (m *StudentMarks) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*m = StudentMarks{}
		return nil
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("unsupported student marks source type %T", src)
	}
}

// Find returns the mark for a student, or nil when the student is not part
// of the session.
func (m StudentMarks) Find(studentID string) *StudentMark {
	for i := range m {
		if m[i].StudentID == studentID {
			return &m[i]
		}
	}
	return nil
}

// HasAbsence reports whether any student is marked absent.
func (m StudentMarks) HasAbsence() bool {
	for i := range m {
		if m[i].Status == MarkAbsent {
			return true
		}
	}
	return false
}

// SessionKey uniquely identifies one concrete class meeting. The storage
// layer enforces uniqueness on this tuple; the application-level existence
// check only exists to produce a friendly Conflict message.
type SessionKey struct {
	Section   string    `json:"section"`
	Subject   string    `json:"subject"`
	Date      time.Time `json:"date"`
	TimeLabel string    `json:"time_label"`
}

// AttendanceSession is the canonical ledger record for one class meeting.
type AttendanceSession struct {
	ID             string       `db:"id" json:"id"`
	Section        string       `db:"section" json:"section"`
	Subject        string       `db:"subject" json:"subject"`
	Date           time.Time    `db:"date" json:"date"`
	TimeLabel      string       `db:"time_label" json:"time_label"`
	DayCode        DayCode      `db:"day_code" json:"day_code"`
	StartTime      string       `db:"start_time" json:"start_time"`
	EndTime        string       `db:"end_time" json:"end_time"`
	TeacherID      string       `db:"teacher_id" json:"teacher_id"`
	Marks          StudentMarks `db:"marks" json:"marks"`
	IsLocked       bool         `db:"is_locked" json:"is_locked"`
	LockedAt       *time.Time   `db:"locked_at" json:"locked_at,omitempty"`
	LastModifiedBy *Actor       `db:"last_modified_by" json:"last_modified_by,omitempty"`
	LastModifiedAt *time.Time   `db:"last_modified_at" json:"last_modified_at,omitempty"`
	OverrideReason *string      `db:"override_reason" json:"override_reason,omitempty"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time    `db:"updated_at" json:"updated_at"`
}

// Key returns the identifying tuple of the session.
func (s *AttendanceSession) Key() SessionKey {
	return SessionKey{Section: s.Section, Subject: s.Subject, Date: s.Date, TimeLabel: s.TimeLabel}
}

// HistoryRow is the denormalized per-student mirror of a ledger mark. The
// ledger is canonical; these rows are a derived projection written in the
// same transaction as the ledger write.
type HistoryRow struct {
	ID        string     `db:"id" json:"id"`
	SessionID string     `db:"session_id" json:"session_id"`
	StudentID string     `db:"student_id" json:"student_id"`
	Section   string     `db:"section" json:"section"`
	Subject   string     `db:"subject" json:"subject"`
	Date      time.Time  `db:"date" json:"date"`
	TimeLabel string     `db:"time_label" json:"time_label"`
	Status    MarkStatus `db:"status" json:"status"`
	MarkedAt  time.Time  `db:"marked_at" json:"marked_at"`
}

// StudentHistoryFilter scopes per-student reads.
type StudentHistoryFilter struct {
	Subject  string
	DateFrom *time.Time
	DateTo   *time.Time
}

// AttendanceSummary aggregates one student's recorded sessions.
type AttendanceSummary struct {
	Present int     `db:"present" json:"present"`
	Absent  int     `db:"absent" json:"absent"`
	Late    int     `db:"late" json:"late"`
	Total   int     `db:"total" json:"total"`
	Percent float64 `db:"-" json:"percent"`
}

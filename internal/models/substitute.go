package models

import "time"

// SubstituteStatus tracks a substitute assignment's lifecycle.
type SubstituteStatus string

const (
	SubstitutePending   SubstituteStatus = "PENDING"
	SubstituteConfirmed SubstituteStatus = "CONFIRMED"
	SubstituteCompleted SubstituteStatus = "COMPLETED"
	SubstituteCancelled SubstituteStatus = "CANCELLED"
)

// Valid returns true when the status is a supported value.
func (s SubstituteStatus) Valid() bool {
	switch s {
	case SubstitutePending, SubstituteConfirmed, SubstituteCompleted, SubstituteCancelled:
		return true
	default:
		return false
	}
}

// Authorizes reports whether an assignment in this status hands the slot to
// the substitute. PENDING counts: the substitute can mark attendance before
// the admin confirms.
func (s SubstituteStatus) Authorizes() bool {
	return s == SubstitutePending || s == SubstituteConfirmed
}

// SubstituteAssignment maps an absent teacher's slot to a substitute for a
// specific date. One assignment per slot per date; a repeated assignment
// replaces the previous one.
type SubstituteAssignment struct {
	ID                  string           `db:"id" json:"id"`
	OriginalTeacherID   string           `db:"original_teacher_id" json:"original_teacher_id"`
	SubstituteTeacherID string           `db:"substitute_teacher_id" json:"substitute_teacher_id"`
	Section             string           `db:"section" json:"section"`
	Subject             string           `db:"subject" json:"subject"`
	Date                time.Time        `db:"date" json:"date"`
	TimeLabel           string           `db:"time_label" json:"time_label"`
	DayCode             DayCode          `db:"day_code" json:"day_code"`
	Status              SubstituteStatus `db:"status" json:"status"`
	AssignedBy          string           `db:"assigned_by" json:"assigned_by"`
	Reason              string           `db:"reason" json:"reason"`
	CreatedAt           time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time        `db:"updated_at" json:"updated_at"`
}

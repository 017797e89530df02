package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// DayCode is a three-letter weekday code used by timetable text.
type DayCode string

const (
	DayMon DayCode = "MON"
	DayTue DayCode = "TUE"
	DayWed DayCode = "WED"
	DayThu DayCode = "THU"
	DayFri DayCode = "FRI"
	DaySat DayCode = "SAT"
	DaySun DayCode = "SUN"
)

// AllDays lists the seven day codes in week order.
var AllDays = []DayCode{DayMon, DayTue, DayWed, DayThu, DayFri, DaySat, DaySun}

// Weekdays lists Mon-Fri, the days a section is expected to have classes.
var Weekdays = []DayCode{DayMon, DayTue, DayWed, DayThu, DayFri}

// Valid returns true when the code is one of the seven days.
func (d DayCode) Valid() bool {
	switch d {
	case DayMon, DayTue, DayWed, DayThu, DayFri, DaySat, DaySun:
		return true
	default:
		return false
	}
}

// DayCodeFor maps a Go weekday onto the timetable code.
func DayCodeFor(w time.Weekday) DayCode {
	switch w {
	case time.Monday:
		return DayMon
	case time.Tuesday:
		return DayTue
	case time.Wednesday:
		return DayWed
	case time.Thursday:
		return DayThu
	case time.Friday:
		return DayFri
	case time.Saturday:
		return DaySat
	default:
		return DaySun
	}
}

// Slot is one scheduled class period within a day. Start and End are
// zero-padded 24-hour "HH:MM" strings, so lexicographic comparison matches
// chronological order.
type Slot struct {
	Label   string `json:"label"`
	Start   string `json:"start"`
	End     string `json:"end"`
	Subject string `json:"subject"`
	// TeacherID is resolved downstream against the subject-teacher roster;
	// empty until assigned.
	TeacherID string `json:"teacher_id,omitempty"`
}

// WeekSchedule maps day codes to the ordered slots of that day.
type WeekSchedule map[DayCode][]Slot

// Value implements driver.Valuer for JSONB storage.
func (w WeekSchedule) Value() (driver.Value, error) {
	if w == nil {
		return json.Marshal(WeekSchedule{})
	}
	return json.Marshal(w)
}

// Scan implements sql.Scanner for JSONB columns.
func (w *WeekSchedule) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*w = WeekSchedule{}
		return nil
	case []byte:
		return json.Unmarshal(v, w)
	case string:
		return json.Unmarshal([]byte(v), w)
	default:
		return fmt.Errorf("unsupported week schedule source type %T", src)
	}
}

// Timetable is the validated weekly schedule of one section.
type Timetable struct {
	Section   string       `db:"section" json:"section"`
	Days      WeekSchedule `db:"days" json:"days"`
	UpdatedBy string       `db:"updated_by" json:"updated_by"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt time.Time    `db:"updated_at" json:"updated_at"`
}

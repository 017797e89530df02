package service

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/campushq/session-attendance-api/internal/models"
)

var timeRangePattern = regexp.MustCompile(`^(\d{1,2})-(\d{1,2})$`)

// ParseIssue names one problem found in timetable text.
type ParseIssue struct {
	Line    int            `json:"line,omitempty"`
	Section string         `json:"section,omitempty"`
	Day     models.DayCode `json:"day,omitempty"`
	Message string         `json:"message"`
}

func (i ParseIssue) String() string {
	parts := make([]string, 0, 4)
	if i.Line > 0 {
		parts = append(parts, fmt.Sprintf("line %d", i.Line))
	}
	if i.Section != "" {
		parts = append(parts, fmt.Sprintf("section %s", i.Section))
	}
	if i.Day != "" {
		parts = append(parts, string(i.Day))
	}
	parts = append(parts, i.Message)
	return strings.Join(parts, ": ")
}

// ParseReport collects every problem in one pass so an uploader can fix the
// whole file at once. Warnings never block an upload; errors do.
type ParseReport struct {
	Timetables []models.Timetable `json:"timetables"`
	Errors     []ParseIssue       `json:"errors,omitempty"`
	Warnings   []ParseIssue       `json:"warnings,omitempty"`
}

// OK reports whether the text is accepted.
func (r *ParseReport) OK() bool {
	return len(r.Errors) == 0
}

// WarningStrings flattens warnings for the response envelope.
func (r *ParseReport) WarningStrings() []string {
	out := make([]string, len(r.Warnings))
	for i, w := range r.Warnings {
		out[i] = w.String()
	}
	return out
}

// disambiguateHour maps a bare 1-12 timetable hour onto the 24-hour clock.
// Hours below 9 are read as afternoon (+12), so "9-10" means 09:00-10:00
// and "1-2" means 13:00-14:00 without an AM/PM token.
//
// The heuristic is tied to an institution whose school day runs 09:00-17:00:
// a class starting before 9 in the morning, or one spanning noon, cannot be
// expressed.
func disambiguateHour(h int) int {
	if h < 9 {
		return h + 12
	}
	return h
}

// ParseTimetableText turns raw multi-section timetable text into validated
// weekly schedules. The grammar:
//
//	SectionName:
//	MON: 9-10 Operating Systems @t-101, 10-11 Compilers
//	TUE: 1-2 Databases
//
// The trailing "@id" token is optional and names the slot's teacher.
//
// Problems are collected, not fail-fast; see ParseReport.
func ParseTimetableText(raw string) *ParseReport {
	report := &ParseReport{}

	var current *models.Timetable
	flush := func() {
		if current != nil {
			report.Timetables = append(report.Timetables, *current)
			current = nil
		}
	}

	for i, line := range strings.Split(raw, "\n") {
		lineNo := i + 1
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		head, rest, found := strings.Cut(line, ":")
		if !found {
			report.Errors = append(report.Errors, ParseIssue{
				Line:    lineNo,
				Message: fmt.Sprintf("malformed line %q, expected 'Section:' or 'DAY: slots'", line),
			})
			continue
		}
		head = strings.TrimSpace(head)
		rest = strings.TrimSpace(rest)

		day := models.DayCode(strings.ToUpper(head))
		if day.Valid() {
			if current == nil {
				report.Errors = append(report.Errors, ParseIssue{
					Line:    lineNo,
					Day:     day,
					Message: "day line before any section header",
				})
				continue
			}
			slots := parseDayLine(report, lineNo, current.Section, day, rest)
			current.Days[day] = append(current.Days[day], slots...)
			continue
		}

		// Not a day code: a section header is a line containing only
		// "<SectionName>:".
		if rest != "" {
			report.Errors = append(report.Errors, ParseIssue{
				Line:    lineNo,
				Message: fmt.Sprintf("unknown day code %q", head),
			})
			continue
		}
		if head == "" {
			report.Errors = append(report.Errors, ParseIssue{
				Line:    lineNo,
				Message: "empty section name",
			})
			continue
		}
		flush()
		current = &models.Timetable{Section: head, Days: models.WeekSchedule{}}
	}
	flush()

	for i := range report.Timetables {
		validateTimetable(report, &report.Timetables[i])
	}
	return report
}

func parseDayLine(report *ParseReport, lineNo int, section string, day models.DayCode, rest string) []models.Slot {
	var slots []models.Slot
	for _, part := range strings.Split(rest, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		timeToken, subject, _ := strings.Cut(part, " ")
		subject = strings.TrimSpace(subject)

		// An optional trailing "@id" token assigns the slot's teacher.
		teacherID := ""
		if fields := strings.Fields(subject); len(fields) > 0 && strings.HasPrefix(fields[len(fields)-1], "@") {
			teacherID = strings.TrimPrefix(fields[len(fields)-1], "@")
			subject = strings.Join(fields[:len(fields)-1], " ")
		}

		m := timeRangePattern.FindStringSubmatch(timeToken)
		if m == nil {
			report.Errors = append(report.Errors, ParseIssue{
				Line: lineNo, Section: section, Day: day,
				Message: fmt.Sprintf("slot %q does not start with an H-H time range", part),
			})
			continue
		}
		startRaw, _ := strconv.Atoi(m[1])
		endRaw, _ := strconv.Atoi(m[2])
		if startRaw < 1 || startRaw > 12 || endRaw < 1 || endRaw > 12 {
			report.Errors = append(report.Errors, ParseIssue{
				Line: lineNo, Section: section, Day: day,
				Message: fmt.Sprintf("time %q out of range, hours must be 1-12", timeToken),
			})
			continue
		}
		start := disambiguateHour(startRaw)
		end := disambiguateHour(endRaw)
		if start >= end {
			report.Errors = append(report.Errors, ParseIssue{
				Line: lineNo, Section: section, Day: day,
				Message: fmt.Sprintf("time %q has start at or after end", timeToken),
			})
			continue
		}
		if subject == "" {
			report.Errors = append(report.Errors, ParseIssue{
				Line: lineNo, Section: section, Day: day,
				Message: fmt.Sprintf("slot %q is missing a subject", part),
			})
			continue
		}
		slots = append(slots, models.Slot{
			Label:     timeToken,
			Start:     fmt.Sprintf("%02d:00", start),
			End:       fmt.Sprintf("%02d:00", end),
			Subject:   subject,
			TeacherID: teacherID,
		})
	}
	return slots
}

func validateTimetable(report *ParseReport, t *models.Timetable) {
	for _, day := range models.AllDays {
		slots := t.Days[day]
		// Half-open intervals: [s1,e1) and [s2,e2) clash iff s1<e2 && s2<e1.
		for i := 0; i < len(slots); i++ {
			for j := i + 1; j < len(slots); j++ {
				if slots[i].Start < slots[j].End && slots[j].Start < slots[i].End {
					report.Errors = append(report.Errors, ParseIssue{
						Section: t.Section, Day: day,
						Message: fmt.Sprintf("slots %s and %s overlap", slots[i].Label, slots[j].Label),
					})
				}
			}
		}
	}
	for _, day := range models.Weekdays {
		if len(t.Days[day]) == 0 {
			report.Warnings = append(report.Warnings, ParseIssue{
				Section: t.Section, Day: day,
				Message: "no schedule for weekday",
			})
		}
	}
}

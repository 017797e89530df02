package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campushq/session-attendance-api/internal/models"
)

func TestParseTimetableTextMorningAndAfternoon(t *testing.T) {
	raw := `CS-3A:
MON: 9-10 Operating Systems @t-101, 10-11 Compilers
TUE: 1-2 Databases
WED: 11-12 Networks
THU: 2-3 Algorithms
FRI: 3-4 Graphics`

	report := ParseTimetableText(raw)
	require.True(t, report.OK(), "unexpected errors: %v", report.Errors)
	require.Len(t, report.Timetables, 1)

	tt := report.Timetables[0]
	assert.Equal(t, "CS-3A", tt.Section)

	mon := tt.Days[models.DayMon]
	require.Len(t, mon, 2)
	assert.Equal(t, "09:00", mon[0].Start)
	assert.Equal(t, "10:00", mon[0].End)
	assert.Equal(t, "Operating Systems", mon[0].Subject)
	assert.Equal(t, "t-101", mon[0].TeacherID)
	assert.Equal(t, "", mon[1].TeacherID)

	tue := tt.Days[models.DayTue]
	require.Len(t, tue, 1)
	assert.Equal(t, "13:00", tue[0].Start)
	assert.Equal(t, "14:00", tue[0].End)

	wed := tt.Days[models.DayWed]
	require.Len(t, wed, 1)
	assert.Equal(t, "11:00", wed[0].Start)
	assert.Equal(t, "12:00", wed[0].End)

	assert.Empty(t, report.Warnings)
}

func TestParseTimetableTextHourOutOfRange(t *testing.T) {
	report := ParseTimetableText("CS-3A:\nMON: 13-14 Maths")
	require.False(t, report.OK())
	assert.Contains(t, report.Errors[0].Message, "out of range")
}

func TestParseTimetableTextStartAtOrAfterEnd(t *testing.T) {
	report := ParseTimetableText("CS-3A:\nMON: 10-10 Maths")
	require.False(t, report.OK())
	assert.Contains(t, report.Errors[0].Message, "start at or after end")
}

func TestParseTimetableTextMissingSubject(t *testing.T) {
	report := ParseTimetableText("CS-3A:\nMON: 9-10")
	require.False(t, report.OK())
	assert.Contains(t, report.Errors[0].Message, "missing a subject")
}

func TestParseTimetableTextOverlapDetected(t *testing.T) {
	report := ParseTimetableText("CS-3A:\nMON: 9-11 Maths, 10-12 Physics")
	require.False(t, report.OK())
	assert.Contains(t, report.Errors[0].Message, "overlap")
	assert.Equal(t, models.DayMon, report.Errors[0].Day)
}

func TestParseTimetableTextBackToBackSlotsDoNotOverlap(t *testing.T) {
	report := ParseTimetableText("CS-3A:\nMON: 9-10 Maths, 10-11 Physics\nTUE: 9-10 Maths\nWED: 9-10 Maths\nTHU: 9-10 Maths\nFRI: 9-10 Maths")
	assert.True(t, report.OK(), "errors: %v", report.Errors)
}

func TestParseTimetableTextMissingWeekdayWarns(t *testing.T) {
	report := ParseTimetableText("CS-3A:\nMON: 9-10 Maths")
	require.True(t, report.OK())
	// TUE through FRI have no schedule.
	require.Len(t, report.Warnings, 4)
	for _, w := range report.Warnings {
		assert.Contains(t, w.Message, "no schedule")
	}
}

func TestParseTimetableTextBatchesAllErrors(t *testing.T) {
	raw := `CS-3A:
MON: 13-14 Maths
TUE: 9-10
bogus line
WED: 9x10 Maths`
	report := ParseTimetableText(raw)
	require.False(t, report.OK())
	assert.Len(t, report.Errors, 4)
}

func TestParseTimetableTextDayLineBeforeSection(t *testing.T) {
	report := ParseTimetableText("MON: 9-10 Maths")
	require.False(t, report.OK())
	assert.Contains(t, report.Errors[0].Message, "before any section header")
}

func TestParseTimetableTextMultipleSections(t *testing.T) {
	raw := strings.Join([]string{
		"CS-3A:",
		"MON: 9-10 Maths",
		"CS-3B:",
		"MON: 9-10 Physics",
	}, "\n")
	report := ParseTimetableText(raw)
	require.True(t, report.OK())
	require.Len(t, report.Timetables, 2)
	assert.Equal(t, "CS-3A", report.Timetables[0].Section)
	assert.Equal(t, "CS-3B", report.Timetables[1].Section)
}

func TestDisambiguateHour(t *testing.T) {
	assert.Equal(t, 9, disambiguateHour(9))
	assert.Equal(t, 12, disambiguateHour(12))
	assert.Equal(t, 13, disambiguateHour(1))
	assert.Equal(t, 20, disambiguateHour(8))
}

package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campushq/session-attendance-api/internal/models"
)

type stubCatalog struct {
	timetable *models.Timetable
}

func (s *stubCatalog) Sections(ctx context.Context) ([]string, error) {
	return []string{s.timetable.Section}, nil
}

func (s *stubCatalog) Get(ctx context.Context, section string) (*models.Timetable, error) {
	return s.timetable, nil
}

type stubChecker struct {
	exists bool
	calls  int
}

func (s *stubChecker) Exists(ctx context.Context, key models.SessionKey) (bool, error) {
	s.calls++
	return s.exists, nil
}

func newTestNotifier(checker *stubChecker, events *emitterStub) *NotifierService {
	catalog := &stubCatalog{timetable: mondayTimetable(
		models.Slot{Label: "9-10", Start: "09:00", End: "10:00", Subject: "Maths", TeacherID: "t-101"},
	)}
	return NewNotifierService(catalog, checker, events, 15*time.Minute, nil)
}

func TestScanReportsUnmarkedSlot(t *testing.T) {
	events := &emitterStub{}
	svc := newTestNotifier(&stubChecker{exists: false}, events)
	svc.now = func() time.Time { return monday(10, 20) }
	svc.lastRun = monday(10, 0)

	emitted, err := svc.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, emitted)
	require.Len(t, events.events, 1)
	assert.Equal(t, EventUnmarkedSession, events.events[0].Type)
	assert.Equal(t, "CS-3A", events.events[0].Section)
	assert.Equal(t, "9-10", events.events[0].TimeLabel)
}

func TestScanSkipsRecordedSlot(t *testing.T) {
	events := &emitterStub{}
	svc := newTestNotifier(&stubChecker{exists: true}, events)
	svc.now = func() time.Time { return monday(10, 20) }
	svc.lastRun = monday(10, 0)

	emitted, err := svc.Scan(context.Background())
	require.NoError(t, err)
	assert.Zero(t, emitted)
	assert.Empty(t, events.events)
}

func TestScanWindowStillOpenNotReported(t *testing.T) {
	// The grace window runs to 10:15; at 10:10 the teacher can still mark.
	events := &emitterStub{}
	checker := &stubChecker{exists: false}
	svc := newTestNotifier(checker, events)
	svc.now = func() time.Time { return monday(10, 10) }
	svc.lastRun = monday(10, 0)

	emitted, err := svc.Scan(context.Background())
	require.NoError(t, err)
	assert.Zero(t, emitted)
	assert.Zero(t, checker.calls)
}

func TestScanUsesWallClockInServerTimezone(t *testing.T) {
	// A slot ending 10:00 closes its window at 10:15 on the local wall
	// clock, whatever the server's UTC offset.
	kolkata := time.FixedZone("UTC+5:30", 5*3600+1800)
	events := &emitterStub{}
	svc := newTestNotifier(&stubChecker{exists: false}, events)
	svc.now = func() time.Time { return time.Date(2026, 3, 2, 10, 20, 0, 0, kolkata) }
	svc.lastRun = time.Date(2026, 3, 2, 10, 0, 0, 0, kolkata)

	emitted, err := svc.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, emitted)
}

func TestScanReportsEachSlotOnce(t *testing.T) {
	events := &emitterStub{}
	svc := newTestNotifier(&stubChecker{exists: false}, events)
	svc.lastRun = monday(10, 0)

	svc.now = func() time.Time { return monday(10, 20) }
	_, err := svc.Scan(context.Background())
	require.NoError(t, err)

	// The next scan window starts where the last one ended.
	svc.now = func() time.Time { return monday(10, 40) }
	_, err = svc.Scan(context.Background())
	require.NoError(t, err)

	assert.Len(t, events.events, 1)
}

package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Event types the engine fires for downstream notification channels.
// Delivery is someone else's job; only the fact that a notification should
// fire is decided here.
const (
	EventLowAttendance   = "LOW_ATTENDANCE"
	EventUnmarkedSession = "UNMARKED_SESSION"
)

// Event carries the scheduling coordinates a notification consumer needs.
type Event struct {
	Type       string    `json:"type"`
	Section    string    `json:"section"`
	Subject    string    `json:"subject"`
	Date       string    `json:"date"`
	TimeLabel  string    `json:"time_label"`
	StudentIDs []string  `json:"student_ids,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventEmitter hands events to whatever notification transport is wired in.
type EventEmitter interface {
	Emit(ctx context.Context, event Event)
}

// LogEmitter is the default emitter: it logs the event and counts it, which
// is all this engine owes the notification pipeline.
type LogEmitter struct {
	logger  *zap.Logger
	metrics *MetricsService
}

// NewLogEmitter constructs the default emitter.
func NewLogEmitter(logger *zap.Logger, metrics *MetricsService) *LogEmitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogEmitter{logger: logger, metrics: metrics}
}

// Emit implements EventEmitter.
func (e *LogEmitter) Emit(_ context.Context, event Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if e.metrics != nil {
		e.metrics.ObserveEvent(event.Type)
	}
	e.logger.Info("engine_event",
		zap.String("type", event.Type),
		zap.String("section", event.Section),
		zap.String("subject", event.Subject),
		zap.String("date", event.Date),
		zap.String("time_label", event.TimeLabel),
		zap.Strings("student_ids", event.StudentIDs),
	)
}

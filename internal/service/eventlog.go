package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sous_vide/internal/models"
	"sous_vide/internal/repository"
)

// EventLogService answers history queries over the device event log.
type EventLogService struct {
	events repository.EventRepo
}

func NewEventLogService(events repository.EventRepo) *EventLogService {
	return &EventLogService{events: events}
}

// List returns history entries matching f, oldest first. With f.Limit set,
// only the newest f.Limit of them are kept.
func (s *EventLogService) List(ctx context.Context, f LogFilter) ([]models.DeviceEvent, error) {
	q, err := f.normalize()
	if err != nil {
		return nil, err
	}
	events, err := s.events.List(ctx, q.From, q.To, q.Type)
	if err != nil {
		return nil, err
	}
	if q.Limit > 0 && len(events) > q.Limit {
		events = events[len(events)-q.Limit:]
	}
	return events, nil
}

// normalize moves both bounds to UTC and upper-cases the type, then checks
// the result against what the log can answer.
func (f LogFilter) normalize() (LogFilter, error) {
	q := LogFilter{
		From:  utcOrZero(f.From),
		To:    utcOrZero(f.To),
		Type:  strings.ToUpper(strings.TrimSpace(f.Type)),
		Limit: f.Limit,
	}
	switch {
	case !q.From.IsZero() && !q.To.IsZero() && q.From.After(q.To):
		return LogFilter{}, ErrInvalidTimeRange
	case q.Type != "" && !models.IsEventType(q.Type):
		return LogFilter{}, fmt.Errorf("%w: %q", ErrUnknownEventType, f.Type)
	case q.Limit < 0 || q.Limit > MaxLogLimit:
		return LogFilter{}, fmt.Errorf("%w: got %d", ErrInvalidLimit, f.Limit)
	}
	return q, nil
}

func utcOrZero(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

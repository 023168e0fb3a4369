package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tasmota_mqtt/internal/models"
	"tasmota_mqtt/internal/repository"
)

var (
	ErrInvalidTimeRange = errors.New("invalid time range: from must not be after to")
	ErrInvalidEventType = errors.New("unknown event type")
)

var knownEventTypes = map[string]struct{}{
	models.EventPowerOn:      {},
	models.EventPowerOff:     {},
	models.EventStateChange:  {},
	models.EventAutoShutdown: {},
	models.EventError:        {},
}

// EventLogService answers history queries over recorded relay events.
type EventLogService struct {
	events repository.EventRepo
}

func NewEventLogService(events repository.EventRepo) *EventLogService {
	return &EventLogService{events: events}
}

// List returns the events matching f. Bounds are compared in UTC and the type filter is
// case-insensitive.
func (s *EventLogService) List(ctx context.Context, f LogFilter) ([]models.RelayEvent, error) {
	from, to, typ, err := normalizeFilter(f)
	if err != nil {
		return nil, err
	}
	return s.events.List(ctx, from, to, typ)
}

func normalizeFilter(f LogFilter) (from, to time.Time, typ string, err error) {
	from, to = utcOrZero(f.From), utcOrZero(f.To)
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return time.Time{}, time.Time{}, "", ErrInvalidTimeRange
	}
	typ = strings.ToUpper(strings.TrimSpace(f.Type))
	if typ != "" {
		if _, ok := knownEventTypes[typ]; !ok {
			return time.Time{}, time.Time{}, "", fmt.Errorf("%w: %q", ErrInvalidEventType, f.Type)
		}
	}
	return from, to, typ, nil
}

func utcOrZero(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

package matching

import (
	"time"

	"github.com/huddle/matchmaker/internal/event"
)

// Reference point in lower Manhattan. 0.01 degrees of latitude is about
// 0.7 miles; 0.45 degrees is about 31 miles.
const (
	baseLat = 40.7128
	baseLng = -74.0060
)

var fixedNow = time.Date(2024, 5, 31, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func slot(date, start, end string) event.TimeSlot {
	return event.TimeSlot{Date: date, StartTime: start, EndTime: end}
}

func pending(user, topic string, size int, lat, lng float64, slots ...event.TimeSlot) event.PendingEvent {
	return event.PendingEvent{
		Topic:          topic,
		GroupSize:      size,
		ScheduledTimes: slots,
		Location:       event.Coordinates(lat, lng, ""),
		CreatedBy:      user,
	}
}

func testConfig() Config {
	return Config{
		MaxDistanceMiles:   DefaultMaxDistanceMiles,
		MaxConflictRetries: 3,
		Seed:               1,
		Now:                fixedClock,
	}
}

type recordingPublisher struct {
	published []*event.PlannedEvent
	err       error
}

func (p *recordingPublisher) PublishPlanned(ev *event.PlannedEvent) error {
	p.published = append(p.published, ev)
	return p.err
}

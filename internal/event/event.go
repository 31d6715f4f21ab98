// Package event defines the documents the matcher reads and writes: pending
// requests submitted by individual users and the planned events they are
// folded into.
package event

import (
	"fmt"
	"time"
)

const (
	// CollectionPending holds one document per unmatched request.
	CollectionPending = "events"
	// CollectionPlanned holds committed multi-participant events.
	CollectionPlanned = "plannedEvents"

	StatusPlanned = "planned"

	// LocationTBD is used when no contributing event suggested a venue.
	LocationTBD = "Location to be determined"

	// CreatedAtLayout matches the ISO 8601 form written by the clients.
	CreatedAtLayout = "2006-01-02T15:04:05.000Z07:00"

	dateLayout  = "2006-01-02"
	clockLayout = "15:04"
)

// Location is where the requester wants to meet. Either coordinate may be
// missing, in which case the event never matches.
type Location struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Address   string   `json:"address"`
}

// HasCoordinates reports whether both latitude and longitude are set.
func (l Location) HasCoordinates() bool {
	return l.Latitude != nil && l.Longitude != nil
}

// Coordinates builds a Location from a latitude/longitude pair.
func Coordinates(lat, lng float64, address string) Location {
	return Location{Latitude: &lat, Longitude: &lng, Address: address}
}

// TimeSlot is a half-open availability window [StartTime, EndTime) on Date.
type TimeSlot struct {
	Date      string `json:"date"`      // YYYY-MM-DD
	StartTime string `json:"startTime"` // HH:MM
	EndTime   string `json:"endTime"`   // HH:MM
}

// Bounds returns the slot's start and end as minutes since midnight.
func (s TimeSlot) Bounds() (start, end int, err error) {
	if start, err = ClockMinutes(s.StartTime); err != nil {
		return 0, 0, err
	}
	if end, err = ClockMinutes(s.EndTime); err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// PendingEvent is a single user's request to do an activity.
type PendingEvent struct {
	ID                string     `json:"id,omitempty"`
	Topic             string     `json:"topic"`
	GroupSize         int        `json:"groupSize"`
	ScheduledTimes    []TimeSlot `json:"scheduledTimes"`
	Location          Location   `json:"location"`
	SuggestedLocation string     `json:"suggestedLocation,omitempty"`
	CreatedBy         string     `json:"createdBy"`
	CreatedAt         string     `json:"createdAt"`
	BasedOnSuggestion string     `json:"basedOnSuggestion,omitempty"`

	// Version is the store revision the event was read at. Consuming the
	// event is conditional on it being unchanged.
	Version int64 `json:"-"`
}

// Matchable reports whether the event carries enough data to take part in
// matching.
func (e PendingEvent) Matchable() bool {
	return e.Location.HasCoordinates() && len(e.ScheduledTimes) > 0
}

// OverlapSlot is a window in which every event of a group is available.
type OverlapSlot struct {
	Date      string `json:"date"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	Duration  int    `json:"duration"` // minutes
}

// MeetingTime is the slot picked for a planned event. The end time is not
// persisted.
type MeetingTime struct {
	Date      string `json:"date"`
	StartTime string `json:"startTime"`
	Duration  int    `json:"duration"` // minutes
}

// PlannedEvent is the committed result of a successful match.
type PlannedEvent struct {
	ID               string       `json:"id,omitempty"`
	Name             string       `json:"name"`
	Topic            string       `json:"topic"`
	City             string       `json:"city"`
	EventLocation    string       `json:"eventLocation"`
	Participants     []string     `json:"participants"`
	ParticipantCount int          `json:"participantCount"`
	OriginalEvents   []string     `json:"originalEvents"`
	MeetingTime      *MeetingTime `json:"meetingTime"`
	CreatedAt        string       `json:"createdAt"`
	Status           string       `json:"status"`
}

// GroupName derives a planned event's display name from its topic.
func GroupName(topic string) string {
	return topic + " Group"
}

// ClockMinutes converts "HH:MM" to minutes since midnight.
func ClockMinutes(hhmm string) (int, error) {
	t, err := time.Parse(clockLayout, hhmm)
	if err != nil {
		return 0, fmt.Errorf("event: invalid time %q: %w", hhmm, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// FormatClock converts minutes since midnight back to "HH:MM".
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// ParseDate parses a "YYYY-MM-DD" slot date in UTC.
func ParseDate(date string) (time.Time, error) {
	d, err := time.Parse(dateLayout, date)
	if err != nil {
		return time.Time{}, fmt.Errorf("event: invalid date %q: %w", date, err)
	}
	return d, nil
}

// Timestamp formats t the way createdAt fields are stored.
func Timestamp(t time.Time) string {
	return t.UTC().Format(CreatedAtLayout)
}

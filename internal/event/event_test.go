package event

import (
	"errors"
	"testing"
	"time"
)

func validEvent() PendingEvent {
	return PendingEvent{
		Topic:          "Study Group",
		GroupSize:      4,
		ScheduledTimes: []TimeSlot{{Date: "2024-06-01", StartTime: "10:00", EndTime: "12:00"}},
		Location:       Coordinates(40.0, -74.0, "Library"),
		CreatedBy:      "alice",
	}
}

func TestValidate_Accepts(t *testing.T) {
	if err := validEvent().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Missing coordinates are stored, just never matched.
	ev := validEvent()
	ev.Location = Location{Address: "somewhere"}
	if err := ev.Validate(); err != nil {
		t.Fatalf("missing coordinates should validate, got %v", err)
	}
	if ev.Matchable() {
		t.Error("event without coordinates should not be matchable")
	}
}

func TestValidate_Rejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*PendingEvent)
	}{
		{"empty topic", func(e *PendingEvent) { e.Topic = "   " }},
		{"no owner", func(e *PendingEvent) { e.CreatedBy = "" }},
		{"group of one", func(e *PendingEvent) { e.GroupSize = 1 }},
		{"negative group", func(e *PendingEvent) { e.GroupSize = -3 }},
		{"no slots", func(e *PendingEvent) { e.ScheduledTimes = nil }},
		{"bad date", func(e *PendingEvent) { e.ScheduledTimes[0].Date = "06/01/2024" }},
		{"bad time", func(e *PendingEvent) { e.ScheduledTimes[0].StartTime = "25:00" }},
		{"empty window", func(e *PendingEvent) { e.ScheduledTimes[0].EndTime = "10:00" }},
		{"reversed window", func(e *PendingEvent) { e.ScheduledTimes[0].EndTime = "09:00" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev := validEvent()
			tc.mutate(&ev)
			err := ev.Validate()
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestClockMinutes(t *testing.T) {
	cases := map[string]int{"00:00": 0, "09:30": 570, "14:00": 840, "23:59": 1439}
	for in, want := range cases {
		got, err := ClockMinutes(in)
		if err != nil {
			t.Fatalf("ClockMinutes(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ClockMinutes(%q) = %d, want %d", in, got, want)
		}
		if back := FormatClock(got); back != in {
			t.Errorf("FormatClock(%d) = %q, want %q", got, back, in)
		}
	}
}

func TestTimestamp(t *testing.T) {
	ts := time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC)
	if got := Timestamp(ts); got != "2024-06-01T12:30:00.000Z" {
		t.Errorf("unexpected timestamp %q", got)
	}
}

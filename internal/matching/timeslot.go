package matching

import (
	"sort"
	"time"

	"github.com/huddle/matchmaker/internal/event"
)

const (
	// MinMeetingMinutes is the shortest common window worth meeting in.
	MinMeetingMinutes = 60

	// Scoring weights for SelectOptimalMeetingTime.
	durationWeight  = 40.0
	durationCapMins = 240
	proximityWeight = 30.0
	proximityWindow = 30 // days
	afternoonScore  = 30.0
	daytimeScore    = 20.0
	offHoursScore   = 10.0
	afternoonStart  = 14 * 60
	afternoonEnd    = 18 * 60
	daytimeStart    = 10 * 60
	daytimeEnd      = 20 * 60
)

// slotSpan is a parsed slot: minutes since midnight on a date.
type slotSpan struct {
	date       string
	start, end int
}

func parseSlot(s event.TimeSlot) (slotSpan, bool) {
	start, end, err := s.Bounds()
	if err != nil || start >= end {
		return slotSpan{}, false
	}
	return slotSpan{date: s.Date, start: start, end: end}, true
}

func (s slotSpan) overlap() event.OverlapSlot {
	return event.OverlapSlot{
		Date:      s.date,
		StartTime: event.FormatClock(s.start),
		EndTime:   event.FormatClock(s.end),
		Duration:  s.end - s.start,
	}
}

// intersect returns the shared part of a and b, if any. Slots are half-open,
// so touching slots do not intersect.
func intersect(a, b slotSpan) (slotSpan, bool) {
	if a.date != b.date || !(a.start < b.end && b.start < a.end) {
		return slotSpan{}, false
	}
	return slotSpan{date: a.date, start: max(a.start, b.start), end: min(a.end, b.end)}, true
}

// SlotsOverlap reports whether two slots share any time on the same date.
// Malformed slots never overlap.
func SlotsOverlap(a, b event.TimeSlot) bool {
	sa, okA := parseSlot(a)
	sb, okB := parseSlot(b)
	if !okA || !okB {
		return false
	}
	_, ok := intersect(sa, sb)
	return ok
}

// PairwiseOverlaps returns every window shared by one slot of a and one slot
// of b.
func PairwiseOverlaps(a, b event.PendingEvent) []event.OverlapSlot {
	var out []event.OverlapSlot
	for _, span := range overlapSpans(spans(a.ScheduledTimes), spans(b.ScheduledTimes)) {
		out = append(out, span.overlap())
	}
	return out
}

// CommonAvailableTimes returns the windows in which every event is
// available, deduplicated and sorted by date then start time. A single
// event yields its own slots; no events yield nothing.
func CommonAvailableTimes(events []event.PendingEvent) []event.OverlapSlot {
	switch len(events) {
	case 0:
		return nil
	case 1:
		var out []event.OverlapSlot
		for _, s := range spans(events[0].ScheduledTimes) {
			out = append(out, s.overlap())
		}
		return out
	}

	common := spans(events[0].ScheduledTimes)
	for _, e := range events[1:] {
		common = dedupe(overlapSpans(common, spans(e.ScheduledTimes)))
		if len(common) == 0 {
			return nil
		}
	}

	sort.Slice(common, func(i, j int) bool {
		if common[i].date != common[j].date {
			return common[i].date < common[j].date
		}
		if common[i].start != common[j].start {
			return common[i].start < common[j].start
		}
		return common[i].end < common[j].end
	})

	out := make([]event.OverlapSlot, len(common))
	for i, s := range common {
		out[i] = s.overlap()
	}
	return out
}

// HasTimeCompatibility reports whether the events share a window of at least
// MinMeetingMinutes. Fewer than two events are trivially compatible.
func HasTimeCompatibility(events []event.PendingEvent) bool {
	if len(events) < 2 {
		return true
	}
	for _, s := range CommonAvailableTimes(events) {
		if s.Duration >= MinMeetingMinutes {
			return true
		}
	}
	return false
}

func spans(slots []event.TimeSlot) []slotSpan {
	out := make([]slotSpan, 0, len(slots))
	for _, s := range slots {
		if span, ok := parseSlot(s); ok {
			out = append(out, span)
		}
	}
	return out
}

func overlapSpans(a, b []slotSpan) []slotSpan {
	var out []slotSpan
	for _, x := range a {
		for _, y := range b {
			if s, ok := intersect(x, y); ok {
				out = append(out, s)
			}
		}
	}
	return out
}

func dedupe(in []slotSpan) []slotSpan {
	seen := make(map[slotSpan]struct{}, len(in))
	out := in[:0]
	for _, s := range in {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Resolver picks meeting times relative to a clock.
type Resolver struct {
	now func() time.Time
}

// NewResolver creates a Resolver. A nil clock means time.Now.
func NewResolver(now func() time.Time) *Resolver {
	if now == nil {
		now = time.Now
	}
	return &Resolver{now: now}
}

// SelectOptimalMeetingTime scores every common window of at least
// MinMeetingMinutes and returns the best one, or nil if none qualifies.
//
// Longer windows score higher up to four hours; windows in the next 30 days
// score higher the sooner they are; afternoon starts beat daytime starts,
// which beat everything else. Ties go to the earlier entry of common.
func (r *Resolver) SelectOptimalMeetingTime(common []event.OverlapSlot) *event.MeetingTime {
	today := r.now().UTC().Truncate(24 * time.Hour)

	var (
		best      *event.MeetingTime
		bestScore float64
	)
	for _, s := range common {
		if s.Duration < MinMeetingMinutes {
			continue
		}
		start, err := event.ClockMinutes(s.StartTime)
		if err != nil {
			continue
		}

		score := float64(min(s.Duration, durationCapMins)) / durationCapMins * durationWeight

		if date, err := event.ParseDate(s.Date); err == nil {
			days := int(date.Sub(today) / (24 * time.Hour))
			if days >= 0 && days <= proximityWindow {
				score += float64(proximityWindow-days) / proximityWindow * proximityWeight
			}
		}

		switch {
		case start >= afternoonStart && start <= afternoonEnd:
			score += afternoonScore
		case start >= daytimeStart && start <= daytimeEnd:
			score += daytimeScore
		default:
			score += offHoursScore
		}

		if best == nil || score > bestScore {
			best = &event.MeetingTime{Date: s.Date, StartTime: s.StartTime, Duration: s.Duration}
			bestScore = score
		}
	}
	return best
}

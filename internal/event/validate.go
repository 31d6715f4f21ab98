package event

import (
	"errors"
	"fmt"
	"strings"
)

// MinGroupSize is the smallest group anyone can ask for, self included.
const MinGroupSize = 2

var (
	// ErrInvalidInput marks a submission the matcher refuses to store.
	ErrInvalidInput = errors.New("invalid input")

	// ErrForbidden is returned when a user acts on another user's event.
	ErrForbidden = errors.New("forbidden")
)

// Validate checks a submission before it is stored. Missing coordinates are
// allowed: such events are kept but never match.
func (e PendingEvent) Validate() error {
	if strings.TrimSpace(e.Topic) == "" {
		return fmt.Errorf("%w: topic is empty", ErrInvalidInput)
	}
	if strings.TrimSpace(e.CreatedBy) == "" {
		return fmt.Errorf("%w: createdBy is empty", ErrInvalidInput)
	}
	if e.GroupSize < MinGroupSize {
		return fmt.Errorf("%w: groupSize %d is below %d", ErrInvalidInput, e.GroupSize, MinGroupSize)
	}
	return ValidateSlots(e.ScheduledTimes)
}

// ValidateSlots checks that at least one slot is given and each one is a
// well-formed, non-empty window.
func ValidateSlots(slots []TimeSlot) error {
	if len(slots) == 0 {
		return fmt.Errorf("%w: scheduledTimes is empty", ErrInvalidInput)
	}
	for i, s := range slots {
		if _, err := ParseDate(s.Date); err != nil {
			return fmt.Errorf("%w: scheduledTimes[%d]: %v", ErrInvalidInput, i, err)
		}
		start, end, err := s.Bounds()
		if err != nil {
			return fmt.Errorf("%w: scheduledTimes[%d]: %v", ErrInvalidInput, i, err)
		}
		if start >= end {
			return fmt.Errorf("%w: scheduledTimes[%d]: start %s is not before end %s",
				ErrInvalidInput, i, s.StartTime, s.EndTime)
		}
	}
	return nil
}

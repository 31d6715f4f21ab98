package matching

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/huddle/matchmaker/internal/event"
	"github.com/huddle/matchmaker/internal/geo"
	"github.com/huddle/matchmaker/internal/store"
)

const (
	// SuggestionRadiusMiles bounds how far away a suggested event may be.
	SuggestionRadiusMiles = 25.0

	// MaxSuggestions is how many suggestions are returned at most.
	MaxSuggestions = 3
)

// RankSuggestions picks the events currentUser could join from near
// userLocation, closest first and, at equal distance, those with fewer spots
// left. Events derived from an earlier suggestion are never offered. Every
// event is assumed to have exactly its creator on board.
func RankSuggestions(currentUser string, userLocation *event.Location, events []event.PendingEvent) []event.Suggestion {
	if userLocation == nil || !userLocation.HasCoordinates() {
		return nil
	}
	lat, lng := *userLocation.Latitude, *userLocation.Longitude

	var out []event.Suggestion
	for _, ev := range events {
		if ev.CreatedBy == currentUser || ev.BasedOnSuggestion != "" || !ev.Location.HasCoordinates() {
			continue
		}
		d := geo.Distance(lat, lng, *ev.Location.Latitude, *ev.Location.Longitude)
		if d > SuggestionRadiusMiles {
			continue
		}

		const currentParticipants = 1
		spots := ev.GroupSize - currentParticipants
		if spots <= 0 {
			continue
		}

		s := event.Suggestion{
			PendingEvent:        ev,
			Distance:            math.Round(d*10) / 10,
			CurrentParticipants: currentParticipants,
			SpotsLeft:           spots,
		}
		if len(ev.ScheduledTimes) > 0 {
			first := ev.ScheduledTimes[0]
			s.OptimalTime = &first
		}
		out = append(out, s)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].SpotsLeft < out[j].SpotsLeft
	})
	if len(out) > MaxSuggestions {
		out = out[:MaxSuggestions]
	}
	return out
}

// Suggestions ranks other users' pending events for user at loc.
func (e *Engine) Suggestions(ctx context.Context, user string, loc *event.Location) ([]event.Suggestion, error) {
	events, err := e.pendingWhere(ctx, "createdBy", store.OpNotEqual, user)
	if err != nil {
		return nil, err
	}
	return RankSuggestions(user, loc, events), nil
}

// JoinSuggestion files a pending event for user modelled on suggestion but
// with user's own times, then tries to match it.
func (e *Engine) JoinSuggestion(ctx context.Context, suggestion event.Suggestion, user string, selectedTimes []event.TimeSlot) (string, bool, error) {
	if suggestion.ID == "" {
		return "", false, fmt.Errorf("%w: suggestion has no id", event.ErrInvalidInput)
	}
	ev := event.PendingEvent{
		Topic:             suggestion.Topic,
		GroupSize:         suggestion.GroupSize,
		ScheduledTimes:    selectedTimes,
		Location:          suggestion.Location,
		SuggestedLocation: suggestion.SuggestedLocation,
		CreatedBy:         user,
		BasedOnSuggestion: suggestion.ID,
	}
	return e.Submit(ctx, ev)
}

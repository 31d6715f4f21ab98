package matching

import (
	"context"
	"reflect"
	"testing"

	"github.com/huddle/matchmaker/internal/event"
	"github.com/huddle/matchmaker/internal/store"
)

func TestRankSuggestions(t *testing.T) {
	user := event.Coordinates(baseLat, baseLng, "")
	slot1 := slot("2024-06-01", "10:00", "12:00")
	slot2 := slot("2024-06-02", "10:00", "12:00")

	derived := withID(pending("frank", "chess", 4, baseLat, baseLng, slot1), "derived")
	derived.BasedOnSuggestion = "orig"
	noCoords := withID(pending("gina", "chess", 4, 0, 0, slot1), "nocoords")
	noCoords.Location = event.Location{Address: "x"}

	events := []event.PendingEvent{
		withID(pending("bob", "chess", 6, baseLat+0.10, baseLng, slot2, slot1), "farther"),
		withID(pending("carol", "chess", 5, baseLat+0.02, baseLng, slot1), "near-5"),
		withID(pending("dave", "go", 3, baseLat+0.02, baseLng, slot1), "near-3"),
		withID(pending("erin", "go", 2, baseLat+0.20, baseLng, slot1), "farthest"),
		withID(pending("me", "chess", 4, baseLat, baseLng, slot1), "mine"),
		withID(pending("hank", "chess", 1, baseLat, baseLng, slot1), "full"),
		withID(pending("ivy", "chess", 4, baseLat+0.45, baseLng, slot1), "too-far"),
		derived,
		noCoords,
	}

	got := RankSuggestions("me", &user, events)
	want := []string{"near-3", "near-5", "farther"}
	if len(got) != len(want) {
		t.Fatalf("expected %d suggestions, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("suggestion %d: expected %s, got %s", i, id, got[i].ID)
		}
	}

	first := got[0]
	if first.SpotsLeft != 2 || first.CurrentParticipants != 1 {
		t.Errorf("unexpected spots: %+v", first)
	}
	if first.Distance != 1.4 {
		t.Errorf("expected distance rounded to 1.4, got %v", first.Distance)
	}
	if got[2].OptimalTime == nil || *got[2].OptimalTime != slot2 {
		t.Errorf("expected the first scheduled slot as optimal time, got %+v", got[2].OptimalTime)
	}

	again := RankSuggestions("me", &user, events)
	if !reflect.DeepEqual(got, again) {
		t.Error("ranking the same input twice should give the same list")
	}
}

func TestRankSuggestions_NoUserLocation(t *testing.T) {
	events := []event.PendingEvent{withID(pending("bob", "chess", 4, baseLat, baseLng), "x")}
	if got := RankSuggestions("me", nil, events); len(got) != 0 {
		t.Errorf("expected no suggestions without a location, got %d", len(got))
	}
	partial := event.Location{Address: "home"}
	if got := RankSuggestions("me", &partial, events); len(got) != 0 {
		t.Errorf("expected no suggestions without coordinates, got %d", len(got))
	}
}

func TestEngine_JoinSuggestion(t *testing.T) {
	st := store.NewMemory()
	eng := NewEngine(st, nil, testConfig())
	ctx := context.Background()

	bob := pending("bob", "chess", 2, baseLat, baseLng, slot("2024-06-01", "14:00", "16:00"))
	bob.SuggestedLocation = "Chess Forum"
	if _, _, err := eng.Submit(ctx, bob); err != nil {
		t.Fatalf("submit: %v", err)
	}

	here := event.Coordinates(baseLat+0.01, baseLng, "")
	suggestions, err := eng.Suggestions(ctx, "alice", &here)
	if err != nil || len(suggestions) != 1 {
		t.Fatalf("Suggestions: %v (%d)", err, len(suggestions))
	}

	if _, _, err := eng.JoinSuggestion(ctx, event.Suggestion{}, "alice", nil); err == nil {
		t.Error("expected an error for a suggestion without an id")
	}

	id, matched, err := eng.JoinSuggestion(ctx, suggestions[0], "alice",
		[]event.TimeSlot{slot("2024-06-01", "15:00", "17:00")})
	if err != nil {
		t.Fatalf("JoinSuggestion: %v", err)
	}
	if id == "" || !matched {
		t.Fatalf("expected the joined event to match, id=%q matched=%v", id, matched)
	}

	planned, _ := eng.UserPlannedEvents(ctx, "alice")
	if len(planned) != 1 {
		t.Fatalf("expected one planned event, got %d", len(planned))
	}
	if planned[0].EventLocation != "Chess Forum" {
		t.Errorf("expected the suggested venue, got %q", planned[0].EventLocation)
	}
}

func TestEngine_JoinSuggestionValidatesTimes(t *testing.T) {
	eng := NewEngine(store.NewMemory(), nil, testConfig())
	s := event.Suggestion{PendingEvent: withID(pending("bob", "chess", 2, baseLat, baseLng), "orig")}

	if _, _, err := eng.JoinSuggestion(context.Background(), s, "alice", nil); err == nil {
		t.Fatal("expected an error when no times are selected")
	}
}

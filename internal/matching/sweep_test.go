package matching

import (
	"context"
	"testing"
	"time"

	"github.com/huddle/matchmaker/internal/event"
	"github.com/huddle/matchmaker/internal/store"
)

func TestEngine_Sweep(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	afternoon := slot("2024-06-01", "14:00", "16:00")

	// Stored directly so nothing has been matched yet.
	for _, ev := range []event.PendingEvent{
		pending("alice", "chess", 2, baseLat, baseLng, afternoon),
		pending("bob", "Chess", 2, baseLat, baseLng, afternoon),
		pending("carol", "soccer", 2, baseLat, baseLng, afternoon),
		pending("dave", "chess ", 2, baseLat, baseLng, afternoon),
	} {
		if _, err := st.Insert(ctx, event.CollectionPending, ev); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	eng := NewEngine(st, nil, testConfig())
	created, err := eng.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if created != 1 {
		t.Fatalf("expected one planned event, got %d", created)
	}

	planned, _ := eng.UserPlannedEvents(ctx, "alice")
	if len(planned) != 1 || planned[0].Participants[1] != "bob" {
		t.Fatalf("expected alice and bob to be grouped, got %+v", planned)
	}
	if n := st.Len(event.CollectionPending); n != 2 {
		t.Errorf("expected carol and dave to stay pending, got %d", n)
	}

	created, err = eng.Sweep(ctx)
	if err != nil || created != 0 {
		t.Errorf("second sweep: expected nothing new, got %d (%v)", created, err)
	}
}

func TestEngine_SweepStoreFailure(t *testing.T) {
	st := store.NewMemory()
	st.FailNext = context.DeadlineExceeded
	if _, err := NewEngine(st, nil, testConfig()).Sweep(context.Background()); err == nil {
		t.Fatal("expected the load failure to be returned")
	}
}

func TestEngine_StartSweepStopsOnCancel(t *testing.T) {
	eng := NewEngine(store.NewMemory(), nil, testConfig())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		eng.StartSweep(ctx, 5*time.Millisecond)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweep loop did not stop after cancel")
	}
}

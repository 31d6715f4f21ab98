package matching

import (
	"context"
	"errors"
	"time"

	"github.com/huddle/matchmaker/internal/event"
	"github.com/huddle/matchmaker/internal/metrics"
	"github.com/huddle/matchmaker/internal/store"
)

// Sweep re-runs matching over every pending event, for events that were
// submitted while no partner existed yet or whose earlier attempt failed.
// Events are bucketed by normalized topic and each event is matched against
// the not yet consumed events of its bucket. It returns the number of
// planned events created.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	all, err := e.pendingWhere(ctx, "createdBy", store.OpNotEqual, "")
	if err != nil {
		return 0, err
	}
	defer metrics.SweepRuns.Inc()

	var order []string
	buckets := make(map[string][]event.PendingEvent)
	for _, ev := range all {
		topic := NormalizeTopic(ev.Topic)
		if _, ok := buckets[topic]; !ok {
			order = append(order, topic)
		}
		buckets[topic] = append(buckets[topic], ev)
	}

	created := 0
	for _, topic := range order {
		events := buckets[topic]
		if len(events) < 2 {
			continue
		}

		consumed := make(map[string]bool)
		for _, ev := range events {
			if consumed[ev.ID] {
				continue
			}
			var pool []event.PendingEvent
			for _, other := range events {
				if other.ID != ev.ID && !consumed[other.ID] {
					pool = append(pool, other)
				}
			}

			planned, err := e.Match(ctx, ev, pool)
			if errors.Is(err, store.ErrConflict) {
				// Someone else consumed part of the group; the next sweep
				// sees the new state.
				e.log.Warn().Err(err).Str("event_id", ev.ID).Msg("sweep: commit conflict")
				continue
			}
			if err != nil {
				return created, err
			}
			if planned == nil {
				continue
			}
			created++
			for _, id := range planned.OriginalEvents {
				consumed[id] = true
			}
		}
	}

	if created > 0 {
		e.log.Info().Int("planned", created).Msg("sweep: created planned events")
	}
	return created, nil
}

// StartSweep runs Sweep every interval until ctx is cancelled.
func (e *Engine) StartSweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.log.Info().Msg("sweep loop stopped")
			return
		case <-ticker.C:
			if _, err := e.Sweep(ctx); err != nil {
				e.log.Error().Err(err).Msg("sweep")
			}
		}
	}
}

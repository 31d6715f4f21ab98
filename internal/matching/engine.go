// Package matching folds independently submitted pending events into planned
// group events. It filters candidates by topic and distance, negotiates a
// group size everyone accepts, checks that the group shares at least an
// hour, and commits the planned event atomically with the consumption of the
// pending events it was built from.
package matching

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/huddle/matchmaker/internal/event"
	"github.com/huddle/matchmaker/internal/geo"
	"github.com/huddle/matchmaker/internal/logging"
	"github.com/huddle/matchmaker/internal/metrics"
	"github.com/huddle/matchmaker/internal/store"
)

// DefaultMaxDistanceMiles is how far apart two events may be and still match.
const DefaultMaxDistanceMiles = 25.0

// Config holds the engine's tunables.
type Config struct {
	MaxDistanceMiles   float64
	MaxConflictRetries int              // re-searches after a lost commit race
	Seed               uint64           // venue pick seed; 0 seeds randomly
	Now                func() time.Time // nil means time.Now
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		MaxDistanceMiles:   DefaultMaxDistanceMiles,
		MaxConflictRetries: 3,
		Now:                time.Now,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxDistanceMiles <= 0 {
		c.MaxDistanceMiles = DefaultMaxDistanceMiles
	}
	if c.MaxConflictRetries < 0 {
		c.MaxConflictRetries = 0
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Engine runs matching against a document store.
type Engine struct {
	store   store.Store
	planner *Planner
	cfg     Config
	log     zerolog.Logger
}

// NewEngine creates an Engine. pub may be nil.
func NewEngine(st store.Store, pub Publisher, cfg Config) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		store:   st,
		planner: NewPlanner(st, pub, cfg),
		cfg:     cfg,
		log:     logging.New("matcher"),
	}
}

// FindCandidates returns the events of existing that could join newEvent:
// another user's event on a matching topic within MaxDistanceMiles. Events
// without coordinates never qualify.
func (e *Engine) FindCandidates(newEvent event.PendingEvent, existing []event.PendingEvent) []event.PendingEvent {
	if !newEvent.Location.HasCoordinates() {
		return nil
	}
	lat, lng := *newEvent.Location.Latitude, *newEvent.Location.Longitude

	var out []event.PendingEvent
	for _, c := range existing {
		if c.CreatedBy == newEvent.CreatedBy || (c.ID != "" && c.ID == newEvent.ID) {
			continue
		}
		if !c.Location.HasCoordinates() || !TopicsMatch(newEvent.Topic, c.Topic) {
			continue
		}
		if geo.Distance(lat, lng, *c.Location.Latitude, *c.Location.Longitude) <= e.cfg.MaxDistanceMiles {
			out = append(out, c)
		}
	}
	return out
}

// Match searches existing for a group around newEvent and commits it. It
// returns nil without error when no viable group exists. Commit errors,
// including store.ErrConflict, are returned as is.
func (e *Engine) Match(ctx context.Context, newEvent event.PendingEvent, existing []event.PendingEvent) (*event.PlannedEvent, error) {
	candidates := e.FindCandidates(newEvent, existing)
	if len(candidates) == 0 {
		return nil, nil
	}

	group := FindCompatibleGroup(append([]event.PendingEvent{newEvent}, candidates...))
	if len(group) < 2 {
		return nil, nil
	}
	return e.planner.Create(ctx, group)
}

// CheckForMatches loads other users' pending events and tries to fold
// newEvent into a planned event. It reports whether one was created.
//
// Failures are logged and reported as no match so the submitted event stays
// pending. A commit that loses a race with another match is retried against
// fresh candidates up to MaxConflictRetries times.
func (e *Engine) CheckForMatches(ctx context.Context, newEvent event.PendingEvent) bool {
	start := time.Now()
	defer func() { metrics.MatchDuration.Observe(time.Since(start).Seconds()) }()

	log := e.log.With().Str("event_id", newEvent.ID).Str("topic", newEvent.Topic).Logger()

	for attempt := 0; attempt <= e.cfg.MaxConflictRetries; attempt++ {
		existing, err := e.pendingWhere(ctx, "createdBy", store.OpNotEqual, newEvent.CreatedBy)
		if err != nil {
			metrics.MatchAttempts.WithLabelValues(metrics.ResultError).Inc()
			log.Error().Err(err).Msg("load candidates")
			return false
		}

		planned, err := e.Match(ctx, newEvent, existing)
		switch {
		case errors.Is(err, store.ErrConflict):
			metrics.MatchAttempts.WithLabelValues(metrics.ResultConflict).Inc()
			log.Warn().Err(err).Int("attempt", attempt+1).Msg("commit conflict, retrying")
			continue
		case err != nil:
			metrics.MatchAttempts.WithLabelValues(metrics.ResultError).Inc()
			log.Error().Err(err).Msg("match")
			return false
		case planned == nil:
			metrics.MatchAttempts.WithLabelValues(metrics.ResultNoMatch).Inc()
			log.Debug().Int("candidates", len(existing)).Msg("no match")
			return false
		default:
			metrics.MatchAttempts.WithLabelValues(metrics.ResultMatched).Inc()
			return true
		}
	}

	log.Warn().Int("retries", e.cfg.MaxConflictRetries).Msg("giving up after repeated conflicts")
	return false
}

// Submit validates and stores a new pending event for ev.CreatedBy, then
// tries to match it. It returns the stored event's id.
func (e *Engine) Submit(ctx context.Context, ev event.PendingEvent) (string, bool, error) {
	if err := ev.Validate(); err != nil {
		return "", false, err
	}
	ev.ID = ""
	ev.Version = 0
	ev.CreatedAt = event.Timestamp(e.cfg.Now())

	id, err := e.store.Insert(ctx, event.CollectionPending, ev)
	if err != nil {
		return "", false, fmt.Errorf("matching: store pending event: %w", err)
	}
	ev.ID = id
	e.log.Info().Str("event_id", id).Str("user", ev.CreatedBy).Str("topic", ev.Topic).Msg("event submitted")

	stored, err := e.reload(ctx, ev)
	if err != nil {
		e.log.Error().Err(err).Str("event_id", id).Msg("reload submitted event")
		return id, false, nil
	}
	if stored == nil {
		// Already folded into someone else's match.
		return id, false, nil
	}
	return id, e.CheckForMatches(ctx, *stored), nil
}

// UserPendingEvents lists user's unmatched events.
func (e *Engine) UserPendingEvents(ctx context.Context, user string) ([]event.PendingEvent, error) {
	return e.pendingWhere(ctx, "createdBy", store.OpEqual, user)
}

// UserPlannedEvents lists the planned events user takes part in.
func (e *Engine) UserPlannedEvents(ctx context.Context, user string) ([]event.PlannedEvent, error) {
	docs, err := e.store.QueryByField(ctx, event.CollectionPlanned, "participants", store.OpArrayContains, user)
	if err != nil {
		return nil, fmt.Errorf("matching: load planned events: %w", err)
	}
	out := make([]event.PlannedEvent, 0, len(docs))
	for _, d := range docs {
		var p event.PlannedEvent
		if err := d.Decode(&p); err != nil {
			e.log.Warn().Err(err).Str("planned_id", d.ID).Msg("skipping malformed planned event")
			continue
		}
		p.ID = d.ID
		out = append(out, p)
	}
	return out, nil
}

// DeletePending withdraws one of user's pending events. Another user's event
// yields event.ErrForbidden and an unknown id store.ErrNotFound.
func (e *Engine) DeletePending(ctx context.Context, user, id string) error {
	own, err := e.UserPendingEvents(ctx, user)
	if err != nil {
		return err
	}
	for _, ev := range own {
		if ev.ID == id {
			if err := e.store.DeleteByID(ctx, event.CollectionPending, id); err != nil {
				return fmt.Errorf("matching: delete pending event: %w", err)
			}
			e.log.Info().Str("event_id", id).Str("user", user).Msg("event withdrawn")
			return nil
		}
	}

	others, err := e.pendingWhere(ctx, "createdBy", store.OpNotEqual, user)
	if err != nil {
		return err
	}
	for _, ev := range others {
		if ev.ID == id {
			return fmt.Errorf("%w: event %s belongs to another user", event.ErrForbidden, id)
		}
	}
	return fmt.Errorf("matching: delete pending event %s: %w", id, store.ErrNotFound)
}

// pendingWhere queries the pending collection and decodes the result.
// Documents that fail to decode are skipped.
func (e *Engine) pendingWhere(ctx context.Context, field string, op store.Operator, value any) ([]event.PendingEvent, error) {
	docs, err := e.store.QueryByField(ctx, event.CollectionPending, field, op, value)
	if err != nil {
		return nil, fmt.Errorf("matching: load pending events: %w", err)
	}
	out := make([]event.PendingEvent, 0, len(docs))
	for _, d := range docs {
		var ev event.PendingEvent
		if err := d.Decode(&ev); err != nil {
			e.log.Warn().Err(err).Str("event_id", d.ID).Msg("skipping malformed pending event")
			continue
		}
		ev.ID = d.ID
		ev.Version = d.Version
		out = append(out, ev)
	}
	return out, nil
}

// reload fetches ev back from the store to learn its version. It returns nil
// if the event is no longer pending.
func (e *Engine) reload(ctx context.Context, ev event.PendingEvent) (*event.PendingEvent, error) {
	own, err := e.pendingWhere(ctx, "createdBy", store.OpEqual, ev.CreatedBy)
	if err != nil {
		return nil, err
	}
	for i := range own {
		if own[i].ID == ev.ID {
			return &own[i], nil
		}
	}
	return nil, nil
}

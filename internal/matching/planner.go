package matching

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/huddle/matchmaker/internal/event"
	"github.com/huddle/matchmaker/internal/geo"
	"github.com/huddle/matchmaker/internal/logging"
	"github.com/huddle/matchmaker/internal/metrics"
	"github.com/huddle/matchmaker/internal/store"
)

// Publisher is told about every committed planned event.
type Publisher interface {
	PublishPlanned(ev *event.PlannedEvent) error
}

// Planner turns a matched group into a planned event and commits it
// together with the consumption of the group's pending events.
type Planner struct {
	store     store.Store
	publisher Publisher
	resolver  *Resolver
	now       func() time.Time
	log       zerolog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewPlanner creates a Planner. pub may be nil.
func NewPlanner(st store.Store, pub Publisher, cfg Config) *Planner {
	cfg = cfg.withDefaults()
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Planner{
		store:     st,
		publisher: pub,
		resolver:  NewResolver(cfg.Now),
		now:       cfg.Now,
		log:       logging.New("planner"),
		rng:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Create builds the planned event for matched and commits it in one atomic
// batch with the deletion of every matched pending event that has an id.
// Events read from the store are consumed only if still at the version they
// were read at, so a batch racing another commit fails with
// store.ErrConflict and writes nothing.
func (p *Planner) Create(ctx context.Context, matched []event.PendingEvent) (*event.PlannedEvent, error) {
	if len(matched) == 0 {
		return nil, errors.New("matching: create planned event: empty group")
	}
	first := matched[0]

	planned := &event.PlannedEvent{
		ID:               store.NewID(),
		Name:             event.GroupName(first.Topic),
		Topic:            first.Topic,
		EventLocation:    p.pickLocation(matched),
		ParticipantCount: len(matched),
		MeetingTime:      p.resolver.SelectOptimalMeetingTime(CommonAvailableTimes(matched)),
		CreatedAt:        event.Timestamp(p.now()),
		Status:           event.StatusPlanned,
	}
	if first.Location.HasCoordinates() {
		planned.City = geo.CityLabel(*first.Location.Latitude, *first.Location.Longitude)
	}

	mutations := make([]store.Mutation, 0, len(matched)+1)
	for _, e := range matched {
		planned.Participants = append(planned.Participants, e.CreatedBy)
		if e.ID == "" {
			continue
		}
		planned.OriginalEvents = append(planned.OriginalEvents, e.ID)
		if e.Version != 0 {
			mutations = append(mutations, store.Consume(event.CollectionPending, e.ID, e.Version))
		} else {
			mutations = append(mutations, store.Delete(event.CollectionPending, e.ID))
		}
	}

	body := *planned
	body.ID = ""
	mutations = append([]store.Mutation{store.Insert(event.CollectionPlanned, planned.ID, body)}, mutations...)

	if err := p.store.AtomicBatch(ctx, mutations); err != nil {
		return nil, fmt.Errorf("matching: commit planned event: %w", err)
	}

	metrics.PlannedEventsCreated.Inc()
	metrics.GroupSize.Observe(float64(planned.ParticipantCount))
	p.log.Info().
		Str("planned_id", planned.ID).
		Str("topic", planned.Topic).
		Strs("participants", planned.Participants).
		Msg("planned event created")

	if p.publisher != nil {
		if err := p.publisher.PublishPlanned(planned); err != nil {
			p.log.Error().Err(err).Str("planned_id", planned.ID).Msg("publish planned event")
		}
	}
	return planned, nil
}

// pickLocation chooses uniformly among the group's non-blank venue
// suggestions.
func (p *Planner) pickLocation(matched []event.PendingEvent) string {
	var options []string
	for _, e := range matched {
		if strings.TrimSpace(e.SuggestedLocation) != "" {
			options = append(options, e.SuggestedLocation)
		}
	}
	if len(options) == 0 {
		return event.LocationTBD
	}

	p.mu.Lock()
	i := p.rng.IntN(len(options))
	p.mu.Unlock()
	return options[i]
}

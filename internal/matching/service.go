package matching

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/huddle/matchmaker/internal/event"
	"github.com/huddle/matchmaker/internal/logging"
	"github.com/huddle/matchmaker/internal/messaging"
	"github.com/huddle/matchmaker/internal/metrics"
	"github.com/huddle/matchmaker/internal/protocol"
	"github.com/huddle/matchmaker/internal/ratelimit"
	"github.com/huddle/matchmaker/internal/store"
)

const requestTimeout = 10 * time.Second

// RateLimiter throttles submissions per user.
type RateLimiter interface {
	Allow(ctx context.Context, identifier string, rule ratelimit.Rule) (bool, error)
	RetryAfter(ctx context.Context, identifier string, rule ratelimit.Rule) (time.Duration, error)
}

// ServiceConfig holds the request service's settings.
type ServiceConfig struct {
	SweepInterval time.Duration // 0 disables the background sweep
	SubmitRule    ratelimit.Rule
}

// DefaultServiceConfig returns sensible defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{SubmitRule: ratelimit.RuleSubmit}
}

// Service answers events.request over NATS and runs the periodic sweep.
type Service struct {
	engine  *Engine
	nats    *messaging.NATSClient
	limiter RateLimiter
	cfg     ServiceConfig
	log     zerolog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewService creates a request service. limiter may be nil.
func NewService(engine *Engine, nats *messaging.NATSClient, limiter RateLimiter, cfg ServiceConfig) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		engine:  engine,
		nats:    nats,
		limiter: limiter,
		cfg:     cfg,
		log:     logging.New("service"),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start subscribes to events.request and starts the sweep loop.
func (s *Service) Start() error {
	if err := s.nats.SubscribeEventsRequest(s.HandleRequest); err != nil {
		return err
	}
	if s.cfg.SweepInterval > 0 {
		go s.engine.StartSweep(s.ctx, s.cfg.SweepInterval)
	}

	s.log.Info().Dur("sweep_interval", s.cfg.SweepInterval).Msg("service started")
	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.cancel()
	s.log.Info().Msg("service stopped")
}

// HandleRequest decodes one request, runs it and returns the encoded reply.
func (s *Service) HandleRequest(data []byte) []byte {
	ctx, cancel := context.WithTimeout(s.ctx, requestTimeout)
	defer cancel()

	msgType, msg, err := protocol.ParseRequest(data)
	if err != nil {
		s.log.Warn().Err(err).Msg("invalid request")
		return protocol.NewError(protocol.CodeBadRequest, err.Error())
	}
	metrics.Requests.WithLabelValues(msgType).Inc()

	var (
		respType string
		payload  interface{}
	)

	switch m := msg.(type) {
	case protocol.SubmitEventMsg:
		if reply := s.throttle(ctx, m.Event.CreatedBy); reply != nil {
			return reply
		}
		id, matched, err := s.engine.Submit(ctx, m.Event)
		if err != nil {
			return s.errorReply(msgType, err)
		}
		respType, payload = protocol.TypeEventSubmitted, protocol.EventSubmittedMsg{EventID: id, Matched: matched}

	case protocol.JoinSuggestionMsg:
		if reply := s.throttle(ctx, m.UserID); reply != nil {
			return reply
		}
		id, matched, err := s.engine.JoinSuggestion(ctx, m.Suggestion, m.UserID, m.SelectedTimes)
		if err != nil {
			return s.errorReply(msgType, err)
		}
		respType, payload = protocol.TypeEventSubmitted, protocol.EventSubmittedMsg{EventID: id, Matched: matched}

	case protocol.DeleteEventMsg:
		if err := s.engine.DeletePending(ctx, m.UserID, m.EventID); err != nil {
			return s.errorReply(msgType, err)
		}
		respType, payload = protocol.TypeEventDeleted, protocol.EventDeletedMsg{EventID: m.EventID}

	case protocol.GetSuggestionsMsg:
		suggestions, err := s.engine.Suggestions(ctx, m.UserID, m.Location)
		if err != nil {
			return s.errorReply(msgType, err)
		}
		if suggestions == nil {
			suggestions = []event.Suggestion{}
		}
		respType, payload = protocol.TypeSuggestions, protocol.SuggestionsMsg{Suggestions: suggestions}

	case protocol.GetPlannedEventsMsg:
		events, err := s.engine.UserPlannedEvents(ctx, m.UserID)
		if err != nil {
			return s.errorReply(msgType, err)
		}
		respType, payload = protocol.TypePlannedEvents, protocol.PlannedEventsMsg{Events: events}

	case protocol.GetPendingEventsMsg:
		events, err := s.engine.UserPendingEvents(ctx, m.UserID)
		if err != nil {
			return s.errorReply(msgType, err)
		}
		respType, payload = protocol.TypePendingEvents, protocol.PendingEventsMsg{Events: events}
	}

	out, err := protocol.NewResponse(respType, payload)
	if err != nil {
		s.log.Error().Err(err).Str("type", respType).Msg("encode response")
		return protocol.NewError(protocol.CodeInternal, "failed to encode response")
	}
	return out
}

// throttle returns a rate_limited reply when user is over the submit limit.
// Limiter failures let the request through.
func (s *Service) throttle(ctx context.Context, user string) []byte {
	if s.limiter == nil || user == "" {
		return nil
	}
	allowed, err := s.limiter.Allow(ctx, user, s.cfg.SubmitRule)
	if err != nil || allowed {
		return nil
	}

	wait, _ := s.limiter.RetryAfter(ctx, user, s.cfg.SubmitRule)
	s.log.Info().Str("user", user).Dur("retry_after", wait).Msg("submission rate limited")
	out, _ := protocol.NewResponse(protocol.TypeRateLimited, protocol.RateLimitedMsg{
		RetryAfter: int(math.Ceil(wait.Seconds())),
	})
	return out
}

func (s *Service) errorReply(msgType string, err error) []byte {
	switch {
	case errors.Is(err, event.ErrInvalidInput):
		return protocol.NewError(protocol.CodeInvalidInput, err.Error())
	case errors.Is(err, event.ErrForbidden):
		return protocol.NewError(protocol.CodeForbidden, err.Error())
	case errors.Is(err, store.ErrNotFound):
		return protocol.NewError(protocol.CodeNotFound, "event not found")
	case errors.Is(err, store.ErrUnavailable):
		s.log.Error().Err(err).Str("type", msgType).Msg("store unavailable")
		return protocol.NewError(protocol.CodeUnavailable, "storage temporarily unavailable")
	default:
		s.log.Error().Err(err).Str("type", msgType).Msg("request failed")
		return protocol.NewError(protocol.CodeInternal, "internal error")
	}
}

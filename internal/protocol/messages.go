// Package protocol defines the request and response payloads exchanged on the
// events.request NATS subject. All messages are serialized as JSON and follow
// a consistent envelope format with a type discriminator.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/huddle/matchmaker/internal/event"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Client -> Matcher request types.
const (
	TypeSubmitEvent      = "submit_event"
	TypeJoinSuggestion   = "join_suggestion"
	TypeDeleteEvent      = "delete_event"
	TypeGetSuggestions   = "get_suggestions"
	TypeGetPlannedEvents = "get_planned_events"
	TypeGetPendingEvents = "get_pending_events"
)

// Matcher -> Client response types.
const (
	TypeEventSubmitted = "event_submitted"
	TypeEventDeleted   = "event_deleted"
	TypeSuggestions    = "suggestions"
	TypePlannedEvents  = "planned_events"
	TypePendingEvents  = "pending_events"
	TypeRateLimited    = "rate_limited"
	TypeError          = "error"
)

// Error codes carried by ErrorMsg.
const (
	CodeBadRequest   = "bad_request"
	CodeInvalidInput = "invalid_input"
	CodeForbidden    = "forbidden"
	CodeNotFound     = "not_found"
	CodeUnavailable  = "unavailable"
	CodeInternal     = "internal"
)

// ---------------------------------------------------------------------------
// Envelope
// ---------------------------------------------------------------------------

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON captures the full raw bytes and extracts only the "type"
// field so that the rest of the payload can be decoded later.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Request structs
// ---------------------------------------------------------------------------

// SubmitEventMsg creates a pending event. The event's createdBy must be set.
type SubmitEventMsg struct {
	Type  string             `json:"type"`
	Event event.PendingEvent `json:"event"`
}

// JoinSuggestionMsg turns a suggestion into the caller's own pending event
// with their chosen times.
type JoinSuggestionMsg struct {
	Type          string           `json:"type"`
	UserID        string           `json:"user_id"`
	Suggestion    event.Suggestion `json:"suggestion"`
	SelectedTimes []event.TimeSlot `json:"selected_times"`
}

// DeleteEventMsg withdraws one of the caller's pending events.
type DeleteEventMsg struct {
	Type    string `json:"type"`
	UserID  string `json:"user_id"`
	EventID string `json:"event_id"`
}

// GetSuggestionsMsg asks for nearby events the caller could join.
type GetSuggestionsMsg struct {
	Type     string          `json:"type"`
	UserID   string          `json:"user_id"`
	Location *event.Location `json:"location"`
}

// GetPlannedEventsMsg lists planned events the caller participates in.
type GetPlannedEventsMsg struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
}

// GetPendingEventsMsg lists the caller's unmatched events.
type GetPendingEventsMsg struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
}

// ---------------------------------------------------------------------------
// Response structs
// ---------------------------------------------------------------------------

// EventSubmittedMsg confirms a stored pending event and reports whether it
// was immediately folded into a planned event.
type EventSubmittedMsg struct {
	Type    string `json:"type"`
	EventID string `json:"event_id"`
	Matched bool   `json:"matched"`
}

// EventDeletedMsg confirms a withdrawn pending event.
type EventDeletedMsg struct {
	Type    string `json:"type"`
	EventID string `json:"event_id"`
}

// SuggestionsMsg carries at most three ranked suggestions.
type SuggestionsMsg struct {
	Type        string             `json:"type"`
	Suggestions []event.Suggestion `json:"suggestions"`
}

// PlannedEventsMsg carries the caller's planned events.
type PlannedEventsMsg struct {
	Type   string               `json:"type"`
	Events []event.PlannedEvent `json:"events"`
}

// PendingEventsMsg carries the caller's pending events.
type PendingEventsMsg struct {
	Type   string               `json:"type"`
	Events []event.PendingEvent `json:"events"`
}

// RateLimitedMsg is returned when the caller has submitted too often.
type RateLimitedMsg struct {
	Type       string `json:"type"`
	RetryAfter int    `json:"retry_after"` // seconds
}

// ErrorMsg communicates an error condition.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

// requestDecoders maps each request type to a decoder for its struct.
var requestDecoders = map[string]func(json.RawMessage) (any, error){
	TypeSubmitEvent:      decodeAs[SubmitEventMsg],
	TypeJoinSuggestion:   decodeAs[JoinSuggestionMsg],
	TypeDeleteEvent:      decodeAs[DeleteEventMsg],
	TypeGetSuggestions:   decodeAs[GetSuggestionsMsg],
	TypeGetPlannedEvents: decodeAs[GetPlannedEventsMsg],
	TypeGetPendingEvents: decodeAs[GetPendingEventsMsg],
}

func decodeAs[T any](raw json.RawMessage) (any, error) {
	var m T
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ParseRequest decodes a request into its typed struct, returned by value.
// The type is returned even when decoding fails. Response types are rejected.
func ParseRequest(data []byte) (string, any, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: parse request: %w", err)
	}

	decode, ok := requestDecoders[env.Type]
	if !ok {
		return env.Type, nil, fmt.Errorf("protocol: unknown request type %q", env.Type)
	}
	msg, err := decode(env.Raw)
	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: decode %s: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewResponse encodes payload with its "type" field set to msgType.
func NewResponse(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", msgType, err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("protocol: encode %s: payload is not an object: %w", msgType, err)
	}
	fields["type"], _ = json.Marshal(msgType)

	return json.Marshal(fields)
}

// NewError builds an error reply. It never fails.
func NewError(code, message string) []byte {
	out, _ := json.Marshal(ErrorMsg{Type: TypeError, Code: code, Message: message})
	return out
}
